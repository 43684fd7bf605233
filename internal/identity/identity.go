// Package identity derives an anonymous, stable voter identity for a device/browser and
// reduces it to one-way hashes before it is used anywhere else.
package identity

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// UnknownOrigin is hashed when no network origin is available.
const UnknownOrigin = "unknown"

// Kind tells whether an identity came from a real fingerprint or the ephemeral fallback.
type Kind string

const (
	KindFingerprint Kind = "fingerprint"
	KindEphemeral   Kind = "ephemeral"
)

// ErrNoVisitorID is returned by sources that have nothing to offer.
var ErrNoVisitorID = errors.New("no visitor id")

// Source supplies the opaque visitor id computed by the browser fingerprinting library.
type Source interface {
	VisitorID(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, error)

// VisitorID calls f.
func (f SourceFunc) VisitorID(ctx context.Context) (string, error) { return f(ctx) }

// StaticSource returns a fixed visitor id; an empty id reports ErrNoVisitorID.
func StaticSource(id string) Source {
	id = strings.TrimSpace(id)
	return SourceFunc(func(context.Context) (string, error) {
		if id == "" {
			return "", ErrNoVisitorID
		}
		return id, nil
	})
}

// Identity is the hashed voter identity. Raw values never leave Derive.
type Identity struct {
	DeviceHash  string
	NetworkHash string
	Kind        Kind
}

// Hasher is a keyed one-way digest (HMAC-SHA-256, hex encoded).
type Hasher struct {
	key []byte
}

// NewHasher creates a hasher keyed with salt.
func NewHasher(salt string) *Hasher {
	return &Hasher{key: []byte(salt)}
}

// Hash returns the 64-character hex digest of raw.
func (h *Hasher) Hash(raw string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Deriver turns a visitor-id source and a network origin into an Identity.
type Deriver struct {
	hasher   *Hasher
	logger   *zap.Logger
	fallback func() string
}

// NewDeriver creates a deriver.
func NewDeriver(hasher *Hasher, logger *zap.Logger) *Deriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deriver{hasher: hasher, logger: logger, fallback: fallbackID}
}

// Derive never fails: when the source errors, a fresh random id is used and the result is
// tagged KindEphemeral.
func (d *Deriver) Derive(ctx context.Context, src Source, origin string) Identity {
	kind := KindFingerprint
	raw, err := src.VisitorID(ctx)
	if err == nil && strings.TrimSpace(raw) == "" {
		err = ErrNoVisitorID
	}
	if err != nil {
		d.logger.Debug("visitor id unavailable, using ephemeral identity", zap.Error(err))
		raw = d.fallback()
		kind = KindEphemeral
	}
	origin = strings.TrimSpace(origin)
	if origin == "" {
		origin = UnknownOrigin
	}
	return Identity{
		DeviceHash:  d.hasher.Hash(raw),
		NetworkHash: d.hasher.Hash(origin),
		Kind:        kind,
	}
}

func fallbackID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("fallback-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
