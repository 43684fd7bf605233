package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/pkg/metrics"
)

var (
	// ErrNotFound means no session exists for the token.
	ErrNotFound = errors.New("session not found")
	// ErrExpired means the session exists but no longer accepts votes.
	ErrExpired = errors.New("session expired")
	// ErrMissingPhoto means neither the session nor its owner has a photo to show.
	ErrMissingPhoto = errors.New("session has no photo")
)

// Store reads sessions by share token. Implementations return ErrNotFound for unknown tokens.
type Store interface {
	GetByToken(ctx context.Context, token string) (*models.VotingSession, error)
}

// Lookup resolves public share tokens to votable sessions.
type Lookup struct {
	store   Store
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewLookup creates a lookup over store. A nil now uses time.Now; m may be nil.
func NewLookup(store Store, now func() time.Time, m *metrics.Metrics) *Lookup {
	if now == nil {
		now = time.Now
	}
	return &Lookup{store: store, now: now, metrics: m}
}

// Resolve returns the votable session behind token, or ErrNotFound, ErrExpired or
// ErrMissingPhoto. Expiry is decided by the clock, whatever the stored status says.
// Any other error comes from the store.
func (l *Lookup) Resolve(ctx context.Context, token string) (*models.ResolvedSession, error) {
	rs, err := l.resolve(ctx, token)
	l.metrics.Lookup(lookupOutcome(err))
	return rs, err
}

func (l *Lookup) resolve(ctx context.Context, token string) (*models.ResolvedSession, error) {
	token = strings.TrimSpace(token)
	if !ValidToken(token) {
		return nil, ErrNotFound
	}
	s, err := l.store.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !s.VotableAt(l.now()) {
		return nil, ErrExpired
	}
	photo := s.DisplayPhoto()
	if photo == "" {
		return nil, ErrMissingPhoto
	}
	return &models.ResolvedSession{
		ID:        s.ID,
		Token:     s.ShareToken,
		PhotoURL:  photo,
		FullName:  s.FullName,
		ExpiresAt: s.ExpiresAt,
	}, nil
}

func lookupOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrMissingPhoto):
		return "MISSING_PHOTO"
	default:
		return "STORAGE_ERROR"
	}
}
