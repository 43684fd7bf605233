package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_OneWayAndStable(t *testing.T) {
	h := NewHasher("pepper")

	a := h.Hash("visitor-123")
	b := h.Hash("visitor-123")
	require.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, "visitor-123", a)
	assert.NotEqual(t, a, NewHasher("other").Hash("visitor-123"))
}

func TestDerive_Fingerprint(t *testing.T) {
	h := NewHasher("pepper")
	d := NewDeriver(h, nil)
	ctx := context.Background()

	first := d.Derive(ctx, StaticSource("fp-abc"), "203.0.113.7")
	second := d.Derive(ctx, StaticSource("fp-abc"), "203.0.113.7")

	assert.Equal(t, KindFingerprint, first.Kind)
	assert.Equal(t, first, second)
	assert.Equal(t, h.Hash("fp-abc"), first.DeviceHash)
	assert.NotEqual(t, "fp-abc", first.DeviceHash)
	assert.NotEqual(t, "203.0.113.7", first.NetworkHash)
	assert.Equal(t, h.Hash("203.0.113.7"), first.NetworkHash)
}

func TestDerive_FallbackIsEphemeral(t *testing.T) {
	d := NewDeriver(NewHasher("pepper"), nil)
	ctx := context.Background()
	failing := SourceFunc(func(context.Context) (string, error) { return "", errors.New("blocked") })

	a := d.Derive(ctx, failing, "")
	b := d.Derive(ctx, failing, "")

	assert.Equal(t, KindEphemeral, a.Kind)
	assert.NotEqual(t, a.DeviceHash, b.DeviceHash)
	assert.Equal(t, NewHasher("pepper").Hash(UnknownOrigin), a.NetworkHash)
}

func TestDerive_EmptyVisitorIDFallsBack(t *testing.T) {
	d := NewDeriver(NewHasher("pepper"), nil)
	id := d.Derive(context.Background(), StaticSource("   "), "198.51.100.1")
	assert.Equal(t, KindEphemeral, id.Kind)
}
