package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/internal/sessions"
)

type fakeExpirer struct {
	closed []sessions.ClosedSession
	err    error
	at     []time.Time
}

func (f *fakeExpirer) ExpireDue(_ context.Context, now time.Time) ([]sessions.ClosedSession, error) {
	f.at = append(f.at, now)
	return f.closed, f.err
}

type fakeCache struct{ dropped []string }

func (f *fakeCache) Invalidate(_ context.Context, token string) error {
	f.dropped = append(f.dropped, token)
	return nil
}

func TestSweep_InvalidatesClosedSessions(t *testing.T) {
	now := time.Date(2024, 5, 4, 9, 0, 0, 0, time.UTC)
	store := &fakeExpirer{closed: []sessions.ClosedSession{
		{ID: uuid.New(), Token: "ab12cd34", Status: models.SessionCompleted},
		{ID: uuid.New(), Token: "zz99zz99", Status: models.SessionExpired},
	}}
	cache := &fakeCache{}
	s := NewExpirySweeper(store, cache, time.Minute, nil)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ab12cd34", "zz99zz99"}, cache.dropped)
	assert.Equal(t, []time.Time{now}, store.at)
}

func TestSweep_StoreError(t *testing.T) {
	s := NewExpirySweeper(&fakeExpirer{err: errors.New("conn refused")}, nil, 0, nil)
	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
	assert.Equal(t, time.Minute, s.interval)
}

func TestSweeperRun_StopsOnCancel(t *testing.T) {
	store := &fakeExpirer{}
	s := NewExpirySweeper(store, nil, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)
	assert.Len(t, store.at, 1, "one immediate pass")
}
