package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yansimam/backend/internal/sessions"
)

// Expirer closes active sessions whose expiry has passed.
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) ([]sessions.ClosedSession, error)
}

// Invalidator drops cached session rows.
type Invalidator interface {
	Invalidate(ctx context.Context, token string) error
}

// ExpirySweeper periodically moves sessions past expires_at out of active. The stored
// status is informational; lookups compare expires_at against the clock on every read.
type ExpirySweeper struct {
	store    Expirer
	cache    Invalidator
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewExpirySweeper creates a sweeper. cache may be nil.
func NewExpirySweeper(store Expirer, cache Invalidator, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{store: store, cache: cache, interval: interval, now: time.Now, logger: logger}
}

// Sweep runs one pass and returns the number of sessions closed.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	closed, err := s.store.ExpireDue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	for _, c := range closed {
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, c.Token); err != nil {
				s.logger.Warn("invalidate session cache failed", zap.String("session_id", c.ID.String()), zap.Error(err))
			}
		}
		s.logger.Info("session closed", zap.String("session_id", c.ID.String()), zap.String("status", string(c.Status)))
	}
	return len(closed), nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("expiry sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}
