package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockPrefix = "lock:"

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("lock held by another request")

// Locker hands out short-lived distributed locks backed by redsync.
type Locker struct {
	rs     *redsync.Redsync
	ttl    time.Duration
	logger *zap.Logger
}

// NewLocker creates a locker on top of an existing go-redis client.
func NewLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		logger: logger,
	}
}

// TryLock makes a single attempt to take the named lock. It returns ErrLocked if the lock is
// already held; otherwise the returned func releases it.
func (l *Locker) TryLock(ctx context.Context, name string) (func(), error) {
	mutex := l.rs.NewMutex(lockPrefix+name,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(1),
		redsync.WithDriftFactor(0.01),
	)
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		var nodeTaken *redsync.ErrNodeTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || errors.As(err, &nodeTaken) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return func() {
		// Release with a fresh context: the request context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(ctx); err != nil {
			l.logger.Warn("release lock failed", zap.String("name", name), zap.Error(err))
		}
	}, nil
}
