package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/pkg/logger"
)

// UpdateLockName is the Redis key guarding price update runs
const UpdateLockName = "prices:update:lock"

// lockManager is the subset of redlock.RedLock used here
type lockManager interface {
	Lock(ctx context.Context, resource string, ttl time.Duration) (time.Duration, error)
	UnLock(ctx context.Context, resource string) error
}

// pinger tells a held lock apart from an unreachable Redis
type pinger interface {
	Ping(ctx context.Context) error
}

// DistributedLock wraps redlock-go so only one instance runs an update at a time
type DistributedLock struct {
	lockManager lockManager
	pinger      pinger
	lockName    string
	ttl         time.Duration

	mu     sync.Mutex
	locked bool
	stop   chan struct{}
}

// NewDistributedLock creates new distributed lock using redlock-go
func NewDistributedLock(lm lockManager, p pinger, lockName string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		lockManager: lm,
		pinger:      p,
		lockName:    lockName,
		ttl:         ttl,
	}
}

// TryAcquire attempts to acquire the lock.
// Returns false with nil error when another instance holds it,
// and an error when Redis itself is unreachable.
func (dl *DistributedLock) TryAcquire(ctx context.Context) (bool, error) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.locked {
		return false, nil
	}

	expiry, err := dl.lockManager.Lock(ctx, dl.lockName, dl.ttl)
	if err != nil {
		if pingErr := dl.pinger.Ping(ctx); pingErr != nil {
			return false, fmt.Errorf("redis unavailable: %w", pingErr)
		}
		logger.Debug("update lock already held by another instance",
			zap.String("lock_name", dl.lockName),
		)
		return false, nil
	}

	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire lock: invalid expiry %v", expiry)
	}

	dl.locked = true
	dl.stop = make(chan struct{})

	logger.Debug("update lock acquired",
		zap.String("lock_name", dl.lockName),
		zap.Duration("ttl", dl.ttl),
		zap.Duration("expiry", expiry),
	)

	go dl.renewLock(ctx, dl.stop)

	return true, nil
}

// Release releases the lock
func (dl *DistributedLock) Release(ctx context.Context) error {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if !dl.locked {
		return nil
	}

	close(dl.stop)
	dl.locked = false

	if err := dl.lockManager.UnLock(ctx, dl.lockName); err != nil {
		// Lock may have already expired naturally
		logger.Warn("failed to release update lock",
			zap.String("lock_name", dl.lockName),
			zap.Error(err),
		)
		return nil
	}

	logger.Debug("update lock released", zap.String("lock_name", dl.lockName))
	return nil
}

// renewLock extends the lock while a long update is still running
func (dl *DistributedLock) renewLock(ctx context.Context, stop <-chan struct{}) {
	// Renew at 2/3 of TTL to have safety margin
	ticker := time.NewTicker((dl.ttl * 2) / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			dl.mu.Lock()
			if !dl.locked {
				dl.mu.Unlock()
				return
			}

			// Redlock-go has no renewal, so release + acquire
			if err := dl.lockManager.UnLock(ctx, dl.lockName); err != nil {
				logger.Error("update lock renewal failed (unlock)", zap.Error(err))
				dl.locked = false
				dl.mu.Unlock()
				return
			}

			expiry, err := dl.lockManager.Lock(ctx, dl.lockName, dl.ttl)
			if err != nil || expiry <= 0 {
				logger.Error("update lock lost, another instance may have taken over",
					zap.String("lock_name", dl.lockName),
					zap.Error(err),
				)
				dl.locked = false
				dl.mu.Unlock()
				return
			}
			dl.mu.Unlock()

			logger.Debug("update lock renewed", zap.Duration("expiry", expiry))
		}
	}
}
