package service

import (
	"context"
	"time"

	domainsvc "github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// Sweeper runs the expiry cleanup on an interval. A best-effort leader lock
// keeps multiple instances from duplicating the work; the sweep itself is
// idempotent, so correctness never depends on the lock.
type Sweeper struct {
	service  *ChatAccessService
	lock     domainsvc.LeaderLock
	interval time.Duration
	lockTTL  time.Duration
	logger   logger.Logger
}

// NewSweeper creates the sweeper. A nil lock disables leader election and
// every instance sweeps, which is safe but wasteful.
func NewSweeper(svc *ChatAccessService, lock domainsvc.LeaderLock, interval, lockTTL time.Duration, log logger.Logger) *Sweeper {
	return &Sweeper{
		service:  svc,
		lock:     lock,
		interval: interval,
		lockTTL:  lockTTL,
		logger:   log.WithComponent("sweeper"),
	}
}

// Run blocks until ctx is cancelled, sweeping every interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "sweeper started", logger.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.TryAcquire(ctx, s.lockTTL)
		if err != nil {
			// Lock state unknown; sweep anyway, the update is idempotent.
			s.logger.Warn(ctx, "leader lock check failed, sweeping without it", logger.Error(err))
		} else if !acquired {
			s.logger.Debug(ctx, "another instance holds the sweep lock")
			return
		} else {
			defer func() {
				if err := s.lock.Release(ctx); err != nil {
					s.logger.Warn(ctx, "failed to release sweep lock", logger.Error(err))
				}
			}()
		}
	}

	count, err := s.service.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error(ctx, "cleanup sweep failed", err)
		return
	}
	if count > 0 {
		s.logger.Info(ctx, "cleanup sweep finished", logger.Int64("expired", count))
	}
}
