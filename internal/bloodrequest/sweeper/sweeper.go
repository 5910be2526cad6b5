// Package sweeper cancels overdue pending requests on a fixed interval.
//
// Every process runs a sweeper; the Locker ensures only one of them sweeps
// per tick. Listings sweep on read as well, so a missed tick only delays
// cleanup of rows nobody is looking at.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Expirer cancels pending requests past their deadline.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

const (
	defaultInterval = time.Minute
	defaultLockTTL  = 30 * time.Second
)

type Sweeper struct {
	expirer  Expirer
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	logger   *slog.Logger
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithLocker replaces the process-local lock, typically with a RedisLocker.
func WithLocker(l Locker) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLockTTL bounds how long a crashed holder can block other sweepers.
func WithLockTTL(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func New(expirer Expirer, opts ...Option) *Sweeper {
	s := &Sweeper{
		expirer:  expirer,
		locker:   NewLocalLocker(),
		interval: defaultInterval,
		lockTTL:  defaultLockTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// Sweep errors are logged and the loop keeps going.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "expiry sweeper started", "interval", s.interval)
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	}
}

// SweepOnce expires overdue requests if this process wins the lock. It
// returns how many requests it cancelled; losing the lock is not an error.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	unlock, acquired, err := s.locker.TryLock(ctx, s.lockTTL)
	if err != nil {
		return 0, err
	}
	if !acquired {
		s.logger.DebugContext(ctx, "expiry sweep skipped: lock held elsewhere")
		return 0, nil
	}
	defer func() {
		// release on a fresh context so shutdown still frees the lock
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			s.logger.WarnContext(ctx, "failed to release sweep lock", "error", err)
		}
	}()

	sweepCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()
	n, err := s.expirer.ExpireOverdue(sweepCtx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expiry sweep cancelled overdue requests", "count", n)
	}
	return n, nil
}
