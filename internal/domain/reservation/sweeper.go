package reservation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bedlink/bedlink/internal/platform/lock"
)

const sweepLockName = "reservation-sweep"

// Sweeper periodically expires overdue reservations. With a shared Locker
// only one instance sweeps per tick; the conditional status update in
// Release stays the real guard.
type Sweeper struct {
	svc      *Service
	locker   lock.Locker
	interval time.Duration
	logger   zerolog.Logger
}

func NewSweeper(svc *Service, locker lock.Locker, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if locker == nil {
		locker = lock.Local{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		svc:      svc,
		locker:   locker,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("reservation sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reservation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("reservation sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep if the lock is free and returns the number
// of reservations expired.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	release, ok, err := s.locker.TryAcquire(ctx, sweepLockName, s.interval)
	if err != nil {
		return 0, err
	}
	if !ok {
		s.logger.Debug().Msg("sweep lock held by another instance")
		return 0, nil
	}
	defer release()

	return s.svc.ExpireOverdue(ctx)
}
