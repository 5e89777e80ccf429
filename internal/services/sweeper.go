package services

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires promotions and stale reservations, and retries
// ticket releases that failed.
type Sweeper struct {
	promotions *PromotionService
	checkout   *CheckoutService
	interval   time.Duration
	logger     *slog.Logger
}

func NewSweeper(promotions *PromotionService, checkout *CheckoutService, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{promotions: promotions, checkout: checkout, interval: interval, logger: logger}
}

// RunOnce performs a single pass of every sweep.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if _, err := s.promotions.CheckPromotions(ctx); err != nil {
		s.logger.Error("Promotion sweep failed", "error", err)
	}
	if n, err := s.checkout.RetryReleases(ctx); err != nil {
		s.logger.Error("Ticket release retry failed", "error", err)
	} else if n > 0 {
		s.logger.Info("Released tickets of failed orders", "count", n)
	}
	n, err := s.checkout.ExpireReservations(ctx)
	if err != nil {
		s.logger.Error("Reservation sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Expired reservations", "count", n)
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Sweeper started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
