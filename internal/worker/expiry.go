package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type OrderExpirer interface {
	CancelExpired(ctx context.Context, olderThan time.Duration) (int, error)
}

// ExpirySweeper cancels CREATED orders nobody paid for within the expiry window.
type ExpirySweeper struct {
	orders   OrderExpirer
	expiry   time.Duration
	interval time.Duration
	log      *zap.Logger
}

func NewExpirySweeper(orders OrderExpirer, expiry, interval time.Duration, log *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		orders:   orders,
		expiry:   expiry,
		interval: interval,
		log:      log.Named("expiry"),
	}
}

func (s *ExpirySweeper) Run(ctx context.Context) {
	s.log.Info("expiry sweeper started", zap.Duration("expiry", s.expiry), zap.Duration("interval", s.interval))
	defer s.log.Info("expiry sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	n, err := s.orders.CancelExpired(ctx, s.expiry)
	if err != nil && ctx.Err() == nil {
		s.log.Error("cancel expired orders", zap.Int("cancelled", n), zap.Error(err))
	}
	return n
}
