package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ExpiredOrderAbandoner is the slice of the order service the sweeper needs.
type ExpiredOrderAbandoner interface {
	AbandonExpired(ctx context.Context, now time.Time) (int, error)
}

// SweeperConfig configures the periodic expired-order sweep.
type SweeperConfig struct {
	Orders   ExpiredOrderAbandoner
	Interval time.Duration
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Sweeper periodically abandons orders whose state deadline passed.
type Sweeper struct {
	orders   ExpiredOrderAbandoner
	interval time.Duration
	logger   *zap.Logger
	clock    func() time.Time
}

// NewSweeper constructs the sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Orders == nil {
		return nil, errors.New("sweeper: order service is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("sweeper: interval must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Sweeper{
		orders:   cfg.Orders,
		interval: cfg.Interval,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Run blocks sweeping on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single sweep pass. Failures are logged, not returned;
// the next tick retries.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	swept, err := s.orders.AbandonExpired(ctx, s.clock().UTC())
	if err != nil {
		s.logger.Warn("expired order sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		s.logger.Info("expired orders abandoned", zap.Int("count", swept))
	}
}
