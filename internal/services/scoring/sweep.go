package scoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rtoshield/internal/repositories"
)

// SweepConfig tunes the recovery sweep.
type SweepConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// Grace is how long an order may sit pending before the sweep
	// considers its enqueue signal lost.
	Grace time.Duration
	// Ceiling caps how far back the sweep reaches; older pending
	// orders are left for operators.
	Ceiling time.Duration
}

// DefaultSweepConfig returns the production defaults.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval: 5 * time.Minute,
		Grace:    10 * time.Minute,
		Ceiling:  24 * time.Hour,
	}
}

// Sweeper re-enqueues orders stuck in pending: the backstop against
// lost enqueue signals from worker crashes, queue outages or dedup
// false positives.
type Sweeper struct {
	orders  repositories.OrderRepository
	tenants repositories.TenantRepository
	queue   Queue
	cfg     SweepConfig
	logger  *zap.Logger
}

// NewSweeper creates the recovery sweeper.
func NewSweeper(orders repositories.OrderRepository, tenants repositories.TenantRepository, queue Queue, cfg SweepConfig, logger *zap.Logger) *Sweeper {
	if orders == nil || tenants == nil || queue == nil {
		panic("repositories and queue are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepConfig().Interval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultSweepConfig().Grace
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultSweepConfig().Ceiling
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{orders: orders, tenants: tenants, queue: queue, cfg: cfg, logger: logger}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("recovery sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep re-enqueues every order stuck in pending within the window.
// The queue's dedup marker keeps a sweep from double-queueing an order
// a worker is about to pick up.
func (s *Sweeper) Sweep(ctx context.Context) error {
	stale, err := s.orders.StalePending(ctx, s.cfg.Grace, s.cfg.Ceiling)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	priorities := make(map[uint]int)
	requeued := 0
	for _, order := range stale {
		priority, ok := priorities[order.TenantID]
		if !ok {
			tenant, err := s.tenants.GetByID(ctx, order.TenantID)
			if err != nil {
				s.logger.Warn("sweep skipping order, tenant lookup failed",
					zap.Uint("order_id", order.ID), zap.Error(err))
				continue
			}
			priority = tenant.PlanPriority()
			priorities[order.TenantID] = priority
		}

		queued, err := s.queue.Enqueue(ctx, Job{
			OrderID:  order.ID,
			TenantID: order.TenantID,
			Priority: priority,
		})
		if err != nil {
			s.logger.Error("sweep enqueue failed", zap.Uint("order_id", order.ID), zap.Error(err))
			continue
		}
		if queued {
			requeued++
		}
	}

	s.logger.Info("recovery sweep finished",
		zap.Int("stale", len(stale)),
		zap.Int("requeued", requeued))
	return nil
}
