package scoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"rtoshield/internal/errs"
	"rtoshield/internal/metrics"
	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/fraud"
)

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	// Concurrency is the number of jobs processed in parallel.
	Concurrency int
	// MaxAttempts bounds scoring attempts per job before the job
	// moves to the dead-letter queue.
	MaxAttempts int
	// PollInterval is how long an idle worker sleeps between
	// dequeue attempts.
	PollInterval time.Duration
	// RetryInterval seeds the exponential backoff between attempts.
	RetryInterval time.Duration
	// RatePerSecond caps dequeues across all workers so a sweep
	// re-enqueue burst cannot saturate the database and the ML
	// service. Zero means the default; negative disables the cap.
	RatePerSecond float64
	// Burst is the token bucket depth for RatePerSecond.
	Burst int
}

// DefaultPoolConfig returns the production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency:   4,
		MaxAttempts:   3,
		PollInterval:  250 * time.Millisecond,
		RetryInterval: 2 * time.Second,
		RatePerSecond: 50,
		Burst:         10,
	}
}

// Pool drains the scoring queue. Each job is scored at most MaxAttempts
// times with exponential backoff between attempts; exhausted or
// unretryable jobs land in the dead-letter queue with their failure
// reason and attempt count.
type Pool struct {
	queue   Queue
	orders  repositories.OrderRepository
	tenants repositories.TenantRepository
	engine  fraud.Engine
	cfg     PoolConfig
	limiter *rate.Limiter
	metrics metrics.Collector
	logger  *zap.Logger
}

// NewPool creates the worker pool.
func NewPool(queue Queue, orders repositories.OrderRepository, tenants repositories.TenantRepository, engine fraud.Engine, cfg PoolConfig, collector metrics.Collector, logger *zap.Logger) *Pool {
	if queue == nil || orders == nil || tenants == nil || engine == nil {
		panic("queue, repositories and engine are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultPoolConfig().Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPoolConfig().MaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPoolConfig().PollInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultPoolConfig().RetryInterval
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = DefaultPoolConfig().RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultPoolConfig().Burst
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond < 0 {
		limit = rate.Inf
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:   queue,
		orders:  orders,
		tenants: tenants,
		engine:  engine,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		metrics: collector,
		logger:  logger,
	}
}

// Run blocks draining the queue until ctx is cancelled. In-flight jobs
// finish before Run returns.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.metrics.RecordError("dequeue", "dependency")
			p.logger.Error("dequeue failed", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}
		p.process(ctx, *job)
	}
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.PollInterval):
	}
}

func (p *Pool) process(ctx context.Context, job Job) {
	order, err := p.orders.GetByID(ctx, job.OrderID)
	if err != nil {
		p.deadLetter(ctx, job, 1, fmt.Errorf("load order: %w", err))
		return
	}
	// The sweep and a late webhook can both queue the same order. A
	// non-pending order was already scored; one pass is enough.
	if order.Status != models.OrderStatusPending {
		p.logger.Debug("skipping already-scored order", zap.Uint("order_id", order.ID))
		return
	}

	tenant, err := p.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		p.deadLetter(ctx, job, 1, fmt.Errorf("load tenant: %w", err))
		return
	}

	attempts := 0
	operation := func() error {
		attempts++
		_, err := p.engine.ScoreOrder(ctx, order, tenant)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.cfg.MaxAttempts-1)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		p.deadLetter(ctx, job, attempts, err)
	}
}

func (p *Pool) deadLetter(ctx context.Context, job Job, attempts int, cause error) {
	p.metrics.RecordError("score_job", errs.KindOf(cause).String())
	p.logger.Error("scoring job exhausted",
		zap.Uint("order_id", job.OrderID),
		zap.Int("attempts", attempts),
		zap.Error(cause))

	dl := DeadLetter{Job: job, Reason: cause.Error(), Attempts: attempts, FailedAt: time.Now()}
	if err := p.queue.PushDeadLetter(ctx, dl); err != nil {
		p.logger.Error("dead letter write failed", zap.Uint("order_id", job.OrderID), zap.Error(err))
	}
}

// retryable reports whether another attempt can fix the failure.
// Dependency failures are transient; everything else is not.
func retryable(err error) bool {
	return errs.KindOf(err) == errs.KindDependency
}
