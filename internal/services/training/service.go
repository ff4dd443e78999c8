package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rtoshield/internal/errs"
	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
)

// RetrainThreshold is how many unused training events must accumulate
// before an external retraining run is worthwhile.
const RetrainThreshold = 500

// correctBoundary splits the score range for the prediction-correct
// flag on a labelled event.
const correctBoundary = 50.0

// ErrNoScore is returned when an outcome arrives for an order that was
// never scored; there is no feature snapshot to label.
var ErrNoScore = errors.New("order has no persisted score")

// Config tunes the recorder.
type Config struct {
	// PresumeDeliveredAfter is how long a scored order may wait for an
	// outcome before the timeout sweep presumes it delivered.
	PresumeDeliveredAfter time.Duration
	// SweepInterval is how often the timeout sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PresumeDeliveredAfter: 14 * 24 * time.Hour,
		SweepInterval:         time.Hour,
	}
}

// Recorder turns delivery outcomes into labelled training events.
type Recorder interface {
	// RecordOutcome labels one order with its ground truth. Returns
	// true when a new event was written; a second outcome for the
	// same order is ignored, whichever source it came from.
	RecordOutcome(ctx context.Context, orderID uint, isRTO bool, source string) (bool, error)
	// Readiness reports the unused event count against the retrain
	// threshold. tenantID 0 counts across all tenants.
	Readiness(ctx context.Context, tenantID uint) (int64, bool, error)
	// MarkConsumed flags events up to and including upTo as used by a
	// completed retraining run so Readiness starts over. tenantID 0
	// consumes across all tenants.
	MarkConsumed(ctx context.Context, tenantID uint, upTo uint) error
	// SweepTimeouts presumes delivery for scored orders past the
	// waiting window. Returns how many outcomes were recorded.
	SweepTimeouts(ctx context.Context) (int, error)
	// Run executes the timeout sweep periodically until ctx is
	// cancelled.
	Run(ctx context.Context)
}

type service struct {
	orders repositories.OrderRepository
	scores repositories.ScoreRepository
	events repositories.TrainingEventRepository
	phones repositories.PhoneRepository
	aggs   repositories.StatsRepository
	cfg    Config
	logger *zap.Logger
}

// NewRecorder creates the training event recorder.
func NewRecorder(
	orders repositories.OrderRepository,
	scores repositories.ScoreRepository,
	events repositories.TrainingEventRepository,
	phones repositories.PhoneRepository,
	aggs repositories.StatsRepository,
	cfg Config,
	logger *zap.Logger,
) Recorder {
	if orders == nil || scores == nil || events == nil || phones == nil || aggs == nil {
		panic("repositories are required")
	}
	if cfg.PresumeDeliveredAfter <= 0 {
		cfg.PresumeDeliveredAfter = DefaultConfig().PresumeDeliveredAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		orders: orders,
		scores: scores,
		events: events,
		phones: phones,
		aggs:   aggs,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *service) RecordOutcome(ctx context.Context, orderID uint, isRTO bool, source string) (bool, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.HasOutcome() {
		return false, nil
	}

	score, err := s.scores.GetByOrderID(ctx, orderID)
	if errors.Is(err, repositories.ErrScoreNotFound) {
		return false, errs.Data("record_outcome", ErrNoScore)
	}
	if err != nil {
		return false, err
	}

	label := 0
	status := models.OrderStatusDelivered
	if isRTO {
		label = 1
		status = models.OrderStatusRTO
	}

	event := &models.TrainingEvent{
		EventID:           uuid.NewString(),
		OrderID:           order.ID,
		TenantID:          order.TenantID,
		Features:          score.Features,
		TrueLabel:         label,
		PredictedScore:    score.FinalScore,
		PredictionCorrect: (score.FinalScore >= correctBoundary) == isRTO,
		OutcomeSource:     source,
	}
	inserted, err := s.events.InsertIgnore(ctx, event)
	if err != nil {
		return false, fmt.Errorf("write training event for order %d: %w", order.ID, err)
	}

	if inserted {
		s.updateAggregates(ctx, order, isRTO)
	}

	if err := s.orders.SetStatus(ctx, order.ID, status); err != nil {
		return inserted, fmt.Errorf("set outcome status for order %d: %w", order.ID, err)
	}

	s.logger.Info("outcome recorded",
		zap.Uint("order_id", order.ID),
		zap.Int("label", label),
		zap.String("source", source),
		zap.Bool("new_event", inserted))
	return inserted, nil
}

// updateAggregates bumps the RTO counters on the same outcome that
// produced the event. Failures are logged, not propagated: the labelled
// event is the record of truth, the aggregates are rebuildable.
func (s *service) updateAggregates(ctx context.Context, order *models.Order, isRTO bool) {
	if order.PhoneNormalized != "" {
		if err := s.phones.RecordOutcome(ctx, order.PhoneNormalized, isRTO); err != nil {
			s.logger.Error("phone outcome update failed",
				zap.String("phone", order.PhoneNormalized), zap.Error(err))
		}
	}
	if err := s.aggs.RecordOutcome(ctx, order.TenantID, order.AddressKey, order.ShippingCity, isRTO); err != nil {
		s.logger.Error("address/city outcome update failed",
			zap.String("address_key", order.AddressKey), zap.Error(err))
	}
}

func (s *service) Readiness(ctx context.Context, tenantID uint) (int64, bool, error) {
	count, err := s.events.CountUnused(ctx, tenantID)
	if err != nil {
		return 0, false, err
	}
	return count, count >= RetrainThreshold, nil
}

func (s *service) MarkConsumed(ctx context.Context, tenantID uint, upTo uint) error {
	if upTo == 0 {
		return errs.Validation("mark_consumed", errors.New("up_to event id is required"))
	}
	if err := s.events.MarkUsed(ctx, tenantID, upTo); err != nil {
		return fmt.Errorf("mark training events used up to %d: %w", upTo, err)
	}
	s.logger.Info("training events consumed",
		zap.Uint("tenant_id", tenantID),
		zap.Uint("up_to", upTo))
	return nil
}

func (s *service) SweepTimeouts(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.PresumeDeliveredAfter)
	orders, err := s.orders.AwaitingOutcome(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	recorded := 0
	for _, order := range orders {
		inserted, err := s.RecordOutcome(ctx, order.ID, false, models.OutcomeSourceTimeout)
		if err != nil {
			s.logger.Error("timeout outcome failed",
				zap.Uint("order_id", order.ID), zap.Error(err))
			continue
		}
		if inserted {
			recorded++
		}
	}
	if len(orders) > 0 {
		s.logger.Info("timeout sweep finished",
			zap.Int("candidates", len(orders)),
			zap.Int("recorded", recorded))
	}
	return recorded, nil
}

func (s *service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepTimeouts(ctx); err != nil {
				s.logger.Error("timeout sweep failed", zap.Error(err))
			}
		}
	}
}
