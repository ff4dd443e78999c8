package fraud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rtoshield/internal/metrics"
	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/features"
	"rtoshield/internal/services/ml"
	"rtoshield/internal/services/rules"
	"rtoshield/internal/services/statistical"
)

// Tenant defaults, used when the tenant row carries zeroes.
const (
	defaultVerifyThreshold = 40.0
	defaultBlockThreshold  = 70.0
	defaultRuleWeight      = 0.30
	defaultStatWeight      = 0.30
	defaultMLWeight        = 0.40

	// blacklistFloor is the minimum final score for any order whose
	// identity is blacklisted, regardless of what the layers said.
	blacklistFloor = 80.0

	aggregateBuffer  = 256
	aggregateTimeout = 5 * time.Second
)

type aggregateUpdate struct {
	tenantID   uint
	phone      string
	carrier    string
	valid      bool
	mobile     bool
	addressKey string
	city       string
	newPhone   bool
	placedAt   time.Time
}

type service struct {
	extractor features.Extractor
	rules     rules.Engine
	stats     statistical.Engine
	ml        ml.Client

	scores repositories.ScoreRepository
	orders repositories.OrderRepository
	phones repositories.PhoneRepository
	aggs   repositories.StatsRepository

	metrics metrics.Collector
	logger  *zap.Logger

	updates chan aggregateUpdate
	wg      sync.WaitGroup

	// closeMu makes queueAggregateUpdate safe against a concurrent
	// Close: a send never races the channel close.
	closeMu sync.RWMutex
	closed  bool
}

// NewEngine creates the scoring orchestrator and starts its aggregate
// drainer goroutine.
func NewEngine(
	extractor features.Extractor,
	ruleEngine rules.Engine,
	statEngine statistical.Engine,
	mlClient ml.Client,
	scores repositories.ScoreRepository,
	orders repositories.OrderRepository,
	phones repositories.PhoneRepository,
	aggs repositories.StatsRepository,
	collector metrics.Collector,
	logger *zap.Logger,
) Engine {
	if extractor == nil || ruleEngine == nil || statEngine == nil || mlClient == nil {
		panic("scoring layers are required")
	}
	if scores == nil || orders == nil || phones == nil || aggs == nil {
		panic("repositories are required")
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		extractor: extractor,
		rules:     ruleEngine,
		stats:     statEngine,
		ml:        mlClient,
		scores:    scores,
		orders:    orders,
		phones:    phones,
		aggs:      aggs,
		metrics:   collector,
		logger:    logger,
		updates:   make(chan aggregateUpdate, aggregateBuffer),
	}
	s.wg.Add(1)
	go s.drainAggregates()
	return s
}

// ScoreOrder runs the full scoring pass for one order: extract the
// feature vector, run the three layers concurrently, combine with the
// tenant's weights, persist the result and advance the order state.
// The phone/address aggregates update in the background after return.
func (s *service) ScoreOrder(ctx context.Context, order *models.Order, tenant *models.Tenant) (*Result, error) {
	start := time.Now()

	vector, err := s.extractor.Extract(ctx, order)
	if err != nil {
		return nil, err
	}

	var (
		ruleRes *rules.Result
		statRes *statistical.Result
		mlPred  *ml.Prediction
		wg      sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		ruleRes = s.rules.Evaluate(vector)
	}()
	go func() {
		defer wg.Done()
		statRes = s.stats.Evaluate(vector)
	}()
	go func() {
		defer wg.Done()
		mlPred = s.ml.Predict(ctx, ml.PredictInput{
			PhoneNormalized: order.PhoneNormalized,
			Amount:          order.Amount,
			PlacedAt:        order.PlacedAt,
			Features:        vector,
		})
	}()
	wg.Wait()

	res := s.combine(order, tenant, vector, ruleRes, statRes, mlPred)
	res.Duration = time.Since(start)
	res.Reasons = synthesizeReasons(res)

	if err := s.persist(ctx, order, vector, res); err != nil {
		return nil, err
	}

	s.queueAggregateUpdate(order, vector)

	s.metrics.RecordScoringDuration(order.Platform, res.Duration)
	s.metrics.RecordRecommendation(res.Recommendation)
	s.logger.Info("order scored",
		zap.Uint("order_id", order.ID),
		zap.Uint("tenant_id", order.TenantID),
		zap.Float64("score", res.FinalScore),
		zap.String("recommendation", res.Recommendation),
		zap.Duration("duration", res.Duration))

	return res, nil
}

func (s *service) combine(order *models.Order, tenant *models.Tenant, vector *features.OrderFeatures, ruleRes *rules.Result, statRes *statistical.Result, mlPred *ml.Prediction) *Result {
	verify, block := defaultVerifyThreshold, defaultBlockThreshold
	wr, ws, wm := defaultRuleWeight, defaultStatWeight, defaultMLWeight
	if tenant != nil {
		if tenant.VerifyThreshold > 0 && tenant.BlockThreshold > tenant.VerifyThreshold {
			verify, block = tenant.VerifyThreshold, tenant.BlockThreshold
		}
		if sum := tenant.RuleWeight + tenant.StatWeight + tenant.MLWeight; sum > 0 {
			wr = tenant.RuleWeight / sum
			ws = tenant.StatWeight / sum
			wm = tenant.MLWeight / sum
		}
	}

	// A fallback prediction carries no information. Keeping its weight
	// would drag a strong rule+statistical consensus toward the neutral
	// 50, so the ML share is folded back into the informed layers.
	if mlPred.Fallback && wr+ws > 0 {
		scale := 1 / (wr + ws)
		wr, ws, wm = wr*scale, ws*scale, 0
	}

	final := ruleRes.Score*wr + statRes.Score*ws + mlPred.Score*wm
	if vector.Blacklisted() && final < blacklistFloor {
		final = blacklistFloor
	}
	final = clamp(final, 0, 100)

	return &Result{
		OrderID:        order.ID,
		TenantID:       order.TenantID,
		FinalScore:     final,
		RuleScore:      ruleRes.Score,
		StatScore:      statRes.Score,
		MLScore:        mlPred.Score,
		RiskLevel:      riskLevel(final, verify, block),
		Recommendation: recommendation(final, verify, block),
		Confidence:     confidence(vector, mlPred),
		ModelVersion:   mlPred.ModelVersion,
		RuleHits:       ruleRes.Hits,
		StatSignals:    statRes.Signals,
		TopFactors:     mlPred.TopFactors,
	}
}

// riskLevel classifies the final score into four bands using the two
// tenant thresholds; critical starts halfway between block and 100.
func riskLevel(score, verify, block float64) string {
	critical := block + (100-block)/2
	switch {
	case score >= critical:
		return models.RiskLevelCritical
	case score >= block:
		return models.RiskLevelHigh
	case score >= verify:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func recommendation(score, verify, block float64) string {
	switch {
	case score >= block:
		return models.RecommendationBlock
	case score >= verify:
		return models.RecommendationVerify
	default:
		return models.RecommendationApprove
	}
}

// confidence estimates how much history backed this score. More
// qualifying aggregates mean a firmer verdict; the model's own
// confidence contributes when the call succeeded.
func confidence(vector *features.OrderFeatures, mlPred *ml.Prediction) float64 {
	c := 0.4
	if vector.PhoneOrderCount >= 3 {
		c += 0.15
	}
	if vector.CustomerOrderCount >= 2 {
		c += 0.10
	}
	if vector.AddressOrderCount >= 5 {
		c += 0.05
	}
	if vector.CityOrderCount >= 20 {
		c += 0.05
	}
	if !mlPred.Fallback {
		c += mlPred.Confidence * 0.25
	}
	return clamp(c, 0, 1)
}

func (s *service) persist(ctx context.Context, order *models.Order, vector *features.OrderFeatures, res *Result) error {
	signals := map[string]interface{}{
		"rules":       res.RuleHits,
		"statistical": res.StatSignals,
		"ml":          res.TopFactors,
	}
	featureSnapshot := make(map[string]interface{})
	for name, value := range vector.ToMap() {
		featureSnapshot[name] = value
	}

	score := &models.FraudScore{
		OrderID:        order.ID,
		TenantID:       order.TenantID,
		FinalScore:     res.FinalScore,
		RuleScore:      res.RuleScore,
		StatScore:      res.StatScore,
		MLScore:        res.MLScore,
		RiskLevel:      res.RiskLevel,
		Recommendation: res.Recommendation,
		Confidence:     res.Confidence,
		ModelVersion:   res.ModelVersion,
		Signals:        models.NewJSON(signals),
		Reasons:        models.StringSlice(res.Reasons),
		Features:       models.NewJSON(featureSnapshot),
		DurationMs:     res.Duration.Milliseconds(),
		ScoredAt:       time.Now(),
	}
	if err := s.scores.Upsert(ctx, score); err != nil {
		return fmt.Errorf("persist score for order %d: %w", order.ID, err)
	}

	// A re-score leaves a non-pending order where it is.
	if order.Status == models.OrderStatusPending {
		if err := s.orders.UpdateStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusScored); err != nil {
			return fmt.Errorf("advance order %d to scored: %w", order.ID, err)
		}
		order.Status = models.OrderStatusScored
	}
	return nil
}

// queueAggregateUpdate hands the rolling-aggregate write to the drainer.
// The update must not block the scoring response, but dropping one is a
// visible event, never silent.
func (s *service) queueAggregateUpdate(order *models.Order, vector *features.OrderFeatures) {
	if order.PhoneNormalized == "" {
		return
	}
	u := aggregateUpdate{
		tenantID:   order.TenantID,
		phone:      order.PhoneNormalized,
		carrier:    order.PhoneCarrier,
		valid:      vector.PhoneValid,
		mobile:     vector.PhoneIsMobile,
		addressKey: order.AddressKey,
		city:       order.ShippingCity,
		newPhone:   vector.PhoneOrderCount == 0,
		placedAt:   order.PlacedAt,
	}
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		s.logger.Warn("aggregate update after close",
			zap.Uint("order_id", order.ID), zap.String("phone", u.phone))
		return
	}
	select {
	case s.updates <- u:
	default:
		s.metrics.RecordError("aggregate_update", "dropped")
		s.logger.Error("aggregate update dropped, buffer full",
			zap.Uint("order_id", order.ID), zap.String("phone", u.phone))
	}
}

func (s *service) drainAggregates() {
	defer s.wg.Done()
	for u := range s.updates {
		s.applyAggregateUpdate(u)
	}
}

func (s *service) applyAggregateUpdate(u aggregateUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), aggregateTimeout)
	defer cancel()

	if err := s.phones.RecordOrder(ctx, u.phone, u.carrier, u.valid, u.mobile, u.placedAt); err != nil {
		s.metrics.RecordError("aggregate_update", "phone")
		s.logger.Error("phone aggregate update failed",
			zap.String("phone", u.phone), zap.Error(err))
	}
	if err := s.aggs.RecordOrder(ctx, u.tenantID, u.addressKey, u.city, u.newPhone); err != nil {
		s.metrics.RecordError("aggregate_update", "stats")
		s.logger.Error("address/city aggregate update failed",
			zap.String("address_key", u.addressKey), zap.Error(err))
	}
}

// Close stops accepting aggregate updates and waits for the drainer to
// flush what is already queued.
func (s *service) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	s.closeMu.Unlock()
	s.wg.Wait()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
