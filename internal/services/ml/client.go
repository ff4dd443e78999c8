package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rtoshield/internal/metrics"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/features"
)

const (
	predictPath    = "/predict"
	requestTimeout = 3 * time.Second
	cacheTTL       = 2 * time.Minute
	amountBucket   = 1000

	// CircuitStateKey is where the worker publishes its breaker state
	// so the API server's health endpoint can report it. The TTL keeps
	// a dead worker from pinning a stale state forever.
	CircuitStateKey = "ml:circuit"
	circuitStateTTL = 24 * time.Hour

	// FallbackVersion marks a neutral prediction produced without a
	// model call.
	FallbackVersion = "fallback"
)

// Client scores an order against the remote model. Predict never
// returns an error: any failure yields the neutral fallback so scoring
// can proceed on the other two layers.
type Client interface {
	Predict(ctx context.Context, order PredictInput) *Prediction
	CircuitState() CircuitState
}

// PredictInput identifies one order's vector for the model.
type PredictInput struct {
	PhoneNormalized string
	Amount          float64
	PlacedAt        time.Time
	Features        *features.OrderFeatures
}

type client struct {
	baseURL string
	http    *http.Client
	cache   repositories.CacheRepository
	breaker *Breaker
	metrics metrics.Collector
	logger  *zap.Logger
}

// NewClient builds the model client. cache may be nil, in which case
// every call goes to the model service.
func NewClient(baseURL string, cache repositories.CacheRepository, collector metrics.Collector, logger *zap.Logger) Client {
	if baseURL == "" {
		panic("model service URL is required")
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		cache:   cache,
		metrics: collector,
		logger:  logger,
	}
	cfg := DefaultBreakerConfig()
	cfg.OnStateChange = func(from, to CircuitState) {
		collector.RecordCircuitState(to.String())
		c.publishCircuitState(to)
		logger.Warn("model circuit state changed",
			zap.String("from", from.String()), zap.String("to", to.String()))
	}
	c.breaker = NewBreaker(cfg)
	c.publishCircuitState(StateClosed)
	return c
}

func (c *client) publishCircuitState(state CircuitState) {
	if c.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.cache.Set(ctx, CircuitStateKey, state.String(), circuitStateTTL); err != nil {
		c.logger.Warn("circuit state publish failed", zap.Error(err))
	}
}

// Fallback is the neutral prediction used when the model is
// unreachable or the circuit is open.
func Fallback() *Prediction {
	return &Prediction{
		Score:        50,
		Probability:  0.5,
		Confidence:   0,
		ModelVersion: FallbackVersion,
		Fallback:     true,
	}
}

func (c *client) CircuitState() CircuitState {
	return c.breaker.State()
}

// Predict returns the model's score for one order, consulting the
// short-TTL cache first. Cache key granularity is (phone, amount
// bucket): two near-identical orders from the same phone share a
// prediction for a couple of minutes.
func (c *client) Predict(ctx context.Context, in PredictInput) *Prediction {
	key := c.cacheKey(in)
	if c.cache != nil {
		var cached Prediction
		if err := c.cache.Get(ctx, key, &cached); err == nil {
			c.metrics.RecordCacheHit("ml_prediction")
			return &cached
		}
		c.metrics.RecordCacheMiss("ml_prediction")
	}

	var pred *Prediction
	err := c.breaker.Execute(func() error {
		p, err := c.call(ctx, in)
		if err != nil {
			return err
		}
		pred = p
		return nil
	})
	if err != nil {
		c.metrics.RecordError("ml_predict", "dependency")
		c.logger.Warn("model prediction failed, using fallback",
			zap.String("phone", in.PhoneNormalized), zap.Error(err))
		return Fallback()
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, pred, cacheTTL); err != nil {
			c.logger.Warn("model prediction cache write failed", zap.Error(err))
		}
	}
	return pred
}

func (c *client) call(ctx context.Context, in PredictInput) (*Prediction, error) {
	body, err := json.Marshal(predictRequest{
		Features: mapFeatures(in.Features.ToMap(), in.PlacedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("encode prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model service returned %d: %s", resp.StatusCode, data)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}

	return &Prediction{
		Score:        clampScore(out.RTOProbability * 100),
		Probability:  out.RTOProbability,
		Confidence:   out.Confidence,
		ModelVersion: out.ModelVersion,
		TopFactors:   out.TopFactors,
	}, nil
}

func (c *client) cacheKey(in PredictInput) string {
	return fmt.Sprintf("ml:pred:%s:%d", in.PhoneNormalized, int(in.Amount)/amountBucket)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
