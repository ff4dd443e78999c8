package ml

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rtoshield/internal/services/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInput() PredictInput {
	return PredictInput{
		PhoneNormalized: "+923001234567",
		Amount:          4500,
		PlacedAt:        time.Date(2026, 2, 3, 14, 0, 0, 0, time.UTC),
		Features: &features.OrderFeatures{
			OrderAmount: 4500,
			ItemCount:   2,
			IsCOD:       true,
			OrderHour:   14,
		},
	}
}

func TestPredict_Success(t *testing.T) {
	var gotFeatures map[string]float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, predictPath, r.URL.Path)
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotFeatures = req.Features
		json.NewEncoder(w).Encode(predictResponse{
			RTOProbability: 0.73,
			Confidence:     0.46,
			ModelVersion:   "3.2.1",
			TopFactors: []Factor{
				{Feature: "customer_rto_rate", Value: 0.8, Impact: 0.31, Direction: "increases_risk"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil, nil)
	pred := c.Predict(context.Background(), testInput())

	assert.InDelta(t, 73.0, pred.Score, 0.001)
	assert.Equal(t, "3.2.1", pred.ModelVersion)
	assert.False(t, pred.Fallback)
	require.Len(t, pred.TopFactors, 1)

	// The wire vector must be the complete contract, never partial.
	assert.Len(t, gotFeatures, len(contractFeatures))
	assert.Equal(t, 4500.0, gotFeatures["order_amount"])
	assert.Equal(t, 2.0, gotFeatures["order_item_count"])
	assert.Equal(t, 1.0, gotFeatures["is_cod"])
	assert.Equal(t, 0.0, gotFeatures["is_prepaid"])
}

func TestPredict_ServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil, nil)
	pred := c.Predict(context.Background(), testInput())

	assert.True(t, pred.Fallback)
	assert.Equal(t, 50.0, pred.Score)
	assert.Zero(t, pred.Confidence)
	assert.Equal(t, FallbackVersion, pred.ModelVersion)
}

func TestPredict_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil, nil)
	threshold := DefaultBreakerConfig().FailureThreshold

	for i := 0; i < threshold; i++ {
		pred := c.Predict(context.Background(), testInput())
		assert.True(t, pred.Fallback)
	}
	assert.Equal(t, StateOpen, c.CircuitState())

	// Further calls short-circuit without touching the network.
	before := calls.Load()
	pred := c.Predict(context.Background(), testInput())
	assert.True(t, pred.Fallback)
	assert.Equal(t, before, calls.Load())
}

// memCache is a minimal in-memory CacheRepository for observing what
// the client publishes.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memCache) SetIfAbsent(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	_, exists := m.data[key]
	m.mu.Unlock()
	if exists {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memCache) Increment(context.Context, string) (int64, error) { return 0, nil }

func (m *memCache) Expire(context.Context, string, time.Duration) error { return nil }

func TestCircuitStatePublishedToCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	cache := newMemCache()
	c := NewClient(srv.URL, cache, nil, nil)

	var state string
	require.NoError(t, cache.Get(context.Background(), CircuitStateKey, &state))
	assert.Equal(t, "closed", state)

	for i := 0; i < DefaultBreakerConfig().FailureThreshold; i++ {
		c.Predict(context.Background(), testInput())
	}
	require.Equal(t, StateOpen, c.CircuitState())

	require.NoError(t, cache.Get(context.Background(), CircuitStateKey, &state))
	assert.Equal(t, "open", state)
}

func TestPredict_UnreachableHostFallsBack(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil, nil, nil)
	pred := c.Predict(context.Background(), testInput())
	assert.True(t, pred.Fallback)
	assert.Equal(t, 50.0, pred.Score)
}
