package handlers

import (
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/ml"
	"rtoshield/internal/services/scoring"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports liveness of the pipeline's dependencies. The
// breaker lives in the worker process, so without a local ml.Client the
// circuit state is read from the cache key the worker publishes to.
type HealthHandler struct {
	queue scoring.Queue
	ml    ml.Client
	cache repositories.CacheRepository
}

func NewHealthHandler(queue scoring.Queue, mlClient ml.Client, cache repositories.CacheRepository) *HealthHandler {
	return &HealthHandler{queue: queue, ml: mlClient, cache: cache}
}

// Check handles GET /health.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	database := "connected"
	if sqlDB, err := repositories.DB.DB(); err != nil || sqlDB.PingContext(c.Context()) != nil {
		database = "unreachable"
	}

	redisState := "connected"
	var queueDepth int64
	if repositories.RedisClient == nil || repositories.RedisClient.Ping(c.Context()).Err() != nil {
		redisState = "unreachable"
	} else if h.queue != nil {
		queueDepth, _ = h.queue.Depth(c.Context())
	}

	mlState := "unknown"
	if h.ml != nil {
		mlState = h.ml.CircuitState().String()
	} else if h.cache != nil {
		var published string
		if err := h.cache.Get(c.Context(), ml.CircuitStateKey, &published); err == nil && published != "" {
			mlState = published
		}
	}

	status := "ok"
	if database == "unreachable" {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"database":    database,
			"redis":       redisState,
			"ml_circuit":  mlState,
			"queue_depth": queueDepth,
		},
	})
}
