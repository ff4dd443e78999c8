// Package routes wires repositories, services and handlers into the
// fiber application and declares every route group with its middleware.
package routes

import (
	"fmt"
	"path/filepath"

	"rtoshield/internal/config"
	"rtoshield/internal/handlers"
	"rtoshield/internal/metrics"
	"rtoshield/internal/middleware"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/phone"
	"rtoshield/internal/services/platform"
	"rtoshield/internal/services/scoring"
	"rtoshield/internal/services/training"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupRoutes configures all application routes. Repositories come from
// the initialized global connections; reference data is loaded from the
// directory named by REFDATA_DIR.
func SetupRoutes(app *fiber.App, collector metrics.Collector, logger *zap.Logger) error {
	refdataDir := config.GetEnv("REFDATA_DIR", "refdata")
	carriers, err := config.LoadCarrierTable(filepath.Join(refdataDir, "carriers.yaml"))
	if err != nil {
		return fmt.Errorf("load carrier table: %w", err)
	}

	// Repositories
	cache := repositories.NewRedisCacheRepository(repositories.RedisClient)
	orderRepo := repositories.NewOrderRepository(repositories.DB)
	tenantRepo := repositories.NewTenantRepository(repositories.DB)
	scoreRepo := repositories.NewScoreRepository(repositories.DB)
	phoneRepo := repositories.NewPhoneRepository(repositories.DB)
	statsRepo := repositories.NewStatsRepository(repositories.DB)
	blacklistRepo := repositories.NewBlacklistRepository(repositories.DB)
	trainingRepo := repositories.NewTrainingEventRepository(repositories.DB)

	// Services
	normalizer := phone.NewNormalizer(carriers)
	registry := platform.DefaultRegistry()
	queue := scoring.NewRedisQueue(repositories.RedisClient, collector, logger)
	recorder := training.NewRecorder(orderRepo, scoreRepo, trainingRepo, phoneRepo, statsRepo, training.DefaultConfig(), logger)

	// Middleware
	tenantAuth := middleware.NewTenantAuth(tenantRepo, cache, logger)
	staffAuth := middleware.NewStaffAuth(config.GetEnv("JWT_SECRET", "change-me"), logger)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(registry, normalizer, orderRepo, queue, collector, logger)
	orderHandler := handlers.NewOrderHandler(orderRepo, scoreRepo, recorder, logger)
	adminHandler := handlers.NewAdminHandler(queue, blacklistRepo, recorder, normalizer, logger)
	healthHandler := handlers.NewHealthHandler(queue, nil, cache)

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api")

	// Tenant surface, authenticated by API key. Webhooks additionally
	// carry the per-platform signature checked inside the handler.
	webhooks := api.Group("/webhooks", tenantAuth.Handler)
	webhooks.Post("/:platform", webhookHandler.Receive)

	orders := api.Group("/orders", tenantAuth.Handler)
	orders.Get("/:id/score", orderHandler.GetScore)
	orders.Post("/:id/decision", orderHandler.Decide)
	orders.Post("/:id/outcome", orderHandler.RecordOutcome)

	// Staff surface
	admin := api.Group("/admin", staffAuth.Handler, staffAuth.RequireAdmin)
	admin.Get("/dlq", adminHandler.ListDeadLetters)
	admin.Post("/dlq/replay", adminHandler.ReplayDeadLetter)
	admin.Get("/blacklist", adminHandler.ListBlacklist)
	admin.Post("/blacklist", adminHandler.CreateBlacklistEntry)
	admin.Delete("/blacklist/:id", adminHandler.DeleteBlacklistEntry)
	admin.Get("/training/readiness", adminHandler.TrainingReadiness)
	admin.Post("/training/consume", adminHandler.ConsumeTrainingEvents)

	return nil
}
