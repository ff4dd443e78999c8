// Package main is the ingestion API entry point. It owns the webhook,
// reporting and admin HTTP surface; scoring itself runs in the worker
// binary.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rtoshield/internal/config"
	"rtoshield/internal/metrics"
	"rtoshield/internal/repositories"
	"rtoshield/internal/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()

	logger := newLogger()
	defer logger.Sync()

	if err := repositories.InitDB(); err != nil {
		logger.Fatal("database initialization failed", zap.Error(err))
	}
	defer repositories.CloseDB()

	sqlDB, err := repositories.DB.DB()
	if err != nil {
		logger.Fatal("database handle unavailable", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(config.GetIntEnv("DB_MAX_IDLE_CONNS", 10))
	sqlDB.SetMaxOpenConns(config.GetIntEnv("DB_MAX_OPEN_CONNS", 100))
	sqlDB.SetConnMaxLifetime(config.GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour))
	sqlDB.SetConnMaxIdleTime(config.GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute))

	registry := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(registry)
	go serveMetrics(registry, logger)

	app := fiber.New(fiber.Config{
		AppName:   "rtoshield",
		BodyLimit: 1 << 20,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: config.GetEnv("CORS_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowMethods: "GET,POST,DELETE",
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Webhook bursts are expected; the limit is per source IP and only
	// there to blunt runaway integrations.
	app.Use("/api/webhooks", limiter.New(limiter.Config{
		Max:        config.GetIntEnv("WEBHOOK_RATE_LIMIT", 300),
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests",
			})
		},
	}))

	if err := routes.SetupRoutes(app, collector, logger); err != nil {
		logger.Fatal("route setup failed", zap.Error(err))
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	addr := ":" + config.GetEnv("PORT", "3000")
	logger.Info("api listening", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func serveMetrics(registry *prometheus.Registry, logger *zap.Logger) {
	addr := ":" + config.GetEnv("METRICS_PORT", "9091")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener stopped", zap.Error(err))
	}
}

func newLogger() *zap.Logger {
	if config.IsProduction() {
		logger, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}
