// Package main is the scoring worker entry point. It drains the queue,
// runs the recovery sweep and the outcome-timeout sweep, and exposes
// worker metrics.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"rtoshield/internal/config"
	"rtoshield/internal/metrics"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/features"
	"rtoshield/internal/services/fraud"
	"rtoshield/internal/services/ml"
	"rtoshield/internal/services/phone"
	"rtoshield/internal/services/rules"
	"rtoshield/internal/services/scoring"
	"rtoshield/internal/services/statistical"
	"rtoshield/internal/services/training"

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

	refdataDir := config.GetEnv("REFDATA_DIR", "refdata")
	carriers, err := config.LoadCarrierTable(filepath.Join(refdataDir, "carriers.yaml"))
	if err != nil {
		logger.Fatal("carrier table load failed", zap.Error(err))
	}
	cities, err := config.LoadCityTiers(filepath.Join(refdataDir, "cities.yaml"))
	if err != nil {
		logger.Fatal("city tiers load failed", zap.Error(err))
	}
	weights, err := config.LoadStatWeights(filepath.Join(refdataDir, "weights.yaml"))
	if err != nil {
		logger.Fatal("statistical weights load failed", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(registry)
	go serveMetrics(registry, logger)

	// Repositories
	cache := repositories.NewRedisCacheRepository(repositories.RedisClient)
	orderRepo := repositories.NewOrderRepository(repositories.DB)
	tenantRepo := repositories.NewTenantRepository(repositories.DB)
	scoreRepo := repositories.NewScoreRepository(repositories.DB)
	phoneRepo := repositories.NewPhoneRepository(repositories.DB)
	statsRepo := repositories.NewStatsRepository(repositories.DB)
	blacklistRepo := repositories.NewBlacklistRepository(repositories.DB)
	trainingRepo := repositories.NewTrainingEventRepository(repositories.DB)

	// Scoring layers
	extractor := features.NewService(orderRepo, phoneRepo, statsRepo, blacklistRepo, cache, phone.NewNormalizer(carriers), cities, collector, logger)
	ruleEngine := rules.NewEngine()
	statEngine := statistical.NewEngine(weights)
	mlClient := ml.NewClient(config.GetEnv("ML_SERVICE_URL", "http://localhost:8000"), cache, collector, logger)

	engine := fraud.NewEngine(extractor, ruleEngine, statEngine, mlClient, scoreRepo, orderRepo, phoneRepo, statsRepo, collector, logger)

	queue := scoring.NewRedisQueue(repositories.RedisClient, collector, logger)
	poolCfg := scoring.DefaultPoolConfig()
	poolCfg.Concurrency = config.GetIntEnv("WORKER_CONCURRENCY", poolCfg.Concurrency)
	poolCfg.RatePerSecond = config.GetFloatEnv("WORKER_RATE_LIMIT", poolCfg.RatePerSecond)
	poolCfg.Burst = config.GetIntEnv("WORKER_RATE_BURST", poolCfg.Burst)
	pool := scoring.NewPool(queue, orderRepo, tenantRepo, engine, poolCfg, collector, logger)

	sweeper := scoring.NewSweeper(orderRepo, tenantRepo, queue, scoring.DefaultSweepConfig(), logger)

	recorderCfg := training.DefaultConfig()
	recorderCfg.PresumeDeliveredAfter = config.GetDurationEnv("PRESUME_DELIVERED_AFTER", recorderCfg.PresumeDeliveredAfter)
	recorder := training.NewRecorder(orderRepo, scoreRepo, trainingRepo, phoneRepo, statsRepo, recorderCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		pool.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		recorder.Run(ctx)
	}()

	logger.Info("worker started", zap.Int("concurrency", poolCfg.Concurrency))
	wg.Wait()

	// Workers have stopped; flush the pending aggregate updates.
	engine.Close()
	logger.Info("worker stopped")
}

func serveMetrics(registry *prometheus.Registry, logger *zap.Logger) {
	addr := ":" + config.GetEnv("WORKER_METRICS_PORT", "9092")
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
