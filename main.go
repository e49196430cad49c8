package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/floguru/antigravity/go/cognition/internal/cognition"
	"github.com/floguru/antigravity/go/cognition/internal/config"
	"github.com/floguru/antigravity/go/cognition/internal/db"
	"github.com/floguru/antigravity/go/cognition/internal/healing"
	"github.com/floguru/antigravity/go/cognition/internal/health"
	"github.com/floguru/antigravity/go/cognition/internal/httpapi"
	"github.com/floguru/antigravity/go/cognition/internal/metalearning"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Database client
	dbClient, err := db.NewClient(&db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConnections:  cfg.Database.MaxConnections,
		IdleConnections: cfg.Database.IdleConnections,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database client", zap.Error(err))
	}
	defer dbClient.Close()

	if cfg.Database.ApplySchema {
		if err := dbClient.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to apply database schema", zap.Error(err))
		}
	}

	// Redis client for cross-instance cache invalidation. Optional:
	// a single instance runs fine without it.
	var redisClient *redis.Client
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, matrix broadcasts disabled", zap.Error(err))
		rc.Close()
	} else {
		redisClient = rc
		defer redisClient.Close()
	}

	// Meta-learning confidence store
	store := metalearning.NewStore(dbClient.Wrapper(), redisClient, metalearning.Config{
		RefreshInterval: cfg.MetaLearning.RefreshInterval,
		RecomputeMinGap: cfg.MetaLearning.RecomputeMinGap,
	}, logger)
	store.Start(ctx)
	defer store.Close()
	go store.RunRecomputeLoop(ctx, cfg.MetaLearning.RecomputeInterval)

	// Threshold optimizer and decision engine. Learning state persisted
	// by an earlier run wins over the config seed.
	stateStore := cognition.NewPostgresStateStore(dbClient.Wrapper())

	seed := cognition.DecisionThresholds{
		SkillConfidence: cfg.Cognition.Thresholds.SkillConfidence,
		ToolNecessity:   cfg.Cognition.Thresholds.ToolNecessity,
		GuidanceRisk:    cfg.Cognition.Thresholds.GuidanceRisk,
		HybridBalance:   cfg.Cognition.Thresholds.HybridBalance,
	}
	if saved, err := stateStore.LoadThresholds(ctx); err != nil {
		logger.Warn("Persisted thresholds unavailable, using config seed", zap.Error(err))
	} else if saved != nil {
		seed = *saved
		logger.Info("Decision thresholds restored from storage")
	}
	optimizer := cognition.NewThresholdOptimizer(seed, store, stateStore, cfg.Cognition.ReferenceSkills, logger)

	engine := cognition.NewEngine(cognition.EngineConfig{
		HistorySize:      cfg.Cognition.HistorySize,
		RecalibrateEvery: cfg.Cognition.RecalibrateEvery,
	}, optimizer, store, stateStore, logger)
	if err := engine.RestoreState(ctx); err != nil {
		logger.Warn("Persisted archetype stats unavailable, using priors", zap.Error(err))
	}

	// Healing cache and orchestrator. No fix generator wired here; the
	// cached-solution path still works, generation yields no fix.
	healingCache := healing.NewCache(dbClient.Wrapper(), logger)
	healer := healing.NewOrchestrator(healingCache, dbClient.Wrapper(), nil, logger)

	// Hot reload: operators can retune threshold seeds without a restart
	watcher, err := config.NewWatcher(cfgPath, logger)
	if err != nil {
		logger.Warn("Config watcher unavailable, hot reload disabled", zap.Error(err))
	} else {
		defer watcher.Close()
		watcher.OnChange(func(next *config.Config) {
			optimizer.Reset(cognition.DecisionThresholds{
				SkillConfidence: next.Cognition.Thresholds.SkillConfidence,
				ToolNecessity:   next.Cognition.Thresholds.ToolNecessity,
				GuidanceRisk:    next.Cognition.Thresholds.GuidanceRisk,
				HybridBalance:   next.Cognition.Thresholds.HybridBalance,
			})
			logger.Info("Decision thresholds reset from config")
		})
	}

	// Health manager and admin HTTP server
	hm := health.NewManager(logger)
	hm.Register(health.NewDatabaseChecker(dbClient.Wrapper()))
	if redisClient != nil {
		hm.Register(health.NewRedisChecker(redisClient))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", hm.Handler())
	mux.HandleFunc("/readiness", hm.Handler())
	httpapi.NewCognitionHandler(engine, store, healer, logger).RegisterRoutes(mux)

	adminServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.Metrics.Port))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("Cognition core started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin HTTP server shutdown failed", zap.Error(err))
	}
	cancel()
}
