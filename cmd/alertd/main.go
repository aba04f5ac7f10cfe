package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"machine-alert-backend/config"
	"machine-alert-backend/internal/api"
	"machine-alert-backend/internal/authz"
	"machine-alert-backend/internal/calls"
	"machine-alert-backend/internal/clock"
	"machine-alert-backend/internal/db"
	"machine-alert-backend/internal/logger"
	"machine-alert-backend/internal/scheduler"
	"machine-alert-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.Fatalf("failed to set up logging: %v", err)
	}
	log.Infof("configuration loaded successfully from %s", configPath)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}
	log.Info("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real{}
	callStore := store.NewGormStore(gormDB)
	machines := store.NewMachineLookup(gormDB)
	cachedMachines := store.NewCachedMachines(machines, cfg.Calls.MachineCacheTTL)

	engine := calls.NewEngine(callStore, machines, clk, calls.EngineOptions{
		Location:       cfg.Calls.Location,
		Parallelism:    cfg.Sweeper.Parallelism,
		PerCallTimeout: cfg.Sweeper.PerCallTimeout,
		Logger:         log,
	})
	query := calls.NewQueryService(callStore, cachedMachines, clk, cfg.Calls.DefaultPageSize, cfg.Calls.MaxPageSize)

	schedOpts := scheduler.Options{
		Interval:    cfg.Sweeper.Interval,
		TickTimeout: cfg.Sweeper.TickTimeout,
		Clock:       clk,
		Logger:      log,
	}
	if cfg.Redis.Addr != "" {
		rdb, err := scheduler.OpenRedis(ctx, scheduler.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close()

		locker, err := scheduler.NewRedisLocker(rdb, cfg.Redis.LockKey, cfg.Redis.LockTTL)
		if err != nil {
			log.Fatalf("failed to create sweep lock: %v", err)
		}
		schedOpts.Locker = locker
		log.WithField("key", cfg.Redis.LockKey).Info("sweep lock shared through redis")
	}

	sched, err := scheduler.New(engine, schedOpts)
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	if cfg.Sweeper.Enabled {
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
	} else {
		log.Warn("Sweeper is disabled. Expired calls are only persisted on demand.")
	}

	verifier, err := authz.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		log.Fatalf("failed to create token verifier: %v", err)
	}

	// Initialize router
	handler := api.NewHandler(engine, query, sched, sqlDB, cfg.Calls.Location)
	router := api.NewRouter(handler, api.RouterOptions{
		Verifier:        verifier,
		Clock:           clk,
		Logger:          log,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	log.Info("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server Shutdown: %v", err)
	}
	sched.Stop()

	log.Info("Server gracefully stopped")
}
