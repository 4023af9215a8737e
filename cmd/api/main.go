package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tallyops/settlebook/internal/auth"
	infraRedis "github.com/tallyops/settlebook/internal/infra/redis"
	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/internal/store/filestore"
	"github.com/tallyops/settlebook/internal/store/postgres"
	"github.com/tallyops/settlebook/internal/transport/httpapi"
	"github.com/tallyops/settlebook/internal/transport/httpapi/handler"
	"github.com/tallyops/settlebook/internal/transport/httpapi/middleware"
	"github.com/tallyops/settlebook/pkg/config"
	"github.com/tallyops/settlebook/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting settlebook API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreDriver,
	)

	loc := cfg.Location()

	// Select the ledger store backend
	var (
		store  ledger.Store
		pinger handler.StorePinger
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: cfg.DatabaseURL})
		if err != nil {
			log.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = postgres.NewStore(db.Pool)
		pinger = db
		log.Info("Database connection established")
	case config.StoreDriverFile:
		fs, err := filestore.Open(cfg.DataDir)
		if err != nil {
			log.Error("Failed to open data directory", "dir", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		store = fs
		log.Info("File store opened", "dir", cfg.DataDir)
	default:
		log.Error("Unknown store driver", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	// Optional Redis summary cache
	var summaryCache handler.SummaryCache
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		summaryCache = infraRedis.NewSummaryCache(redisClient, log)
		log.Info("Redis connection established")
	} else {
		log.Info("REDIS_URL not configured, summary cache disabled")
	}

	// Initialize services
	ledgerSvc := ledger.NewService(store, log, cfg.LockWait)
	policy := auth.NewPolicy(store, cfg.OwnerID, log)
	tokens := auth.NewTokenService(cfg.SessionSecret)

	// Determine allowed origins for CORS
	allowedOrigins := []string{"http://localhost:5173"}
	if cfg.IsProduction() {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = []string{origins}
		}
	}

	// Create HTTP router
	routerCfg := httpapi.Config{
		Logger:           log,
		AllowedOrigins:   allowedOrigins,
		LedgerHandler:    handler.NewLedgerHandler(ledgerSvc, summaryCache, loc, log),
		ConfigHandler:    handler.NewConfigHandler(ledgerSvc, log),
		AdminHandler:     handler.NewAdminHandler(policy, log),
		AuthHandler:      handler.NewAuthHandler(tokens, log),
		DashboardHandler: handler.NewDashboardHandler(ledgerSvc, summaryCache, loc, log),
		HealthHandler:    handler.NewHealthHandler(pinger),
		OperatorAuth:     middleware.OperatorAuth(policy),
		DashboardAuth:    middleware.DashboardAuth(tokens),
	}
	r := httpapi.NewRouter(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
