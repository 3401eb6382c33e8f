package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/app"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/handler"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/infrastructure/logger"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/infrastructure/redis"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/observability/tracing"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/realtime"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/reliability/retry"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/repository"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/repository/memstore"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/worker"
	"github.com/bastos77-sc/parceiro-tracker-code-link/pkg/config"
	"github.com/bastos77-sc/parceiro-tracker-code-link/pkg/database"
)

// authRatePerMinute bounds sign in and reset attempts per client address
const authRatePerMinute = 10

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting TrackPartner server",
		slog.String("environment", cfg.Environment),
		slog.String("store", cfg.StoreDriver),
	)
	if cfg.JWTSecret == "" {
		if cfg.Environment == "production" {
			log.Error("JWT_SECRET is required in production")
			os.Exit(1)
		}
		log.Warn("JWT_SECRET not set, using the development secret")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, "trackpartner", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// 4. Initialize stores
	stores, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize stores", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStores()

	// 5. Initialize services, handlers and middleware
	application := app.New(stores, app.Options{
		JWTSecret:          cfg.JWTSecret,
		TokenTTL:           cfg.TokenTTL,
		ResetTokenTTL:      cfg.ResetTokenTTL,
		PasswordCost:       cfg.PasswordCost,
		CodeMaxAttempts:    cfg.CodeMaxAttempts,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AuthRatePerMinute:  authRatePerMinute,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
	}, log)
	defer application.Close()

	// 6. Start stats worker in background
	statsWorker := worker.NewStatsWorker(stores.Profiles, stores.Relationships, stores.Locations, log, cfg.StatsInterval)
	go statsWorker.Start(ctx)

	// 7. Start HTTP server. WriteTimeout stays zero for the websocket stream.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           application.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop stats worker
	log.Info("server stopped")
}

// openStores builds the Postgres + Redis stores, or the in-memory ones for
// STORE_DRIVER=memory
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (app.Stores, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store; data is lost on restart")
		return app.MemoryStores(memstore.New(), realtime.NewHub(64, log)), func() {}, nil
	}

	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		Connect: &retry.Config{
			MaxAttempts:       10,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2,
		},
	}, log)
	if err != nil {
		return app.Stores{}, nil, err
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return app.Stores{}, nil, err
	}

	db := pool.GetDB()
	stores := app.Stores{
		Identities:    repository.NewPostgresIdentityRepository(db, log),
		Profiles:      repository.NewPostgresProfileRepository(db, log),
		Relationships: repository.NewPostgresRelationshipRepository(db, log),
		Locations:     repository.NewPostgresLocationRepository(db, log),
		ResetTokens:   repository.NewRedisResetTokenRepository(redisClient),
		Sessions:      repository.NewRedisSessionRepository(redisClient),
		Notifier:      realtime.NewRedisNotifier(redisClient, log),
		Checks: map[string]handler.CheckFunc{
			"postgres": pool.Health,
			"redis":    redisClient.Ping,
		},
	}

	closeAll := func() {
		if err := redisClient.Close(); err != nil {
			log.Warn("failed to close redis", slog.String("error", err.Error()))
		}
		if err := pool.Close(); err != nil {
			log.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}
	return stores, closeAll, nil
}
