package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/prudhvinik1/syncengine/internal/config"
	"github.com/prudhvinik1/syncengine/internal/database"
	"github.com/prudhvinik1/syncengine/internal/handlers"
	"github.com/prudhvinik1/syncengine/internal/logger"
	"github.com/prudhvinik1/syncengine/internal/observability"
	"github.com/prudhvinik1/syncengine/internal/repositories"
	"github.com/prudhvinik1/syncengine/internal/services"
	"github.com/prudhvinik1/syncengine/internal/workers"
)

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.NewLogger("server", cfg.Log)
	ctx = log.WithContext(ctx)

	telemetry, err := observability.Initialize(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Err(err).Msg("telemetry shutdown failed")
		}
	}()

	// Initialize database connections
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := database.OpenDB(pool)
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	metrics, err := observability.NewSyncMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	clock := services.SystemClock()
	store := repositories.NewStore(db)
	reads := store.Repositories()
	presence := repositories.NewRedisPresenceRepository(redisClient)
	sessions := repositories.NewRedisSessionRepository(redisClient)
	accounts := repositories.NewPostgresAccountRepository(db)

	conflicts := services.NewConflictManager(store, reads.Conflicts, clock)
	handler := handlers.NewHandler(&handlers.Services{
		Push:      services.NewPushCoordinator(store, conflicts, presence, clock, cfg.Sync, metrics),
		Pull:      services.NewPullCoordinator(store, reads, presence, clock, cfg.Sync, metrics),
		Devices:   services.NewDeviceRegistry(reads.Devices, presence, clock),
		Conflicts: conflicts,
		Auth:      services.NewAuthService(accounts, reads.Devices, sessions, clock, cfg.JWTSecret, cfg.JWTExpiry),
	}, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler.Init(),
	}

	background := workers.New(
		workers.NewRetentionWorker(store, reads.Log, clock, cfg.Retention, log),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.ServerPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return background.Run(gctx)
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("server stopped gracefully")
	return nil
}
