package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/adapters/mq/worker"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/adapters/repository"
	app "github.com/maxaitel/overwatch-server-discord-bot/internal/app"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/config"
	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/rating"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/logger"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Select the store backend. The in-memory store is the service default.
	var store repository.Store
	if cfg.StoreBackend == "postgres" {
		store, err = repository.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			os.Stderr.WriteString("failed to connect to postgres: " + err.Error() + "\n")
			return
		}
		log.Info(ctx, "using postgres store")
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithPlayersPerMatch(cfg.PlayersPerMatch),
		app.WithEnforceRoles(cfg.EnforceRoles),
		app.WithRoleQuota(cfg.RoleQuota()),
		app.WithRatingConfig(rating.New(
			rating.WithKFactor(cfg.KFactor),
			rating.WithCalibration(cfg.CalibrationGames, cfg.CalibrationMultiplier),
		)),
		app.WithDefaultRating(cfg.DefaultRating),
		app.WithPoolCapacity(cfg.PoolCapacity),
	}
	if store != nil {
		opts = append(opts, app.WithStore(store))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Background matchmaker: the single goroutine that forms matches.
	matchmaker := worker.NewMatchmaker(svc, cfg.PlayersPerMatch,
		worker.WithTickInterval(time.Duration(cfg.MatchmakerIntervalMS)*time.Millisecond),
		worker.WithBenignErrors(app.ErrPoolTooSmall),
	)
	go matchmaker.Run(ctx)

	// HTTP mux: observability endpoints only.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := matchmaker.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "matchmaker shutdown failed", logger.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}
