package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiverse/ytdlp_api/internal/cache"
	"github.com/fiverse/ytdlp_api/internal/cleanup"
	"github.com/fiverse/ytdlp_api/internal/config"
	"github.com/fiverse/ytdlp_api/internal/download"
	"github.com/fiverse/ytdlp_api/internal/flock"
	"github.com/fiverse/ytdlp_api/internal/http/rest"
	"github.com/fiverse/ytdlp_api/internal/logctx"
	"github.com/fiverse/ytdlp_api/internal/media"
	"github.com/fiverse/ytdlp_api/internal/notifier"
	"github.com/fiverse/ytdlp_api/internal/storage"
	"github.com/fiverse/ytdlp_api/internal/storage/sqlite"
	"github.com/fiverse/ytdlp_api/internal/telemetry"
	"github.com/fiverse/ytdlp_api/internal/ytdlp"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "ytdlp-api"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("ytdlp api starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: serviceName,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	history := sqlite.NewInstrumentedHistoryRepository(database, tel)

	// =========================================================================
	// Start Download Pipeline
	store := cache.NewStore(cfg.DownloadDir, logger)
	locks := flock.NewManager(cfg.DownloadDir)
	runner := ytdlp.New(cfg.YTDLPPath, cfg.IDTimeout, cfg.DownloadTimeout)
	resolver := media.NewResolver(runner)

	orchestrator := download.NewOrchestrator(
		cfg.DownloadDir,
		store,
		locks,
		resolver,
		runner,
		download.WithHistory(history),
		download.WithTelemetry(tel),
		download.WithWaitPolicy(cfg.WaitAttempts, cfg.WaitInterval),
	)
	defer orchestrator.Close()

	logger.Info("download pipeline ready",
		"download_dir", cfg.DownloadDir,
		"cache_entries", store.Len(),
		"retention", cfg.KeepDownloadedFor.String(),
	)

	// =========================================================================
	// Start Notification
	setupNotificationForDownloads(ctx, orchestrator, cfg)

	// =========================================================================
	// Start Cleanup
	if cfg.KeepDownloadedFor > 0 {
		setupCleanup(ctx, history, cfg)
	}

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, orchestrator, runner, store, tel, cfg)

	go func() {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// setupServer prepares the handlers and middlewares for the http rest server.
func setupServer(ctx context.Context, orchestrator *download.Orchestrator, runner *ytdlp.Runner, store *cache.Store, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	mediaHandler := rest.NewMediaHandler(orchestrator, runner, store, cfg.DownloadDir, cfg.PublicBaseURL)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", mediaHandler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, serviceName),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupNotificationForDownloads(ctx context.Context, orchestrator *download.Orchestrator, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}
	}

	go func() {
		for event := range orchestrator.OnDownloadFailed {
			logger.Error("download failed", "key", event.Key, "err", event.Err)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify("❌ Download failed for " + event.Key); notifyErr != nil {
				logger.Error("failed to send notification", "err", notifyErr)
			}
		}
	}()

	go func() {
		for event := range orchestrator.OnDownloadFinished {
			logger.Info("download finished", "key", event.Key, "filename", event.Filename)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify("✅ Download finished: " + event.Filename); notifyErr != nil {
				logger.Error("failed to send notification", "key", event.Key, "err", notifyErr)
			}
		}
	}()
}

func setupCleanup(ctx context.Context, history storage.HistoryReadRepository, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		cleanupTicker := time.NewTicker(cfg.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-cleanupTicker.C:
				tracked, err := history.GetDownloads()
				if err != nil {
					logger.Error("failed to get download history for cleanup", "err", err)

					continue
				}

				if err := cleanup.DeleteExpiredArtifacts(ctx, tracked, cfg.DownloadDir, cfg.KeepDownloadedFor); err != nil {
					logger.Error("failed to delete expired artifacts", "err", err)
				}
			}
		}
	}()
}
