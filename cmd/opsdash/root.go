package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/opsdash/internal/api"
	"github.com/hyperengineering/opsdash/internal/archive"
	"github.com/hyperengineering/opsdash/internal/chat"
	"github.com/hyperengineering/opsdash/internal/command"
	"github.com/hyperengineering/opsdash/internal/config"
	"github.com/hyperengineering/opsdash/internal/metrics"
	"github.com/hyperengineering/opsdash/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "opsdash",
	Short:        "Opsdash - operations dashboard for a small business",
	Long:         "Serves the operations dashboard API. Subcommands work on the local store without starting the server.",
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(metricsCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	slog.SetDefault(newLogger(cfg.Log))
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	st, err := openStore(cfg.Local)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "backend", cfg.Local.Backend)

	if cfg.Local.SeedDefaults {
		metrics.SeedDefaults(ctx, st, st.Now())
	}

	var (
		syncer      api.Syncer
		syncStatus  api.SyncStatus
		notifier    command.Notifier
		coordinator *worker.SyncCoordinator
	)
	pg, err := openRemote(ctx, cfg.Remote)
	if err != nil {
		st.Close()
		return err
	}
	if pg != nil {
		engine := newEngine(st, pg, cfg.Sync)
		syncer = engine
		slog.Info("remote initialized")
		if cfg.Sync.Enabled {
			coordinator = worker.NewSyncCoordinator(engine, cfg.Sync.UserID, time.Duration(cfg.Sync.Interval))
			syncStatus = coordinator
			notifier = coordinator
		}
	}

	var provider chat.Provider
	if cfg.Chat.APIKey != "" {
		provider = chat.NewOpenAI(cfg.Chat.APIKey, cfg.Chat.Model)
		slog.Info("chat provider initialized", "model", cfg.Chat.Model)
	}

	uploader, err := archive.NewUploader(cfg.Archive)
	if err != nil {
		closeAll(st, pg)
		return err
	}
	archiver := archive.NewArchiver(st, uploader, cfg.Sync.UserID)

	handler := api.NewHandler(st, api.Options{
		Syncer:        syncer,
		SyncStatus:    syncStatus,
		Chat:          provider,
		Archiver:      archiver,
		Notifier:      notifier,
		DefaultUserID: cfg.Sync.UserID,
	}, cfg.Auth.APIKey, Version)

	var limiter *api.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = api.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}
	router := api.NewRouter(handler, limiter)
	slog.Info("router initialized")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	var wg gosync.WaitGroup
	if coordinator != nil {
		startWorker(ctx, &wg, "sync", coordinator.Run)
	}
	if archiver.Enabled() && cfg.Archive.Interval > 0 {
		startWorker(ctx, &wg, "archive", worker.NewArchiveCoordinator(archiver, time.Duration(cfg.Archive.Interval)).Run)
	}

	go func() {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	closeAll(st, pg)

	slog.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger. Any format other than "text" logs JSON.
func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *gosync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker launched", "worker", name)
		fn(ctx)
		slog.Info("worker exited", "worker", name)
	}()
}
