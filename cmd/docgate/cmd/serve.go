package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/docgate/internal/config"
	"github.com/inkwell-ai/docgate/internal/index"
	"github.com/inkwell-ai/docgate/internal/logging"
	"github.com/inkwell-ai/docgate/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP index gateway",
		Long: `Start the document index gateway. Creates any missing indices on
startup and serves the document and search API until interrupted.

Examples:
  docgate serve
  docgate serve --config /etc/docgate/docgate.yaml
  DOCGATE_ENGINE_BACKEND=sqlite docgate serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(log)

	engine, err := index.NewEngine(index.EngineConfig{
		Backend: cfg.Engine.Backend,
		DataDir: cfg.Engine.DataDir,
	})
	if err != nil {
		return err
	}

	gw, err := index.New(index.Options{
		Engine:   engine,
		Logger:   log,
		MaxLimit: cfg.Search.MaxLimit,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			log.Error("gateway close failed", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report := gw.Bootstrap(ctx)
	if !report.Healthy() {
		// Degraded startup still serves the healthy indices; the
		// health endpoint reports the failures.
		log.Error("bootstrap finished with failed indices",
			slog.String("error", report.Err().Error()))
	}

	srv, err := server.New(server.Options{
		Gateway:             gw,
		Logger:              log,
		DefaultLimit:        cfg.Search.DefaultLimit,
		RateRPS:             cfg.Server.RateRPS,
		RateBurst:           cfg.Server.RateBurst,
		RateClientCacheSize: cfg.Server.RateClientCacheSize,
	})
	if err != nil {
		return err
	}
	srv.SetReport(report)

	if w := watchConfig(cfg, log); w != nil {
		defer func() { _ = w.Close() }()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening",
			slog.String("addr", cfg.Addr()),
			slog.String("backend", cfg.Engine.Backend),
			slog.String("data_dir", cfg.Engine.DataDir))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// watchConfig starts the config file watcher when a config file exists.
// Only the log level applies live; engine changes need a restart.
func watchConfig(current *config.Config, log *slog.Logger) *config.Watcher {
	path := configPath
	if path == "" {
		path = config.ProjectConfigName
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	engine := current.Engine
	w, err := config.Watch(path, log, func(next *config.Config) {
		logging.SetLevel(next.Logging.Level)
		if next.Engine != engine {
			log.Warn("engine configuration changed on disk, restart required to apply",
				slog.String("backend", next.Engine.Backend),
				slog.String("data_dir", next.Engine.DataDir))
		}
	})
	if err != nil {
		log.Warn("config watcher unavailable", slog.String("error", err.Error()))
		return nil
	}
	return w
}

// shutdownTimeout parses the configured graceful shutdown window.
func shutdownTimeout(cfg *config.Config) time.Duration {
	d, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
