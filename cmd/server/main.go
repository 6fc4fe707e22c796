// Package main provides the HTTP server entry point for the RDS cluster scheduler.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/app"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/config"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/httputil"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	logger := config.NewLogger()

	if err := serve(logger); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func serve(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		return errors.Wrap(err, "config init failed")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "app init failed")
	}
	logStartup(logger, cfg)

	port := cfg.Port
	if port == "" {
		port = constants.DefaultHTTPPort
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      httputil.NewServeMux(a, logger),
		ReadTimeout:  constants.DefaultReadTimeout,
		WriteTimeout: constants.DefaultWriteTimeout,
		IdleTimeout:  constants.DefaultIdleTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		logger.Info("server is shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	tls := cfg.TLSEnabled && cfg.TLSCertPath != "" && cfg.TLSKeyPath != ""
	logger.Info("server starting", slog.String("port", port), slog.Bool("tls", tls))

	if tls {
		err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	return nil
}

// logStartup records the settings every run of this process will use.
func logStartup(logger *slog.Logger, cfg *config.Config) {
	logger.Info("scheduler configured",
		slog.String("tag_key", cfg.ScheduleTagKey),
		slog.String("regions", strings.Join(cfg.RunRegions(), ",")),
		slog.Int("max_concurrency", cfg.MaxConcurrency),
		slog.Int("max_attempts", cfg.MaxAttempts),
		slog.Duration("action_timeout", cfg.ActionTimeout),
		slog.Duration("run_timeout", cfg.RunTimeout),
		slog.Float64("api_rate_limit", cfg.APIRateLimit),
	)

	archive := "memory"
	if cfg.DataDir != "" {
		archive = cfg.DataDir
	}
	logger.Info("integrations",
		slog.Bool("metrics", cfg.MetricsEnabled),
		slog.String("metrics_path", cfg.BasePath+"/metrics"),
		slog.Bool("slack", cfg.SlackEnabled),
		slog.String("archive", archive),
		slog.Bool("demo_mode", cfg.DemoMode),
	)
}
