// Package main runs the RDS cluster scheduler against an in-process mock RDS
// endpoint seeded with one cluster per engine mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/app"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/config"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/httputil"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/mock"
)

type demoFlags struct {
	port        int
	mockPort    int
	baseWait    int
	randomRange int
	fast        bool
	verbose     bool
	runAction   string
	tagKey      string
}

func main() {
	var f demoFlags
	flag.IntVar(&f.port, "port", 8080, "HTTP server port")
	flag.IntVar(&f.mockPort, "mock-port", 9080, "Mock RDS server port")
	flag.IntVar(&f.baseWait, "base-wait", 500, "Base wait time in ms for starting/stopping transitions")
	flag.IntVar(&f.randomRange, "random-range", 200, "Random additional wait in ms")
	flag.BoolVar(&f.fast, "fast", false, "Fast mode (minimal waits)")
	flag.BoolVar(&f.verbose, "verbose", false, "Verbose logging")
	flag.StringVar(&f.runAction, "run", "", "Run the scheduler once at startup (start or stop)")
	flag.StringVar(&f.tagKey, "tag-key", constants.DefaultScheduleTagKey, "Opt-in tag key for -run")
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(f, logger); err != nil {
		logger.Error("demo failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("all servers stopped")
}

func run(f demoFlags, logger *slog.Logger) error {
	// Bind both ports before anything else so a busy port fails fast
	mockLn, err := listen(f.mockPort, "-mock-port")
	if err != nil {
		return err
	}
	appLn, err := listen(f.port, "-port")
	if err != nil {
		mockLn.Close()
		return err
	}

	state := mock.NewState(mock.TimingConfig{
		BaseWaitMs:    f.baseWait,
		RandomRangeMs: f.randomRange,
		FastMode:      f.fast,
	})
	state.SeedDemoClusters()
	state.Start()
	defer state.Stop()

	mockEndpoint := fmt.Sprintf("http://localhost:%d", f.mockPort)
	for k, v := range map[string]string{
		"RDS_ENDPOINT":      mockEndpoint,
		"APP_MOCK_ENDPOINT": mockEndpoint,
		"APP_DEMO_MODE":     "true",
		"APP_PORT":          strconv.Itoa(f.port),
		"AWS_REGION":        "us-east-1",
		// The mock does not validate signatures
		"AWS_ACCESS_KEY_ID":     "demo-access-key",
		"AWS_SECRET_ACCESS_KEY": "demo-secret-key",
		"APP_ACTION_TIMEOUT":    "5",
		"APP_RUN_TIMEOUT":       "60",
	} {
		os.Setenv(k, v)
	}

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

	mockHTTP := &http.Server{Handler: mock.NewServer(state, logger, f.verbose)}
	appHTTP := &http.Server{
		Handler:      httputil.NewServeMux(a, logger),
		ReadTimeout:  constants.DefaultReadTimeout,
		WriteTimeout: constants.DefaultWriteTimeout,
		IdleTimeout:  constants.DefaultIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("mock RDS server starting", slog.String("addr", mockLn.Addr().String()))
		return serve(mockHTTP, mockLn, "mock server")
	})
	g.Go(func() error {
		logger.Info("main server starting", slog.String("addr", appLn.Addr().String()))
		return serve(appHTTP, appLn, "main server")
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdown(logger, mockHTTP, appHTTP)
		return nil
	})

	printBanner(f, state)

	if f.runAction != "" {
		result, runErr := a.Run(ctx, app.RunRequest{Action: f.runAction, ScheduleTagKey: f.tagKey})
		switch {
		case result == nil:
			logger.Error("startup run rejected", slog.String("error", runErr.Error()))
		default:
			logger.Info("startup run finished",
				slog.String("run_id", result.RunID),
				slog.Any("processed", result.Report.ProcessedClusters),
				slog.Any("skipped", result.Report.SkippedClusters),
				slog.Any("failed", result.Report.FailedClusters))
		}
	}

	return g.Wait()
}

func listen(port int, flagName string) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.Wrapf(err, "port %d is already in use; run 'make demo-stop' or pick another with %s", port, flagName)
	}
	return ln, nil
}

func serve(srv *http.Server, ln net.Listener, name string) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, name)
	}
	return nil
}

// shutdown drains both servers concurrently within the demo shutdown window.
func shutdown(logger *slog.Logger, servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DemoShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	for _, srv := range servers {
		g.Go(func() error {
			srv.SetKeepAlivesEnabled(false)
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("server shutdown error", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func printBanner(f demoFlags, state *mock.State) {
	fmt.Println()
	fmt.Println("==============================================")
	fmt.Println("  RDS Cluster Scheduler - DEMO MODE")
	fmt.Println("==============================================")
	fmt.Println()
	fmt.Printf("  Dashboard:   http://localhost:%d\n", f.port)
	fmt.Printf("  Mock RDS:    http://localhost:%d\n", f.mockPort)
	fmt.Printf("  Mock State:  http://localhost:%d/mock/state\n", f.mockPort)
	fmt.Println()
	fmt.Println("  Demo Clusters:")
	for _, c := range state.ListClusters() {
		fmt.Printf("    - %-20s %-18s %-13s %s\n", c.ID, c.Engine, c.EngineMode, c.Status)
	}
	fmt.Println()
	fmt.Println("  Try:")
	fmt.Printf("    curl -X POST localhost:%d/api/runs -d '{\"Action\":\"Stop\"}'\n", f.port)
	fmt.Printf("    curl 'localhost:%d/api/plan?action=start'\n", f.port)
	fmt.Println()
	if f.fast {
		fmt.Println("  Timing: FAST (minimal waits)")
	} else {
		fmt.Printf("  Timing: base %dms + 0-%dms random\n", f.baseWait, f.randomRange)
	}
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println("==============================================")
	fmt.Println()
}
