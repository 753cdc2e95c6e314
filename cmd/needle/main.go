// Command needle runs the A/B-test assignment and reporting server: a
// read-only HTTP API over a YAML-configured set of experiments, plus a
// background loop that periodically recomputes Bayesian evaluations from
// an analytics database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/needle-ab/needle/internal/config"
	"github.com/needle-ab/needle/internal/httpapi"
	"github.com/needle-ab/needle/internal/reload"
	"github.com/needle-ab/needle/internal/report"
)

const (
	defaultPort           = 1212
	defaultReportInterval = 30 * time.Second
	shutdownTimeout       = 10 * time.Second
)

func main() {
	var (
		port           int
		bind           string
		verbose        bool
		debug          bool
		redisAddr      string
		reportInterval time.Duration
	)

	flag.IntVar(&port, "port", defaultPort, "port on which to run the HTTP server")
	flag.StringVar(&bind, "bind", "::", "address to bind the HTTP server to")
	flag.BoolVar(&verbose, "verbose", false, "be particularly noisy")
	flag.BoolVar(&debug, "debug", false, "enable debug-level logging")
	flag.StringVar(&redisAddr, "redis-addr", "", "optional Redis address enabling cross-process reload fan-out")
	flag.DurationVar(&reportInterval, "report-interval", defaultReportInterval, "delay after one report run completes before the next is armed")
	flag.IntVar(&port, "p", defaultPort, "shorthand for -port")
	flag.StringVar(&bind, "b", "::", "shorthand for -bind")
	flag.BoolVar(&verbose, "v", false, "shorthand for -verbose")
	flag.BoolVar(&debug, "D", false, "shorthand for -debug")
	flag.Parse()

	dir := flag.Arg(0)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "needle: could not determine working directory:", err)
			os.Exit(1)
		}
		dir = wd
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(dir, port, bind, redisAddr, reportInterval, logger); err != nil {
		logger.Error("needle exited with error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(dir string, port int, bind, redisAddr string, reportInterval time.Duration, logger *slog.Logger) error {
	loader := config.NewLoader()
	initial, err := loader.Load(dir)
	if err != nil {
		return fmt.Errorf("loading initial configuration from %s: %w", dir, err)
	}

	runner := report.NewRunner(dir, reportInterval, logger)

	metrics := httpapi.NewMetrics(func() time.Duration {
		snap := runner.Snapshot()
		if snap == nil {
			return 0
		}
		return time.Since(snap.GeneratedAt)
	})
	runner.WithMetrics(metrics)

	var lastGood atomic.Pointer[config.Configuration]
	lastGood.Store(initial)

	currentConfig := func() *config.Configuration {
		cfg, err := loader.Load(dir)
		if err != nil {
			logger.Error("reload failed, serving stale configuration", slog.String("err", err.Error()))
			return lastGood.Load()
		}
		lastGood.Store(cfg)
		return cfg
	}

	var redisClient *redis.Client
	if redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	notifier := reload.New(redisClient, "needle:reload", logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", httpapi.Index)
	mux.Handle("GET /user", httpapi.NewAssignmentAPI(currentConfig, metrics, logger))
	mux.Handle("GET /experiments", httpapi.NewReportAPI(runner, logger))
	mux.Handle("GET /healthz", httpapi.NewHealthz(runner))
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              net.JoinHostPort(bind, fmt.Sprint(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		notifier.Run(ctx, func() (string, error) { return loader.Fingerprint(dir) })
	}()

	go func() {
		defer wg.Done()
		logger.InfoContext(ctx, "server started", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "server error", slog.String("err", err.Error()))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WarnContext(shutdownCtx, "error shutting down server", slog.String("err", err.Error()))
	}

	wg.Wait()
	return nil
}
