package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/coverage-sim/core"
	"github.com/signalsfoundry/coverage-sim/internal/config"
	"github.com/signalsfoundry/coverage-sim/internal/httpapi"
	"github.com/signalsfoundry/coverage-sim/internal/logging"
	"github.com/signalsfoundry/coverage-sim/internal/observability"
	"github.com/signalsfoundry/coverage-sim/internal/sim/state"
	"github.com/signalsfoundry/coverage-sim/model"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	listenAddr := flag.String("listen-addr", "", "HTTP address for the widget API (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	scenarioPath := flag.String("scenario", "", "Path to a JSON scenario with initial stations and devices (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *scenarioPath != "" {
		cfg.ScenarioPath = *scenarioPath
	}

	log := logging.New(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Error(ctx, "failed to listen", logging.String("addr", cfg.ListenAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis, prometheus.DefaultRegisterer); err != nil {
		log.Error(ctx, "coverage server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the widget API on lis until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener, reg prometheus.Registerer) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCoverageCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	initial, err := loadScenario(cfg.ScenarioPath)
	if err != nil {
		return err
	}

	ws, err := state.NewWidgetState(settingsFrom(cfg), initial, log, state.WithMetricsRecorder(collector))
	if err != nil {
		var cfgErr *core.ConfigError
		if errors.As(err, &cfgErr) {
			log.Error(ctx, "scenario exceeds coordinate bound; refusing to serve",
				logging.Float("max_coord", cfgErr.MaxCoord),
				logging.Float("max_point", cfgErr.MaxPoint),
				logging.Int("station", cfgErr.Station),
				logging.Float("reach", cfgErr.Reach),
			)
		}
		return err
	}
	defer ws.Close()

	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)
	defer func() {
		if metricsSrv == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	srv := &http.Server{
		Handler:           httpapi.NewServer(ws, log, collector).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "serving widget API", logging.String("addr", lis.Addr().String()))
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	log.Info(context.Background(), "shutting down coverage server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func settingsFrom(cfg config.Config) state.Settings {
	return state.Settings{
		MaxCoord:         cfg.MaxCoord,
		MinPlotExtent:    cfg.MinPlotExtent,
		MarkerDiameterPx: cfg.MarkerDiameterPx,
	}
}

func loadScenario(path string) (model.Scenario, error) {
	if path == "" {
		return model.Scenario{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return model.Scenario{}, fmt.Errorf("open scenario %q: %w", path, err)
	}
	defer f.Close()
	return core.LoadScenario(f)
}

func serveMetrics(addr string, collector *observability.CoverageCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
