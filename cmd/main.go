package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angeloszaimis/endpoint-monitor/config"
	"github.com/angeloszaimis/endpoint-monitor/internal/consul"
	"github.com/angeloszaimis/endpoint-monitor/internal/healthcheck"
	"github.com/angeloszaimis/endpoint-monitor/internal/httpserver"
	"github.com/angeloszaimis/endpoint-monitor/internal/metrics"
	"github.com/angeloszaimis/endpoint-monitor/internal/monitor"
	"github.com/angeloszaimis/endpoint-monitor/internal/prober"
	"github.com/angeloszaimis/endpoint-monitor/internal/reconciler"
	"github.com/angeloszaimis/endpoint-monitor/internal/sensu"
	"github.com/angeloszaimis/endpoint-monitor/pkg/logger"
)

const metricsBufferSize = 1000

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Failed to start monitor", slog.Any("err", err))
		os.Exit(1)
	}
}

// run blocks until ctx is cancelled and the status server and metrics
// collector have both stopped.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	metricsCollector := metrics.NewCollector(metricsBufferSize, log, reg)
	metricsCollector.Start(ctx)

	runner, err := buildRunner(cfg, log, metricsCollector)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.Server.Address != "" {
		srv, err := httpserver.New(cfg.Server.Address, setupRouter(metricsCollector, reg))
		if err != nil {
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("Status server listening", slog.String("addr", srv.Addr()))
			if err := srv.Serve(ctx); err != nil {
				log.Error("Status server stopped", slog.Any("err", err))
			}
		}()
	}

	runner.Run(ctx)

	log.Info("Shutting down gracefully...")
	stop()
	wg.Wait()
	metricsCollector.Wait()
	return nil
}

func buildRunner(cfg *config.Config, log *slog.Logger, metricsCollector *metrics.Collector) (*monitor.Runner, error) {
	catalog, err := consul.New(cfg.Consul.API, cfg.Consul.Datacenter, cfg.Consul.Token)
	if err != nil {
		return nil, err
	}

	sensuClient := sensu.New(cfg.Sensu.API, sensu.Options{
		PostTimeout:        cfg.PostTimeout(),
		InsecureSkipVerify: cfg.Sensu.InsecureSkipVerify,
	}, log)

	checker := healthcheck.NewChecker(cfg.CheckTimeout(), log)

	return monitor.New(log,
		reconciler.New(log, sensuClient, catalog, metricsCollector),
		prober.New(log, catalog, checker, sensuClient, metricsCollector),
		metricsCollector,
		cfg.Interval(),
	), nil
}
