package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/endpoint-monitor/internal/metrics"
	"github.com/angeloszaimis/endpoint-monitor/internal/prober"
	"github.com/angeloszaimis/endpoint-monitor/internal/reconciler"
	"github.com/angeloszaimis/endpoint-monitor/pkg/logger"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (reconciler.Result, error)
}

type Prober interface {
	ProbeAll(ctx context.Context) (prober.Summary, error)
}

// Report describes one completed iteration.
type Report struct {
	ID           string
	Reconcile    reconciler.Result
	ReconcileErr error
	Probe        prober.Summary
	ProbeErr     error
	Duration     time.Duration
}

type Runner struct {
	logger     *slog.Logger
	reconciler Reconciler
	prober     Prober
	collector  *metrics.Collector
	interval   time.Duration
}

func New(logger *slog.Logger, rec Reconciler, prb Prober, collector *metrics.Collector, interval time.Duration) *Runner {
	return &Runner{
		logger:     logger,
		reconciler: rec,
		prober:     prb,
		collector:  collector,
		interval:   interval,
	}
}

// Run repeats RunOnce until ctx is cancelled, sleeping the interval between
// iterations.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("Starting monitor loop", slog.Duration("interval", r.interval))
	defer r.logger.Info("Monitor loop stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		r.RunOnce(ctx)

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce reconciles, then probes. A failed phase is logged and the next one
// still runs.
func (r *Runner) RunOnce(ctx context.Context) Report {
	start := time.Now()
	report := Report{ID: uuid.NewString()}
	log := r.logger.With(slog.String("iteration", report.ID))
	ctx = logger.WithContext(ctx, log)

	log.Debug("Reconciling Sensu clients against the Consul catalog")
	report.Reconcile, report.ReconcileErr = r.reconciler.Reconcile(ctx)
	if report.ReconcileErr != nil {
		log.Error("Reconcile phase abandoned", slog.Any("err", report.ReconcileErr))
	} else {
		log.Info("Reconcile phase finished",
			slog.Int("stale", len(report.Reconcile.Stale)),
			slog.Int("deleted", len(report.Reconcile.Deleted)),
			slog.Int("absent", len(report.Reconcile.Absent)))
	}

	if ctx.Err() == nil {
		log.Debug("Probing catalog service instances")
		report.Probe, report.ProbeErr = r.prober.ProbeAll(ctx)
		if report.ProbeErr != nil {
			log.Error("Probe phase abandoned", slog.Any("err", report.ProbeErr))
		} else {
			log.Info("Probe phase finished",
				slog.Int("services", report.Probe.Services),
				slog.Int("instances", report.Probe.Instances),
				slog.Int("post_failures", report.Probe.PostFailures))
		}
	}

	report.Duration = time.Since(start)
	r.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventIterationCompleted,
		Timestamp: start,
		Duration:  report.Duration,
	})

	log.Debug("Iteration complete", slog.Duration("duration", report.Duration))
	return report
}
