package prober

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/angeloszaimis/endpoint-monitor/internal/consul"
	"github.com/angeloszaimis/endpoint-monitor/internal/healthcheck"
	"github.com/angeloszaimis/endpoint-monitor/internal/metrics"
	"github.com/angeloszaimis/endpoint-monitor/internal/sensu"
	"github.com/angeloszaimis/endpoint-monitor/pkg/logger"
)

type Catalog interface {
	Services(ctx context.Context) ([]string, error)
	Instances(ctx context.Context, service string) ([]consul.Instance, error)
}

type Checker interface {
	Check(ctx context.Context, endpoint string) healthcheck.Outcome
}

type Reporter interface {
	PostResult(ctx context.Context, payload sensu.Payload) error
}

type Summary struct {
	Services     int
	Instances    int
	Statuses     map[healthcheck.Status]int
	PostFailures int
	// Failures collects per-service listing errors and post errors.
	Failures error
}

type Prober struct {
	logger    *slog.Logger
	catalog   Catalog
	checker   Checker
	reporter  Reporter
	collector *metrics.Collector
}

func New(logger *slog.Logger, catalog Catalog, checker Checker, reporter Reporter, collector *metrics.Collector) *Prober {
	return &Prober{
		logger:    logger,
		catalog:   catalog,
		checker:   checker,
		reporter:  reporter,
		collector: collector,
	}
}

// ProbeAll checks and reports every instance sequentially. Only a failure to
// list the services is returned as an error; everything else is logged,
// collected in Summary.Failures and skipped.
func (p *Prober) ProbeAll(ctx context.Context) (Summary, error) {
	services, err := p.catalog.Services(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list services: %w", err)
	}

	log := logger.FromContext(ctx, p.logger)
	summary := Summary{
		Services: len(services),
		Statuses: make(map[healthcheck.Status]int),
	}
	var failures *multierror.Error

	for _, service := range services {
		instances, err := p.catalog.Instances(ctx, service)
		if err != nil {
			log.Error("Failed to list service instances",
				slog.String("service", service),
				slog.Any("err", err))
			failures = multierror.Append(failures, err)
			continue
		}

		for _, inst := range instances {
			if err := ctx.Err(); err != nil {
				summary.Failures = multierror.Append(failures, err).ErrorOrNil()
				return summary, nil
			}

			outcome, checked, postErr := p.probe(ctx, log, inst)
			if !checked {
				summary.Failures = multierror.Append(failures, ctx.Err()).ErrorOrNil()
				return summary, nil
			}

			summary.Instances++
			summary.Statuses[outcome.Status]++
			if postErr != nil {
				summary.PostFailures++
				failures = multierror.Append(failures, postErr)
			}
		}
	}

	summary.Failures = failures.ErrorOrNil()
	return summary, nil
}

// probe checks one instance and posts its result. When ctx ends during the
// check the outcome says nothing about the endpoint: checked is false and
// nothing is recorded or posted.
func (p *Prober) probe(ctx context.Context, log *slog.Logger, inst consul.Instance) (outcome healthcheck.Outcome, checked bool, err error) {
	endpoint := healthcheck.Endpoint(inst.Node, inst.ServicePort, inst.ServiceMeta)
	outcome = p.checker.Check(ctx, endpoint)
	if ctx.Err() != nil {
		log.Debug("Check interrupted, result discarded", slog.String("endpoint", endpoint))
		return outcome, false, nil
	}

	log.Debug("Checked endpoint",
		slog.String("service", inst.ServiceName),
		slog.String("node", inst.Node),
		slog.String("endpoint", endpoint),
		slog.String("status", outcome.Status.String()),
		slog.Duration("duration", outcome.Duration))

	p.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventCheckCompleted,
		Source:     inst.Node,
		Status:     int(outcome.Status),
		StatusCode: outcome.StatusCode,
		Duration:   outcome.Duration,
	})

	err = p.reporter.PostResult(ctx, BuildPayload(inst, endpoint, outcome))

	p.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventResultPosted,
		Source:  inst.Node,
		Success: err == nil,
	})

	return outcome, true, err
}

// BuildPayload assembles the check result for one instance. Service metadata
// is merged last, so a metadata key overrides a built-in field of the same
// name, status and output included.
func BuildPayload(inst consul.Instance, endpoint string, outcome healthcheck.Outcome) sensu.Payload {
	payload := sensu.Payload{
		"source":       inst.Node,
		"name":         sensu.CheckName,
		"endpoint":     endpoint,
		"check_source": sensu.CheckSource,
		"output":       outcome.Output,
		"status":       int(outcome.Status),
	}

	for k, v := range inst.ServiceMeta {
		payload[k] = v
	}
	return payload
}
