package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/angeloszaimis/endpoint-monitor/internal/metrics"
	"github.com/angeloszaimis/endpoint-monitor/pkg/logger"
)

// Monitoring is the client registry being cleaned up.
type Monitoring interface {
	ManagedClients(ctx context.Context) ([]string, error)
	DeleteClient(ctx context.Context, name string) (bool, error)
}

// Catalog lists the nodes that are still registered.
type Catalog interface {
	Nodes(ctx context.Context) ([]string, error)
}

type Result struct {
	// Stale is every managed client without a catalog node.
	Stale []string
	// Deleted clients were removed by this pass.
	Deleted []string
	// Absent clients were already gone when deletion was attempted.
	Absent []string
	// Failures collects deletion errors; they never stop the pass.
	Failures error
}

type Reconciler struct {
	logger     *slog.Logger
	monitoring Monitoring
	catalog    Catalog
	collector  *metrics.Collector
}

func New(logger *slog.Logger, monitoring Monitoring, catalog Catalog, collector *metrics.Collector) *Reconciler {
	return &Reconciler{
		logger:     logger,
		monitoring: monitoring,
		catalog:    catalog,
		collector:  collector,
	}
}

// Reconcile deletes every managed client whose node is missing from the
// catalog. Listing errors abort the pass; deletion errors are logged,
// collected in Result.Failures and skipped.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	clients, err := r.monitoring.ManagedClients(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list managed clients: %w", err)
	}

	nodes, err := r.catalog.Nodes(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list catalog nodes: %w", err)
	}

	log := logger.FromContext(ctx, r.logger)
	result := Result{Stale: Stale(clients, nodes)}
	var failures *multierror.Error

	for _, name := range result.Stale {
		if err := ctx.Err(); err != nil {
			failures = multierror.Append(failures, err)
			break
		}

		deleted, err := r.monitoring.DeleteClient(ctx, name)
		switch {
		case err != nil:
			log.Error("Encountered an issue deleting client",
				slog.String("client", name),
				slog.Any("err", err))
			failures = multierror.Append(failures, err)
		case !deleted:
			log.Info("Client does not exist in Sensu", slog.String("client", name))
			result.Absent = append(result.Absent, name)
		default:
			log.Info("Successfully deleted stale client", slog.String("client", name))
			result.Deleted = append(result.Deleted, name)
			r.collector.Emit(metrics.MetricEvent{
				Type:   metrics.EventClientDeleted,
				Source: name,
			})
		}
	}

	result.Failures = failures.ErrorOrNil()
	return result, nil
}

// Stale returns the sorted set difference clients - nodes.
func Stale(clients, nodes []string) []string {
	registered := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		registered[n] = struct{}{}
	}

	seen := make(map[string]struct{}, len(clients))
	stale := make([]string, 0)
	for _, c := range clients {
		if _, ok := registered[c]; ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		stale = append(stale, c)
	}
	sort.Strings(stale)
	return stale
}
