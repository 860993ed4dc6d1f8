// Package metrics records what the monitor loop does: stale clients deleted,
// health checks run, results shipped to Sensu and iterations completed.
//
// Components emit events through a buffered channel without blocking the
// loop; a single collector goroutine folds them into an in-memory view
// (served as JSON) and into Prometheus collectors.
//
//	collector := metrics.NewCollector(256, logger, prometheus.NewRegistry())
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:     metrics.EventCheckCompleted,
//		Source:   "web-1",
//		Status:   0,
//		Duration: 40 * time.Millisecond,
//	})
//
//	snapshot := collector.Snapshot()
//
// Events still buffered when the context is cancelled are drained before the
// collector stops.
package metrics
