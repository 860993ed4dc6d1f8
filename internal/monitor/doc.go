// Package monitor drives the reconcile and probe loop.
//
// Each iteration runs the reconciler to completion, then the prober, then
// sleeps for the configured interval. Phase failures are logged and never
// stop the loop; only context cancellation does.
package monitor
