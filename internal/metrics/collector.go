package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EventType string

const (
	EventClientDeleted      EventType = "client_deleted"
	EventCheckCompleted     EventType = "check_completed"
	EventResultPosted       EventType = "result_posted"
	EventIterationCompleted EventType = "iteration_completed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Source     string
	Status     int
	StatusCode int
	Duration   time.Duration
	Success    bool
}

type Collector struct {
	eventCh chan MetricEvent
	done    chan struct{}
	metrics *Metrics
	logger  *slog.Logger
}

// NewCollector registers the Prometheus collectors on reg; a nil reg keeps
// them unregistered.
func NewCollector(bufferSize int, logger *slog.Logger, reg prometheus.Registerer) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		done:    make(chan struct{}),
		metrics: NewMetrics(reg),
		logger:  logger,
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Wait blocks until a started collector has stopped and drained its buffer.
func (c *Collector) Wait() {
	<-c.done
}

// Emit queues an event. It never blocks: when the buffer is full the event is
// dropped. Emit on a nil collector is a no-op.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer close(c.done)
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventClientDeleted:
		c.metrics.RecordDeletion(event.Source)

	case EventCheckCompleted:
		c.metrics.RecordCheck(event.Source, event.Status, event.Duration)

	case EventResultPosted:
		c.metrics.RecordPost(event.Source, event.Success)

	case EventIterationCompleted:
		c.metrics.RecordIteration(event.Timestamp, event.Duration)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
