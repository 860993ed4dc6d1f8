package metrics

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const maxDurations = 1000

type Metrics struct {
	mutex         sync.RWMutex
	checks        map[string]int64
	lastStatus    map[string]int
	statusCounts  map[string]map[int]int64
	checkTimes    map[string][]time.Duration
	postsOK       map[string]int64
	postsFailed   map[string]int64
	deleted       []string
	iterations    int64
	lastIteration time.Time
	lastDuration  time.Duration
	startTime     time.Time

	checksTotal      *prometheus.CounterVec
	checkDuration    prometheus.Histogram
	postsTotal       *prometheus.CounterVec
	deletionsTotal   prometheus.Counter
	iterationsTotal  prometheus.Counter
	iterationSeconds prometheus.Histogram
}

type Snapshot struct {
	Uptime         time.Duration            `json:"uptime"`
	Iterations     int64                    `json:"iterations"`
	LastIteration  time.Time                `json:"last_iteration"`
	LastDuration   time.Duration            `json:"last_duration"`
	DeletedClients []string                 `json:"deleted_clients"`
	Sources        map[string]SourceMetrics `json:"sources"`
}

type SourceMetrics struct {
	Checks       int64         `json:"checks"`
	LastStatus   int           `json:"last_status"`
	StatusCounts map[int]int64 `json:"status_counts"`
	PostsOK      int64         `json:"posts_ok"`
	PostsFailed  int64         `json:"posts_failed"`
	AvgCheck     time.Duration `json:"avg_check"`
	P50Check     time.Duration `json:"p50_check"`
	P95Check     time.Duration `json:"p95_check"`
	P99Check     time.Duration `json:"p99_check"`
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		checks:       make(map[string]int64),
		lastStatus:   make(map[string]int),
		statusCounts: make(map[string]map[int]int64),
		checkTimes:   make(map[string][]time.Duration),
		postsOK:      make(map[string]int64),
		postsFailed:  make(map[string]int64),
		startTime:    time.Now(),

		checksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "endpoint_monitor",
			Name:      "checks_total",
			Help:      "Health checks run, by Sensu status",
		}, []string{"status"}),
		checkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "endpoint_monitor",
			Name:      "check_duration_seconds",
			Help:      "Duration of a single health check",
			Buckets:   prometheus.DefBuckets,
		}),
		postsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "endpoint_monitor",
			Name:      "results_posted_total",
			Help:      "Check results shipped to Sensu, by outcome",
		}, []string{"outcome"}),
		deletionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "endpoint_monitor",
			Name:      "clients_deleted_total",
			Help:      "Stale Sensu clients deleted",
		}),
		iterationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "endpoint_monitor",
			Name:      "iterations_total",
			Help:      "Completed reconcile and probe iterations",
		}),
		iterationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "endpoint_monitor",
			Name:      "iteration_duration_seconds",
			Help:      "Duration of a reconcile and probe iteration",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func (m *Metrics) RecordCheck(source string, status int, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.checks[source]++
	m.lastStatus[source] = status

	if m.statusCounts[source] == nil {
		m.statusCounts[source] = make(map[int]int64)
	}
	m.statusCounts[source][status]++

	m.checkTimes[source] = append(m.checkTimes[source], duration)
	if len(m.checkTimes[source]) > maxDurations {
		m.checkTimes[source] = m.checkTimes[source][1:]
	}

	m.checksTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.checkDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordPost(source string, success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if success {
		m.postsOK[source]++
		m.postsTotal.WithLabelValues("ok").Inc()
		return
	}
	m.postsFailed[source]++
	m.postsTotal.WithLabelValues("failed").Inc()
}

func (m *Metrics) RecordDeletion(client string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.deleted = append(m.deleted, client)
	if len(m.deleted) > maxDurations {
		m.deleted = m.deleted[1:]
	}
	m.deletionsTotal.Inc()
}

func (m *Metrics) RecordIteration(at time.Time, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.iterations++
	m.lastIteration = at
	m.lastDuration = duration
	m.iterationsTotal.Inc()
	m.iterationSeconds.Observe(duration.Seconds())
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:         time.Since(m.startTime),
		Iterations:     m.iterations,
		LastIteration:  m.lastIteration,
		LastDuration:   m.lastDuration,
		DeletedClients: append([]string{}, m.deleted...),
		Sources:        make(map[string]SourceMetrics),
	}

	allSources := make(map[string]bool)
	for source := range m.checks {
		allSources[source] = true
	}
	for source := range m.postsOK {
		allSources[source] = true
	}
	for source := range m.postsFailed {
		allSources[source] = true
	}

	for source := range allSources {
		sm := SourceMetrics{
			Checks:       m.checks[source],
			LastStatus:   m.lastStatus[source],
			StatusCounts: make(map[int]int64, len(m.statusCounts[source])),
			PostsOK:      m.postsOK[source],
			PostsFailed:  m.postsFailed[source],
		}
		for status, n := range m.statusCounts[source] {
			sm.StatusCounts[status] = n
		}

		durations := m.checkTimes[source]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			sm.AvgCheck = average(sorted)
			sm.P50Check = percentile(sorted, 0.50)
			sm.P95Check = percentile(sorted, 0.95)
			sm.P99Check = percentile(sorted, 0.99)
		}

		snap.Sources[source] = sm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
