package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metric names shared by the services and the worker.
const (
	MetricTicketsCreated   = "tickets_created"
	MetricTicketsEscalated = "tickets_escalated"
	MetricSLABreaches      = "sla_breaches"
	MetricSweepRuns        = "escalation_sweeps"
	MetricSweepErrors      = "escalation_sweep_errors"
	MetricEventsPublished  = "events_published"
	MetricEventsDropped    = "events_dropped"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	counters     map[string]int64
	lastSweep    time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		counters:     make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Add increments a named counter by n.
func (m *Metrics) Add(name string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += n
}

// Inc increments a named counter by one.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Counter returns the current value of a named counter.
func (m *Metrics) Counter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// RecordSweep counts one escalation sweep and remembers its duration.
func (m *Metrics) RecordSweep(duration time.Duration, escalated, errors int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[MetricSweepRuns]++
	m.counters[MetricTicketsEscalated] += int64(escalated)
	m.counters[MetricSweepErrors] += int64(errors)
	m.lastSweep = duration
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests        map[string]int64 `json:"requests"`
	Errors          map[string]int64 `json:"errors"`
	Counters        map[string]int64 `json:"counters"`
	LastSweepMillis int64            `json:"last_sweep_ms"`
}

// Snapshot copies the counters for reporting.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:        copyCounts(m.requestCount),
		Errors:          copyCounts(m.errorCount),
		Counters:        copyCounts(m.counters),
		LastSweepMillis: m.lastSweep.Milliseconds(),
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
