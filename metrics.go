package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts presented refresh tokens that no longer
	// matched their live session. Each one revoked a session.
	MetricRefreshReuseDetected
	MetricSessionCreated
	MetricLogout
	MetricLogoutAll
	MetricTokenRevoked
	MetricAuthorizeSuccess
	MetricAuthorizeUnauthenticated
	MetricAuthorizeForbidden
	MetricStorageError
	MetricSweepSessions
	MetricSweepBlacklist
	// MetricGuardLatency is the only histogram: time spent in RequireSubject.
	MetricGuardLatency
	metricIDCount
)

// guardLatencyBoundsMs are the inclusive upper bounds of the first seven guard
// latency buckets. The eighth bucket takes everything slower.
var guardLatencyBoundsMs = [...]int64{5, 10, 25, 50, 100, 250, 500}

const guardLatencyBuckets = len(guardLatencyBoundsMs) + 1

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the guard latency histogram. Writes
// never allocate.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counterSlot
	guardLatency  [guardLatencyBuckets]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter. Disabled metrics ignore the call.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to a counter.
func (m *Metrics) Add(id MetricID, n uint64) {
	if !m.Enabled() || id >= metricIDCount || n == 0 {
		return
	}
	m.counters[id].n.Add(n)
}

// Observe records d when id is MetricGuardLatency. Other ids are counters only
// and the call is ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricGuardLatency {
		return
	}
	m.guardLatency[bucketIndex(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot copies every counter, plus the histogram when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.counters[id].n.Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, guardLatencyBuckets)
		for i := range m.guardLatency {
			buckets[i] = m.guardLatency[i].Load()
		}
		s.Histograms[MetricGuardLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range guardLatencyBoundsMs {
		if ms <= bound {
			return i
		}
	}
	return guardLatencyBuckets - 1
}
