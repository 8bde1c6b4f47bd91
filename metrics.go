package sessiongate

import (
	"sync/atomic"
	"time"
)

// MetricID names one in-process counter.
type MetricID uint16

const (
	// MetricVerifySuccess counts tokens resolved to an identity.
	MetricVerifySuccess MetricID = iota
	// MetricVerifyMissingToken counts verifications with no token.
	MetricVerifyMissingToken
	// MetricVerifyInvalidToken counts malformed, expired or mistyped tokens.
	MetricVerifyInvalidToken
	// MetricVerifyUnknownSubject counts valid tokens whose subject is gone.
	MetricVerifyUnknownSubject
	// MetricLookupUnavailable counts identity lookup outages and timeouts.
	MetricLookupUnavailable
	// MetricAuthorizeSuccess counts requests admitted by Authorize.
	MetricAuthorizeSuccess
	// MetricAuthorizeUnauthenticated counts 401 outcomes.
	MetricAuthorizeUnauthenticated
	// MetricAuthorizeForbidden counts 403 outcomes.
	MetricAuthorizeForbidden
	// MetricSelfAccessOverride counts requests admitted only by resource ownership.
	MetricSelfAccessOverride
	// MetricHandshakeAccepted counts admitted socket handshakes.
	MetricHandshakeAccepted
	// MetricHandshakeRejected counts refused socket handshakes.
	MetricHandshakeRejected
	// MetricHandshakeRateLimited counts handshakes refused by the failure throttle.
	MetricHandshakeRateLimited
	// MetricConnectionOpened counts connections entering the room graph.
	MetricConnectionOpened
	// MetricConnectionClosed counts connections leaving the room graph.
	MetricConnectionClosed
	// MetricRoomJoin counts membership additions.
	MetricRoomJoin
	// MetricRoomLeave counts membership removals.
	MetricRoomLeave
	// MetricRoomCollected counts rooms removed because they became empty.
	MetricRoomCollected
	// MetricBroadcast counts fan-out operations.
	MetricBroadcast
	// MetricFrameDelivered counts frames queued to a member connection.
	MetricFrameDelivered
	// MetricFrameDropped counts frames dropped on a full outbound queue.
	MetricFrameDropped
	// MetricDirectMessageUndelivered counts direct messages to absent recipients.
	MetricDirectMessageUndelivered
	// MetricEventRejected counts unknown or malformed inbound events.
	MetricEventRejected
	// MetricAuditDropped counts audit events dropped on a full dispatcher buffer.
	MetricAuditDropped
	// MetricVerifyLatency is the latency histogram for Verify.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

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

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricVerifyLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters. A disabled or nil Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricVerifyLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
