package metrics

import "sync/atomic"

// MetricID identifies one counter in the in-process metrics set.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricTokenIssued
	MetricRefreshSuccess
	MetricRefreshRejected
	MetricRefreshRateLimited
	MetricIPMismatchFlagged
	MetricIPMismatchBlocked
	MetricTokenRevoked
	MetricRevokeAll
	MetricResetRequest
	MetricResetConfirmSuccess
	MetricResetConfirmFailure
	MetricResetRateLimited
	MetricSweepRun
	MetricSweepDeleted
	MetricSweepFailure

	MetricIDCount
)

// Config controls whether metric recording is active.
type Config struct {
	Enabled bool
}

// Metrics holds one atomic counter per MetricID. The zero-cost disabled
// mode lets callers leave instrumentation calls in place unconditionally.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]atomic.Uint64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

func (m *Metrics) Add(id MetricID, delta uint64) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(delta)
}

func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Counters: make(map[MetricID]uint64, MetricIDCount),
	}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		if v := m.counters[id].Load(); v > 0 {
			snap.Counters[id] = v
		}
	}
	return snap
}
