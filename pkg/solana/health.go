package solana

import (
	"sort"
	"sync"
	"time"
)

// EndpointHealth is a point-in-time snapshot of one endpoint's counters.
type EndpointHealth struct {
	URL                 string
	Position            int
	Attempts            uint64
	Successes           uint64
	Failures            uint64
	ConsecutiveFailures int
	LastLatency         time.Duration
	LastFailure         time.Time
}

// HealthTracker keeps per-endpoint outcome counters and decides which
// endpoints are eligible for rotation. It is an injectable instance, one
// per pool, and safe for concurrent use from parallel in-flight requests.
type HealthTracker struct {
	mu        sync.Mutex
	endpoints []EndpointHealth

	cooldownThreshold int
	cooldown          time.Duration

	now func() time.Time
}

// NewHealthTracker creates a tracker for the given endpoint URLs in
// their configured rotation order.
func NewHealthTracker(urls []string, cooldownThreshold int, cooldown time.Duration) *HealthTracker {
	endpoints := make([]EndpointHealth, len(urls))
	for i, url := range urls {
		endpoints[i] = EndpointHealth{URL: url, Position: i}
	}

	return &HealthTracker{
		endpoints:         endpoints,
		cooldownThreshold: cooldownThreshold,
		cooldown:          cooldown,
		now:               time.Now,
	}
}

// RecordOutcome updates the counters for one endpoint after a request.
// A success resets the consecutive-failure count.
func (h *HealthTracker) RecordOutcome(i int, success bool, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ep := &h.endpoints[i]
	ep.Attempts++
	ep.LastLatency = latency

	if success {
		ep.Successes++
		ep.ConsecutiveFailures = 0

		return
	}

	ep.Failures++
	ep.ConsecutiveFailures++
	ep.LastFailure = h.now()
}

// Eligible reports whether endpoint i is currently in rotation. An
// endpoint past the cooldown threshold is skipped, not removed: once the
// cooldown window has elapsed since its last failure it re-enters.
func (h *HealthTracker) Eligible(i int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.eligibleLocked(i)
}

func (h *HealthTracker) eligibleLocked(i int) bool {
	ep := &h.endpoints[i]
	if ep.ConsecutiveFailures < h.cooldownThreshold {
		return true
	}

	return h.now().Sub(ep.LastFailure) >= h.cooldown
}

// Rank returns endpoint indices ordered to prefer low consecutive
// failure counts, ties broken by configured rotation position.
func (h *HealthTracker) Rank() []int {
	h.mu.Lock()
	defer h.mu.Unlock()

	ranked := make([]int, len(h.endpoints))
	for i := range ranked {
		ranked[i] = i
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		ea, eb := h.endpoints[ranked[a]], h.endpoints[ranked[b]]
		if ea.ConsecutiveFailures != eb.ConsecutiveFailures {
			return ea.ConsecutiveFailures < eb.ConsecutiveFailures
		}

		return ea.Position < eb.Position
	})

	return ranked
}

// Snapshot returns a copy of every endpoint's counters.
func (h *HealthTracker) Snapshot() []EndpointHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	snapshot := make([]EndpointHealth, len(h.endpoints))
	copy(snapshot, h.endpoints)

	return snapshot
}

func (h *HealthTracker) size() int {
	return len(h.endpoints)
}
