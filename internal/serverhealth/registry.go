package serverhealth

import (
	"sort"
	"sync"
	"time"
)

// Registry holds one Tracker per remote server, keyed by server name
// (typically the base URL of a cache replica).
type Registry struct {
	mu       sync.Mutex
	capacity int
	trackers map[string]*Tracker
}

// NewRegistry creates a registry whose trackers use the given ring
// capacity. A non-positive capacity falls back to DefaultCapacity.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		trackers: make(map[string]*Tracker),
	}
}

// Tracker returns the tracker for a server, creating it on first use.
func (r *Registry) Tracker(server string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[server]
	if !ok {
		t = NewTracker(r.capacity)
		r.trackers[server] = t
	}
	return t
}

// Pick ranks the given servers by health over the window and returns them
// best-first: lowest error rate wins, latency breaks ties, and a server
// with unknown latency ranks behind one with a measurement at the same
// error rate. Servers the registry has never seen rank as healthy but
// unmeasured, so fresh replicas still get traffic.
func (r *Registry) Pick(servers []string, now time.Time, window time.Duration) []string {
	type ranked struct {
		server    string
		errorRate float64
		latencyMs int64
	}
	rankings := make([]ranked, 0, len(servers))
	for _, s := range servers {
		t := r.Tracker(s)
		rankings = append(rankings, ranked{
			server:    s,
			errorRate: t.ErrorRate(now, window),
			latencyMs: t.AvgPingLatencyMillis(now, window),
		})
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		a, b := rankings[i], rankings[j]
		if a.errorRate != b.errorRate {
			return a.errorRate < b.errorRate
		}
		// Measured latency beats unknown; lower beats higher.
		if (a.latencyMs == UnknownLatency) != (b.latencyMs == UnknownLatency) {
			return a.latencyMs != UnknownLatency
		}
		return a.latencyMs < b.latencyMs
	})

	ordered := make([]string, len(rankings))
	for i, rk := range rankings {
		ordered[i] = rk.server
	}
	return ordered
}
