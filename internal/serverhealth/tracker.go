package serverhealth

import (
	"sync"
	"time"
)

// DefaultCapacity is the sample-ring capacity used when none is configured.
const DefaultCapacity = 100

// UnknownLatency is the sentinel returned by AvgPingLatencyMillis when no
// ping samples fall inside the queried window.
const UnknownLatency = int64(-1)

// pingSample is one latency observation.
type pingSample struct {
	at        time.Time
	latencyMs int64
}

// requestSample is one request outcome observation.
type requestSample struct {
	at time.Time
	ok bool
}

// ring is a fixed-capacity ring buffer; the oldest sample is evicted first.
// Callers append with a roughly non-decreasing clock, so the ring is in
// timestamp order and window queries can scan it directly.
type ring[S any] struct {
	samples []S
	next    int
	full    bool
}

func newRing[S any](capacity int) *ring[S] {
	return &ring[S]{samples: make([]S, 0, capacity)}
}

func (r *ring[S]) add(s S) {
	if !r.full && len(r.samples) < cap(r.samples) {
		r.samples = append(r.samples, s)
		return
	}
	r.full = true
	r.samples[r.next] = s
	r.next = (r.next + 1) % cap(r.samples)
}

// each visits every held sample, in no particular order.
func (r *ring[S]) each(fn func(S)) {
	for _, s := range r.samples {
		fn(s)
	}
}

// Tracker holds health samples for a single remote server. All methods are
// safe for concurrent use; servers are independent, so one mutex per
// tracker is enough.
type Tracker struct {
	mu       sync.Mutex
	pings    *ring[pingSample]
	requests *ring[requestSample]
}

// NewTracker creates a tracker whose rings hold up to capacity samples.
// A non-positive capacity falls back to DefaultCapacity.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		pings:    newRing[pingSample](capacity),
		requests: newRing[requestSample](capacity),
	}
}

// ReportPingLatency records a ping round-trip observation.
func (t *Tracker) ReportPingLatency(now time.Time, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pings.add(pingSample{at: now, latencyMs: latency.Milliseconds()})
}

// ReportRequestSuccess records a successful request completion.
func (t *Tracker) ReportRequestSuccess(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests.add(requestSample{at: now, ok: true})
}

// ReportRequestError records a failed request completion.
func (t *Tracker) ReportRequestError(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests.add(requestSample{at: now, ok: false})
}

// inWindow reports whether a sample taken at 'at' falls inside the window
// (now-window, now]. Samples newer than now are included defensively; the
// caller promised a roughly non-decreasing clock, not a strict one.
func inWindow(at, now time.Time, window time.Duration) bool {
	return !at.Before(now.Add(-window))
}

// ErrorRate returns the fraction of requests in the window that failed,
// in [0.0, 1.0]. A window with no request samples reports 0.0: a server
// nobody has talked to recently is not assumed broken.
func (t *Tracker) ErrorRate(now time.Time, window time.Duration) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total, failed int
	t.requests.each(func(s requestSample) {
		if !inWindow(s.at, now, window) {
			return
		}
		total++
		if !s.ok {
			failed++
		}
	})
	if total == 0 {
		return 0.0
	}
	return float64(failed) / float64(total)
}

// AvgPingLatencyMillis returns the mean ping latency over the window in
// milliseconds, or UnknownLatency when no ping samples fall inside it.
func (t *Tracker) AvgPingLatencyMillis(now time.Time, window time.Duration) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total, count int64
	t.pings.each(func(s pingSample) {
		if !inWindow(s.at, now, window) {
			return
		}
		total += s.latencyMs
		count++
	})
	if count == 0 {
		return UnknownLatency
	}
	return total / count
}
