package serverhealth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int64) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

func TestErrorRate(t *testing.T) {
	t.Run("empty window reports zero", func(t *testing.T) {
		tr := NewTracker(0)
		assert.Zero(t, tr.ErrorRate(at(1000), 500*time.Millisecond))
	})

	t.Run("window slices out old samples", func(t *testing.T) {
		tr := NewTracker(0)
		tr.ReportRequestError(at(0))
		tr.ReportRequestSuccess(at(10))
		tr.ReportRequestSuccess(at(20))

		// Window of 15ms at now=20 covers only t=10 and t=20, both successes.
		assert.Zero(t, tr.ErrorRate(at(20), 15*time.Millisecond))
		// Widening the window to include the failure at t=0 gives 1/3.
		assert.InDelta(t, 1.0/3.0, tr.ErrorRate(at(20), 25*time.Millisecond), 1e-9)
	})

	t.Run("all failures reports one", func(t *testing.T) {
		tr := NewTracker(0)
		tr.ReportRequestError(at(5))
		tr.ReportRequestError(at(6))
		assert.Equal(t, 1.0, tr.ErrorRate(at(10), 10*time.Millisecond))
	})

	t.Run("rate is monotonic in window size", func(t *testing.T) {
		tr := NewTracker(0)
		tr.ReportRequestError(at(0))
		tr.ReportRequestSuccess(at(50))
		narrow := tr.ErrorRate(at(50), 10*time.Millisecond)
		wide := tr.ErrorRate(at(50), 100*time.Millisecond)
		assert.LessOrEqual(t, narrow, wide)
	})
}

func TestAvgPingLatency(t *testing.T) {
	t.Run("empty window reports unknown sentinel", func(t *testing.T) {
		tr := NewTracker(0)
		assert.Equal(t, UnknownLatency, tr.AvgPingLatencyMillis(at(0), time.Second))
	})

	t.Run("averages samples inside the window", func(t *testing.T) {
		tr := NewTracker(0)
		tr.ReportPingLatency(at(0), 100*time.Millisecond)
		tr.ReportPingLatency(at(10), 20*time.Millisecond)
		tr.ReportPingLatency(at(20), 40*time.Millisecond)

		// Only the samples at t=10 and t=20 are inside a 15ms window.
		assert.Equal(t, int64(30), tr.AvgPingLatencyMillis(at(20), 15*time.Millisecond))
		// All three inside a wide window.
		assert.Equal(t, int64(53), tr.AvgPingLatencyMillis(at(20), time.Second))
	})
}

func TestRingEviction(t *testing.T) {
	tr := NewTracker(3)
	tr.ReportRequestError(at(0))
	tr.ReportRequestError(at(1))
	tr.ReportRequestError(at(2))
	// Capacity 3: these evict the three errors above, oldest first.
	tr.ReportRequestSuccess(at(3))
	tr.ReportRequestSuccess(at(4))
	tr.ReportRequestSuccess(at(5))

	assert.Zero(t, tr.ErrorRate(at(5), time.Minute),
		"evicted samples must not contribute to the rate")
}

func TestRegistryPick(t *testing.T) {
	now := at(10_000)
	window := time.Minute

	t.Run("low error rate wins", func(t *testing.T) {
		reg := NewRegistry(0)
		reg.Tracker("flaky").ReportRequestError(now)
		reg.Tracker("flaky").ReportRequestSuccess(now)
		reg.Tracker("solid").ReportRequestSuccess(now)

		ordered := reg.Pick([]string{"flaky", "solid"}, now, window)
		require.Len(t, ordered, 2)
		assert.Equal(t, "solid", ordered[0])
	})

	t.Run("latency breaks error-rate ties", func(t *testing.T) {
		reg := NewRegistry(0)
		reg.Tracker("near").ReportPingLatency(now, 5*time.Millisecond)
		reg.Tracker("far").ReportPingLatency(now, 250*time.Millisecond)

		ordered := reg.Pick([]string{"far", "near"}, now, window)
		assert.Equal(t, []string{"near", "far"}, ordered)
	})

	t.Run("measured latency outranks unknown", func(t *testing.T) {
		reg := NewRegistry(0)
		reg.Tracker("measured").ReportPingLatency(now, 100*time.Millisecond)

		ordered := reg.Pick([]string{"mystery", "measured"}, now, window)
		assert.Equal(t, "measured", ordered[0])
	})

	t.Run("unseen servers still listed", func(t *testing.T) {
		reg := NewRegistry(0)
		ordered := reg.Pick([]string{"a", "b"}, now, window)
		assert.ElementsMatch(t, []string{"a", "b"}, ordered)
	})
}
