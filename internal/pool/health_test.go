package pool

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock shared by the pool tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTrackerSuccessResetsFailures(t *testing.T) {
	clock := newFakeClock()
	tracker := NewHealthTracker(clock)

	tracker.ReportFailure("p1/k1", 3, time.Minute)
	tracker.ReportFailure("p1/k1", 3, time.Minute)
	tracker.ReportSuccess("p1/k1", 42)

	h := tracker.Snapshot()["p1/k1"]
	if h.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", h.Status)
	}
	if h.ConsecutiveFailures != 0 {
		t.Fatalf("expected failures reset, got %d", h.ConsecutiveFailures)
	}
	if !h.CooldownUntil.IsZero() {
		t.Fatalf("expected no cooldown, got %v", h.CooldownUntil)
	}
}

func TestTrackerFailureThresholdSetsCooldown(t *testing.T) {
	clock := newFakeClock()
	tracker := NewHealthTracker(clock)

	for i := 0; i < 3; i++ {
		if !tracker.Eligible("p1/k1") {
			t.Fatalf("key should stay eligible before the threshold (failure %d)", i)
		}
		tracker.ReportFailure("p1/k1", 3, 30*time.Second)
	}

	h := tracker.Snapshot()["p1/k1"]
	if h.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy after threshold, got %s", h.Status)
	}
	want := clock.Now().Add(30 * time.Second)
	if !h.CooldownUntil.Equal(want) {
		t.Fatalf("unexpected cooldown until: got %v want %v", h.CooldownUntil, want)
	}
	if tracker.Eligible("p1/k1") {
		t.Fatal("key should be excluded during cooldown")
	}

	// One second before expiry the key is still out.
	clock.Advance(29 * time.Second)
	if tracker.Eligible("p1/k1") {
		t.Fatal("key should be excluded until cooldown expires")
	}

	// At expiry the key is re-admitted as unknown with counters cleared,
	// not as healthy.
	clock.Advance(time.Second)
	if !tracker.Eligible("p1/k1") {
		t.Fatal("key should be eligible after cooldown expiry")
	}
	h = tracker.Snapshot()["p1/k1"]
	if h.Status != StatusUnknown {
		t.Fatalf("expected unknown after expiry, got %s", h.Status)
	}
	if h.ConsecutiveFailures != 0 {
		t.Fatalf("expected counters cleared after expiry, got %d", h.ConsecutiveFailures)
	}
}

func TestTrackerEWMALatency(t *testing.T) {
	tracker := NewHealthTracker(newFakeClock())

	if got := tracker.EWMALatency("p1/k1"); got != 0 {
		t.Fatalf("expected 0 for untracked key, got %f", got)
	}

	tracker.ReportSuccess("p1/k1", 100)
	if got := tracker.EWMALatency("p1/k1"); got != 100 {
		t.Fatalf("first sample should seed the EWMA, got %f", got)
	}

	tracker.ReportSuccess("p1/k1", 200)
	want := 0.3*200 + 0.7*100
	if got := tracker.EWMALatency("p1/k1"); got != want {
		t.Fatalf("unexpected EWMA: got %f want %f", got, want)
	}

	h := tracker.Snapshot()["p1/k1"]
	if h.LastLatencyMs != 200 {
		t.Fatalf("unexpected last latency: %f", h.LastLatencyMs)
	}
}

func TestTrackerReset(t *testing.T) {
	tracker := NewHealthTracker(newFakeClock())

	for i := 0; i < 3; i++ {
		tracker.ReportFailure("p1/k1", 3, time.Hour)
	}
	if tracker.Eligible("p1/k1") {
		t.Fatal("key should be in cooldown")
	}

	tracker.Reset("p1/k1")
	if !tracker.Eligible("p1/k1") {
		t.Fatal("reset key should be eligible again")
	}
	h := tracker.Snapshot()["p1/k1"]
	if h.Status != StatusUnknown || h.ConsecutiveFailures != 0 {
		t.Fatalf("unexpected state after reset: %+v", h)
	}
}

func TestTrackerReconcile(t *testing.T) {
	tracker := NewHealthTracker(newFakeClock())

	tracker.ReportSuccess("p1/k1", 10)
	tracker.ReportFailure("p1/k2", 1, time.Hour)
	tracker.ReportSuccess("p2/k1", 20)

	// p2/k1 was removed, p1/k2 was re-enabled.
	tracker.Reconcile(map[string]bool{"p1/k1": true, "p1/k2": true}, []string{"p1/k2"})

	snap := tracker.Snapshot()
	if _, ok := snap["p2/k1"]; ok {
		t.Fatal("removed key should be dropped")
	}
	if snap["p1/k1"].Status != StatusHealthy {
		t.Fatalf("surviving key state should be preserved, got %s", snap["p1/k1"].Status)
	}
	if snap["p1/k2"].Status != StatusUnknown {
		t.Fatalf("re-enabled key should be reset to unknown, got %s", snap["p1/k2"].Status)
	}
	if !tracker.Eligible("p1/k2") {
		t.Fatal("re-enabled key should be eligible")
	}
}
