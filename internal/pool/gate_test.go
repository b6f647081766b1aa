package pool

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGateLimit(t *testing.T) {
	gate := NewGate()

	if !gate.TryAcquire("k", 2) {
		t.Fatal("first acquire should succeed")
	}
	if !gate.TryAcquire("k", 2) {
		t.Fatal("second acquire should succeed")
	}
	if gate.TryAcquire("k", 2) {
		t.Fatal("third acquire should be rejected at limit 2")
	}
	if got := gate.InFlight("k"); got != 2 {
		t.Fatalf("unexpected in-flight count: %d", got)
	}

	gate.Release("k")
	if !gate.TryAcquire("k", 2) {
		t.Fatal("acquire should succeed after release")
	}
}

func TestGateUnlimitedWhenLimitZero(t *testing.T) {
	gate := NewGate()
	for i := 0; i < 100; i++ {
		if !gate.TryAcquire("k", 0) {
			t.Fatalf("acquire %d should succeed with no limit", i)
		}
	}
}

func TestGateReleaseNeverGoesNegative(t *testing.T) {
	gate := NewGate()
	gate.Release("k")
	if got := gate.InFlight("k"); got != 0 {
		t.Fatalf("expected 0 in-flight, got %d", got)
	}
	if !gate.TryAcquire("k", 1) {
		t.Fatal("acquire should succeed after spurious release")
	}
}

func TestGateConcurrentNeverOverAdmits(t *testing.T) {
	const (
		limit      = 5
		goroutines = 40
		iterations = 200
	)

	gate := NewGate()
	var active atomic.Int64
	var violations atomic.Int64
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if !gate.TryAcquire("k", limit) {
					continue
				}
				if cur := active.Add(1); cur > limit {
					violations.Add(1)
				}
				active.Add(-1)
				gate.Release("k")
			}
		}()
	}
	wg.Wait()

	if n := violations.Load(); n != 0 {
		t.Fatalf("gate over-admitted %d times", n)
	}
	if got := gate.InFlight("k"); got != 0 {
		t.Fatalf("expected all slots released, got %d in flight", got)
	}
}
