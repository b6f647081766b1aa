package pool

import (
	"sync"
	"time"

	"embedpool/internal/metrics"
)

// Key health status values.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// latencyAlpha is the smoothing factor of the latency EWMA.
const latencyAlpha = 0.3

// KeyHealth is the runtime health record of a single key.
type KeyHealth struct {
	Status              string
	ConsecutiveFailures int
	CooldownUntil       time.Time
	LastLatencyMs       float64
	EWMALatencyMs       float64

	hasLatency bool
}

// HealthTracker maintains per-key health and cooldown state. All state lives
// here and is mutated only through the report methods; a key with no record
// is treated as unknown and eligible.
type HealthTracker struct {
	mu    sync.Mutex
	clock Clock
	keys  map[string]*KeyHealth
}

// NewHealthTracker constructs a tracker using the given clock. A nil clock
// falls back to the system clock.
func NewHealthTracker(clock Clock) *HealthTracker {
	if clock == nil {
		clock = systemClock{}
	}
	return &HealthTracker{
		clock: clock,
		keys:  make(map[string]*KeyHealth),
	}
}

func (t *HealthTracker) record(key string) *KeyHealth {
	h, ok := t.keys[key]
	if !ok {
		h = &KeyHealth{Status: StatusUnknown}
		t.keys[key] = h
	}
	return h
}

// ReportSuccess marks a successful call: failures reset, status becomes
// healthy, any pending cooldown is cleared, and the latency EWMA advances.
func (t *HealthTracker) ReportSuccess(key string, latencyMs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.record(key)
	transitioned := h.Status != StatusHealthy
	h.Status = StatusHealthy
	h.ConsecutiveFailures = 0
	h.CooldownUntil = time.Time{}
	h.LastLatencyMs = latencyMs
	if h.hasLatency {
		h.EWMALatencyMs = latencyAlpha*latencyMs + (1-latencyAlpha)*h.EWMALatencyMs
	} else {
		h.EWMALatencyMs = latencyMs
		h.hasLatency = true
	}
	if transitioned {
		metrics.ObserveHealthTransition(StatusHealthy)
	}
}

// ReportFailure increments the failure counter; on reaching threshold the key
// becomes unhealthy and is cooled down for the given duration.
func (t *HealthTracker) ReportFailure(key string, threshold int, cooldown time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.record(key)
	h.ConsecutiveFailures++
	if threshold <= 0 {
		threshold = 1
	}
	if h.ConsecutiveFailures >= threshold && h.Status != StatusUnhealthy {
		h.Status = StatusUnhealthy
		h.CooldownUntil = t.clock.Now().Add(cooldown)
		metrics.ObserveHealthTransition(StatusUnhealthy)
	}
}

// Eligible reports whether the key may receive traffic. A key whose cooldown
// has expired is re-admitted as unknown with counters cleared; it must earn
// healthy through a subsequent success.
func (t *HealthTracker) Eligible(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.keys[key]
	if !ok {
		return true
	}
	if h.CooldownUntil.IsZero() {
		return true
	}
	if t.clock.Now().Before(h.CooldownUntil) {
		return false
	}
	h.Status = StatusUnknown
	h.ConsecutiveFailures = 0
	h.CooldownUntil = time.Time{}
	metrics.ObserveHealthTransition(StatusUnknown)
	return true
}

// EWMALatency returns the smoothed latency of the key in milliseconds, or 0
// when the key has seen no traffic yet.
func (t *HealthTracker) EWMALatency(key string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.keys[key]; ok && h.hasLatency {
		return h.EWMALatencyMs
	}
	return 0
}

// Reset forces the key back to unknown with counters and cooldown cleared.
// Used when a key is administratively reset or re-enabled.
func (t *HealthTracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.keys[key]; !ok {
		return
	}
	t.keys[key] = &KeyHealth{Status: StatusUnknown}
	metrics.ObserveHealthTransition(StatusUnknown)
}

// Reconcile drops state for keys no longer present and resets keys that were
// re-enabled since the previous configuration snapshot.
func (t *HealthTracker) Reconcile(active map[string]bool, reenabled []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.keys {
		if !active[key] {
			delete(t.keys, key)
		}
	}
	for _, key := range reenabled {
		if _, ok := t.keys[key]; ok {
			t.keys[key] = &KeyHealth{Status: StatusUnknown}
		}
	}
}

// Snapshot returns a copy of every tracked key's health record.
func (t *HealthTracker) Snapshot() map[string]KeyHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]KeyHealth, len(t.keys))
	for key, h := range t.keys {
		out[key] = *h
	}
	return out
}
