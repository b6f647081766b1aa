package pool

import "sync"

// Gate caps simultaneous in-flight calls per key. Check-and-increment is
// atomic under a single mutex; a full key is reported as busy, not as an
// error, so callers move on to the next candidate.
type Gate struct {
	mu       sync.Mutex
	inFlight map[string]int
}

// NewGate constructs an empty gate.
func NewGate() *Gate {
	return &Gate{inFlight: make(map[string]int)}
}

// TryAcquire admits one call against key if the in-flight count is below
// limit. A limit of zero or less admits unconditionally.
func (g *Gate) TryAcquire(key string, limit int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit > 0 && g.inFlight[key] >= limit {
		return false
	}
	g.inFlight[key]++
	return true
}

// Release returns one slot for key. Every successful TryAcquire must be
// matched by exactly one Release, on every exit path.
func (g *Gate) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.inFlight[key]
	if n <= 1 {
		delete(g.inFlight, key)
		return
	}
	g.inFlight[key] = n - 1
}

// InFlight returns the current in-flight count for key.
func (g *Gate) InFlight(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight[key]
}

// Snapshot returns a copy of all non-zero in-flight counts.
func (g *Gate) Snapshot() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int, len(g.inFlight))
	for key, n := range g.inFlight {
		out[key] = n
	}
	return out
}
