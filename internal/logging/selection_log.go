package logging

import (
	"sync"
	"time"
)

// Selection outcomes recorded in the log.
const (
	OutcomeSuccess       = "success"
	OutcomeFailure       = "failure"
	OutcomeNoEligibleKey = "no_eligible_key"
	OutcomePoolDisabled  = "pool_disabled"
)

// SelectionLogEntry records one routing decision and its result.
type SelectionLogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	LeaseID     string    `json:"lease_id,omitempty"`
	TargetModel string    `json:"target_model"`
	Strategy    string    `json:"strategy"`
	ProviderID  string    `json:"provider_id,omitempty"`
	KeyID       string    `json:"key_id,omitempty"`
	Outcome     string    `json:"outcome"`
	LatencyMs   float64   `json:"latency_ms,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// SelectionLogStore is a thread-safe circular buffer of recent selections.
type SelectionLogStore struct {
	mu       sync.RWMutex
	logs     []SelectionLogEntry
	capacity int
	index    int
	size     int
}

// NewSelectionLogStore creates a store holding at most capacity entries.
func NewSelectionLogStore(capacity int) *SelectionLogStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &SelectionLogStore{
		logs:     make([]SelectionLogEntry, capacity),
		capacity: capacity,
	}
}

// Add appends a new entry, evicting the oldest once full.
func (s *SelectionLogStore) Add(entry SelectionLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[s.index] = entry
	s.index = (s.index + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}
}

// QueryOptions filters selection log queries.
type QueryOptions struct {
	ProviderID  string
	TargetModel string
	Outcome     string
	Limit       int
}

// Query returns matching entries, newest first.
func (s *SelectionLogStore) Query(opts QueryOptions) []SelectionLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.size == 0 {
		return []SelectionLogEntry{}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	result := make([]SelectionLogEntry, 0, limit)
	for i := 0; i < s.size && len(result) < limit; i++ {
		idx := (s.index - 1 - i + s.capacity) % s.capacity
		entry := s.logs[idx]

		if opts.ProviderID != "" && entry.ProviderID != opts.ProviderID {
			continue
		}
		if opts.TargetModel != "" && entry.TargetModel != opts.TargetModel {
			continue
		}
		if opts.Outcome != "" && entry.Outcome != opts.Outcome {
			continue
		}

		result = append(result, entry)
	}
	return result
}

// Stats returns basic statistics about the stored entries.
func (s *SelectionLogStore) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"total_stored": s.size,
		"capacity":     s.capacity,
	}
}

// Clear removes all stored entries.
func (s *SelectionLogStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = make([]SelectionLogEntry, s.capacity)
	s.index = 0
	s.size = 0
}
