package pool

import (
	"math/rand"
	"sync"
	"time"

	"embedpool/internal/config"
)

// Candidate is one selectable binding together with the state a strategy may
// consult. LatencyMs is the key's EWMA; zero means the key has seen no
// traffic yet and latency-aware selection tries it first to bootstrap data.
type Candidate struct {
	Binding   Binding
	Weight    int
	LatencyMs float64
}

// Strategy picks one candidate index from an already-filtered set. The cursor
// is a per-target-model counter snapshot used by rotation-style strategies.
// Implementations must be safe for concurrent use.
type Strategy interface {
	Name() string
	Select(candidates []Candidate, cursor uint64) (int, error)
}

// RoundRobinStrategy advances over the stable candidate ordering so that over
// N calls with a fixed set of size K every candidate is chosen N/K times,
// within one.
type RoundRobinStrategy struct{}

func (s *RoundRobinStrategy) Name() string { return config.StrategyRoundRobin }

func (s *RoundRobinStrategy) Select(candidates []Candidate, cursor uint64) (int, error) {
	if len(candidates) == 0 {
		return 0, ErrNoEligibleKey
	}
	// The cursor starts at 1 for the first call.
	return int((cursor - 1) % uint64(len(candidates))), nil
}

// LatencyAwareStrategy selects the candidate with the lowest EWMA latency,
// breaking ties round-robin so equally fast keys are not starved.
type LatencyAwareStrategy struct{}

func (s *LatencyAwareStrategy) Name() string { return config.StrategyLatencyAware }

func (s *LatencyAwareStrategy) Select(candidates []Candidate, cursor uint64) (int, error) {
	if len(candidates) == 0 {
		return 0, ErrNoEligibleKey
	}

	best := candidates[0].LatencyMs
	for _, c := range candidates[1:] {
		if c.LatencyMs < best {
			best = c.LatencyMs
		}
	}

	tied := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if c.LatencyMs == best {
			tied = append(tied, i)
		}
	}
	return tied[int((cursor-1)%uint64(len(tied)))], nil
}

// WeightedRandomStrategy draws candidates with probability proportional to
// their weight. Zero-weight keys are never selected even when eligible.
type WeightedRandomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeightedRandomStrategy constructs the strategy around the given source
// of randomness; a nil rng falls back to a time-seeded one.
func NewWeightedRandomStrategy(rng *rand.Rand) *WeightedRandomStrategy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &WeightedRandomStrategy{rng: rng}
}

func (s *WeightedRandomStrategy) Name() string { return config.StrategyWeightedRandom }

func (s *WeightedRandomStrategy) Select(candidates []Candidate, _ uint64) (int, error) {
	total := 0
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return 0, ErrNoEligibleKey
	}

	s.mu.Lock()
	draw := s.rng.Intn(total)
	s.mu.Unlock()

	for i, c := range candidates {
		draw -= c.Weight
		if draw < 0 {
			return i, nil
		}
	}
	return len(candidates) - 1, nil
}
