package pool

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func candidateSet(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{
			Binding: Binding{ProviderID: "p", KeyID: string(rune('a' + i)), ModelID: "emb-v3"},
			Weight:  1,
		}
	}
	return out
}

func TestRoundRobinFairness(t *testing.T) {
	const (
		k = 4
		n = 403
	)
	strat := &RoundRobinStrategy{}
	candidates := candidateSet(k)

	counts := make([]int, k)
	for cursor := uint64(1); cursor <= n; cursor++ {
		idx, err := strat.Select(candidates, cursor)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		counts[idx]++
	}

	for i, c := range counts {
		if c < n/k || c > n/k+1 {
			t.Fatalf("candidate %d selected %d times, want %d or %d", i, c, n/k, n/k+1)
		}
	}
}

func TestRoundRobinEmptySet(t *testing.T) {
	strat := &RoundRobinStrategy{}
	if _, err := strat.Select(nil, 1); !errors.Is(err, ErrNoEligibleKey) {
		t.Fatalf("expected ErrNoEligibleKey, got %v", err)
	}
}

func TestLatencyAwarePrefersLowestEWMA(t *testing.T) {
	strat := &LatencyAwareStrategy{}
	candidates := candidateSet(3)
	candidates[0].LatencyMs = 120
	candidates[1].LatencyMs = 40
	candidates[2].LatencyMs = 90

	for cursor := uint64(1); cursor <= 5; cursor++ {
		idx, err := strat.Select(candidates, cursor)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if idx != 1 {
			t.Fatalf("expected lowest-latency candidate, got index %d", idx)
		}
	}
}

func TestLatencyAwareBootstrapsUntriedKeys(t *testing.T) {
	strat := &LatencyAwareStrategy{}
	candidates := candidateSet(2)
	candidates[0].LatencyMs = 15
	candidates[1].LatencyMs = 0 // no traffic yet: tried first

	idx, err := strat.Select(candidates, 1)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected untried candidate, got index %d", idx)
	}
}

func TestLatencyAwareBreaksTiesRoundRobin(t *testing.T) {
	strat := &LatencyAwareStrategy{}
	candidates := candidateSet(3)
	candidates[0].LatencyMs = 50
	candidates[1].LatencyMs = 50
	candidates[2].LatencyMs = 80

	seen := make(map[int]int)
	for cursor := uint64(1); cursor <= 6; cursor++ {
		idx, err := strat.Select(candidates, cursor)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		seen[idx]++
	}
	if seen[0] != 3 || seen[1] != 3 {
		t.Fatalf("tied candidates should alternate, got %v", seen)
	}
	if seen[2] != 0 {
		t.Fatalf("slower candidate must not be selected, got %v", seen)
	}
}

func TestWeightedRandomConvergence(t *testing.T) {
	strat := NewWeightedRandomStrategy(rand.New(rand.NewSource(7)))
	candidates := candidateSet(2)
	candidates[0].Weight = 1
	candidates[1].Weight = 3

	const draws = 10000
	counts := make([]int, 2)
	for i := 0; i < draws; i++ {
		idx, err := strat.Select(candidates, 0)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		counts[idx]++
	}

	ratio := float64(counts[0]) / draws
	if math.Abs(ratio-0.25) > 0.02 {
		t.Fatalf("empirical ratio %f too far from 0.25 (counts %v)", ratio, counts)
	}
}

func TestWeightedRandomSkipsZeroWeight(t *testing.T) {
	strat := NewWeightedRandomStrategy(rand.New(rand.NewSource(1)))
	candidates := candidateSet(2)
	candidates[0].Weight = 0
	candidates[1].Weight = 5

	for i := 0; i < 1000; i++ {
		idx, err := strat.Select(candidates, 0)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if idx == 0 {
			t.Fatal("zero-weight candidate must never be selected")
		}
	}
}

func TestWeightedRandomAllZeroWeights(t *testing.T) {
	strat := NewWeightedRandomStrategy(rand.New(rand.NewSource(1)))
	candidates := candidateSet(2)
	candidates[0].Weight = 0
	candidates[1].Weight = 0

	if _, err := strat.Select(candidates, 0); !errors.Is(err, ErrNoEligibleKey) {
		t.Fatalf("expected ErrNoEligibleKey, got %v", err)
	}
}
