package config

import "testing"

func TestPoolVisibleFields(t *testing.T) {
	disabled := PoolVisibleFields(PoolConfig{Enabled: false})
	if !disabled.Has(FieldPoolEnabled) {
		t.Fatal("enable toggle must always be visible")
	}
	if len(disabled) != 1 {
		t.Fatalf("disabled pool should hide everything else, got %v", disabled)
	}

	enabled := PoolVisibleFields(PoolConfig{Enabled: true, Strategy: StrategyRoundRobin})
	for _, id := range []FieldID{
		FieldPoolTargetModel,
		FieldPoolStrategy,
		FieldPoolAutoDiscover,
		FieldPoolExcludedProviders,
		FieldPoolDefaultCooldown,
		FieldPoolDefaultMaxConcurrent,
	} {
		if !enabled.Has(id) {
			t.Fatalf("expected %s to be visible on an enabled pool", id)
		}
	}
}

func TestProviderVisibleFields(t *testing.T) {
	pool := PoolConfig{Enabled: true, Strategy: StrategyRoundRobin}

	plain := ProviderVisibleFields(Provider{}, pool)
	if !plain.Has(FieldHealthEnabled) {
		t.Fatal("health toggle must always be visible")
	}
	if plain.Has(FieldHealthInterval) || plain.Has(FieldHealthCooldown) || plain.Has(FieldHealthThreshold) {
		t.Fatalf("health tuning should be hidden while checks are off, got %v", plain)
	}
	if plain.Has(FieldKeyWeight) {
		t.Fatal("key weights only matter under weighted_random")
	}
	if !plain.Has(FieldProviderMaxConcurrent) {
		t.Fatal("concurrency override should be visible while the pool is enabled")
	}

	withChecks := ProviderVisibleFields(Provider{HealthCheck: HealthCheck{Enabled: true}}, pool)
	for _, id := range []FieldID{FieldHealthInterval, FieldHealthCooldown, FieldHealthThreshold} {
		if !withChecks.Has(id) {
			t.Fatalf("expected %s once health checks are on", id)
		}
	}
}

func TestProviderVisibleFieldsWeight(t *testing.T) {
	// The pool-level strategy governs when the provider has no override.
	pool := PoolConfig{Enabled: true, Strategy: StrategyWeightedRandom}
	if !ProviderVisibleFields(Provider{}, pool).Has(FieldKeyWeight) {
		t.Fatal("expected weight field under a weighted_random pool")
	}

	// A provider-level override takes precedence in both directions.
	rr := Provider{RoutingStrategy: StrategyRoundRobin}
	if ProviderVisibleFields(rr, pool).Has(FieldKeyWeight) {
		t.Fatal("round_robin override should hide the weight field")
	}
	wr := Provider{RoutingStrategy: StrategyWeightedRandom}
	if !ProviderVisibleFields(wr, PoolConfig{Enabled: true, Strategy: StrategyRoundRobin}).Has(FieldKeyWeight) {
		t.Fatal("weighted_random override should show the weight field")
	}
}
