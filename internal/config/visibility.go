package config

// FieldID names a configuration form field whose visibility depends on other
// fields. Administrative UIs re-evaluate the visible set after every mutation
// instead of toggling individual fields ad hoc.
type FieldID string

// Pool-scoped fields.
const (
	FieldPoolEnabled              FieldID = "pool.enabled"
	FieldPoolTargetModel          FieldID = "pool.targetModel"
	FieldPoolStrategy             FieldID = "pool.strategy"
	FieldPoolAutoDiscover         FieldID = "pool.autoDiscover"
	FieldPoolExcludedProviders    FieldID = "pool.excludedProviderIds"
	FieldPoolDefaultCooldown      FieldID = "pool.defaultCooldownSeconds"
	FieldPoolDefaultMaxConcurrent FieldID = "pool.defaultMaxConcurrentPerKey"
)

// Provider-scoped fields.
const (
	FieldKeyWeight             FieldID = "provider.apiKeys.weight"
	FieldProviderMaxConcurrent FieldID = "provider.maxConcurrentPerKey"
	FieldHealthEnabled         FieldID = "provider.healthCheck.enabled"
	FieldHealthInterval        FieldID = "provider.healthCheck.intervalSeconds"
	FieldHealthCooldown        FieldID = "provider.healthCheck.cooldownSeconds"
	FieldHealthThreshold       FieldID = "provider.healthCheck.failureThreshold"
)

// FieldSet is the result of a visibility evaluation.
type FieldSet map[FieldID]struct{}

// Has reports whether id is visible.
func (s FieldSet) Has(id FieldID) bool {
	_, ok := s[id]
	return ok
}

func (s FieldSet) add(ids ...FieldID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// PoolVisibleFields computes the visible pool configuration fields. The
// enable toggle is always shown; everything else appears only once the pool
// is enabled, and key weights only matter under weighted_random.
func PoolVisibleFields(pool PoolConfig) FieldSet {
	s := make(FieldSet)
	s.add(FieldPoolEnabled)
	if !pool.Enabled {
		return s
	}
	s.add(
		FieldPoolTargetModel,
		FieldPoolStrategy,
		FieldPoolAutoDiscover,
		FieldPoolExcludedProviders,
		FieldPoolDefaultCooldown,
		FieldPoolDefaultMaxConcurrent,
	)
	return s
}

// ProviderVisibleFields computes the visible fields for one provider given
// the current pool settings.
func ProviderVisibleFields(p Provider, pool PoolConfig) FieldSet {
	s := make(FieldSet)
	s.add(FieldHealthEnabled)
	if p.HealthCheck.Enabled {
		s.add(FieldHealthInterval, FieldHealthCooldown, FieldHealthThreshold)
	}
	if pool.Enabled {
		s.add(FieldProviderMaxConcurrent)
	}
	if effectiveStrategy(p, pool) == StrategyWeightedRandom {
		s.add(FieldKeyWeight)
	}
	return s
}

// effectiveStrategy resolves the strategy that governs a provider's keys: the
// provider-level override when present, the pool strategy otherwise.
func effectiveStrategy(p Provider, pool PoolConfig) string {
	if p.RoutingStrategy != "" {
		return p.RoutingStrategy
	}
	return pool.Strategy
}
