package config

// Rotation strategies accepted by PoolConfig.Strategy and Provider.RoutingStrategy.
const (
	StrategyRoundRobin     = "round_robin"
	StrategyLatencyAware   = "latency_aware"
	StrategyWeightedRandom = "weighted_random"
)

// Persisted health status values for a key. Live health is owned by the pool
// engine; the persisted value only records the last known state.
const (
	HealthUnknown   = "unknown"
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Document is the full persisted configuration surface: the provider registry
// plus the embedding pool settings that drive selection.
type Document struct {
	Pool      PoolConfig `yaml:"pool" json:"pool"`
	Providers []Provider `yaml:"providers" json:"providers"`
}

// Provider describes one upstream vendor: its endpoint, the models it serves,
// and the credential pool used to reach it.
type Provider struct {
	ID              string      `yaml:"id" json:"id"`
	Name            string      `yaml:"name" json:"name"`
	Type            string      `yaml:"type" json:"type"`
	APIBase         string      `yaml:"apiBase" json:"apiBase"`
	Enabled         bool        `yaml:"enabled" json:"enabled"`
	Models          []Model     `yaml:"models" json:"models"`
	APIKeys         []APIKey    `yaml:"apiKeys" json:"apiKeys"`
	RoutingStrategy string      `yaml:"routingStrategy,omitempty" json:"routingStrategy,omitempty"`
	HealthCheck     HealthCheck `yaml:"healthCheck" json:"healthCheck"`

	// MaxConcurrentPerKey overrides PoolConfig.DefaultMaxConcurrentPerKey
	// for this provider's keys. Zero means no override.
	MaxConcurrentPerKey int `yaml:"maxConcurrentPerKey,omitempty" json:"maxConcurrentPerKey,omitempty"`
}

// Model is one servable model entry on a provider.
type Model struct {
	ModelID    string `yaml:"modelId" json:"modelId"`
	ModelName  string `yaml:"modelName" json:"modelName"`
	Dimensions int    `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
}

// APIKey is one credential in a provider's pool. HealthStatus carries the last
// persisted status; the engine re-derives live status from traffic.
type APIKey struct {
	ID           string `yaml:"id" json:"id"`
	Secret       string `yaml:"secret" json:"secret"`
	Label        string `yaml:"label" json:"label"`
	Weight       int    `yaml:"weight" json:"weight"`
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	HealthStatus string `yaml:"healthStatus,omitempty" json:"healthStatus,omitempty"`
}

// HealthCheck tunes the active prober and the failure/cooldown state machine
// for a provider's keys.
type HealthCheck struct {
	Enabled          bool `yaml:"enabled" json:"enabled"`
	IntervalSeconds  int  `yaml:"intervalSeconds" json:"intervalSeconds"`
	CooldownSeconds  int  `yaml:"cooldownSeconds" json:"cooldownSeconds"`
	FailureThreshold int  `yaml:"failureThreshold" json:"failureThreshold"`
}

// PoolConfig drives pooled selection for a target model.
type PoolConfig struct {
	Enabled                    bool     `yaml:"enabled" json:"enabled"`
	TargetModel                string   `yaml:"targetModel" json:"targetModel"`
	Strategy                   string   `yaml:"strategy" json:"strategy"`
	AutoDiscover               bool     `yaml:"autoDiscover" json:"autoDiscover"`
	ExcludedProviderIDs        []string `yaml:"excludedProviderIds" json:"excludedProviderIds"`
	DefaultCooldownSeconds     int      `yaml:"defaultCooldownSeconds" json:"defaultCooldownSeconds"`
	DefaultMaxConcurrentPerKey int      `yaml:"defaultMaxConcurrentPerKey" json:"defaultMaxConcurrentPerKey"`
}

// Excluded reports whether providerID is on the pool's exclusion list.
func (p *PoolConfig) Excluded(providerID string) bool {
	for _, id := range p.ExcludedProviderIDs {
		if id == providerID {
			return true
		}
	}
	return false
}

// EnabledKeys returns the provider's enabled keys in declaration order.
func (p *Provider) EnabledKeys() []APIKey {
	keys := make([]APIKey, 0, len(p.APIKeys))
	for _, k := range p.APIKeys {
		if k.Enabled {
			keys = append(keys, k)
		}
	}
	return keys
}

// ServesModel reports whether the provider lists modelID (exact match).
func (p *Provider) ServesModel(modelID string) (Model, bool) {
	for _, m := range p.Models {
		if m.ModelID == modelID {
			return m, true
		}
	}
	return Model{}, false
}
