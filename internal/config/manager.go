package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Default values applied to omitted tuning fields during parsing.
const (
	DefaultCooldownSeconds     = 60
	DefaultMaxConcurrentPerKey = 4
	DefaultIntervalSeconds     = 30
	DefaultFailureThreshold    = 3
)

// Manager stores the parsed registry document and provides concurrent-safe
// lookups. Swaps are whole-document: a failed parse never disturbs the
// previously loaded snapshot.
type Manager struct {
	mu     sync.RWMutex
	data   *resolvedDocument
	path   string
	onSwap func()
}

// resolvedDocument is an indexed representation of Document for fast lookups.
// The raw document is treated as immutable once swapped in.
type resolvedDocument struct {
	raw       *Document
	providers map[string]*Provider
}

// NewManager constructs an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// OnSwap registers fn to run after every successful snapshot swap (initial
// load, reload, or administrative mutation). fn is invoked without the
// manager's lock held.
func (m *Manager) OnSwap(fn func()) {
	m.mu.Lock()
	m.onSwap = fn
	m.mu.Unlock()
}

// LoadFromFile parses the YAML at path and, if valid, swaps it into the manager.
func (m *Manager) LoadFromFile(path string) error {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	doc, err := parse(bytes)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data = doc
	m.path = path
	fn := m.onSwap
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// Current returns a copy of the raw document for inspection, or nil when
// nothing has been loaded.
func (m *Manager) Current() *Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil || m.data.raw == nil {
		return nil
	}
	out := *m.data.raw
	return &out
}

// Pool returns the pool settings of the current snapshot.
func (m *Manager) Pool() (PoolConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return PoolConfig{}, ErrConfigNotLoaded
	}
	return m.data.raw.Pool, nil
}

// Providers returns the providers of the current snapshot. The returned slice
// must be treated as read-only.
func (m *Manager) Providers() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil
	}
	return m.data.raw.Providers
}

// Provider looks up a provider by id.
func (m *Manager) Provider(id string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return Provider{}, ErrConfigNotLoaded
	}
	p, ok := m.data.providers[id]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return *p, nil
}

// ReplacePool swaps in a new pool configuration, keeping the current provider
// registry, and persists the document when a config path is known.
func (m *Manager) ReplacePool(pool PoolConfig) error {
	m.mu.Lock()
	if m.data == nil {
		m.mu.Unlock()
		return ErrConfigNotLoaded
	}
	next := *m.data.raw
	next.Pool = pool

	resolved, err := revalidate(&next)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.data = resolved
	path := m.path
	fn := m.onSwap
	m.mu.Unlock()

	if path != "" {
		if err := saveDocument(resolved.raw, path); err != nil {
			return err
		}
	}
	if fn != nil {
		fn()
	}
	return nil
}

// SetExclusion toggles providerID's membership in the pool exclusion list.
// It reports whether the list actually changed. The change takes effect on
// the next selection; in-flight leases are unaffected.
func (m *Manager) SetExclusion(providerID string, excluded bool) (bool, error) {
	m.mu.Lock()
	if m.data == nil {
		m.mu.Unlock()
		return false, ErrConfigNotLoaded
	}
	if _, ok := m.data.providers[providerID]; !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}

	pool := m.data.raw.Pool
	if pool.Excluded(providerID) == excluded {
		m.mu.Unlock()
		return false, nil
	}

	next := *m.data.raw
	if excluded {
		next.Pool.ExcludedProviderIDs = append(append([]string(nil), pool.ExcludedProviderIDs...), providerID)
		sort.Strings(next.Pool.ExcludedProviderIDs)
	} else {
		kept := make([]string, 0, len(pool.ExcludedProviderIDs))
		for _, id := range pool.ExcludedProviderIDs {
			if id != providerID {
				kept = append(kept, id)
			}
		}
		next.Pool.ExcludedProviderIDs = kept
	}

	resolved, err := revalidate(&next)
	if err != nil {
		m.mu.Unlock()
		return false, err
	}
	m.data = resolved
	path := m.path
	fn := m.onSwap
	m.mu.Unlock()

	if path != "" {
		if err := saveDocument(resolved.raw, path); err != nil {
			return true, err
		}
	}
	if fn != nil {
		fn()
	}
	return true, nil
}

func saveDocument(doc *Document, path string) error {
	payload, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// revalidate round-trips a mutated document through the normal parse path so
// administrative writes obey the same rules as file loads.
func revalidate(doc *Document) (*resolvedDocument, error) {
	payload, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return parse(payload)
}

func parse(b []byte) (*resolvedDocument, error) {
	var raw Document
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := sanitizePool(&raw.Pool); err != nil {
		return nil, err
	}

	providers := make(map[string]*Provider, len(raw.Providers))
	for i := range raw.Providers {
		p := &raw.Providers[i]
		if err := sanitizeProvider(p, i); err != nil {
			return nil, err
		}
		if _, exists := providers[p.ID]; exists {
			return nil, fmt.Errorf("provider id '%s' duplicated", p.ID)
		}
		providers[p.ID] = p
	}

	return &resolvedDocument{raw: &raw, providers: providers}, nil
}

func sanitizePool(pool *PoolConfig) error {
	pool.TargetModel = strings.TrimSpace(pool.TargetModel)
	pool.Strategy = strings.TrimSpace(pool.Strategy)
	if pool.Strategy == "" {
		pool.Strategy = StrategyRoundRobin
	}
	if !validStrategy(pool.Strategy) {
		return fmt.Errorf("pool: unsupported strategy '%s'", pool.Strategy)
	}
	if pool.Enabled && pool.TargetModel == "" {
		return fmt.Errorf("pool: targetModel is required when pool is enabled")
	}
	if pool.DefaultCooldownSeconds < 0 {
		return fmt.Errorf("pool: defaultCooldownSeconds must not be negative")
	}
	if pool.DefaultCooldownSeconds == 0 {
		pool.DefaultCooldownSeconds = DefaultCooldownSeconds
	}
	if pool.DefaultMaxConcurrentPerKey < 0 {
		return fmt.Errorf("pool: defaultMaxConcurrentPerKey must not be negative")
	}
	if pool.DefaultMaxConcurrentPerKey == 0 {
		pool.DefaultMaxConcurrentPerKey = DefaultMaxConcurrentPerKey
	}

	seen := make(map[string]struct{}, len(pool.ExcludedProviderIDs))
	deduped := make([]string, 0, len(pool.ExcludedProviderIDs))
	for _, id := range pool.ExcludedProviderIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	sort.Strings(deduped)
	pool.ExcludedProviderIDs = deduped
	return nil
}

func sanitizeProvider(p *Provider, idx int) error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return fmt.Errorf("providers[%d]: id is required", idx)
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = p.ID
	}
	p.APIBase = strings.TrimSpace(p.APIBase)
	if p.APIBase == "" {
		return fmt.Errorf("provider '%s': apiBase is required", p.ID)
	}
	p.RoutingStrategy = strings.TrimSpace(p.RoutingStrategy)
	if p.RoutingStrategy != "" && !validStrategy(p.RoutingStrategy) {
		return fmt.Errorf("provider '%s': unsupported routingStrategy '%s'", p.ID, p.RoutingStrategy)
	}
	if p.MaxConcurrentPerKey < 0 {
		return fmt.Errorf("provider '%s': maxConcurrentPerKey must not be negative", p.ID)
	}

	modelIDs := make(map[string]struct{}, len(p.Models))
	for j := range p.Models {
		m := &p.Models[j]
		m.ModelID = strings.TrimSpace(m.ModelID)
		if m.ModelID == "" {
			return fmt.Errorf("provider '%s' models[%d]: modelId is required", p.ID, j)
		}
		if _, dup := modelIDs[m.ModelID]; dup {
			return fmt.Errorf("provider '%s': duplicate model id '%s'", p.ID, m.ModelID)
		}
		modelIDs[m.ModelID] = struct{}{}
		if m.ModelName == "" {
			m.ModelName = m.ModelID
		}
		if m.Dimensions < 0 {
			return fmt.Errorf("provider '%s' model '%s': dimensions must not be negative", p.ID, m.ModelID)
		}
	}

	keyIDs := make(map[string]struct{}, len(p.APIKeys))
	for j := range p.APIKeys {
		k := &p.APIKeys[j]
		k.ID = strings.TrimSpace(k.ID)
		if k.ID == "" {
			return fmt.Errorf("provider '%s' apiKeys[%d]: id is required", p.ID, j)
		}
		if _, dup := keyIDs[k.ID]; dup {
			return fmt.Errorf("provider '%s': duplicate apiKey id '%s'", p.ID, k.ID)
		}
		keyIDs[k.ID] = struct{}{}
		k.Secret = strings.TrimSpace(k.Secret)
		if k.Secret == "" {
			return fmt.Errorf("provider '%s' apiKey '%s': secret must not be empty", p.ID, k.ID)
		}
		if k.Label == "" {
			k.Label = k.ID
		}
		if k.Weight < 0 {
			return fmt.Errorf("provider '%s' apiKey '%s': weight must not be negative", p.ID, k.ID)
		}
		switch k.HealthStatus {
		case "", HealthUnknown:
			k.HealthStatus = HealthUnknown
		case HealthHealthy, HealthUnhealthy:
		default:
			return fmt.Errorf("provider '%s' apiKey '%s': unsupported healthStatus '%s'", p.ID, k.ID, k.HealthStatus)
		}
	}

	hc := &p.HealthCheck
	if hc.IntervalSeconds < 0 || hc.CooldownSeconds < 0 || hc.FailureThreshold < 0 {
		return fmt.Errorf("provider '%s': healthCheck values must not be negative", p.ID)
	}
	if hc.IntervalSeconds == 0 {
		hc.IntervalSeconds = DefaultIntervalSeconds
	}
	if hc.FailureThreshold == 0 {
		hc.FailureThreshold = DefaultFailureThreshold
	}
	return nil
}

func validStrategy(s string) bool {
	switch s {
	case StrategyRoundRobin, StrategyLatencyAware, StrategyWeightedRandom:
		return true
	}
	return false
}

// ListModelIDs returns all unique model ids known to the registry.
func (m *Manager) ListModelIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, p := range m.data.raw.Providers {
		for _, model := range p.Models {
			seen[model.ModelID] = struct{}{}
		}
	}
	list := make([]string, 0, len(seen))
	for id := range seen {
		list = append(list, id)
	}
	sort.Strings(list)
	return list
}
