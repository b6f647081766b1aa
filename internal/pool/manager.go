package pool

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"embedpool/internal/config"
	"embedpool/internal/logging"
	"embedpool/internal/metrics"
)

// Lease grants the holder one call against a selected key. Every lease must
// be settled by exactly one RecordResult; later calls on the same lease are
// no-ops.
type Lease struct {
	ID      string
	Binding Binding
	Secret  string
	APIBase string

	providerName     string
	runtimeKey       string
	strategy         string
	failureThreshold int
	cooldown         time.Duration
	acquiredAt       time.Time

	settled atomic.Bool
}

// Outcome reports how the call served by a lease went. LatencyMs is consulted
// only on success.
type Outcome struct {
	Success   bool
	LatencyMs float64
}

// KeyHealthView is one row of the administrative health snapshot.
type KeyHealthView struct {
	ProviderID          string    `json:"providerId"`
	KeyID               string    `json:"keyId"`
	Label               string    `json:"label"`
	Enabled             bool      `json:"enabled"`
	Status              string    `json:"status"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	CooldownUntil       time.Time `json:"cooldownUntil,omitempty"`
	LastLatencyMs       float64   `json:"lastLatencyMs,omitempty"`
	EWMALatencyMs       float64   `json:"ewmaLatencyMs,omitempty"`
	InFlight            int       `json:"inFlight"`
}

// Options configures a Manager. Zero values fall back to production defaults;
// tests inject a fake clock and a seeded RNG.
type Options struct {
	Logger     *zap.Logger
	Clock      Clock
	Rand       *rand.Rand
	Selections *logging.SelectionLogStore
}

// Manager orchestrates discovery, health filtering, strategy selection, and
// the concurrency gate against the current registry snapshot.
type Manager struct {
	cfg        *config.Manager
	logger     *zap.Logger
	clock      Clock
	health     *HealthTracker
	gate       *Gate
	strategies map[string]Strategy
	selections *logging.SelectionLogStore
	sync       *Synchronizer

	mu          sync.Mutex
	cursors     map[string]*atomic.Uint64
	prevEnabled map[string]bool
	lastReport  SyncReport
}

// NewManager constructs the pool engine over the given configuration manager.
func NewManager(cfg *config.Manager, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}

	m := &Manager{
		cfg:         cfg,
		logger:      logger,
		clock:       clock,
		health:      NewHealthTracker(clock),
		gate:        NewGate(),
		strategies:  make(map[string]Strategy),
		selections:  opts.Selections,
		sync:        NewSynchronizer(),
		cursors:     make(map[string]*atomic.Uint64),
		prevEnabled: make(map[string]bool),
	}

	m.RegisterStrategy(&RoundRobinStrategy{})
	m.RegisterStrategy(&LatencyAwareStrategy{})
	m.RegisterStrategy(NewWeightedRandomStrategy(opts.Rand))
	return m
}

// RegisterStrategy makes a selection strategy available under its name.
func (m *Manager) RegisterStrategy(s Strategy) {
	m.strategies[s.Name()] = s
}

// Acquire selects an eligible key for targetModel and admits one call against
// it. An empty targetModel falls back to the pool's configured target. It
// never blocks waiting for capacity: when every candidate is cooling down or
// at its limit it fails fast with ErrNoEligibleKey.
func (m *Manager) Acquire(targetModel string) (*Lease, error) {
	doc := m.cfg.Current()
	if doc == nil {
		return nil, config.ErrConfigNotLoaded
	}
	pool := doc.Pool

	if !pool.Enabled {
		metrics.ObserveAcquire(pool.Strategy, metrics.ResultPoolDisabled)
		m.logSelection(logging.SelectionLogEntry{
			TargetModel: targetModel,
			Strategy:    pool.Strategy,
			Outcome:     logging.OutcomePoolDisabled,
		})
		return nil, ErrPoolDisabled
	}
	if targetModel == "" {
		targetModel = pool.TargetModel
	}

	strat := m.strategies[pool.Strategy]
	if strat == nil {
		strat = m.strategies[config.StrategyRoundRobin]
	}

	providers := make(map[string]*config.Provider, len(doc.Providers))
	weights := make(map[string]int)
	for i := range doc.Providers {
		p := &doc.Providers[i]
		providers[p.ID] = p
		for _, k := range p.APIKeys {
			weights[p.ID+"/"+k.ID] = k.Weight
		}
	}

	bindings := Discover(doc, targetModel)
	candidates := make([]Candidate, 0, len(bindings))
	for _, b := range bindings {
		rk := b.RuntimeKey()
		if !m.health.Eligible(rk) {
			continue
		}
		candidates = append(candidates, Candidate{
			Binding:   b,
			Weight:    weights[rk],
			LatencyMs: m.health.EWMALatency(rk),
		})
	}

	cursor := m.cursorFor(targetModel)
	for len(candidates) > 0 {
		idx, err := strat.Select(candidates, cursor.Add(1))
		if err != nil {
			break
		}
		cand := candidates[idx]
		p := providers[cand.Binding.ProviderID]
		if m.gate.TryAcquire(cand.Binding.RuntimeKey(), limitFor(p, &pool)) {
			lease := m.newLease(cand.Binding, p, &pool, strat.Name(), targetModel)
			metrics.ObserveAcquire(strat.Name(), metrics.ResultOK)
			metrics.AddInFlight(p.ID, 1)
			return lease, nil
		}
		// Key is at capacity: drop it and let the strategy re-pick.
		candidates = append(candidates[:idx], candidates[idx+1:]...)
	}

	metrics.ObserveAcquire(strat.Name(), metrics.ResultNoEligibleKey)
	m.logSelection(logging.SelectionLogEntry{
		TargetModel: targetModel,
		Strategy:    strat.Name(),
		Outcome:     logging.OutcomeNoEligibleKey,
	})
	m.logger.Debug("acquire failed",
		zap.String("target_model", targetModel),
		zap.String("strategy", strat.Name()),
		zap.Int("bindings", len(bindings)),
	)
	return nil, ErrNoEligibleKey
}

func (m *Manager) newLease(b Binding, p *config.Provider, pool *config.PoolConfig, strategy, targetModel string) *Lease {
	var secret string
	for _, k := range p.APIKeys {
		if k.ID == b.KeyID {
			secret = k.Secret
			break
		}
	}
	return &Lease{
		ID:               uuid.NewString(),
		Binding:          b,
		Secret:           secret,
		APIBase:          p.APIBase,
		providerName:     p.Name,
		runtimeKey:       b.RuntimeKey(),
		strategy:         strategy,
		failureThreshold: p.HealthCheck.FailureThreshold,
		cooldown:         cooldownFor(p, pool),
		acquiredAt:       m.clock.Now(),
	}
}

// RecordResult settles a lease: health state advances and the concurrency
// slot is returned. It is safe to call with a nil lease and idempotent per
// lease; failures update the tracker and never propagate as errors.
func (m *Manager) RecordResult(lease *Lease, outcome Outcome) {
	if lease == nil || !lease.settled.CompareAndSwap(false, true) {
		return
	}

	entry := logging.SelectionLogEntry{
		Timestamp:   m.clock.Now(),
		LeaseID:     lease.ID,
		TargetModel: lease.Binding.ModelID,
		Strategy:    lease.strategy,
		ProviderID:  lease.Binding.ProviderID,
		KeyID:       lease.Binding.KeyID,
	}

	if outcome.Success {
		m.health.ReportSuccess(lease.runtimeKey, outcome.LatencyMs)
		entry.Outcome = logging.OutcomeSuccess
		entry.LatencyMs = outcome.LatencyMs
	} else {
		m.health.ReportFailure(lease.runtimeKey, lease.failureThreshold, lease.cooldown)
		entry.Outcome = logging.OutcomeFailure
	}

	m.gate.Release(lease.runtimeKey)
	metrics.AddInFlight(lease.Binding.ProviderID, -1)
	metrics.ObserveSelection(lease.Binding.ProviderID, lease.Binding.KeyID, !outcome.Success)
	m.logSelection(entry)
}

// SetExclusion toggles a provider's membership on the pool exclusion list.
// Effective on the next Acquire; in-flight leases are unaffected.
func (m *Manager) SetExclusion(providerID string, excluded bool) error {
	changed, err := m.cfg.SetExclusion(providerID, excluded)
	if err != nil {
		return err
	}
	if changed {
		m.logger.Info("provider exclusion updated",
			zap.String("provider", providerID),
			zap.Bool("excluded", excluded),
		)
	}
	return nil
}

// Refresh reconciles runtime state with the current registry snapshot and
// re-projects endpoints. It is meant to run after every configuration swap.
func (m *Manager) Refresh() SyncReport {
	doc := m.cfg.Current()
	if doc == nil {
		return SyncReport{}
	}

	active := make(map[string]bool)
	enabled := make(map[string]bool)
	for i := range doc.Providers {
		p := &doc.Providers[i]
		for _, k := range p.APIKeys {
			rk := p.ID + "/" + k.ID
			active[rk] = true
			enabled[rk] = p.Enabled && k.Enabled
		}
	}

	m.mu.Lock()
	var reenabled []string
	for rk, on := range enabled {
		if on && !m.prevEnabled[rk] {
			reenabled = append(reenabled, rk)
		}
	}
	m.prevEnabled = enabled
	m.mu.Unlock()

	m.health.Reconcile(active, reenabled)
	return m.SyncEndpoints()
}

// SyncEndpoints projects the current discovery result into endpoint records
// and diffs against the previously synced set. A disabled pool projects an
// empty set.
func (m *Manager) SyncEndpoints() SyncReport {
	doc := m.cfg.Current()
	if doc == nil {
		return SyncReport{}
	}

	var endpoints []Endpoint
	if doc.Pool.Enabled {
		endpoints = BuildEndpoints(doc, Discover(doc, doc.Pool.TargetModel))
	}

	report := m.sync.Sync(endpoints)
	m.mu.Lock()
	m.lastReport = report
	m.mu.Unlock()
	metrics.ObserveEndpointSync(report.EndpointCount, report.Added, report.Removed)
	if report.Added > 0 || report.Removed > 0 {
		m.logger.Info("endpoints synced",
			zap.Int("count", report.EndpointCount),
			zap.Int("added", report.Added),
			zap.Int("removed", report.Removed),
		)
	}
	return report
}

// Endpoints returns the currently synced endpoint records.
func (m *Manager) Endpoints() []Endpoint {
	return m.sync.Endpoints()
}

// LastSyncReport returns the report of the most recent endpoint sync.
func (m *Manager) LastSyncReport() SyncReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReport
}

// ReportProbe feeds an active or administrative probe result through the same
// health path as live traffic.
func (m *Manager) ReportProbe(p config.Provider, k config.APIKey, probeErr error, latencyMs float64) {
	doc := m.cfg.Current()
	pool := config.PoolConfig{DefaultCooldownSeconds: config.DefaultCooldownSeconds}
	if doc != nil {
		pool = doc.Pool
	}

	rk := p.ID + "/" + k.ID
	if probeErr == nil {
		m.health.ReportSuccess(rk, latencyMs)
	} else {
		m.health.ReportFailure(rk, p.HealthCheck.FailureThreshold, cooldownFor(&p, &pool))
	}
	metrics.ObserveProbe(p.ID, probeErr == nil)
}

// ResetKeyHealth forces a key back to unknown with counters cleared.
func (m *Manager) ResetKeyHealth(providerID, keyID string) error {
	p, err := m.cfg.Provider(providerID)
	if err != nil {
		return err
	}
	for _, k := range p.APIKeys {
		if k.ID == keyID {
			m.health.Reset(p.ID + "/" + k.ID)
			m.logger.Info("key health reset",
				zap.String("provider", providerID),
				zap.String("key", keyID),
			)
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", config.ErrKeyNotFound, providerID, keyID)
}

// HealthSnapshot returns the runtime health of every key in the registry.
func (m *Manager) HealthSnapshot() []KeyHealthView {
	doc := m.cfg.Current()
	if doc == nil {
		return nil
	}

	states := m.health.Snapshot()
	inFlight := m.gate.Snapshot()

	var out []KeyHealthView
	for i := range doc.Providers {
		p := &doc.Providers[i]
		for _, k := range p.APIKeys {
			rk := p.ID + "/" + k.ID
			view := KeyHealthView{
				ProviderID: p.ID,
				KeyID:      k.ID,
				Label:      k.Label,
				Enabled:    p.Enabled && k.Enabled,
				Status:     StatusUnknown,
				InFlight:   inFlight[rk],
			}
			if h, ok := states[rk]; ok {
				view.Status = h.Status
				view.ConsecutiveFailures = h.ConsecutiveFailures
				view.CooldownUntil = h.CooldownUntil
				view.LastLatencyMs = h.LastLatencyMs
				view.EWMALatencyMs = h.EWMALatencyMs
			}
			out = append(out, view)
		}
	}
	return out
}

func (m *Manager) cursorFor(targetModel string) *atomic.Uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[targetModel]
	if !ok {
		c = &atomic.Uint64{}
		m.cursors[targetModel] = c
	}
	return c
}

func (m *Manager) logSelection(entry logging.SelectionLogEntry) {
	if m.selections == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.clock.Now()
	}
	m.selections.Add(entry)
}

func limitFor(p *config.Provider, pool *config.PoolConfig) int {
	if p != nil && p.MaxConcurrentPerKey > 0 {
		return p.MaxConcurrentPerKey
	}
	return pool.DefaultMaxConcurrentPerKey
}

func cooldownFor(p *config.Provider, pool *config.PoolConfig) time.Duration {
	seconds := pool.DefaultCooldownSeconds
	if p != nil && p.HealthCheck.CooldownSeconds > 0 {
		seconds = p.HealthCheck.CooldownSeconds
	}
	return time.Duration(seconds) * time.Second
}
