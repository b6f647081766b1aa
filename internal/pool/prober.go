package pool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"embedpool/internal/config"
)

// ProbeFunc issues one lightweight test call against a provider key. A nil
// error counts as a healthy observation.
type ProbeFunc func(ctx context.Context, provider config.Provider, key config.APIKey) error

// KeyTestResult is the outcome of one administrative key test.
type KeyTestResult struct {
	KeyID     string  `json:"keyId"`
	Success   bool    `json:"success"`
	LatencyMs float64 `json:"latencyMs"`
	Error     string  `json:"error,omitempty"`
}

// Prober periodically tests every enabled key of providers whose health check
// is switched on, feeding results through the pool manager's health path.
// Probes run outside any engine lock; only the reported result is applied
// under the tracker's lock.
type Prober struct {
	cfg    *config.Manager
	pool   *Manager
	probe  ProbeFunc
	logger *zap.Logger

	mu         sync.Mutex
	lastRun    map[string]time.Time
	inProgress map[string]bool
}

// NewProber constructs a prober. A nil probe falls back to HTTPProbe with a
// default client.
func NewProber(cfg *config.Manager, pool *Manager, probe ProbeFunc, logger *zap.Logger) *Prober {
	if probe == nil {
		probe = HTTPProbe(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		cfg:        cfg,
		pool:       pool,
		probe:      probe,
		logger:     logger,
		lastRun:    make(map[string]time.Time),
		inProgress: make(map[string]bool),
	}
}

// Run drives the probe schedule until ctx is done. Each provider is probed on
// its own healthCheck interval, independent of request traffic.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Prober) tick(ctx context.Context) {
	doc := p.cfg.Current()
	if doc == nil {
		return
	}

	now := time.Now()
	for i := range doc.Providers {
		prov := doc.Providers[i]
		if !prov.Enabled || !prov.HealthCheck.Enabled {
			continue
		}
		interval := time.Duration(prov.HealthCheck.IntervalSeconds) * time.Second

		p.mu.Lock()
		due := now.Sub(p.lastRun[prov.ID]) >= interval && !p.inProgress[prov.ID]
		if due {
			p.lastRun[prov.ID] = now
			p.inProgress[prov.ID] = true
		}
		p.mu.Unlock()

		if !due {
			continue
		}

		go func(prov config.Provider, interval time.Duration) {
			defer func() {
				p.mu.Lock()
				p.inProgress[prov.ID] = false
				p.mu.Unlock()
			}()
			p.probeProvider(ctx, prov, interval)
		}(prov, interval)
	}
}

func (p *Prober) probeProvider(ctx context.Context, prov config.Provider, interval time.Duration) {
	keys := prov.EnabledKeys()
	if len(keys) == 0 {
		return
	}

	// Spread the key probes across the interval instead of bursting them
	// all at the tick instant.
	limiter := rate.NewLimiter(rate.Every(interval/time.Duration(2*len(keys))), 1)
	timeout := probeTimeout(interval)

	for _, k := range keys {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		result := p.probeKey(ctx, prov, k, timeout)
		if !result.Success {
			p.logger.Debug("health probe failed",
				zap.String("provider", prov.ID),
				zap.String("key", k.ID),
				zap.String("error", result.Error),
			)
		}
	}
}

func (p *Prober) probeKey(ctx context.Context, prov config.Provider, k config.APIKey, timeout time.Duration) KeyTestResult {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.probe(pctx, prov, k)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000

	p.pool.ReportProbe(prov, k, err, latencyMs)

	result := KeyTestResult{KeyID: k.ID, Success: err == nil, LatencyMs: latencyMs}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// TestProviderKeys synchronously probes every enabled key of the provider
// through the same health-reporting path as live traffic.
func (p *Prober) TestProviderKeys(ctx context.Context, providerID string) ([]KeyTestResult, error) {
	prov, err := p.cfg.Provider(providerID)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(prov.HealthCheck.IntervalSeconds) * time.Second
	timeout := probeTimeout(interval)

	results := make([]KeyTestResult, 0, len(prov.APIKeys))
	for _, k := range prov.EnabledKeys() {
		results = append(results, p.probeKey(ctx, prov, k, timeout))
	}
	return results, nil
}

// probeTimeout keeps a probe well inside its interval so checks cannot pile
// up across ticks.
func probeTimeout(interval time.Duration) time.Duration {
	timeout := interval / 4
	if timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	if timeout < time.Second {
		timeout = time.Second
	}
	return timeout
}

// HTTPProbe returns a ProbeFunc issuing a GET against the provider's API base
// with the key's bearer credential. Any transport error, auth rejection, rate
// limit, or server error counts as a failure; other responses only prove
// reachability and count as success.
func HTTPProbe(client *http.Client) ProbeFunc {
	if client == nil {
		client = &http.Client{}
	}
	return func(ctx context.Context, provider config.Provider, key config.APIKey) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.APIBase, nil)
		if err != nil {
			return fmt.Errorf("build probe request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+key.Secret)

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("probe request: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

		switch {
		case resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusForbidden,
			resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= 500:
			return fmt.Errorf("probe status %d", resp.StatusCode)
		}
		return nil
	}
}
