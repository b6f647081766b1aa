package pool

import (
	"sort"
	"sync"

	"embedpool/internal/config"
)

// Endpoint is the externally consumable projection of one binding.
type Endpoint struct {
	ID           string `json:"id"`
	ProviderID   string `json:"providerId"`
	ProviderName string `json:"providerName"`
	KeyID        string `json:"keyId"`
	ModelID      string `json:"modelId"`
	ModelName    string `json:"modelName"`
	URL          string `json:"url"`
	Dimensions   int    `json:"dimensions,omitempty"`
}

// SyncReport summarizes one synchronizer run.
type SyncReport struct {
	Success       bool `json:"success"`
	EndpointCount int  `json:"endpointCount"`
	Added         int  `json:"added"`
	Removed       int  `json:"removed"`
	Unchanged     int  `json:"unchanged"`
}

// BuildEndpoints projects bindings into endpoint records using the registry
// for names, URLs, and model dimensions.
func BuildEndpoints(doc *config.Document, bindings []Binding) []Endpoint {
	if doc == nil {
		return nil
	}

	providers := make(map[string]*config.Provider, len(doc.Providers))
	for i := range doc.Providers {
		providers[doc.Providers[i].ID] = &doc.Providers[i]
	}

	out := make([]Endpoint, 0, len(bindings))
	for _, b := range bindings {
		p, ok := providers[b.ProviderID]
		if !ok {
			continue
		}
		model, ok := p.ServesModel(b.ModelID)
		if !ok {
			continue
		}
		out = append(out, Endpoint{
			ID:           b.RuntimeKey() + "/" + b.ModelID,
			ProviderID:   p.ID,
			ProviderName: p.Name,
			KeyID:        b.KeyID,
			ModelID:      model.ModelID,
			ModelName:    model.ModelName,
			URL:          p.APIBase,
			Dimensions:   model.Dimensions,
		})
	}
	return out
}

// Synchronizer diffs successive endpoint projections. Running it twice with
// no intervening changes yields an empty diff.
type Synchronizer struct {
	mu       sync.Mutex
	previous map[string]Endpoint
}

// NewSynchronizer constructs a synchronizer with no previous set.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{previous: make(map[string]Endpoint)}
}

// Sync replaces the synced set with endpoints and reports the diff against
// the previous run.
func (s *Synchronizer) Sync(endpoints []Endpoint) SyncReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]Endpoint, len(endpoints))
	report := SyncReport{Success: true, EndpointCount: len(endpoints)}
	for _, ep := range endpoints {
		next[ep.ID] = ep
		if _, existed := s.previous[ep.ID]; existed {
			report.Unchanged++
		} else {
			report.Added++
		}
	}
	for id := range s.previous {
		if _, kept := next[id]; !kept {
			report.Removed++
		}
	}

	s.previous = next
	return report
}

// Endpoints returns the currently synced records ordered by id.
func (s *Synchronizer) Endpoints() []Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Endpoint, 0, len(s.previous))
	for _, ep := range s.previous {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
