package pool

import (
	"sort"

	"embedpool/internal/config"
)

// Binding is the unit of selection: one provider, one key, one model. It is
// derived on demand from the registry and never persisted.
type Binding struct {
	ProviderID string `json:"providerId"`
	KeyID      string `json:"keyId"`
	ModelID    string `json:"modelId"`
}

// RuntimeKey identifies the binding's credential for health and concurrency
// bookkeeping. Key ids are only unique within a provider, so the provider id
// is part of the key.
func (b Binding) RuntimeKey() string {
	return b.ProviderID + "/" + b.KeyID
}

// Discover enumerates every binding able to serve targetModel: enabled
// providers listing the model exactly, expanded to one binding per enabled
// key. Providers on the pool exclusion list contribute nothing regardless of
// key health. The result is ordered by provider id then key id so rotation
// cursors stay meaningful across set changes.
func Discover(doc *config.Document, targetModel string) []Binding {
	if doc == nil || targetModel == "" {
		return nil
	}

	var out []Binding
	for i := range doc.Providers {
		p := &doc.Providers[i]
		if !p.Enabled || doc.Pool.Excluded(p.ID) {
			continue
		}
		if _, ok := p.ServesModel(targetModel); !ok {
			continue
		}
		for _, k := range p.EnabledKeys() {
			out = append(out, Binding{ProviderID: p.ID, KeyID: k.ID, ModelID: targetModel})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProviderID != out[j].ProviderID {
			return out[i].ProviderID < out[j].ProviderID
		}
		return out[i].KeyID < out[j].KeyID
	})
	return out
}
