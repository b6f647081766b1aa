package pool

import (
	"reflect"
	"testing"

	"embedpool/internal/config"
)

func registryDoc() *config.Document {
	return &config.Document{
		Pool: config.PoolConfig{
			Enabled:     true,
			TargetModel: "emb-v3",
			Strategy:    config.StrategyRoundRobin,
		},
		Providers: []config.Provider{
			{
				ID:      "beta",
				Enabled: true,
				APIBase: "https://beta.example.com",
				Models:  []config.Model{{ModelID: "emb-v3"}},
				APIKeys: []config.APIKey{
					{ID: "k2", Secret: "s", Enabled: true},
					{ID: "k1", Secret: "s", Enabled: true},
				},
			},
			{
				ID:      "alpha",
				Enabled: true,
				APIBase: "https://alpha.example.com",
				Models:  []config.Model{{ModelID: "emb-v3"}, {ModelID: "rerank-v1"}},
				APIKeys: []config.APIKey{
					{ID: "k1", Secret: "s", Enabled: true},
					{ID: "k-disabled", Secret: "s", Enabled: false},
				},
			},
			{
				ID:      "gamma",
				Enabled: true,
				APIBase: "https://gamma.example.com",
				Models:  []config.Model{{ModelID: "other-model"}},
				APIKeys: []config.APIKey{{ID: "k1", Secret: "s", Enabled: true}},
			},
		},
	}
}

func TestDiscoverExpandsEnabledKeys(t *testing.T) {
	got := Discover(registryDoc(), "emb-v3")
	want := []Binding{
		{ProviderID: "alpha", KeyID: "k1", ModelID: "emb-v3"},
		{ProviderID: "beta", KeyID: "k1", ModelID: "emb-v3"},
		{ProviderID: "beta", KeyID: "k2", ModelID: "emb-v3"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected bindings:\n got %v\nwant %v", got, want)
	}
}

func TestDiscoverExactModelMatch(t *testing.T) {
	if got := Discover(registryDoc(), "emb"); got != nil {
		t.Fatalf("prefix must not match, got %v", got)
	}
	got := Discover(registryDoc(), "rerank-v1")
	if len(got) != 1 || got[0].ProviderID != "alpha" {
		t.Fatalf("unexpected bindings for rerank-v1: %v", got)
	}
}

func TestDiscoverSkipsDisabledProvider(t *testing.T) {
	doc := registryDoc()
	doc.Providers[0].Enabled = false // beta

	got := Discover(doc, "emb-v3")
	if len(got) != 1 || got[0].ProviderID != "alpha" {
		t.Fatalf("disabled provider must contribute nothing, got %v", got)
	}
}

func TestDiscoverSkipsProviderWithoutEnabledKeys(t *testing.T) {
	doc := registryDoc()
	doc.Providers[1].APIKeys[0].Enabled = false // alpha k1

	got := Discover(doc, "emb-v3")
	for _, b := range got {
		if b.ProviderID == "alpha" {
			t.Fatalf("provider with zero enabled keys must not be eligible, got %v", got)
		}
	}
}

func TestDiscoverAppliesExclusionList(t *testing.T) {
	doc := registryDoc()
	doc.Pool.ExcludedProviderIDs = []string{"beta"}

	got := Discover(doc, "emb-v3")
	if len(got) != 1 || got[0].ProviderID != "alpha" {
		t.Fatalf("excluded provider must contribute nothing, got %v", got)
	}

	doc.Pool.ExcludedProviderIDs = nil
	got = Discover(doc, "emb-v3")
	if len(got) != 3 {
		t.Fatalf("removing the exclusion must restore bindings, got %v", got)
	}
}
