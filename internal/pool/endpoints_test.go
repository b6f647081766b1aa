package pool

import (
	"testing"
)

func TestBuildEndpoints(t *testing.T) {
	doc := registryDoc()
	doc.Providers[1].Name = "Alpha Embeddings"
	doc.Providers[1].Models[0].ModelName = "Embedding v3"
	doc.Providers[1].Models[0].Dimensions = 1024

	eps := BuildEndpoints(doc, Discover(doc, "emb-v3"))
	if len(eps) != 3 {
		t.Fatalf("expected 3 endpoints, got %d", len(eps))
	}

	first := eps[0]
	if first.ProviderID != "alpha" || first.ProviderName != "Alpha Embeddings" {
		t.Fatalf("unexpected provider fields: %+v", first)
	}
	if first.URL != "https://alpha.example.com" {
		t.Fatalf("unexpected url: %s", first.URL)
	}
	if first.ModelName != "Embedding v3" || first.Dimensions != 1024 {
		t.Fatalf("unexpected model fields: %+v", first)
	}
	if first.ID != "alpha/k1/emb-v3" {
		t.Fatalf("unexpected endpoint id: %s", first.ID)
	}
}

func TestSynchronizerDiff(t *testing.T) {
	doc := registryDoc()
	sync := NewSynchronizer()

	report := sync.Sync(BuildEndpoints(doc, Discover(doc, "emb-v3")))
	if !report.Success || report.EndpointCount != 3 || report.Added != 3 || report.Removed != 0 {
		t.Fatalf("unexpected initial report: %+v", report)
	}

	// Idempotent: no changes means an empty diff.
	report = sync.Sync(BuildEndpoints(doc, Discover(doc, "emb-v3")))
	if report.Added != 0 || report.Removed != 0 || report.Unchanged != 3 {
		t.Fatalf("expected empty diff on rerun, got %+v", report)
	}

	// Excluding a provider removes its endpoints.
	doc.Pool.ExcludedProviderIDs = []string{"beta"}
	report = sync.Sync(BuildEndpoints(doc, Discover(doc, "emb-v3")))
	if report.EndpointCount != 1 || report.Added != 0 || report.Removed != 2 || report.Unchanged != 1 {
		t.Fatalf("unexpected report after exclusion: %+v", report)
	}

	if eps := sync.Endpoints(); len(eps) != 1 || eps[0].ProviderID != "alpha" {
		t.Fatalf("unexpected synced endpoints: %v", eps)
	}
}
