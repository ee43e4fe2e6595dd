package registry

import (
	"testing"

	"github.com/tiger/kobayashi/internal/provider/contracts"
)

func adapters() []contracts.Adapter {
	return []contracts.Adapter{
		contracts.StaticAdapter{ID: "llm-gemini", Mode: contracts.ModalityLLM},
		contracts.StaticAdapter{ID: "llm-anthropic", Mode: contracts.ModalityLLM},
		contracts.StaticAdapter{ID: "llm-cohere", Mode: contracts.ModalityLLM},
		contracts.StaticAdapter{ID: "tts-elevenlabs", Mode: contracts.ModalityTTS},
	}
}

func TestCatalogCandidatesOrdering(t *testing.T) {
	t.Parallel()

	catalog, err := NewCatalog(adapters())
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}

	candidates, err := catalog.Candidates(contracts.ModalityLLM, "llm-gemini", 2)
	if err != nil {
		t.Fatalf("unexpected candidates error: %v", err)
	}
	if len(candidates) != 2 || candidates[0].ProviderID() != "llm-gemini" || candidates[1].ProviderID() != "llm-anthropic" {
		t.Fatalf("unexpected candidate order: %+v", candidates)
	}

	all, err := catalog.Candidates(contracts.ModalityLLM, "", 0)
	if err != nil || len(all) != 3 || all[0].ProviderID() != "llm-anthropic" || all[2].ProviderID() != "llm-gemini" {
		t.Fatalf("expected sorted candidates, got %+v (%v)", all, err)
	}

	if _, err := catalog.Candidates(contracts.ModalityLLM, "llm-missing", 2); err == nil {
		t.Fatalf("expected unknown preferred provider error")
	}
	if !catalog.Has(contracts.ModalityTTS) {
		t.Fatalf("expected tts coverage")
	}
}

func TestCatalogRejectsInvalidAdapters(t *testing.T) {
	t.Parallel()

	if _, err := NewCatalog([]contracts.Adapter{nil}); err == nil {
		t.Fatalf("expected nil adapter error")
	}
	dup := append(adapters(), contracts.StaticAdapter{ID: "llm-gemini", Mode: contracts.ModalityLLM})
	if _, err := NewCatalog(dup); err == nil {
		t.Fatalf("expected duplicate provider error")
	}
	if _, err := NewCatalog([]contracts.Adapter{contracts.StaticAdapter{ID: "x", Mode: "stt"}}); err == nil {
		t.Fatalf("expected invalid modality error")
	}
}

func TestCatalogEmptyModality(t *testing.T) {
	t.Parallel()

	catalog, err := NewCatalog(nil)
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}
	if catalog.Has(contracts.ModalityLLM) {
		t.Fatalf("expected empty catalog")
	}
	if _, err := catalog.Candidates(contracts.ModalityTTS, "", 0); err == nil {
		t.Fatalf("expected no providers error")
	}
	if err := catalog.ValidateCoverage(0, 3); err != nil {
		t.Fatalf("expected empty catalog to satisfy zero minimum: %v", err)
	}
	if err := catalog.ValidateCoverage(1, 3); err == nil {
		t.Fatalf("expected coverage error")
	}
}
