package bootstrap

import (
	"fmt"

	providerconfig "github.com/tiger/kobayashi/internal/provider/config"
	"github.com/tiger/kobayashi/internal/provider/contracts"
	"github.com/tiger/kobayashi/internal/provider/invocation"
	"github.com/tiger/kobayashi/internal/provider/registry"
	llmanthropic "github.com/tiger/kobayashi/providers/llm/anthropic"
	llmcohere "github.com/tiger/kobayashi/providers/llm/cohere"
	llmgemini "github.com/tiger/kobayashi/providers/llm/gemini"
	ttselevenlabs "github.com/tiger/kobayashi/providers/tts/elevenlabs"
	ttsgoogle "github.com/tiger/kobayashi/providers/tts/google"
	ttspolly "github.com/tiger/kobayashi/providers/tts/polly"
)

// Options controls provider bootstrap invariants.
type Options struct {
	MaxProvidersPerModality int
	MaxAttemptsPerProvider  int
	MaxCandidateProviders   int
}

// RuntimeProviders contains initialized provider manager components.
type RuntimeProviders struct {
	Catalog    registry.Catalog
	Controller invocation.Controller
}

// Live reports whether any provider is available for modality.
func (p RuntimeProviders) Live(modality contracts.Modality) bool {
	return p.Catalog.Has(modality)
}

type candidate struct {
	configured bool
	build      func() (contracts.Adapter, error)
}

// Build creates adapters for every provider whose credentials are present in
// the environment. An empty catalog is valid and means deterministic mode.
func Build(getenv providerconfig.Getenv, opts Options) (RuntimeProviders, error) {
	anthropicCfg := llmanthropic.ConfigFromEnv(getenv)
	geminiCfg := llmgemini.ConfigFromEnv(getenv)
	cohereCfg := llmcohere.ConfigFromEnv(getenv)
	elevenCfg := ttselevenlabs.ConfigFromEnv(getenv)
	googleCfg := ttsgoogle.ConfigFromEnv(getenv)
	pollyCfg := ttspolly.ConfigFromEnv(getenv)

	candidates := []candidate{
		{anthropicCfg.Configured(), func() (contracts.Adapter, error) { return llmanthropic.NewAdapter(anthropicCfg) }},
		{geminiCfg.Configured(), func() (contracts.Adapter, error) { return llmgemini.NewAdapter(geminiCfg) }},
		{cohereCfg.Configured(), func() (contracts.Adapter, error) { return llmcohere.NewAdapter(cohereCfg) }},
		{elevenCfg.Configured(), func() (contracts.Adapter, error) { return ttselevenlabs.NewAdapter(elevenCfg) }},
		{googleCfg.Configured(), func() (contracts.Adapter, error) { return ttsgoogle.NewAdapter(googleCfg) }},
		{pollyCfg.Configured(), func() (contracts.Adapter, error) { return ttspolly.NewAdapter(pollyCfg) }},
	}

	adapters := make([]contracts.Adapter, 0, len(candidates))
	for _, c := range candidates {
		if !c.configured {
			continue
		}
		adapter, err := c.build()
		if err != nil {
			return RuntimeProviders{}, err
		}
		adapters = append(adapters, adapter)
	}
	return BuildWithAdapters(adapters, opts)
}

// BuildWithAdapters wires registry+controller for a given adapter set.
func BuildWithAdapters(adapters []contracts.Adapter, opts Options) (RuntimeProviders, error) {
	if opts.MaxProvidersPerModality < 1 {
		opts.MaxProvidersPerModality = 5
	}
	if opts.MaxAttemptsPerProvider < 1 {
		opts.MaxAttemptsPerProvider = 2
	}
	if opts.MaxCandidateProviders < 1 {
		opts.MaxCandidateProviders = 3
	}

	catalog, err := registry.NewCatalog(adapters)
	if err != nil {
		return RuntimeProviders{}, err
	}
	if err := catalog.ValidateCoverage(0, opts.MaxProvidersPerModality); err != nil {
		return RuntimeProviders{}, err
	}

	controller := invocation.NewControllerWithConfig(catalog, invocation.Config{
		MaxAttemptsPerProvider: opts.MaxAttemptsPerProvider,
		MaxCandidateProviders:  opts.MaxCandidateProviders,
	})
	return RuntimeProviders{Catalog: catalog, Controller: controller}, nil
}

// Summary returns deterministic provider ids by modality.
func Summary(catalog registry.Catalog) (string, error) {
	llm, err := catalog.ProviderIDs(contracts.ModalityLLM)
	if err != nil {
		return "", err
	}
	tts, err := catalog.ProviderIDs(contracts.ModalityTTS)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("providers initialized: llm=%d %v tts=%d %v", len(llm), llm, len(tts), tts), nil
}
