package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	providerconfig "github.com/tiger/kobayashi/internal/provider/config"
	"github.com/tiger/kobayashi/internal/provider/contracts"
	"github.com/tiger/kobayashi/providers/common/httpadapter"
)

const ProviderID = "llm-anthropic"

type Config struct {
	APIKey           string
	Endpoint         string
	Model            string
	AnthropicVersion string
	MaxTokens        int
	Temperature      float64
	Timeout          time.Duration
}

// Configured reports whether an API key is available.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func ConfigFromEnv(getenv providerconfig.Getenv) Config {
	return Config{
		APIKey:           providerconfig.ResolveEnvValue(getenv, "KOBAYASHI_LLM_ANTHROPIC_API_KEY", "KOBAYASHI_LLM_ANTHROPIC_API_KEY_REF", getenv("ANTHROPIC_API_KEY")),
		Endpoint:         providerconfig.DefaultString(getenv("KOBAYASHI_LLM_ANTHROPIC_ENDPOINT"), "https://api.anthropic.com/v1/messages"),
		Model:            providerconfig.DefaultString(getenv("KOBAYASHI_LLM_ANTHROPIC_MODEL"), providerconfig.DefaultString(getenv("ANTHROPIC_MODEL"), "claude-3-5-haiku-latest")),
		AnthropicVersion: providerconfig.DefaultString(getenv("KOBAYASHI_LLM_ANTHROPIC_VERSION"), "2023-06-01"),
		MaxTokens:        1500,
		Timeout:          15 * time.Second,
	}
}

func NewAdapter(cfg Config) (contracts.Adapter, error) {
	return httpadapter.New(httpadapter.Config{
		ProviderID:    ProviderID,
		Modality:      contracts.ModalityLLM,
		Endpoint:      cfg.Endpoint,
		APIKey:        cfg.APIKey,
		APIKeyHeader:  "x-api-key",
		Timeout:       cfg.Timeout,
		StaticHeaders: map[string]string{"anthropic-version": cfg.AnthropicVersion},
		BuildBody: func(req contracts.Request) any {
			return map[string]any{
				"model":       cfg.Model,
				"max_tokens":  cfg.MaxTokens,
				"temperature": cfg.Temperature,
				"system":      req.System,
				"messages": []map[string]any{
					{"role": "user", "content": req.Prompt},
				},
			}
		},
		Decode: decode,
	})
}

func NewAdapterFromEnv(getenv providerconfig.Getenv) (contracts.Adapter, error) {
	return NewAdapter(ConfigFromEnv(getenv))
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// decode joins the text blocks of a messages response.
func decode(body []byte, _ http.Header) (contracts.Response, error) {
	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return contracts.Response{}, err
	}
	segments := make([]string, 0, len(parsed.Content))
	for _, block := range parsed.Content {
		if block.Type == "text" {
			segments = append(segments, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(segments, "\n"))
	if text == "" {
		return contracts.Response{}, fmt.Errorf("anthropic response text was empty")
	}
	return contracts.Response{Text: text}, nil
}
