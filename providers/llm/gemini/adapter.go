package gemini

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

const ProviderID = "llm-gemini"

type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func ConfigFromEnv(getenv providerconfig.Getenv) Config {
	return Config{
		APIKey:   providerconfig.ResolveEnvValue(getenv, "KOBAYASHI_LLM_GEMINI_API_KEY", "KOBAYASHI_LLM_GEMINI_API_KEY_REF", ""),
		Endpoint: providerconfig.DefaultString(getenv("KOBAYASHI_LLM_GEMINI_ENDPOINT"), "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"),
		Timeout:  15 * time.Second,
	}
}

func NewAdapter(cfg Config) (contracts.Adapter, error) {
	return httpadapter.New(httpadapter.Config{
		ProviderID:       ProviderID,
		Modality:         contracts.ModalityLLM,
		Endpoint:         cfg.Endpoint,
		APIKey:           cfg.APIKey,
		QueryAPIKeyParam: "key",
		Timeout:          cfg.Timeout,
		BuildBody: func(req contracts.Request) any {
			body := map[string]any{
				"contents": []map[string]any{
					{"role": "user", "parts": []map[string]any{{"text": req.Prompt}}},
				},
				"generationConfig": map[string]any{"temperature": 0},
			}
			if strings.TrimSpace(req.System) != "" {
				body["systemInstruction"] = map[string]any{"parts": []map[string]any{{"text": req.System}}}
			}
			return body
		},
		Decode: decode,
	})
}

func NewAdapterFromEnv(getenv providerconfig.Getenv) (contracts.Adapter, error) {
	return NewAdapter(ConfigFromEnv(getenv))
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func decode(body []byte, _ http.Header) (contracts.Response, error) {
	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return contracts.Response{}, err
	}
	if len(parsed.Candidates) == 0 {
		return contracts.Response{}, fmt.Errorf("gemini response had no candidates")
	}
	var b strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return contracts.Response{}, fmt.Errorf("gemini response text was empty")
	}
	return contracts.Response{Text: text}, nil
}
