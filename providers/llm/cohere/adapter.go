package cohere

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	providerconfig "github.com/tiger/kobayashi/internal/provider/config"
	"github.com/tiger/kobayashi/internal/provider/contracts"
	"github.com/tiger/kobayashi/providers/common/httpadapter"
)

const ProviderID = "llm-cohere"

type Config struct {
	APIKey            string
	Endpoint          string
	Model             string
	OpenRouter        bool
	OpenRouterReferer string
	OpenRouterTitle   string
	MaxTokens         int
	Timeout           time.Duration
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func ConfigFromEnv(getenv providerconfig.Getenv) Config {
	return Config{
		APIKey:            providerconfig.ResolveEnvValue(getenv, "KOBAYASHI_LLM_COHERE_API_KEY", "KOBAYASHI_LLM_COHERE_API_KEY_REF", ""),
		Endpoint:          providerconfig.DefaultString(getenv("KOBAYASHI_LLM_COHERE_ENDPOINT"), "https://openrouter.ai/api/v1/chat/completions"),
		Model:             providerconfig.DefaultString(getenv("KOBAYASHI_LLM_COHERE_MODEL"), "cohere/command-r-08-2024"),
		OpenRouter:        defaultBool(getenv("KOBAYASHI_LLM_COHERE_OPENROUTER"), false),
		OpenRouterReferer: strings.TrimSpace(getenv("KOBAYASHI_LLM_COHERE_OPENROUTER_REFERER")),
		OpenRouterTitle:   providerconfig.DefaultString(getenv("KOBAYASHI_LLM_COHERE_OPENROUTER_TITLE"), "Kobayashi"),
		MaxTokens:         1500,
		Timeout:           15 * time.Second,
	}
}

func NewAdapter(cfg Config) (contracts.Adapter, error) {
	openRouter := shouldUseOpenRouter(cfg)
	staticHeaders := map[string]string{}
	if openRouter {
		if cfg.OpenRouterReferer != "" {
			staticHeaders["HTTP-Referer"] = cfg.OpenRouterReferer
		}
		if cfg.OpenRouterTitle != "" {
			staticHeaders["X-Title"] = cfg.OpenRouterTitle
		}
	}

	return httpadapter.New(httpadapter.Config{
		ProviderID:    ProviderID,
		Modality:      contracts.ModalityLLM,
		Endpoint:      cfg.Endpoint,
		APIKey:        cfg.APIKey,
		APIKeyHeader:  "Authorization",
		APIKeyPrefix:  "Bearer ",
		StaticHeaders: staticHeaders,
		Timeout:       cfg.Timeout,
		BuildBody: func(req contracts.Request) any {
			messages := make([]map[string]any, 0, 2)
			if strings.TrimSpace(req.System) != "" {
				messages = append(messages, map[string]any{"role": "system", "content": req.System})
			}
			messages = append(messages, map[string]any{"role": "user", "content": req.Prompt})
			body := map[string]any{
				"model":       cfg.Model,
				"messages":    messages,
				"temperature": 0,
			}
			if openRouter {
				body["max_tokens"] = cfg.MaxTokens
			}
			return body
		},
		Decode: decode,
	})
}

func NewAdapterFromEnv(getenv providerconfig.Getenv) (contracts.Adapter, error) {
	return NewAdapter(ConfigFromEnv(getenv))
}

// chatResponse covers both the OpenAI-style completion shape and Cohere's v2 chat shape.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

func decode(body []byte, _ http.Header) (contracts.Response, error) {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return contracts.Response{}, err
	}
	var text string
	if len(parsed.Choices) > 0 {
		text = parsed.Choices[0].Message.Content
	} else {
		parts := make([]string, 0, len(parsed.Message.Content))
		for _, block := range parsed.Message.Content {
			if block.Type == "" || block.Type == "text" {
				parts = append(parts, block.Text)
			}
		}
		text = strings.Join(parts, "")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return contracts.Response{}, fmt.Errorf("cohere response text was empty")
	}
	return contracts.Response{Text: text}, nil
}

func defaultBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func shouldUseOpenRouter(cfg Config) bool {
	if cfg.OpenRouter {
		return true
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Host), "openrouter.ai")
}
