package elevenlabs

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	providerconfig "github.com/tiger/kobayashi/internal/provider/config"
	"github.com/tiger/kobayashi/internal/provider/contracts"
	"github.com/tiger/kobayashi/providers/common/httpadapter"
)

const ProviderID = "tts-elevenlabs"

type Config struct {
	APIKey          string
	Endpoint        string
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Timeout         time.Duration
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.VoiceID) != ""
}

func ConfigFromEnv(getenv providerconfig.Getenv) Config {
	return Config{
		APIKey:          providerconfig.ResolveEnvValue(getenv, "KOBAYASHI_TTS_ELEVENLABS_API_KEY", "KOBAYASHI_TTS_ELEVENLABS_API_KEY_REF", getenv("ELEVENLABS_API_KEY")),
		Endpoint:        providerconfig.DefaultString(getenv("KOBAYASHI_TTS_ELEVENLABS_ENDPOINT"), "https://api.elevenlabs.io/v1/text-to-speech"),
		VoiceID:         providerconfig.DefaultString(getenv("KOBAYASHI_TTS_ELEVENLABS_VOICE_ID"), providerconfig.DefaultString(getenv("ELEVENLABS_VOICE_ID"), "EXAVITQu4vr4xnSDxMaL")),
		ModelID:         providerconfig.DefaultString(getenv("KOBAYASHI_TTS_ELEVENLABS_MODEL"), "eleven_turbo_v2_5"),
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Timeout:         15 * time.Second,
	}
}

func NewAdapter(cfg Config) (contracts.Adapter, error) {
	return httpadapter.New(httpadapter.Config{
		ProviderID:    ProviderID,
		Modality:      contracts.ModalityTTS,
		Endpoint:      cfg.Endpoint,
		APIKey:        cfg.APIKey,
		APIKeyHeader:  "xi-api-key",
		Timeout:       cfg.Timeout,
		StaticHeaders: map[string]string{"Accept": "audio/mpeg"},
		ResolveEndpoint: func(endpoint string, req contracts.Request) string {
			voice := strings.TrimSpace(req.VoiceID)
			if voice == "" {
				voice = cfg.VoiceID
			}
			return strings.TrimRight(endpoint, "/") + "/" + url.PathEscape(voice)
		},
		BuildBody: func(req contracts.Request) any {
			return map[string]any{
				"text":     req.Text,
				"model_id": cfg.ModelID,
				"voice_settings": map[string]any{
					"stability":        cfg.Stability,
					"similarity_boost": cfg.SimilarityBoost,
				},
			}
		},
		Decode: decode,
	})
}

func NewAdapterFromEnv(getenv providerconfig.Getenv) (contracts.Adapter, error) {
	return NewAdapter(ConfigFromEnv(getenv))
}

func decode(body []byte, header http.Header) (contracts.Response, error) {
	if len(body) == 0 {
		return contracts.Response{}, fmt.Errorf("elevenlabs returned no audio")
	}
	contentType := strings.TrimSpace(header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "audio/") {
		contentType = "audio/mpeg"
	}
	return contracts.Response{Audio: body, ContentType: contentType}, nil
}
