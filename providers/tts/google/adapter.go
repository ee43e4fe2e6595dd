package google

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	providerconfig "github.com/tiger/kobayashi/internal/provider/config"
	"github.com/tiger/kobayashi/internal/provider/contracts"
	"github.com/tiger/kobayashi/providers/common/httpadapter"
)

const ProviderID = "tts-google"

type Config struct {
	APIKey      string
	Endpoint    string
	VoiceName   string
	Language    string
	AudioFormat string
	Timeout     time.Duration
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func ConfigFromEnv(getenv providerconfig.Getenv) Config {
	return Config{
		APIKey:      providerconfig.ResolveEnvValue(getenv, "KOBAYASHI_TTS_GOOGLE_API_KEY", "KOBAYASHI_TTS_GOOGLE_API_KEY_REF", ""),
		Endpoint:    providerconfig.DefaultString(getenv("KOBAYASHI_TTS_GOOGLE_ENDPOINT"), "https://texttospeech.googleapis.com/v1/text:synthesize"),
		VoiceName:   providerconfig.DefaultString(getenv("KOBAYASHI_TTS_GOOGLE_VOICE"), "en-US-Chirp3-HD-Achernar"),
		Language:    providerconfig.DefaultString(getenv("KOBAYASHI_TTS_GOOGLE_LANGUAGE"), "en-US"),
		AudioFormat: "MP3",
		Timeout:     15 * time.Second,
	}
}

// NewAdapter honours Request.VoiceID only when it is a voice name for the
// configured language, e.g. "en-US-Neural2-D".
func NewAdapter(cfg Config) (contracts.Adapter, error) {
	return httpadapter.New(httpadapter.Config{
		ProviderID:       ProviderID,
		Modality:         contracts.ModalityTTS,
		Endpoint:         cfg.Endpoint,
		APIKey:           cfg.APIKey,
		QueryAPIKeyParam: "key",
		Timeout:          cfg.Timeout,
		BuildBody: func(req contracts.Request) any {
			voice := cfg.VoiceName
			if strings.HasPrefix(req.VoiceID, cfg.Language+"-") {
				voice = req.VoiceID
			}
			return map[string]any{
				"input":       map[string]any{"text": req.Text},
				"voice":       map[string]any{"name": voice, "languageCode": cfg.Language},
				"audioConfig": map[string]any{"audioEncoding": cfg.AudioFormat},
			}
		},
		Decode: decode,
	})
}

func NewAdapterFromEnv(getenv providerconfig.Getenv) (contracts.Adapter, error) {
	return NewAdapter(ConfigFromEnv(getenv))
}

func decode(body []byte, _ http.Header) (contracts.Response, error) {
	var parsed struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return contracts.Response{}, err
	}
	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return contracts.Response{}, fmt.Errorf("decode audioContent: %w", err)
	}
	if len(audio) == 0 {
		return contracts.Response{}, fmt.Errorf("google tts returned no audio")
	}
	return contracts.Response{Audio: audio, ContentType: "audio/mpeg"}, nil
}
