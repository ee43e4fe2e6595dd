package simulator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	EnvLiveTimeoutMS     = "KOBAYASHI_LIVE_TIMEOUT_MS"
	EnvPreferredLLM      = "KOBAYASHI_LLM_PROVIDER"
	EnvPreferredTTS      = "KOBAYASHI_TTS_PROVIDER"
	defaultLiveTimeoutMS = 15000
)

// Config holds service settings that are independent of provider credentials.
type Config struct {
	LiveTimeout          time.Duration
	PreferredLLMProvider string
	PreferredTTSProvider string
}

func DefaultConfig() Config {
	return Config{LiveTimeout: defaultLiveTimeoutMS * time.Millisecond}
}

// ConfigFromEnv reads service settings; unset values keep their defaults.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	if raw := strings.TrimSpace(getenv(EnvLiveTimeoutMS)); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 1 {
			return Config{}, fmt.Errorf("%s must be a positive integer, got %q", EnvLiveTimeoutMS, raw)
		}
		cfg.LiveTimeout = time.Duration(ms) * time.Millisecond
	}
	cfg.PreferredLLMProvider = strings.TrimSpace(getenv(EnvPreferredLLM))
	cfg.PreferredTTSProvider = strings.TrimSpace(getenv(EnvPreferredTTS))
	return cfg, nil
}
