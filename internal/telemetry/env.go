package telemetry

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	EnvTelemetryEnabled         = "KOBAYASHI_TELEMETRY_ENABLED"
	EnvTelemetryHTTPEndpoint    = "KOBAYASHI_TELEMETRY_HTTP_ENDPOINT"
	EnvTelemetryQueueCapacity   = "KOBAYASHI_TELEMETRY_QUEUE_CAPACITY"
	EnvTelemetryDropSampleRate  = "KOBAYASHI_TELEMETRY_DROP_SAMPLE_RATE"
	EnvTelemetryExportTimeoutMS = "KOBAYASHI_TELEMETRY_EXPORT_TIMEOUT_MS"
)

// RuntimeConfig captures env-configured telemetry settings.
type RuntimeConfig struct {
	Enabled         bool
	HTTPEndpoint    string
	QueueCapacity   int
	LogSampleRate   int
	ExportTimeoutMS int
}

// RuntimeConfigFromEnv parses telemetry settings through getenv.
func RuntimeConfigFromEnv(getenv func(string) string) (RuntimeConfig, error) {
	cfg := RuntimeConfig{
		Enabled:         true,
		HTTPEndpoint:    strings.TrimSpace(getenv(EnvTelemetryHTTPEndpoint)),
		QueueCapacity:   256,
		LogSampleRate:   1,
		ExportTimeoutMS: 200,
	}

	if raw := strings.TrimSpace(getenv(EnvTelemetryEnabled)); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return RuntimeConfig{}, fmt.Errorf("%s parse error: %w", EnvTelemetryEnabled, err)
		}
		cfg.Enabled = enabled
	}
	for _, setting := range []struct {
		name   string
		target *int
	}{
		{EnvTelemetryQueueCapacity, &cfg.QueueCapacity},
		{EnvTelemetryDropSampleRate, &cfg.LogSampleRate},
		{EnvTelemetryExportTimeoutMS, &cfg.ExportTimeoutMS},
	} {
		raw := strings.TrimSpace(getenv(setting.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return RuntimeConfig{}, fmt.Errorf("%s must be integer >=1", setting.name)
		}
		*setting.target = v
	}
	return cfg, nil
}

// NewPipelineFromEnv builds a pipeline that writes JSON lines to w, or posts
// to the configured collector. It returns nil when telemetry is disabled.
func NewPipelineFromEnv(getenv func(string) string, w io.Writer) (*Pipeline, error) {
	cfg, err := RuntimeConfigFromEnv(getenv)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, nil
	}
	timeout := time.Duration(cfg.ExportTimeoutMS) * time.Millisecond

	var sink Sink = NewWriterSink(w)
	if cfg.HTTPEndpoint != "" {
		httpSink, err := NewHTTPSink(HTTPSinkConfig{
			Endpoint: cfg.HTTPEndpoint,
			Client:   &http.Client{Timeout: timeout},
		})
		if err != nil {
			return nil, err
		}
		sink = httpSink
	}

	return NewPipeline(sink, Config{
		QueueCapacity: cfg.QueueCapacity,
		LogSampleRate: cfg.LogSampleRate,
		ExportTimeout: timeout,
	}), nil
}
