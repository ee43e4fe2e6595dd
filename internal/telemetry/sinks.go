package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
)

// MemorySink keeps exported events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{events: make([]Event, 0, 64)}
}

func (s *MemorySink) Export(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of all exported events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// WriterSink writes one JSON object per event to w.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

func (s *WriterSink) Export(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(event); err != nil {
		return fmt.Errorf("write telemetry event: %w", err)
	}
	return nil
}

// HTTPSinkConfig defines collector export settings.
type HTTPSinkConfig struct {
	Endpoint    string
	ServiceName string
	Client      *http.Client
}

// HTTPSink posts events to a collector under kind-specific paths.
type HTTPSink struct {
	baseURL     *url.URL
	serviceName string
	client      *http.Client
}

func NewHTTPSink(cfg HTTPSinkConfig) (*HTTPSink, error) {
	raw := strings.TrimSpace(cfg.Endpoint)
	if raw == "" {
		return nil, fmt.Errorf("telemetry endpoint is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse telemetry endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("telemetry endpoint must include scheme and host")
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "kobayashi"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSink{baseURL: parsed, serviceName: serviceName, client: client}, nil
}

type collectorEnvelope struct {
	ServiceName string `json:"service_name"`
	Event       Event  `json:"event"`
}

func (s *HTTPSink) Export(ctx context.Context, event Event) error {
	payload, err := json.Marshal(collectorEnvelope{ServiceName: s.serviceName, Event: event})
	if err != nil {
		return fmt.Errorf("marshal telemetry event: %w", err)
	}

	u := *s.baseURL
	u.Path = path.Join("/", strings.TrimRight(u.Path, "/"), collectorPath(event.Kind))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telemetry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry export request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("telemetry export status %d", resp.StatusCode)
	}
	return nil
}

func collectorPath(kind EventKind) string {
	switch kind {
	case EventKindMetric:
		return "v1/metrics"
	case EventKindSpan:
		return "v1/traces"
	default:
		return "v1/logs"
	}
}
