package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type blockingSink struct {
	block <-chan struct{}
}

func (s blockingSink) Export(ctx context.Context, _ Event) error {
	select {
	case <-s.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestPipelineEmitIsNonBlockingWhenQueueIsFull(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	pipeline := NewPipeline(blockingSink{block: block}, Config{
		QueueCapacity: 1,
		ExportTimeout: 5 * time.Millisecond,
	})
	defer func() {
		close(block)
		_ = pipeline.Close()
	}()

	start := time.Now()
	for i := 0; i < 2000; i++ {
		pipeline.EmitLog("evaluate", SeverityInfo, "scored action", nil, Correlation{RunID: "run_1", TimestampMS: int64(i + 1)})
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("expected non-blocking emit under pressure, took %s", elapsed)
	}
	if stats := pipeline.Stats(); stats.Dropped == 0 {
		t.Fatalf("expected dropped events under queue pressure, got %+v", stats)
	}
}

func TestPipelineDeterministicDebugLogSampling(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	pipeline := NewPipeline(sink, Config{QueueCapacity: 32, LogSampleRate: 3})
	for i := 0; i < 10; i++ {
		pipeline.EmitLog("beat_applied", "DEBUG", "beat", nil, Correlation{RunID: "run_1", TimestampMS: int64(i + 1)})
	}
	pipeline.EmitLog("live_fallback", SeverityWarn, "fell back", nil, Correlation{RunID: "run_1"})
	if err := pipeline.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	if events := sink.Events(); len(events) != 5 {
		t.Fatalf("expected 4 sampled debug logs plus one warning, got %d", len(events))
	}
	if stats := pipeline.Stats(); stats.SampledDropped != 6 {
		t.Fatalf("expected 6 sampled drops, got %+v", stats)
	}
}

func TestPipelineExportsMetricSpanAndLogEvents(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	pipeline := NewPipeline(sink, Config{QueueCapacity: 16})
	correlation := Correlation{RunID: " run_1 ", EpisodeID: "ep_2a", Operation: "evaluate", TimestampMS: 100}
	pipeline.EmitMetric(MetricLiveFallbackTotal, 1, "count", map[string]string{"provider": "anthropic", " ": "x"}, correlation)
	pipeline.EmitSpan("http_request", 100, 90, map[string]string{"route": "/api/episode/evaluate"}, correlation)
	pipeline.EmitLog("evaluate", "", "scored", nil, correlation)
	if err := pipeline.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 exported events, got %d", len(events))
	}
	if events[0].Kind != EventKindMetric || events[0].Metric.Name != MetricLiveFallbackTotal || len(events[0].Metric.Attributes) != 1 {
		t.Fatalf("unexpected metric event: %+v", events[0].Metric)
	}
	if events[1].Kind != EventKindSpan || events[1].Span.EndMS != 100 {
		t.Fatalf("expected span end clamped to start, got %+v", events[1].Span)
	}
	if events[2].Kind != EventKindLog || events[2].Log.Severity != SeverityInfo {
		t.Fatalf("expected default info severity, got %+v", events[2].Log)
	}
	for _, event := range events {
		if event.Correlation.RunID != "run_1" || event.TimestampMS != 100 {
			t.Fatalf("unexpected correlation payload: %+v", event)
		}
	}
}

func TestDefaultEmitterCanBeOverridden(t *testing.T) {
	sink := NewMemorySink()
	pipeline := NewPipeline(sink, Config{QueueCapacity: 8})
	defer func() {
		SetDefaultEmitter(nil)
		_ = pipeline.Close()
	}()

	SetDefaultEmitter(pipeline)
	DefaultEmitter().EmitMetric(MetricDropsTotal, 1, "count", nil, Correlation{RunID: "run_default"})
	_ = pipeline.Close()

	events := sink.Events()
	if len(events) != 1 || events[0].Metric == nil || events[0].Metric.Name != MetricDropsTotal {
		t.Fatalf("expected default emitter to route through pipeline, got %+v", events)
	}
}

func TestWriterSinkWritesJSONLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	pipeline := NewPipeline(NewWriterSink(&buf), Config{})
	pipeline.EmitLog("generate", SeverityInfo, "episode ready", map[string]string{"mode": "mock"}, Correlation{RunID: "run_1"})
	pipeline.EmitMetric(MetricProviderLatencyMS, 12, "ms", nil, Correlation{Provider: "anthropic"})
	_ = pipeline.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %q", buf.String())
	}
	var event Event
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if event.Log == nil || event.Log.Attributes["mode"] != "mock" {
		t.Fatalf("unexpected decoded event: %+v", event)
	}
}

func TestHTTPSinkRoutesByEventKind(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var envelope collectorEnvelope
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil || envelope.ServiceName != "kobayashi-test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink, err := NewHTTPSink(HTTPSinkConfig{
		Endpoint:    server.URL + "/collector/",
		ServiceName: "kobayashi-test",
		Client:      &http.Client{Transport: &http.Transport{DisableKeepAlives: true}},
	})
	if err != nil {
		t.Fatalf("unexpected sink creation error: %v", err)
	}
	for _, event := range []Event{
		{Kind: EventKindMetric, Metric: &MetricEvent{Name: MetricHTTPRequestMS}},
		{Kind: EventKindSpan, Span: &SpanEvent{Name: "http_request"}},
		{Kind: EventKindLog, Log: &LogEvent{Name: "evaluate"}},
	} {
		if err := sink.Export(context.Background(), event); err != nil {
			t.Fatalf("unexpected export error: %v", err)
		}
	}

	want := []string{"/collector/v1/metrics", "/collector/v1/traces", "/collector/v1/logs"}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("unexpected collector paths: got %+v want %+v", paths, want)
	}
}

func TestHTTPSinkReportsStatusFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sink, err := NewHTTPSink(HTTPSinkConfig{Endpoint: server.URL, Client: &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}})
	if err != nil {
		t.Fatalf("unexpected sink creation error: %v", err)
	}
	if err := sink.Export(context.Background(), Event{Kind: EventKindLog}); err == nil {
		t.Fatalf("expected status failure")
	}
	if _, err := NewHTTPSink(HTTPSinkConfig{Endpoint: "localhost:4318"}); err == nil {
		t.Fatalf("expected endpoint without scheme to fail")
	}
}

func TestRuntimeConfigFromEnv(t *testing.T) {
	t.Parallel()

	env := func(values map[string]string) func(string) string {
		return func(key string) string { return values[key] }
	}

	cfg, err := RuntimeConfigFromEnv(env(nil))
	if err != nil {
		t.Fatalf("unexpected default env parse error: %v", err)
	}
	if !cfg.Enabled || cfg.QueueCapacity != 256 || cfg.LogSampleRate != 1 || cfg.ExportTimeoutMS != 200 {
		t.Fatalf("unexpected default config: %+v", cfg)
	}

	invalid := []map[string]string{
		{EnvTelemetryEnabled: "not-bool"},
		{EnvTelemetryQueueCapacity: "0"},
		{EnvTelemetryDropSampleRate: "-1"},
		{EnvTelemetryExportTimeoutMS: "abc"},
	}
	for _, values := range invalid {
		if _, err := RuntimeConfigFromEnv(env(values)); err == nil {
			t.Fatalf("expected %v to be rejected", values)
		}
	}

	pipeline, err := NewPipelineFromEnv(env(map[string]string{EnvTelemetryEnabled: "false"}), &bytes.Buffer{})
	if err != nil || pipeline != nil {
		t.Fatalf("expected nil pipeline when disabled, got %v %v", pipeline, err)
	}
	if _, err := NewPipelineFromEnv(env(map[string]string{EnvTelemetryHTTPEndpoint: "localhost:4318"}), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected invalid endpoint to fail")
	}
	pipeline, err = NewPipelineFromEnv(env(map[string]string{EnvTelemetryQueueCapacity: "4"}), &bytes.Buffer{})
	if err != nil || pipeline == nil {
		t.Fatalf("expected local pipeline, got %v %v", pipeline, err)
	}
	_ = pipeline.Close()
}
