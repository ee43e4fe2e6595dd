package telemetry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MetricLiveFallbackTotal counts live results replaced by the deterministic engine.
	MetricLiveFallbackTotal = "live_fallback_total"
	// MetricProviderLatencyMS observes live provider round trips.
	MetricProviderLatencyMS = "provider_latency_ms"
	// MetricHTTPRequestMS observes HTTP handler latency.
	MetricHTTPRequestMS = "http_request_ms"
	// MetricDropsTotal counts telemetry events dropped under queue pressure.
	MetricDropsTotal = "drops_total"
)

// EventKind defines telemetry payload kind.
type EventKind string

const (
	EventKindMetric EventKind = "metric"
	EventKindSpan   EventKind = "span"
	EventKindLog    EventKind = "log"
)

// Severity values accepted by EmitLog.
const (
	SeverityDebug = "debug"
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Correlation ties an event to the run and request that produced it.
type Correlation struct {
	RunID       string `json:"run_id,omitempty"`
	EpisodeID   string `json:"episode_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Operation   string `json:"operation,omitempty"`
	Provider    string `json:"provider,omitempty"`
	TimestampMS int64  `json:"timestamp_ms,omitempty"`
}

// MetricEvent captures a metric sample payload.
type MetricEvent struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SpanEvent captures a timed operation.
type SpanEvent struct {
	Name       string            `json:"name"`
	StartMS    int64             `json:"start_ms"`
	EndMS      int64             `json:"end_ms"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// LogEvent captures a structured log line.
type LogEvent struct {
	Name       string            `json:"name"`
	Severity   string            `json:"severity"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Event is the normalized telemetry emission envelope.
type Event struct {
	Kind        EventKind    `json:"kind"`
	TimestampMS int64        `json:"timestamp_ms"`
	Correlation Correlation  `json:"correlation"`
	Metric      *MetricEvent `json:"metric,omitempty"`
	Span        *SpanEvent   `json:"span,omitempty"`
	Log         *LogEvent    `json:"log,omitempty"`
}

// Sink exports normalized telemetry events.
type Sink interface {
	Export(context.Context, Event) error
}

// Emitter is a non-blocking telemetry handle.
type Emitter interface {
	EmitMetric(name string, value float64, unit string, attributes map[string]string, correlation Correlation)
	EmitSpan(name string, startMS, endMS int64, attributes map[string]string, correlation Correlation)
	EmitLog(name, severity, message string, attributes map[string]string, correlation Correlation)
}

type noopEmitter struct{}

func (noopEmitter) EmitMetric(string, float64, string, map[string]string, Correlation) {}
func (noopEmitter) EmitSpan(string, int64, int64, map[string]string, Correlation)       {}
func (noopEmitter) EmitLog(string, string, string, map[string]string, Correlation)      {}

type emitterHolder struct {
	emitter Emitter
}

var globalEmitter atomic.Value

func init() {
	globalEmitter.Store(emitterHolder{emitter: noopEmitter{}})
}

// SetDefaultEmitter replaces the process-wide emitter. nil restores the no-op emitter.
func SetDefaultEmitter(emitter Emitter) {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	globalEmitter.Store(emitterHolder{emitter: emitter})
}

// DefaultEmitter returns the process-wide emitter.
func DefaultEmitter() Emitter {
	holder, ok := globalEmitter.Load().(emitterHolder)
	if !ok || holder.emitter == nil {
		return noopEmitter{}
	}
	return holder.emitter
}

// Config controls bounded queue and export behavior.
type Config struct {
	QueueCapacity int
	ExportTimeout time.Duration
	// LogSampleRate keeps every Nth debug log when greater than 1.
	LogSampleRate int
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity < 1 {
		c.QueueCapacity = 256
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = 200 * time.Millisecond
	}
	if c.LogSampleRate < 1 {
		c.LogSampleRate = 1
	}
	return c
}

// Stats captures current pipeline counters.
type Stats struct {
	Enqueued       uint64
	Dropped        uint64
	SampledDropped uint64
	Exported       uint64
	ExportFailures uint64
	QueueDepth     int
}

// Pipeline is a bounded telemetry queue drained by one export goroutine.
// Emit calls never block: a full queue drops the event and counts it.
type Pipeline struct {
	sink Sink
	cfg  Config

	queue chan Event
	stop  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	enqueued       atomic.Uint64
	dropped        atomic.Uint64
	sampledDropped atomic.Uint64
	exported       atomic.Uint64
	exportFailures atomic.Uint64
	debugLogs      atomic.Uint64
}

type discardSink struct{}

func (discardSink) Export(context.Context, Event) error { return nil }

// NewPipeline starts a pipeline exporting to sink.
func NewPipeline(sink Sink, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = discardSink{}
	}
	p := &Pipeline{
		sink:  sink,
		cfg:   cfg,
		queue: make(chan Event, cfg.QueueCapacity),
		stop:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Close drains pending events and stops the export goroutine.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.wg.Wait()
	})
	return nil
}

// Stats returns a counter snapshot.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Enqueued:       p.enqueued.Load(),
		Dropped:        p.dropped.Load(),
		SampledDropped: p.sampledDropped.Load(),
		Exported:       p.exported.Load(),
		ExportFailures: p.exportFailures.Load(),
		QueueDepth:     len(p.queue),
	}
}

func (p *Pipeline) EmitMetric(name string, value float64, unit string, attributes map[string]string, correlation Correlation) {
	p.enqueue(Event{
		Kind:        EventKindMetric,
		TimestampMS: eventTimestampMS(correlation),
		Correlation: normalizeCorrelation(correlation),
		Metric: &MetricEvent{
			Name:       strings.TrimSpace(name),
			Value:      value,
			Unit:       strings.TrimSpace(unit),
			Attributes: cloneAttributes(attributes),
		},
	}, true)
}

func (p *Pipeline) EmitSpan(name string, startMS, endMS int64, attributes map[string]string, correlation Correlation) {
	if endMS < startMS {
		endMS = startMS
	}
	p.enqueue(Event{
		Kind:        EventKindSpan,
		TimestampMS: eventTimestampMS(correlation),
		Correlation: normalizeCorrelation(correlation),
		Span: &SpanEvent{
			Name:       strings.TrimSpace(name),
			StartMS:    nonNegative(startMS),
			EndMS:      nonNegative(endMS),
			Attributes: cloneAttributes(attributes),
		},
	}, true)
}

func (p *Pipeline) EmitLog(name, severity, message string, attributes map[string]string, correlation Correlation) {
	severity = strings.ToLower(strings.TrimSpace(severity))
	if severity == "" {
		severity = SeverityInfo
	}
	p.enqueue(Event{
		Kind:        EventKindLog,
		TimestampMS: eventTimestampMS(correlation),
		Correlation: normalizeCorrelation(correlation),
		Log: &LogEvent{
			Name:       strings.TrimSpace(name),
			Severity:   severity,
			Message:    message,
			Attributes: cloneAttributes(attributes),
		},
	}, p.keepLog(severity))
}

// keepLog samples debug logs deterministically: the first, then every Nth.
func (p *Pipeline) keepLog(severity string) bool {
	if p.cfg.LogSampleRate <= 1 || severity != SeverityDebug {
		return true
	}
	n := p.debugLogs.Add(1)
	return (n-1)%uint64(p.cfg.LogSampleRate) == 0
}

func (p *Pipeline) enqueue(event Event, keep bool) {
	if !keep {
		p.sampledDropped.Add(1)
		return
	}
	select {
	case p.queue <- event:
		p.enqueued.Add(1)
	default:
		p.dropped.Add(1)
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			for {
				select {
				case event := <-p.queue:
					p.export(event)
				default:
					return
				}
			}
		case event := <-p.queue:
			p.export(event)
		}
	}
}

func (p *Pipeline) export(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ExportTimeout)
	defer cancel()
	if err := p.sink.Export(ctx, event); err != nil {
		p.exportFailures.Add(1)
		return
	}
	p.exported.Add(1)
}

func eventTimestampMS(correlation Correlation) int64 {
	if correlation.TimestampMS > 0 {
		return correlation.TimestampMS
	}
	return time.Now().UnixMilli()
}

func normalizeCorrelation(c Correlation) Correlation {
	c.RunID = strings.TrimSpace(c.RunID)
	c.EpisodeID = strings.TrimSpace(c.EpisodeID)
	c.RequestID = strings.TrimSpace(c.RequestID)
	c.Operation = strings.TrimSpace(c.Operation)
	c.Provider = strings.TrimSpace(c.Provider)
	c.TimestampMS = nonNegative(c.TimestampMS)
	return c
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func cloneAttributes(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
