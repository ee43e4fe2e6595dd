package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tiger/kobayashi/internal/schema"
	"github.com/tiger/kobayashi/internal/telemetry"
)

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig leaves room for a full live call inside WriteTimeout.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the HTTP front of a Simulator.
type Server struct {
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(cfg ServerConfig, s Simulator, validator *schema.Validator) *Server {
	defaults := DefaultServerConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}

	handlers := NewHandlers(s, validator)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handlers.HandleHealth)
	mux.HandleFunc("POST /api/episode/generate", handlers.HandleGenerate)
	mux.HandleFunc("POST /api/episode/evaluate", handlers.HandleEvaluate)
	mux.HandleFunc("POST /api/reporter/respond", handlers.HandleReporter)
	mux.HandleFunc("POST /api/episode/after_action", handlers.HandleAfterAction)
	mux.HandleFunc("POST /api/tts", handlers.HandleTTS)

	handler := instrument(mux)
	return &Server{
		handler: handler,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving on the configured address until Shutdown.
func (s *Server) Start() error {
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve blocks serving on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return ignoreClosed(s.httpServer.Serve(ln))
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument stamps request ids and no-store caching on every response and
// reports handler latency.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		w.Header().Set("Cache-Control", "no-store")

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		end := time.Now()

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		attributes := map[string]string{
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		correlation := telemetry.Correlation{RequestID: requestID, TimestampMS: end.UnixMilli()}
		emitter := telemetry.DefaultEmitter()
		emitter.EmitMetric(telemetry.MetricHTTPRequestMS, float64(end.Sub(start).Milliseconds()), "ms", attributes, correlation)
		emitter.EmitSpan("http_request", start.UnixMilli(), end.UnixMilli(), attributes, correlation)
	})
}
