// Package httpapi exposes the simulator operations as JSON over HTTP.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/schema"
	"github.com/tiger/kobayashi/internal/simulator"
)

// MaxRequestBodyBytes caps every request body.
const MaxRequestBodyBytes = 1 << 20

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTTSMode   = "X-Kobayashi-TTS-Mode"
)

// Simulator is the operation surface served over HTTP.
type Simulator interface {
	GenerateEpisode(context.Context, sim.GenerateEpisodeRequest) (sim.GenerateEpisodeResponse, error)
	Evaluate(context.Context, sim.EvaluateRequest) (sim.EvaluateResponse, error)
	RespondReporter(context.Context, sim.ReporterRequest) (sim.ReporterResponse, error)
	AfterAction(context.Context, sim.AfterActionRequest) (sim.AfterActionResponse, error)
	Synthesize(context.Context, sim.TTSRequest) (simulator.Audio, error)
	Live() bool
	LiveSpeech() bool
}

// Handlers decodes, validates and dispatches requests to a Simulator.
type Handlers struct {
	sim       Simulator
	validator *schema.Validator
}

func NewHandlers(s Simulator, validator *schema.Validator) *Handlers {
	return &Handlers{sim: s, validator: validator}
}

// HealthResponse is served on GET /healthz.
type HealthResponse struct {
	Status string   `json:"status"`
	LLM    sim.Mode `json:"llm"`
	TTS    sim.Mode `json:"tts"`
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		LLM:    modeOf(h.sim.Live()),
		TTS:    modeOf(h.sim.LiveSpeech()),
	})
}

func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	serveJSON(h, w, r, schema.GenerateRequest, h.sim.GenerateEpisode)
}

func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	serveJSON(h, w, r, schema.EvaluateRequest, h.sim.Evaluate)
}

func (h *Handlers) HandleReporter(w http.ResponseWriter, r *http.Request) {
	serveJSON(h, w, r, schema.ReporterRequest, h.sim.RespondReporter)
}

func (h *Handlers) HandleAfterAction(w http.ResponseWriter, r *http.Request) {
	serveJSON(h, w, r, schema.AfterActionRequest, h.sim.AfterAction)
}

func (h *Handlers) HandleTTS(w http.ResponseWriter, r *http.Request) {
	var req sim.TTSRequest
	if err := h.decode(w, r, schema.TTSRequest, &req); err != nil {
		WriteError(w, err)
		return
	}
	audio, err := h.sim.Synthesize(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.Header().Set(HeaderTTSMode, string(audio.Mode))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio.Data)
}

func serveJSON[Req, Resp any](h *Handlers, w http.ResponseWriter, r *http.Request, def schema.Definition, call func(context.Context, Req) (Resp, error)) {
	var req Req
	if err := h.decode(w, r, def, &req); err != nil {
		WriteError(w, err)
		return
	}
	resp, err := call(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads at most MaxRequestBodyBytes, validates the payload against
// def and strictly decodes it into target.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, def schema.Definition, target any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	if err != nil {
		return err
	}
	return h.validator.Decode(def, body, target)
}

func modeOf(live bool) sim.Mode {
	if live {
		return sim.ModeLive
	}
	return sim.ModeMock
}
