package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed sim.schema.json
var schemaDocument []byte

const schemaURL = "https://kobayashi.local/sim.schema.json"

// Definition names one compiled contract in the embedded schema.
type Definition string

const (
	GenerateRequest     Definition = "generateRequest"
	GenerateResponse    Definition = "generateResponse"
	EvaluateRequest     Definition = "evaluateRequest"
	EvaluateResponse    Definition = "evaluateResponse"
	ReporterRequest     Definition = "reporterRequest"
	ReporterResponse    Definition = "reporterResponse"
	AfterActionRequest  Definition = "afterActionRequest"
	AfterActionResponse Definition = "afterActionResponse"
	TTSRequest          Definition = "ttsRequest"
	Episode             Definition = "episode"
	RunLogEvent         Definition = "runLogEvent"
	LiveEvaluation      Definition = "liveEvaluation"
	LiveReport          Definition = "liveReport"
	LiveReporterReply   Definition = "liveReporterReply"
)

var definitions = []Definition{
	GenerateRequest, GenerateResponse,
	EvaluateRequest, EvaluateResponse,
	ReporterRequest, ReporterResponse,
	AfterActionRequest, AfterActionResponse,
	TTSRequest, Episode, RunLogEvent,
	LiveEvaluation, LiveReport, LiveReporterReply,
}

// ErrInvalidJSON reports a payload that is not parseable JSON.
var ErrInvalidJSON = errors.New("invalid json")

// Violation pinpoints one failed constraint.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ViolationError carries every violated constraint of one payload.
type ViolationError struct {
	Definition Definition
	Violations []Violation
}

func (e *ViolationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("%s: %s", e.Definition, strings.Join(parts, "; "))
}

// Violations extracts field violations from err, or a single root violation
// carrying err's text when err is not a ViolationError.
func Violations(err error) []Violation {
	var verr *ViolationError
	if errors.As(err, &verr) {
		return verr.Violations
	}
	if err == nil {
		return nil
	}
	return []Violation{{Field: "$", Message: err.Error()}}
}

// Validator holds the compiled contract schemas.
type Validator struct {
	compiled map[Definition]*jsonschema.Schema
}

// New compiles every definition of the embedded schema.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaDocument)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	v := &Validator{compiled: make(map[Definition]*jsonschema.Schema, len(definitions))}
	for _, def := range definitions {
		compiled, err := compiler.Compile(schemaURL + "#/$defs/" + string(def))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", def, err)
		}
		v.compiled[def] = compiled
	}
	return v, nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// Default returns the process-wide validator, compiling it on first use.
func Default() (*Validator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = New()
	})
	return defaultValidator, defaultErr
}

// Validate checks raw JSON against def.
func (v *Validator) Validate(def Definition, raw []byte) error {
	payload, err := decodeGeneric(raw)
	if err != nil {
		return err
	}
	return v.validatePayload(def, payload)
}

// ValidateValue checks a Go value against def by round-tripping it through JSON.
func (v *Validator) ValidateValue(def Definition, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", def, err)
	}
	return v.Validate(def, raw)
}

// Decode validates raw against def and strictly decodes it into target.
func (v *Validator) Decode(def Definition, raw []byte, target any) error {
	if err := v.Validate(def, raw); err != nil {
		return err
	}
	if err := StrictDecode(raw, target); err != nil {
		return &ViolationError{Definition: def, Violations: []Violation{{Field: "$", Message: err.Error()}}}
	}
	return nil
}

func (v *Validator) validatePayload(def Definition, payload any) error {
	compiled, ok := v.compiled[def]
	if !ok {
		return fmt.Errorf("unknown schema definition %q", def)
	}
	err := compiled.Validate(payload)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("validate %s: %w", def, err)
	}
	return &ViolationError{Definition: def, Violations: flatten(verr)}
}

func flatten(root *jsonschema.ValidationError) []Violation {
	seen := map[Violation]struct{}{}
	var out []Violation
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if len(node.Causes) == 0 {
			violation := Violation{Field: fieldPath(node.InstanceLocation), Message: node.Message}
			if _, dup := seen[violation]; !dup {
				seen[violation] = struct{}{}
				out = append(out, violation)
			}
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(root)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func fieldPath(pointer string) string {
	trimmed := strings.TrimPrefix(pointer, "/")
	if trimmed == "" {
		return "$"
	}
	segments := strings.Split(trimmed, "/")
	for i, segment := range segments {
		segment = strings.ReplaceAll(segment, "~1", "/")
		segments[i] = strings.ReplaceAll(segment, "~0", "~")
	}
	return strings.Join(segments, ".")
}

func decodeGeneric(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected trailing JSON payload", ErrInvalidJSON)
	}
	return payload, nil
}

// StrictDecode rejects unknown fields and trailing payloads.
func StrictDecode(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("unexpected trailing JSON payload")
	}
	return nil
}
