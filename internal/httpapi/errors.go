package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tiger/kobayashi/internal/schema"
	"github.com/tiger/kobayashi/internal/simulator"
)

// ErrorCode is the machine-readable error field of a failed response.
type ErrorCode string

const (
	CodeInvalidJSON             ErrorCode = "INVALID_JSON"
	CodeValidationError         ErrorCode = "VALIDATION_ERROR"
	CodePayloadTooLarge         ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeResponseValidationError ErrorCode = "RESPONSE_VALIDATION_ERROR"
	CodeInternalError           ErrorCode = "INTERNAL_ERROR"
)

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Error   ErrorCode          `json:"error"`
	Details []schema.Violation `json:"details,omitempty"`
}

// HTTPError pairs a status code with its error body.
type HTTPError struct {
	StatusCode int
	Code       ErrorCode
	Err        error
}

func (e *HTTPError) Error() string {
	return e.Err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// MapError classifies err: request problems are 400, a response that broke
// its own contract is 500.
func MapError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return &HTTPError{http.StatusRequestEntityTooLarge, CodePayloadTooLarge, err}
	case errors.Is(err, schema.ErrInvalidJSON):
		return &HTTPError{http.StatusBadRequest, CodeInvalidJSON, err}
	case errors.Is(err, simulator.ErrOutputContract):
		return &HTTPError{http.StatusInternalServerError, CodeResponseValidationError, err}
	case errors.Is(err, simulator.ErrMalformedRequest):
		return &HTTPError{http.StatusBadRequest, CodeValidationError, err}
	default:
		var violations *schema.ViolationError
		if errors.As(err, &violations) {
			return &HTTPError{http.StatusBadRequest, CodeValidationError, err}
		}
		return &HTTPError{http.StatusInternalServerError, CodeInternalError, err}
	}
}

// WriteError writes the mapped error response for err.
func WriteError(w http.ResponseWriter, err error) {
	httpErr := MapError(err)
	if httpErr == nil {
		return
	}
	body := ErrorBody{Error: httpErr.Code}
	if httpErr.Code != CodeInternalError {
		body.Details = schema.Violations(err)
	}
	writeJSON(w, httpErr.StatusCode, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
