package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tiger/kobayashi/internal/provider/contracts"
)

const defaultMaxResponseBytes = 8 << 20

// Config configures a generic JSON-over-HTTP provider adapter.
type Config struct {
	ProviderID       string
	Modality         contracts.Modality
	Endpoint         string
	Method           string
	APIKey           string
	APIKeyHeader     string
	APIKeyPrefix     string
	QueryAPIKeyParam string
	StaticHeaders    map[string]string
	Timeout          time.Duration
	MaxResponseBytes int64
	// ResolveEndpoint derives the per-request URL from Endpoint.
	ResolveEndpoint func(endpoint string, req contracts.Request) string
	BuildBody       func(req contracts.Request) any
	// Decode turns a 2xx body into the provider payload.
	Decode func(body []byte, header http.Header) (contracts.Response, error)
}

// Adapter implements contracts.Adapter against a JSON-over-HTTP endpoint.
type Adapter struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.ProviderID == "" {
		return nil, fmt.Errorf("provider_id is required")
	}
	if err := cfg.Modality.Validate(); err != nil {
		return nil, err
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.BuildBody == nil {
		return nil, fmt.Errorf("provider %s requires a body builder", cfg.ProviderID)
	}
	if cfg.Decode == nil {
		cfg.Decode = func([]byte, http.Header) (contracts.Response, error) {
			return contracts.Response{}, nil
		}
	}
	if cfg.StaticHeaders == nil {
		cfg.StaticHeaders = map[string]string{}
	}
	return &Adapter{cfg: cfg, client: &http.Client{}}, nil
}

func (a *Adapter) ProviderID() string {
	return a.cfg.ProviderID
}

func (a *Adapter) Modality() contracts.Modality {
	return a.cfg.Modality
}

// Invoke executes one provider attempt and normalizes the outcome. Transport
// and status failures are reported as outcomes, not errors.
func (a *Adapter) Invoke(ctx context.Context, req contracts.Request) (contracts.Response, error) {
	if err := req.Validate(); err != nil {
		return contracts.Response{}, err
	}
	if ctx.Err() != nil {
		return contracts.Response{Outcome: contracts.Cancelled()}, nil
	}
	if a.cfg.Endpoint == "" {
		return contracts.Response{Outcome: contracts.Outcome{Class: contracts.OutcomeBlocked, Reason: "provider_endpoint_missing"}}, nil
	}

	body, err := json.Marshal(a.cfg.BuildBody(req))
	if err != nil {
		return contracts.Response{}, fmt.Errorf("marshal %s request: %w", a.cfg.ProviderID, err)
	}

	endpoint := a.cfg.Endpoint
	if a.cfg.ResolveEndpoint != nil {
		endpoint = a.cfg.ResolveEndpoint(endpoint, req)
	}
	if a.cfg.QueryAPIKeyParam != "" && a.cfg.APIKey != "" {
		endpoint, err = WithQuery(endpoint, a.cfg.QueryAPIKeyParam, a.cfg.APIKey)
		if err != nil {
			return contracts.Response{}, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, a.cfg.Method, endpoint, bytes.NewReader(body))
	if err != nil {
		return contracts.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKeyHeader != "" && a.cfg.APIKey != "" {
		httpReq.Header.Set(a.cfg.APIKeyHeader, a.cfg.APIKeyPrefix+a.cfg.APIKey)
	}
	for key, value := range a.cfg.StaticHeaders {
		httpReq.Header.Set(key, value)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return contracts.Response{Outcome: NormalizeNetworkError(err)}, nil
	}
	defer resp.Body.Close()

	outcome := NormalizeStatus(resp.StatusCode, resp.Header.Get("Retry-After"))
	if outcome.Class != contracts.OutcomeSuccess {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, a.cfg.MaxResponseBytes))
		return contracts.Response{Outcome: outcome}, nil
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, a.cfg.MaxResponseBytes+1))
	if err != nil {
		out := NormalizeNetworkError(err)
		out.StatusCode = resp.StatusCode
		return contracts.Response{Outcome: out}, nil
	}
	if int64(len(payload)) > a.cfg.MaxResponseBytes {
		return contracts.Response{Outcome: MalformedResponse(resp.StatusCode, "provider_response_too_large")}, nil
	}

	decoded, err := a.cfg.Decode(payload, resp.Header)
	if err != nil {
		return contracts.Response{Outcome: MalformedResponse(resp.StatusCode, "provider_malformed_response")}, nil
	}
	decoded.Outcome = outcome
	return decoded, nil
}

// MalformedResponse is the outcome for a 2xx response whose body is unusable.
func MalformedResponse(status int, reason string) contracts.Outcome {
	return contracts.Outcome{
		Class:      contracts.OutcomeInfrastructureFailure,
		Retryable:  true,
		Reason:     reason,
		StatusCode: status,
	}
}

// WithQuery appends or overrides a query key on an endpoint URL.
func WithQuery(rawEndpoint, key, value string) (string, error) {
	u, err := url.Parse(rawEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NormalizeNetworkError maps transport-level errors to normalized outcomes.
func NormalizeNetworkError(err error) contracts.Outcome {
	if errors.Is(err, context.Canceled) {
		return contracts.Cancelled()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return contracts.Outcome{Class: contracts.OutcomeTimeout, Retryable: true, Reason: "provider_timeout"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return contracts.Outcome{Class: contracts.OutcomeTimeout, Retryable: true, Reason: "provider_timeout"}
	}
	return contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_transport_error"}
}

// NormalizeStatus maps an HTTP status and Retry-After header to an outcome.
func NormalizeStatus(status int, retryAfter string) contracts.Outcome {
	outcome := contracts.Outcome{StatusCode: status}
	switch {
	case status >= 200 && status <= 299:
		outcome.Class = contracts.OutcomeSuccess
	case status == http.StatusTooManyRequests:
		outcome.Class = contracts.OutcomeOverload
		outcome.Retryable = true
		outcome.Reason = "provider_overload"
		outcome.BackoffMS = retryAfterToMS(retryAfter)
		outcome.CircuitOpen = true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		outcome.Class = contracts.OutcomeTimeout
		outcome.Retryable = true
		outcome.Reason = "provider_timeout"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		outcome.Class = contracts.OutcomeBlocked
		outcome.Reason = "provider_auth_or_policy_block"
	case status >= 400 && status <= 499:
		outcome.Class = contracts.OutcomeBlocked
		outcome.Reason = "provider_client_error"
	default:
		outcome.Class = contracts.OutcomeInfrastructureFailure
		outcome.Retryable = true
		outcome.Reason = "provider_server_error"
		outcome.CircuitOpen = status >= 500
	}
	return outcome
}

func retryAfterToMS(retryAfter string) int64 {
	seconds, err := strconv.Atoi(strings.TrimSpace(retryAfter))
	if err != nil || seconds < 1 {
		return 500
	}
	return int64(seconds) * 1000
}
