package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tiger/kobayashi/internal/provider/contracts"
)

func llmRequest() contracts.Request {
	return contracts.Request{RunID: "run_1", Operation: "evaluate", ProviderID: "provider-a", Modality: contracts.ModalityLLM, Attempt: 1, Prompt: "hello"}
}

func echoBody(req contracts.Request) any {
	return map[string]any{"prompt": req.Prompt}
}

func TestInvokeMapsHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		expected  contracts.OutcomeClass
		retryable bool
	}{
		{name: "success", status: http.StatusOK, expected: contracts.OutcomeSuccess},
		{name: "timeout", status: http.StatusRequestTimeout, expected: contracts.OutcomeTimeout, retryable: true},
		{name: "overload", status: http.StatusTooManyRequests, expected: contracts.OutcomeOverload, retryable: true},
		{name: "blocked", status: http.StatusUnauthorized, expected: contracts.OutcomeBlocked},
		{name: "client", status: http.StatusUnprocessableEntity, expected: contracts.OutcomeBlocked},
		{name: "infra", status: http.StatusBadGateway, expected: contracts.OutcomeInfrastructureFailure, retryable: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{}`))
			}))
			defer ts.Close()

			adapter, err := New(Config{ProviderID: "provider-a", Modality: contracts.ModalityLLM, Endpoint: ts.URL, BuildBody: echoBody})
			if err != nil {
				t.Fatalf("unexpected adapter error: %v", err)
			}
			resp, err := adapter.Invoke(context.Background(), llmRequest())
			if err != nil {
				t.Fatalf("unexpected invoke error: %v", err)
			}
			if resp.Outcome.Class != tc.expected || resp.Outcome.Retryable != tc.retryable {
				t.Fatalf("expected %s retryable=%v, got %+v", tc.expected, tc.retryable, resp.Outcome)
			}
			if resp.Outcome.StatusCode != tc.status {
				t.Fatalf("expected status %d recorded, got %d", tc.status, resp.Outcome.StatusCode)
			}
		})
	}
}

func TestInvokeSendsHeadersAndDecodes(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "Bearer sk" || r.Header.Get("anthropic-version") != "2023-06-01" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("key") != "sk" || r.URL.Path != "/models/run_1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["prompt"] != "hello" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"text":"decoded"}`))
	}))
	defer ts.Close()

	adapter, err := New(Config{
		ProviderID:       "provider-a",
		Modality:         contracts.ModalityLLM,
		Endpoint:         ts.URL + "/models",
		APIKey:           "sk",
		APIKeyHeader:     "x-api-key",
		APIKeyPrefix:     "Bearer ",
		QueryAPIKeyParam: "key",
		StaticHeaders:    map[string]string{"anthropic-version": "2023-06-01"},
		ResolveEndpoint: func(endpoint string, req contracts.Request) string {
			return endpoint + "/" + req.RunID
		},
		BuildBody: echoBody,
		Decode: func(body []byte, _ http.Header) (contracts.Response, error) {
			var parsed struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return contracts.Response{}, err
			}
			return contracts.Response{Text: parsed.Text}, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected adapter error: %v", err)
	}
	resp, err := adapter.Invoke(context.Background(), llmRequest())
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if resp.Outcome.Class != contracts.OutcomeSuccess || resp.Text != "decoded" {
		t.Fatalf("expected decoded success, got %+v", resp)
	}
}

func TestInvokeMalformedBodyIsRetryableFailure(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	adapter, err := New(Config{
		ProviderID: "provider-a",
		Modality:   contracts.ModalityLLM,
		Endpoint:   ts.URL,
		BuildBody:  echoBody,
		Decode: func([]byte, http.Header) (contracts.Response, error) {
			return contracts.Response{}, errors.New("bad body")
		},
	})
	if err != nil {
		t.Fatalf("unexpected adapter error: %v", err)
	}
	resp, err := adapter.Invoke(context.Background(), llmRequest())
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if resp.Outcome.Class != contracts.OutcomeInfrastructureFailure || resp.Outcome.Reason != "provider_malformed_response" || !resp.Outcome.Retryable {
		t.Fatalf("unexpected malformed outcome: %+v", resp.Outcome)
	}
}

func TestInvokeTimeoutAndCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	adapter, err := New(Config{ProviderID: "provider-a", Modality: contracts.ModalityLLM, Endpoint: ts.URL, BuildBody: echoBody, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected adapter error: %v", err)
	}
	resp, err := adapter.Invoke(context.Background(), llmRequest())
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if resp.Outcome.Class != contracts.OutcomeTimeout {
		t.Fatalf("expected timeout outcome, got %+v", resp.Outcome)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err = adapter.Invoke(ctx, llmRequest())
	if err != nil || resp.Outcome.Class != contracts.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %+v (%v)", resp.Outcome, err)
	}
}

func TestInvokeMissingEndpointIsBlocked(t *testing.T) {
	t.Parallel()

	adapter, err := New(Config{ProviderID: "provider-a", Modality: contracts.ModalityTTS, BuildBody: echoBody})
	if err != nil {
		t.Fatalf("unexpected adapter error: %v", err)
	}
	req := contracts.Request{Operation: "tts", ProviderID: "provider-a", Modality: contracts.ModalityTTS, Attempt: 1, Text: "hi"}
	resp, err := adapter.Invoke(context.Background(), req)
	if err != nil || resp.Outcome.Class != contracts.OutcomeBlocked {
		t.Fatalf("expected blocked outcome, got %+v (%v)", resp.Outcome, err)
	}
	if _, err := New(Config{ProviderID: "provider-a", Modality: contracts.ModalityLLM}); err == nil {
		t.Fatalf("expected missing body builder error")
	}
}

func TestNormalizeNetworkError(t *testing.T) {
	t.Parallel()

	if got := NormalizeNetworkError(context.Canceled); got.Class != contracts.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %+v", got)
	}
	if got := NormalizeNetworkError(context.DeadlineExceeded); got.Class != contracts.OutcomeTimeout {
		t.Fatalf("expected timeout, got %+v", got)
	}
	if got := NormalizeNetworkError(io.ErrUnexpectedEOF); got.Class != contracts.OutcomeInfrastructureFailure {
		t.Fatalf("expected infrastructure failure, got %+v", got)
	}
	if got := NormalizeStatus(http.StatusTooManyRequests, "3"); got.BackoffMS != 3000 {
		t.Fatalf("expected retry-after backoff, got %+v", got)
	}
}
