package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulseflow/pulseflow/internal/model"
	"github.com/pulseflow/pulseflow/pkg/resilience"
)

func testEvents(n int) []model.AnalyticsEvent {
	ts := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	events := make([]model.AnalyticsEvent, n)
	for i := range events {
		events[i] = model.AnalyticsEvent{
			EventName:  "note_created",
			EventID:    "evt-" + strings.Repeat("x", i%5),
			OccurredAt: &ts,
			SessionID:  "sess-1",
			Props:      map[string]any{"module_id": "notebook"},
		}
	}
	return events
}

// noSleep fails the test if the transport tries to back off.
func noSleep(t *testing.T) func(context.Context, time.Duration) error {
	return func(context.Context, time.Duration) error {
		t.Error("unexpected backoff sleep")
		return nil
	}
}

func fastSleep(calls *int) func(context.Context, time.Duration) error {
	return func(context.Context, time.Duration) error {
		*calls++
		return nil
	}
}

func newTransport(endpoint string, maxRetries int) *Transport {
	return New(Config{Endpoint: endpoint, MaxRetries: maxRetries}, nil)
}

func TestSend_Success(t *testing.T) {
	var attempts int
	var gotPayload model.BatchPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := newTransport(srv.URL, 3)
	tr.SetSleeper(noSleep(t))

	result := tr.Send(context.Background(), testEvents(2), model.ModePrivacy)

	if !result.Success || result.ShouldRetry {
		t.Errorf("result = %+v", result)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if gotPayload.SchemaVersion != model.SchemaVersion {
		t.Errorf("SchemaVersion = %q", gotPayload.SchemaVersion)
	}
	if gotPayload.Mode != model.ModePrivacy {
		t.Errorf("Mode = %q", gotPayload.Mode)
	}
	if len(gotPayload.Events) != 2 {
		t.Errorf("Events = %d", len(gotPayload.Events))
	}
}

func TestSend_ServerErrorExhaustsRetries(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var sleeps int
	tr := newTransport(srv.URL, 3)
	tr.SetSleeper(fastSleep(&sleeps))

	result := tr.Send(context.Background(), testEvents(1), model.ModeDefault)

	if result.Success {
		t.Error("Success should be false")
	}
	if result.ShouldRetry {
		t.Error("ShouldRetry must be forced false once the budget is spent")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want exactly 3", attempts)
	}
	if sleeps != 2 {
		t.Errorf("sleeps = %d, want 2 (between attempts only)", sleeps)
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", result.StatusCode)
	}
}

func TestSend_ClientRejectionIsImmediate(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := newTransport(srv.URL, 3)
	tr.SetSleeper(noSleep(t))

	result := tr.Send(context.Background(), testEvents(1), model.ModeDefault)

	if result.Success || result.ShouldRetry {
		t.Errorf("result = %+v, want permanent failure", result)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want exactly 1", attempts)
	}
}

func TestSend_NetworkErrorIsRetryable(t *testing.T) {
	// A closed server produces connection errors.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	var sleeps int
	tr := newTransport(srv.URL, 2)
	tr.SetSleeper(fastSleep(&sleeps))

	result := tr.Send(context.Background(), testEvents(1), model.ModeDefault)

	if result.Success || result.ShouldRetry {
		t.Errorf("result = %+v", result)
	}
	if sleeps != 1 {
		t.Errorf("sleeps = %d, want 1", sleeps)
	}
	if result.Error == "" {
		t.Error("Error should describe the network failure")
	}
}

func TestSend_DisabledSkipsNetwork(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
	}))
	defer srv.Close()

	tr := New(Config{Endpoint: srv.URL, Disabled: true}, nil)

	result := tr.Send(context.Background(), testEvents(1), model.ModeDefault)

	if !result.Success || result.ShouldRetry {
		t.Errorf("result = %+v", result)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
}

func TestSend_CircuitOpenFailsFast(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Hour,
	})
	breaker.RecordFailure() // force open

	tr := New(Config{Endpoint: srv.URL, MaxRetries: 3}, breaker)
	tr.SetSleeper(noSleep(t))

	result := tr.Send(context.Background(), testEvents(1), model.ModeDefault)

	if result.Success {
		t.Error("Success should be false")
	}
	if !result.ShouldRetry {
		t.Error("ShouldRetry should be true; the events are preserved")
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0 (fail fast)", attempts)
	}
}

func TestSend_FailuresFeedBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Hour,
	})

	var sleeps int
	tr := New(Config{Endpoint: srv.URL, MaxRetries: 5}, breaker)
	tr.SetSleeper(fastSleep(&sleeps))

	result := tr.Send(context.Background(), testEvents(1), model.ModeDefault)

	// Two failures open the breaker; the next attempt fails fast.
	if breaker.State() != resilience.CircuitOpen {
		t.Errorf("breaker state = %v, want open", breaker.State())
	}
	if result.Success {
		t.Error("Success should be false")
	}
}

func TestSend_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := newTransport(srv.URL, 3)
	tr.SetSleeper(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	})

	result := tr.Send(context.Background(), testEvents(1), model.ModeDefault)

	if result.Success {
		t.Error("Success should be false")
	}
	if !result.ShouldRetry {
		t.Error("events interrupted by shutdown must remain retryable")
	}
}

func TestSend_LargePayloadIsGzipped(t *testing.T) {
	var encoding string
	var decoded model.BatchPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding = r.Header.Get("Content-Encoding")
		body, _ := io.ReadAll(r.Body)
		if encoding == "gzip" {
			body, _ = Decompress(body)
		}
		json.Unmarshal(body, &decoded)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Enough repetitive events to cross the 1 KiB threshold.
	events := testEvents(50)
	tr := newTransport(srv.URL, 1)

	result := tr.Send(context.Background(), events, model.ModeDefault)

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if encoding != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", encoding)
	}
	if len(decoded.Events) != 50 {
		t.Errorf("decoded %d events", len(decoded.Events))
	}
}

func TestCalculateBackoff_Bounds(t *testing.T) {
	tr := New(Config{
		Endpoint:    "http://example.invalid",
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}, nil)

	// Worst-case jitter.
	tr.SetRand(func() float64 { return 1.0 })
	for attempt := 0; attempt <= 40; attempt++ {
		if got := tr.CalculateBackoff(attempt); got > 2*30*time.Second {
			t.Errorf("CalculateBackoff(%d) = %v, exceeds 2*MaxBackoff", attempt, got)
		}
	}

	// Without jitter the sequence is the capped exponential.
	tr.SetRand(func() float64 { return 0 })
	wants := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for attempt, want := range wants {
		if got := tr.CalculateBackoff(attempt); got != want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}
