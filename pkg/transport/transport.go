// Package transport delivers event batches to the ingestion endpoint with
// classification-aware retries, capped exponential backoff with full jitter,
// and a circuit breaker guarding every attempt. Send never returns an error;
// all failure paths resolve to a TransportResult.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/pulseflow/pulseflow/internal/model"
	"github.com/pulseflow/pulseflow/pkg/resilience"
)

// DefaultEndpointPath is the ingestion route when none is configured.
const DefaultEndpointPath = "/api/telemetry/events"

// Config holds transport configuration.
type Config struct {
	// Endpoint is the full ingestion URL.
	Endpoint string

	// Disabled short-circuits Send to a silent success without any
	// network call. Safety valve for development builds.
	Disabled bool

	// MaxRetries is the number of network attempts per Send call.
	MaxRetries int

	// BaseBackoff is the first retry delay before jitter.
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential term. With full jitter the actual
	// wait can reach twice this value.
	MaxBackoff time.Duration

	// RequestTimeout bounds each HTTP attempt.
	RequestTimeout time.Duration

	// Headers are added to every request (e.g. an API key).
	Headers map[string]string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BaseBackoff:    1 * time.Second,
		MaxBackoff:     30 * time.Second,
		RequestTimeout: 15 * time.Second,
	}
}

// Transport sends batch payloads over HTTP.
type Transport struct {
	cfg     Config
	client  *http.Client
	breaker *resilience.CircuitBreaker

	sleep func(ctx context.Context, d time.Duration) error
	randf func() float64
}

// New creates a Transport guarded by the given (process-wide) breaker.
func New(cfg Config, breaker *resilience.CircuitBreaker) *Transport {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	return &Transport{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		breaker: breaker,
		sleep:   sleepCtx,
		randf:   rand.Float64,
	}
}

// Send delivers the events as one batch payload, attempting up to
// MaxRetries network calls. Outcome classification:
//
//	2xx            -> success, returned immediately
//	4xx            -> permanent rejection, returned immediately, no retry
//	5xx / other    -> retryable within this call's budget
//	network error  -> retryable within this call's budget
//
// Once the internal budget is exhausted the last retryable result is
// returned with ShouldRetry forced false; escalation belongs to the caller.
func (t *Transport) Send(ctx context.Context, events []model.AnalyticsEvent, mode model.Mode) model.TransportResult {
	if t.cfg.Disabled {
		return model.TransportResult{Success: true, ShouldRetry: false}
	}

	payload := model.BatchPayload{
		SchemaVersion: model.SchemaVersion,
		Mode:          mode,
		Events:        events,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		// Unserializable payloads can never succeed.
		return model.TransportResult{
			Success:     false,
			ShouldRetry: false,
			Error:       fmt.Sprintf("encode payload: %v", err),
		}
	}
	body := CompressIfBeneficial(raw)

	var last model.TransportResult
	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		if t.breaker != nil && !t.breaker.AllowRequest() {
			// Fail fast, keep the events for a later flush.
			return model.TransportResult{
				Success:     false,
				ShouldRetry: true,
				Error:       "circuit open",
			}
		}

		result, retryable := t.attempt(ctx, body)
		if !retryable {
			return result
		}
		last = result

		if attempt < t.cfg.MaxRetries-1 {
			if err := t.sleep(ctx, t.CalculateBackoff(attempt)); err != nil {
				// Shutdown during backoff; events stay queued.
				last.ShouldRetry = true
				return last
			}
		}
	}

	last.ShouldRetry = false
	return last
}

// attempt issues one HTTP POST and classifies the outcome. The second
// return value reports whether the outcome is retryable.
func (t *Transport) attempt(ctx context.Context, body CompressionResult) (model.TransportResult, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body.Data))
	if err != nil {
		return model.TransportResult{
			Success:     false,
			ShouldRetry: true,
			Error:       fmt.Sprintf("build request: %v", err),
		}, true
	}

	req.Header.Set("Content-Type", "application/json")
	if body.Compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.recordFailure()
		return model.TransportResult{
			Success:     false,
			ShouldRetry: true,
			Error:       err.Error(),
		}, true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		t.recordSuccess()
		return model.TransportResult{
			Success:     true,
			ShouldRetry: false,
			StatusCode:  resp.StatusCode,
		}, false

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Permanent rejection (malformed payload, auth failure). The
		// endpoint is alive, so the breaker records neither way.
		return model.TransportResult{
			Success:     false,
			ShouldRetry: false,
			StatusCode:  resp.StatusCode,
			Error:       fmt.Sprintf("rejected with status %d", resp.StatusCode),
		}, false

	default:
		t.recordFailure()
		return model.TransportResult{
			Success:     false,
			ShouldRetry: true,
			StatusCode:  resp.StatusCode,
			Error:       fmt.Sprintf("transient status %d", resp.StatusCode),
		}, true
	}
}

// CalculateBackoff returns min(BaseBackoff * 2^attempt, MaxBackoff) plus
// full jitter drawn from [0, that value), so the wait is bounded above by
// twice the capped exponential term.
func (t *Transport) CalculateBackoff(attempt int) time.Duration {
	backoff := t.cfg.BaseBackoff
	for i := 0; i < attempt && backoff < t.cfg.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > t.cfg.MaxBackoff {
		backoff = t.cfg.MaxBackoff
	}
	jitter := time.Duration(t.randf() * float64(backoff))
	return backoff + jitter
}

func (t *Transport) recordSuccess() {
	if t.breaker != nil {
		t.breaker.RecordSuccess()
	}
}

func (t *Transport) recordFailure() {
	if t.breaker != nil {
		t.breaker.RecordFailure()
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetSleeper overrides the backoff sleeper. Tests only.
func (t *Transport) SetSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	t.sleep = sleep
}

// SetRand overrides the jitter source. Tests only.
func (t *Transport) SetRand(randf func() float64) {
	t.randf = randf
}
