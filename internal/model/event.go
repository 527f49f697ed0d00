// Package model defines core data structures for PulseFlow.
package model

import (
	"errors"
	"time"
)

// SchemaVersion is the batch payload schema understood by the ingestion side.
const SchemaVersion = "2024-06"

// Mode selects how much detail events carry on the wire.
type Mode string

const (
	// ModeDefault sends events with exact timestamps.
	ModeDefault Mode = "default"

	// ModePrivacy replaces exact timestamps with coarse time buckets and
	// runs every event through the sanitizer before transmission.
	ModePrivacy Mode = "privacy"
)

// AnalyticsEvent is a single telemetry record queued for transmission.
//
// Exactly one time representation is present: OccurredAt in default mode,
// or the DayOfWeek/HourOfDay pair in privacy mode. Never both, never neither.
type AnalyticsEvent struct {
	// EventName is the taxonomy name of the event (e.g. "note_created").
	EventName string `json:"event_name"`

	// EventID uniquely identifies this event. It doubles as the
	// idempotency key for at-least-once delivery.
	EventID string `json:"event_id"`

	// OccurredAt is the exact event timestamp. Nil in privacy mode.
	OccurredAt *time.Time `json:"occurred_at,omitempty"`

	// DayOfWeek is a weekday label ("Monday".."Sunday"). Privacy mode only.
	DayOfWeek string `json:"day_of_week,omitempty"`

	// HourOfDay is the local hour 0-23. Privacy mode only.
	HourOfDay *int `json:"hour_of_day,omitempty"`

	// SessionID groups events from one app session.
	SessionID string `json:"session_id"`

	// Props holds scalar or bucket-label properties. Callers bucket
	// continuous values before placing them here.
	Props map[string]any `json:"props"`

	AppVersion string `json:"app_version"`
	Platform   string `json:"platform"`
}

// ErrTimeRepresentation reports an event violating the one-time-field rule.
var ErrTimeRepresentation = errors.New("event must carry exactly one time representation")

// Validate checks the AnalyticsEvent time invariant.
func (e *AnalyticsEvent) Validate() error {
	exact := e.OccurredAt != nil
	bucketed := e.DayOfWeek != "" && e.HourOfDay != nil
	if exact == bucketed {
		return ErrTimeRepresentation
	}
	if bucketed && (*e.HourOfDay < 0 || *e.HourOfDay > 23) {
		return ErrTimeRepresentation
	}
	return nil
}

// QueuedEvent wraps an AnalyticsEvent while it waits in the outbound queue.
// Owned exclusively by the queue; RetryCount is mutated only through
// Queue.IncrementRetryCount.
type QueuedEvent struct {
	Event      AnalyticsEvent `json:"event"`
	RetryCount int            `json:"retry_count"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// BatchPayload is the envelope for one network request.
type BatchPayload struct {
	SchemaVersion string           `json:"schema_version"`
	Mode          Mode             `json:"mode"`
	Events        []AnalyticsEvent `json:"events"`
}

// TransportResult is the outcome of a send attempt sequence.
// Invariant: Success implies !ShouldRetry.
type TransportResult struct {
	Success     bool   `json:"success"`
	ShouldRetry bool   `json:"should_retry"`
	StatusCode  int    `json:"status_code,omitempty"`
	Error       string `json:"error,omitempty"`
}
