// Package sanitize implements the privacy transform applied to events before
// transmission: property allowlisting, forbidden-content key stripping, and
// coarse time bucketing.
package sanitize

import (
	"strings"

	"github.com/pulseflow/pulseflow/internal/model"
	"github.com/pulseflow/pulseflow/pkg/taxonomy"
)

// forbiddenFragments are key substrings that may carry user content or PII.
// A key matching any fragment is dropped even when the taxonomy allows it.
var forbiddenFragments = []string{
	"text", "body", "content", "title", "subject", "name",
	"email", "phone", "address", "message", "prompt", "output", "generated",
}

// DropReason explains why a property was removed.
type DropReason string

const (
	DropNotAllowlisted DropReason = "not_allowlisted"
	DropForbiddenKey   DropReason = "forbidden_key"
)

// DiagnosticFunc receives one call per dropped property. Diagnostics are
// informational; dropping a key never fails the event.
type DiagnosticFunc func(event, key string, reason DropReason)

// Sanitizer strips disallowed properties and coarsens timestamps.
type Sanitizer struct {
	taxonomy taxonomy.Provider

	// OnDiagnostic is invoked for every dropped key. Optional.
	OnDiagnostic DiagnosticFunc
}

// New creates a Sanitizer backed by the given taxonomy provider.
func New(provider taxonomy.Provider) *Sanitizer {
	return &Sanitizer{taxonomy: provider}
}

// ForbiddenKey reports whether the key matches the forbidden-content
// heuristic (case-insensitive substring match).
func ForbiddenKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range forbiddenFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// SanitizeProps returns a copy of props with every key dropped that is
// either absent from the event's allowlist or matches the forbidden-content
// heuristic. A key must pass both checks to survive.
func (s *Sanitizer) SanitizeProps(event string, props map[string]any) map[string]any {
	if props == nil {
		return nil
	}

	reg := s.taxonomy.Current()
	clean := make(map[string]any, len(props))
	for key, val := range props {
		if !reg.IsAllowedProp(event, key) {
			s.diagnostic(event, key, DropNotAllowlisted)
			continue
		}
		if ForbiddenKey(key) {
			s.diagnostic(event, key, DropForbiddenKey)
			continue
		}
		clean[key] = val
	}
	return clean
}

// SanitizeEvent converts the event to its privacy representation: the exact
// timestamp is replaced by a weekday label and an hour-of-day bucket, and the
// props are run through SanitizeProps. The input is not mutated.
func (s *Sanitizer) SanitizeEvent(e model.AnalyticsEvent) model.AnalyticsEvent {
	if e.OccurredAt != nil {
		ts := *e.OccurredAt
		hour := ts.Hour()
		e.DayOfWeek = ts.Weekday().String()
		e.HourOfDay = &hour
		e.OccurredAt = nil
	}
	e.Props = s.SanitizeProps(e.EventName, e.Props)
	return e
}

func (s *Sanitizer) diagnostic(event, key string, reason DropReason) {
	if s.OnDiagnostic != nil {
		s.OnDiagnostic(event, key, reason)
	}
}
