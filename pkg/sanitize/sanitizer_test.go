package sanitize

import (
	"reflect"
	"testing"
	"time"

	"github.com/pulseflow/pulseflow/internal/model"
	"github.com/pulseflow/pulseflow/pkg/taxonomy"
)

func testProvider() taxonomy.Provider {
	return taxonomy.NewStatic(taxonomy.New(map[string]taxonomy.EventSpec{
		"note_created": {
			Required: []string{"module_id", "source"},
			Optional: []string{"text_length_bucket", "note_title"},
		},
	}))
}

func TestSanitizeProps_DropsUnknownKeys(t *testing.T) {
	s := New(testProvider())

	got := s.SanitizeProps("note_created", map[string]any{
		"module_id":    "notebook",
		"unknown_prop": "x",
	})
	want := map[string]any{"module_id": "notebook"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SanitizeProps = %v, want %v", got, want)
	}
}

func TestSanitizeProps_DropsForbiddenEvenWhenAllowlisted(t *testing.T) {
	s := New(testProvider())

	// note_title is in the allowlist but matches the "title" fragment.
	got := s.SanitizeProps("note_created", map[string]any{
		"note_title": "secret plans",
		"source":     "toolbar",
	})
	want := map[string]any{"source": "toolbar"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SanitizeProps = %v, want %v", got, want)
	}
}

func TestSanitizeProps_EmitsDiagnostics(t *testing.T) {
	s := New(testProvider())

	type diag struct {
		event  string
		key    string
		reason DropReason
	}
	var diags []diag
	s.OnDiagnostic = func(event, key string, reason DropReason) {
		diags = append(diags, diag{event, key, reason})
	}

	s.SanitizeProps("note_created", map[string]any{
		"unknown_prop": 1,
		"note_title":   "x",
		"module_id":    "notebook",
	})

	if len(diags) != 2 {
		t.Fatalf("Expected 2 diagnostics, got %d: %v", len(diags), diags)
	}
	reasons := map[string]DropReason{}
	for _, d := range diags {
		if d.event != "note_created" {
			t.Errorf("Diagnostic event = %q", d.event)
		}
		reasons[d.key] = d.reason
	}
	if reasons["unknown_prop"] != DropNotAllowlisted {
		t.Errorf("unknown_prop reason = %q", reasons["unknown_prop"])
	}
	if reasons["note_title"] != DropForbiddenKey {
		t.Errorf("note_title reason = %q", reasons["note_title"])
	}
}

func TestForbiddenKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"module_id", false},
		{"latency_bucket", false},
		{"note_title", true},
		{"TITLE", true},
		{"user_email", true},
		{"filename", true},
		{"generated_summary", true},
		{"prompt_tokens", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := ForbiddenKey(tt.key); got != tt.want {
				t.Errorf("ForbiddenKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestSanitizeEvent_BucketsTime(t *testing.T) {
	s := New(testProvider())

	// 2024-06-12 is a Wednesday.
	ts := time.Date(2024, 6, 12, 15, 42, 7, 0, time.UTC)
	in := model.AnalyticsEvent{
		EventName:  "note_created",
		EventID:    "evt-1",
		OccurredAt: &ts,
		Props: map[string]any{
			"module_id":    "notebook",
			"unknown_prop": "x",
		},
	}

	out := s.SanitizeEvent(in)

	if out.OccurredAt != nil {
		t.Error("OccurredAt should be cleared")
	}
	if out.DayOfWeek != "Wednesday" {
		t.Errorf("DayOfWeek = %q, want Wednesday", out.DayOfWeek)
	}
	if out.HourOfDay == nil || *out.HourOfDay != 15 {
		t.Errorf("HourOfDay = %v, want 15", out.HourOfDay)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("sanitized event invalid: %v", err)
	}
	if _, ok := out.Props["unknown_prop"]; ok {
		t.Error("unknown_prop should have been dropped")
	}

	// The input event must not be mutated.
	if in.OccurredAt == nil {
		t.Error("input event was mutated")
	}
}
