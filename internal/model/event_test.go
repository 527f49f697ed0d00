package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestValidate_TimeRepresentation(t *testing.T) {
	ts := time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		event   AnalyticsEvent
		wantErr bool
	}{
		{
			name:  "exact timestamp only",
			event: AnalyticsEvent{EventName: "note_created", EventID: "e1", OccurredAt: &ts},
		},
		{
			name: "bucketed time only",
			event: AnalyticsEvent{
				EventName: "note_created", EventID: "e1",
				DayOfWeek: "Wednesday", HourOfDay: intPtr(15),
			},
		},
		{
			name: "both representations",
			event: AnalyticsEvent{
				EventName: "note_created", EventID: "e1",
				OccurredAt: &ts, DayOfWeek: "Wednesday", HourOfDay: intPtr(15),
			},
			wantErr: true,
		},
		{
			name:    "neither representation",
			event:   AnalyticsEvent{EventName: "note_created", EventID: "e1"},
			wantErr: true,
		},
		{
			name: "partial buckets",
			event: AnalyticsEvent{
				EventName: "note_created", EventID: "e1",
				DayOfWeek: "Wednesday",
			},
			wantErr: true,
		},
		{
			name: "hour out of range",
			event: AnalyticsEvent{
				EventName: "note_created", EventID: "e1",
				DayOfWeek: "Wednesday", HourOfDay: intPtr(24),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrTimeRepresentation) {
				t.Errorf("err = %v, want ErrTimeRepresentation", err)
			}
		})
	}
}

func TestAnalyticsEvent_JSONOmitsAbsentTimeFields(t *testing.T) {
	event := AnalyticsEvent{
		EventName: "note_created",
		EventID:   "e1",
		DayOfWeek: "Wednesday",
		HourOfDay: intPtr(0),
	}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "occurred_at") {
		t.Errorf("occurred_at present in %s", s)
	}
	// hour_of_day 0 is a real value and must survive marshaling.
	if !strings.Contains(s, `"hour_of_day":0`) {
		t.Errorf("hour_of_day missing in %s", s)
	}
}
