package archive

import (
	"context"
	"testing"
	"time"

	"github.com/pulseflow/pulseflow/internal/model"
)

func TestMemoryArchiver(t *testing.T) {
	a := NewMemoryArchiver()

	rec := Record{
		ID:         "batch-1",
		Reason:     "poison",
		ArchivedAt: time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC),
		Events: []model.QueuedEvent{
			{Event: model.AnalyticsEvent{EventName: "note_created", EventID: "evt-1"}, RetryCount: 6},
		},
	}
	if err := a.Archive(context.Background(), &rec); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	got := a.Records()
	if len(got) != 1 {
		t.Fatalf("records = %d", len(got))
	}
	if got[0].Reason != "poison" || len(got[0].Events) != 1 {
		t.Errorf("record = %+v", got[0])
	}

	// The returned slice is a copy.
	got[0].Reason = "mutated"
	if a.Records()[0].Reason != "poison" {
		t.Error("Records should return a copy")
	}
}

func TestNopArchiver(t *testing.T) {
	var a Archiver = NopArchiver{}
	if err := a.Archive(context.Background(), &Record{ID: "x"}); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if a.Name() != "nop" {
		t.Errorf("Name = %q", a.Name())
	}
}

func TestS3Key_DateLayout(t *testing.T) {
	a := &S3Archiver{cfg: DefaultS3Config("telemetry-dlq")}
	rec := &Record{
		ID:         "batch-7",
		ArchivedAt: time.Date(2024, 6, 12, 23, 30, 0, 0, time.UTC),
	}
	want := "dead-letter/2024/06/12/batch-7.json"
	if got := a.key(rec); got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}
