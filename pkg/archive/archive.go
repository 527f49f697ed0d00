// Package archive provides dead-letter storage for events that leave the
// queue without being delivered.
package archive

import (
	"context"
	"sync"
	"time"

	"github.com/pulseflow/pulseflow/internal/model"
)

// Record is one archived batch of undeliverable events.
type Record struct {
	ID         string              `json:"id"`
	Reason     string              `json:"reason"`
	ArchivedAt time.Time           `json:"archived_at"`
	Events     []model.QueuedEvent `json:"events"`
}

// Archiver receives events evicted from the queue. Archiving is best effort;
// a failed archive never blocks the pipeline.
type Archiver interface {
	Archive(ctx context.Context, rec *Record) error
	Name() string
}

// NopArchiver discards everything.
type NopArchiver struct{}

func (NopArchiver) Archive(ctx context.Context, rec *Record) error { return nil }
func (NopArchiver) Name() string                                   { return "nop" }

// MemoryArchiver keeps records in memory. Used in tests and as a staging
// buffer when no durable backend is configured.
type MemoryArchiver struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryArchiver creates an empty in-memory archiver.
func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{}
}

func (a *MemoryArchiver) Archive(ctx context.Context, rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *rec)
	return nil
}

// Records returns a copy of everything archived so far.
func (a *MemoryArchiver) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

func (a *MemoryArchiver) Name() string { return "memory" }
