// Package queue implements the durable, bounded, FIFO holding area for
// outbound analytics events. Delivery is at-least-once: Dequeue peeks
// without removing, and entries leave the queue only through an explicit
// Remove after a confirmed send, poison-pill eviction, compaction, or Clear.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pulseflow/pulseflow/internal/model"
	"github.com/pulseflow/pulseflow/pkg/errors"
	"github.com/pulseflow/pulseflow/pkg/store"
)

// DefaultKey is the store key the queue persists under.
const DefaultKey = "analytics_queue"

// EvictReason classifies why entries were dropped without being sent.
type EvictReason string

const (
	// EvictCompaction marks entries dropped to keep the queue bounded.
	EvictCompaction EvictReason = "compaction"

	// EvictPoison marks entries that exceeded their retry budget.
	EvictPoison EvictReason = "poison"
)

// Config holds queue configuration.
type Config struct {
	// MaxSize is the hard capacity bound. Compaction keeps the live size
	// strictly below it.
	MaxSize int

	// Key overrides the persistence key (default: DefaultKey).
	Key string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize: 1000,
		Key:     DefaultKey,
	}
}

// Queue is the bounded persisted event queue. All operations serialize
// behind one mutex: compaction and retry bookkeeping read-modify-write the
// same persisted record, so individual operations are not safe to interleave.
type Queue struct {
	mu      sync.Mutex
	store   store.Store
	key     string
	maxSize int
	entries []model.QueuedEvent

	now func() time.Time

	// OnEvict is called with entries dropped without being sent
	// (compaction or poison-pill eviction). Invoked after the drop has
	// been persisted; must not call back into the queue. Optional.
	OnEvict func(reason EvictReason, entries []model.QueuedEvent)
}

// persisted is the stored queue record.
type persisted struct {
	Version int                 `json:"version"`
	Entries []model.QueuedEvent `json:"entries"`
}

// New creates a queue over the given store, recovering any persisted
// entries. A corrupt record is discarded rather than poisoning startup;
// telemetry loss is silent and bounded.
func New(ctx context.Context, st store.Store, cfg Config) (*Queue, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}

	q := &Queue{
		store:   st,
		key:     cfg.Key,
		maxSize: cfg.MaxSize,
		now:     time.Now,
	}

	data, err := st.Get(ctx, cfg.Key)
	switch err {
	case nil:
		var rec persisted
		if jsonErr := json.Unmarshal(data, &rec); jsonErr == nil {
			q.entries = rec.Entries
		}
	case store.ErrNotFound:
		// fresh queue
	default:
		return nil, errors.Wrap(err, errors.CodeLoadFailed, "failed to load queue state").
			WithContext("key", cfg.Key)
	}

	return q, nil
}

// Enqueue appends an event. When the queue is at or above 90% of capacity it
// first compacts, dropping the oldest ceil(20% of MaxSize) entries. Returns
// nil once the event is durably appended; a non-nil error means the
// persistence write failed and the event was not added.
func (q *Queue) Enqueue(ctx context.Context, event model.AnalyticsEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := q.entries
	var evicted []model.QueuedEvent

	if len(next) >= q.compactionThreshold() {
		drop := q.compactionDropCount()
		if drop > len(next) {
			drop = len(next)
		}
		evicted = append([]model.QueuedEvent(nil), next[:drop]...)
		next = append([]model.QueuedEvent(nil), next[drop:]...)
	}

	next = append(next, model.QueuedEvent{
		Event:      event,
		RetryCount: 0,
		EnqueuedAt: q.now(),
	})

	if err := q.persist(ctx, next); err != nil {
		return err
	}
	q.entries = next

	if len(evicted) > 0 && q.OnEvict != nil {
		q.OnEvict(EvictCompaction, evicted)
	}
	return nil
}

// compactionThreshold is the size at which Enqueue compacts first.
func (q *Queue) compactionThreshold() int {
	return q.maxSize * 9 / 10
}

// compactionDropCount is ceil(20% of MaxSize).
func (q *Queue) compactionDropCount() int {
	return (q.maxSize + 4) / 5
}

// Dequeue returns copies of up to batchSize oldest entries without removing
// them, in enqueue order. In-flight sends can fail without losing data.
func (q *Queue) Dequeue(batchSize int) []model.QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if batchSize <= 0 || len(q.entries) == 0 {
		return nil
	}
	if batchSize > len(q.entries) {
		batchSize = len(q.entries)
	}

	batch := make([]model.QueuedEvent, batchSize)
	copy(batch, q.entries[:batchSize])
	return batch
}

// Remove deletes the given entries by event ID. Called only after a
// transport attempt is confirmed successful for those entries.
func (q *Queue) Remove(ctx context.Context, entries []model.QueuedEvent) error {
	if len(entries) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	drop := idSet(entries)
	next := make([]model.QueuedEvent, 0, len(q.entries))
	for _, e := range q.entries {
		if !drop[e.Event.EventID] {
			next = append(next, e)
		}
	}

	if err := q.persist(ctx, next); err != nil {
		return err
	}
	q.entries = next
	return nil
}

// IncrementRetryCount bumps RetryCount by one for the given entries in place.
func (q *Queue) IncrementRetryCount(ctx context.Context, entries []model.QueuedEvent) error {
	if len(entries) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	bump := idSet(entries)
	next := make([]model.QueuedEvent, len(q.entries))
	copy(next, q.entries)
	for i := range next {
		if bump[next[i].Event.EventID] {
			next[i].RetryCount++
		}
	}

	if err := q.persist(ctx, next); err != nil {
		return err
	}
	q.entries = next
	return nil
}

// RemoveFailedEvents deletes entries whose RetryCount exceeds maxRetries and
// returns how many were evicted. Independent of any in-flight send.
func (q *Queue) RemoveFailedEvents(ctx context.Context, maxRetries int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted []model.QueuedEvent
	next := make([]model.QueuedEvent, 0, len(q.entries))
	for _, e := range q.entries {
		if e.RetryCount > maxRetries {
			evicted = append(evicted, e)
		} else {
			next = append(next, e)
		}
	}
	if len(evicted) == 0 {
		return 0, nil
	}

	if err := q.persist(ctx, next); err != nil {
		return 0, err
	}
	q.entries = next

	if q.OnEvict != nil {
		q.OnEvict(EvictPoison, evicted)
	}
	return len(evicted), nil
}

// Size returns the number of queued entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear removes all entries (logout/reset).
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.persist(ctx, nil); err != nil {
		return err
	}
	q.entries = nil
	return nil
}

// Stats is a point-in-time snapshot of queue health.
type Stats struct {
	Size              int         `json:"size"`
	OldestEnqueuedAt  *time.Time  `json:"oldest_enqueued_at,omitempty"`
	NewestEnqueuedAt  *time.Time  `json:"newest_enqueued_at,omitempty"`
	RetryDistribution map[int]int `json:"retry_distribution"`
}

// Stats returns queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Size:              len(q.entries),
		RetryDistribution: make(map[int]int),
	}
	for i, e := range q.entries {
		if i == 0 {
			oldest := e.EnqueuedAt
			s.OldestEnqueuedAt = &oldest
		}
		if i == len(q.entries)-1 {
			newest := e.EnqueuedAt
			s.NewestEnqueuedAt = &newest
		}
		s.RetryDistribution[e.RetryCount]++
	}
	return s
}

// persist writes the candidate entry set; the caller commits it to q.entries
// only on success, so a failed write leaves the previous durable state as
// the recovery point.
func (q *Queue) persist(ctx context.Context, entries []model.QueuedEvent) error {
	data, err := json.Marshal(persisted{Version: 1, Entries: entries})
	if err != nil {
		return errors.Wrap(err, errors.CodePersistFailed, "failed to encode queue state")
	}
	if err := q.store.Set(ctx, q.key, data); err != nil {
		return errors.PersistFailed(q.key, err)
	}
	return nil
}

func idSet(entries []model.QueuedEvent) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[e.Event.EventID] = true
	}
	return set
}

// SetClock overrides the queue's time source. Tests only.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}
