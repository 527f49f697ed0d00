// Package hooks provides extension points for the event pipeline.
// Hooks allow injecting custom logic around enqueue, flush, and drop decisions.
package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/pulseflow/pulseflow/internal/model"
)

// HookManager manages all registered hooks.
type HookManager struct {
	mu sync.RWMutex

	preEnqueueHooks []PreEnqueueHook
	postFlushHooks  []PostFlushHook
	dropHooks       []DropHook
	errorHooks      []ErrorHook
}

// NewHookManager creates a new hook manager.
func NewHookManager() *HookManager {
	return &HookManager{}
}

// PreEnqueueHook is called before an event enters the queue. It may mutate
// the event in place or return an error to veto it.
// Use cases: enrichment, extra scrubbing, sampling.
type PreEnqueueHook func(ctx context.Context, event *model.AnalyticsEvent) error

// PostFlushHook is called after each flush attempt with its outcome.
// Use cases: logging, metrics, alerting on repeated failures.
type PostFlushHook func(ctx context.Context, result *FlushInfo) error

// FlushInfo describes one flush attempt.
type FlushInfo struct {
	BatchSize  int
	Sent       bool
	Retryable  bool
	StatusCode int
	Duration   time.Duration
}

// DropHook is called when events leave the queue without being delivered.
// Use cases: dead-letter archiving, counters, operator alerts.
type DropHook func(ctx context.Context, info *DropInfo)

// DropInfo describes a batch of dropped events.
type DropInfo struct {
	Reason string
	Events []model.QueuedEvent
}

// ErrorHook is called when an error occurs.
// Use cases: alerting, logging, recovery.
type ErrorHook func(ctx context.Context, err error, phase string) error

// RegisterPreEnqueue adds a pre-enqueue hook.
func (m *HookManager) RegisterPreEnqueue(hook PreEnqueueHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preEnqueueHooks = append(m.preEnqueueHooks, hook)
}

// RegisterPostFlush adds a post-flush hook.
func (m *HookManager) RegisterPostFlush(hook PostFlushHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postFlushHooks = append(m.postFlushHooks, hook)
}

// RegisterDrop adds a drop hook.
func (m *HookManager) RegisterDrop(hook DropHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropHooks = append(m.dropHooks, hook)
}

// RegisterError adds an error hook.
func (m *HookManager) RegisterError(hook ErrorHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorHooks = append(m.errorHooks, hook)
}

// RunPreEnqueue executes all pre-enqueue hooks.
func (m *HookManager) RunPreEnqueue(ctx context.Context, event *model.AnalyticsEvent) error {
	m.mu.RLock()
	hooks := m.preEnqueueHooks
	m.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// RunPostFlush executes all post-flush hooks.
func (m *HookManager) RunPostFlush(ctx context.Context, result *FlushInfo) error {
	m.mu.RLock()
	hooks := m.postFlushHooks
	m.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// RunDrop executes all drop hooks.
func (m *HookManager) RunDrop(ctx context.Context, info *DropInfo) {
	m.mu.RLock()
	hooks := m.dropHooks
	m.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, info)
	}
}

// RunError executes all error hooks.
func (m *HookManager) RunError(ctx context.Context, err error, phase string) error {
	m.mu.RLock()
	hooks := m.errorHooks
	m.mu.RUnlock()

	for _, hook := range hooks {
		if hookErr := hook(ctx, err, phase); hookErr != nil {
			return hookErr
		}
	}
	return err
}

// Clear removes all registered hooks.
func (m *HookManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.preEnqueueHooks = nil
	m.postFlushHooks = nil
	m.dropHooks = nil
	m.errorHooks = nil
}

// --- Built-in hooks ---

// StampHook creates a hook that merges fixed properties into every event.
func StampHook(props map[string]any) PreEnqueueHook {
	return func(ctx context.Context, event *model.AnalyticsEvent) error {
		if event.Props == nil {
			event.Props = make(map[string]any, len(props))
		}
		for k, v := range props {
			if _, exists := event.Props[k]; !exists {
				event.Props[k] = v
			}
		}
		return nil
	}
}

// LoggingHook creates a hook that logs flush outcomes.
func LoggingHook(logger func(format string, args ...interface{})) PostFlushHook {
	return func(ctx context.Context, result *FlushInfo) error {
		if result.Sent {
			logger("Flushed %d events in %s", result.BatchSize, result.Duration)
		} else {
			logger("Flush of %d events failed (status %d, retryable %v)",
				result.BatchSize, result.StatusCode, result.Retryable)
		}
		return nil
	}
}

// --- Progress tracking ---

// Progress contains delivery progress information.
type Progress struct {
	Enqueued   int64
	Delivered  int64
	Dropped    int64
	Failed     int64
	StartTime  int64 // Unix nano
	LastStatus int
}

// ProgressHook is called periodically with progress updates.
type ProgressHook func(progress Progress)

// ProgressTracker tracks and reports delivery progress.
type ProgressTracker struct {
	mu       sync.Mutex
	progress Progress
	hook     ProgressHook
	interval int64 // Report every N delivered events
	counter  int64
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(interval int64, hook ProgressHook) *ProgressTracker {
	return &ProgressTracker{
		interval: interval,
		hook:     hook,
	}
}

// AddEnqueued increments the enqueue counter.
func (t *ProgressTracker) AddEnqueued(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Enqueued += n
}

// AddDelivered increments the delivery counter and optionally reports progress.
func (t *ProgressTracker) AddDelivered(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.progress.Delivered += n
	t.counter += n

	if t.counter >= t.interval && t.hook != nil {
		t.hook(t.progress)
		t.counter = 0
	}
}

// AddDropped increments the drop counter.
func (t *ProgressTracker) AddDropped(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Dropped += n
}

// AddFailed increments the failure counter.
func (t *ProgressTracker) AddFailed(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Failed += n
}

// GetProgress returns a copy of the current progress.
func (t *ProgressTracker) GetProgress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}
