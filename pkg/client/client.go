// Package client is the top-level entry point of the pipeline. It validates
// events against the taxonomy, queues them durably, and flushes batches
// through the transport in the background.
package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pulseflow/pulseflow/internal/model"
	"github.com/pulseflow/pulseflow/pkg/archive"
	pferrors "github.com/pulseflow/pulseflow/pkg/errors"
	"github.com/pulseflow/pulseflow/pkg/hooks"
	"github.com/pulseflow/pulseflow/pkg/queue"
	"github.com/pulseflow/pulseflow/pkg/sanitize"
	"github.com/pulseflow/pulseflow/pkg/taxonomy"
	"github.com/pulseflow/pulseflow/pkg/transport"
)

// Config holds client tunables.
type Config struct {
	// Mode selects default or privacy payloads.
	Mode model.Mode

	// BatchSize is the maximum events per flush (default: 50).
	BatchSize int

	// FlushInterval is how often the background loop flushes (default: 30s).
	FlushInterval time.Duration

	// MaintenanceInterval is how often poison events are swept (default: 5m).
	MaintenanceInterval time.Duration

	// MaxRetries is the per-event retry ceiling. Events strictly above it
	// are evicted during maintenance (default: 5).
	MaxRetries int

	// DrainTimeout bounds the final flush on Close (default: 10s).
	DrainTimeout time.Duration

	// Identity stamped onto every event.
	SessionID  string
	AppVersion string
	Platform   string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                model.ModeDefault,
		BatchSize:           50,
		FlushInterval:       30 * time.Second,
		MaintenanceInterval: 5 * time.Minute,
		MaxRetries:          5,
		DrainTimeout:        10 * time.Second,
	}
}

// Dependencies are the collaborators a client is assembled from.
type Dependencies struct {
	Taxonomy  taxonomy.Provider
	Queue     *queue.Queue
	Transport *transport.Transport

	// Hooks is optional; a fresh manager is created when nil.
	Hooks *hooks.HookManager

	// Archiver receives evicted events. Optional; defaults to NopArchiver.
	Archiver archive.Archiver

	// Diagnostics receives sanitizer drop notices. Optional.
	Diagnostics sanitize.DiagnosticFunc
}

// AnalyticsClient orchestrates the full event pipeline.
type AnalyticsClient struct {
	cfg       Config
	taxonomy  taxonomy.Provider
	queue     *queue.Queue
	transport *transport.Transport
	sanitizer *sanitize.Sanitizer
	hooks     *hooks.HookManager
	archiver  archive.Archiver
	tracer    trace.Tracer

	flushing atomic.Bool
	now      func() time.Time
}

// New assembles a client. The queue's eviction callback is claimed by the
// client to feed the archiver, so it must not be set elsewhere.
func New(cfg Config, deps Dependencies) (*AnalyticsClient, error) {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = def.MaintenanceInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	if deps.Taxonomy == nil || deps.Queue == nil || deps.Transport == nil {
		return nil, pferrors.New(pferrors.CodeInvalidEvent, "client requires taxonomy, queue, and transport")
	}
	if deps.Hooks == nil {
		deps.Hooks = hooks.NewHookManager()
	}
	if deps.Archiver == nil {
		deps.Archiver = archive.NopArchiver{}
	}

	sanitizer := sanitize.New(deps.Taxonomy)
	sanitizer.OnDiagnostic = deps.Diagnostics

	c := &AnalyticsClient{
		cfg:       cfg,
		taxonomy:  deps.Taxonomy,
		queue:     deps.Queue,
		transport: deps.Transport,
		sanitizer: sanitizer,
		hooks:     deps.Hooks,
		archiver:  deps.Archiver,
		tracer:    otel.Tracer("pulseflow/client"),
		now:       time.Now,
	}
	c.queue.OnEvict = c.onEvict

	return c, nil
}

// Log validates and enqueues one event. The event is stamped with a fresh
// ID, the current time, and the client identity before it enters the queue.
func (c *AnalyticsClient) Log(ctx context.Context, name string, props map[string]any) error {
	reg := c.taxonomy.Current()
	if !reg.Known(name) {
		return pferrors.UnknownEvent(name)
	}
	for _, required := range reg.RequiredProps(name) {
		if _, ok := props[required]; !ok {
			return pferrors.MissingProperty(name, required)
		}
	}

	ts := c.now().UTC()
	event := model.AnalyticsEvent{
		EventName:  name,
		EventID:    uuid.NewString(),
		OccurredAt: &ts,
		SessionID:  c.cfg.SessionID,
		Props:      props,
		AppVersion: c.cfg.AppVersion,
		Platform:   c.cfg.Platform,
	}

	if err := c.hooks.RunPreEnqueue(ctx, &event); err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return pferrors.Wrap(err, pferrors.CodeInvalidEvent, "event failed validation").
			WithContext("event", name)
	}

	return c.queue.Enqueue(ctx, event)
}

// Flush sends one batch from the head of the queue. It returns the number
// of events delivered. Concurrent calls collapse into one; the losers
// return immediately with zero.
func (c *AnalyticsClient) Flush(ctx context.Context) (int, error) {
	if !c.flushing.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer c.flushing.Store(false)

	batch := c.queue.Dequeue(c.cfg.BatchSize)
	if len(batch) == 0 {
		return 0, nil
	}

	ctx, span := c.tracer.Start(ctx, "client.flush",
		trace.WithAttributes(
			attribute.Int("batch.size", len(batch)),
			attribute.String("mode", string(c.cfg.Mode)),
		))
	defer span.End()

	events := make([]model.AnalyticsEvent, len(batch))
	for i, entry := range batch {
		if c.cfg.Mode == model.ModePrivacy {
			events[i] = c.sanitizer.SanitizeEvent(entry.Event)
		} else {
			events[i] = entry.Event
		}
	}

	start := c.now()
	result := c.transport.Send(ctx, events, c.cfg.Mode)
	info := &hooks.FlushInfo{
		BatchSize:  len(batch),
		Sent:       result.Success,
		Retryable:  result.ShouldRetry,
		StatusCode: result.StatusCode,
		Duration:   c.now().Sub(start),
	}
	defer c.hooks.RunPostFlush(ctx, info)

	switch {
	case result.Success:
		span.SetStatus(codes.Ok, "")
		if err := c.queue.Remove(ctx, batch); err != nil {
			// Delivered but not acknowledged locally; the batch will be
			// sent again. The server dedupes on event_id.
			return len(batch), err
		}
		return len(batch), nil

	case result.ShouldRetry:
		err := pferrors.New(pferrors.CodeSendFailed, "flush failed, batch kept for retry").
			WithContext("status", result.StatusCode).
			WithContext("error", result.Error)
		span.RecordError(err)
		span.SetStatus(codes.Error, result.Error)
		if incErr := c.queue.IncrementRetryCount(ctx, batch); incErr != nil {
			return 0, incErr
		}
		return 0, err

	default:
		// Permanent rejection. The batch can never succeed; drop it.
		err := pferrors.New(pferrors.CodeClientRejected, "endpoint rejected batch").
			WithContext("status", result.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, result.Error)
		if rmErr := c.queue.Remove(ctx, batch); rmErr != nil {
			return 0, rmErr
		}
		c.onEvict("rejected", batch)
		return 0, err
	}
}

// Drain flushes repeatedly until the queue is empty or no progress is made.
func (c *AnalyticsClient) Drain(ctx context.Context) error {
	for c.queue.Size() > 0 {
		if err := ctx.Err(); err != nil {
			return pferrors.ContextCanceled("drain")
		}
		sent, err := c.Flush(ctx)
		if err != nil {
			return err
		}
		if sent == 0 {
			// Another flusher holds the slot or the batch was dropped;
			// either way nothing more can move right now.
			return nil
		}
	}
	return nil
}

// Run drives the background flush and maintenance loops until ctx is
// canceled. It always returns the cancellation cause.
func (c *AnalyticsClient) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := c.Flush(ctx); err != nil {
					c.hooks.RunError(ctx, err, "flush")
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(c.cfg.MaintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := c.Maintain(ctx); err != nil {
					c.hooks.RunError(ctx, err, "maintenance")
				}
			}
		}
	})

	return g.Wait()
}

// Maintain evicts events that exhausted their retry budget. Evicted events
// flow to the archiver through the queue's eviction callback.
func (c *AnalyticsClient) Maintain(ctx context.Context) (int, error) {
	return c.queue.RemoveFailedEvents(ctx, c.cfg.MaxRetries)
}

// Close performs a final bounded drain. Events still queued afterwards
// survive on disk for the next session.
func (c *AnalyticsClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
	defer cancel()
	return c.Drain(ctx)
}

// Stats reports the current queue state.
func (c *AnalyticsClient) Stats() queue.Stats {
	return c.queue.Stats()
}

// QueueSize returns the number of queued events.
func (c *AnalyticsClient) QueueSize() int {
	return c.queue.Size()
}

// onEvict archives dropped events. Best effort: a failed archive is
// reported through the error hooks and otherwise ignored.
func (c *AnalyticsClient) onEvict(reason queue.EvictReason, entries []model.QueuedEvent) {
	ctx := context.Background()

	c.hooks.RunDrop(ctx, &hooks.DropInfo{
		Reason: string(reason),
		Events: entries,
	})

	rec := &archive.Record{
		ID:         uuid.NewString(),
		Reason:     string(reason),
		ArchivedAt: c.now().UTC(),
		Events:     entries,
	}
	if err := c.archiver.Archive(ctx, rec); err != nil {
		c.hooks.RunError(ctx, err, "archive")
	}
}

// SetClock overrides the time source. Used by tests.
func (c *AnalyticsClient) SetClock(now func() time.Time) {
	c.now = now
}
