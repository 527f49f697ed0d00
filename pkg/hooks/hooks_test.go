package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/pulseflow/pulseflow/internal/model"
)

func TestPreEnqueueHooks_RunInOrder(t *testing.T) {
	m := NewHookManager()
	var order []string

	m.RegisterPreEnqueue(func(ctx context.Context, e *model.AnalyticsEvent) error {
		order = append(order, "first")
		e.Props["stage"] = "one"
		return nil
	})
	m.RegisterPreEnqueue(func(ctx context.Context, e *model.AnalyticsEvent) error {
		order = append(order, "second")
		return nil
	})

	event := model.AnalyticsEvent{EventName: "note_created", Props: map[string]any{}}
	if err := m.RunPreEnqueue(context.Background(), &event); err != nil {
		t.Fatalf("RunPreEnqueue: %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
	if event.Props["stage"] != "one" {
		t.Error("hook mutation was lost")
	}
}

func TestPreEnqueueHooks_VetoStopsChain(t *testing.T) {
	m := NewHookManager()
	veto := errors.New("sampled out")
	var secondRan bool

	m.RegisterPreEnqueue(func(ctx context.Context, e *model.AnalyticsEvent) error {
		return veto
	})
	m.RegisterPreEnqueue(func(ctx context.Context, e *model.AnalyticsEvent) error {
		secondRan = true
		return nil
	})

	event := model.AnalyticsEvent{EventName: "note_created"}
	if err := m.RunPreEnqueue(context.Background(), &event); !errors.Is(err, veto) {
		t.Errorf("err = %v, want veto", err)
	}
	if secondRan {
		t.Error("chain should stop at the first error")
	}
}

func TestStampHook_DoesNotOverwrite(t *testing.T) {
	hook := StampHook(map[string]any{"app_channel": "beta", "module_id": "stamped"})

	event := model.AnalyticsEvent{
		EventName: "note_created",
		Props:     map[string]any{"module_id": "notebook"},
	}
	if err := hook(context.Background(), &event); err != nil {
		t.Fatalf("StampHook: %v", err)
	}

	if event.Props["app_channel"] != "beta" {
		t.Error("missing stamped property")
	}
	if event.Props["module_id"] != "notebook" {
		t.Error("existing property was overwritten")
	}
}

func TestDropAndFlushHooks(t *testing.T) {
	m := NewHookManager()

	var dropped int
	m.RegisterDrop(func(ctx context.Context, info *DropInfo) {
		dropped += len(info.Events)
	})

	var flushes []FlushInfo
	m.RegisterPostFlush(func(ctx context.Context, result *FlushInfo) error {
		flushes = append(flushes, *result)
		return nil
	})

	m.RunDrop(context.Background(), &DropInfo{
		Reason: "poison",
		Events: make([]model.QueuedEvent, 3),
	})
	m.RunPostFlush(context.Background(), &FlushInfo{BatchSize: 10, Sent: true})

	if dropped != 3 {
		t.Errorf("dropped = %d", dropped)
	}
	if len(flushes) != 1 || !flushes[0].Sent {
		t.Errorf("flushes = %+v", flushes)
	}
}

func TestClear(t *testing.T) {
	m := NewHookManager()
	var ran bool
	m.RegisterPreEnqueue(func(ctx context.Context, e *model.AnalyticsEvent) error {
		ran = true
		return nil
	})
	m.Clear()

	event := model.AnalyticsEvent{EventName: "note_created"}
	m.RunPreEnqueue(context.Background(), &event)
	if ran {
		t.Error("cleared hooks should not run")
	}
}

func TestProgressTracker(t *testing.T) {
	var reports []Progress
	tracker := NewProgressTracker(5, func(p Progress) {
		reports = append(reports, p)
	})

	tracker.AddEnqueued(10)
	tracker.AddDelivered(3)
	if len(reports) != 0 {
		t.Fatal("report fired below the interval")
	}
	tracker.AddDelivered(2)
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	if reports[0].Delivered != 5 || reports[0].Enqueued != 10 {
		t.Errorf("report = %+v", reports[0])
	}

	tracker.AddDropped(2)
	tracker.AddFailed(1)
	got := tracker.GetProgress()
	if got.Dropped != 2 || got.Failed != 1 {
		t.Errorf("progress = %+v", got)
	}
}
