package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/opensourcewtf/waaah/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "error",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	var received []*Event
	sub, err := b.Subscribe("task", func(ctx context.Context, event *Event) error {
		received = append(received, event)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	event := NewEvent("task.queued", "test", map[string]interface{}{"task_id": "t-1"})
	if err := b.Publish(context.Background(), "task", event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// Delivery is synchronous; the handler has already run.
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Data["task_id"] != "t-1" {
		t.Errorf("unexpected payload: %v", received[0].Data)
	}
}

func TestMemoryEventBus_OrderedDelivery(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	var order []string
	_, _ = b.Subscribe("completion", func(ctx context.Context, event *Event) error {
		order = append(order, event.Type)
		return nil
	})

	for _, typ := range []string{"a", "b", "c"} {
		_ = b.Publish(context.Background(), "completion", NewEvent(typ, "test", nil))
	}

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("expected ordered delivery, got %v", order)
	}
}

func TestMemoryEventBus_SubscriberIsolation(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	var okCalls int
	_, _ = b.Subscribe("activity", func(ctx context.Context, event *Event) error {
		return errors.New("subscriber failure")
	})
	_, _ = b.Subscribe("activity", func(ctx context.Context, event *Event) error {
		panic("subscriber panic")
	})
	_, _ = b.Subscribe("activity", func(ctx context.Context, event *Event) error {
		okCalls++
		return nil
	})

	if err := b.Publish(context.Background(), "activity", NewEvent("x", "test", nil)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if okCalls != 1 {
		t.Errorf("expected healthy subscriber to run despite sibling failures, got %d calls", okCalls)
	}
}

func TestMemoryEventBus_WildcardMatch(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	var got []string
	_, _ = b.Subscribe("task.*", func(ctx context.Context, event *Event) error {
		got = append(got, event.Type)
		return nil
	})

	_ = b.Publish(context.Background(), "task.t-1", NewEvent("one", "test", nil))
	_ = b.Publish(context.Background(), "other.t-1", NewEvent("two", "test", nil))

	if len(got) != 1 || got[0] != "one" {
		t.Fatalf("expected only task.* events, got %v", got)
	}
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	calls := 0
	sub, _ := b.Subscribe("eviction", func(ctx context.Context, event *Event) error {
		calls++
		return nil
	})

	_ = b.Publish(context.Background(), "eviction", NewEvent("x", "test", nil))
	_ = sub.Unsubscribe()
	_ = b.Publish(context.Background(), "eviction", NewEvent("y", "test", nil))

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
	if sub.IsValid() {
		t.Error("expected subscription to be invalid after unsubscribe")
	}
}

func TestMemoryEventBus_ConcurrentPublish(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	defer b.Close()

	var mu sync.Mutex
	count := 0
	_, _ = b.Subscribe("task", func(ctx context.Context, event *Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Publish(context.Background(), "task", NewEvent("x", "test", nil))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 20 {
		t.Errorf("expected 20 deliveries, got %d", count)
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	b := NewMemoryEventBus(newTestLogger(t))
	b.Close()

	if b.IsConnected() {
		t.Error("expected bus to report disconnected after close")
	}
	if err := b.Publish(context.Background(), "task", NewEvent("x", "test", nil)); err == nil {
		t.Error("expected publish on closed bus to fail")
	}
	if _, err := b.Subscribe("task", func(ctx context.Context, e *Event) error { return nil }); err == nil {
		t.Error("expected subscribe on closed bus to fail")
	}
}
