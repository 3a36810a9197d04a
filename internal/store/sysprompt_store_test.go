package store

import (
	"context"
	"testing"
	"time"

	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

func TestStore_PopSystemPromptDedicated(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := st.UpsertAgent(ctx, &v1.Agent{ID: "a1"}); err != nil {
		t.Fatalf("failed to upsert agent: %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	for i, msg := range []string{"older", "newer"} {
		prompt := &v1.SystemPrompt{
			AgentID:    "a1",
			PromptType: "announcement",
			Message:    msg,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := st.EnqueueSystemPrompt(ctx, prompt); err != nil {
			t.Fatalf("failed to enqueue prompt: %v", err)
		}
	}

	first, err := st.PopSystemPrompt(ctx, "a1")
	if err != nil {
		t.Fatalf("failed to pop prompt: %v", err)
	}
	if first == nil || first.Message != "older" {
		t.Fatalf("expected oldest prompt first, got %+v", first)
	}

	second, _ := st.PopSystemPrompt(ctx, "a1")
	if second == nil || second.Message != "newer" {
		t.Fatalf("expected second prompt, got %+v", second)
	}

	empty, err := st.PopSystemPrompt(ctx, "a1")
	if err != nil {
		t.Fatalf("failed on empty pop: %v", err)
	}
	if empty != nil {
		t.Errorf("expected nil on empty queue, got %+v", empty)
	}
}

func TestStore_PopSystemPromptBroadcast(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"a1", "a2"} {
		if err := st.UpsertAgent(ctx, &v1.Agent{ID: id}); err != nil {
			t.Fatalf("failed to upsert agent: %v", err)
		}
	}

	broadcast := &v1.SystemPrompt{
		AgentID:    "*",
		PromptType: "announcement",
		Message:    "maintenance window tonight",
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.EnqueueSystemPrompt(ctx, broadcast); err != nil {
		t.Fatalf("failed to enqueue broadcast: %v", err)
	}

	// Every agent sees the broadcast exactly once.
	for _, id := range []string{"a1", "a2"} {
		got, err := st.PopSystemPrompt(ctx, id)
		if err != nil {
			t.Fatalf("failed to pop for %s: %v", id, err)
		}
		if got == nil || got.Message != "maintenance window tonight" {
			t.Fatalf("expected broadcast for %s, got %+v", id, got)
		}

		again, _ := st.PopSystemPrompt(ctx, id)
		if again != nil {
			t.Errorf("expected no redelivery for %s, got %+v", id, again)
		}
	}
}

func TestStore_PopSystemPromptDedicatedFirst(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := st.UpsertAgent(ctx, &v1.Agent{ID: "a1"}); err != nil {
		t.Fatalf("failed to upsert agent: %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	older := &v1.SystemPrompt{AgentID: "*", Message: "older broadcast", CreatedAt: base}
	newer := &v1.SystemPrompt{AgentID: "a1", Message: "newer dedicated", CreatedAt: base.Add(time.Second)}
	for _, prompt := range []*v1.SystemPrompt{older, newer} {
		if err := st.EnqueueSystemPrompt(ctx, prompt); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
	}

	// Dedicated rows win over broadcast rows even when older broadcasts exist.
	first, _ := st.PopSystemPrompt(ctx, "a1")
	if first == nil || first.Message != "newer dedicated" {
		t.Fatalf("expected dedicated prompt first, got %+v", first)
	}
	second, _ := st.PopSystemPrompt(ctx, "a1")
	if second == nil || second.Message != "older broadcast" {
		t.Fatalf("expected broadcast prompt next, got %+v", second)
	}
}

func TestStore_CountSystemPrompts(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := st.EnqueueSystemPrompt(ctx, &v1.SystemPrompt{AgentID: "a1", Message: "m"}); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	if err := st.EnqueueSystemPrompt(ctx, &v1.SystemPrompt{AgentID: "*", Message: "b"}); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	count, err := st.CountSystemPrompts(ctx, "a1")
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 dedicated prompt, got %d", count)
	}
}

func TestStore_ActivityLog(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, msg := range []string{"old entry", "recent entry"} {
		entry := &v1.LogEntry{
			Category:  "task",
			Message:   msg,
			Timestamp: base.Add(time.Duration(i) * 30 * time.Minute),
		}
		if err := st.AppendLog(ctx, entry); err != nil {
			t.Fatalf("failed to append log: %v", err)
		}
	}
	if err := st.AppendLog(ctx, &v1.LogEntry{Category: "agent", Message: "registered"}); err != nil {
		t.Fatalf("failed to append log: %v", err)
	}

	byCategory, err := st.ListLogs(ctx, v1.LogFilter{Category: "task"})
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	if len(byCategory) != 2 {
		t.Fatalf("expected 2 task logs, got %d", len(byCategory))
	}
	if byCategory[0].Message != "recent entry" {
		t.Errorf("expected newest first, got %s", byCategory[0].Message)
	}

	pruned, err := st.PruneLogs(ctx, time.Now().UTC().Add(-45*time.Minute))
	if err != nil {
		t.Fatalf("failed to prune logs: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned entry, got %d", pruned)
	}
}

func TestStore_SecurityEvents(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	event := &v1.SecurityEvent{
		Source: "cli",
		FromID: "u1",
		Prompt: "rm -rf /",
		Flags:  []string{"destructive_command"},
		Action: "BLOCKED",
	}
	if err := st.AddSecurityEvent(ctx, event); err != nil {
		t.Fatalf("failed to add event: %v", err)
	}

	events, err := st.ListSecurityEvents(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Action != "BLOCKED" || len(events[0].Flags) != 1 {
		t.Errorf("unexpected event: %+v", events[0])
	}
}
