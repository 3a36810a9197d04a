package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensourcewtf/waaah/internal/common/apperr"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

func TestStore_UpsertAndGetAgent(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	agent := &v1.Agent{
		ID:           "dev-agent",
		DisplayName:  "Dev Agent",
		Aliases:      []string{"dev", "developer"},
		Capabilities: []string{"code", "review"},
		WorkspaceContext: &v1.WorkspaceContext{
			Type:   "github",
			RepoID: "OpenSourceWTF/dojo",
			Branch: "main",
		},
		Color:    "#ff8800",
		LastSeen: time.Now().UnixMilli(),
	}
	if err := st.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("failed to upsert agent: %v", err)
	}

	got, err := st.GetAgent(ctx, "dev-agent")
	if err != nil {
		t.Fatalf("failed to get agent: %v", err)
	}
	if got.DisplayName != "Dev Agent" {
		t.Errorf("expected display name Dev Agent, got %s", got.DisplayName)
	}
	if len(got.Aliases) != 2 || got.Aliases[0] != "dev" {
		t.Errorf("unexpected aliases: %v", got.Aliases)
	}
	if got.WorkspaceContext == nil || got.WorkspaceContext.RepoID != "OpenSourceWTF/dojo" {
		t.Errorf("unexpected workspace context: %+v", got.WorkspaceContext)
	}
	if got.EvictionRequested {
		t.Error("expected no eviction on a fresh agent")
	}
}

func TestStore_GetAgentNotFound(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()

	_, err := st.GetAgent(context.Background(), "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpsertAgentClearsEviction(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	agent := &v1.Agent{ID: "a1", DisplayName: "A1"}
	if err := st.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("failed to upsert agent: %v", err)
	}
	if err := st.SetAgentEviction(ctx, "a1", true, "maintenance", v1.EvictionRestart); err != nil {
		t.Fatalf("failed to set eviction: %v", err)
	}

	// Re-registration clears the pending eviction signal.
	agent.DisplayName = "A1 v2"
	if err := st.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("failed to re-upsert agent: %v", err)
	}

	got, err := st.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("failed to get agent: %v", err)
	}
	if got.DisplayName != "A1 v2" {
		t.Errorf("expected updated display name, got %s", got.DisplayName)
	}
	if got.EvictionRequested || got.EvictionReason != "" || got.EvictionAction != "" {
		t.Errorf("expected eviction cleared by re-registration, got %+v", got)
	}
}

func TestStore_ResolveAlias(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	agent := &v1.Agent{ID: "dev-agent", Aliases: []string{"Dev", "developer"}}
	if err := st.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("failed to upsert agent: %v", err)
	}

	// Resolution is case-insensitive.
	for _, alias := range []string{"dev", "DEV", "Developer"} {
		id, err := st.ResolveAlias(ctx, alias)
		if err != nil {
			t.Fatalf("failed to resolve %s: %v", alias, err)
		}
		if id != "dev-agent" {
			t.Errorf("expected dev-agent for %s, got %s", alias, id)
		}
	}

	if _, err := st.ResolveAlias(ctx, "nobody"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown alias, got %v", err)
	}

	// Re-registration rewrites the alias index.
	agent.Aliases = []string{"devv"}
	if err := st.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("failed to re-upsert agent: %v", err)
	}
	if _, err := st.ResolveAlias(ctx, "dev"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected stale alias to be dropped, got %v", err)
	}
}

func TestStore_SetAgentWaiting(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := st.UpsertAgent(ctx, &v1.Agent{ID: "a1"}); err != nil {
		t.Fatalf("failed to upsert agent: %v", err)
	}

	since := time.Now().UnixMilli()
	if err := st.SetAgentWaiting(ctx, "a1", &since); err != nil {
		t.Fatalf("failed to set waiting: %v", err)
	}
	got, _ := st.GetAgent(ctx, "a1")
	if got.WaitingSince == nil || *got.WaitingSince != since {
		t.Errorf("expected waiting_since %d, got %v", since, got.WaitingSince)
	}

	if err := st.SetAgentWaiting(ctx, "a1", nil); err != nil {
		t.Fatalf("failed to clear waiting: %v", err)
	}
	got, _ = st.GetAgent(ctx, "a1")
	if got.WaitingSince != nil {
		t.Errorf("expected waiting_since cleared, got %v", got.WaitingSince)
	}
}

func TestStore_TouchAgent(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := st.UpsertAgent(ctx, &v1.Agent{ID: "a1"}); err != nil {
		t.Fatalf("failed to upsert agent: %v", err)
	}

	ts := time.Now().UnixMilli()
	if err := st.TouchAgent(ctx, "a1", ts); err != nil {
		t.Fatalf("failed to touch agent: %v", err)
	}
	got, _ := st.GetAgent(ctx, "a1")
	if got.LastSeen != ts {
		t.Errorf("expected last_seen %d, got %d", ts, got.LastSeen)
	}

	if err := st.TouchAgent(ctx, "missing", ts); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown agent, got %v", err)
	}
}

func TestStore_ListAndDeleteAgents(t *testing.T) {
	st, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"b-agent", "a-agent", "c-agent"} {
		if err := st.UpsertAgent(ctx, &v1.Agent{ID: id}); err != nil {
			t.Fatalf("failed to upsert %s: %v", id, err)
		}
	}

	agents, err := st.ListAgents(ctx)
	if err != nil {
		t.Fatalf("failed to list agents: %v", err)
	}
	if len(agents) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(agents))
	}
	if agents[0].ID != "a-agent" {
		t.Errorf("expected ordering by id, got %s first", agents[0].ID)
	}

	if err := st.DeleteAgent(ctx, "b-agent"); err != nil {
		t.Fatalf("failed to delete agent: %v", err)
	}
	count, _ := st.CountAgents(ctx)
	if count != 2 {
		t.Errorf("expected 2 agents after delete, got %d", count)
	}

	if err := st.DeleteAgent(ctx, "b-agent"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}
