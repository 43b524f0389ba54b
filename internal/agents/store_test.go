package agents

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Create_AssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Create(context.Background(), Agent{
		Name:         "Paper Reviewer",
		Description:  "Reviews experiment writeups",
		SystemPrompt: "You are a strict reviewer.",
		Formality:    80,
		Creativity:   20,
		ModelPick:    "gemini",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if saved.ID == "" {
		t.Error("expected a generated ID")
	}
	if saved.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if saved.Name != "Paper Reviewer" {
		t.Errorf("expected name to be preserved, got %q", saved.Name)
	}
}

func TestStore_List_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(context.Background(), Agent{
		Name:       "Hyperparameter Scout",
		Formality:  30,
		Creativity: 90,
		Toggles:    map[string]bool{"web_search": true, "citations": false},
		ModelPick:  "openai",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agents, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}

	a := agents[0]
	if a.Name != "Hyperparameter Scout" {
		t.Errorf("expected name 'Hyperparameter Scout', got %q", a.Name)
	}
	if a.Formality != 30 || a.Creativity != 90 {
		t.Errorf("expected sliders 30/90, got %d/%d", a.Formality, a.Creativity)
	}
	if !a.Toggles["web_search"] || a.Toggles["citations"] {
		t.Errorf("toggles did not round-trip: %v", a.Toggles)
	}
	if a.ModelPick != "openai" {
		t.Errorf("expected model pick 'openai', got %q", a.ModelPick)
	}
}

func TestStore_List_NewestFirst(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create(context.Background(), Agent{Name: "older"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// created_at has second resolution; space the records apart.
	time.Sleep(1100 * time.Millisecond)
	if _, err := s.Create(context.Background(), Agent{Name: "newer"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agents, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	if agents[0].Name != "newer" || agents[1].Name != "older" {
		t.Errorf("expected newest-first ordering, got [%q, %q]", agents[0].Name, agents[1].Name)
	}
}

func TestStore_List_Empty(t *testing.T) {
	s := newTestStore(t)

	agents, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 0 {
		t.Errorf("expected no agents, got %d", len(agents))
	}
}

func TestStore_Ready(t *testing.T) {
	s := newTestStore(t)

	if !s.Ready(context.Background()) {
		t.Error("expected open store to be ready")
	}

	s.Close()
	if s.Ready(context.Background()) {
		t.Error("expected closed store to report not ready")
	}
}
