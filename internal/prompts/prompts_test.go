package prompts

import (
	"strings"
	"testing"
)

func TestBuild_PrependsTaskPreamble(t *testing.T) {
	got := Build(ModelResearch, "classify satellite images")

	if !strings.HasSuffix(got, "\n\nclassify satellite images") {
		t.Errorf("expected input appended after preamble, got %q", got)
	}
	if !strings.Contains(got, "ML model researcher") {
		t.Errorf("expected model-research preamble, got %q", got)
	}
}

func TestBuild_EachTaskHasDistinctPreamble(t *testing.T) {
	tasks := []Task{ModelResearch, ResearchPlan, ExperimentDesign, ExperimentSuggestions, WritePaper}

	seen := make(map[string]Task)
	for _, task := range tasks {
		p := Build(task, "x")
		if prev, dup := seen[p]; dup {
			t.Errorf("tasks %q and %q share a preamble", prev, task)
		}
		seen[p] = task
	}
}

func TestBuild_UnknownTaskPassesThrough(t *testing.T) {
	got := Build(Task("summarize-cat-videos"), "the input")
	if got != "the input" {
		t.Errorf("expected passthrough for unknown task, got %q", got)
	}
}

func TestWithData_AppendsJSON(t *testing.T) {
	got := WithData("base prompt", map[string]any{"accuracy": 0.91})

	if !strings.HasPrefix(got, "base prompt\n\nData:\n") {
		t.Errorf("expected data section appended, got %q", got)
	}
	if !strings.Contains(got, `"accuracy":0.91`) {
		t.Errorf("expected JSON-encoded data, got %q", got)
	}
}

func TestWithData_EmptyIsNoOp(t *testing.T) {
	if got := WithData("base prompt", nil); got != "base prompt" {
		t.Errorf("expected no-op for nil data, got %q", got)
	}
	if got := WithData("base prompt", map[string]any{}); got != "base prompt" {
		t.Errorf("expected no-op for empty data, got %q", got)
	}
}

func TestForAgent_IncludesFormFields(t *testing.T) {
	got := ForAgent(AgentSpec{
		Name:         "Paper Reviewer",
		Description:  "Reviews drafts",
		SystemPrompt: "Be strict.",
		Formality:    80,
		Creativity:   20,
		Toggles:      map[string]bool{"web_search": true},
		ModelPick:    "gemini",
	})

	for _, want := range []string{
		"- Name: Paper Reviewer",
		"- Description: Reviews drafts",
		"- System prompt: Be strict.",
		"- Formality level: 80/100",
		"- Creativity level: 20/100",
		`"web_search":true`,
		"- Model: gemini",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected prompt to contain %q, got:\n%s", want, got)
		}
	}
	if !strings.Contains(got, "research planner") {
		t.Error("expected agent prompt to use the research-plan preamble")
	}
}

func TestForAgent_NoTogglesRendersNone(t *testing.T) {
	got := ForAgent(AgentSpec{Name: "bare"})
	if !strings.Contains(got, "- Enabled tools: none") {
		t.Errorf("expected 'none' for empty toggles, got:\n%s", got)
	}
}

func TestValid(t *testing.T) {
	for _, task := range []Task{ModelResearch, ResearchPlan, ExperimentDesign, ExperimentSuggestions, WritePaper, BuildAgent} {
		if !Valid(task) {
			t.Errorf("expected %q to be valid", task)
		}
	}
	if Valid(Task("nope")) {
		t.Error("expected unknown task to be invalid")
	}
}
