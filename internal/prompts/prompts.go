// Package prompts builds the task-specific instructions sent upstream.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Task identifies one of the research workflows the API exposes.
type Task string

const (
	ModelResearch         Task = "model-research"
	ResearchPlan          Task = "research-plan"
	ExperimentDesign      Task = "experiment-design"
	ExperimentSuggestions Task = "experiment-suggestions"
	WritePaper            Task = "write-paper"
	BuildAgent            Task = "build-agent"
)

var preambles = map[Task]string{
	ModelResearch: "You are an ML model researcher. Recommend machine learning models " +
		"suited to the task below. For each candidate, state its strengths, weaknesses, " +
		"and expected resource cost.",
	ResearchPlan: "You are a research planner. Produce a structured research plan for " +
		"the goal below: hypotheses, required datasets, milestones, and evaluation criteria.",
	ExperimentDesign: "You are an experiment designer. Turn the research plan below into " +
		"concrete experiment designs: variables, controls, procedure, and success metrics.",
	ExperimentSuggestions: "You are an experimentalist. Analyze the results below and " +
		"suggest follow-up experiments, ordered by expected information gain.",
	WritePaper: "You are an academic writer. Draft a paper from the research query and " +
		"experimental data below: abstract, methods, results, and discussion.",
}

// Build composes the upstream prompt for a task from the caller's input.
// Unknown tasks pass the input through unchanged.
func Build(task Task, input string) string {
	pre, ok := preambles[task]
	if !ok {
		return input
	}
	return pre + "\n\n" + input
}

// WithData appends supplementary JSON data, such as experimental results,
// to a composed prompt. Empty data is a no-op.
func WithData(prompt string, data map[string]any) string {
	if len(data) == 0 {
		return prompt
	}
	b, err := json.Marshal(data)
	if err != nil {
		return prompt
	}
	return prompt + "\n\nData:\n" + string(b)
}

// AgentSpec is the form payload an agent is built from.
type AgentSpec struct {
	Name         string
	Description  string
	SystemPrompt string
	Formality    int
	Creativity   int
	Toggles      map[string]bool
	ModelPick    string
}

// ForAgent renders the research-plan prompt used when building an agent
// from UI form data.
func ForAgent(spec AgentSpec) string {
	var b strings.Builder
	b.WriteString("Create an ML research agent with:\n")
	fmt.Fprintf(&b, "- Name: %s\n", spec.Name)
	fmt.Fprintf(&b, "- Description: %s\n", spec.Description)
	fmt.Fprintf(&b, "- System prompt: %s\n", spec.SystemPrompt)
	fmt.Fprintf(&b, "- Formality level: %d/100\n", spec.Formality)
	fmt.Fprintf(&b, "- Creativity level: %d/100\n", spec.Creativity)
	fmt.Fprintf(&b, "- Enabled tools: %s\n", formatToggles(spec.Toggles))
	fmt.Fprintf(&b, "- Model: %s\n", spec.ModelPick)
	return Build(ResearchPlan, b.String())
}

func formatToggles(toggles map[string]bool) string {
	if len(toggles) == 0 {
		return "none"
	}
	b, err := json.Marshal(toggles)
	if err != nil {
		return "none"
	}
	return string(b)
}

// Valid reports whether task names a known workflow.
func Valid(task Task) bool {
	_, ok := preambles[task]
	return ok || task == BuildAgent
}
