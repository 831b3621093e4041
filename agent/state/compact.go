package state

import (
	"fmt"
	"strings"
)

const (
	// DefaultTranscriptBudget bounds the rendered transcript handed to the
	// model. Character-based: close enough to a token budget without a
	// tokenizer dependency.
	DefaultTranscriptBudget = 8 << 10

	// keepRecentSteps is the minimum tail of full-fidelity steps that
	// compaction preserves.
	keepRecentSteps = 2

	observationExcerptLen = 280
)

// RenderTranscript formats the step history for the think prompt. The shape
// mirrors what the model saw when each step was produced.
func RenderTranscript(steps []StepRecord) string {
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	for _, step := range steps {
		fmt.Fprintf(&b, "Step %d:\n", step.Index+1)
		if step.Thought != "" {
			fmt.Fprintf(&b, "Thought: %s\n", step.Thought)
		}
		fmt.Fprintf(&b, "Action: %s\n", step.Action)
		if step.Input != "" {
			fmt.Fprintf(&b, "Input: %s\n", step.Input)
		}
		switch {
		case step.ObservationErr != "":
			fmt.Fprintf(&b, "Observation error: %s\n", step.ObservationErr)
		case len(step.Observation) > 0:
			fmt.Fprintf(&b, "Observation: %s\n", string(step.Observation))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Compact folds the oldest steps into MemorySummary until the rendered
// transcript fits maxChars. The user query and the most recent steps are
// never dropped; observations are elided first since they dominate size.
func (r *RunState) Compact(maxChars int) {
	if r == nil || len(r.Steps) == 0 {
		return
	}
	if maxChars <= 0 {
		maxChars = DefaultTranscriptBudget
	}
	if len(RenderTranscript(r.Steps)) <= maxChars {
		return
	}

	var compacted []string
	for len(r.Steps) > keepRecentSteps && len(RenderTranscript(r.Steps)) > maxChars {
		oldest := r.Steps[0]
		compacted = append(compacted, summarizeStep(oldest))
		r.Steps = r.Steps[1:]
	}
	// Reindex so Validate still holds.
	for i := range r.Steps {
		r.Steps[i].Index = i
	}

	if len(compacted) > 0 {
		note := "Earlier steps: " + strings.Join(compacted, " | ")
		if r.MemorySummary == "" {
			r.MemorySummary = note
		} else {
			r.MemorySummary = r.MemorySummary + "\n" + note
		}
	}
}

func summarizeStep(step StepRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "used %s", step.Action)
	if step.Input != "" {
		fmt.Fprintf(&b, " on %q", excerpt(step.Input, 80))
	}
	switch {
	case step.ObservationErr != "":
		fmt.Fprintf(&b, " -> error: %s", excerpt(step.ObservationErr, 120))
	case len(step.Observation) > 0:
		fmt.Fprintf(&b, " -> %s", excerpt(string(step.Observation), observationExcerptLen))
	}
	return b.String()
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
