package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunState is the persistent source-of-truth for one agent run inside a
// conversation. It records every think/act cycle so the loop can be resumed,
// inspected, and compacted when the rendered context grows too large.
type RunState struct {
	// Identity
	RunID          string `json:"run_id"`
	ConversationID string `json:"conversation_id"`
	WorkspaceID    string `json:"workspace_id"`
	UserID         string `json:"user_id"`

	// ReAct core
	Query         string       `json:"query"`
	MemorySummary string       `json:"memory_summary,omitempty"`
	Steps         []StepRecord `json:"steps,omitempty"`
	StepBudget    int          `json:"step_budget"`

	Status RunStatus `json:"status"`
	Answer string    `json:"answer,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunAnswered  RunStatus = "answered"
	RunExhausted RunStatus = "exhausted"
	RunFailed    RunStatus = "failed"
)

// StepRecord is one completed think/act cycle. Observation is kept as raw
// JSON so the transcript renders the same after a store round-trip.
type StepRecord struct {
	Index          int             `json:"index"`
	Thought        string          `json:"thought,omitempty"`
	Action         string          `json:"action"`
	Tool           string          `json:"tool,omitempty"`
	Input          string          `json:"input,omitempty"`
	Observation    json.RawMessage `json:"observation,omitempty"`
	ObservationErr string          `json:"observation_err,omitempty"`
	At             time.Time       `json:"at"`
}

const DefaultStepBudget = 6

var (
	ErrNilRunState    = errors.New("run state is nil")
	ErrInvalidRunID   = errors.New("run id is empty")
	ErrEmptyQuery     = errors.New("query is empty")
	ErrBudgetExceeded = errors.New("steps exceed budget")
	ErrTerminalRun    = errors.New("run is terminal")
)

func NewRunState(runID, conversationID, workspaceID, userID, query string, now time.Time) *RunState {
	return &RunState{
		RunID:          runID,
		ConversationID: conversationID,
		WorkspaceID:    workspaceID,
		UserID:         userID,
		Query:          query,
		StepBudget:     DefaultStepBudget,
		Status:         RunRunning,
		UpdatedAt:      now.UTC(),
	}
}

func (r *RunState) Touch(now time.Time) {
	r.UpdatedAt = now.UTC()
}

func (r *RunState) IsTerminal() bool {
	return r != nil && r.Status != RunRunning
}

// Remaining reports how many think/act cycles the run may still perform.
func (r *RunState) Remaining() int {
	if r == nil {
		return 0
	}
	budget := r.StepBudget
	if budget <= 0 {
		budget = DefaultStepBudget
	}
	left := budget - len(r.Steps)
	if left < 0 {
		return 0
	}
	return left
}

// AppendStep records a completed cycle. The transcript is append-only while
// the run is live; terminal runs reject further steps.
func (r *RunState) AppendStep(step StepRecord, now time.Time) error {
	if r == nil {
		return ErrNilRunState
	}
	if r.IsTerminal() {
		return fmt.Errorf("%w: status=%s", ErrTerminalRun, r.Status)
	}
	if r.Remaining() == 0 {
		return ErrBudgetExceeded
	}
	step.Index = len(r.Steps)
	step.At = step.At.UTC()
	if step.At.IsZero() {
		step.At = now.UTC()
	}
	r.Steps = append(r.Steps, step)
	r.Touch(now)
	return nil
}

func (r *RunState) MarkAnswered(answer string, now time.Time) error {
	if r == nil {
		return ErrNilRunState
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return errors.New("answer is empty")
	}
	r.Status = RunAnswered
	r.Answer = answer
	r.Touch(now)
	return nil
}

func (r *RunState) MarkExhausted(fallbackAnswer string, now time.Time) {
	if r == nil {
		return
	}
	r.Status = RunExhausted
	r.Answer = strings.TrimSpace(fallbackAnswer)
	r.Touch(now)
}

func (r *RunState) MarkFailed(now time.Time) {
	if r == nil {
		return
	}
	r.Status = RunFailed
	r.Touch(now)
}

// Sources collects the evidence references recorded in tool observations.
func (r *RunState) SourceRefs() []string {
	if r == nil {
		return nil
	}
	var refs []string
	for _, step := range r.Steps {
		if step.Tool != "" && step.ObservationErr == "" {
			refs = append(refs, step.Tool)
		}
	}
	return refs
}

func (r *RunState) Validate() error {
	if r == nil {
		return ErrNilRunState
	}
	if strings.TrimSpace(r.RunID) == "" {
		return ErrInvalidRunID
	}
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	budget := r.StepBudget
	if budget <= 0 {
		budget = DefaultStepBudget
	}
	if len(r.Steps) > budget {
		return fmt.Errorf("%w: steps=%d budget=%d", ErrBudgetExceeded, len(r.Steps), budget)
	}
	if r.Status == RunAnswered && strings.TrimSpace(r.Answer) == "" {
		return errors.New("answered run must have an answer")
	}
	for i, step := range r.Steps {
		if step.Index != i {
			return fmt.Errorf("step %d has index %d", i, step.Index)
		}
		if step.Action == "" {
			return fmt.Errorf("step %d has empty action", i)
		}
	}
	return nil
}
