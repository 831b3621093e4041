package contract

import (
	"time"

	statex "github.com/revpilot-ai/revpilot/agent/state"
)

type AgentRole string

const (
	AgentRoleThinker     AgentRole = "thinker"
	AgentRoleSummarizer  AgentRole = "summarizer"
	AgentRoleRecommender AgentRole = "recommender"
)

// ActionFinalAnswer is the reserved action name that terminates a run.
const ActionFinalAnswer = "final_answer"

// ToolDescriptor is the prompt-facing description of a registered tool.
type ToolDescriptor struct {
	Name string `json:"name"`
	Desc string `json:"description"`
}

type ThinkRequest struct {
	Query         string              `json:"query"`
	MemorySummary string              `json:"memory_summary"`
	Steps         []statex.StepRecord `json:"steps,omitempty"`
	Tools         []ToolDescriptor    `json:"tools"`
	Now           time.Time           `json:"now"`
}

// ThinkOutput is one reasoning step: either a batch of tool requests to
// execute, or the final answer (Action == ActionFinalAnswer).
type ThinkOutput struct {
	Thought      string        `json:"thought"`
	Action       string        `json:"action"`
	Answer       string        `json:"answer,omitempty"`
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
}

func (o ThinkOutput) IsFinal() bool {
	return o.Action == ActionFinalAnswer
}

type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	Tool    string   `json:"tool"`
	Result  any      `json:"result,omitempty"`
	Sources []Source `json:"sources,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Source points at the evidence behind an answer (a deal snapshot, a
// document, a live CRM object).
type Source struct {
	Tool    string `json:"tool"`
	Ref     string `json:"ref"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

type SummarizeRequest struct {
	Query         string              `json:"query"`
	MemorySummary string              `json:"memory_summary"`
	Steps         []statex.StepRecord `json:"steps"`
}
