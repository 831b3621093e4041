package react

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/revpilot-ai/revpilot/agent/contract"
	statex "github.com/revpilot-ai/revpilot/agent/state"
	storex "github.com/revpilot-ai/revpilot/store"
)

const (
	thinkRetries      = 3
	thinkRetryBackoff = 500 * time.Millisecond
)

// exhaustedFallback is returned when the step budget runs out and the
// summarizer cannot produce a best-effort answer either.
const exhaustedFallback = "I ran out of reasoning steps before reaching a confident answer. " +
	"Try narrowing the question, for example to a single pipeline or time range."

// QueryRequest is one user turn handed to the agent.
type QueryRequest struct {
	WorkspaceID    string `json:"workspace_id"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query"`
}

// QueryResponse is the completed turn: the answer, the evidence behind it,
// and the identifiers needed to continue the conversation.
type QueryResponse struct {
	ConversationID string             `json:"conversation_id"`
	RunID          string             `json:"run_id"`
	Answer         string             `json:"answer"`
	Status         statex.RunStatus   `json:"status"`
	Steps          int                `json:"steps"`
	Sources        []contractx.Source `json:"sources,omitempty"`
}

// ConversationLog persists the durable record of a conversation. The run
// store only holds the short-lived working state.
type ConversationLog interface {
	GetOrCreate(ctx context.Context, workspaceID, userID, conversationID string, now time.Time) (*storex.Conversation, error)
	AddMessage(ctx context.Context, conversationID, role, content string, now time.Time) error
}

// Reactor drives the think/act loop: each cycle asks the thinker for the
// next action, executes the requested tools, records the observation, and
// stops on a final answer, an exhausted budget, or an irrecoverable error.
type Reactor struct {
	store            statex.Store
	thinker          contractx.Thinker
	tools            contractx.ToolGateway
	summarizer       contractx.Summarizer
	conversations    ConversationLog
	stepBudget       int
	transcriptBudget int
	now              func() time.Time
}

type Option func(*Reactor)

func WithStepBudget(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.stepBudget = n
		}
	}
}

func WithTranscriptBudget(chars int) Option {
	return func(r *Reactor) {
		if chars > 0 {
			r.transcriptBudget = chars
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reactor) {
		if now != nil {
			r.now = now
		}
	}
}

func New(
	store statex.Store,
	thinker contractx.Thinker,
	tools contractx.ToolGateway,
	summarizer contractx.Summarizer,
	conversations ConversationLog,
	opts ...Option,
) (*Reactor, error) {
	if store == nil || thinker == nil || tools == nil || summarizer == nil || conversations == nil {
		return nil, errors.New("reactor: all collaborators are required")
	}
	r := &Reactor{
		store:            store,
		thinker:          thinker,
		tools:            tools,
		summarizer:       summarizer,
		conversations:    conversations,
		stepBudget:       statex.DefaultStepBudget,
		transcriptBudget: statex.DefaultTranscriptBudget,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// HandleQuery runs one full turn. The returned response is also persisted:
// the conversation gets the user and agent messages, the run store gets the
// terminal run state.
func (r *Reactor) HandleQuery(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	conv, err := r.conversations.GetOrCreate(ctx, req.WorkspaceID, req.UserID, req.ConversationID, r.now())
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}
	if err := r.conversations.AddMessage(ctx, conv.ID, storex.MessageRoleUser, req.Query, r.now()); err != nil {
		return nil, fmt.Errorf("record user message: %w", err)
	}

	run := statex.NewRunState(uuid.NewString(), conv.ID, req.WorkspaceID, req.UserID, req.Query, r.now())
	run.StepBudget = r.stepBudget
	r.seedMemory(ctx, run)

	sources, loopErr := r.loop(ctx, run)
	if saveErr := r.store.Save(ctx, run); saveErr != nil {
		log.Warn().Err(saveErr).Str("run_id", run.RunID).Msg("react: saving terminal run state failed")
	}
	if loopErr != nil {
		return nil, loopErr
	}

	if err := r.conversations.AddMessage(ctx, conv.ID, storex.MessageRoleAgent, run.Answer, r.now()); err != nil {
		return nil, fmt.Errorf("record agent message: %w", err)
	}

	return &QueryResponse{
		ConversationID: conv.ID,
		RunID:          run.RunID,
		Answer:         run.Answer,
		Status:         run.Status,
		Steps:          len(run.Steps),
		Sources:        sources,
	}, nil
}

// seedMemory carries the previous run's compacted context into a fresh run,
// so a follow-up question keeps what the conversation already established.
// A missing or unreadable prior run just means a cold start.
func (r *Reactor) seedMemory(ctx context.Context, run *statex.RunState) {
	prev, err := r.store.Load(ctx, run.ConversationID)
	if err != nil {
		if !errors.Is(err, statex.ErrStateNotFound) {
			log.Warn().Err(err).Str("conversation_id", run.ConversationID).
				Msg("react: loading previous run failed")
		}
		return
	}

	var parts []string
	if s := strings.TrimSpace(prev.MemorySummary); s != "" {
		parts = append(parts, s)
	}
	if a := strings.TrimSpace(prev.Answer); a != "" {
		parts = append(parts, "Previously answered: "+a)
	}
	run.MemorySummary = strings.Join(parts, "\n")
}

// loop executes think/act cycles until the run terminates. It returns the
// evidence sources gathered from tool observations; on an irrecoverable
// error the run is marked failed and the error is returned.
func (r *Reactor) loop(ctx context.Context, run *statex.RunState) ([]contractx.Source, error) {
	descriptors := r.tools.Descriptors()
	var sources []contractx.Source

	for run.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			run.MarkFailed(r.now())
			return sources, err
		}

		out, err := r.thinkWithRetry(ctx, contractx.ThinkRequest{
			Query:         run.Query,
			MemorySummary: run.MemorySummary,
			Steps:         run.Steps,
			Tools:         descriptors,
			Now:           r.now(),
		})
		if err != nil {
			run.MarkFailed(r.now())
			return sources, fmt.Errorf("think step %d: %w", len(run.Steps)+1, err)
		}

		if out.IsFinal() {
			if err := run.MarkAnswered(out.Answer, r.now()); err != nil {
				run.MarkFailed(r.now())
				return sources, fmt.Errorf("accept answer: %w", err)
			}
			log.Debug().Str("run_id", run.RunID).Int("steps", len(run.Steps)).
				Msg("react: run answered")
			return sources, nil
		}

		step, stepSources, err := r.executeTools(ctx, run.WorkspaceID, out)
		if err != nil {
			run.MarkFailed(r.now())
			return sources, err
		}
		sources = append(sources, stepSources...)

		if err := run.AppendStep(step, r.now()); err != nil {
			run.MarkFailed(r.now())
			return sources, fmt.Errorf("append step: %w", err)
		}
		run.Compact(r.transcriptBudget)

		if err := r.store.Save(ctx, run); err != nil {
			log.Warn().Err(err).Str("run_id", run.RunID).Msg("react: interim save failed")
		}
	}

	r.exhaust(ctx, run)
	return sources, nil
}

// exhaust produces a best-effort answer from the transcript once the budget
// is spent. A summarizer failure falls back to a canned apology rather than
// failing the run.
func (r *Reactor) exhaust(ctx context.Context, run *statex.RunState) {
	answer, err := r.summarizer.Summarize(ctx, contractx.SummarizeRequest{
		Query:         run.Query,
		MemorySummary: run.MemorySummary,
		Steps:         run.Steps,
	})
	if err != nil || strings.TrimSpace(answer) == "" {
		log.Warn().Err(err).Str("run_id", run.RunID).Msg("react: fallback summarize failed")
		answer = exhaustedFallback
	}
	run.MarkExhausted(answer, r.now())
	log.Debug().Str("run_id", run.RunID).Msg("react: run exhausted, returned best-effort answer")
}

// executeTools dispatches the thinker's tool requests and folds the results
// into one StepRecord. Tool failures become observations for the next think
// cycle instead of terminating the run.
func (r *Reactor) executeTools(ctx context.Context, workspaceID string, out contractx.ThinkOutput) (statex.StepRecord, []contractx.Source, error) {
	if len(out.ToolRequests) == 0 {
		return statex.StepRecord{}, nil, fmt.Errorf("%w: action %q carries no tool requests", contractx.ErrSchemaViolation, out.Action)
	}

	results, err := r.tools.Execute(ctx, workspaceID, out.ToolRequests)
	if err != nil {
		return statex.StepRecord{}, nil, fmt.Errorf("execute tools: %w", err)
	}

	step := statex.StepRecord{
		Thought: out.Thought,
		Action:  out.Action,
		Tool:    out.ToolRequests[0].Tool,
		Input:   renderToolInput(out.ToolRequests),
	}

	var sources []contractx.Source
	var failures []string
	for _, res := range results {
		sources = append(sources, res.Sources...)
		if res.Error != "" {
			failures = append(failures, res.Tool+": "+res.Error)
		}
	}

	observation, err := json.Marshal(results)
	if err != nil {
		return statex.StepRecord{}, nil, fmt.Errorf("encode observation: %w", err)
	}
	step.Observation = observation
	if len(failures) == len(results) {
		// All requests failed: surface the error channel so the thinker
		// changes course instead of re-reading a useless observation.
		step.Observation = nil
		step.ObservationErr = strings.Join(failures, "; ")
	}
	return step, sources, nil
}

// thinkWithRetry retries transient model failures with doubling backoff.
// Schema violations are not retried here; they indicate the model ignored
// the contract and a bare retry rarely changes that.
func (r *Reactor) thinkWithRetry(ctx context.Context, req contractx.ThinkRequest) (contractx.ThinkOutput, error) {
	var lastErr error
	for attempt := 0; attempt <= thinkRetries; attempt++ {
		if attempt > 0 {
			delay := thinkRetryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return contractx.ThinkOutput{}, ctx.Err()
			case <-time.After(delay):
			}
			log.Warn().Int("attempt", attempt).Err(lastErr).Msg("react: retrying think call")
		}

		out, err := r.thinker.Think(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errors.Is(err, contractx.ErrModelInvoke) {
			return contractx.ThinkOutput{}, err
		}
	}
	return contractx.ThinkOutput{}, lastErr
}

func validateRequest(req QueryRequest) error {
	if strings.TrimSpace(req.WorkspaceID) == "" {
		return fmt.Errorf("%w: workspace_id is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query is required", contractx.ErrValidation)
	}
	return nil
}

func renderToolInput(reqs []contractx.ToolRequest) string {
	raw, err := json.Marshal(reqs)
	if err != nil {
		return ""
	}
	return string(raw)
}
