package thinker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	contractx "github.com/revpilot-ai/revpilot/agent/contract"
	statex "github.com/revpilot-ai/revpilot/agent/state"
)

type summarizerImpl struct {
	runner compose.Runnable[map[string]any, summaryLLMOutput]
}

type summaryLLMOutput struct {
	Summary string `json:"summary"`
}

// NewSummarizer builds the best-effort answer generator used when a run
// exhausts its step budget.
func NewSummarizer(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (contractx.Summarizer, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: summarize prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileStructuredLLMGraph[summaryLLMOutput](ctx, chatModel, systemPrompt, "summarizer.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile summarizer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &summarizerImpl{runner: runner}, nil
}

func (s *summarizerImpl) Summarize(ctx context.Context, req contractx.SummarizeRequest) (string, error) {
	payload := map[string]any{
		"query":          req.Query,
		"memory_summary": req.MemorySummary,
		"transcript":     statex.RenderTranscript(req.Steps),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal summarize payload: %v", contractx.ErrValidation, err)
	}

	out, err := s.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return "", fmt.Errorf("%w: summarize invoke: %v", contractx.ErrModelInvoke, err)
	}

	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return "", fmt.Errorf("%w: summary is empty", contractx.ErrSchemaViolation)
	}
	return summary, nil
}
