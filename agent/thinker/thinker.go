package thinker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/revpilot-ai/revpilot/agent/contract"
	statex "github.com/revpilot-ai/revpilot/agent/state"
)

type thinkerImpl struct {
	toolRunner   compose.Runnable[map[string]any, *schema.Message]
	allowedTools map[string]struct{}
}

// thinkLLMOutput is the content-channel shape the think prompt demands when
// the model decides it can answer.
type thinkLLMOutput struct {
	Thought string `json:"thought"`
	Action  string `json:"action"`
	Answer  string `json:"answer"`
}

// New builds the ReAct think step: a tool-bound model that either emits tool
// calls or a final-answer JSON object on the content channel.
func New(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	tools []*schema.ToolInfo,
) (contractx.Thinker, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: think prompt", contractx.ErrPromptMissing)
	}

	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}
	toolRunner, err := compileToolPlanningGraph(ctx, toolModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile think graph: %v", contractx.ErrModelInvoke, err)
	}

	allowed := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		allowed[t.Name] = struct{}{}
	}

	return &thinkerImpl{
		toolRunner:   toolRunner,
		allowedTools: allowed,
	}, nil
}

func (t *thinkerImpl) Think(ctx context.Context, req contractx.ThinkRequest) (contractx.ThinkOutput, error) {
	if strings.TrimSpace(req.Query) == "" {
		return contractx.ThinkOutput{}, fmt.Errorf("%w: query is required", contractx.ErrValidation)
	}

	payload := map[string]any{
		"query":          req.Query,
		"memory_summary": req.MemorySummary,
		"transcript":     statex.RenderTranscript(req.Steps),
		"tools":          req.Tools,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.ThinkOutput{}, fmt.Errorf("%w: marshal think payload: %v", contractx.ErrValidation, err)
	}

	msg, err := t.toolRunner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return contractx.ThinkOutput{}, fmt.Errorf("%w: think invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.ThinkOutput{}, fmt.Errorf("%w: empty think response", contractx.ErrSchemaViolation)
	}

	if len(msg.ToolCalls) > 0 {
		reqs, err := t.toToolRequests(msg.ToolCalls)
		if err != nil {
			return contractx.ThinkOutput{}, err
		}
		return contractx.ThinkOutput{
			Thought:      strings.TrimSpace(msg.Content),
			Action:       reqs[0].Tool,
			ToolRequests: reqs,
		}, nil
	}

	return parseFinalAnswer(msg.Content)
}

func (t *thinkerImpl) toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}
		if _, ok := t.allowedTools[name]; !ok {
			return nil, fmt.Errorf("%w: %s", contractx.ErrToolNotAllowed, name)
		}

		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}
		reqs = append(reqs, contractx.ToolRequest{Tool: name, Args: args})
	}
	return reqs, nil
}

func parseFinalAnswer(content string) (contractx.ThinkOutput, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return contractx.ThinkOutput{}, fmt.Errorf("%w: think response has no tool calls and no content", contractx.ErrSchemaViolation)
	}

	var out thinkLLMOutput
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &out); err != nil {
		return contractx.ThinkOutput{}, fmt.Errorf("%w: parse final answer: %v", contractx.ErrSchemaViolation, err)
	}
	if out.Action != contractx.ActionFinalAnswer {
		return contractx.ThinkOutput{}, fmt.Errorf("%w: unexpected action=%q", contractx.ErrSchemaViolation, out.Action)
	}
	answer := strings.TrimSpace(out.Answer)
	if answer == "" {
		return contractx.ThinkOutput{}, fmt.Errorf("%w: final answer is empty", contractx.ErrSchemaViolation)
	}

	return contractx.ThinkOutput{
		Thought: strings.TrimSpace(out.Thought),
		Action:  contractx.ActionFinalAnswer,
		Answer:  answer,
	}, nil
}

// extractJSONObject tolerates models that wrap the JSON object in code
// fences or prose. It returns the outermost balanced object, or the input
// unchanged when none is found.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s
}
