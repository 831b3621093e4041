package thinker

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/revpilot-ai/revpilot/agent/contract"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	err       error
	idx       int
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

var testTools = []*schema.ToolInfo{
	{Name: "deals.analyze", Desc: "analyze synced deals"},
	{Name: "documents.search", Desc: "search documents"},
}

func TestThinkMapsToolCalls(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{
				Role: schema.Assistant,
				ToolCalls: []schema.ToolCall{
					{
						ID:   "call_1",
						Type: "function",
						Function: schema.FunctionCall{
							Name:      "deals.analyze",
							Arguments: `{"analysis_type":"revenue_forecast"}`,
						},
					},
				},
			},
		},
	}

	thinker, err := New(context.Background(), fake, "think prompt", testTools)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := thinker.Think(context.Background(), contractx.ThinkRequest{
		Query: "forecast next quarter revenue",
	})
	if err != nil {
		t.Fatalf("Think() error = %v", err)
	}
	if out.IsFinal() {
		t.Fatal("expected a tool step, got final answer")
	}
	if len(out.ToolRequests) != 1 {
		t.Fatalf("expected 1 tool request, got %d", len(out.ToolRequests))
	}
	if out.ToolRequests[0].Tool != "deals.analyze" {
		t.Fatalf("unexpected tool: %s", out.ToolRequests[0].Tool)
	}
	if out.ToolRequests[0].Args["analysis_type"] != "revenue_forecast" {
		t.Fatalf("unexpected args: %#v", out.ToolRequests[0].Args)
	}
}

func TestThinkParsesFinalAnswer(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{
				Content: `{"thought":"enough data","action":"final_answer","answer":"Weighted pipeline value is $420k."}`,
			},
		},
	}

	thinker, err := New(context.Background(), fake, "think prompt", testTools)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := thinker.Think(context.Background(), contractx.ThinkRequest{
		Query: "what is the weighted pipeline value",
	})
	if err != nil {
		t.Fatalf("Think() error = %v", err)
	}
	if !out.IsFinal() {
		t.Fatalf("expected final answer, got action %q", out.Action)
	}
	if out.Answer != "Weighted pipeline value is $420k." {
		t.Fatalf("unexpected answer: %q", out.Answer)
	}
}

func TestThinkParsesFencedFinalAnswer(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{
				Content: "```json\n{\"thought\":\"done\",\"action\":\"final_answer\",\"answer\":\"Three deals are stalled.\"}\n```",
			},
		},
	}

	thinker, err := New(context.Background(), fake, "think prompt", testTools)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := thinker.Think(context.Background(), contractx.ThinkRequest{
		Query: "which deals are stalled",
	})
	if err != nil {
		t.Fatalf("Think() error = %v", err)
	}
	if out.Answer != "Three deals are stalled." {
		t.Fatalf("unexpected answer: %q", out.Answer)
	}
}

func TestThinkRejectsUnknownTool(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{
				Role: schema.Assistant,
				ToolCalls: []schema.ToolCall{
					{
						Function: schema.FunctionCall{
							Name:      "crm.delete_everything",
							Arguments: `{}`,
						},
					},
				},
			},
		},
	}

	thinker, err := New(context.Background(), fake, "think prompt", testTools)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = thinker.Think(context.Background(), contractx.ThinkRequest{Query: "do something"})
	if !errors.Is(err, contractx.ErrToolNotAllowed) {
		t.Fatalf("Think() error = %v, want ErrToolNotAllowed", err)
	}
}

func TestThinkRejectsBadToolArgs(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{
				Role: schema.Assistant,
				ToolCalls: []schema.ToolCall{
					{
						Function: schema.FunctionCall{
							Name:      "deals.analyze",
							Arguments: `{"analysis_type":`,
						},
					},
				},
			},
		},
	}

	thinker, err := New(context.Background(), fake, "think prompt", testTools)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = thinker.Think(context.Background(), contractx.ThinkRequest{Query: "analyze deals"})
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("Think() error = %v, want ErrSchemaViolation", err)
	}
}

func TestThinkRejectsWrongAction(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"thought":"hmm","action":"give_up","answer":"no"}`},
		},
	}

	thinker, err := New(context.Background(), fake, "think prompt", testTools)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = thinker.Think(context.Background(), contractx.ThinkRequest{Query: "analyze deals"})
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("Think() error = %v, want ErrSchemaViolation", err)
	}
}

func TestThinkRequiresQuery(t *testing.T) {
	t.Parallel()

	thinker, err := New(context.Background(), &fakeToolCallingModel{}, "think prompt", testTools)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = thinker.Think(context.Background(), contractx.ThinkRequest{})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Think() error = %v, want ErrValidation", err)
	}
}

func TestNewRequiresPrompt(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), &fakeToolCallingModel{}, "   ", testTools)
	if !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("New() error = %v, want ErrPromptMissing", err)
	}
}

func TestSummarizerReturnsSummary(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"summary":"Pipeline looks healthy; two deals need follow-up."}`},
		},
	}

	summarizer, err := NewSummarizer(context.Background(), fake, "summarize prompt")
	if err != nil {
		t.Fatalf("NewSummarizer() error = %v", err)
	}

	got, err := summarizer.Summarize(context.Background(), contractx.SummarizeRequest{
		Query: "how is the pipeline",
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "Pipeline looks healthy; two deals need follow-up." {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	in := "Here you go:\n```json\n{\"a\":{\"b\":\"}\"}}\n``` thanks"
	got := extractJSONObject(in)
	if got != `{"a":{"b":"}"}}` {
		t.Fatalf("extractJSONObject() = %q", got)
	}
}
