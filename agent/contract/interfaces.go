package contract

import "context"

// Thinker produces the next action for a run from its accumulated context.
type Thinker interface {
	Think(ctx context.Context, req ThinkRequest) (ThinkOutput, error)
}

// Summarizer compacts a run transcript into a short answer or summary.
// The reactor uses it for best-effort answers when the step budget runs out.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
}

// ToolGateway validates and executes tool requests on behalf of a run.
// Requests are scoped to a workspace; an unknown tool comes back as a
// ToolResult with Error set, not as a Go error.
type ToolGateway interface {
	Descriptors() []ToolDescriptor
	Execute(ctx context.Context, workspaceID string, reqs []ToolRequest) ([]ToolResult, error)
}
