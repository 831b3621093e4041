package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/revpilot-ai/revpilot/agent/contract"
)

// Handler executes one tool call. Failures are reported inside the
// ToolResult so the reasoning loop can observe them; a returned error means
// the call never ran (cancellation, broken wiring).
type Handler func(ctx context.Context, workspaceID string, args map[string]any) (contractx.ToolResult, error)

type Tool struct {
	Info *schema.ToolInfo
	Run  Handler
}

// Registry is the tool catalog exposed to the thinker and the gateway that
// dispatches its validated requests.
type Registry struct {
	order []string
	tools map[string]Tool
}

var _ contractx.ToolGateway = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool, 4)}
}

func (r *Registry) Register(t Tool) error {
	if t.Info == nil || strings.TrimSpace(t.Info.Name) == "" {
		return fmt.Errorf("%w: tool name is required", contractx.ErrValidation)
	}
	if t.Run == nil {
		return fmt.Errorf("%w: tool %s has no handler", contractx.ErrValidation, t.Info.Name)
	}
	if _, exists := r.tools[t.Info.Name]; exists {
		return fmt.Errorf("%w: tool %s registered twice", contractx.ErrValidation, t.Info.Name)
	}
	r.order = append(r.order, t.Info.Name)
	r.tools[t.Info.Name] = t
	return nil
}

// Infos returns the catalog in registration order for model binding.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.tools[name].Info)
	}
	return infos
}

func (r *Registry) Descriptors() []contractx.ToolDescriptor {
	descs := make([]contractx.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		descs = append(descs, contractx.ToolDescriptor{
			Name: name,
			Desc: r.tools[name].Info.Desc,
		})
	}
	return descs
}

func (r *Registry) Execute(ctx context.Context, workspaceID string, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	results := make([]contractx.ToolResult, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, ok := r.tools[req.Tool]
		if !ok {
			results = append(results, contractx.ToolResult{
				Tool:  req.Tool,
				Error: fmt.Sprintf("tool %s is not registered", req.Tool),
			})
			continue
		}

		out, err := t.Run(ctx, workspaceID, req.Args)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			out = contractx.ToolResult{Tool: req.Tool, Error: err.Error()}
		}
		if out.Tool == "" {
			out.Tool = req.Tool
		}
		results = append(results, out)
	}
	return results, nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, key string, fallback int) int {
	if args == nil {
		return fallback
	}
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
