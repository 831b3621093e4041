package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/revpilot-ai/revpilot/agent/contract"
	"github.com/revpilot-ai/revpilot/pkg/hubspot"
)

const ToolCRMLookup = "crm.lookup"

const crmLookupPageSize = 25

// CRMReader is the slice of the HubSpot client the lookup tool needs.
type CRMReader interface {
	DealsPage(ctx context.Context, after string, limit int) ([]hubspot.Deal, string, error)
	Pipelines(ctx context.Context) ([]hubspot.Pipeline, error)
}

// NewCRMLookupTool fetches live CRM records when the synced snapshots are
// not enough, such as brand-new deals or pipeline stage definitions.
func NewCRMLookupTool(crm CRMReader) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolCRMLookup,
			Desc: "Look up live CRM records. object is one of deals or pipelines. " +
				"For deals, after is an optional pagination cursor and limit caps the page size.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"object": {Type: schema.String, Desc: "Record type: deals or pipelines", Required: true},
				"after":  {Type: schema.String, Desc: "Pagination cursor from a prior page", Required: false},
				"limit":  {Type: schema.Integer, Desc: "Max records per page", Required: false},
			}),
		},
		Run: func(ctx context.Context, workspaceID string, args map[string]any) (contractx.ToolResult, error) {
			switch object := stringArg(args, "object"); object {
			case "deals":
				return lookupDeals(ctx, crm, args)
			case "pipelines":
				return lookupPipelines(ctx, crm)
			default:
				return contractx.ToolResult{
					Tool:  ToolCRMLookup,
					Error: fmt.Sprintf("unknown object %q, expected deals or pipelines", object),
				}, nil
			}
		},
	}
}

type crmDealsOutput struct {
	Deals      []hubspot.Deal `json:"deals"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func lookupDeals(ctx context.Context, crm CRMReader, args map[string]any) (contractx.ToolResult, error) {
	limit := intArg(args, "limit", crmLookupPageSize)
	if limit > crmLookupPageSize {
		limit = crmLookupPageSize
	}

	deals, next, err := crm.DealsPage(ctx, stringArg(args, "after"), limit)
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("lookup deals: %w", err)
	}

	sources := make([]contractx.Source, 0, len(deals))
	for _, d := range deals {
		sources = append(sources, contractx.Source{
			Tool:  ToolCRMLookup,
			Ref:   "hubspot:deal:" + d.ID,
			Title: d.Name,
		})
	}
	return contractx.ToolResult{
		Tool:    ToolCRMLookup,
		Result:  crmDealsOutput{Deals: deals, NextCursor: next},
		Sources: sources,
	}, nil
}

type crmPipelinesOutput struct {
	Pipelines []hubspot.Pipeline `json:"pipelines"`
}

func lookupPipelines(ctx context.Context, crm CRMReader) (contractx.ToolResult, error) {
	pipelines, err := crm.Pipelines(ctx)
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("lookup pipelines: %w", err)
	}

	sources := make([]contractx.Source, 0, len(pipelines))
	for _, p := range pipelines {
		sources = append(sources, contractx.Source{
			Tool:  ToolCRMLookup,
			Ref:   "hubspot:pipeline:" + p.ID,
			Title: p.Label,
		})
	}
	return contractx.ToolResult{
		Tool:    ToolCRMLookup,
		Result:  crmPipelinesOutput{Pipelines: pipelines},
		Sources: sources,
	}, nil
}
