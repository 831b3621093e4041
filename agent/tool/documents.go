package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/revpilot-ai/revpilot/agent/contract"
	storex "github.com/revpilot-ai/revpilot/store"
)

const ToolDocumentsSearch = "documents.search"

// DocumentSearcher is the slice of the document repository the search tool
// needs.
type DocumentSearcher interface {
	Search(ctx context.Context, workspaceID, query string, limit int) ([]storex.Document, error)
}

// NewDocumentsSearchTool searches uploaded reference documents by keyword.
func NewDocumentsSearchTool(docs DocumentSearcher) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolDocumentsSearch,
			Desc: "Search uploaded reference documents by keyword. Every term of the " +
				"query must appear in a matching document.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Keywords to search for", Required: true},
				"limit": {Type: schema.Integer, Desc: "Max documents to return", Required: false},
			}),
		},
		Run: func(ctx context.Context, workspaceID string, args map[string]any) (contractx.ToolResult, error) {
			query := stringArg(args, "query")
			if query == "" {
				return contractx.ToolResult{
					Tool:  ToolDocumentsSearch,
					Error: "query is required",
				}, nil
			}

			matches, err := docs.Search(ctx, workspaceID, query, intArg(args, "limit", 0))
			if err != nil {
				return contractx.ToolResult{}, fmt.Errorf("search documents: %w", err)
			}

			results := make([]documentMatch, 0, len(matches))
			sources := make([]contractx.Source, 0, len(matches))
			for _, doc := range matches {
				results = append(results, documentMatch{
					ID:       doc.ID,
					Filename: doc.Filename,
					Excerpt:  excerptContent(doc.Content),
				})
				sources = append(sources, contractx.Source{
					Tool:    ToolDocumentsSearch,
					Ref:     "document:" + doc.ID,
					Title:   doc.Filename,
					Snippet: excerptContent(doc.Content),
				})
			}
			return contractx.ToolResult{
				Tool:    ToolDocumentsSearch,
				Result:  documentsSearchOutput{Matches: results},
				Sources: sources,
			}, nil
		},
	}
}

type documentsSearchOutput struct {
	Matches []documentMatch `json:"matches"`
}

type documentMatch struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Excerpt  string `json:"excerpt"`
}

const documentExcerptLen = 400

func excerptContent(content string) string {
	if len(content) <= documentExcerptLen {
		return content
	}
	return content[:documentExcerptLen] + "..."
}
