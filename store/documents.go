package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

// DocumentRepository provides keyword search over stored documents.
type DocumentRepository struct {
	db *bun.DB
}

func NewDocumentRepository(db *bun.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Search matches documents in a workspace whose content contains every term
// of the query, case-insensitively, newest first.
func (r *DocumentRepository) Search(ctx context.Context, workspaceID, query string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 5
	}

	q := r.db.NewSelect().
		Model((*Document)(nil)).
		Where("workspace_id = ?", workspaceID)
	for _, term := range strings.Fields(query) {
		q = q.Where("content ILIKE ?", "%"+term+"%")
	}

	var docs []Document
	err := q.Order("created_at DESC").Limit(limit).Scan(ctx, &docs)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return docs, nil
}
