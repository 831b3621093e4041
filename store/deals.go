package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// DealRepository persists CRM deal snapshots.
type DealRepository struct {
	db *bun.DB
}

func NewDealRepository(db *bun.DB) *DealRepository {
	return &DealRepository{db: db}
}

// Upsert inserts or refreshes snapshots keyed by (workspace, external id).
// The conflict target is backed by the deal_snapshots_ws_ext unique
// constraint declared on DealSnapshot.
func (r *DealRepository) Upsert(ctx context.Context, snapshots []DealSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	_, err := r.upsertQuery(&snapshots).Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert deal snapshots: %w", err)
	}
	return nil
}

func (r *DealRepository) upsertQuery(snapshots *[]DealSnapshot) *bun.InsertQuery {
	return r.db.NewInsert().
		Model(snapshots).
		On("CONFLICT (workspace_id, external_id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("amount = EXCLUDED.amount").
		Set("pipeline_id = EXCLUDED.pipeline_id").
		Set("stage_id = EXCLUDED.stage_id").
		Set("stage_name = EXCLUDED.stage_name").
		Set("owner_id = EXCLUDED.owner_id").
		Set("created_date = EXCLUDED.created_date").
		Set("last_modified_date = EXCLUDED.last_modified_date").
		Set("close_date = EXCLUDED.close_date").
		Set("probability = EXCLUDED.probability").
		Set("days_in_stage = EXCLUDED.days_in_stage").
		Set("days_in_pipeline = EXCLUDED.days_in_pipeline").
		Set("contact_ids = EXCLUDED.contact_ids").
		Set("company_ids = EXCLUDED.company_ids").
		Set("properties = EXCLUDED.properties").
		Set("sync_date = EXCLUDED.sync_date")
}

// ListByWorkspace returns all snapshots for a workspace.
func (r *DealRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]DealSnapshot, error) {
	var deals []DealSnapshot
	err := r.db.NewSelect().
		Model(&deals).
		Where("workspace_id = ?", workspaceID).
		Order("created_date ASC NULLS LAST").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list deal snapshots: %w", err)
	}
	return deals, nil
}
