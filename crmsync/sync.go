package crmsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/revpilot-ai/revpilot/pkg/hubspot"
	storex "github.com/revpilot-ai/revpilot/store"
)

const sourceHubSpot = "hubspot"

// CRMSource is the slice of the HubSpot client the sync needs.
type CRMSource interface {
	AllDeals(ctx context.Context) ([]hubspot.Deal, error)
	Pipelines(ctx context.Context) ([]hubspot.Pipeline, error)
}

// SnapshotWriter persists the denormalized deal rows.
type SnapshotWriter interface {
	Upsert(ctx context.Context, snapshots []storex.DealSnapshot) error
}

// Scheduler enqueues a delayed callback to trigger the next sync.
type Scheduler interface {
	Publish(ctx context.Context, destination string, body []byte, delay time.Duration) error
}

type Config struct {
	// ResyncURL is the service's own sync endpoint. When set together with a
	// scheduler, every sync enqueues the next one.
	ResyncURL   string        `envconfig:"RESYNC_URL" split_words:"true"`
	ResyncDelay time.Duration `envconfig:"RESYNC_DELAY" split_words:"true" default:"6h"`
}

// Service imports CRM deals into Postgres, joining pipeline stage metadata
// onto each row so analyses can run without live CRM access.
type Service struct {
	crm       CRMSource
	snapshots SnapshotWriter
	scheduler Scheduler
	cfg       Config
	now       func() time.Time
}

func NewService(crm CRMSource, snapshots SnapshotWriter, scheduler Scheduler, cfg Config) *Service {
	return &Service{
		crm:       crm,
		snapshots: snapshots,
		scheduler: scheduler,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Result reports what one sync run imported.
type Result struct {
	WorkspaceID string    `json:"workspace_id"`
	DealCount   int       `json:"deal_count"`
	Pipelines   int       `json:"pipelines"`
	SyncedAt    time.Time `json:"synced_at"`
}

// Sync fetches deals and pipelines concurrently, denormalizes stage
// metadata into snapshots, and upserts them for the workspace.
func (s *Service) Sync(ctx context.Context, workspaceID string) (*Result, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace id is required")
	}

	var (
		deals     []hubspot.Deal
		pipelines []hubspot.Pipeline
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		deals, err = s.crm.AllDeals(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pipelines, err = s.crm.Pipelines(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch crm data: %w", err)
	}

	now := s.now().UTC()
	snapshots := buildSnapshots(workspaceID, deals, pipelines, now)
	if err := s.snapshots.Upsert(ctx, snapshots); err != nil {
		return nil, err
	}

	log.Info().Str("workspace_id", workspaceID).Int("deals", len(snapshots)).
		Int("pipelines", len(pipelines)).Msg("crmsync: sync complete")

	s.scheduleNext(ctx, workspaceID)

	return &Result{
		WorkspaceID: workspaceID,
		DealCount:   len(snapshots),
		Pipelines:   len(pipelines),
		SyncedAt:    now,
	}, nil
}

// scheduleNext is best-effort: a failed enqueue is logged, never fatal.
func (s *Service) scheduleNext(ctx context.Context, workspaceID string) {
	if s.scheduler == nil || s.cfg.ResyncURL == "" {
		return
	}
	body := []byte(fmt.Sprintf(`{"workspace_id":%q}`, workspaceID))
	if err := s.scheduler.Publish(ctx, s.cfg.ResyncURL, body, s.cfg.ResyncDelay); err != nil {
		log.Warn().Err(err).Str("workspace_id", workspaceID).
			Msg("crmsync: scheduling next sync failed")
	}
}

func buildSnapshots(workspaceID string, deals []hubspot.Deal, pipelines []hubspot.Pipeline, now time.Time) []storex.DealSnapshot {
	stageIndex := indexStages(pipelines)

	snapshots := make([]storex.DealSnapshot, 0, len(deals))
	for _, d := range deals {
		snap := storex.DealSnapshot{
			ID:               uuid.NewString(),
			WorkspaceID:      workspaceID,
			ExternalID:       d.ID,
			Source:           sourceHubSpot,
			Name:             d.Name,
			Amount:           d.Amount,
			PipelineID:       d.Pipeline,
			StageID:          d.Stage,
			OwnerID:          d.OwnerID,
			CreatedDate:      d.CreateDate,
			LastModifiedDate: d.LastModifiedDate,
			CloseDate:        d.CloseDate,
			ContactIDs:       d.ContactIDs,
			CompanyIDs:       d.CompanyIDs,
			SyncDate:         now,
		}
		if d.Industry != "" {
			snap.Properties = map[string]any{"industry": d.Industry}
		}

		if stage, ok := stageIndex[stageKey(d.Pipeline, d.Stage)]; ok {
			snap.StageName = stage.Label
			probability := stage.Probability
			snap.Probability = &probability
		}

		// Stage entry time is not on the deal object; the last modification
		// is the closest observable proxy.
		if days := daysSince(d.LastModifiedDate, now); days != nil {
			snap.DaysInStage = days
		}
		if days := daysSince(d.CreateDate, now); days != nil {
			snap.DaysInPipeline = days
		}

		snapshots = append(snapshots, snap)
	}
	return snapshots
}

func indexStages(pipelines []hubspot.Pipeline) map[string]hubspot.PipelineStage {
	index := make(map[string]hubspot.PipelineStage)
	for _, p := range pipelines {
		for _, st := range p.Stages {
			index[stageKey(p.ID, st.ID)] = st
		}
	}
	return index
}

func stageKey(pipelineID, stageID string) string {
	return pipelineID + "/" + stageID
}

func daysSince(t *time.Time, now time.Time) *int {
	if t == nil || t.After(now) {
		return nil
	}
	days := int(now.Sub(*t).Hours() / 24)
	return &days
}
