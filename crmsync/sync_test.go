package crmsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revpilot-ai/revpilot/pkg/hubspot"
	storex "github.com/revpilot-ai/revpilot/store"
)

type fakeCRM struct {
	deals     []hubspot.Deal
	pipelines []hubspot.Pipeline
	err       error
}

func (f *fakeCRM) AllDeals(ctx context.Context) ([]hubspot.Deal, error) {
	return f.deals, f.err
}

func (f *fakeCRM) Pipelines(ctx context.Context) ([]hubspot.Pipeline, error) {
	return f.pipelines, f.err
}

type fakeWriter struct {
	got []storex.DealSnapshot
	err error
}

func (f *fakeWriter) Upsert(ctx context.Context, snapshots []storex.DealSnapshot) error {
	f.got = snapshots
	return f.err
}

type fakeScheduler struct {
	destination string
	delay       time.Duration
	calls       int
	err         error
}

func (f *fakeScheduler) Publish(ctx context.Context, destination string, body []byte, delay time.Duration) error {
	f.calls++
	f.destination = destination
	f.delay = delay
	return f.err
}

func ptrFloat(v float64) *float64 { return &v }

func fixedNow() time.Time {
	return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
}

func testCRMData() *fakeCRM {
	created := fixedNow().Add(-40 * 24 * time.Hour)
	modified := fixedNow().Add(-12 * 24 * time.Hour)
	return &fakeCRM{
		deals: []hubspot.Deal{
			{
				ID: "d1", Name: "Acme expansion", Amount: ptrFloat(12000),
				Pipeline: "default", Stage: "qualified",
				CreateDate: &created, LastModifiedDate: &modified,
				ContactIDs: []string{"c1"}, Industry: "software",
			},
			{
				ID: "d2", Name: "Globex renewal",
				Pipeline: "default", Stage: "unknown-stage",
			},
		},
		pipelines: []hubspot.Pipeline{
			{
				ID: "default", Label: "Sales Pipeline",
				Stages: []hubspot.PipelineStage{
					{ID: "qualified", Label: "Qualified", Probability: 0.2},
				},
			},
		},
	}
}

func TestSyncBuildsSnapshotsWithStageMetadata(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	svc := NewService(testCRMData(), writer, nil, Config{})
	svc.now = fixedNow

	result, err := svc.Sync(context.Background(), "ws-1")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.DealCount != 2 || result.Pipelines != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}

	if len(writer.got) != 2 {
		t.Fatalf("upserted %d snapshots, want 2", len(writer.got))
	}

	first := writer.got[0]
	if first.ExternalID != "d1" || first.Source != sourceHubSpot {
		t.Fatalf("unexpected snapshot identity: %#v", first)
	}
	if first.StageName != "Qualified" {
		t.Fatalf("StageName = %q, want Qualified", first.StageName)
	}
	if first.Probability == nil || *first.Probability != 0.2 {
		t.Fatalf("Probability = %v, want 0.2", first.Probability)
	}
	if first.DaysInStage == nil || *first.DaysInStage != 12 {
		t.Fatalf("DaysInStage = %v, want 12", first.DaysInStage)
	}
	if first.DaysInPipeline == nil || *first.DaysInPipeline != 40 {
		t.Fatalf("DaysInPipeline = %v, want 40", first.DaysInPipeline)
	}
	if first.Properties["industry"] != "software" {
		t.Fatalf("Properties = %#v", first.Properties)
	}
	if first.ID == "" || first.ID == writer.got[1].ID {
		t.Fatal("snapshot ids must be unique and non-empty")
	}

	// Unknown stage: no metadata joined, fields stay nil.
	second := writer.got[1]
	if second.StageName != "" || second.Probability != nil {
		t.Fatalf("expected bare snapshot for unknown stage: %#v", second)
	}
}

func TestSyncSchedulesNextRun(t *testing.T) {
	t.Parallel()

	scheduler := &fakeScheduler{}
	svc := NewService(testCRMData(), &fakeWriter{}, scheduler, Config{
		ResyncURL:   "https://revpilot.example.com/api/v1/integrations/hubspot/sync",
		ResyncDelay: 6 * time.Hour,
	})
	svc.now = fixedNow

	if _, err := svc.Sync(context.Background(), "ws-1"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if scheduler.calls != 1 {
		t.Fatalf("scheduler calls = %d, want 1", scheduler.calls)
	}
	if scheduler.delay != 6*time.Hour {
		t.Fatalf("delay = %s, want 6h", scheduler.delay)
	}
}

func TestSyncSchedulerFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	scheduler := &fakeScheduler{err: errors.New("qstash down")}
	svc := NewService(testCRMData(), &fakeWriter{}, scheduler, Config{
		ResyncURL: "https://revpilot.example.com/sync",
	})
	svc.now = fixedNow

	if _, err := svc.Sync(context.Background(), "ws-1"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
}

func TestSyncPropagatesCRMError(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeCRM{err: errors.New("boom")}, &fakeWriter{}, nil, Config{})
	if _, err := svc.Sync(context.Background(), "ws-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSyncRequiresWorkspace(t *testing.T) {
	t.Parallel()

	svc := NewService(testCRMData(), &fakeWriter{}, nil, Config{})
	if _, err := svc.Sync(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty workspace")
	}
}
