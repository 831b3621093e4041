package tool

import (
	"context"
	"math"
	"testing"
	"time"

	storex "github.com/revpilot-ai/revpilot/store"
)

type fakeDealLister struct {
	deals []storex.DealSnapshot
	err   error
}

func (f *fakeDealLister) ListByWorkspace(ctx context.Context, workspaceID string) ([]storex.DealSnapshot, error) {
	return f.deals, f.err
}

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int) *int           { return &v }
func ptrTime(t time.Time) *time.Time {
	return &t
}

func sampleDeals() []storex.DealSnapshot {
	closeMarch := ptrTime(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	closeApril := ptrTime(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	return []storex.DealSnapshot{
		{
			ID: "s1", ExternalID: "d1", Name: "Acme expansion",
			Amount: ptrFloat(10000), PipelineID: "default", StageID: "qualified",
			StageName: "Qualified", Probability: ptrFloat(0.2),
			DaysInStage: ptrInt(10), CloseDate: closeMarch,
		},
		{
			ID: "s2", ExternalID: "d2", Name: "Globex renewal",
			Amount: ptrFloat(50000), PipelineID: "default", StageID: "contract",
			StageName: "Contract Sent", Probability: ptrFloat(0.8),
			DaysInStage: ptrInt(45), CloseDate: closeMarch,
		},
		{
			ID: "s3", ExternalID: "d3", Name: "Initech pilot",
			Amount: ptrFloat(20000), PipelineID: "default", StageID: "qualified",
			StageName: "Qualified", Probability: ptrFloat(0.2),
			DaysInStage: ptrInt(70), CloseDate: closeApril,
		},
	}
}

func TestInferAnalysisType(t *testing.T) {
	t.Parallel()

	cases := map[string]AnalysisType{
		"how healthy is my pipeline":          AnalysisPipelineHealth,
		"what is our win rate":                AnalysisConversionRates,
		"forecast next quarter":               AnalysisRevenueForecast,
		"which deals are stuck":               AnalysisStalledDeals,
		"tell me about the business":          AnalysisSummary,
		"where is the bottleneck in the flow": AnalysisStalledDeals,
	}
	for query, want := range cases {
		if got := inferAnalysisType(query); got != want {
			t.Fatalf("inferAnalysisType(%q) = %q, want %q", query, got, want)
		}
	}
}

func TestForecastRevenueWeightsByProbability(t *testing.T) {
	t.Parallel()

	forecast := forecastRevenue(sampleDeals())

	// 10000*0.2 + 50000*0.8 + 20000*0.2 = 46000
	if math.Abs(forecast.ForecastedRevenue-46000) > 1e-9 {
		t.Fatalf("ForecastedRevenue = %f, want 46000", forecast.ForecastedRevenue)
	}

	march := forecast.ByMonth["2026-03"]
	if march == nil || march.Count != 2 {
		t.Fatalf("unexpected march bucket: %#v", march)
	}
	if math.Abs(march.Total-42000) > 1e-9 {
		t.Fatalf("march total = %f, want 42000", march.Total)
	}

	qualified := forecast.ByStage["qualified"]
	if qualified == nil || qualified.Name != "Qualified" || qualified.Count != 2 {
		t.Fatalf("unexpected qualified bucket: %#v", qualified)
	}
}

func TestIdentifyStalledDealsSortsByAge(t *testing.T) {
	t.Parallel()

	report := identifyStalledDeals(sampleDeals())
	if report.Count != 2 {
		t.Fatalf("Count = %d, want 2", report.Count)
	}
	if report.StalledDeals[0].ID != "s3" {
		t.Fatalf("oldest stalled deal first: got %s", report.StalledDeals[0].ID)
	}
	if report.StalledDeals[0].DaysInStage != 70 {
		t.Fatalf("DaysInStage = %d, want 70", report.StalledDeals[0].DaysInStage)
	}
}

func TestStalledThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	deals := []storex.DealSnapshot{
		{ID: "s1", DaysInStage: ptrInt(StalledDaysThreshold)},
		{ID: "s2", DaysInStage: ptrInt(StalledDaysThreshold + 1)},
	}
	report := identifyStalledDeals(deals)
	if report.Count != 1 || report.StalledDeals[0].ID != "s2" {
		t.Fatalf("unexpected report: %#v", report)
	}
}

func TestSummarizeDeals(t *testing.T) {
	t.Parallel()

	summary := summarizeDeals(sampleDeals())
	if summary.TotalCount != 3 {
		t.Fatalf("TotalCount = %d", summary.TotalCount)
	}
	if math.Abs(summary.TotalValue-80000) > 1e-9 {
		t.Fatalf("TotalValue = %f, want 80000", summary.TotalValue)
	}
	if math.Abs(summary.AvgDealValue-80000.0/3) > 1e-6 {
		t.Fatalf("AvgDealValue = %f", summary.AvgDealValue)
	}
	if summary.ByStage["qualified"].Count != 2 {
		t.Fatalf("qualified count = %d", summary.ByStage["qualified"].Count)
	}
}

func TestConversionRatesRelativeToTopStage(t *testing.T) {
	t.Parallel()

	report := analyzeConversionRates(sampleDeals())
	p := report["default"]
	if p == nil {
		t.Fatal("missing default pipeline")
	}
	if p.TotalDeals != 3 {
		t.Fatalf("TotalDeals = %d", p.TotalDeals)
	}
	if p.Stages["qualified"].ConversionRate != 100 {
		t.Fatalf("qualified rate = %f, want 100", p.Stages["qualified"].ConversionRate)
	}
	if p.Stages["contract"].ConversionRate != 50 {
		t.Fatalf("contract rate = %f, want 50", p.Stages["contract"].ConversionRate)
	}
}

func TestDealsAnalyzeToolRoutesExplicitType(t *testing.T) {
	t.Parallel()

	tool := NewDealsAnalyzeTool(&fakeDealLister{deals: sampleDeals()})
	res, err := tool.Run(context.Background(), "ws-1", map[string]any{
		"analysis_type": "stalled_deals",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out, ok := res.Result.(DealsAnalyzeOutput)
	if !ok {
		t.Fatalf("unexpected result type: %T", res.Result)
	}
	if out.AnalysisType != AnalysisStalledDeals {
		t.Fatalf("AnalysisType = %q", out.AnalysisType)
	}
	if out.DealCount != 3 {
		t.Fatalf("DealCount = %d", out.DealCount)
	}
	if len(res.Sources) != 1 || res.Sources[0].Ref != "workspace:ws-1:deal_snapshots" {
		t.Fatalf("unexpected sources: %#v", res.Sources)
	}
}

func TestDealsAnalyzeToolInfersFromQuery(t *testing.T) {
	t.Parallel()

	tool := NewDealsAnalyzeTool(&fakeDealLister{deals: sampleDeals()})
	res, err := tool.Run(context.Background(), "ws-1", map[string]any{
		"query": "predict revenue for the quarter",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := res.Result.(DealsAnalyzeOutput)
	if out.AnalysisType != AnalysisRevenueForecast {
		t.Fatalf("AnalysisType = %q, want %q", out.AnalysisType, AnalysisRevenueForecast)
	}
}
