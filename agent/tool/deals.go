package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/revpilot-ai/revpilot/agent/contract"
	storex "github.com/revpilot-ai/revpilot/store"
)

const ToolDealsAnalyze = "deals.analyze"

// StalledDaysThreshold marks a deal as stalled after this many days in the
// same stage.
const StalledDaysThreshold = 30

type AnalysisType string

const (
	AnalysisPipelineHealth  AnalysisType = "pipeline_health"
	AnalysisConversionRates AnalysisType = "conversion_rates"
	AnalysisRevenueForecast AnalysisType = "revenue_forecast"
	AnalysisStalledDeals    AnalysisType = "stalled_deals"
	AnalysisSummary         AnalysisType = "summary"
)

// DealLister is the slice of the deal repository the analyzer needs.
type DealLister interface {
	ListByWorkspace(ctx context.Context, workspaceID string) ([]storex.DealSnapshot, error)
}

// NewDealsAnalyzeTool analyzes synced deal snapshots: pipeline health,
// stage conversion, probability-weighted revenue forecast, stalled deals,
// or a general summary.
func NewDealsAnalyzeTool(deals DealLister) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolDealsAnalyze,
			Desc: "Analyze synced CRM deals. analysis_type is one of pipeline_health, " +
				"conversion_rates, revenue_forecast, stalled_deals, or summary; " +
				"when omitted it is inferred from the query text.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"analysis_type": {Type: schema.String, Desc: "Analysis to run", Required: false},
				"query":         {Type: schema.String, Desc: "Free-text request used to infer the analysis", Required: false},
			}),
		},
		Run: func(ctx context.Context, workspaceID string, args map[string]any) (contractx.ToolResult, error) {
			analysisType := AnalysisType(stringArg(args, "analysis_type"))
			switch analysisType {
			case AnalysisPipelineHealth, AnalysisConversionRates, AnalysisRevenueForecast,
				AnalysisStalledDeals, AnalysisSummary:
			default:
				analysisType = inferAnalysisType(stringArg(args, "query"))
			}

			snapshots, err := deals.ListByWorkspace(ctx, workspaceID)
			if err != nil {
				return contractx.ToolResult{}, fmt.Errorf("load deals: %w", err)
			}

			var data any
			switch analysisType {
			case AnalysisPipelineHealth:
				data = analyzePipelineHealth(snapshots)
			case AnalysisConversionRates:
				data = analyzeConversionRates(snapshots)
			case AnalysisRevenueForecast:
				data = forecastRevenue(snapshots)
			case AnalysisStalledDeals:
				data = identifyStalledDeals(snapshots)
			default:
				analysisType = AnalysisSummary
				data = summarizeDeals(snapshots)
			}

			return contractx.ToolResult{
				Tool: ToolDealsAnalyze,
				Result: DealsAnalyzeOutput{
					AnalysisType: analysisType,
					DealCount:    len(snapshots),
					Data:         data,
				},
				Sources: []contractx.Source{{
					Tool:  ToolDealsAnalyze,
					Ref:   fmt.Sprintf("workspace:%s:deal_snapshots", workspaceID),
					Title: fmt.Sprintf("%d synced deals", len(snapshots)),
				}},
			}, nil
		},
	}
}

type DealsAnalyzeOutput struct {
	AnalysisType AnalysisType `json:"analysis_type"`
	DealCount    int          `json:"deal_count"`
	Data         any          `json:"data"`
}

// inferAnalysisType routes free-text requests to an analysis by keyword.
func inferAnalysisType(query string) AnalysisType {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "pipeline", "funnel", "stages"):
		return AnalysisPipelineHealth
	case containsAny(q, "conversion", "win rate", "close rate"):
		return AnalysisConversionRates
	case containsAny(q, "forecast", "predict", "revenue"):
		return AnalysisRevenueForecast
	case containsAny(q, "stuck", "stalled", "bottleneck"):
		return AnalysisStalledDeals
	default:
		return AnalysisSummary
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

/* ---------------------------- pipeline health ---------------------------- */

type StageAgg struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

type PipelineHealth struct {
	Stages     map[string]*StageAgg `json:"stages"`
	TotalValue float64              `json:"total_value"`
	Count      int                  `json:"count"`
}

func analyzePipelineHealth(deals []storex.DealSnapshot) map[string]*PipelineHealth {
	pipelines := make(map[string]*PipelineHealth)
	for _, d := range deals {
		if d.PipelineID == "" || d.StageID == "" {
			continue
		}
		p := pipelines[d.PipelineID]
		if p == nil {
			p = &PipelineHealth{Stages: make(map[string]*StageAgg)}
			pipelines[d.PipelineID] = p
		}
		st := p.Stages[d.StageID]
		if st == nil {
			st = &StageAgg{Name: d.StageName}
			p.Stages[d.StageID] = st
		}
		st.Count++
		st.Value += amountOf(d)
		p.TotalValue += amountOf(d)
		p.Count++
	}
	return pipelines
}

/* --------------------------- conversion rates ---------------------------- */

type StageConversion struct {
	Name           string  `json:"name"`
	Count          int     `json:"count"`
	ConversionRate float64 `json:"conversion_rate"`
}

type ConversionReport struct {
	Stages     map[string]*StageConversion `json:"stages"`
	TotalDeals int                         `json:"total_deals"`
}

// analyzeConversionRates reports each stage's deal count relative to the
// most populated stage of its pipeline, as a percentage.
func analyzeConversionRates(deals []storex.DealSnapshot) map[string]*ConversionReport {
	pipelines := make(map[string]*ConversionReport)
	for _, d := range deals {
		if d.PipelineID == "" || d.StageID == "" {
			continue
		}
		p := pipelines[d.PipelineID]
		if p == nil {
			p = &ConversionReport{Stages: make(map[string]*StageConversion)}
			pipelines[d.PipelineID] = p
		}
		st := p.Stages[d.StageID]
		if st == nil {
			st = &StageConversion{Name: d.StageName}
			p.Stages[d.StageID] = st
		}
		st.Count++
		p.TotalDeals++
	}

	for _, p := range pipelines {
		top := 0
		for _, st := range p.Stages {
			if st.Count > top {
				top = st.Count
			}
		}
		for _, st := range p.Stages {
			if top > 0 {
				st.ConversionRate = float64(st.Count) / float64(top) * 100
			}
		}
	}
	return pipelines
}

/* --------------------------- revenue forecast ---------------------------- */

type ForecastBucket struct {
	Name  string  `json:"name,omitempty"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

type RevenueForecast struct {
	ForecastedRevenue float64                    `json:"forecasted_revenue"`
	ByStage           map[string]*ForecastBucket `json:"by_stage"`
	ByMonth           map[string]*ForecastBucket `json:"by_month"`
}

// forecastRevenue weights each open deal's amount by its stage probability
// (0..1 from CRM stage metadata) and buckets the expected revenue by stage
// and by close month.
func forecastRevenue(deals []storex.DealSnapshot) RevenueForecast {
	forecast := RevenueForecast{
		ByStage: make(map[string]*ForecastBucket),
		ByMonth: make(map[string]*ForecastBucket),
	}

	for _, d := range deals {
		amount := amountOf(d)
		probability := 0.0
		if d.Probability != nil {
			probability = *d.Probability
		}
		if amount <= 0 || probability <= 0 {
			continue
		}

		weighted := amount * probability
		forecast.ForecastedRevenue += weighted

		if d.StageID != "" {
			b := forecast.ByStage[d.StageID]
			if b == nil {
				b = &ForecastBucket{Name: d.StageName}
				forecast.ByStage[d.StageID] = b
			}
			b.Total += weighted
			b.Count++
		}
		if d.CloseDate != nil {
			month := d.CloseDate.Format("2006-01")
			b := forecast.ByMonth[month]
			if b == nil {
				b = &ForecastBucket{}
				forecast.ByMonth[month] = b
			}
			b.Total += weighted
			b.Count++
		}
	}
	return forecast
}

/* ---------------------------- stalled deals ------------------------------ */

type StalledDeal struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Amount      *float64 `json:"amount,omitempty"`
	StageName   string   `json:"stage_name"`
	DaysInStage int      `json:"days_in_stage"`
	Probability *float64 `json:"probability,omitempty"`
}

type StalledReport struct {
	StalledDeals []StalledDeal `json:"stalled_deals"`
	Count        int           `json:"count"`
}

func identifyStalledDeals(deals []storex.DealSnapshot) StalledReport {
	var stalled []StalledDeal
	for _, d := range deals {
		days := 0
		if d.DaysInStage != nil {
			days = *d.DaysInStage
		}
		if days <= StalledDaysThreshold {
			continue
		}
		stalled = append(stalled, StalledDeal{
			ID:          d.ID,
			Name:        d.Name,
			Amount:      d.Amount,
			StageName:   d.StageName,
			DaysInStage: days,
			Probability: d.Probability,
		})
	}
	sort.Slice(stalled, func(i, j int) bool {
		return stalled[i].DaysInStage > stalled[j].DaysInStage
	})
	return StalledReport{StalledDeals: stalled, Count: len(stalled)}
}

/* ------------------------------- summary --------------------------------- */

type DealSummary struct {
	TotalCount   int                        `json:"total_count"`
	TotalValue   float64                    `json:"total_value"`
	AvgDealValue float64                    `json:"avg_deal_value"`
	ByStage      map[string]*StageAgg       `json:"by_stage"`
	ByPipeline   map[string]*ForecastBucket `json:"by_pipeline"`
}

func summarizeDeals(deals []storex.DealSnapshot) DealSummary {
	summary := DealSummary{
		TotalCount: len(deals),
		ByStage:    make(map[string]*StageAgg),
		ByPipeline: make(map[string]*ForecastBucket),
	}

	for _, d := range deals {
		amount := amountOf(d)
		summary.TotalValue += amount

		if d.StageID != "" {
			st := summary.ByStage[d.StageID]
			if st == nil {
				st = &StageAgg{Name: d.StageName}
				summary.ByStage[d.StageID] = st
			}
			st.Count++
			st.Value += amount
		}
		if d.PipelineID != "" {
			p := summary.ByPipeline[d.PipelineID]
			if p == nil {
				p = &ForecastBucket{}
				summary.ByPipeline[d.PipelineID] = p
			}
			p.Count++
			p.Total += amount
		}
	}
	if summary.TotalCount > 0 {
		summary.AvgDealValue = summary.TotalValue / float64(summary.TotalCount)
	}
	return summary
}

func amountOf(d storex.DealSnapshot) float64 {
	if d.Amount == nil {
		return 0
	}
	return *d.Amount
}
