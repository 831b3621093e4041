package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/revpilot-ai/revpilot/pkg/hubspot"
	storex "github.com/revpilot-ai/revpilot/store"
)

const (
	engagementWindow = 30 * 24 * time.Hour
	meetingWindow    = 90 * 24 * time.Hour
)

// CRMAnalytics is the slice of the HubSpot client the analyzer needs.
type CRMAnalytics interface {
	AllContacts(ctx context.Context) ([]hubspot.Contact, error)
	AllEngagements(ctx context.Context) ([]hubspot.Engagement, error)
}

// DealLister reads the synced deal snapshots for a workspace.
type DealLister interface {
	ListByWorkspace(ctx context.Context, workspaceID string) ([]storex.DealSnapshot, error)
}

// Analyzer computes account health from live CRM engagement data and the
// synced deal snapshots.
type Analyzer struct {
	crm    CRMAnalytics
	deals  DealLister
	engine *RecommendationEngine
	now    func() time.Time
}

func NewAnalyzer(crm CRMAnalytics, deals DealLister, engine *RecommendationEngine) *Analyzer {
	return &Analyzer{crm: crm, deals: deals, engine: engine, now: time.Now}
}

// Score measures the four risk indicators, aggregates them, and attaches
// recommendations. Recommendation generation is best-effort; a failure there
// never fails the score.
func (a *Analyzer) Score(ctx context.Context, workspaceID string) (*AccountHealthScore, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("workspace id is required")
	}

	var (
		contacts    []hubspot.Contact
		engagements []hubspot.Engagement
		snapshots   []storex.DealSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contacts, err = a.crm.AllContacts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		engagements, err = a.crm.AllEngagements(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snapshots, err = a.deals.ListByWorkspace(gctx, workspaceID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect health inputs: %w", err)
	}

	now := a.now().UTC()
	indicators := []RiskIndicator{
		a.engagementRate(contacts, engagements, now),
		a.responseTime(engagements, now),
		a.dealStagnation(snapshots),
		a.meetingFrequency(engagements, now),
	}
	score, level := scoreIndicators(indicators)

	result := &AccountHealthScore{
		WorkspaceID: workspaceID,
		Score:       score,
		Level:       level,
		Indicators:  indicators,
		GeneratedAt: now,
	}

	if a.engine != nil {
		recs, err := a.engine.Recommend(ctx, result)
		if err != nil {
			log.Warn().Err(err).Str("workspace_id", workspaceID).
				Msg("health: recommendation generation failed, keeping rule-based set")
			recs = ruleBasedRecommendations(indicators)
		}
		result.Recommendations = recs
	} else {
		result.Recommendations = ruleBasedRecommendations(indicators)
	}
	return result, nil
}

// engagementRate is the share of contacts with at least one engagement in
// the last 30 days.
func (a *Analyzer) engagementRate(contacts []hubspot.Contact, engagements []hubspot.Engagement, now time.Time) RiskIndicator {
	cutoff := now.Add(-engagementWindow)
	recent := 0
	for _, e := range engagements {
		if e.Timestamp != nil && e.Timestamp.After(cutoff) {
			recent++
		}
	}

	rate := 1.0
	if len(contacts) > 0 {
		rate = float64(recent) / float64(len(contacts))
		if rate > 1 {
			rate = 1
		}
	}
	return RiskIndicator{
		Name:   IndicatorEngagementRate,
		Level:  classify(IndicatorEngagementRate, rate),
		Value:  rate,
		Unit:   "ratio",
		Detail: fmt.Sprintf("%d engagements across %d contacts in the last 30 days", recent, len(contacts)),
	}
}

// responseTime approximates responsiveness as hours since the most recent
// engagement of any type.
func (a *Analyzer) responseTime(engagements []hubspot.Engagement, now time.Time) RiskIndicator {
	var latest *time.Time
	for _, e := range engagements {
		if e.Timestamp == nil {
			continue
		}
		if latest == nil || e.Timestamp.After(*latest) {
			latest = e.Timestamp
		}
	}

	hours := 0.0
	detail := "no engagements recorded"
	if latest != nil {
		hours = now.Sub(*latest).Hours()
		if hours < 0 {
			hours = 0
		}
		detail = fmt.Sprintf("last engagement %.0f hours ago", hours)
	}
	return RiskIndicator{
		Name:   IndicatorResponseTime,
		Level:  classify(IndicatorResponseTime, hours),
		Value:  hours,
		Unit:   "hours",
		Detail: detail,
	}
}

// dealStagnation is the average days-in-stage across open deals.
func (a *Analyzer) dealStagnation(snapshots []storex.DealSnapshot) RiskIndicator {
	total, counted := 0, 0
	for _, d := range snapshots {
		if d.DaysInStage == nil {
			continue
		}
		if d.Probability != nil && (*d.Probability == 0 || *d.Probability == 1) {
			// Closed either way; stage age no longer means anything.
			continue
		}
		total += *d.DaysInStage
		counted++
	}

	avg := 0.0
	if counted > 0 {
		avg = float64(total) / float64(counted)
	}
	return RiskIndicator{
		Name:   IndicatorDealStagnation,
		Level:  classify(IndicatorDealStagnation, avg),
		Value:  avg,
		Unit:   "days",
		Detail: fmt.Sprintf("average stage age across %d open deals", counted),
	}
}

// meetingFrequency is the days since the most recent meeting engagement.
func (a *Analyzer) meetingFrequency(engagements []hubspot.Engagement, now time.Time) RiskIndicator {
	cutoff := now.Add(-meetingWindow)
	var latest *time.Time
	for _, e := range engagements {
		if !strings.EqualFold(e.Type, "MEETING") || e.Timestamp == nil || e.Timestamp.Before(cutoff) {
			continue
		}
		if latest == nil || e.Timestamp.After(*latest) {
			latest = e.Timestamp
		}
	}

	days := meetingWindow.Hours() / 24
	detail := "no meetings in the last 90 days"
	if latest != nil {
		days = now.Sub(*latest).Hours() / 24
		if days < 0 {
			days = 0
		}
		detail = fmt.Sprintf("last meeting %.0f days ago", days)
	}
	return RiskIndicator{
		Name:   IndicatorMeetingFrequency,
		Level:  classify(IndicatorMeetingFrequency, days),
		Value:  days,
		Unit:   "days",
		Detail: detail,
	}
}
