package health

import "time"

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

const (
	IndicatorEngagementRate   = "engagement_rate"
	IndicatorResponseTime     = "response_time"
	IndicatorDealStagnation   = "deal_stagnation"
	IndicatorMeetingFrequency = "meeting_frequency"
)

// RiskIndicator is one measured dimension of account health with the
// threshold band it landed in.
type RiskIndicator struct {
	Name   string    `json:"name"`
	Level  RiskLevel `json:"level"`
	Value  float64   `json:"value"`
	Unit   string    `json:"unit"`
	Detail string    `json:"detail,omitempty"`
}

// AccountHealthScore aggregates the indicators into a 0..100 score.
type AccountHealthScore struct {
	WorkspaceID     string           `json:"workspace_id"`
	Score           int              `json:"score"`
	Level           RiskLevel        `json:"level"`
	Indicators      []RiskIndicator  `json:"indicators"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// thresholds order medium, high, critical. Rate-style indicators degrade as
// the value falls below a bound; day/hour-style ones as it rises above.
type thresholdBand struct {
	medium, high, critical float64
	higherIsBetter         bool
}

var indicatorThresholds = map[string]thresholdBand{
	IndicatorEngagementRate:   {medium: 0.7, high: 0.5, critical: 0.3, higherIsBetter: true},
	IndicatorResponseTime:     {medium: 24, high: 48, critical: 72},
	IndicatorDealStagnation:   {medium: 30, high: 45, critical: 60},
	IndicatorMeetingFrequency: {medium: 14, high: 21, critical: 30},
}

func classify(name string, value float64) RiskLevel {
	band, ok := indicatorThresholds[name]
	if !ok {
		return RiskLow
	}
	if band.higherIsBetter {
		switch {
		case value < band.critical:
			return RiskCritical
		case value < band.high:
			return RiskHigh
		case value < band.medium:
			return RiskMedium
		default:
			return RiskLow
		}
	}
	switch {
	case value > band.critical:
		return RiskCritical
	case value > band.high:
		return RiskHigh
	case value > band.medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

var levelPenalty = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   10,
	RiskHigh:     20,
	RiskCritical: 30,
}

// scoreIndicators starts at 100 and subtracts a penalty per degraded
// indicator, clamped at zero.
func scoreIndicators(indicators []RiskIndicator) (int, RiskLevel) {
	score := 100
	for _, ind := range indicators {
		score -= levelPenalty[ind.Level]
	}
	if score < 0 {
		score = 0
	}
	switch {
	case score >= 80:
		return score, RiskLow
	case score >= 60:
		return score, RiskMedium
	case score >= 40:
		return score, RiskHigh
	default:
		return score, RiskCritical
	}
}
