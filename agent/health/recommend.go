package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
)

// Recommendation is one proposed follow-up action for an at-risk account.
type Recommendation struct {
	Action       string `json:"action"`
	Priority     string `json:"priority"`
	TimelineDays int    `json:"timeline_days"`
}

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// RecommendationEngine asks the completions API for tailored follow-ups and
// merges them with the rule-based set, deduplicated by action text.
type RecommendationEngine struct {
	client       *openaisdk.Client
	model        string
	systemPrompt string
}

func NewRecommendationEngine(client *openaisdk.Client, model, systemPrompt string) (*RecommendationEngine, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("model is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, errors.New("system prompt is required")
	}
	return &RecommendationEngine{
		client:       client,
		model:        model,
		systemPrompt: systemPrompt,
	}, nil
}

type recommendationsEnvelope struct {
	Recommendations []Recommendation `json:"recommendations"`
}

func (e *RecommendationEngine) Recommend(ctx context.Context, score *AccountHealthScore) ([]Recommendation, error) {
	if score == nil {
		return nil, errors.New("score is required")
	}

	payload, err := json.Marshal(map[string]any{
		"score":      score.Score,
		"level":      score.Level,
		"indicators": score.Indicators,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal health payload: %w", err)
	}

	resp, err := e.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(e.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(e.systemPrompt),
			openaisdk.UserMessage(string(payload)),
		},
		Temperature: openaisdk.Float(0.3),
	})
	if err != nil {
		return nil, fmt.Errorf("recommendation completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("recommendation completion returned no choices")
	}

	var envelope recommendationsEnvelope
	content := extractJSONObject(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, fmt.Errorf("parse recommendations: %w", err)
	}

	return mergeRecommendations(ruleBasedRecommendations(score.Indicators), envelope.Recommendations), nil
}

// ruleBasedRecommendations maps degraded indicators to stock follow-ups so
// the caller always gets something actionable, model or no model.
func ruleBasedRecommendations(indicators []RiskIndicator) []Recommendation {
	var recs []Recommendation
	for _, ind := range indicators {
		if ind.Level == RiskLow {
			continue
		}
		priority := PriorityMedium
		if ind.Level == RiskCritical {
			priority = PriorityHigh
		}

		switch ind.Name {
		case IndicatorEngagementRate:
			recs = append(recs, Recommendation{
				Action:       "Launch a re-engagement sequence for inactive contacts",
				Priority:     priority,
				TimelineDays: 7,
			})
		case IndicatorResponseTime:
			recs = append(recs, Recommendation{
				Action:       "Follow up on the most recent open threads today",
				Priority:     priority,
				TimelineDays: 1,
			})
		case IndicatorDealStagnation:
			recs = append(recs, Recommendation{
				Action:       "Review stalled deals and agree on next steps with each owner",
				Priority:     priority,
				TimelineDays: 3,
			})
		case IndicatorMeetingFrequency:
			recs = append(recs, Recommendation{
				Action:       "Schedule a check-in meeting with key stakeholders",
				Priority:     priority,
				TimelineDays: 5,
			})
		}
	}
	return recs
}

func mergeRecommendations(base, extra []Recommendation) []Recommendation {
	seen := make(map[string]struct{}, len(base)+len(extra))
	merged := make([]Recommendation, 0, len(base)+len(extra))
	for _, rec := range append(base, extra...) {
		action := strings.TrimSpace(rec.Action)
		if action == "" {
			continue
		}
		key := strings.ToLower(action)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rec.Action = action
		if rec.Priority == "" {
			rec.Priority = PriorityMedium
		}
		merged = append(merged, rec)
	}
	return merged
}

// extractJSONObject tolerates code fences and prose around the JSON object.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s
}
