package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/revpilot-ai/revpilot/agent/contract"
	openaix "github.com/revpilot-ai/revpilot/pkg/openaix"
)

// Config selects models per agent role, with a shared default. The thinker
// usually wants the strongest model; summarization can run on a cheaper one.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"gpt-4-turbo"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`

	ThinkerModel           string  `envconfig:"THINKER_MODEL" split_words:"true"`
	SummarizerModel        string  `envconfig:"SUMMARIZER_MODEL" split_words:"true"`
	RecommenderModel       string  `envconfig:"RECOMMENDER_MODEL" split_words:"true"`
	ThinkerTemperature     float32 `envconfig:"THINKER_TEMPERATURE" split_words:"true" default:"-1"`
	SummarizerTemperature  float32 `envconfig:"SUMMARIZER_TEMPERATURE" split_words:"true" default:"-1"`
	RecommenderTemperature float32 `envconfig:"RECOMMENDER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openai api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenAIFor(role contractx.AgentRole) openaix.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case contractx.AgentRoleThinker:
		if v := strings.TrimSpace(c.ThinkerModel); v != "" {
			modelName = v
		}
		if c.ThinkerTemperature >= 0 {
			temp = c.ThinkerTemperature
		}
	case contractx.AgentRoleSummarizer:
		if v := strings.TrimSpace(c.SummarizerModel); v != "" {
			modelName = v
		}
		if c.SummarizerTemperature >= 0 {
			temp = c.SummarizerTemperature
		}
	case contractx.AgentRoleRecommender:
		if v := strings.TrimSpace(c.RecommenderModel); v != "" {
			modelName = v
		}
		if c.RecommenderTemperature >= 0 {
			temp = c.RecommenderTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openaix.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
	}
}
