package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/think.txt
	thinkRaw string

	//go:embed template/summarize.txt
	summarizeRaw string

	//go:embed template/recommend.txt
	recommendRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Think     string
	Summarize string
	Recommend string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Think:     strings.TrimSpace(thinkRaw),
		Summarize: strings.TrimSpace(summarizeRaw),
		Recommend: strings.TrimSpace(recommendRaw),
	}
}
