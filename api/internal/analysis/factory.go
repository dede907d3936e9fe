package analysis

import (
	"fmt"

	"screenmind/api/internal/vision"
	"screenmind/api/internal/vision/gemini"
	"screenmind/api/internal/vision/openai"
)

// Factory builds the client for a provider from its credential.
type Factory func(p vision.ProviderConfig, credential string) (vision.Client, error)

// NewClient is the default Factory.
func NewClient(p vision.ProviderConfig, credential string) (vision.Client, error) {
	switch p.ID {
	case vision.Gemini:
		return gemini.New(p, credential), nil
	case vision.Qwen, vision.OpenAI:
		return openai.New(p, credential), nil
	default:
		return nil, fmt.Errorf("unknown provider %q; use gemini, qwen or openai", p.ID)
	}
}
