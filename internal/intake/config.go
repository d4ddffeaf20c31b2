package intake

import (
	"time"

	"github.com/pkg/errors"
)

// Config is assembled once before the engine is built and never mutated afterwards.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
	MaxHistory  int

	ExtractionTemperature float32
	ExtractionMaxTokens   int

	CompletionMarker      string
	SystemPrompt          string
	FirstTurnInstruction  string
	ExtractionPrompt      string
	TechnicalErrorMessage string
	AssistantName         string

	// LLMTimeout bounds each provider call; zero leaves it to the caller's ctx.
	LLMTimeout time.Duration

	// StoreLabel is shown in health output. It must not contain credentials.
	StoreLabel string
}

func DefaultConfig() Config {
	return Config{
		Model:                 "gpt-4o-mini",
		Temperature:           0.7,
		MaxTokens:             300,
		MaxHistory:            20,
		ExtractionTemperature: 0.1,
		ExtractionMaxTokens:   400,
		CompletionMarker:      DefaultCompletionMarker,
		SystemPrompt:          DefaultSystemPrompt,
		FirstTurnInstruction:  DefaultFirstTurnInstruction,
		ExtractionPrompt:      DefaultExtractionPrompt,
		TechnicalErrorMessage: DefaultTechnicalErrorMessage,
		AssistantName:         "Светлана",
		LLMTimeout:            60 * time.Second,
		StoreLabel:            "sqlite",
	}
}

func (c Config) Validate() error {
	switch {
	case c.CompletionMarker == "":
		return errors.New("intake: completion marker is empty")
	case c.SystemPrompt == "":
		return errors.New("intake: system prompt is empty")
	case c.MaxHistory <= 0:
		return errors.Errorf("intake: max history must be positive, got %d", c.MaxHistory)
	case c.Temperature < 0 || c.Temperature > 2:
		return errors.Errorf("intake: temperature %.2f out of range [0, 2]", c.Temperature)
	case c.MaxTokens <= 0:
		return errors.Errorf("intake: max tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}
