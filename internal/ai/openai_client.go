package ai

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

var errEmptyChoices = errors.New("empty choices")

type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client for the given key. baseURL is optional and
// points the client at a compatible gateway.
func NewOpenAIClient(apiKey, model, baseURL string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ai: OPENAI_API_KEY not set")
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Text,
		})
	}

	started := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Str("model", c.model).Dur("latency", time.Since(started)).Msg("ai: openai error")
		return "", &ProviderError{Op: "chat completion", Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{Op: "chat completion", Err: errEmptyChoices}
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)

	log.Debug().
		Str("model", c.model).
		Dur("latency", time.Since(started)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Str("raw", raw).
		Msg("ai: raw response")

	return raw, nil
}
