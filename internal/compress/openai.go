package compress

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	signaldomain "labstate/internal/signal/domain"
	statedomain "labstate/internal/state/domain"
)

// chatClient is the slice of the OpenAI client the compressor uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAICompressor calls an OpenAI-compatible chat completion endpoint.
type OpenAICompressor struct {
	client chatClient
	model  string
	log    *zap.Logger
}

// NewOpenAICompressor builds a compressor against the given endpoint. baseURL
// may be empty to use the public API.
func NewOpenAICompressor(apiKey, baseURL, model string, log *zap.Logger) *OpenAICompressor {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompressor{client: openai.NewClientWithConfig(cfg), model: model, log: log}
}

func (c *OpenAICompressor) Model() string { return c.model }

// Compress sends the current snapshot and signal batch to the model and parses
// the response into a validated snapshot. Transport and API failures map to
// ErrUnavailable; malformed or non-conforming output maps to ErrSchemaViolation.
func (c *OpenAICompressor) Compress(ctx context.Context, current statedomain.Snapshot, signals []*signaldomain.Signal) (statedomain.Snapshot, error) {
	userPrompt, err := buildUserPrompt(current, signals)
	if err != nil {
		return statedomain.Snapshot{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.1,
		MaxTokens:   4000,
	})
	if err != nil {
		return statedomain.Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return statedomain.Snapshot{}, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	raw := stripCodeFence(resp.Choices[0].Message.Content)
	var candidate statedomain.Snapshot
	if err := json.Unmarshal([]byte(raw), &candidate); err != nil {
		c.log.Warn("compression output is not valid JSON", zap.Error(err))
		return statedomain.Snapshot{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if err := candidate.Validate(); err != nil {
		c.log.Warn("compression output failed schema validation", zap.Error(err))
		return statedomain.Snapshot{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return candidate, nil
}
