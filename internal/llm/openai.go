package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/errs"
)

// OpenAI implements Provider against the OpenAI chat completion API, or any
// compatible endpoint reachable through a base URL override.
type OpenAI struct {
	client  *openai.Client
	timeout time.Duration
}

func NewOpenAI(cfg config.LLMConfig) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientConfig),
		timeout: cfg.Timeout,
	}
}

func (p *OpenAI) Complete(ctx context.Context, req Request) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion: %w", errs.ErrProvider)
	}

	return &Reply{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// classify maps a provider failure onto the errs sentinels: rejected
// credentials, throttling, and timeouts each get their own class, anything
// else is a plain provider error.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("completion timed out: %w", errs.ErrProviderTimeout)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return fmt.Errorf("provider %w", errs.ErrRateLimited)
		case 401, 403:
			return fmt.Errorf("provider rejected credentials: %w", errs.ErrUnauthorized)
		default:
			return fmt.Errorf("provider error (status %d): %w", apiErr.HTTPStatusCode, errs.ErrProvider)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 {
			return fmt.Errorf("provider %w", errs.ErrRateLimited)
		}
		return fmt.Errorf("provider error (status %d): %w", reqErr.HTTPStatusCode, errs.ErrProvider)
	}

	return fmt.Errorf("provider unreachable: %w", errs.ErrProvider)
}
