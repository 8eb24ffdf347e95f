package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/qiuqing005/maoxian/internal/config"
	"github.com/qiuqing005/maoxian/internal/models"
)

const retryDelay = 1 * time.Second

// ErrEmptyResponse indicates the provider answered with no usable content.
var ErrEmptyResponse = errors.New("provider returned an empty response")

// Provider turns a conversation transcript into the next narrative segment.
type Provider interface {
	Generate(ctx context.Context, transcript []models.Message) (string, error)
}

// OpenAIClient speaks the OpenAI chat-completion protocol, which also covers
// compatible endpoints selected via base_url.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	maxRetries  int
}

func NewOpenAIClient(cfg config.ProviderConfig) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		maxRetries:  maxRetries,
	}
}

// Generate sends the full transcript and returns the assistant's reply.
// Transient failures are retried with a linear backoff.
func (c *OpenAIClient) Generate(ctx context.Context, transcript []models.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, len(transcript))
	for i, msg := range transcript {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				break
			}
			continue
		}

		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			lastErr = ErrEmptyResponse
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("chat completion failed after %d attempts: %w", c.maxRetries, lastErr)
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "rate limit")
}
