// Package deepseek enriches unprocessed articles through the DeepSeek
// chat API and persists validated responses. Workers coordinate solely
// through the store's claim compare-and-set.
package deepseek

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/daijiong1977/news-sub002/internal/core"
)

// Client wraps the OpenAI-compatible chat endpoint DeepSeek exposes.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewClient builds a client for the configured base URL and model. The
// API key comes from the apikey table, not the environment.
func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{api: openai.NewClientWithConfig(cfg), model: model, timeout: timeout}
}

// Model returns the configured model name for response bookkeeping.
func (c *Client) Model() string { return c.model }

// Enrich sends one prompt under the per-request deadline and returns the
// raw response body. Failures are classified into the LLMError taxonomy.
func (c *Client) Enrich(ctx context.Context, prompt string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &core.LLMError{Reason: "http_status", Err: errors.New("empty choices in response")}
	}
	return []byte(resp.Choices[0].Message.Content), nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.LLMError{Reason: "timeout", Err: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return &core.LLMError{Reason: "auth", Err: err}
		}
		return &core.LLMError{Reason: "http_status", Err: err}
	}
	return &core.LLMError{Reason: "network", Err: err}
}
