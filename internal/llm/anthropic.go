package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicClient struct {
	baseURL string
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]anthropic.Client
}

func NewAnthropicClient(baseURL string, timeout time.Duration) *AnthropicClient {
	return &AnthropicClient{
		baseURL: baseURL,
		timeout: timeout,
		clients: make(map[string]anthropic.Client),
	}
}

func (c *AnthropicClient) clientFor(apiKey string) anthropic.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[apiKey]; ok {
		return client
	}
	// retries are driven by the classifier's credential rotation
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	if c.timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(c.timeout))
	}
	client := anthropic.NewClient(opts...)
	c.clients[apiKey] = client
	return client
}

func (c *AnthropicClient) Complete(ctx context.Context, apiKey string, req Request) (Response, error) {
	client := c.clientFor(apiKey)
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserText)),
		},
		Temperature: anthropic.Float(float64(req.Temperature)),
		TopP:        anthropic.Float(float64(req.TopP)),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return Response{}, rateLimited(err)
		}
		return Response{}, err
	}

	out := Response{TotalTokens: message.Usage.InputTokens + message.Usage.OutputTokens}
	for _, block := range message.Content {
		if block.Type == "text" {
			out.Text = block.Text
			break
		}
	}
	return out, nil
}
