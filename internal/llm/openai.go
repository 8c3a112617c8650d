package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// Groq included.
type OpenAIClient struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewOpenAIClient(baseURL string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		clients:    make(map[string]*openai.Client),
	}
}

func (c *OpenAIClient) clientFor(apiKey string) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[apiKey]; ok {
		return client
	}
	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cfg.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(cfg)
	c.clients[apiKey] = client
	return client
}

func (c *OpenAIClient) Complete(ctx context.Context, apiKey string, req Request) (Response, error) {
	temperature := req.Temperature
	if temperature == 0 {
		// a zero temperature is dropped by omitempty and the server default applies
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := c.clientFor(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserText},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		if isOpenAIRateLimit(err) {
			return Response{}, rateLimited(err)
		}
		return Response{}, err
	}

	out := Response{TotalTokens: int64(resp.Usage.TotalTokens)}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	return out, nil
}

func isOpenAIRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		if code, ok := apiErr.Code.(string); ok && code == "rate_limit_exceeded" {
			return true
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	return false
}
