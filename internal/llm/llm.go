package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRateLimited tags provider errors that are worth retrying with another
// credential. Callers test for it with errors.Is.
var ErrRateLimited = errors.New("llm: rate limited")

const (
	ProviderOpenAI    = "openai"
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
)

// Credential is one API key plus the identifier used in logs and in the
// persisted usage ledger. The key itself never leaves memory.
type Credential struct {
	ID     string
	APIKey string
}

func NewCredential(apiKey string) Credential {
	sum := sha256.Sum256([]byte(apiKey))
	return Credential{
		ID:     "cred-" + hex.EncodeToString(sum[:])[:12],
		APIKey: apiKey,
	}
}

// Credentials builds credentials from raw keys, skipping blanks and repeats
// while keeping the given order.
func Credentials(keys []string) []Credential {
	seen := make(map[string]struct{}, len(keys))
	creds := make([]Credential, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		creds = append(creds, NewCredential(k))
	}
	return creds
}

type Request struct {
	SystemPrompt string
	UserText     string
	Model        string
	Temperature  float32
	TopP         float32
	MaxTokens    int
}

// Response is a single completion. TotalTokens is zero when the provider
// did not report usage.
type Response struct {
	Text        string
	TotalTokens int64
}

// Client performs one chat completion with the given key. Rate-limit
// failures are wrapped with ErrRateLimited; anything else is returned as is.
type Client interface {
	Complete(ctx context.Context, apiKey string, req Request) (Response, error)
}

// New returns the client for provider. baseURL may be empty to use the
// provider default.
func New(provider, baseURL string, timeout time.Duration) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI, ProviderGroq:
		return NewOpenAIClient(baseURL, timeout), nil
	case ProviderAnthropic:
		return NewAnthropicClient(baseURL, timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func rateLimited(err error) error {
	return fmt.Errorf("%w: %v", ErrRateLimited, err)
}
