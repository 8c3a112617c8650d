package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/commission-scout/internal/llm"
	"github.com/xaenox/commission-scout/internal/metrics"
	"github.com/xaenox/commission-scout/internal/models"
	"github.com/xaenox/commission-scout/internal/quota"
	"go.uber.org/zap"
)

var (
	ErrNoCredential      = errors.New("no credential within daily budget")
	ErrAttemptsExhausted = errors.New("all credential attempts rate limited")
	errMissingCommission = errors.New("is_commission missing or not a boolean")
)

const defaultNeutralConfidence = 0.5

type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32

	DailyBudget   int64
	SafetyMargin  int64
	TokenEstimate int64
	BackoffBase   time.Duration

	// TwoStage enables the seller keyword veto ahead of the model call.
	TwoStage bool
}

// GPTClassifier runs the whole decision pipeline for one text: rule stages,
// the model loop with credential rotation, and the self-promotion override.
type GPTClassifier struct {
	client      llm.Client
	ledger      *quota.Ledger
	credentials []llm.Credential
	rules       *RuleClassifier
	prompt      string
	opts        Options
	metrics     *metrics.Recorder
	logger      *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewGPTClassifier(
	client llm.Client,
	ledger *quota.Ledger,
	credentials []llm.Credential,
	rules *RuleClassifier,
	prompt string,
	opts Options,
	logger *zap.Logger,
) *GPTClassifier {
	return &GPTClassifier{
		client:      client,
		ledger:      ledger,
		credentials: credentials,
		rules:       rules,
		prompt:      prompt,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func (c *GPTClassifier) WithMetrics(m *metrics.Recorder) *GPTClassifier {
	c.metrics = m
	return c
}

func (c *GPTClassifier) Classify(ctx context.Context, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.finish(Result{Stage: StageEmpty, Failure: FailureEmpty})
	}

	c.ledger.MaybeResetForNewDay(c.now())

	fingerprint := Fingerprint(text)

	if v, stage, blocked := c.rules.Screen(text, c.opts.TwoStage); blocked {
		v.Fingerprint = fingerprint
		return c.finish(Result{Verdict: v, Stage: stage})
	}

	v, failure, err := c.callModel(ctx, text)
	if failure != FailureNone {
		return c.finish(Result{
			Verdict: models.Verdict{Fingerprint: fingerprint},
			Stage:   StageModel,
			Failure: failure,
			Err:     err,
		})
	}
	v.Fingerprint = fingerprint

	if overridden, ok := c.rules.OverrideSelfPromotion(text, v); ok {
		c.logger.Info("Model verdict overridden as self-promotion",
			zap.String("fingerprint", fingerprint),
			zap.String("model_reason", v.Reason))
		return c.finish(Result{Verdict: overridden, Stage: StageSelfPromotion})
	}
	return c.finish(Result{Verdict: v, Stage: StageModel})
}

// ClassifyAll classifies texts one after another.
func (c *GPTClassifier) ClassifyAll(ctx context.Context, texts []string) []Result {
	results := make([]Result, 0, len(texts))
	for _, t := range texts {
		results = append(results, c.Classify(ctx, t))
	}
	return results
}

func (c *GPTClassifier) callModel(ctx context.Context, text string) (models.Verdict, Failure, error) {
	ids := make([]string, len(c.credentials))
	byID := make(map[string]llm.Credential, len(c.credentials))
	for i, cred := range c.credentials {
		ids[i] = cred.ID
		byID[cred.ID] = cred
	}

	req := llm.Request{
		SystemPrompt: c.prompt,
		UserText:     text,
		Model:        c.opts.Model,
		Temperature:  c.opts.Temperature,
		TopP:         c.opts.TopP,
		MaxTokens:    c.opts.MaxTokens,
	}

	blacklist := make(map[string]bool)
	maxAttempts := 2 * len(c.credentials)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		id, ok := c.ledger.Select(ids, blacklist, c.opts.TokenEstimate, c.opts.SafetyMargin, c.opts.DailyBudget)
		if !ok {
			c.logger.Warn("No usable credential left", zap.Int("attempt", attempt))
			return models.Verdict{}, FailureQuotaExhausted, ErrNoCredential
		}

		c.logger.Debug("Calling model",
			zap.String("credential", id),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Int64("tracked_usage", c.ledger.Usage(id)))

		resp, err := c.client.Complete(ctx, byID[id].APIKey, req)
		if err != nil {
			if errors.Is(err, llm.ErrRateLimited) {
				blacklist[id] = true
				delay := c.opts.BackoffBase * time.Duration(attempt)
				c.logger.Warn("Credential rate limited",
					zap.String("credential", id),
					zap.Duration("backoff", delay))
				if err := c.sleep(ctx, delay); err != nil {
					return models.Verdict{}, FailureUpstream, err
				}
				continue
			}
			c.logger.Error("Model call failed", zap.String("credential", id), zap.Error(err))
			return models.Verdict{}, FailureUpstream, err
		}

		tokens := resp.TotalTokens
		if tokens <= 0 {
			tokens = c.opts.TokenEstimate
		}
		c.ledger.RecordUsage(id, tokens)
		c.metrics.AddTokens(id, tokens)

		v, err := parseVerdict(resp.Text)
		if err != nil {
			c.logger.Error("Failed to parse model response",
				zap.Error(err),
				zap.String("response", resp.Text))
			return models.Verdict{}, FailureMalformed, err
		}
		return v, FailureNone, nil
	}

	c.logger.Warn("Exhausted credential attempts", zap.Int("attempts", maxAttempts))
	return models.Verdict{}, FailureQuotaExhausted, ErrAttemptsExhausted
}

func (c *GPTClassifier) finish(r Result) Result {
	if r.OK() {
		c.metrics.ObserveVerdict(string(r.Stage), r.Verdict.IsCommission)
	} else {
		c.metrics.ObserveFailure(string(r.Failure))
	}
	return r
}

// modelReply keeps every field untyped so shape errors can be told apart
// from missing fields.
type modelReply struct {
	IsCommission any `json:"is_commission"`
	Confidence   any `json:"confidence"`
	Reason       any `json:"reason"`
}

func parseVerdict(raw string) (models.Verdict, error) {
	body := stripCodeFence(raw)

	var reply modelReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return models.Verdict{}, fmt.Errorf("decode model reply: %w", err)
	}

	isCommission, ok := reply.IsCommission.(bool)
	if !ok {
		return models.Verdict{}, errMissingCommission
	}

	confidence := defaultNeutralConfidence
	if f, ok := reply.Confidence.(float64); ok && f >= 0 && f <= 1 {
		confidence = f
	}

	reason := ReasonMissing
	if s, ok := reply.Reason.(string); ok && strings.TrimSpace(s) != "" {
		reason = strings.TrimSpace(s)
	}

	return models.Verdict{
		IsCommission: isCommission,
		Confidence:   confidence,
		Reason:       reason,
	}, nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = strings.TrimSpace(s[4:])
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
