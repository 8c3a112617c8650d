package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/xaenox/commission-scout/internal/keywords"
	"github.com/xaenox/commission-scout/internal/models"
	"go.uber.org/zap"
)

// Stage names the step that decided a Result.
type Stage string

const (
	StageEmpty         Stage = "empty"
	StageInjection     Stage = "injection_guard"
	StageSellerVeto    Stage = "seller_veto"
	StageModel         Stage = "model"
	StageSelfPromotion Stage = "self_promotion"
)

// Failure is set when classification ended without a verdict.
type Failure string

const (
	FailureNone           Failure = ""
	FailureEmpty          Failure = "empty"
	FailureQuotaExhausted Failure = "quota_exhausted"
	FailureUpstream       Failure = "upstream"
	FailureMalformed      Failure = "malformed_response"
)

const (
	ReasonInjection     = "potential prompt injection"
	ReasonSeller        = "seller advertisement"
	ReasonSelfPromotion = "self-promotion override"
	ReasonMissing       = "No reason provided"
)

// Result is either a verdict (Failure == FailureNone) or a failure kind
// with the underlying error, if any.
type Result struct {
	Verdict models.Verdict
	Stage   Stage
	Failure Failure
	Err     error
}

func (r Result) OK() bool {
	return r.Failure == FailureNone
}

type Classifier interface {
	Classify(ctx context.Context, text string) Result
}

// Fingerprint hashes text after trimming it and collapsing whitespace runs,
// so reposts that only differ in spacing share a fingerprint.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// RuleClassifier applies the phrase-list stages that never need a model call.
type RuleClassifier struct {
	phrases keywords.Set
	logger  *zap.Logger
}

func NewRuleClassifier(phrases keywords.Set, logger *zap.Logger) *RuleClassifier {
	return &RuleClassifier{
		phrases: phrases,
		logger:  logger,
	}
}

// Injection reports a prompt-injection attempt: two distinct markers, or
// any single high-risk phrase.
func (c *RuleClassifier) Injection(text string) bool {
	if len(keywords.Matches(text, c.phrases.Injection)) >= 2 {
		return true
	}
	return keywords.ContainsAny(text, c.phrases.HighRiskInjection)
}

func (c *RuleClassifier) SellerAdvert(text string) bool {
	return keywords.ContainsAny(text, c.phrases.Seller)
}

func (c *RuleClassifier) BuyerSignals(text string) []string {
	return keywords.Matches(text, c.phrases.Buyer)
}

func (c *RuleClassifier) SelfPromotion(text string) bool {
	return keywords.ContainsAny(text, c.phrases.SelfPromotion)
}

// Screen runs the injection guard and, when sellerVeto is set, the seller
// keyword veto. blocked is true when the returned verdict is final.
func (c *RuleClassifier) Screen(text string, sellerVeto bool) (v models.Verdict, stage Stage, blocked bool) {
	if c.Injection(text) {
		c.logger.Warn("Prompt injection markers found", zap.Strings("markers", keywords.Matches(text, c.phrases.Injection)))
		return models.Verdict{IsCommission: false, Confidence: 0.0, Reason: ReasonInjection}, StageInjection, true
	}

	if !sellerVeto {
		return models.Verdict{}, "", false
	}

	if c.SellerAdvert(text) {
		return models.Verdict{IsCommission: false, Confidence: 0.85, Reason: ReasonSeller}, StageSellerVeto, true
	}

	// buyer phrases are informational only
	if signals := c.BuyerSignals(text); len(signals) > 0 {
		c.logger.Debug("Buyer phrases present", zap.Strings("phrases", signals))
	}
	return models.Verdict{}, "", false
}

// OverrideSelfPromotion turns a positive verdict negative when the text
// reads as an artist advertising their own services.
func (c *RuleClassifier) OverrideSelfPromotion(text string, v models.Verdict) (models.Verdict, bool) {
	if !v.IsCommission || !c.SelfPromotion(text) {
		return v, false
	}
	v.IsCommission = false
	v.Confidence = 0.1
	v.Reason = ReasonSelfPromotion
	return v, true
}
