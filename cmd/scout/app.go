package main

import (
	"fmt"
	"time"

	"github.com/xaenox/commission-scout/internal/classifier"
	"github.com/xaenox/commission-scout/internal/feed"
	"github.com/xaenox/commission-scout/internal/keywords"
	"github.com/xaenox/commission-scout/internal/llm"
	"github.com/xaenox/commission-scout/internal/metrics"
	"github.com/xaenox/commission-scout/internal/notify"
	"github.com/xaenox/commission-scout/internal/pipeline"
	"github.com/xaenox/commission-scout/internal/quota"
	"github.com/xaenox/commission-scout/internal/storage"
	"github.com/xaenox/commission-scout/pkg/config"
	"github.com/xaenox/commission-scout/pkg/logging"
	"go.uber.org/zap"
)

// app holds the configuration and logger shared by every command and builds
// the heavier components on demand.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Recorder
	phrases keywords.Set
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}

	phrases := keywords.Default()
	if cfg.Classifier.KeywordsFile != "" {
		phrases, err = keywords.Load(cfg.Classifier.KeywordsFile)
		if err != nil {
			return nil, err
		}
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewRecorder(),
		phrases: phrases,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) ledger(creds []llm.Credential) *quota.Ledger {
	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.ID)
	}
	persister := quota.FilePersister{
		UsagePath: a.cfg.Quota.UsageFile,
		ResetPath: a.cfg.Quota.ResetFile,
	}
	return quota.New(persister, ids, a.logger)
}

func (a *app) classifier() (*classifier.GPTClassifier, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := llm.New(a.cfg.LLM.Provider, a.cfg.LLM.BaseURL, a.cfg.LLM.Timeout)
	if err != nil {
		return nil, err
	}
	creds := llm.Credentials(a.cfg.LLM.APIKeys)

	a.logger.Info("Classifier configured",
		zap.String("provider", a.cfg.LLM.Provider),
		zap.String("model", a.cfg.LLM.Model),
		zap.Int("credentials", len(creds)),
		zap.Bool("two_stage", a.cfg.Classifier.TwoStage))

	opts := classifier.Options{
		Model:         a.cfg.LLM.Model,
		MaxTokens:     a.cfg.LLM.MaxTokens,
		Temperature:   float32(a.cfg.LLM.Temperature),
		TopP:          float32(a.cfg.LLM.TopP),
		DailyBudget:   a.cfg.Quota.DailyBudget,
		SafetyMargin:  a.cfg.Quota.SafetyMargin,
		TokenEstimate: a.cfg.Quota.TokenEstimate,
		BackoffBase:   a.cfg.Classifier.BackoffBase,
		TwoStage:      a.cfg.Classifier.TwoStage,
	}
	prompt := classifier.LoadPrompt(a.cfg.Classifier.PromptFile, a.logger)
	rules := classifier.NewRuleClassifier(a.phrases, a.logger)

	clf := classifier.NewGPTClassifier(client, a.ledger(creds), creds, rules, prompt, opts, a.logger)
	return clf.WithMetrics(a.metrics), nil
}

func (a *app) store() (*storage.Store, error) {
	var backend storage.Backend
	switch a.cfg.Storage.Driver {
	case "memory":
		a.logger.Info("Using in-memory storage")
		backend = storage.NewMemoryBackend()
	case "postgres":
		a.logger.Info("Using PostgreSQL storage", zap.String("host", a.cfg.Database.Host))
		db := a.cfg.Database
		pg, err := storage.NewPostgresBackend(storage.DatabaseConfig{
			Host:     db.Host,
			Port:     db.Port,
			User:     db.User,
			Password: db.Password,
			DBName:   db.DBName,
			SSLMode:  db.SSLMode,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("initialize storage: %w", err)
		}
		backend = pg
	case "file":
		a.logger.Info("Using file storage", zap.String("path", a.cfg.Storage.Path))
		backend = storage.NewFileBackend(a.cfg.Storage.Path, a.logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}

	return storage.New(backend, storage.Options{
		MaxAge:       a.cfg.Storage.MaxAge(),
		MaxSize:      a.cfg.Storage.MaxSize,
		Prune:        a.cfg.Storage.Pruning,
		ContentDedup: a.cfg.Storage.ContentDedup,
	}, a.logger), nil
}

func (a *app) notifier() (notify.Notifier, error) {
	n := a.cfg.Notify
	formatter := notify.Formatter{
		Thresholds: notify.Thresholds{
			High:   n.Thresholds.High,
			Medium: n.Thresholds.Medium,
			Low:    n.Thresholds.Low,
		},
		Limit: n.MessageLimit,
	}

	notifiers := notify.Multi{notify.NewLog(a.logger)}
	if n.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(n.WebhookURL, formatter, a.logger))
	}
	if n.TelegramToken != "" {
		tg, err := notify.NewTelegram(n.TelegramToken, n.TelegramChatID, formatter, a.logger)
		if err != nil {
			return nil, fmt.Errorf("initialize telegram: %w", err)
		}
		notifiers = append(notifiers, tg)
	}
	if len(notifiers) == 1 {
		a.logger.Warn("No webhook or telegram configured, qualified posts are only logged")
	}
	return notifiers, nil
}

func (a *app) fetcher() *feed.Bluesky {
	f := a.cfg.Feed
	return feed.NewBluesky(feed.Options{
		BaseURL:   f.BaseURL,
		PageSize:  f.PageSize,
		MaxPosts:  f.MaxPostsPerKeyword,
		Language:  f.Language,
		PageDelay: f.PageDelay,
		Timeout:   f.Timeout,

		MaxRetries:     f.MaxRetries,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  10 * time.Second,
	}, a.logger)
}

// pipeline wires every component of a cycle. The returned store must be
// closed by the caller.
func (a *app) pipeline() (*pipeline.Pipeline, *storage.Store, error) {
	clf, err := a.classifier()
	if err != nil {
		return nil, nil, err
	}
	notifier, err := a.notifier()
	if err != nil {
		return nil, nil, err
	}
	store, err := a.store()
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(a.fetcher(), clf, store, notifier, pipeline.Options{
		Keywords:     a.phrases.Search,
		Recency:      a.cfg.RecencyWindow(),
		KeywordDelay: a.cfg.Feed.KeywordDelay,
		NotifyEmpty:  a.cfg.Notify.NotifyEmpty,
	}, a.logger)
	return p.WithMetrics(a.metrics), store, nil
}
