package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKeys     []string      `mapstructure:"api_keys"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ClassifierConfig struct {
	PromptFile   string        `mapstructure:"prompt_file"`
	KeywordsFile string        `mapstructure:"keywords_file"`
	TwoStage     bool          `mapstructure:"two_stage"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
}

type QuotaConfig struct {
	DailyBudget   int64  `mapstructure:"daily_budget"`
	SafetyMargin  int64  `mapstructure:"safety_margin"`
	TokenEstimate int64  `mapstructure:"token_estimate"`
	UsageFile     string `mapstructure:"usage_file"`
	ResetFile     string `mapstructure:"reset_file"`
}

type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	MaxAgeDays   int    `mapstructure:"max_age_days"`
	MaxSize      int    `mapstructure:"max_size"`
	Pruning      bool   `mapstructure:"pruning"`
	ContentDedup bool   `mapstructure:"content_dedup"`
}

func (s StorageConfig) MaxAge() time.Duration {
	return time.Duration(s.MaxAgeDays) * 24 * time.Hour
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type FeedConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Language           string        `mapstructure:"language"`
	PageSize           int           `mapstructure:"page_size"`
	MaxPostsPerKeyword int           `mapstructure:"max_posts_per_keyword"`
	PageDelay          time.Duration `mapstructure:"page_delay"`
	KeywordDelay       time.Duration `mapstructure:"keyword_delay"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	// Recency of zero follows the scheduler interval.
	Recency time.Duration `mapstructure:"recency"`
}

type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// Schedule is a cron expression that replaces Interval when set.
	Schedule string `mapstructure:"schedule"`
}

type ThresholdsConfig struct {
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
	Low    float64 `mapstructure:"low"`
}

type NotifyConfig struct {
	WebhookURL     string           `mapstructure:"webhook_url"`
	TelegramToken  string           `mapstructure:"telegram_token"`
	TelegramChatID int64            `mapstructure:"telegram_chat_id"`
	NotifyEmpty    bool             `mapstructure:"notify_empty"`
	MessageLimit   int              `mapstructure:"message_limit"`
	Thresholds     ThresholdsConfig `mapstructure:"thresholds"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// RecencyWindow is how far back each cycle searches.
func (c *Config) RecencyWindow() time.Duration {
	if c.Feed.Recency > 0 {
		return c.Feed.Recency
	}
	return c.Scheduler.Interval
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.api_keys", []string{})
	v.SetDefault("llm.model", "llama-3.1-8b-instant")
	v.SetDefault("llm.max_tokens", 150)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("classifier.prompt_file", "configs/commission_filter.txt")
	v.SetDefault("classifier.keywords_file", "")
	v.SetDefault("classifier.two_stage", true)
	v.SetDefault("classifier.backoff_base", 800*time.Millisecond)

	v.SetDefault("quota.daily_budget", 500000)
	v.SetDefault("quota.safety_margin", 300)
	v.SetDefault("quota.token_estimate", 1800)
	v.SetDefault("quota.usage_file", "data/api_usage.json")
	v.SetDefault("quota.reset_file", "data/last_reset.txt")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "data/posts.json")
	v.SetDefault("storage.max_age_days", 30)
	v.SetDefault("storage.max_size", 10000)
	v.SetDefault("storage.pruning", true)
	v.SetDefault("storage.content_dedup", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "commission_scout")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("feed.base_url", "https://api.bsky.app")
	v.SetDefault("feed.language", "en")
	v.SetDefault("feed.page_size", 100)
	v.SetDefault("feed.max_posts_per_keyword", 200)
	v.SetDefault("feed.page_delay", 500*time.Millisecond)
	v.SetDefault("feed.keyword_delay", 1500*time.Millisecond)
	v.SetDefault("feed.timeout", 15*time.Second)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.recency", time.Duration(0))

	v.SetDefault("scheduler.interval", 2*time.Hour)
	v.SetDefault("scheduler.schedule", "")

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)
	v.SetDefault("notify.notify_empty", false)
	v.SetDefault("notify.message_limit", 1900)
	v.SetDefault("notify.thresholds.high", 0.80)
	v.SetDefault("notify.thresholds.medium", 0.50)
	v.SetDefault("notify.thresholds.low", 0.20)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", u.Port())
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads path when it exists, then environment variables. Nested
// keys map to upper-case names with underscores (LLM_MODEL, STORAGE_MAX_SIZE).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := applyLegacyEnv(v, &config); err != nil {
		return nil, err
	}
	config.LLM.APIKeys = splitKeys(config.LLM.APIKeys)

	return &config, nil
}

// applyLegacyEnv honours the flat variable names of older deployments.
func applyLegacyEnv(v *viper.Viper, config *Config) error {
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
		config.Storage.Driver = "postgres"
	}

	if keys := v.GetString("GROQ_API_KEYS"); keys != "" {
		config.LLM.APIKeys = strings.Split(keys, ",")
	} else if key := v.GetString("GROQ_API_KEY"); key != "" && len(config.LLM.APIKeys) == 0 {
		config.LLM.APIKeys = []string{key}
	}

	if webhook := v.GetString("DISCORD_WEBHOOK_URL"); webhook != "" {
		config.Notify.WebhookURL = webhook
	}
	if path := v.GetString("DATA_FILE"); path != "" {
		config.Storage.Path = path
	}

	if v.GetString("FETCH_INTERVAL_HOURS") != "" {
		config.Scheduler.Interval = time.Duration(v.GetFloat64("FETCH_INTERVAL_HOURS") * float64(time.Hour))
	}
	if v.GetString("RECENCY_WINDOW_SECONDS") != "" {
		config.Feed.Recency = time.Duration(v.GetInt64("RECENCY_WINDOW_SECONDS")) * time.Second
	}
	if v.GetString("BLUESKY_RATE_LIMIT_DELAY") != "" {
		config.Feed.KeywordDelay = time.Duration(v.GetFloat64("BLUESKY_RATE_LIMIT_DELAY") * float64(time.Second))
	}
	if v.GetString("MAX_POSTS_PER_KEYWORD") != "" {
		config.Feed.MaxPostsPerKeyword = v.GetInt("MAX_POSTS_PER_KEYWORD")
	}

	if v.GetString("MAX_STORAGE_AGE_DAYS") != "" {
		config.Storage.MaxAgeDays = v.GetInt("MAX_STORAGE_AGE_DAYS")
	}
	if v.GetString("MAX_STORAGE_SIZE") != "" {
		config.Storage.MaxSize = v.GetInt("MAX_STORAGE_SIZE")
	}
	if v.GetString("ENABLE_STORAGE_PRUNING") != "" {
		config.Storage.Pruning = v.GetBool("ENABLE_STORAGE_PRUNING")
	}
	if v.GetString("ENABLE_CONTENT_DEDUPLICATION") != "" {
		config.Storage.ContentDedup = v.GetBool("ENABLE_CONTENT_DEDUPLICATION")
	}
	if v.GetString("USE_TWO_STAGE_CLASSIFICATION") != "" {
		config.Classifier.TwoStage = v.GetBool("USE_TWO_STAGE_CLASSIFICATION")
	}

	if v.GetString("CONFIDENCE_THRESHOLD_HIGH") != "" {
		config.Notify.Thresholds.High = v.GetFloat64("CONFIDENCE_THRESHOLD_HIGH")
	}
	if v.GetString("CONFIDENCE_THRESHOLD_MEDIUM") != "" {
		config.Notify.Thresholds.Medium = v.GetFloat64("CONFIDENCE_THRESHOLD_MEDIUM")
	}
	if v.GetString("CONFIDENCE_THRESHOLD_LOW") != "" {
		config.Notify.Thresholds.Low = v.GetFloat64("CONFIDENCE_THRESHOLD_LOW")
	}

	if level := v.GetString("LOG_LEVEL"); level != "" {
		config.Log.Level = strings.ToLower(level)
	}
	if file := v.GetString("LOG_FILE"); file != "" {
		config.Log.File = file
	}
	return nil
}

// splitKeys flattens comma-joined entries and drops blanks.
func splitKeys(raw []string) []string {
	var keys []string
	for _, entry := range raw {
		for _, k := range strings.Split(entry, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Validate reports the first setting that would stop the service from
// running sensibly.
func (c *Config) Validate() error {
	if len(c.LLM.APIKeys) == 0 {
		return errors.New("no LLM API keys configured (llm.api_keys or GROQ_API_KEYS)")
	}
	switch c.LLM.Provider {
	case "openai", "groq", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Storage.Driver {
	case "file", "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "file" && c.Storage.Path == "" {
		return errors.New("storage.path is required for the file driver")
	}
	if c.Quota.DailyBudget <= 0 {
		return fmt.Errorf("quota.daily_budget must be positive, got %d", c.Quota.DailyBudget)
	}
	if c.Quota.TokenEstimate <= 0 {
		return fmt.Errorf("quota.token_estimate must be positive, got %d", c.Quota.TokenEstimate)
	}
	if c.Storage.MaxSize <= 0 {
		return fmt.Errorf("storage.max_size must be positive, got %d", c.Storage.MaxSize)
	}
	if c.Scheduler.Schedule == "" && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	t := c.Notify.Thresholds
	if !(0 <= t.Low && t.Low <= t.Medium && t.Medium <= t.High && t.High <= 1) {
		return fmt.Errorf("confidence thresholds must satisfy 0 <= low <= medium <= high <= 1, got %.2f/%.2f/%.2f",
			t.Low, t.Medium, t.High)
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		return errors.New("notify.telegram_chat_id is required with a telegram token")
	}
	return nil
}
