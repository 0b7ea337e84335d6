// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; required for server, worker, and migrate.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret is the shared HMAC secret used to validate bearer tokens issued by the identity provider.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the expected iss claim (e.g. "labstate-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim (e.g. "labstate-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	// OpenAIAPIKey authenticates against the compression capability.
	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	// OpenAIBaseURL overrides the API base URL (e.g. a local inference gateway). Empty uses the default.
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`
	// LLMModel is the completion model used for distillation (default gpt-4o-mini).
	LLMModel string `mapstructure:"LLM_MODEL"`

	// MaxStateTokens is the token budget for a serialized state snapshot (default 2000).
	// Exceeding it degrades the run (logged + counted), it does not reject the commit.
	MaxStateTokens int `mapstructure:"MAX_STATE_TOKENS"`
	// DistillBatchSize caps how many unprocessed signals one attempt selects (default 10).
	DistillBatchSize int `mapstructure:"DISTILL_BATCH_SIZE"`
	// DistillMaxAttempts is the retry ceiling per logical distillation request (default 3).
	DistillMaxAttempts int `mapstructure:"DISTILL_MAX_ATTEMPTS"`
	// DistillRetryBase is the base backoff delay; attempt n waits base * 2^n (default 10s).
	DistillRetryBase string `mapstructure:"DISTILL_RETRY_BASE"`

	// KafkaBrokers is a comma-separated broker list. Empty disables the queue:
	// triggers run inline and audit events write straight to the database.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// DistillKafkaTopic is the topic distillation jobs are enqueued on (default labstate-distill-jobs).
	DistillKafkaTopic string `mapstructure:"DISTILL_KAFKA_TOPIC"`
	// AuditKafkaTopic is the topic best-effort audit events are published on (default labstate-audit).
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the worker (default labstate-worker).
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables exporters.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "labstate-auth")
	v.SetDefault("JWT_AUDIENCE", "labstate-api")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("MAX_STATE_TOKENS", 2000)
	v.SetDefault("DISTILL_BATCH_SIZE", 10)
	v.SetDefault("DISTILL_MAX_ATTEMPTS", 3)
	v.SetDefault("DISTILL_RETRY_BASE", "10s")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("DISTILL_KAFKA_TOPIC", "labstate-distill-jobs")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "labstate-audit")
	v.SetDefault("KAFKA_GROUP_ID", "labstate-worker")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("APP_ENV", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.MaxStateTokens <= 0 {
		return nil, errors.New("config: MAX_STATE_TOKENS must be positive")
	}
	if cfg.DistillBatchSize <= 0 {
		return nil, errors.New("config: DISTILL_BATCH_SIZE must be positive")
	}
	if cfg.DistillMaxAttempts < 1 || cfg.DistillMaxAttempts > 10 {
		return nil, errors.New("config: DISTILL_MAX_ATTEMPTS must be between 1 and 10")
	}

	return &cfg, nil
}

// RetryBase parses DistillRetryBase as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) RetryBase() time.Duration {
	d, err := time.ParseDuration(c.DistillRetryBase)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
// Used to decide if the queue is enabled (non-empty list) and to create producers and readers.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
