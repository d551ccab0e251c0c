package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the intake bot.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	JanitorInterval          time.Duration
	MetricsNamespace         string
	LogLevel                 slog.Level
	IOTimeout                time.Duration

	TelegramBotToken      string
	TelegramAPIBaseURL    string
	TelegramWebhookSecret string
	TelegramMaxFileBytes  int64

	VoiceCatalogPath string

	StorageBackend  string
	StoragePrefix   string
	S3Bucket        string
	S3Region        string
	S3PublicBaseURL string
	NATSURL         string
	NATSBucket      string

	JobStore              string
	DatabaseURL           string
	JobsTTSTable          string
	JobsCloneTable        string
	JobsRecordVoiceChoice bool
	JobsOnPersistFailure  string

	ParamPrefix string
}

const (
	PersistFailureLog          = "log"
	PersistFailureDeleteUpload = "delete_upload"
)

// Load reads environment variables and applies safe defaults. Secrets may
// still be empty afterwards; see ResolveSecrets and Validate.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "docvoice"),
		TelegramBotToken:         stringsTrimSpace("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBaseURL:       envOrDefault("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		TelegramWebhookSecret:    stringsTrimSpace("TELEGRAM_WEBHOOK_SECRET"),
		TelegramMaxFileBytes:     20 << 20,
		VoiceCatalogPath:         stringsTrimSpace("VOICE_CATALOG_PATH"),
		StorageBackend:           strings.ToLower(envOrDefault("STORAGE_BACKEND", "memory")),
		StoragePrefix:            envOrDefault("STORAGE_PREFIX", "Queued/"),
		S3Bucket:                 stringsTrimSpace("S3_BUCKET"),
		S3Region:                 stringsTrimSpace("AWS_REGION"),
		S3PublicBaseURL:          stringsTrimSpace("S3_PUBLIC_BASE_URL"),
		NATSURL:                  stringsTrimSpace("NATS_URL"),
		NATSBucket:               envOrDefault("NATS_BUCKET", "docvoice"),
		JobStore:                 strings.ToLower(stringsTrimSpace("JOB_STORE")),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		JobsTTSTable:             envOrDefault("JOBS_TTS_TABLE", "tts_jobs"),
		JobsCloneTable:           envOrDefault("JOBS_CLONE_TABLE", "voice_clone_jobs"),
		JobsRecordVoiceChoice:    false,
		JobsOnPersistFailure:     strings.ToLower(envOrDefault("JOBS_ON_PERSIST_FAILURE", PersistFailureLog)),
		ParamPrefix:              strings.TrimRight(stringsTrimSpace("PARAM_PREFIX"), "/"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		JanitorInterval:          30 * time.Second,
		IOTimeout:                30 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("APP_SESSION_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.IOTimeout, err = durationFromEnv("IO_TIMEOUT", cfg.IOTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TelegramMaxFileBytes, err = int64FromEnv("TELEGRAM_MAX_FILE_BYTES", cfg.TelegramMaxFileBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.JobsRecordVoiceChoice, err = boolFromEnv("JOBS_RECORD_VOICE_CHOICE", cfg.JobsRecordVoiceChoice)
	if err != nil {
		return Config{}, err
	}
	if v := stringsTrimSpace("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("LOG_LEVEL parse error: %w", err)
		}
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.JanitorInterval <= 0 {
		return Config{}, fmt.Errorf("APP_SESSION_JANITOR_INTERVAL must be positive")
	}
	if cfg.IOTimeout <= 0 {
		return Config{}, fmt.Errorf("IO_TIMEOUT must be positive")
	}
	if cfg.TelegramMaxFileBytes <= 0 {
		return Config{}, fmt.Errorf("TELEGRAM_MAX_FILE_BYTES must be positive")
	}
	switch cfg.StorageBackend {
	case "memory", "s3", "nats":
	default:
		return Config{}, fmt.Errorf("STORAGE_BACKEND must be one of memory, s3, nats (got %q)", cfg.StorageBackend)
	}
	if cfg.StorageBackend == "s3" && cfg.S3Bucket == "" {
		return Config{}, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
	}
	if cfg.StorageBackend == "nats" && cfg.NATSURL == "" {
		return Config{}, fmt.Errorf("NATS_URL is required when STORAGE_BACKEND=nats")
	}
	switch cfg.JobStore {
	case "", "memory", "postgres", "dynamodb":
	default:
		return Config{}, fmt.Errorf("JOB_STORE must be one of memory, postgres, dynamodb (got %q)", cfg.JobStore)
	}
	switch cfg.JobsOnPersistFailure {
	case PersistFailureLog, PersistFailureDeleteUpload:
	default:
		return Config{}, fmt.Errorf("JOBS_ON_PERSIST_FAILURE must be %q or %q", PersistFailureLog, PersistFailureDeleteUpload)
	}

	return cfg, nil
}

// Validate checks the settings that may only be known after ResolveSecrets.
func (c Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.JobStore == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when JOB_STORE=postgres")
	}
	if c.JobStore == "dynamodb" {
		if c.JobsTTSTable == "" {
			return fmt.Errorf("JOBS_TTS_TABLE is required when JOB_STORE=dynamodb")
		}
		if c.JobsCloneTable == "" {
			return fmt.Errorf("JOBS_CLONE_TABLE is required when JOB_STORE=dynamodb")
		}
	}
	return nil
}

// ParameterGetter reads one named secret, e.g. from SSM Parameter Store.
type ParameterGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ResolveSecrets fills secrets the environment left empty from
// <ParamPrefix>/<name>. It is a no-op without a prefix.
func ResolveSecrets(ctx context.Context, cfg Config, params ParameterGetter) (Config, error) {
	if cfg.ParamPrefix == "" || params == nil {
		return cfg, nil
	}
	targets := []struct {
		name string
		dst  *string
	}{
		{"telegram_bot_token", &cfg.TelegramBotToken},
		{"telegram_webhook_secret", &cfg.TelegramWebhookSecret},
		{"database_url", &cfg.DatabaseURL},
	}
	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		v, err := params.GetParameter(ctx, cfg.ParamPrefix+"/"+t.name)
		if err != nil {
			return Config{}, fmt.Errorf("resolve %s: %w", t.name, err)
		}
		*t.dst = trimSpace(v)
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
