package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env variable names (documented for reference)
const (
	envVersion          = "APP_VERSION"
	envLogLevel         = "LOG_LEVEL"
	envTelegramToken    = "TELEGRAM_TOKEN"
	envAIAPIKey         = "AI_API_KEY"
	envAIBaseURL        = "AI_BASE_URL"
	envAIModel          = "AI_MODEL"
	envAIConcurrency    = "AI_CONCURRENCY"
	envAIRateRPS        = "AI_RATE_RPS"
	envAIRateBurst      = "AI_RATE_BURST"
	envDBDriver         = "DB_DRIVER" // "sqlite" or "postgres"
	envDBPath           = "DB_PATH"
	envDBDSN            = "DB_DSN"
	envHistoryLimit     = "HISTORY_LIMIT"
	envHistoryRetention = "HISTORY_RETENTION" // Go duration string, e.g. "720h"
	envFreeDailyLimit   = "FREE_DAILY_LIMIT"
	envMetricsAddr      = "METRICS_ADDR"
)

// Config aggregates all runtime settings required by the application.
// All fields are immutable after MustLoad().
//
// Defaults let the bot start locally with only the two mandatory secrets
// (TELEGRAM_TOKEN, AI_API_KEY) supplied.
//
// NOTE: To keep the service lightweight, we avoid external deps like
// envconfig/viper. Parsing relies solely on the standard library.
//
// AIConcurrency is the single source of truth for the AI request gate
// capacity; every consumer receives the gate built from this value, so there
// is no second default hiding elsewhere in the process.
//
// Critical errors in configuration cause a panic via MustLoad().
type Config struct {
	Version          string        // app semantic version or git SHA
	LogLevel         string        // debug, info, warn, error, fatal (zap levels)
	TelegramToken    string        // Telegram Bot API token
	AIAPIKey         string        // bearer key for the AI provider
	AIBaseURL        string        // chat-completions endpoint base, default OpenAI
	AIModel          string        // model name sent with every request
	AIConcurrency    int           // gate capacity for concurrent AI requests
	AIRateRPS        int           // outbound requests per second, 0 disables
	AIRateBurst      int           // burst size for the outbound limiter
	DBDriver         string        // "sqlite" (default) or "postgres"
	DBPath           string        // SQLite file path
	DBDSN            string        // Postgres DSN, required when DBDriver=postgres
	HistoryLimit     int           // messages of context sent to the tutor
	HistoryRetention time.Duration // how long chat history is kept
	FreeDailyLimit   int           // tutor messages per day for non-premium users
	MetricsAddr      string        // listen address for Prometheus endpoint
}

var (
	defaultVersion          = "dev"
	defaultLogLevel         = "info"
	defaultAIBaseURL        = "https://api.openai.com"
	defaultAIModel          = "gpt-4o-mini"
	defaultAIConcurrency    = 20
	defaultAIRateRPS        = 3
	defaultAIRateBurst      = 6
	defaultDBDriver         = "sqlite"
	defaultDBPath           = "data/pandapal.db"
	defaultHistoryLimit     = 20
	defaultHistoryRetention = 30 * 24 * time.Hour
	defaultFreeDailyLimit   = 30
	defaultMetricsAddr      = ":8080"
)

// MustLoad is a convenience wrapper around Load() that panics on error.
// Preferable in main() early startup where configuration problems are fatal.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads environment variables, applies defaults, validates the result
// and returns a ready-to-use Config instance.
func Load() (Config, error) {
	var cfg Config

	cfg.Version = getEnv(envVersion, defaultVersion)
	cfg.LogLevel = getEnv(envLogLevel, defaultLogLevel)
	cfg.TelegramToken = os.Getenv(envTelegramToken) // required, no default
	cfg.AIAPIKey = os.Getenv(envAIAPIKey)           // required, no default
	cfg.AIBaseURL = getEnv(envAIBaseURL, defaultAIBaseURL)
	cfg.AIModel = getEnv(envAIModel, defaultAIModel)

	var err error
	if cfg.AIConcurrency, err = getEnvInt(envAIConcurrency, defaultAIConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.AIRateRPS, err = getEnvInt(envAIRateRPS, defaultAIRateRPS); err != nil {
		return Config{}, err
	}
	if cfg.AIRateBurst, err = getEnvInt(envAIRateBurst, defaultAIRateBurst); err != nil {
		return Config{}, err
	}

	cfg.DBDriver = getEnv(envDBDriver, defaultDBDriver)
	cfg.DBPath = getEnv(envDBPath, defaultDBPath)
	cfg.DBDSN = os.Getenv(envDBDSN)

	if cfg.HistoryLimit, err = getEnvInt(envHistoryLimit, defaultHistoryLimit); err != nil {
		return Config{}, err
	}
	if s := os.Getenv(envHistoryRetention); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envHistoryRetention, err)
		}
		cfg.HistoryRetention = d
	} else {
		cfg.HistoryRetention = defaultHistoryRetention
	}
	if cfg.FreeDailyLimit, err = getEnvInt(envFreeDailyLimit, defaultFreeDailyLimit); err != nil {
		return Config{}, err
	}
	cfg.MetricsAddr = getEnv(envMetricsAddr, defaultMetricsAddr)

	// Validation
	if cfg.TelegramToken == "" {
		return Config{}, fmt.Errorf("%s is required", envTelegramToken)
	}
	if cfg.AIAPIKey == "" {
		return Config{}, fmt.Errorf("%s is required", envAIAPIKey)
	}
	if cfg.AIConcurrency <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %d", envAIConcurrency, cfg.AIConcurrency)
	}
	switch cfg.DBDriver {
	case "sqlite":
	case "postgres":
		if cfg.DBDSN == "" {
			return Config{}, fmt.Errorf("%s is required when %s=postgres", envDBDSN, envDBDriver)
		}
	default:
		return Config{}, fmt.Errorf("unsupported %s: %q", envDBDriver, cfg.DBDriver)
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envHistoryLimit)
	}
	if cfg.HistoryRetention < time.Hour {
		return Config{}, fmt.Errorf("history retention too small (>=1h)")
	}
	return cfg, nil
}

// getEnv returns the value of the environment variable if set, otherwise def.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt parses an integer environment variable, falling back to def when unset.
func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
