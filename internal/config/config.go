// Package config loads the application configuration from environment
// variables and an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Config holds the application's configuration values.
type Config struct {
	ServerPort string
	LogLevel   slog.Level
	LogFormat  string

	Database DBConfig

	GitLabBaseURL       string
	GitLabToken         string
	GitLabWebhookSecret string
	ResultCallbackToken string
	BotAccountID        int64
	TriggerLabel        string
	CommitStatusName    string

	MaxWorkers    int
	SnowflakeNode int64

	OutboxEnabled    bool
	OutboxShadowMode bool

	MemoryEnabled        bool
	MemoryReviewLearning bool
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "glpilot")
	viper.SetDefault("DB_NAME", "glpilot")
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	viper.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")
	viper.SetDefault("GITLAB_BASE_URL", "https://gitlab.com")
	viper.SetDefault("TRIGGER_LABEL", "ai::develop")
	viper.SetDefault("COMMIT_STATUS_NAME", "glpilot/review")
	viper.SetDefault("MAX_WORKERS", 5)
	viper.SetDefault("SNOWFLAKE_NODE", 1)
	viper.SetDefault("OUTBOX_ENABLED", false)
	viper.SetDefault("OUTBOX_SHADOW_MODE", false)
	viper.SetDefault("MEMORY_ENABLED", false)
	viper.SetDefault("MEMORY_REVIEW_LEARNING", false)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", "error", err)
		}
	}

	if viper.GetString("GITLAB_TOKEN") == "" {
		return nil, fmt.Errorf("GITLAB_TOKEN must be set")
	}
	if viper.GetString("GITLAB_WEBHOOK_SECRET") == "" {
		return nil, fmt.Errorf("GITLAB_WEBHOOK_SECRET must be set")
	}

	// Parse the log level string into a slog.Level type.
	var logLevel slog.Level
	logLevelStr := strings.ToLower(viper.GetString("LOG_LEVEL"))
	switch logLevelStr {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	case "info":
		logLevel = slog.LevelInfo
	default:
		slog.Warn("unrecognized log level, defaulting to info", "provided", logLevelStr)
		logLevel = slog.LevelInfo
	}

	return &Config{
		ServerPort: viper.GetString("SERVER_PORT"),
		LogLevel:   logLevel,
		LogFormat:  viper.GetString("LOG_FORMAT"),
		Database: DBConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			Username:        viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			ConnMaxLifetime: viper.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: viper.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		GitLabBaseURL:        viper.GetString("GITLAB_BASE_URL"),
		GitLabToken:          viper.GetString("GITLAB_TOKEN"),
		GitLabWebhookSecret:  viper.GetString("GITLAB_WEBHOOK_SECRET"),
		ResultCallbackToken:  viper.GetString("RESULT_CALLBACK_TOKEN"),
		BotAccountID:         viper.GetInt64("BOT_ACCOUNT_ID"),
		TriggerLabel:         viper.GetString("TRIGGER_LABEL"),
		CommitStatusName:     viper.GetString("COMMIT_STATUS_NAME"),
		MaxWorkers:           viper.GetInt("MAX_WORKERS"),
		SnowflakeNode:        viper.GetInt64("SNOWFLAKE_NODE"),
		OutboxEnabled:        viper.GetBool("OUTBOX_ENABLED"),
		OutboxShadowMode:     viper.GetBool("OUTBOX_SHADOW_MODE"),
		MemoryEnabled:        viper.GetBool("MEMORY_ENABLED"),
		MemoryReviewLearning: viper.GetBool("MEMORY_REVIEW_LEARNING"),
	}, nil
}
