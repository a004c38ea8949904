// Package config defines the top-level configuration for the surebet tracker
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SUREBET_* environment variables.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Extractor  ExtractorConfig  `toml:"extractor"`
	Events     EventsConfig     `toml:"events"`
	Server     ServerConfig     `toml:"server"`
	Archive    ArchiveConfig    `toml:"archive"`
	Settlement SettlementConfig `toml:"settlement"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// DatabaseConfig selects and configures the bet store. Driver "postgres" uses
// the connection fields; "sqlite" uses SQLitePath.
type DatabaseConfig struct {
	Driver        string `toml:"driver"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	SQLitePath    string `toml:"sqlite_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled       bool     `toml:"enabled"`
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	ExtractionTTL duration `toml:"extraction_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ExtractorConfig configures the bet-slip reader. Provider "openai" talks to
// any OpenAI-compatible vision endpoint; "none" disables extraction.
type ExtractorConfig struct {
	Provider  string   `toml:"provider"`
	APIKey    string   `toml:"api_key"`
	BaseURL   string   `toml:"base_url"`
	Model     string   `toml:"model"`
	MaxTokens int      `toml:"max_tokens"`
	Timeout   duration `toml:"timeout"`
}

// EventsConfig selects where bet events are published: "redis", "kafka" or
// "none".
type EventsConfig struct {
	Sink         string   `toml:"sink"`
	Channel      string   `toml:"channel"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	APIKey        string   `toml:"api_key"`
	MaxUploadMB   int      `toml:"max_upload_mb"`
	OCRRateLimit  int      `toml:"ocr_rate_limit"`
	OCRRateWindow duration `toml:"ocr_rate_window"`
}

// ArchiveConfig controls copying settled pairs to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	LockTTL       duration `toml:"lock_ttl"`
}

// SettlementConfig holds status-change policy.
type SettlementConfig struct {
	// AllowReset permits moving a resolved leg back to pending.
	AllowReset bool `toml:"allow_reset"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:        "postgres",
			Host:          "localhost",
			Port:          5432,
			Database:      "surebet",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
			SQLitePath:    "surebet.db",
		},
		Redis: RedisConfig{
			Enabled:       true,
			Addr:          "localhost:6379",
			PoolSize:      10,
			MaxRetries:    3,
			ExtractionTTL: duration{24 * time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "surebet",
			ForcePathStyle: true,
		},
		Extractor: ExtractorConfig{
			Provider:  "none",
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
			Timeout:   duration{60 * time.Second},
		},
		Events: EventsConfig{
			Sink:       "redis",
			Channel:    "bets",
			KafkaTopic: "surebet.bets",
		},
		Server: ServerConfig{
			Port:          3001,
			CORSOrigins:   []string{"http://localhost:3000"},
			MaxUploadMB:   10,
			OCRRateLimit:  20,
			OCRRateWindow: duration{time.Minute},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			LockTTL:       duration{10 * time.Minute},
		},
		Settlement: SettlementConfig{
			AllowReset: true,
		},
		Notify: NotifyConfig{
			Events: []string{"pair_created", "bet_settled", "error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"full":    true,
	"archive": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// single error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, full, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	switch c.Database.Driver {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must be between 0 and pool_max_conns")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, "database: sqlite_path must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("database: unknown driver %q (valid: postgres, sqlite)", c.Database.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled || c.Archive.Enabled || c.Mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Extractor
	switch c.Extractor.Provider {
	case "none":
	case "openai":
		if c.Extractor.APIKey == "" {
			errs = append(errs, "extractor: api_key is required for provider openai")
		}
		if c.Extractor.Model == "" {
			errs = append(errs, "extractor: model must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("extractor: unknown provider %q (valid: openai, none)", c.Extractor.Provider))
	}

	// Events
	switch c.Events.Sink {
	case "none":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "events: sink redis requires redis.enabled")
		}
		if c.Events.Channel == "" {
			errs = append(errs, "events: channel must not be empty")
		}
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			errs = append(errs, "events: kafka_brokers must not be empty for sink kafka")
		}
		if c.Events.KafkaTopic == "" {
			errs = append(errs, "events: kafka_topic must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("events: unknown sink %q (valid: redis, kafka, none)", c.Events.Sink))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.MaxUploadMB < 1 {
		errs = append(errs, "server: max_upload_mb must be >= 1")
	}
	if c.Server.OCRRateLimit < 0 {
		errs = append(errs, "server: ocr_rate_limit must be >= 0")
	}

	// Archive
	if c.Archive.Enabled || c.Mode == "archive" {
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
		if c.Archive.LockTTL.Duration <= 0 {
			errs = append(errs, "archive: lock_ttl must be > 0")
		}
	}
	if c.Archive.Enabled && c.Archive.Interval.Duration <= 0 {
		errs = append(errs, "archive: interval must be > 0 when enabled")
	}

	// Notify
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}
