package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SUREBET_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SUREBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.Driver, "SUREBET_DATABASE_DRIVER")
	setStr(&cfg.Database.DSN, "SUREBET_DATABASE_DSN")
	setStr(&cfg.Database.Host, "SUREBET_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SUREBET_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SUREBET_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "SUREBET_DATABASE_USER")
	setStr(&cfg.Database.Password, "SUREBET_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SUREBET_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "SUREBET_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SUREBET_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SUREBET_DATABASE_RUN_MIGRATIONS")
	setStr(&cfg.Database.SQLitePath, "SUREBET_DATABASE_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SUREBET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SUREBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SUREBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SUREBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SUREBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SUREBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SUREBET_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.ExtractionTTL, "SUREBET_REDIS_EXTRACTION_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SUREBET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SUREBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SUREBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "SUREBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SUREBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SUREBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SUREBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SUREBET_S3_FORCE_PATH_STYLE")

	// ── Extractor ──
	setStr(&cfg.Extractor.Provider, "SUREBET_EXTRACTOR_PROVIDER")
	setStr(&cfg.Extractor.APIKey, "SUREBET_EXTRACTOR_API_KEY")
	setStr(&cfg.Extractor.BaseURL, "SUREBET_EXTRACTOR_BASE_URL")
	setStr(&cfg.Extractor.Model, "SUREBET_EXTRACTOR_MODEL")
	setInt(&cfg.Extractor.MaxTokens, "SUREBET_EXTRACTOR_MAX_TOKENS")
	setDuration(&cfg.Extractor.Timeout, "SUREBET_EXTRACTOR_TIMEOUT")

	// ── Events ──
	setStr(&cfg.Events.Sink, "SUREBET_EVENTS_SINK")
	setStr(&cfg.Events.Channel, "SUREBET_EVENTS_CHANNEL")
	setStringSlice(&cfg.Events.KafkaBrokers, "SUREBET_EVENTS_KAFKA_BROKERS")
	setStr(&cfg.Events.KafkaTopic, "SUREBET_EVENTS_KAFKA_TOPIC")

	// ── Server ──
	setInt(&cfg.Server.Port, "SUREBET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SUREBET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SUREBET_SERVER_API_KEY")
	setInt(&cfg.Server.MaxUploadMB, "SUREBET_SERVER_MAX_UPLOAD_MB")
	setInt(&cfg.Server.OCRRateLimit, "SUREBET_SERVER_OCR_RATE_LIMIT")
	setDuration(&cfg.Server.OCRRateWindow, "SUREBET_SERVER_OCR_RATE_WINDOW")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SUREBET_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SUREBET_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SUREBET_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.LockTTL, "SUREBET_ARCHIVE_LOCK_TTL")

	// ── Settlement ──
	setBool(&cfg.Settlement.AllowReset, "SUREBET_SETTLEMENT_ALLOW_RESET")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SUREBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SUREBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SUREBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SUREBET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SUREBET_MODE")
	setStr(&cfg.LogLevel, "SUREBET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
