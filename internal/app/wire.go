package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/surebet/internal/blob/s3"
	"github.com/alanyoungcy/surebet/internal/cache/redis"
	"github.com/alanyoungcy/surebet/internal/config"
	"github.com/alanyoungcy/surebet/internal/domain"
	"github.com/alanyoungcy/surebet/internal/extract"
	"github.com/alanyoungcy/surebet/internal/notify"
	"github.com/alanyoungcy/surebet/internal/queue/kafka"
	"github.com/alanyoungcy/surebet/internal/server/handler"
	"github.com/alanyoungcy/surebet/internal/service"
	"github.com/alanyoungcy/surebet/internal/store/postgres"
	"github.com/alanyoungcy/surebet/internal/store/sqlite"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional backends are nil when disabled.
type Dependencies struct {
	// Stores
	BetStore   domain.BetStore
	AuditStore domain.AuditStore

	// Redis
	RateLimiter     domain.RateLimiter
	LockManager     domain.LockManager
	SignalBus       domain.SignalBus
	ExtractionCache domain.ExtractionCache

	// Blob storage
	BlobWriter domain.BlobWriter
	Slips      service.SlipStore
	Archiver   domain.Archiver

	Extractor domain.Extractor

	// Events fans bet events out to the configured sink and the notifier.
	// The websocket hub is attached by the server modes.
	Events   service.Fanout
	Notifier *notify.Notifier

	// Checks feeds the health endpoint, keyed by component name.
	Checks map[string]handler.Check
}

// slipArchive joins the S3 writer and reader into a service.SlipStore.
type slipArchive struct {
	*s3blob.Writer
	*s3blob.Reader
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Bet store ---
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.BetStore = sqlite.NewBetStore(db)
		deps.AuditStore = sqlite.NewAuditStore(db)
		deps.Checks["database"] = db.Ping
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.BetStore = postgres.NewBetStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["database"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.ExtractionCache = redis.NewExtractionCache(redisClient, cfg.Redis.ExtractionTTL.Duration)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled || cfg.Archive.Enabled || cfg.Mode == "archive" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobWriter = writer
		deps.Slips = slipArchive{Writer: writer, Reader: reader}
		deps.Archiver = s3blob.NewArchiver(writer, deps.BetStore, deps.AuditStore)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Slip extractor ---
	switch cfg.Extractor.Provider {
	case "openai":
		ex, err := extract.NewVisionExtractor(extract.Config{
			APIKey:    cfg.Extractor.APIKey,
			BaseURL:   cfg.Extractor.BaseURL,
			Model:     cfg.Extractor.Model,
			MaxTokens: cfg.Extractor.MaxTokens,
			Timeout:   cfg.Extractor.Timeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: extractor: %w", err)
		}
		deps.Extractor = ex
	default:
		deps.Extractor = extract.NewManual()
	}

	// --- Event sink ---
	switch cfg.Events.Sink {
	case "redis":
		if deps.SignalBus != nil {
			deps.Events = append(deps.Events, redis.NewEventPublisher(deps.SignalBus, cfg.Events.Channel))
		}
	case "kafka":
		pub, err := kafka.NewPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: kafka: %w", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Events = append(deps.Events, pub)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if deps.Notifier.Enabled() {
		deps.Events = append(deps.Events, deps.Notifier)
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("database", cfg.Database.Driver),
		slog.Bool("redis", deps.SignalBus != nil),
		slog.Bool("s3", deps.BlobWriter != nil),
		slog.String("extractor", deps.Extractor.Name()),
		slog.String("events", cfg.Events.Sink),
		slog.Int("notify_senders", len(senders)),
	)

	return deps, cleanup, nil
}
