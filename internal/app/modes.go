package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/surebet/internal/pipeline"
	"github.com/alanyoungcy/surebet/internal/server"
	"github.com/alanyoungcy/surebet/internal/server/handler"
	"github.com/alanyoungcy/surebet/internal/server/ws"
	"github.com/alanyoungcy/surebet/internal/service"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 5 * time.Second

// ServerMode serves the HTTP API and websocket stream until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the server plus the periodic archive job.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		archiver := a.newArchiver(deps)
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "archive job disabled")
	}

	return g.Wait()
}

// ArchiveMode performs a single archive run and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 storage")
	}
	n, err := a.newArchiver(deps).RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	a.logger.InfoContext(ctx, "archive mode finished", slog.Int64("pairs_archived", n))
	return nil
}

func (a *App) newArchiver(deps *Dependencies) *pipeline.Archiver {
	return pipeline.NewArchiver(deps.Archiver, deps.LockManager, pipeline.ArchiveConfig{
		RetentionDays: a.cfg.Archive.RetentionDays,
		Interval:      a.cfg.Archive.Interval.Duration,
		LockTTL:       a.cfg.Archive.LockTTL.Duration,
	}, a.logger)
}

// startHTTPServer builds the services, the websocket hub and the HTTP server
// and registers their goroutines on g. With the redis sink the hub follows
// the bus channel so every instance sees every event; otherwise it receives
// events in-process.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      a.startedAt,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	events := deps.Events
	if a.cfg.Events.Sink == "redis" && deps.SignalBus != nil {
		g.Go(func() error {
			return hub.Relay(ctx, deps.SignalBus, a.cfg.Events.Channel)
		})
	} else {
		events = append(events, hub)
	}

	betSvc := service.NewBetService(deps.BetStore, deps.AuditStore, events,
		service.BetConfig{AllowReset: a.cfg.Settlement.AllowReset}, a.logger)
	slipSvc := service.NewSlipService(deps.Extractor, deps.ExtractionCache, deps.Slips, a.logger)

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		OCRRateLimit:  a.cfg.Server.OCRRateLimit,
		OCRRateWindow: a.cfg.Server.OCRRateWindow.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Bets:   handler.NewBetHandler(betSvc, a.logger),
		OCR:    handler.NewOCRHandler(slipSvc, a.cfg.MaxUploadBytes(), a.logger),
		Hub:    hub,
	}, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
