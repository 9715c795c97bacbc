package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/trusttai/api/internal/bus"
	"github.com/trusttai/api/internal/config"
	"github.com/trusttai/api/internal/database"
	"github.com/trusttai/api/internal/dispatch"
	"github.com/trusttai/api/internal/email"
	"github.com/trusttai/api/internal/eventlog"
	"github.com/trusttai/api/internal/handler"
	"github.com/trusttai/api/internal/ratelimit"
	"github.com/trusttai/api/internal/server"
	"github.com/trusttai/api/internal/sse"
	"github.com/trusttai/api/internal/telemetry"
)

const (
	shutdownTimeout        = 30 * time.Second
	rateLimitCleanupPeriod = 10 * time.Minute
)

type App struct {
	Config       *config.Config
	DB           *database.DB
	Server       *server.Server
	Hub          *sse.Hub
	Bus          bus.Bus
	Dispatcher   *dispatch.Dispatcher
	EventLog     *eventlog.Repository
	EmailService *email.Service
	RateLimiter  *ratelimit.Limiter
}

func New(ctx context.Context, cfg *config.Config, tracing bool) (*App, error) {
	// Open database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := db.MigrateContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Normalize publicURL to avoid double slashes in constructed URLs
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")

	emailService, err := email.NewService(cfg.Email, cfg.Server.PublicURL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	eventLog := eventlog.NewRepository(db.DB)

	b, err := bus.New(ctx, bus.Options{
		Driver:   cfg.Bus.Driver,
		NATSURL:  cfg.Bus.NATSURL,
		RedisURL: cfg.Bus.RedisURL,
		Subject:  cfg.Bus.Subject,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting event bus: %w", err)
	}

	// Instruments resolve against the global provider, which is a no-op
	// unless telemetry was set up.
	metrics, err := telemetry.NewStreamMetrics(otel.GetMeterProvider())
	if err != nil {
		_ = b.Close()
		_ = db.Close()
		return nil, err
	}
	hub := sse.NewHub(metrics)

	dispatcher := dispatch.New(dispatch.Options{
		Publisher: b,
		Recorder:  eventLog,
		Alerter:   emailService,
	})

	sseHandler := sse.NewHandler(hub, sse.HandlerOptions{
		HeartbeatInterval: cfg.SSE.HeartbeatInterval,
		ClientBufferSize:  cfg.SSE.ClientBufferSize,
		Metrics:           metrics,
	})

	h := handler.New(handler.Dependencies{
		Dispatcher: dispatcher,
		Events:     eventLog,
		Hub:        hub,
	})

	// Build rate limiter (nil if disabled)
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter([]ratelimit.Rule{
			{Method: "POST", Path: server.EventsPath, Limit: cfg.RateLimit.Publish.Limit, Window: cfg.RateLimit.Publish.Window},
			{Method: "GET", Path: server.StreamPath, Limit: cfg.RateLimit.Stream.Limit, Window: cfg.RateLimit.Stream.Window},
		})
	}

	router := server.NewRouter(server.RouterOptions{
		Handler:        h,
		Stream:         sseHandler,
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Healthy:        func() bool { return bus.Connected(b) },
		Tracing:        tracing,
	})

	tlsOpts := server.TLSOptions{
		Mode:     cfg.Server.TLS.Mode,
		CertFile: cfg.Server.TLS.CertFile,
		KeyFile:  cfg.Server.TLS.KeyFile,
		Domain:   cfg.Server.TLS.Auto.Domain,
		Email:    cfg.Server.TLS.Auto.Email,
		CacheDir: cfg.Server.TLS.Auto.CacheDir,
	}
	if tlsOpts.Mode == "auto" {
		if err := os.MkdirAll(tlsOpts.CacheDir, 0700); err != nil {
			_ = b.Close()
			_ = db.Close()
			return nil, fmt.Errorf("creating TLS cache directory: %w", err)
		}
	}

	srv := server.New(server.Options{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		TLS:  tlsOpts,
		H2C:  cfg.Server.H2C,
	}, router)

	return &App{
		Config:       cfg,
		DB:           db,
		Server:       srv,
		Hub:          hub,
		Bus:          b,
		Dispatcher:   dispatcher,
		EventLog:     eventLog,
		EmailService: emailService,
		RateLimiter:  limiter,
	}, nil
}

// Run serves until ctx is cancelled or a component fails, then shuts the
// server down. Cancelling ctx stops the hub first, which ends every open
// stream so the server can drain.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Hub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		if err := a.Bus.Subscribe(ctx, dispatch.Deliver(a.Hub)); err != nil {
			return fmt.Errorf("event bus subscription: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.Dispatcher.RunAlerts(ctx)
		return nil
	})

	g.Go(func() error {
		every(ctx, a.Config.SSE.CleanupInterval, a.pruneEventLog)
		return nil
	})

	if a.RateLimiter != nil {
		g.Go(func() error {
			every(ctx, rateLimitCleanupPeriod, func(context.Context) { a.RateLimiter.Cleanup() })
			return nil
		})
	}

	g.Go(func() error {
		return a.Server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	})

	slog.Info("starting trusttai backend",
		"addr", a.Server.Addr(),
		"database", a.Config.Database.Path,
		"bus", a.Config.Bus.Driver,
		"tls", a.Server.TLSMode(),
		"email", a.EmailService.IsEnabled(),
		"public_url", a.EmailService.GetPublicURL(),
	)

	return g.Wait()
}

func (a *App) pruneEventLog(ctx context.Context) {
	cutoff := time.Now().Add(-a.Config.SSE.EventRetention)
	n, err := a.EventLog.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("failed to prune event log", "component", "app", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Info("pruned event log", "component", "app", "deleted", n, "cutoff", cutoff)
	}
}

// Close releases the bus and the database. Call it after Run returns.
func (a *App) Close() error {
	return errors.Join(a.Bus.Close(), a.DB.Close())
}

func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
