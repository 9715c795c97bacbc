package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trusttai/api/internal/app"
	"github.com/trusttai/api/internal/config"
	"github.com/trusttai/api/internal/logging"
	"github.com/trusttai/api/internal/notification"
	"github.com/trusttai/api/internal/telemetry"
	"github.com/trusttai/api/internal/watch"
)

func main() {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 && (args[0] == "serve" || args[0] == "watch") {
		command, args = args[0], args[1:]
	}

	// Setup CLI flags
	flags := config.SetupFlags()
	if err := flags.Parse(args); err != nil {
		slog.Error("error parsing flags", "error", err)
		os.Exit(1)
	}

	configPath, _ := flags.GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		slog.Error("error loading config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("error setting up telemetry", "error", err)
		os.Exit(1)
	}
	if h := tp.LogHandler(); h != nil {
		logging.Setup(cfg.Log, h)
	} else {
		logging.Setup(cfg.Log)
	}

	switch command {
	case "watch":
		err = runWatch(ctx, cfg, tp.Enabled())
	default:
		err = runServe(ctx, cfg, tp.Enabled())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := tp.Shutdown(shutdownCtx); serr != nil {
		slog.Error("error flushing telemetry", "error", serr)
	}

	if err != nil {
		slog.Error(command+" failed", "error", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg *config.Config, tracing bool) error {
	application, err := app.New(ctx, cfg, tracing)
	if err != nil {
		return fmt.Errorf("creating application: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			slog.Error("error closing application", "error", err)
		}
	}()

	if err := application.Run(ctx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// runWatch follows the admin event stream and prints each notification until
// interrupted.
func runWatch(ctx context.Context, cfg *config.Config, tracing bool) error {
	if cfg.Client.AdminID == "" {
		return fmt.Errorf("client.admin_id is required")
	}

	transport := http.DefaultTransport
	if tracing {
		transport = otelhttp.NewTransport(transport)
	}

	store := notification.NewStore(cfg.Client.MaxNotifications)
	printer := watch.NewPrinter(os.Stdout, store)

	manager := notification.NewConnectionManager(notification.Options{
		Dialer: &notification.HTTPDialer{
			URL:     cfg.Client.URL,
			AdminID: cfg.Client.AdminID,
			Client:  &http.Client{Transport: transport},
		},
		Store:          store,
		MaxAttempts:    cfg.Client.MaxAttempts,
		InitialDelay:   cfg.Client.InitialDelay,
		MaxDelay:       cfg.Client.MaxDelay,
		IdleTimeout:    cfg.Client.IdleTimeout,
		OnStateChange:  printer.State,
		OnNotification: printer.Notification,
	})

	manager.Start()
	<-ctx.Done()
	manager.Stop()

	slog.Info("watch stopped", "received", len(store.Notifications()), "unread", store.UnreadCount())
	return nil
}
