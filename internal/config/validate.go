package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"time"
)

func Validate(cfg *Config) error {
	var errs []error

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if cfg.Server.PublicURL != "" {
		if _, err := url.Parse(cfg.Server.PublicURL); err != nil {
			errs = append(errs, fmt.Errorf("server.public_url is not a valid URL: %w", err))
		}
	}

	for i, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.allowed_origins[%d] %q is not a valid URL with scheme", i, origin))
		}
	}

	// TLS validation
	switch cfg.Server.TLS.Mode {
	case "", "off":
	case "auto":
		if cfg.Server.TLS.Auto.Domain == "" {
			errs = append(errs, fmt.Errorf("server.tls.auto.domain is required when tls mode is auto"))
		}
		if cfg.Server.TLS.Auto.CacheDir == "" {
			errs = append(errs, fmt.Errorf("server.tls.auto.cache_dir is required when tls mode is auto"))
		}
	case "manual":
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, fmt.Errorf("server.tls.cert_file is required when tls mode is manual"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, fmt.Errorf("server.tls.key_file is required when tls mode is manual"))
		}
	default:
		errs = append(errs, fmt.Errorf("server.tls.mode must be off, auto, or manual"))
	}

	if cfg.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}

	// SSE validation
	if cfg.SSE.HeartbeatInterval < time.Second {
		errs = append(errs, fmt.Errorf("sse.heartbeat_interval must be at least 1s"))
	}
	if cfg.SSE.ClientBufferSize < 1 {
		errs = append(errs, fmt.Errorf("sse.client_buffer_size must be at least 1"))
	}
	if cfg.SSE.EventRetention < 0 {
		errs = append(errs, fmt.Errorf("sse.event_retention must not be negative"))
	}
	if cfg.SSE.EventRetention > 0 && cfg.SSE.CleanupInterval < time.Minute {
		errs = append(errs, fmt.Errorf("sse.cleanup_interval must be at least 1m when event retention is set"))
	}

	// Bus validation
	switch cfg.Bus.Driver {
	case "memory":
	case "nats":
		if cfg.Bus.NATSURL == "" {
			errs = append(errs, fmt.Errorf("bus.nats_url is required when bus driver is nats"))
		}
	case "redis":
		if cfg.Bus.RedisURL == "" {
			errs = append(errs, fmt.Errorf("bus.redis_url is required when bus driver is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("bus.driver must be memory, nats, or redis"))
	}
	if cfg.Bus.Driver != "memory" && cfg.Bus.Subject == "" {
		errs = append(errs, fmt.Errorf("bus.subject is required when bus driver is %s", cfg.Bus.Driver))
	}

	// Client validation
	if cfg.Client.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("client.max_attempts must not be negative"))
	}
	if cfg.Client.InitialDelay <= 0 {
		errs = append(errs, fmt.Errorf("client.initial_delay must be positive"))
	}
	if cfg.Client.MaxDelay < cfg.Client.InitialDelay {
		errs = append(errs, fmt.Errorf("client.max_delay must be at least client.initial_delay"))
	}
	if cfg.Client.MaxNotifications < 1 {
		errs = append(errs, fmt.Errorf("client.max_notifications must be at least 1"))
	}

	// Email validation (only if enabled)
	if cfg.Email.Enabled {
		if cfg.Email.Host == "" {
			errs = append(errs, fmt.Errorf("email.host is required when email is enabled"))
		}
		if cfg.Email.From == "" {
			errs = append(errs, fmt.Errorf("email.from is required when email is enabled"))
		}
		if cfg.Email.Port < 1 || cfg.Email.Port > 65535 {
			errs = append(errs, fmt.Errorf("email.port must be between 1 and 65535"))
		}
		for i, rcpt := range cfg.Email.AlertRecipients {
			if _, err := mail.ParseAddress(rcpt); err != nil {
				errs = append(errs, fmt.Errorf("email.alert_recipients[%d] %q is not a valid address", i, rcpt))
			}
		}
	}

	// Rate limit validation (only when enabled)
	if cfg.RateLimit.Enabled {
		for _, ep := range []struct {
			name string
			cfg  RateLimitEndpoint
		}{
			{"rate_limit.publish", cfg.RateLimit.Publish},
			{"rate_limit.stream", cfg.RateLimit.Stream},
		} {
			if ep.cfg.Limit < 1 {
				errs = append(errs, fmt.Errorf("%s.limit must be at least 1", ep.name))
			}
			if ep.cfg.Window < time.Second {
				errs = append(errs, fmt.Errorf("%s.window must be at least 1s", ep.name))
			}
		}
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Endpoint == "" {
			errs = append(errs, fmt.Errorf("telemetry.endpoint is required when telemetry is enabled"))
		}
		if cfg.Telemetry.Protocol != "grpc" && cfg.Telemetry.Protocol != "http" {
			errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http"))
		}
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error"))
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
