package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const EnvPrefix = "TRUSTTAI_"

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"server.allowed_origins":  true,
	"email.alert_recipients": true,
}

func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	defaults := defaultsProvider(Defaults())
	if err := k.Load(defaults, nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// 2. Load from config file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	} else {
		for _, path := range []string{"config.yaml", "config.yml"} {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("loading config file: %w", err)
				}
				break
			}
		}
	}

	// 3. Load from environment variables (TRUSTTAI_ prefix)
	known := envKeyIndex(k.Keys())
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		path, ok := known[strings.ToLower(strings.TrimPrefix(key, EnvPrefix))]
		if !ok {
			return "", nil
		}
		if listKeys[path] {
			return path, splitList(value)
		}
		return path, value
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// 4. Load from CLI flags
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envKeyIndex maps the underscore form of every known key to its dotted
// path, so TRUSTTAI_SSE_HEARTBEAT_INTERVAL resolves to sse.heartbeat_interval
// rather than sse.heartbeat.interval.
func envKeyIndex(keys []string) map[string]string {
	idx := make(map[string]string, len(keys))
	for _, key := range keys {
		idx[strings.ReplaceAll(key, ".", "_")] = key
	}
	return idx
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type defaultsProviderStruct struct {
	defaults *Config
}

func defaultsProvider(defaults *Config) *defaultsProviderStruct {
	return &defaultsProviderStruct{defaults: defaults}
}

func (d *defaultsProviderStruct) ReadBytes() ([]byte, error) {
	return nil, nil
}

func (d *defaultsProviderStruct) Read() (map[string]interface{}, error) {
	c := d.defaults
	return map[string]interface{}{
		"server": map[string]interface{}{
			"host":            c.Server.Host,
			"port":            c.Server.Port,
			"public_url":      c.Server.PublicURL,
			"allowed_origins": c.Server.AllowedOrigins,
			"h2c":             c.Server.H2C,
			"tls": map[string]interface{}{
				"mode":      c.Server.TLS.Mode,
				"cert_file": c.Server.TLS.CertFile,
				"key_file":  c.Server.TLS.KeyFile,
				"auto": map[string]interface{}{
					"domain":    c.Server.TLS.Auto.Domain,
					"email":     c.Server.TLS.Auto.Email,
					"cache_dir": c.Server.TLS.Auto.CacheDir,
				},
			},
		},
		"database": map[string]interface{}{
			"path": c.Database.Path,
		},
		"sse": map[string]interface{}{
			"heartbeat_interval": c.SSE.HeartbeatInterval.String(),
			"client_buffer_size": c.SSE.ClientBufferSize,
			"event_retention":    c.SSE.EventRetention.String(),
			"cleanup_interval":   c.SSE.CleanupInterval.String(),
		},
		"bus": map[string]interface{}{
			"driver":    c.Bus.Driver,
			"nats_url":  c.Bus.NATSURL,
			"redis_url": c.Bus.RedisURL,
			"subject":   c.Bus.Subject,
		},
		"client": map[string]interface{}{
			"url":               c.Client.URL,
			"admin_id":          c.Client.AdminID,
			"max_attempts":      c.Client.MaxAttempts,
			"initial_delay":     c.Client.InitialDelay.String(),
			"max_delay":         c.Client.MaxDelay.String(),
			"max_notifications": c.Client.MaxNotifications,
			"idle_timeout":      c.Client.IdleTimeout.String(),
		},
		"email": map[string]interface{}{
			"enabled":          c.Email.Enabled,
			"host":             c.Email.Host,
			"port":             c.Email.Port,
			"username":         c.Email.Username,
			"password":         c.Email.Password,
			"from":             c.Email.From,
			"alert_recipients": c.Email.AlertRecipients,
		},
		"rate_limit": map[string]interface{}{
			"enabled": c.RateLimit.Enabled,
			"publish": map[string]interface{}{
				"limit":  c.RateLimit.Publish.Limit,
				"window": c.RateLimit.Publish.Window.String(),
			},
			"stream": map[string]interface{}{
				"limit":  c.RateLimit.Stream.Limit,
				"window": c.RateLimit.Stream.Window.String(),
			},
		},
		"telemetry": map[string]interface{}{
			"enabled":      c.Telemetry.Enabled,
			"endpoint":     c.Telemetry.Endpoint,
			"protocol":     c.Telemetry.Protocol,
			"service_name": c.Telemetry.ServiceName,
		},
		"log": map[string]interface{}{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}, nil
}

func SetupFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("trusttai", pflag.ContinueOnError)
	flags.String("config", "", "Path to config file")
	flags.String("server.host", "", "Server host")
	flags.Int("server.port", 0, "Server port")
	flags.String("server.public_url", "", "Public URL")
	flags.StringSlice("server.allowed_origins", nil, "Allowed CORS origins")
	flags.Bool("server.h2c", false, "Serve HTTP/2 over cleartext")
	flags.String("server.tls.mode", "", "TLS mode: off, auto, or manual")
	flags.String("server.tls.cert_file", "", "TLS certificate file (manual mode)")
	flags.String("server.tls.key_file", "", "TLS key file (manual mode)")
	flags.String("server.tls.auto.domain", "", "Domain for automatic TLS (auto mode)")
	flags.String("server.tls.auto.email", "", "Contact email for Let's Encrypt (auto mode)")
	flags.String("server.tls.auto.cache_dir", "", "Certificate cache directory (auto mode)")
	flags.String("database.path", "", "Database path")
	flags.Duration("sse.heartbeat_interval", 0, "Interval between heartbeat frames")
	flags.String("bus.driver", "", "Event bus driver: memory, nats, or redis")
	flags.String("bus.nats_url", "", "NATS server URL")
	flags.String("bus.redis_url", "", "Redis URL")
	flags.String("client.url", "", "Event stream URL (watch)")
	flags.String("client.admin_id", "", "Admin identifier (watch)")
	flags.Bool("email.enabled", false, "Enable alert emails")
	flags.Bool("telemetry.enabled", false, "Export traces, metrics and logs over OTLP")
	flags.String("telemetry.endpoint", "", "OTLP collector endpoint")
	flags.String("log.level", "", "Log level: debug, info, warn, error")
	flags.String("log.format", "", "Log format: text or json")
	return flags
}
