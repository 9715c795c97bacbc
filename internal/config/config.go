package config

import "time"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	SSE       SSEConfig       `koanf:"sse"`
	Bus       BusConfig       `koanf:"bus"`
	Client    ClientConfig    `koanf:"client"`
	Email     EmailConfig     `koanf:"email"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Host           string    `koanf:"host"`
	Port           int       `koanf:"port"`
	PublicURL      string    `koanf:"public_url"`
	AllowedOrigins []string  `koanf:"allowed_origins"`
	H2C            bool      `koanf:"h2c"`
	TLS            TLSConfig `koanf:"tls"`
}

type TLSConfig struct {
	Mode     string        `koanf:"mode"`
	CertFile string        `koanf:"cert_file"`
	KeyFile  string        `koanf:"key_file"`
	Auto     AutoTLSConfig `koanf:"auto"`
}

type AutoTLSConfig struct {
	Domain   string `koanf:"domain"`
	Email    string `koanf:"email"`
	CacheDir string `koanf:"cache_dir"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type SSEConfig struct {
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	ClientBufferSize  int           `koanf:"client_buffer_size"`
	EventRetention    time.Duration `koanf:"event_retention"`
	CleanupInterval   time.Duration `koanf:"cleanup_interval"`
}

// BusConfig selects where domain events come from. With the memory driver the
// publish endpoint dispatches in-process; nats and redis fan out through the
// broker so every instance's streams see every event.
type BusConfig struct {
	Driver   string `koanf:"driver"`
	NATSURL  string `koanf:"nats_url"`
	RedisURL string `koanf:"redis_url"`
	Subject  string `koanf:"subject"`
}

// ClientConfig configures the notification client used by the watch command.
type ClientConfig struct {
	URL              string        `koanf:"url"`
	AdminID          string        `koanf:"admin_id"`
	MaxAttempts      int           `koanf:"max_attempts"`
	InitialDelay     time.Duration `koanf:"initial_delay"`
	MaxDelay         time.Duration `koanf:"max_delay"`
	MaxNotifications int           `koanf:"max_notifications"`
	IdleTimeout      time.Duration `koanf:"idle_timeout"`
}

type EmailConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	Username        string   `koanf:"username"`
	Password        string   `koanf:"password"`
	From            string   `koanf:"from"`
	AlertRecipients []string `koanf:"alert_recipients"`
}

type RateLimitConfig struct {
	Enabled bool              `koanf:"enabled"`
	Publish RateLimitEndpoint `koanf:"publish"`
	Stream  RateLimitEndpoint `koanf:"stream"`
}

type RateLimitEndpoint struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	ServiceName string `koanf:"service_name"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			PublicURL:      "http://localhost:8080",
			AllowedOrigins: []string{"*"},
			TLS: TLSConfig{
				Mode: "off",
				Auto: AutoTLSConfig{
					CacheDir: "./data/certs",
				},
			},
		},
		Database: DatabaseConfig{
			Path: "./data/trusttai.db",
		},
		SSE: SSEConfig{
			HeartbeatInterval: 30 * time.Second,
			ClientBufferSize:  256,
			EventRetention:    24 * time.Hour,
			CleanupInterval:   time.Hour,
		},
		Bus: BusConfig{
			Driver:   "memory",
			NATSURL:  "nats://localhost:4222",
			RedisURL: "redis://localhost:6379/0",
			Subject:  "trusttai.admin.events",
		},
		Client: ClientConfig{
			URL:              "http://localhost:8080/api/admin/events/stream",
			MaxAttempts:      5,
			InitialDelay:     time.Second,
			MaxDelay:         30 * time.Second,
			MaxNotifications: 100,
			IdleTimeout:      90 * time.Second,
		},
		Email: EmailConfig{
			Enabled: false,
			Port:    587,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Publish: RateLimitEndpoint{Limit: 60, Window: time.Minute},
			Stream:  RateLimitEndpoint{Limit: 30, Window: time.Minute},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "http://localhost:4318",
			Protocol:    "http",
			ServiceName: "trusttai-api",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
