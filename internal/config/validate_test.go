package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Defaults()
	return cfg
}

func TestDefaults_TLS(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.TLS.Mode != "off" {
		t.Fatalf("expected default TLS mode 'off', got %q", cfg.Server.TLS.Mode)
	}
	if cfg.Server.TLS.CertFile != "" {
		t.Fatalf("expected empty default cert_file, got %q", cfg.Server.TLS.CertFile)
	}
	if cfg.Server.TLS.KeyFile != "" {
		t.Fatalf("expected empty default key_file, got %q", cfg.Server.TLS.KeyFile)
	}
	if cfg.Server.TLS.Auto.Domain != "" {
		t.Fatalf("expected empty default domain, got %q", cfg.Server.TLS.Auto.Domain)
	}
	if cfg.Server.TLS.Auto.Email != "" {
		t.Fatalf("expected empty default email, got %q", cfg.Server.TLS.Auto.Email)
	}
	if cfg.Server.TLS.Auto.CacheDir != "./data/certs" {
		t.Fatalf("expected default cache_dir './data/certs', got %q", cfg.Server.TLS.Auto.CacheDir)
	}
}

func TestValidate_AllowedOrigins_Valid(t *testing.T) {
	cfg := validConfig()
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "https://app.example.com"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid origins should pass: %v", err)
	}
}

func TestValidate_AllowedOrigins_Empty(t *testing.T) {
	cfg := validConfig()
	cfg.Server.AllowedOrigins = nil
	if err := Validate(cfg); err != nil {
		t.Fatalf("empty origins should pass: %v", err)
	}
}

func TestValidate_AllowedOrigins_NoScheme(t *testing.T) {
	cfg := validConfig()
	cfg.Server.AllowedOrigins = []string{"localhost:3000"}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for origin without scheme")
	}
	if !strings.Contains(err.Error(), "allowed_origins") {
		t.Fatalf("expected error about allowed_origins, got: %v", err)
	}
}

func TestValidate_AllowedOrigins_EmptyString(t *testing.T) {
	cfg := validConfig()
	cfg.Server.AllowedOrigins = []string{""}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty string origin")
	}
	if !strings.Contains(err.Error(), "allowed_origins") {
		t.Fatalf("expected error about allowed_origins, got: %v", err)
	}
}

func TestValidate_RateLimitDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
}

func TestValidate_RateLimitDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.Publish.Limit = 0  // invalid, but should not matter when disabled
	cfg.RateLimit.Publish.Window = 0 // invalid, but should not matter when disabled
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled rate limit should skip validation: %v", err)
	}
}

func TestValidate_RateLimitInvalidLimit(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Publish.Limit = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for zero limit")
	}
	if !strings.Contains(err.Error(), "rate_limit.publish.limit") {
		t.Fatalf("expected error about publish limit, got: %v", err)
	}
}

func TestValidate_RateLimitInvalidWindow(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Stream.Window = 500 * time.Millisecond

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for sub-second window")
	}
	if !strings.Contains(err.Error(), "rate_limit.stream.window") {
		t.Fatalf("expected error about stream window, got: %v", err)
	}
}

func TestValidate_TLSOff(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "off"
	if err := Validate(cfg); err != nil {
		t.Fatalf("TLS off should pass: %v", err)
	}
}

func TestValidate_TLSEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("TLS empty mode should pass: %v", err)
	}
}

func TestValidate_TLSAutoValid(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "auto"
	cfg.Server.TLS.Auto.Domain = "example.com"
	cfg.Server.TLS.Auto.CacheDir = "./data/certs"
	if err := Validate(cfg); err != nil {
		t.Fatalf("TLS auto with domain+cache should pass: %v", err)
	}
}

func TestValidate_TLSAutoMissingDomain(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "auto"
	cfg.Server.TLS.Auto.Domain = ""
	cfg.Server.TLS.Auto.CacheDir = "./data/certs"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for auto mode without domain")
	}
	if !strings.Contains(err.Error(), "auto.domain") {
		t.Fatalf("expected error about auto.domain, got: %v", err)
	}
}

func TestValidate_TLSAutoMissingCacheDir(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "auto"
	cfg.Server.TLS.Auto.Domain = "example.com"
	cfg.Server.TLS.Auto.CacheDir = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for auto mode without cache_dir")
	}
	if !strings.Contains(err.Error(), "cache_dir") {
		t.Fatalf("expected error about cache_dir, got: %v", err)
	}
}

func TestValidate_TLSManualValid(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "manual"
	cfg.Server.TLS.CertFile = "/path/to/cert.pem"
	cfg.Server.TLS.KeyFile = "/path/to/key.pem"
	if err := Validate(cfg); err != nil {
		t.Fatalf("TLS manual with cert+key should pass: %v", err)
	}
}

func TestValidate_TLSManualMissingCert(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "manual"
	cfg.Server.TLS.CertFile = ""
	cfg.Server.TLS.KeyFile = "/path/to/key.pem"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for manual mode without cert_file")
	}
	if !strings.Contains(err.Error(), "cert_file") {
		t.Fatalf("expected error about cert_file, got: %v", err)
	}
}

func TestValidate_TLSManualMissingKey(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "manual"
	cfg.Server.TLS.CertFile = "/path/to/cert.pem"
	cfg.Server.TLS.KeyFile = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for manual mode without key_file")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Fatalf("expected error about key_file, got: %v", err)
	}
}

func TestValidate_TLSInvalidMode(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "invalid"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid TLS mode")
	}
	if !strings.Contains(err.Error(), "tls.mode") {
		t.Fatalf("expected error about tls.mode, got: %v", err)
	}
}

func TestValidate_RateLimitMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Publish.Limit = 0
	cfg.RateLimit.Stream.Window = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "rate_limit.publish.limit") {
		t.Fatalf("expected publish limit error, got: %v", err)
	}
	if !strings.Contains(msg, "rate_limit.stream.window") {
		t.Fatalf("expected stream window error, got: %v", err)
	}
}

func TestValidate_AllowedOrigins_Wildcard(t *testing.T) {
	cfg := validConfig()
	cfg.Server.AllowedOrigins = []string{"*"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("wildcard origin should pass: %v", err)
	}
}

func TestValidate_HeartbeatTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.SSE.HeartbeatInterval = 100 * time.Millisecond
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for sub-second heartbeat")
	}
	if !strings.Contains(err.Error(), "sse.heartbeat_interval") {
		t.Fatalf("expected error about heartbeat_interval, got: %v", err)
	}
}

func TestValidate_BusDriver(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"memory", func(c *Config) { c.Bus.Driver = "memory" }, ""},
		{"nats", func(c *Config) { c.Bus.Driver = "nats" }, ""},
		{"redis", func(c *Config) { c.Bus.Driver = "redis" }, ""},
		{"unknown", func(c *Config) { c.Bus.Driver = "kafka" }, "bus.driver"},
		{"nats without url", func(c *Config) { c.Bus.Driver = "nats"; c.Bus.NATSURL = "" }, "bus.nats_url"},
		{"redis without url", func(c *Config) { c.Bus.Driver = "redis"; c.Bus.RedisURL = "" }, "bus.redis_url"},
		{"nats without subject", func(c *Config) { c.Bus.Driver = "nats"; c.Bus.Subject = "" }, "bus.subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ClientBackoff(t *testing.T) {
	cfg := validConfig()
	cfg.Client.InitialDelay = 10 * time.Second
	cfg.Client.MaxDelay = time.Second
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error when max_delay < initial_delay")
	}
	if !strings.Contains(err.Error(), "client.max_delay") {
		t.Fatalf("expected error about client.max_delay, got: %v", err)
	}
}

func TestValidate_EmailRecipients(t *testing.T) {
	cfg := validConfig()
	cfg.Email.Enabled = true
	cfg.Email.Host = "smtp.example.com"
	cfg.Email.From = "alerts@example.com"
	cfg.Email.AlertRecipients = []string{"ops@example.com", "not-an-address"}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid recipient")
	}
	if !strings.Contains(err.Error(), "email.alert_recipients[1]") {
		t.Fatalf("expected error about alert_recipients[1], got: %v", err)
	}
}

func TestValidate_TelemetryProtocol(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Protocol = "udp"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for unknown telemetry protocol")
	}
	if !strings.Contains(err.Error(), "telemetry.protocol") {
		t.Fatalf("expected error about telemetry.protocol, got: %v", err)
	}
}
