package shield

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the guard configuration.
// Structured using composition: one section per subsystem.
type Config struct {
	// RateLimit configures the per-action limiter and the HTTP edge throttle
	RateLimit RateLimitConfig

	// CSP configures the Content-Security-Policy manager
	CSP CSPConfig

	// Audit configures the security event logger
	Audit AuditConfig

	// Instrumentation configures OpenTelemetry metrics and tracing
	Instrumentation InstrumentationConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger `yaml:"-" ignored:"true"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// ThrottleRate is the sustained requests per second allowed per IP at
	// the HTTP edge, before any per-action window is consulted.
	// Zero disables the edge throttle.
	ThrottleRate float64 `yaml:"throttle_rate" split_words:"true"`

	// ThrottleBurst is the per-IP burst size for the edge throttle.
	ThrottleBurst int `yaml:"throttle_burst" split_words:"true"`

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool `yaml:"trust_proxy" split_words:"true"`

	// TrustedProxyCount is how many proxies to trust from the right of
	// X-Forwarded-For. Zero assumes one.
	TrustedProxyCount int `yaml:"trusted_proxy_count" split_words:"true"`
}

// CSPConfig holds Content-Security-Policy configuration
type CSPConfig struct {
	// TrustedDomains are origins admitted to script/img/font sources
	// (backend, payment and font providers).
	TrustedDomains []string `yaml:"trusted_domains" split_words:"true"`

	// ConnectOrigins are origins admitted to connect-src (API and
	// websocket endpoints).
	ConnectOrigins []string `yaml:"connect_origins" split_words:"true"`

	// StrictStyles disallows inline styles.
	StrictStyles bool `yaml:"strict_styles" split_words:"true"`

	// Development relaxes script-src and connect-src for local tooling.
	// Never enable in production.
	Development bool `yaml:"development"`

	// RotationInterval is how often the nonce rotates. Default: 15 minutes.
	// In YAML files this is written as a duration string under
	// csp.rotation_interval (see LoadFile).
	RotationInterval time.Duration `yaml:"-" split_words:"true"`

	// ReportPath is the violation report endpoint. Default: /csp-report.
	ReportPath string `yaml:"report_path" split_words:"true"`
}

// AuditConfig holds audit logger configuration
type AuditConfig struct {
	// Enabled controls whether security events are recorded.
	Enabled bool `yaml:"enabled"`

	// FlushInterval is how often queued events are flushed. Default: 30s.
	// In YAML files this is written as a duration string under
	// audit.flush_interval (see LoadFile).
	FlushInterval time.Duration `yaml:"-" split_words:"true"`

	// MaxQueue bounds the in-memory event queue. Default: 1000.
	MaxQueue int `yaml:"max_queue" split_words:"true"`

	// EncryptionKey is the base64-encoded AES-256 key (32 bytes) used by
	// stores that encrypt event details at rest. Empty disables encryption.
	// Generate with audit.GenerateKey.
	EncryptionKey string `yaml:"encryption_key" split_words:"true"`
}

// InstrumentationConfig holds OpenTelemetry configuration
type InstrumentationConfig struct {
	// Enabled controls whether metrics and traces are recorded.
	// When false, no-op providers are used (zero overhead).
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this deployment. Default: "shield".
	ServiceName string `yaml:"service_name" split_words:"true"`
}

// DefaultConfig returns a production-leaning configuration: audit on,
// edge throttle on, strict proxy handling off until explicitly enabled.
func DefaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			ThrottleRate:  20,
			ThrottleBurst: 40,
		},
		CSP: CSPConfig{
			RotationInterval: 15 * time.Minute,
			ReportPath:       "/csp-report",
		},
		Audit: AuditConfig{
			Enabled:       true,
			FlushInterval: 30 * time.Second,
			MaxQueue:      1000,
		},
		Instrumentation: InstrumentationConfig{
			ServiceName: "shield",
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.RateLimit.ThrottleRate < 0 {
		return fmt.Errorf("rate limit throttle rate must not be negative")
	}
	if c.RateLimit.ThrottleRate > 0 && c.RateLimit.ThrottleBurst <= 0 {
		return fmt.Errorf("throttle burst must be positive when the throttle is enabled")
	}
	if c.Audit.MaxQueue < 0 {
		return fmt.Errorf("audit max queue must not be negative")
	}
	if c.Audit.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Audit.EncryptionKey)
		if err != nil {
			return fmt.Errorf("audit encryption key is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("audit encryption key must be 32 bytes, got %d", len(key))
		}
	}
	return nil
}

// LoadFromEnv overlays configuration from SHIELD_-prefixed environment
// variables (e.g. SHIELD_RATELIMIT_THROTTLE_RATE, SHIELD_AUDIT_ENABLED).
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process("shield_ratelimit", &c.RateLimit); err != nil {
		return fmt.Errorf("failed to load rate limit config from env: %w", err)
	}
	if err := envconfig.Process("shield_csp", &c.CSP); err != nil {
		return fmt.Errorf("failed to load csp config from env: %w", err)
	}
	if err := envconfig.Process("shield_audit", &c.Audit); err != nil {
		return fmt.Errorf("failed to load audit config from env: %w", err)
	}
	if err := envconfig.Process("shield_otel", &c.Instrumentation); err != nil {
		return fmt.Errorf("failed to load instrumentation config from env: %w", err)
	}
	return nil
}

// fileConfig mirrors Config for YAML decoding; durations are strings
// ("30s", "15m") so config files stay readable.
type fileConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CSP       struct {
		CSPConfig        `yaml:",inline"`
		RotationInterval string `yaml:"rotation_interval"`
	} `yaml:"csp"`
	Audit struct {
		AuditConfig   `yaml:",inline"`
		FlushInterval string `yaml:"flush_interval"`
	} `yaml:"audit"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation"`
}

// LoadFile overlays configuration from a YAML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	fc.RateLimit = c.RateLimit
	fc.CSP.CSPConfig = c.CSP
	fc.Audit.AuditConfig = c.Audit
	fc.Instrumentation = c.Instrumentation

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	c.RateLimit = fc.RateLimit
	c.CSP = fc.CSP.CSPConfig
	c.Audit = fc.Audit.AuditConfig
	c.Instrumentation = fc.Instrumentation

	if fc.CSP.RotationInterval != "" {
		d, err := time.ParseDuration(fc.CSP.RotationInterval)
		if err != nil {
			return fmt.Errorf("invalid csp rotation_interval: %w", err)
		}
		c.CSP.RotationInterval = d
	}
	if fc.Audit.FlushInterval != "" {
		d, err := time.ParseDuration(fc.Audit.FlushInterval)
		if err != nil {
			return fmt.Errorf("invalid audit flush_interval: %w", err)
		}
		c.Audit.FlushInterval = d
	}

	return nil
}

// EncryptionKeyBytes decodes the configured audit encryption key.
// Returns nil when encryption is disabled.
func (c *AuditConfig) EncryptionKeyBytes() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(c.EncryptionKey)
}
