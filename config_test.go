package shield

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RateLimit.ThrottleRate != 20 {
		t.Errorf("ThrottleRate = %v, want 20", cfg.RateLimit.ThrottleRate)
	}
	if cfg.RateLimit.ThrottleBurst != 40 {
		t.Errorf("ThrottleBurst = %d, want 40", cfg.RateLimit.ThrottleBurst)
	}
	if cfg.RateLimit.TrustProxy {
		t.Error("TrustProxy should default to false")
	}
	if cfg.CSP.RotationInterval != 15*time.Minute {
		t.Errorf("RotationInterval = %v, want 15m", cfg.CSP.RotationInterval)
	}
	if cfg.CSP.ReportPath != "/csp-report" {
		t.Errorf("ReportPath = %q, want /csp-report", cfg.CSP.ReportPath)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled should default to true")
	}
	if cfg.Audit.FlushInterval != 30*time.Second {
		t.Errorf("FlushInterval = %v, want 30s", cfg.Audit.FlushInterval)
	}
	if cfg.Audit.MaxQueue != 1000 {
		t.Errorf("MaxQueue = %d, want 1000", cfg.Audit.MaxQueue)
	}
	if cfg.Instrumentation.ServiceName != "shield" {
		t.Errorf("ServiceName = %q, want shield", cfg.Instrumentation.ServiceName)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	goodKey := base64.StdEncoding.EncodeToString(make([]byte, 32))
	shortKey := base64.StdEncoding.EncodeToString(make([]byte, 16))

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			modify: func(c *Config) {},
		},
		{
			name:    "negative throttle rate",
			modify:  func(c *Config) { c.RateLimit.ThrottleRate = -1 },
			wantErr: "must not be negative",
		},
		{
			name: "throttle without burst",
			modify: func(c *Config) {
				c.RateLimit.ThrottleRate = 10
				c.RateLimit.ThrottleBurst = 0
			},
			wantErr: "burst must be positive",
		},
		{
			name:   "throttle disabled needs no burst",
			modify: func(c *Config) { c.RateLimit.ThrottleRate = 0; c.RateLimit.ThrottleBurst = 0 },
		},
		{
			name:    "negative audit queue",
			modify:  func(c *Config) { c.Audit.MaxQueue = -1 },
			wantErr: "must not be negative",
		},
		{
			name:   "valid encryption key",
			modify: func(c *Config) { c.Audit.EncryptionKey = goodKey },
		},
		{
			name:    "encryption key not base64",
			modify:  func(c *Config) { c.Audit.EncryptionKey = "not base64!!!" },
			wantErr: "not valid base64",
		},
		{
			name:    "encryption key wrong size",
			modify:  func(c *Config) { c.Audit.EncryptionKey = shortKey },
			wantErr: "must be 32 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHIELD_RATELIMIT_THROTTLE_RATE", "50")
	t.Setenv("SHIELD_RATELIMIT_TRUST_PROXY", "true")
	t.Setenv("SHIELD_CSP_TRUSTED_DOMAINS", "https://a.example,https://b.example")
	t.Setenv("SHIELD_AUDIT_MAX_QUEUE", "250")

	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.RateLimit.ThrottleRate != 50 {
		t.Errorf("ThrottleRate = %v, want 50", cfg.RateLimit.ThrottleRate)
	}
	if !cfg.RateLimit.TrustProxy {
		t.Error("TrustProxy should be set from env")
	}
	if len(cfg.CSP.TrustedDomains) != 2 || cfg.CSP.TrustedDomains[0] != "https://a.example" {
		t.Errorf("TrustedDomains = %v", cfg.CSP.TrustedDomains)
	}
	if cfg.Audit.MaxQueue != 250 {
		t.Errorf("MaxQueue = %d, want 250", cfg.Audit.MaxQueue)
	}
	// Untouched values keep their defaults.
	if cfg.Audit.FlushInterval != 30*time.Second {
		t.Errorf("FlushInterval = %v, want default 30s", cfg.Audit.FlushInterval)
	}
}

func TestLoadFile(t *testing.T) {
	content := `
rate_limit:
  throttle_rate: 100
  throttle_burst: 200
csp:
  trusted_domains:
    - https://cdn.example.com
  rotation_interval: 5m
  strict_styles: true
audit:
  enabled: false
  flush_interval: 10s
`
	path := filepath.Join(t.TempDir(), "shield.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.RateLimit.ThrottleRate != 100 || cfg.RateLimit.ThrottleBurst != 200 {
		t.Errorf("throttle = %v/%d, want 100/200", cfg.RateLimit.ThrottleRate, cfg.RateLimit.ThrottleBurst)
	}
	if len(cfg.CSP.TrustedDomains) != 1 || cfg.CSP.TrustedDomains[0] != "https://cdn.example.com" {
		t.Errorf("TrustedDomains = %v", cfg.CSP.TrustedDomains)
	}
	if cfg.CSP.RotationInterval != 5*time.Minute {
		t.Errorf("RotationInterval = %v, want 5m", cfg.CSP.RotationInterval)
	}
	if !cfg.CSP.StrictStyles {
		t.Error("StrictStyles should be set from file")
	}
	if cfg.Audit.Enabled {
		t.Error("Audit.Enabled should be overridden to false")
	}
	if cfg.Audit.FlushInterval != 10*time.Second {
		t.Errorf("FlushInterval = %v, want 10s", cfg.Audit.FlushInterval)
	}
	// Values absent from the file keep their defaults.
	if cfg.Audit.MaxQueue != 1000 {
		t.Errorf("MaxQueue = %d, want default 1000", cfg.Audit.MaxQueue)
	}
	if cfg.CSP.ReportPath != "/csp-report" {
		t.Errorf("ReportPath = %q, want default /csp-report", cfg.CSP.ReportPath)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile should fail on a missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("csp:\n  rotation_interval: banana\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadFile(bad); err == nil || !strings.Contains(err.Error(), "rotation_interval") {
		t.Errorf("LoadFile() = %v, want invalid rotation_interval error", err)
	}
}

func TestEncryptionKeyBytes(t *testing.T) {
	var ac AuditConfig
	key, err := ac.EncryptionKeyBytes()
	if err != nil || key != nil {
		t.Errorf("empty key: got %v, %v; want nil, nil", key, err)
	}

	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	ac.EncryptionKey = base64.StdEncoding.EncodeToString(raw)
	key, err = ac.EncryptionKeyBytes()
	if err != nil {
		t.Fatalf("EncryptionKeyBytes() error = %v", err)
	}
	if len(key) != 32 || key[31] != 31 {
		t.Errorf("decoded key = %v", key)
	}
}
