package httpclient

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.RetryAttempts != 0 {
		t.Errorf("RetryAttempts = %d, want 0", cfg.RetryAttempts)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, DefaultUserAgent)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }, wantErr: "timeout must be > 0"},
		{name: "negative retries", modify: func(c *Config) { c.RetryAttempts = -1 }, wantErr: "retry_attempts must be >= 0"},
		{
			name: "retries without backoff",
			modify: func(c *Config) {
				c.RetryAttempts = 2
				c.RetryBackoff = 0
			},
			wantErr: "retry_backoff must be > 0",
		},
		{
			name: "max backoff below base",
			modify: func(c *Config) {
				c.RetryAttempts = 2
				c.MaxBackoff = time.Millisecond
			},
			wantErr: "max_backoff",
		},
		{name: "negative rate", modify: func(c *Config) { c.RequestsPerSecond = -1 }, wantErr: "requests_per_second"},
		{name: "negative burst", modify: func(c *Config) { c.Burst = -2 }, wantErr: "burst"},
		{name: "empty user agent", modify: func(c *Config) { c.UserAgent = "" }, wantErr: "user_agent"},
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
