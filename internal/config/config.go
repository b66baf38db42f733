// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads apiscenario settings from a YAML file and the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/apiscenario/internal/auth"
	apierrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/httpclient"
)

// DefaultFileName is looked up in the working directory when no config
// path is given.
const DefaultFileName = "apiscenario.yaml"

// Config represents the complete apiscenario configuration.
type Config struct {
	Target  TargetConfig    `yaml:"target"`
	Data    DataConfig      `yaml:"data"`
	HTTP    HTTPConfig      `yaml:"http"`
	Auth    AuthConfig      `yaml:"auth"`
	Flags   map[string]bool `yaml:"flags,omitempty"`
	History HistoryConfig   `yaml:"history"`
	Log     LogConfig       `yaml:"log"`
}

// TargetConfig names the system under test.
type TargetConfig struct {
	// BaseURL is prefixed to specification URIs that carry no scheme.
	// Environment: APISCENARIO_BASE_URL, TEST_URL
	BaseURL string `yaml:"base_url"`

	// HeaderPolicy is JUST_WARN, FAIL_TEST or IGNORE.
	// Environment: APISCENARIO_HEADER_POLICY
	// Default: JUST_WARN
	HeaderPolicy string `yaml:"header_policy"`
}

// DataConfig locates test data.
type DataConfig struct {
	// Dirs are searched in order for specification files.
	// Environment: APISCENARIO_DATA_DIRS (colon separated)
	// Default: [testdata]
	Dirs []string `yaml:"dirs"`

	// ResourceDir is the root for multipart upload files.
	ResourceDir string `yaml:"resource_dir,omitempty"`

	// TempDir holds transient upload and download files.
	// Default: os.TempDir()
	TempDir string `yaml:"temp_dir,omitempty"`
}

// HTTPConfig configures the submission transport.
type HTTPConfig struct {
	// Environment: APISCENARIO_HTTP_TIMEOUT
	// Default: 30s
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff,omitempty"`
	MaxBackoff    time.Duration `yaml:"max_backoff,omitempty"`
	UserAgent     string        `yaml:"user_agent,omitempty"`

	// AllowNonIdempotentRetry extends retries to POST, PUT, PATCH and DELETE.
	AllowNonIdempotentRetry bool `yaml:"allow_non_idempotent_retry,omitempty"`

	// RequestsPerSecond throttles calls to the target. Zero disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`

	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`
}

// AuthConfig selects how users are logged in.
type AuthConfig struct {
	// Type is none, oauth2_password or jwt.
	// Default: none
	Type string `yaml:"type"`

	TokenURL string   `yaml:"token_url,omitempty"`
	ClientID string   `yaml:"client_id,omitempty"`
	Scopes   []string `yaml:"scopes,omitempty"`

	// ClientSecret and JWTSecret may be placeholders such as
	// ${CLIENT_SECRET} or keyring:apiscenario/client.
	ClientSecret string `yaml:"client_secret,omitempty"`
	JWTSecret    string `yaml:"jwt_secret,omitempty"`

	JWTTTL    time.Duration `yaml:"jwt_ttl,omitempty"`
	JWTIssuer string        `yaml:"jwt_issuer,omitempty"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	// Path is the sqlite file. Empty disables history.
	// Environment: APISCENARIO_HISTORY_PATH
	Path string `yaml:"path,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: trace, debug, info, warn, error. Default: info
	Level string `yaml:"level"`
	// Format: json or text. Default: text
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Target: TargetConfig{HeaderPolicy: "JUST_WARN"},
		Data:   DataConfig{Dirs: []string{"testdata"}},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			RetryBackoff: time.Second,
			MaxBackoff:   30 * time.Second,
			UserAgent:    httpclient.DefaultUserAgent,
		},
		Auth:  AuthConfig{Type: string(auth.TypeNone)},
		Flags: map[string]bool{},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configPath, applies environment overrides and validates the
// result. An empty configPath uses DefaultFileName when it exists and
// otherwise the defaults alone.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if _, err := os.Stat(DefaultFileName); err == nil {
			configPath = DefaultFileName
		}
	}
	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &apierrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &apierrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Relative data paths are relative to the config file.
	base := filepath.Dir(path)
	for i, dir := range c.Data.Dirs {
		c.Data.Dirs[i] = relativeTo(base, dir)
	}
	if c.Data.ResourceDir != "" {
		c.Data.ResourceDir = relativeTo(base, c.Data.ResourceDir)
	}
	return nil
}

func relativeTo(base, p string) string {
	if filepath.IsAbs(p) || base == "." {
		return p
	}
	return filepath.Join(base, p)
}

// applyDefaults fills zero values left by a minimal file.
func (c *Config) applyDefaults() {
	defaults := Default()
	if c.Target.HeaderPolicy == "" {
		c.Target.HeaderPolicy = defaults.Target.HeaderPolicy
	}
	if len(c.Data.Dirs) == 0 {
		c.Data.Dirs = defaults.Data.Dirs
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = defaults.HTTP.Timeout
	}
	if c.HTTP.RetryBackoff == 0 {
		c.HTTP.RetryBackoff = defaults.HTTP.RetryBackoff
	}
	if c.HTTP.MaxBackoff == 0 {
		c.HTTP.MaxBackoff = defaults.HTTP.MaxBackoff
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = defaults.HTTP.UserAgent
	}
	if c.Auth.Type == "" {
		c.Auth.Type = defaults.Auth.Type
	}
	if c.Flags == nil {
		c.Flags = map[string]bool{}
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("TEST_URL"); val != "" {
		c.Target.BaseURL = val
	}
	if val := os.Getenv("APISCENARIO_BASE_URL"); val != "" {
		c.Target.BaseURL = val
	}
	if val := os.Getenv("APISCENARIO_HEADER_POLICY"); val != "" {
		c.Target.HeaderPolicy = strings.ToUpper(val)
	}
	if val := os.Getenv("APISCENARIO_DATA_DIRS"); val != "" {
		c.Data.Dirs = filepath.SplitList(val)
	}
	if val := os.Getenv("APISCENARIO_HTTP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.HTTP.Timeout = d
		}
	}
	if val := os.Getenv("APISCENARIO_HTTP_RETRY_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.HTTP.RetryAttempts = n
		}
	}
	if val := os.Getenv("APISCENARIO_HISTORY_PATH"); val != "" {
		c.History.Path = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Target.HeaderPolicy) {
	case "JUST_WARN", "FAIL_TEST", "IGNORE":
	default:
		return &apierrors.ValidationError{
			Field:      "target.header_policy",
			Message:    fmt.Sprintf("unknown header policy %q", c.Target.HeaderPolicy),
			Suggestion: "use JUST_WARN, FAIL_TEST or IGNORE",
		}
	}

	if c.HTTP.Timeout <= 0 {
		return &apierrors.ValidationError{
			Field:      "http.timeout",
			Message:    fmt.Sprintf("must be positive, got %v", c.HTTP.Timeout),
			Suggestion: "set a duration such as 30s",
		}
	}
	httpCfg := c.HTTPClientConfig(nil)
	if err := httpCfg.Validate(); err != nil {
		return &apierrors.ValidationError{
			Field:      "http",
			Message:    err.Error(),
			Suggestion: "check retry_attempts, retry_backoff and requests_per_second",
		}
	}

	switch auth.Type(c.Auth.Type) {
	case auth.TypeNone:
	case auth.TypeOAuth2Password:
		if c.Auth.TokenURL == "" || c.Auth.ClientID == "" {
			return &apierrors.ValidationError{
				Field:      "auth.token_url",
				Message:    "oauth2_password needs token_url and client_id",
				Suggestion: "set auth.token_url and auth.client_id, or use auth.type: none",
			}
		}
	case auth.TypeJWT:
		if c.Auth.JWTSecret == "" {
			return &apierrors.ValidationError{
				Field:      "auth.jwt_secret",
				Message:    "jwt needs a signing secret",
				Suggestion: "set auth.jwt_secret, for example to ${JWT_SECRET}",
			}
		}
	default:
		return &apierrors.ValidationError{
			Field:      "auth.type",
			Message:    fmt.Sprintf("unknown auth type %q", c.Auth.Type),
			Suggestion: "use none, oauth2_password or jwt",
		}
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		return &apierrors.ValidationError{
			Field:      "log.level",
			Message:    fmt.Sprintf("unknown level %q", c.Log.Level),
			Suggestion: "use trace, debug, info, warn or error",
		}
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return &apierrors.ValidationError{
			Field:      "log.format",
			Message:    fmt.Sprintf("unknown format %q", c.Log.Format),
			Suggestion: "use json or text",
		}
	}
	return nil
}

// HTTPClientConfig converts the http section for pkg/httpclient.
func (c *Config) HTTPClientConfig(logger *slog.Logger) httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = c.HTTP.Timeout
	cfg.RetryAttempts = c.HTTP.RetryAttempts
	cfg.RetryBackoff = c.HTTP.RetryBackoff
	cfg.MaxBackoff = c.HTTP.MaxBackoff
	cfg.UserAgent = c.HTTP.UserAgent
	cfg.AllowNonIdempotentRetry = c.HTTP.AllowNonIdempotentRetry
	cfg.RequestsPerSecond = c.HTTP.RequestsPerSecond
	cfg.Burst = c.HTTP.Burst
	cfg.InsecureSkipVerify = c.HTTP.InsecureSkipVerify
	cfg.Logger = logger
	return cfg
}

// AuthAdapterConfig converts the auth section for internal/auth. Secrets
// must already be resolved.
func (c *Config) AuthAdapterConfig() auth.Config {
	return auth.Config{
		Type:         auth.Type(c.Auth.Type),
		TokenURL:     c.Auth.TokenURL,
		ClientID:     c.Auth.ClientID,
		ClientSecret: c.Auth.ClientSecret,
		Scopes:       c.Auth.Scopes,
		JWTSecret:    c.Auth.JWTSecret,
		JWTTTL:       c.Auth.JWTTTL,
		JWTIssuer:    c.Auth.JWTIssuer,
	}
}
