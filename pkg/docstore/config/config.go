// Package config loads server settings from the environment and wires the
// document stores, template repository, assembler and command registry.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/mutate"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Config holds every setting of the document servers. Field tags name the
// environment variables read by WithEnv.
type Config struct {
	Port          string `env:"PORT" env-default:"8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	APIKey        string `env:"API_KEY"`
	DebugMode     string `env:"DEBUG_MODE"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" env-default:"0"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" env-default:"20"`
	// TrustProxyHeaders keys clients on X-Forwarded-For / X-Real-IP
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" env-default:"false"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`

	Storage StorageConfig

	// SigningKey enables HMAC download URLs served by this process for
	// backends that cannot sign on their own
	SigningKey      string `env:"DOCSTORE_SIGNING_KEY"`
	DefaultTTLHours int    `env:"DOCSTORE_DEFAULT_TTL_HOURS" env-default:"24"`
	URLExpiryHours  int    `env:"URL_EXPIRY_HOURS" env-default:"24"`

	SubstitutionMode string `env:"SUBSTITUTION_MODE" env-default:"run"`
	ProfileFile      string `env:"PROFILE_FILE"`
	Profile          string `env:"PROFILE"`
	CleanupSchedule  string `env:"CLEANUP_SCHEDULE"`

	MCP MCPConfig
}

// StorageConfig selects and configures the blob backend
type StorageConfig struct {
	AzureConnectionString string `env:"AZURE_STORAGE_CONNECTION_STRING"`
	AzureAccountName      string `env:"AZURE_STORAGE_ACCOUNT_NAME"`
	AzureAccountKey       string `env:"AZURE_STORAGE_ACCOUNT_KEY"`
	AzureEndpoint         string `env:"AZURE_STORAGE_ENDPOINT"`

	DocumentsContainer string `env:"AZURE_STORAGE_CONTAINER_NAME" env-default:"word-documents"`
	TemplatesContainer string `env:"AZURE_TEMPLATES_CONTAINER_NAME" env-default:"word-templates"`

	// URL is one of s3://bucket?region=..&endpoint=.., postgres://..,
	// memory:// or file:///path
	URL      string `env:"STORAGE_URL"`
	LocalDir string `env:"LOCAL_STORAGE_DIR" env-default:"./data"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `env:"AWS_REGION"`
}

// MCPConfig configures the MCP server transport
type MCPConfig struct {
	Transport string `env:"MCP_TRANSPORT" env-default:"stdio"`
	Host      string `env:"MCP_HOST" env-default:"0.0.0.0"`
	Port      string `env:"MCP_PORT" env-default:"8000"`
	Path      string `env:"MCP_PATH" env-default:"/mcp"`
}

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Port:             "8080",
		RateLimitBurst:   20,
		LogLevel:         "info",
		LogFormat:        "text",
		DefaultTTLHours:  docstore.DefaultTTLHours,
		URLExpiryHours:   24,
		SubstitutionMode: "run",
		Storage: StorageConfig{
			DocumentsContainer: "word-documents",
			TemplatesContainer: "word-templates",
			LocalDir:           "./data",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Host:      "0.0.0.0",
			Port:      "8000",
			Path:      "/mcp",
		},
	}
}

// WithEnv reads the environment into the config. Unset variables take their
// env-default, so options meant to override the environment go after it.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return nil
	}
}

// WithDotEnv loads variables from the given files (default .env) into the
// process environment. Missing files are skipped; variables already set win.
func WithDotEnv(paths ...string) Option {
	return func(c *Config) error {
		if len(paths) == 0 {
			paths = []string{".env"}
		}
		for _, p := range paths {
			if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", p, err)
			}
		}
		return nil
	}
}

// WithPort sets the HTTP port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithStorageURL selects the backend by URL
func WithStorageURL(url string) Option {
	return func(c *Config) error {
		c.Storage.URL = url
		return nil
	}
}

// WithLocalDir sets the filesystem fallback directory
func WithLocalDir(dir string) Option {
	return func(c *Config) error {
		c.Storage.LocalDir = dir
		return nil
	}
}

// WithSigningKey enables locally served signed URLs
func WithSigningKey(key string) Option {
	return func(c *Config) error {
		c.SigningKey = key
		return nil
	}
}

// WithProfile restricts the exposed commands to a profile from file
func WithProfile(file, name string) Option {
	return func(c *Config) error {
		c.ProfileFile, c.Profile = file, name
		return nil
	}
}

// Debug reports whether DEBUG_MODE asks for full command output
func (c *Config) Debug() bool {
	switch strings.ToLower(strings.TrimSpace(c.DebugMode)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// BaseURL is the public address signed URLs point at
func (c *Config) BaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return "http://localhost:" + c.Port
}

// Mode returns the configured substitution mode
func (c *Config) Mode() mutate.Mode {
	mode, _ := mutate.ParseMode(c.SubstitutionMode)
	return mode
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if _, err := mutate.ParseMode(c.SubstitutionMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (use text or json)", c.LogFormat))
	}
	if c.DefaultTTLHours < 0 {
		errs = append(errs, fmt.Errorf("default TTL must not be negative, got %d", c.DefaultTTLHours))
	}
	if c.URLExpiryHours <= 0 {
		errs = append(errs, fmt.Errorf("URL expiry must be positive, got %d", c.URLExpiryHours))
	}
	if c.RateLimitPerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %v", c.RateLimitPerSecond))
	}
	if c.Storage.DocumentsContainer == "" || c.Storage.TemplatesContainer == "" {
		errs = append(errs, errors.New("container names are required"))
	}
	if c.Storage.DocumentsContainer == c.Storage.TemplatesContainer {
		errs = append(errs, fmt.Errorf("documents and templates share container %q", c.Storage.DocumentsContainer))
	}
	if c.Profile != "" && c.ProfileFile == "" {
		errs = append(errs, errors.New("PROFILE requires PROFILE_FILE"))
	}
	switch c.MCP.Transport {
	case "stdio", "http", "streamable-http", "sse":
	default:
		errs = append(errs, fmt.Errorf("unknown MCP transport %q (use stdio, http, streamable-http or sse)", c.MCP.Transport))
	}
	if _, err := c.BackendKind(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
