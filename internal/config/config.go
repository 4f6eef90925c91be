package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DefaultModel = "gemini-3-flash-preview"
	// Gemini's OpenAI-compatible surface, so one credential serves both providers
	DefaultOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
)

// ErrMissingAPIKey is returned when no credential for the remote model is configured
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required")

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	AnalysisTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	// Remote model
	APIKey   string
	Provider string
	Model    string
	BaseURL  string

	// Sessions
	SessionTTL            time.Duration
	MaxConcurrentReadings int

	// Optional Azure Blob Storage source for images referenced by URL
	AzureAccountName string
	AzureAccountKey  string

	// Hosts image URLs may point at; "*.example.com" matches subdomains. Empty allows any
	// public host.
	AllowedImageHosts []string
	// Lets image URLs reach loopback, private and link-local addresses
	AllowPrivateImageHosts bool
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether blob credentials are configured
func (c *Config) AzureEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Host:                  "0.0.0.0",
		Port:                  "8080",
		RequestTimeout:        30 * time.Second,
		ImageFetchTimeout:     15 * time.Second,
		AnalysisTimeout:       90 * time.Second,
		MaxRequestBodySize:    10 * 1024 * 1024, // 10MB
		LogLevel:              "info",
		Provider:              ProviderGemini,
		Model:                 DefaultModel,
		SessionTTL:            30 * time.Minute,
		MaxConcurrentReadings: 4,
	}
}

// LoadFromEnv builds the configuration from defaults and the process environment
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Load applies defaults, then the optional YAML file at path, then the environment
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ImageFetchTimeout = parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", cfg.ImageFetchTimeout)
	cfg.AnalysisTimeout = parseDurationOrDefault("ANALYSIS_TIMEOUT", cfg.AnalysisTimeout)
	cfg.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", cfg.MaxRequestBodySize)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.APIKey = strings.TrimSpace(getEnvOrDefault("GEMINI_API_KEY", cfg.APIKey))
	cfg.Provider = strings.ToLower(getEnvOrDefault("ORACLE_PROVIDER", cfg.Provider))
	cfg.Model = getEnvOrDefault("ORACLE_MODEL", cfg.Model)
	cfg.BaseURL = getEnvOrDefault("ORACLE_BASE_URL", cfg.BaseURL)

	cfg.SessionTTL = parseDurationOrDefault("SESSION_TTL", cfg.SessionTTL)
	cfg.MaxConcurrentReadings = int(parseIntOrDefault("MAX_CONCURRENT_READINGS", int64(cfg.MaxConcurrentReadings)))

	cfg.AzureAccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", cfg.AzureAccountName)
	cfg.AzureAccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", cfg.AzureAccountKey)
	if hosts := splitList(os.Getenv("ALLOWED_IMAGE_HOSTS")); len(hosts) > 0 {
		cfg.AllowedImageHosts = hosts
	}
	cfg.AllowPrivateImageHosts = parseBoolOrDefault("ALLOW_PRIVATE_IMAGE_HOSTS", cfg.AllowPrivateImageHosts)
}

// Validate checks ranges and required values
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, analysis=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.AnalysisTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0 (got %s)", c.SessionTTL)
	}
	if c.MaxConcurrentReadings <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_READINGS must be > 0 (got %d)", c.MaxConcurrentReadings)
	}
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported ORACLE_PROVIDER: %q", c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("ORACLE_MODEL must not be empty")
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
