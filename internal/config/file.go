package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML files. Durations are strings like "30s".
type fileConfig struct {
	Server struct {
		Host               string `yaml:"host"`
		Port               string `yaml:"port"`
		RequestTimeout     string `yaml:"request_timeout"`
		MaxRequestBodySize int64  `yaml:"max_request_body_size"`
		LogLevel           string `yaml:"log_level"`
	} `yaml:"server"`
	Oracle struct {
		Provider        string `yaml:"provider"`
		Model           string `yaml:"model"`
		BaseURL         string `yaml:"base_url"`
		APIKey          string `yaml:"api_key"`
		AnalysisTimeout string `yaml:"analysis_timeout"`
	} `yaml:"oracle"`
	Sessions struct {
		TTL           string `yaml:"ttl"`
		MaxConcurrent int    `yaml:"max_concurrent"`
	} `yaml:"sessions"`
	Sources struct {
		FetchTimeout     string   `yaml:"fetch_timeout"`
		AzureAccountName string   `yaml:"azure_account_name"`
		AzureAccountKey  string   `yaml:"azure_account_key"`
		AllowedHosts     []string `yaml:"allowed_hosts"`
		AllowPrivate     bool     `yaml:"allow_private"`
	} `yaml:"sources"`
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&cfg.Host, fc.Server.Host)
	setString(&cfg.Port, fc.Server.Port)
	setString(&cfg.LogLevel, fc.Server.LogLevel)
	if fc.Server.MaxRequestBodySize > 0 {
		cfg.MaxRequestBodySize = fc.Server.MaxRequestBodySize
	}

	setString(&cfg.Provider, strings.ToLower(fc.Oracle.Provider))
	setString(&cfg.Model, fc.Oracle.Model)
	setString(&cfg.BaseURL, fc.Oracle.BaseURL)
	setString(&cfg.APIKey, strings.TrimSpace(fc.Oracle.APIKey))

	if fc.Sessions.MaxConcurrent > 0 {
		cfg.MaxConcurrentReadings = fc.Sessions.MaxConcurrent
	}
	setString(&cfg.AzureAccountName, fc.Sources.AzureAccountName)
	setString(&cfg.AzureAccountKey, fc.Sources.AzureAccountKey)
	if len(fc.Sources.AllowedHosts) > 0 {
		cfg.AllowedImageHosts = fc.Sources.AllowedHosts
	}
	if fc.Sources.AllowPrivate {
		cfg.AllowPrivateImageHosts = true
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"server.request_timeout", fc.Server.RequestTimeout, &cfg.RequestTimeout},
		{"oracle.analysis_timeout", fc.Oracle.AnalysisTimeout, &cfg.AnalysisTimeout},
		{"sessions.ttl", fc.Sessions.TTL, &cfg.SessionTTL},
		{"sources.fetch_timeout", fc.Sources.FetchTimeout, &cfg.ImageFetchTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}

	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
