package factory

import (
	"context"
	"fmt"

	"github.com/anime-shed/palm-oracle-go/internal/config"
	"github.com/anime-shed/palm-oracle-go/internal/logger"
	"github.com/anime-shed/palm-oracle-go/internal/oracle"
	"github.com/anime-shed/palm-oracle-go/internal/storage"
	"github.com/anime-shed/palm-oracle-go/pkg/validation"
)

// OracleFactory creates remote model clients
type OracleFactory interface {
	CreateOracle(ctx context.Context, provider string) (oracle.Oracle, error)
}

// StorageFactory creates image sources
type StorageFactory interface {
	CreateStorage() (storage.ImageFetcher, error)
}

// oracleFactory implements OracleFactory
type oracleFactory struct {
	cfg *config.Config
}

// NewOracleFactory creates a new oracle factory
func NewOracleFactory(cfg *config.Config) OracleFactory {
	return &oracleFactory{cfg: cfg}
}

// CreateOracle creates a client for the named provider
func (f *oracleFactory) CreateOracle(ctx context.Context, provider string) (oracle.Oracle, error) {
	switch provider {
	case config.ProviderGemini:
		return oracle.NewGemini(ctx, oracle.GeminiConfig{
			APIKey:  f.cfg.APIKey,
			Model:   f.cfg.Model,
			BaseURL: f.cfg.BaseURL,
			Timeout: f.cfg.AnalysisTimeout,
		})
	case config.ProviderOpenAI:
		baseURL := f.cfg.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}
		return oracle.NewOpenAI(oracle.OpenAIConfig{
			APIKey:  f.cfg.APIKey,
			Model:   f.cfg.Model,
			BaseURL: baseURL,
			Timeout: f.cfg.AnalysisTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported oracle provider: %s", provider)
	}
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage builds the URL image source. Blob URLs use the Azure SDK when
// credentials are configured; everything else goes over HTTP.
func (f *storageFactory) CreateStorage() (storage.ImageFetcher, error) {
	validator := validation.NewURLValidator()
	if len(f.cfg.AllowedImageHosts) > 0 {
		validator = validation.NewURLValidatorWithOptions([]string{"http", "https"}, f.cfg.AllowedImageHosts)
	}

	validator.AllowPrivateNetworks(f.cfg.AllowPrivateImageHosts)

	web := storage.NewHTTPImageFetcher(f.cfg.ImageFetchTimeout, f.cfg.MaxRequestBodySize,
		storage.WithRedirectValidator(validator),
		storage.WithPrivateNetworks(f.cfg.AllowPrivateImageHosts),
	)

	var blob *storage.BlobImageFetcher
	if f.cfg.AzureEnabled() {
		var err error
		blob, err = storage.NewAzureStorage(f.cfg.AzureAccountName, f.cfg.AzureAccountKey, f.cfg.MaxRequestBodySize)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure storage: %w", err)
		}
		logger.WithField("account", f.cfg.AzureAccountName).Info("Azure blob image source enabled")
	}

	return storage.NewSourceFetcher(validator, web, blob), nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	OracleFactory  OracleFactory
	StorageFactory StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		OracleFactory:  NewOracleFactory(cfg),
		StorageFactory: NewStorageFactory(cfg),
	}
}
