package storage

import (
	"context"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/palm-oracle-go/internal/logger"
	"github.com/anime-shed/palm-oracle-go/pkg/validation"
)

// SourceFetcher validates a URL and hands it to the matching backend. Blob
// URLs for the configured account go through the Azure SDK; anything else is
// fetched over HTTP.
type SourceFetcher struct {
	validator *validation.URLValidator
	web       ImageFetcher
	blob      *BlobImageFetcher
}

// NewSourceFetcher creates a routing fetcher. blob may be nil.
func NewSourceFetcher(validator *validation.URLValidator, web ImageFetcher, blob *BlobImageFetcher) *SourceFetcher {
	return &SourceFetcher{validator: validator, web: web, blob: blob}
}

// Fetch downloads the image behind imageURL
func (f *SourceFetcher) Fetch(ctx context.Context, imageURL string) (*RemoteImage, error) {
	imageURL = strings.TrimSpace(imageURL)
	if err := f.validator.ValidateImageURL(imageURL); err != nil {
		return nil, err
	}

	backend := f.web
	source := "http"
	if f.blob != nil {
		if u, err := url.Parse(imageURL); err == nil && IsBlobHost(u.Hostname()) && AccountFromHost(u.Hostname()) == strings.ToLower(f.blob.Account()) {
			backend = f.blob
			source = "azure_blob"
		}
	}

	img, err := backend.Fetch(ctx, imageURL)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"url":    imageURL,
			"source": source,
		}).Warn("Failed to fetch remote image")
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"source":     source,
		"media_type": img.MediaType,
		"bytes":      len(img.Data),
	}).Debug("Fetched remote image")
	return img, nil
}
