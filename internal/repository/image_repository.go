package repository

import (
	"bytes"
	"context"

	"github.com/anime-shed/palm-oracle-go/internal/reading"
	"github.com/anime-shed/palm-oracle-go/internal/storage"
)

// RemoteImageRepository implements ImageRepository on top of a storage fetcher
type RemoteImageRepository struct {
	fetcher storage.ImageFetcher
}

// NewRemoteImageRepository creates a new remote image repository
func NewRemoteImageRepository(fetcher storage.ImageFetcher) ImageRepository {
	return &RemoteImageRepository{
		fetcher: fetcher,
	}
}

// FetchImage downloads imageURL. The declared media type is whatever the
// source reported, so a non-image body is rejected by the controller like
// any other upload.
func (r *RemoteImageRepository) FetchImage(ctx context.Context, imageURL string) (reading.File, error) {
	img, err := r.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return reading.File{}, err
	}

	name := img.Name
	if name == "" {
		name = imageURL
	}
	return reading.File{
		Name:      name,
		MediaType: img.MediaType,
		Content:   bytes.NewReader(img.Data),
	}, nil
}
