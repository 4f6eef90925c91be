package repository

import (
	"context"

	"github.com/anime-shed/palm-oracle-go/internal/reading"
)

// ImageRepository turns an image reference into something the reading
// controller can consume
type ImageRepository interface {
	// FetchImage retrieves the image behind a URL as a selectable file
	FetchImage(ctx context.Context, imageURL string) (reading.File, error)
}
