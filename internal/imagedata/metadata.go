package imagedata

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Metadata describes an uploaded picture without analysing its content
type Metadata struct {
	Size   int    `json:"size"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format,omitempty"`
}

// Describe reads only the image header. Formats Go cannot decode (HEIC, for
// instance) still get a size; the remote model may well accept them.
func Describe(data []byte) Metadata {
	meta := Metadata{Size: len(data)}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return meta
	}
	meta.Width = cfg.Width
	meta.Height = cfg.Height
	meta.Format = format
	return meta
}
