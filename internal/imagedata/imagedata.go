// Package imagedata handles the data-URL envelope that carries an uploaded
// picture between selection and transmission.
package imagedata

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

const (
	dataScheme   = "data:"
	base64Marker = ";base64,"
	imagePrefix  = "image/"
)

var (
	// ErrNotDataURL is returned when the envelope does not start with "data:"
	ErrNotDataURL = errors.New("not a data URL")
	// ErrNotBase64 is returned when the envelope lacks the ";base64," marker
	ErrNotBase64 = errors.New("data URL is not base64 encoded")
	// ErrEmptyMediaType is returned when the envelope carries no media type
	ErrEmptyMediaType = errors.New("data URL has no media type")
)

// IsImageType reports whether a declared media type names an image.
// Parameters such as "; charset=..." are ignored.
func IsImageType(mediaType string) bool {
	return strings.HasPrefix(normalize(mediaType), imagePrefix)
}

// Encode wraps raw bytes into a data URL tagged with mediaType
func Encode(data []byte, mediaType string) string {
	var b strings.Builder
	b.Grow(len(dataScheme) + len(mediaType) + len(base64Marker) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(dataScheme)
	b.WriteString(normalize(mediaType))
	b.WriteString(base64Marker)
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// Split strips the envelope and returns the raw payload and its media type
func Split(dataURL string) ([]byte, string, error) {
	if !strings.HasPrefix(dataURL, dataScheme) {
		return nil, "", ErrNotDataURL
	}

	header, payload, found := strings.Cut(strings.TrimPrefix(dataURL, dataScheme), ",")
	if !found || !strings.HasSuffix(header, ";base64") {
		return nil, "", ErrNotBase64
	}

	mediaType, _, _ := strings.Cut(header, ";")
	if mediaType == "" {
		return nil, "", ErrEmptyMediaType
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, mediaType, nil
}

// Sniff returns the media type implied by the content's magic number, or ""
func Sniff(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// TypeByName guesses a declared media type from a file name, the way a
// browser does for a file input. Unknown extensions yield "".
func TypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := imageExts[ext]; ok {
		return t
	}
	return normalize(mime.TypeByExtension(ext))
}

var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

func normalize(mediaType string) string {
	t, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(t))
}
