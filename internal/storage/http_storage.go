// Package storage fetches palm images that live somewhere other than the
// user's disk: plain web servers and Azure Blob Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	apperrors "github.com/anime-shed/palm-oracle-go/internal/errors"
	"github.com/anime-shed/palm-oracle-go/internal/imagedata"
	"github.com/anime-shed/palm-oracle-go/pkg/validation"
)

// DefaultMaxImageBytes caps the size of a downloaded image
const DefaultMaxImageBytes = 10 << 20

// RemoteImage is a downloaded image and what the source said about it
type RemoteImage struct {
	Data      []byte
	MediaType string
	Name      string
}

// ImageFetcher downloads the image behind a URL
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (*RemoteImage, error)
}

// errBlockedAddress is returned by the dialer for non-public addresses
var errBlockedAddress = errors.New("address is not publicly routable")

// maxRedirects bounds how many redirects one fetch follows
const maxRedirects = 3

// HTTPImageFetcher downloads images over plain HTTP(S)
type HTTPImageFetcher struct {
	client       *http.Client
	maxBytes     int64
	validator    *validation.URLValidator
	allowPrivate bool
}

// HTTPOption configures an HTTPImageFetcher
type HTTPOption func(*HTTPImageFetcher)

// WithRedirectValidator checks every redirect target with v
func WithRedirectValidator(v *validation.URLValidator) HTTPOption {
	return func(h *HTTPImageFetcher) { h.validator = v }
}

// WithPrivateNetworks lets the fetcher connect to loopback, private and
// link-local addresses
func WithPrivateNetworks(allow bool) HTTPOption {
	return func(h *HTTPImageFetcher) { h.allowPrivate = allow }
}

// NewHTTPImageFetcher creates an HTTP image fetcher. A single attempt is made
// per fetch. Connections to non-public addresses are refused unless
// WithPrivateNetworks is given.
func NewHTTPImageFetcher(timeout time.Duration, maxBytes int64, opts ...HTTPOption) *HTTPImageFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}

	h := &HTTPImageFetcher{maxBytes: maxBytes}
	for _, opt := range opts {
		opt(h)
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !h.allowPrivate {
		dialer.Control = refusePrivateAddress
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		MaxIdleConns:           10,
		MaxIdleConnsPerHost:    2,
		IdleConnTimeout:        30 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,
	}

	h.client = &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: h.checkRedirect,
	}
	return h
}

func (h *HTTPImageFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("too many redirects (limit: %d)", maxRedirects)
	}
	if h.validator != nil {
		return h.validator.ValidateImageURL(req.URL.String())
	}
	return nil
}

// refusePrivateAddress runs after name resolution, so it also covers public
// names that resolve to internal addresses
func refusePrivateAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !validation.IsPublicAddress(ip) {
		return fmt.Errorf("%w: %s", errBlockedAddress, host)
	}
	return nil
}

// Fetch downloads imageURL
func (h *HTTPImageFetcher) Fetch(ctx context.Context, imageURL string) (*RemoteImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image URL", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Palm-Oracle/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			// a redirect target failed validation
			return nil, appErr
		}
		if errors.Is(err, errBlockedAddress) {
			return nil, apperrors.NewValidationError("URL host not allowed", err)
		}
		if ctx.Err() != nil || isTimeout(err) {
			return nil, apperrors.NewTimeoutError("image download timed out", err)
		}
		return nil, apperrors.NewNetworkError("failed to download image", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NewNotFoundError("image not found", nil).WithDetails(imageURL)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, apperrors.NewNetworkError(fmt.Sprintf("client error: status code %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.NewNetworkError(fmt.Sprintf("server error: status code %d", resp.StatusCode), nil)
	}

	data, err := readLimited(resp.Body, h.maxBytes)
	if err != nil {
		return nil, err
	}

	name := nameFromURL(imageURL)
	return &RemoteImage{
		Data:      data,
		MediaType: resolveMediaType(resp.Header.Get("Content-Type"), name),
		Name:      name,
	}, nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, apperrors.NewReadError("failed to read image body", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, apperrors.NewValidationError("image exceeds size limit", nil).
			WithDetails(fmt.Sprintf("limit %d bytes", maxBytes))
	}
	if len(data) == 0 {
		return nil, apperrors.NewReadError("image is empty", nil)
	}
	return data, nil
}

// resolveMediaType trusts the declared type unless it is missing or generic,
// then falls back to the file extension
func resolveMediaType(declared, name string) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}
	if byName := imagedata.TypeByName(name); byName != "" {
		return byName
	}
	return strings.TrimSpace(declared)
}

func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
