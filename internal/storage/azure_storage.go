package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	apperrors "github.com/anime-shed/palm-oracle-go/internal/errors"
)

// BlobHostSuffix identifies Azure Blob Storage endpoints
const BlobHostSuffix = ".blob.core.windows.net"

// downloadFunc streams one blob and reports its content type
type downloadFunc func(ctx context.Context, container, blob string) (io.ReadCloser, string, error)

// BlobImageFetcher downloads images from the configured storage account
type BlobImageFetcher struct {
	account  string
	download downloadFunc
	maxBytes int64
}

// NewAzureStorage creates a blob fetcher authenticated with a shared key
func NewAzureStorage(accountName, accountKey string, maxBytes int64) (*BlobImageFetcher, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid Azure storage credentials", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s%s", accountName, BlobHostSuffix),
		credential,
		nil,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create Azure blob client", err)
	}

	download := func(ctx context.Context, container, blob string) (io.ReadCloser, string, error) {
		resp, err := client.DownloadStream(ctx, container, blob, nil)
		if err != nil {
			return nil, "", err
		}
		contentType := ""
		if resp.ContentType != nil {
			contentType = *resp.ContentType
		}
		return resp.Body, contentType, nil
	}

	return newBlobImageFetcher(accountName, download, maxBytes), nil
}

func newBlobImageFetcher(account string, download downloadFunc, maxBytes int64) *BlobImageFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &BlobImageFetcher{account: account, download: download, maxBytes: maxBytes}
}

// Account returns the storage account this fetcher can read
func (s *BlobImageFetcher) Account() string {
	return s.account
}

// Fetch downloads the blob addressed by blobURL,
// https://<account>.blob.core.windows.net/<container>/<blob path>
func (s *BlobImageFetcher) Fetch(ctx context.Context, blobURL string) (*RemoteImage, error) {
	container, blob, err := ParseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	body, contentType, err := s.download(ctx, container, blob)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
			return nil, apperrors.NewNotFoundError("blob not found", err).WithDetails(blobURL)
		}
		if ctx.Err() != nil {
			return nil, apperrors.NewTimeoutError("blob download timed out", err)
		}
		return nil, apperrors.NewNetworkError("blob download failed", err)
	}
	defer body.Close()

	data, err := readLimited(body, s.maxBytes)
	if err != nil {
		return nil, err
	}

	name := path.Base(blob)
	return &RemoteImage{
		Data:      data,
		MediaType: resolveMediaType(contentType, name),
		Name:      name,
	}, nil
}

// ParseBlobURL splits a blob URL into container and blob name
func ParseBlobURL(blobURL string) (container, blob string, err error) {
	u, err := url.Parse(blobURL)
	if err != nil {
		return "", "", apperrors.NewValidationError("invalid blob URL", err)
	}
	if !IsBlobHost(u.Hostname()) {
		return "", "", apperrors.NewValidationError("not an Azure blob URL", nil).WithDetails(u.Host)
	}

	container, blob, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if container == "" || blob == "" {
		return "", "", apperrors.NewValidationError("blob URL must name a container and a blob", nil).WithDetails(blobURL)
	}
	if unescaped, err := url.PathUnescape(blob); err == nil {
		blob = unescaped
	}
	return container, blob, nil
}

// IsBlobHost reports whether host is an Azure Blob Storage endpoint
func IsBlobHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), BlobHostSuffix)
}

// AccountFromHost returns the storage account part of a blob host
func AccountFromHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(host), BlobHostSuffix)
}
