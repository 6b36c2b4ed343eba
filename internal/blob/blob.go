// Package blob provides access to the async file container: downloads by
// name, downloads through signed URLs, and presigned upload destinations.
package blob

import (
	"context"
	"errors"
	"io"

	"github.com/timeport-io/timeport/internal/models"
)

// ErrNotFound indicates the named blob does not exist in the container.
var ErrNotFound = errors.New("blob not found")

// Store is the storage boundary the import pipeline consumes.
type Store interface {
	// DownloadByName streams a blob from the given container.
	DownloadByName(ctx context.Context, container, fileName string) (io.ReadCloser, error)

	// DownloadBySignedURL streams an externally hosted blob through a
	// signed, time-limited URL.
	DownloadBySignedURL(ctx context.Context, signedURL string) (io.ReadCloser, error)

	// UploadInfo returns presigned upload URLs for client-side uploads
	// of the named files into the async container.
	UploadInfo(ctx context.Context, fileNames []string) (*models.BlobUploadInfo, error)
}
