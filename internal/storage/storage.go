// Package storage uploads bundles to durable content storage.
package storage

import (
	"context"
	"fmt"

	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/fetch"
)

// File is one media file to upload under its placeholder name.
type File struct {
	Path        string
	ContentType string
	Placeholder string
}

// Uploader publishes a bundle's media files and manifest and returns the
// stable content link of the manifest.
type Uploader interface {
	Upload(ctx context.Context, files []File, manifest []byte) (string, error)
}

// UploadError describes a failed upload request.
type UploadError struct {
	Status  int
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	msg := "upload failed"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s with status %d", msg, e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UploadError) Unwrap() error { return e.Err }

// New builds the uploader selected by cfg.
func New(cfg config.StorageConfig, env string, fetcher fetch.HTTPFetcher) (Uploader, error) {
	switch cfg.Backend {
	case config.StorageArweave:
		return NewArweaveUploader(cfg.Endpoint, cfg.Gateway, env, fetcher), nil
	default:
		return nil, &config.ConfigError{Key: "storage.backend", Message: fmt.Sprintf("unsupported storage backend %q", cfg.Backend)}
	}
}
