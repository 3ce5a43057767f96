package upload

import (
	"context"
	"fmt"

	"github.com/ethpandaops/txlatency/pkg/config"
	"github.com/sirupsen/logrus"
)

// ContentType is the content type of uploaded record files.
const ContentType = "application/octet-stream"

// Uploader ships record files to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	Preflight(ctx context.Context) error

	// UploadFile uploads the file at localPath, keyed by its base name, and
	// removes the local copy once the upload succeeded. It returns the
	// remote location of the object.
	UploadFile(ctx context.Context, localPath string) (string, error)
}

// New creates the uploader selected by cfg.Method.
func New(log logrus.FieldLogger, cfg *config.UploadConfig) (Uploader, error) {
	switch cfg.Method {
	case config.UploadMethodS3:
		return NewS3Uploader(log, &cfg.S3)
	case config.UploadMethodLocal:
		return NewLocalUploader(log, &cfg.Local), nil
	default:
		return nil, fmt.Errorf("unsupported upload method %q", cfg.Method)
	}
}
