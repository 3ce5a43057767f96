package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/ethpandaops/txlatency/pkg/config"
	"github.com/sirupsen/logrus"
)

// localUploader moves record files into an archive directory.
type localUploader struct {
	log logrus.FieldLogger
	dir string
}

// Ensure interface compliance.
var _ Uploader = (*localUploader)(nil)

// NewLocalUploader creates an uploader that archives files under cfg.Dir.
func NewLocalUploader(log logrus.FieldLogger, cfg *config.LocalUploadConfig) Uploader {
	return &localUploader{
		log: log.WithField("component", "local-uploader"),
		dir: cfg.Dir,
	}
}

// Preflight ensures the archive directory exists and is writable.
func (u *localUploader) Preflight(_ context.Context) error {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}

	f, err := os.CreateTemp(u.dir, ".txlatency-write-test-*")
	if err != nil {
		return fmt.Errorf("writing to archive dir %s: %w", u.dir, err)
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(name)
}

// UploadFile moves localPath into the archive directory.
func (u *localUploader) UploadFile(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}

	dst := filepath.Join(u.dir, filepath.Base(localPath))

	if err := os.Rename(localPath, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", fmt.Errorf("moving %s: %w", localPath, err)
		}

		if err := copyFile(localPath, dst); err != nil {
			return "", fmt.Errorf("copying %s: %w", localPath, err)
		}

		if err := os.Remove(localPath); err != nil {
			u.log.WithError(err).
				WithField("file", localPath).
				Warn("Failed to remove archived record file")
		}
	}

	u.log.WithField("location", dst).Debug("Record archived")

	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
