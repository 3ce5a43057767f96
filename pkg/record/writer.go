package record

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
)

const (
	// FileExtension is the extension of record files.
	FileExtension = ".parquet"

	// FilenameLayout formats the local file creation time (YYYYMMDD_HHmmss).
	FilenameLayout = "20060102_150405"
)

// ErrFileExists is returned when a record file for the same second already
// exists in the output directory.
var ErrFileExists = errors.New("record file already exists")

// Filename returns the record file name for the given time.
func Filename(t time.Time) string {
	return t.Local().Format(FilenameLayout) + FileExtension
}

// Writer serialises measurements into single-row Parquet files.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a writer that places files in dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir: dir,
		now: time.Now,
	}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write creates a new file holding m as its only row and returns its path.
func (w *Writer) Write(m *Measurement) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	path := filepath.Join(w.dir, Filename(w.now()))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrFileExists, path)
		}

		return "", fmt.Errorf("creating record file: %w", err)
	}

	if err := writeRows(f, []Measurement{*m}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return "", fmt.Errorf("writing record file %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)

		return "", fmt.Errorf("closing record file %s: %w", path, err)
	}

	return path, nil
}

func writeRows(f *os.File, rows []Measurement) error {
	pw := parquet.NewGenericWriter[Measurement](f)

	if _, err := pw.Write(rows); err != nil {
		return err
	}

	return pw.Close()
}

// ReadFile reads all measurements from a record file.
func ReadFile(path string) ([]Measurement, error) {
	rows, err := parquet.ReadFile[Measurement](path)
	if err != nil {
		return nil, fmt.Errorf("reading record file %s: %w", path, err)
	}

	return rows, nil
}
