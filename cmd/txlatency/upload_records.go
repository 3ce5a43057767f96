package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethpandaops/txlatency/pkg/record"
	"github.com/ethpandaops/txlatency/pkg/upload"
	"github.com/spf13/cobra"
)

var uploadRecordsDir string

var uploadRecordsCmd = &cobra.Command{
	Use:   "upload-records",
	Short: "Upload leftover record files to remote storage",
	Long: `Upload record files that remained in the output directory after a failed
upload, using the configured upload method. Uploaded files are removed.`,
	RunE: runUploadRecords,
}

func init() {
	rootCmd.AddCommand(uploadRecordsCmd)
	uploadRecordsCmd.Flags().StringVar(&uploadRecordsDir, "dir", "",
		"directory holding record files (defaults to output.dir)")
}

func runUploadRecords(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := uploadRecordsDir
	if dir == "" {
		dir = cfg.Output.Dir
	}

	uploader, err := upload.New(log, &cfg.Upload)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*"+record.FileExtension))
	if err != nil {
		return fmt.Errorf("listing record files: %w", err)
	}

	sort.Strings(files)

	if len(files) == 0 {
		log.WithField("dir", dir).Info("No record files to upload")

		return nil
	}

	ctx := cmd.Context()

	var failed int

	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		location, err := uploader.UploadFile(ctx, path)
		if err != nil {
			failed++

			log.WithError(err).WithField("file", path).Error("Failed to upload record")

			continue
		}

		log.WithField("file", path).WithField("location", location).Info("Record uploaded")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d record files failed to upload", failed, len(files))
	}

	log.WithField("count", len(files)).Info("Upload completed successfully")

	return nil
}
