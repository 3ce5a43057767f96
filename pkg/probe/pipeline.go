package probe

import (
	"context"
	"fmt"

	"github.com/ethpandaops/txlatency/pkg/history"
	"github.com/ethpandaops/txlatency/pkg/record"
	"github.com/ethpandaops/txlatency/pkg/upload"
	"github.com/sirupsen/logrus"
)

// Pipeline runs complete probe cycles: measure, write the record file, upload
// it and optionally keep it in the history store.
type Pipeline struct {
	log      logrus.FieldLogger
	runner   *Runner
	writer   *record.Writer
	uploader upload.Uploader
	history  history.Store
}

// NewPipeline creates a Pipeline. store may be nil.
func NewPipeline(
	log logrus.FieldLogger,
	runner *Runner,
	writer *record.Writer,
	uploader upload.Uploader,
	store history.Store,
) *Pipeline {
	return &Pipeline{
		log:      log.WithField("component", "pipeline"),
		runner:   runner,
		writer:   writer,
		uploader: uploader,
		history:  store,
	}
}

// RunCycle executes one probe cycle. The measurement is always returned; the
// error reports a failure to persist it, which has already been logged.
func (p *Pipeline) RunCycle(ctx context.Context) (*record.Measurement, error) {
	m := p.runner.Probe(ctx)

	location, err := p.Persist(ctx, m)
	if err != nil {
		p.log.WithError(err).Error("Failed to upload record")
	}

	if p.history != nil {
		client := p.runner.Client()

		if herr := p.history.Insert(ctx, history.FromRecord(
			client.Name(), client.Address(), m, location,
		)); herr != nil {
			p.log.WithError(herr).Warn("Failed to store measurement history")
		}
	}

	return m, err
}

// Persist writes m to a record file and uploads it, returning the remote
// location.
func (p *Pipeline) Persist(ctx context.Context, m *record.Measurement) (string, error) {
	path, err := p.writer.Write(m)
	if err != nil {
		return "", fmt.Errorf("writing record: %w", err)
	}

	location, err := p.uploader.UploadFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}

	return location, nil
}
