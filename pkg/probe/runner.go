package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/txlatency/pkg/chain"
	"github.com/ethpandaops/txlatency/pkg/record"
	"github.com/sirupsen/logrus"
)

// Runner performs single latency measurements against one chain client.
type Runner struct {
	log       logrus.FieldLogger
	records   logrus.FieldLogger
	client    chain.Client
	threshold float64
	now       func() time.Time
}

// NewRunner creates a Runner. threshold is the balance, in native units, below
// which a warning is logged before each measurement.
func NewRunner(
	log logrus.FieldLogger,
	client chain.Client,
	threshold float64,
) *Runner {
	l := log.WithField("component", "probe")

	return &Runner{
		log:       l,
		records:   l,
		client:    client,
		threshold: threshold,
		now:       time.Now,
	}
}

// WithRecordLogger routes the per-measurement CSV line to l, typically a
// logger using RecordFormatter.
func (r *Runner) WithRecordLogger(l logrus.FieldLogger) *Runner {
	r.records = l

	return r
}

// Client returns the chain client the runner measures.
func (r *Runner) Client() chain.Client {
	return r.client
}

// Probe runs one measurement. It never fails: chain errors are stored in the
// returned record together with whatever timings were captured before them.
func (r *Runner) Probe(ctx context.Context) *record.Measurement {
	m := record.New(r.now(), r.client.ChainID())

	if err := r.measure(ctx, m); err != nil {
		r.log.WithError(err).Warn("Failed to execute")
		m.Fail(err)
	}

	r.records.Info(m.CSV())

	return m
}

func (r *Runner) measure(ctx context.Context, m *record.Measurement) error {
	balance, err := r.client.Balance(ctx)
	if err != nil {
		return fmt.Errorf("checking balance: %w", err)
	}

	if balance < r.threshold {
		r.log.WithFields(logrus.Fields{
			"address":   r.client.Address(),
			"balance":   balance,
			"threshold": r.threshold,
		}).Warnf("Current balance of %s is less than %v! balance=%v",
			r.client.Address(), r.threshold, balance)
	}

	m.Start(r.now())

	sig, err := r.client.SendSelfTransfer(ctx)
	if err != nil {
		return err
	}

	m.Complete(sig, r.now())

	return nil
}
