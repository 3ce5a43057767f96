package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/txlatency/pkg/config"
	"github.com/sirupsen/logrus"
)

var (
	// ErrConfirmationTimeout is returned when a submitted transaction is not
	// confirmed before the confirmation timeout elapses.
	ErrConfirmationTimeout = errors.New("timeout waiting for confirmation")

	// ErrTransactionFailed is returned when the network accepted the
	// transaction but executing it failed.
	ErrTransactionFailed = errors.New("transaction failed")
)

// Client is a long-lived connection to a network bound to one signing
// account. Implementations are safe for concurrent use.
type Client interface {
	// Name returns the backend name (e.g. "solana").
	Name() string

	// Address returns the signing account address.
	Address() string

	// ChainID returns the network identifier, or 0 for networks without one.
	ChainID() int64

	// Balance returns the account balance in native units.
	Balance(ctx context.Context) (float64, error)

	// SendSelfTransfer submits a zero-value transfer from the account to
	// itself and blocks until it is confirmed, returning its signature.
	SendSelfTransfer(ctx context.Context) (string, error)

	// Close releases the connection.
	Close() error
}

// Options tune confirmation polling.
type Options struct {
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
}

// OptionsFromConfig extracts the polling options from the probe config.
func OptionsFromConfig(cfg *config.ProbeConfig) Options {
	return Options{
		ConfirmationTimeout: cfg.ConfirmationTimeout,
		PollInterval:        cfg.PollInterval,
	}
}

// New creates the client selected by cfg.Type.
func New(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg *config.ChainConfig,
	opts Options,
) (Client, error) {
	switch cfg.Type {
	case config.ChainTypeSolana:
		return NewSolanaClient(log, cfg, opts)
	case config.ChainTypeEVM:
		return NewEVMClient(ctx, log, cfg, opts)
	default:
		return nil, fmt.Errorf("unsupported chain type %q", cfg.Type)
	}
}

// waitFor calls check every interval until it reports done, returns an
// error, or the timeout elapses. A zero timeout waits until ctx is done.
func waitFor(
	ctx context.Context,
	timeout, interval time.Duration,
	check func(ctx context.Context) (bool, error),
) error {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if interval <= 0 {
		interval = config.DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrConfirmationTimeout
			}

			return err
		}

		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrConfirmationTimeout
			}

			return ctx.Err()
		case <-ticker.C:
		}
	}
}
