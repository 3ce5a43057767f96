package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/txlatency/pkg/api"
	"github.com/ethpandaops/txlatency/pkg/chain"
	"github.com/ethpandaops/txlatency/pkg/config"
	"github.com/ethpandaops/txlatency/pkg/history"
	"github.com/ethpandaops/txlatency/pkg/probe"
	"github.com/ethpandaops/txlatency/pkg/record"
	"github.com/ethpandaops/txlatency/pkg/scheduler"
	"github.com/ethpandaops/txlatency/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the latency probe",
	Long: `Probe the configured network immediately and then once per interval,
uploading every measurement until interrupted.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOnce, "once", false,
		"run a single probe cycle and exit")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	interval, err := cfg.Probe.IntervalDuration()
	if err != nil {
		return err
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	client, err := chain.New(ctx, log, &cfg.Chain, chain.OptionsFromConfig(&cfg.Probe))
	if err != nil {
		return fmt.Errorf("creating chain client: %w", err)
	}

	defer func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("Failed to close chain client")
		}
	}()

	uploader, err := upload.New(log, &cfg.Upload)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	if cfg.Upload.Method != config.UploadMethodS3 || cfg.Upload.S3.Preflight {
		if err := uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("upload preflight: %w", err)
		}
	}

	var store history.Store

	if cfg.History.Enabled {
		store = history.NewStore(log, &cfg.History.Database)
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("starting history store: %w", err)
		}

		defer func() {
			if err := store.Stop(); err != nil {
				log.WithError(err).Warn("Failed to close history store")
			}
		}()
	}

	pipeline := probe.NewPipeline(
		log,
		probe.NewRunner(log, client, cfg.Chain.BalanceAlertThreshold).
			WithRecordLogger(newRecordLogger()),
		record.NewWriter(cfg.Output.Dir),
		uploader,
		store,
	)

	log.WithFields(logrus.Fields{
		"chain":    client.Name(),
		"address":  client.Address(),
		"interval": interval.String(),
		"upload":   cfg.Upload.Method,
	}).Info("Probe configured")

	if runOnce {
		return runSingleCycle(ctx, pipeline)
	}

	if cfg.API.Enabled {
		srv := api.NewServer(log, &cfg.API, store, api.Info{
			Chain:    client.Name(),
			Address:  client.Address(),
			ChainID:  client.ChainID(),
			Interval: interval.String(),
		})

		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting api server: %w", err)
		}

		defer func() {
			if err := srv.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop api server")
			}
		}()
	}

	sched := scheduler.New(log, interval, cfg.Probe.MaxConcurrent,
		func(ctx context.Context) {
			_, _ = pipeline.RunCycle(ctx)
		},
	)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	<-ctx.Done()

	log.Info("Shutting down, waiting for running probe cycles")

	return sched.Stop()
}

// runSingleCycle runs one cycle and fails when the measurement or its upload
// failed.
func runSingleCycle(ctx context.Context, pipeline *probe.Pipeline) error {
	m, err := pipeline.RunCycle(ctx)
	if err != nil {
		return err
	}

	if m.Error != "" {
		return fmt.Errorf("probe failed: %s", m.Error)
	}

	return nil
}
