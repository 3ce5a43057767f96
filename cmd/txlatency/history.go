package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethpandaops/txlatency/pkg/history"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historySince time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent measurements from the history database",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"number of measurements to list")
	historyCmd.Flags().DurationVar(&historySince, "since", time.Hour,
		"window for the summary line")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !cfg.History.Enabled {
		return fmt.Errorf("history is not enabled (set history.enabled)")
	}

	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	ctx := cmd.Context()

	store := history.NewStore(log, &cfg.History.Database)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting history store: %w", err)
	}

	defer func() { _ = store.Stop() }()

	rows, err := store.ListRecent(ctx, historyLimit)
	if err != nil {
		return err
	}

	summary, err := store.Summary(ctx, time.Now().Add(-historySince).UnixMilli())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "EXECUTED AT\tCHAIN\tLATENCY\tTX\tERROR")

	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%s\t%s\n",
			time.UnixMilli(r.ExecutedAt).Format(time.RFC3339),
			r.Chain, r.Latency, r.TxHash, r.Error)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nlast %s: %d measurements, %d failed, avg %.0fms, min %dms, max %dms\n",
		historySince, summary.Count, summary.Failures,
		summary.AvgLatency, summary.MinLatency, summary.MaxLatency)

	return nil
}
