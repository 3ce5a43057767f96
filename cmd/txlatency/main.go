package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/txlatency/pkg/config"
	"github.com/ethpandaops/txlatency/pkg/probe"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information set at build time.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFiles []string
	envFile  string
	logLevel string
	log      *logrus.Logger
)

func main() {
	log = logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("Failed to execute command")
	}
}

var rootCmd = &cobra.Command{
	Use:   "txlatency",
	Short: "Transaction confirmation latency probe",
	Long: `txlatency periodically sends a zero-value self-transfer to a blockchain
network, measures how long the transaction takes to confirm and uploads each
measurement as a Parquet file to object storage.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}

		if logLevel == "" {
			return nil
		}

		return setLogLevel(logLevel)
	},
	RunE: runProbe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("txlatency %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVar(&cfgFiles, "config", nil,
		"config file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file loaded before configuration (ignored when missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level, overrides global.log_level ("+strings.Join(logLevels(), ", ")+")")

	rootCmd.Flags().BoolVar(&runOnce, "once", false,
		"run a single probe cycle and exit")

	rootCmd.AddCommand(versionCmd)
}

func setLogLevel(raw string) error {
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", raw, err)
	}

	log.SetLevel(level)

	return nil
}

// loadConfig loads the configuration and applies its log level unless the
// --log-level flag was given.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if logLevel == "" {
		if err := setLogLevel(cfg.Global.LogLevel); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// newRecordLogger returns the stdout logger for bare CSV record lines.
func newRecordLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&probe.RecordFormatter{})
	l.SetLevel(logrus.InfoLevel)

	return l
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}
