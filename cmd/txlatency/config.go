package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)

		if err := enc.Encode(cfg.Redacted()); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}

		if err := enc.Close(); err != nil {
			return err
		}

		if err := cfg.Validate(); err != nil {
			log.WithError(err).Warn("Configuration is not valid")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
