package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragpipe/internal/config"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ragpipe",
	Short: "Configurable retrieval-augmented generation over your documents",
	Long: `ragpipe uploads documents, chunks and embeds them with the selected
strategy and model, and answers questions with the selected LLM.

Run "ragpipe serve" for the HTTP API or "ragpipe chat" for a terminal chat.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"path to YAML config file (default ./config.yaml, then ~/.config/ragpipe/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
