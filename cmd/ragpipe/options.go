package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var optionsJSON bool

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List registered providers, embedders and chunking strategies",
	Args:  cobra.NoArgs,
	RunE:  runOptions,
}

func init() {
	optionsCmd.Flags().BoolVar(&optionsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(optionsCmd)
}

func runOptions(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts := cfg.Options()

	if optionsJSON {
		data, err := json.MarshalIndent(opts, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println("Providers:")
	for _, name := range opts.ProviderNames() {
		marker := ""
		if name == opts.DefaultSettings.Provider {
			marker = " (default)"
		}
		cmd.Printf("  %s%s: %s\n", name, marker, strings.Join(opts.Providers[name], ", "))
	}
	cmd.Printf("Embedders: %s\n", strings.Join(opts.Embedders, ", "))
	cmd.Printf("Chunking strategies: %s\n", strings.Join(opts.ChunkingStrategies, ", "))
	cmd.Printf("Chunk size: %d-%d (default %d)\n",
		opts.ChunkSizeRange.Min, opts.ChunkSizeRange.Max, opts.ChunkSizeRange.Default)
	cmd.Printf("Chunk overlap: %d-%d (default %d)\n",
		opts.ChunkOverlapRange.Min, opts.ChunkOverlapRange.Max, opts.ChunkOverlapRange.Default)
	cmd.Printf("Document types: %s (max %d MB)\n", strings.Join(opts.DocumentTypes, ", "), opts.MaxFileSizeMB)
	return nil
}
