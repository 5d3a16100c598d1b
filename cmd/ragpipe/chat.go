package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/ingest"
	"ragpipe/internal/logger"
	"ragpipe/internal/tui"
)

var chatFlags struct {
	provider     string
	model        string
	embedder     string
	strategy     string
	chunkSize    int
	chunkOverlap int
}

var chatCmd = &cobra.Command{
	Use:   "chat [flags] file...",
	Short: "Index files and chat with them in the terminal",
	Long: `Uploads the given files (globs are expanded), builds the pipeline with
the selected settings and opens an interactive chat.

The corpus lives in a temporary directory removed on exit, so a running
server's documents are never touched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	f := chatCmd.Flags()
	f.StringVar(&chatFlags.provider, "provider", "", "LLM provider (default from config)")
	f.StringVar(&chatFlags.model, "model", "", "LLM model (default from config)")
	f.StringVar(&chatFlags.embedder, "embedder", "", "embedder name (default tfidf when registered)")
	f.StringVar(&chatFlags.strategy, "strategy", domain.DefaultStrategy, "chunking strategy")
	f.IntVar(&chatFlags.chunkSize, "chunk-size", domain.DefaultChunkSize, "chunk size")
	f.IntVar(&chatFlags.chunkOverlap, "chunk-overlap", domain.DefaultChunkOverlap, "chunk overlap")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The TUI owns the terminal, so logs only go to the file.
	log, err := logger.NewFileOnly(cfg.Log.FilePath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "ragpipe-chat-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)
	storage := cfg.Storage
	storage.RawDir = filepath.Join(workDir, "raw")
	storage.ProcessedDir = filepath.Join(workDir, "documents")

	a := newApp(cfg, storage, log)
	defer a.Close()
	ctx := cmd.Context()

	report, err := a.service.Upload(ctx, files)
	for _, r := range report.Files {
		if !r.Success {
			cmd.PrintErrf("skipped %s: %s\n", r.Original, r.Error)
		}
	}
	if err != nil {
		return err
	}

	sel, err := a.service.Configure(chatSelection(cfg))
	if err != nil {
		return err
	}
	cmd.Printf("Building %s pipeline with %s/%s and %s embeddings...\n",
		sel.ChunkingStrategy, sel.Provider, sel.Model, sel.Embedder)

	build, err := a.service.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize failed (%s): %w", domain.Kind(err), err)
	}
	defer a.service.Close(ctx)

	title := fmt.Sprintf("%s  %d docs, %d chunks, top_k=%d", cfg.AppName, build.Documents, build.Chunks, build.TopK)
	m := tui.New(ctx, a.service, title, build.Summary)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func chatSelection(cfg *config.AppConfig) domain.Selection {
	sel := domain.Selection{
		Provider:         chatFlags.provider,
		Model:            chatFlags.model,
		Embedder:         chatFlags.embedder,
		ChunkingStrategy: chatFlags.strategy,
		ChunkSize:        chatFlags.chunkSize,
		ChunkOverlap:     chatFlags.chunkOverlap,
	}
	if sel.Provider == "" {
		sel.Provider = cfg.DefaultProvider
		if sel.Model == "" {
			sel.Model = cfg.DefaultModel
		}
	}
	if sel.Model == "" {
		if p, ok := cfg.Providers[sel.Provider]; ok && len(p.Models) > 0 {
			sel.Model = p.Models[0]
		}
	}
	if sel.Embedder == "" {
		names := cfg.Options().Embedders
		if slices.Contains(names, "tfidf") {
			sel.Embedder = "tfidf"
		} else if len(names) > 0 {
			sel.Embedder = names[0]
		}
	}
	return sel
}

// collectFiles expands globs and keeps argument order. Literal paths that
// match nothing are kept so the error names them.
func collectFiles(args []string) ([]ingest.File, error) {
	var files []ingest.File
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if matches == nil {
			matches = []string{arg}
		}
		sort.Strings(matches)
		for _, path := range matches {
			f, err := ingest.FromPath(path)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}
