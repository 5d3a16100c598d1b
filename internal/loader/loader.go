package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

// ExtractedSuffix marks text extracted from a binary upload, e.g. report.pdf.txt.
const ExtractedSuffix = ".txt"

// Loader reads the processed corpus directory.
type Loader struct {
	logger *zap.Logger
}

var _ domain.DocumentLoader = (*Loader)(nil)

func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.Named("loader")}
}

// Load returns one document per .txt or .md file in dir, sorted by file name.
// Extracted PDFs are reported under their original name.
func (l *Loader) Load(ctx context.Context, dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs []domain.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		path := filepath.Join(dir, name)
		text, err := ExtractText(path)
		if err != nil {
			l.logger.Warn("skipping unreadable document", zap.String("path", path), zap.Error(err))
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		filename, fileType := OriginalName(name)
		docs = append(docs, domain.Document{
			Text: text,
			Metadata: domain.DocumentMetadata{
				Filename:  filename,
				FilePath:  path,
				FileType:  fileType,
				SizeBytes: info.Size(),
			},
		})
	}
	l.logger.Info("loaded documents", zap.String("dir", dir), zap.Int("count", len(docs)))
	return docs, nil
}

// OriginalName maps a processed file name back to the uploaded name and its type.
func OriginalName(processed string) (name, fileType string) {
	if base := strings.TrimSuffix(processed, ExtractedSuffix); base != processed && strings.EqualFold(filepath.Ext(base), ".pdf") {
		return base, "pdf"
	}
	return processed, strings.TrimPrefix(strings.ToLower(filepath.Ext(processed)), ".")
}
