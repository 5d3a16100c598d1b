package ingest

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/loader"
)

// File is one uploaded file. Open is called at most once.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FromMultipart adapts a multipart form file.
func FromMultipart(fh *multipart.FileHeader) File {
	return File{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// FromPath adapts a file on local disk.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// FileResult is the outcome for a single uploaded file.
type FileResult struct {
	Original  string `json:"original"`
	Success   bool   `json:"success"`
	Processed string `json:"processed,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// UploadReport summarises an upload batch.
type UploadReport struct {
	Files     []FileResult `json:"files"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	// CorpusReplaced is true when the previous corpus was cleared.
	CorpusReplaced bool `json:"corpus_replaced"`
}

// Config configures an Ingestor.
type Config struct {
	RawDir        string
	ProcessedDir  string
	DocumentTypes []string
	MaxFileSizeMB int
}

// Ingestor validates uploads and persists them as raw bytes plus extracted text.
type Ingestor struct {
	rawDir       string
	processedDir string
	types        []string
	maxBytes     int64
	extract      func(path string) (string, error)
	logger       *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	types := make([]string, len(cfg.DocumentTypes))
	for i, t := range cfg.DocumentTypes {
		types[i] = strings.ToLower(strings.TrimPrefix(t, "."))
	}
	return &Ingestor{
		rawDir:       cfg.RawDir,
		processedDir: cfg.ProcessedDir,
		types:        types,
		maxBytes:     int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		extract:      loader.ExtractText,
		logger:       logger.Named("ingest"),
	}
}

// ProcessedDir is the directory the pipeline loads documents from.
func (i *Ingestor) ProcessedDir() string { return i.processedDir }

// Save validates every file first. Invalid files are reported and never
// written. When at least one file is valid the previous corpus is removed,
// then each valid file is written and extracted independently.
func (i *Ingestor) Save(ctx context.Context, files []File) UploadReport {
	report := UploadReport{Files: make([]FileResult, len(files))}
	valid := make([]int, 0, len(files))
	seen := make(map[string]string, len(files))
	for idx, f := range files {
		name, err := i.validate(f, seen)
		report.Files[idx] = FileResult{Original: name, SizeBytes: f.Size}
		if err != nil {
			report.Files[idx].Original = f.Name
			report.Files[idx].Error = err.Error()
			report.Files[idx].ErrorKind = domain.Kind(err)
			i.logger.Warn("rejected upload", zap.String("filename", f.Name), zap.Error(err))
			continue
		}
		valid = append(valid, idx)
	}

	if len(valid) > 0 {
		if err := i.Clear(); err != nil {
			i.logger.Error("failed to clear corpus", zap.Error(err))
			for _, idx := range valid {
				report.Files[idx].Error = err.Error()
				report.Files[idx].ErrorKind = domain.Kind(err)
			}
			valid = nil
		} else {
			report.CorpusReplaced = true
		}
	}

	for _, idx := range valid {
		if err := ctx.Err(); err != nil {
			report.Files[idx].Error = err.Error()
			report.Files[idx].ErrorKind = domain.Kind(err)
			continue
		}
		processed, err := i.store(report.Files[idx].Original, files[idx])
		if err != nil {
			report.Files[idx].Error = err.Error()
			report.Files[idx].ErrorKind = domain.Kind(err)
			i.logger.Warn("upload failed", zap.String("filename", report.Files[idx].Original), zap.Error(err))
			continue
		}
		report.Files[idx].Success = true
		report.Files[idx].Processed = processed
		i.logger.Info("saved upload", zap.String("filename", report.Files[idx].Original), zap.String("processed", processed))
	}

	for _, r := range report.Files {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}

// validate checks f and records its processed name in seen. A file whose
// processed name is already taken in the batch, or whose processed name would
// be listed under a different original name, is rejected.
func (i *Ingestor) validate(f File, seen map[string]string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(f.Name), "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("%w: missing file name", domain.ErrInvalidInput)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !slices.Contains(i.types, ext) {
		return "", fmt.Errorf("%w: unsupported file type %q, allowed: %s",
			domain.ErrInvalidInput, ext, strings.Join(i.types, ", "))
	}
	if i.maxBytes > 0 && f.Size > i.maxBytes {
		return "", fmt.Errorf("%w: %s is %d bytes, limit is %d", domain.ErrInvalidInput, name, f.Size, i.maxBytes)
	}
	if f.Open == nil {
		return "", fmt.Errorf("%w: %s has no content", domain.ErrInvalidInput, name)
	}

	processed := processedName(name)
	if orig, _ := loader.OriginalName(processed); orig != name {
		return "", fmt.Errorf("%w: %s clashes with the text extracted from %s", domain.ErrInvalidInput, name, orig)
	}
	key := strings.ToLower(processed)
	if prev, ok := seen[key]; ok {
		return "", fmt.Errorf("%w: %s duplicates %s in this upload", domain.ErrInvalidInput, name, prev)
	}
	seen[key] = name
	return name, nil
}

// processedName is the file name the extracted text of name is stored under.
func processedName(name string) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != ".txt" && ext != ".md" {
		return name + loader.ExtractedSuffix
	}
	return name
}

// store writes the raw bytes, extracts text and writes it to the processed dir.
func (i *Ingestor) store(name string, f File) (string, error) {
	rawPath := filepath.Join(i.rawDir, name)
	if err := i.writeRaw(rawPath, f); err != nil {
		return "", err
	}

	text, err := i.extract(rawPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrExtractionFailed, name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s: no text content", domain.ErrExtractionFailed, name)
	}

	processed := processedName(name)
	if err := os.WriteFile(filepath.Join(i.processedDir, processed), []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write processed text: %w", err)
	}
	return processed, nil
}

func (i *Ingestor) writeRaw(path string, f File) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raw file: %w", err)
	}
	var reader io.Reader = src
	if i.maxBytes > 0 {
		reader = io.LimitReader(src, i.maxBytes+1)
	}
	n, err := io.Copy(dst, reader)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write raw file: %w", err)
	}
	if i.maxBytes > 0 && n > i.maxBytes {
		_ = os.Remove(path)
		return fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, filepath.Base(path), i.maxBytes)
	}
	return nil
}

// ProcessedFiles lists the uploaded names of the documents in the corpus.
func (i *Ingestor) ProcessedFiles() ([]string, error) {
	entries, err := os.ReadDir(i.processedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, _ := loader.OriginalName(e.Name())
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Clear removes and recreates both the raw and processed directories.
func (i *Ingestor) Clear() error {
	for _, dir := range []string{i.rawDir, i.processedDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
