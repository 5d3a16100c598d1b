package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memFile(name string, data []byte) File {
	return File{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func newTestIngestor(t *testing.T) (*Ingestor, string, string) {
	t.Helper()
	root := t.TempDir()
	raw := filepath.Join(root, "raw")
	processed := filepath.Join(root, "documents")
	ing := New(Config{
		RawDir:        raw,
		ProcessedDir:  processed,
		DocumentTypes: []string{"txt", "md", ".PDF"},
		MaxFileSizeMB: 1,
	}, zap.NewNop())
	return ing, raw, processed
}

func TestSave_WritesRawAndProcessed(t *testing.T) {
	ing, raw, processed := newTestIngestor(t)
	ing.extract = func(path string) (string, error) {
		if filepath.Ext(path) == ".pdf" {
			return "pdf body", nil
		}
		data, err := os.ReadFile(path)
		return string(data), err
	}

	report := ing.Save(context.Background(), []File{
		memFile("notes.txt", []byte("plain notes")),
		memFile("../../escape.md", []byte("# heading")),
		memFile("paper.pdf", []byte("%PDF-1.4")),
	})

	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.True(t, report.CorpusReplaced)
	assert.Equal(t, "escape.md", report.Files[1].Original)
	assert.Equal(t, "paper.pdf.txt", report.Files[2].Processed)

	assert.FileExists(t, filepath.Join(raw, "paper.pdf"))
	assert.FileExists(t, filepath.Join(raw, "escape.md"))
	data, err := os.ReadFile(filepath.Join(processed, "paper.pdf.txt"))
	require.NoError(t, err)
	assert.Equal(t, "pdf body", string(data))

	names, err := ing.ProcessedFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"escape.md", "notes.txt", "paper.pdf"}, names)
}

func TestSave_InvalidFilesNeverTouchDisk(t *testing.T) {
	ing, _, processed := newTestIngestor(t)
	first := ing.Save(context.Background(), []File{memFile("keep.txt", []byte("previous corpus"))})
	require.Equal(t, 1, first.Succeeded)

	report := ing.Save(context.Background(), []File{
		memFile("image.png", []byte{1, 2, 3}),
		memFile("", []byte("anonymous")),
		memFile("huge.txt", bytes.Repeat([]byte("x"), 1024*1024+1)),
	})

	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 3, report.Failed)
	assert.False(t, report.CorpusReplaced)
	for _, r := range report.Files {
		assert.Equal(t, "InvalidInput", r.ErrorKind)
	}
	assert.FileExists(t, filepath.Join(processed, "keep.txt"))
}

func TestSave_ExtractionFailuresArePerFile(t *testing.T) {
	ing, _, processed := newTestIngestor(t)
	ing.extract = func(path string) (string, error) {
		switch filepath.Base(path) {
		case "broken.pdf":
			return "", errors.New("malformed xref")
		case "blank.txt":
			return "   \n", nil
		}
		return "fine", nil
	}

	report := ing.Save(context.Background(), []File{
		memFile("broken.pdf", []byte("junk")),
		memFile("blank.txt", []byte("   \n")),
		memFile("good.txt", []byte("fine")),
	})

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, "ExtractionFailed", report.Files[0].ErrorKind)
	assert.Equal(t, "ExtractionFailed", report.Files[1].ErrorKind)
	assert.True(t, report.Files[2].Success)

	entries, err := os.ReadDir(processed)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good.txt", entries[0].Name())
}

func TestSave_UnderreportedSizeIsCaught(t *testing.T) {
	ing, raw, _ := newTestIngestor(t)
	f := memFile("liar.txt", bytes.Repeat([]byte("y"), 1024*1024+10))
	f.Size = 10

	report := ing.Save(context.Background(), []File{f})
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, "InvalidInput", report.Files[0].ErrorKind)
	assert.NoFileExists(t, filepath.Join(raw, "liar.txt"))
}

func TestClear(t *testing.T) {
	ing, raw, processed := newTestIngestor(t)
	ing.Save(context.Background(), []File{memFile("a.txt", []byte("a"))})

	require.NoError(t, ing.Clear())
	names, err := ing.ProcessedFiles()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.DirExists(t, raw)
	assert.DirExists(t, processed)
}

func TestFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.md")
	require.NoError(t, os.WriteFile(path, []byte("# on disk"), 0o644))

	f, err := FromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "disk.md", f.Name)
	assert.EqualValues(t, 9, f.Size)

	_, err = FromPath(filepath.Dir(path))
	assert.Error(t, err)
}

func TestSave_RejectsDuplicateNames(t *testing.T) {
	ing, _, processed := newTestIngestor(t)

	report := ing.Save(context.Background(), []File{
		memFile("same.txt", []byte("first")),
		memFile("same.txt", []byte("second")),
		memFile("SAME.txt", []byte("third")),
	})

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.True(t, report.Files[0].Success)
	assert.Equal(t, "InvalidInput", report.Files[1].ErrorKind)
	assert.Equal(t, "InvalidInput", report.Files[2].ErrorKind)

	data, err := os.ReadFile(filepath.Join(processed, "same.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	names, err := ing.ProcessedFiles()
	require.NoError(t, err)
	assert.Len(t, names, report.Succeeded)
}

func TestSave_RejectsNamesThatLookExtracted(t *testing.T) {
	ing, _, _ := newTestIngestor(t)
	ing.extract = func(path string) (string, error) { return "text of " + filepath.Base(path), nil }

	report := ing.Save(context.Background(), []File{
		memFile("notes.pdf", []byte("%PDF-1.4")),
		memFile("notes.pdf.txt", []byte("plain text")),
	})

	assert.Equal(t, 1, report.Succeeded)
	assert.True(t, report.Files[0].Success)
	assert.False(t, report.Files[1].Success)
	assert.Equal(t, "InvalidInput", report.Files[1].ErrorKind)
	assert.Contains(t, report.Files[1].Error, "notes.pdf")

	alone := ing.Save(context.Background(), []File{memFile("notes.pdf.txt", []byte("plain text"))})
	assert.Equal(t, 0, alone.Succeeded)
	assert.False(t, alone.CorpusReplaced)

	names, err := ing.ProcessedFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.pdf"}, names)
}
