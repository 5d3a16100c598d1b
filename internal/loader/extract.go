package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText returns the plain text of a .txt, .md or .pdf file.
func ExtractText(path string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "txt", "md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return toValidUTF8(data), nil
	case "pdf":
		return extractPDF(path)
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

// extractPDF reads every page's text layer. The parser panics on some
// malformed files, so panics are turned into errors.
func extractPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf %s: %v", filepath.Base(path), r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return toValidUTF8(buf.Bytes()), nil
}

func toValidUTF8(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}
