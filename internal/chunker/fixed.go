package chunker

import (
	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

// fixed slices a document by rune count.
//
//   - longer than size: windows of size runes, each starting size-overlap
//     after the previous one, capped at maxChunks windows
//   - longer than 200 runes: two halves split just after the first sentence
//     end at or after the midpoint, else exactly at the midpoint
//   - otherwise: the whole text
func (c *Chunker) fixed(doc domain.Document, p params) []domain.Chunk {
	runes := []rune(doc.Text)
	n := len(runes)

	var texts []string
	switch {
	case n > p.size:
		step := p.size - p.overlap
		if step <= 0 {
			step = p.size
		}
		for start := 0; start < n; start += step {
			if len(texts) == c.maxChunks {
				c.logger.Warn("chunk limit reached for document",
					zap.String("filename", doc.Metadata.Filename),
					zap.Int("limit", c.maxChunks))
				break
			}
			end := min(start+p.size, n)
			texts = append(texts, string(runes[start:end]))
		}
	case n > smallDocumentRunes:
		mid := splitPoint(runes)
		texts = []string{string(runes[:mid]), string(runes[mid:])}
	default:
		texts = []string{doc.Text}
	}

	c.logger.Debug("fixed chunking",
		zap.String("filename", doc.Metadata.Filename),
		zap.Int("runes", n),
		zap.Int("chunks", len(texts)))
	return buildChunks(doc, texts, p)
}

// splitPoint returns the index just past the first sentence terminator found
// scanning forward from the midpoint. A terminator in the last position is
// ignored so that neither half is empty.
func splitPoint(runes []rune) int {
	mid := len(runes) / 2
	limit := min(mid+boundarySearchRunes, len(runes))
	for i := mid; i < limit; i++ {
		switch runes[i] {
		case '.', '!', '?', '\n':
			if i+1 < len(runes) {
				return i + 1
			}
		}
	}
	return mid
}
