package chunker

import (
	"errors"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"ragpipe/internal/domain"
)

var errNoSplit = errors.New("splitter produced no usable split")

// recursiveSplit runs the recursive character splitter. A nil separator list
// uses the library's paragraph, line, word, character ladder.
func recursiveSplit(text string, size, overlap int, separators []string) ([]string, error) {
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	}
	if separators != nil {
		opts = append(opts, textsplitter.WithSeparators(separators))
	}
	parts, err := textsplitter.NewRecursiveCharacter(opts...).SplitText(text)
	if err != nil {
		return nil, err
	}
	return compact(parts), nil
}

// tokenSplit sizes chunks in tiktoken tokens rather than characters.
func tokenSplit(text string, size, overlap int, encoding string) ([]string, error) {
	splitter := textsplitter.NewTokenSplitter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithEncodingName(encoding),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	return compact(parts), nil
}

// hierarchical emits each parent chunk followed by the child chunks cut from
// it. Children carry the parent's key. A parent that fits in a single child
// has no children.
func (c *Chunker) hierarchical(doc domain.Document, p params) ([]domain.Chunk, error) {
	parents, err := recursiveSplit(doc.Text, p.size*c.parentFactor, p.overlap, nil)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, errNoSplit
	}

	var chunks []domain.Chunk
	for _, parentText := range parents {
		parent := newChunk(doc, parentText, len(chunks), p)
		parent.Size = p.size * c.parentFactor
		chunks = append(chunks, parent)

		children, err := recursiveSplit(parentText, p.size, p.overlap, nil)
		if err != nil {
			return nil, err
		}
		if len(children) < 2 {
			continue
		}
		for _, childText := range children {
			child := newChunk(doc, childText, len(chunks), p)
			child.Level = 1
			child.ParentID = parent.Key()
			chunks = append(chunks, child)
		}
	}
	return chunks, nil
}

// compact trims every part and drops the blank ones.
func compact(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
