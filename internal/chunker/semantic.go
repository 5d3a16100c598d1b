package chunker

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/textutil"
)

type semanticDoc struct {
	doc       domain.Document
	sentences []string
	// distances[i] is the distance between sentence groups i and i+1.
	distances []float64
}

// semanticChunks groups consecutive sentences and starts a new chunk wherever
// the embedding distance between neighbouring sentence windows exceeds the
// configured percentile. The embedder is prepared on, and the percentile
// computed over, every document of the call together.
func (c *Chunker) semanticChunks(ctx context.Context, docs []domain.Document, p params) []domain.Chunk {
	if len(docs) == 0 {
		return nil
	}
	prepared, err := c.semanticDistances(ctx, docs)
	if err != nil {
		c.logger.Warn("semantic chunking failed, falling back to fixed", zap.Error(err))
		var chunks []domain.Chunk
		for _, doc := range docs {
			chunks = append(chunks, c.fixed(doc, params{size: p.size, overlap: p.overlap, strategy: Fixed})...)
		}
		return chunks
	}

	var all []float64
	for _, sd := range prepared {
		all = append(all, sd.distances...)
	}
	threshold := percentile(all, c.percentile)

	var chunks []domain.Chunk
	for _, sd := range prepared {
		var texts []string
		start := 0
		for i, d := range sd.distances {
			if d > threshold {
				texts = append(texts, strings.Join(sd.sentences[start:i+1], " "))
				start = i + 1
			}
		}
		texts = append(texts, strings.Join(sd.sentences[start:], " "))
		chunks = append(chunks, buildChunks(sd.doc, texts, p)...)
	}
	return chunks
}

func (c *Chunker) semanticDistances(ctx context.Context, docs []domain.Document) ([]semanticDoc, error) {
	prepared := make([]semanticDoc, 0, len(docs))
	var groups []string
	for _, doc := range docs {
		sentences := textutil.Sentences(doc.Text)
		prepared = append(prepared, semanticDoc{doc: doc, sentences: sentences})
		groups = append(groups, combineSentences(sentences, c.bufferSize)...)
	}
	if len(groups) == 0 {
		return nil, errNoSplit
	}
	if err := c.semantic.Prepare(ctx, groups); err != nil {
		return nil, err
	}
	vectors, err := c.semantic.EmbedBatch(ctx, groups)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(groups) {
		return nil, errors.New("semantic embedder returned a mismatched batch")
	}

	offset := 0
	for i := range prepared {
		n := len(prepared[i].sentences)
		distances := make([]float64, 0, max(n-1, 0))
		for j := 0; j+1 < n; j++ {
			distances = append(distances, 1-cosine(vectors[offset+j], vectors[offset+j+1]))
		}
		prepared[i].distances = distances
		offset += n
	}
	return prepared, nil
}

// combineSentences joins each sentence with buffer neighbours on either side.
func combineSentences(sentences []string, buffer int) []string {
	out := make([]string, len(sentences))
	for i := range sentences {
		lo := max(i-buffer, 0)
		hi := min(i+buffer+1, len(sentences))
		out[i] = strings.Join(sentences[lo:hi], " ")
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// percentile uses linear interpolation between closest ranks. An empty input
// yields +Inf so that nothing exceeds it.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}
