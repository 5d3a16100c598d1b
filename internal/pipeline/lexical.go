package pipeline

import (
	"math"
	"sort"

	"ragpipe/internal/domain"
	"ragpipe/internal/textutil"
)

// lexicalSearch ranks chunks by word overlap with the query. It is used when
// the embedder has no vocabulary for the question.
func lexicalSearch(query string, chunks []domain.Chunk, topK int) []domain.SearchResult {
	qset := tokenSet(query)
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(chunks))
	for i, ch := range chunks {
		scores[i] = pair{i, ochiai(qset, tokenSet(ch.Text))}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	topK = min(topK, len(scores))
	out := make([]domain.SearchResult, 0, topK)
	for _, p := range scores[:topK] {
		out = append(out, domain.SearchResult{Chunk: chunks[p.idx], Score: p.score})
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	words := textutil.Words(s)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// ochiai is |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
