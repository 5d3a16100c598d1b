package pipeline

import (
	"fmt"
	"strings"

	"ragpipe/internal/domain"
)

// buildPrompt packs the retrieved chunks into a single grounded prompt.
func buildPrompt(question string, hits []domain.SearchResult) string {
	var prompt strings.Builder

	prompt.WriteString("<reference_material>\n")
	for i, h := range hits {
		fmt.Fprintf(&prompt, "[%d] %s\n", i+1, h.Chunk.Filename)
		prompt.WriteString(strings.TrimSpace(h.Chunk.Text))
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("</reference_material>\n\n")

	prompt.WriteString("<guidelines>\n")
	prompt.WriteString("1. Answer using only the reference material above\n")
	prompt.WriteString("2. If the material doesn't contain the answer, say so honestly\n")
	prompt.WriteString("3. Do not list sources, they are returned separately\n")
	prompt.WriteString("</guidelines>\n\n")

	prompt.WriteString("<user_question>\n")
	prompt.WriteString(question)
	prompt.WriteString("\n</user_question>\n\n")
	prompt.WriteString("Answer:")
	return prompt.String()
}
