package tools

import (
	"encoding/json"
	"strconv"
	"strings"
)

// formatChunks renders retrieved chunks as the context string appended to
// the tool message the LLM sees (SPEC_FULL.md §4.4 RETRIEVAL success path).
func formatChunks(chunks []Chunk) string {
	if len(chunks) == 0 {
		return "No matching documents found."
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[")
		b.WriteString(c.DocumentFilename)
		if c.PageNumber != nil {
			b.WriteString(" p.")
			b.WriteString(strconv.Itoa(*c.PageNumber))
		}
		b.WriteString("] ")
		b.WriteString(excerpt(c.Excerpt, 200))
	}
	return b.String()
}

func excerpt(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func jsonOrError(v map[string]any) string {
	if errMsg, ok := v["error"]; ok {
		b, _ := json.Marshal(map[string]any{"error": errMsg})
		return string(b)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"` + err.Error() + `"}`
	}
	return string(b)
}

// CitationsFromChunks projects retrieved chunks into the citation metadata
// shape accumulated by the agent loop (chunk_id, document_id,
// document_filename, page_number, excerpt truncated to 200 runes, score).
func CitationsFromChunks(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		c.Excerpt = excerpt(c.Excerpt, 200)
		out[i] = c
	}
	return out
}
