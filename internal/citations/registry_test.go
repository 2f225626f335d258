package citations

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/northflow/agentcore/internal/tools"
)

func page(n int) *int { return &n }

func TestRegistry_DedupesByDocumentAndPage(t *testing.T) {
	r := New()
	r.Add("parent", []tools.Chunk{
		{ChunkID: "c1", DocumentID: "d1", PageNumber: page(1), Score: 0.8},
		{ChunkID: "c2", DocumentID: "d1", PageNumber: page(1), Score: 0.5}, // same doc+page, dup
		{ChunkID: "c3", DocumentID: "d1", PageNumber: page(2), Score: 0.6},
	})
	require.Equal(t, 2, r.Count())
}

func TestRegistry_MergesAcrossDelegationHops(t *testing.T) {
	r := New()
	r.Add("parent", []tools.Chunk{{ChunkID: "c1", DocumentID: "d1", PageNumber: page(1)}})
	r.Add("child-assistant", []tools.Chunk{{ChunkID: "c2", DocumentID: "d2", PageNumber: page(1)}})

	all := r.All()
	require.Len(t, all, 2)
	require.Equal(t, "parent", all[0].SourceAssistantID)
	require.Equal(t, "child-assistant", all[1].SourceAssistantID)
}

func TestRegistry_FallsBackToChunkIDWithoutPage(t *testing.T) {
	r := New()
	r.Add("parent", []tools.Chunk{
		{ChunkID: "c1", DocumentID: "d1"},
		{ChunkID: "c1", DocumentID: "d1"}, // exact dup
		{ChunkID: "c2", DocumentID: "d1"},
	})
	require.Equal(t, 2, r.Count())
}

func TestRegistry_AddWebResultsDedupesByURL(t *testing.T) {
	r := New()
	r.AddWebResults("parent", []tools.WebResult{
		{Title: "A", URL: "https://example.com/a"},
		{Title: "A again", URL: "https://example.com/a"},
	})
	require.Equal(t, 1, r.Count())
}
