// Package citations implements a per-run citation registry that deduplicates
// citations contributed by the agent loop and by any delegation hops, by
// document + page (falling back to document + chunk when no page applies).
//
// This is a supplemented feature: SPEC_FULL.md §12 grounds it on
// original_source/app/core/citation_registry.py, which the distilled spec
// folded into the loop algorithm's prose ("merge delegation citations") but
// never named as a type of its own.
package citations

import (
	"strconv"

	"github.com/northflow/agentcore/internal/tools"
)

// Entry is one deduplicated citation, annotated with which assistant (parent
// or a delegated child) first contributed it.
type Entry struct {
	tools.Chunk
	URL               string
	SourceAssistantID string
}

func (e Entry) dedupKey() string {
	if e.PageNumber != nil {
		return e.DocumentID + ":p" + strconv.Itoa(*e.PageNumber)
	}
	return e.DocumentID + ":" + e.ChunkID
}

// Registry accumulates citations for a single run, preserving insertion order
// and dropping duplicates (same document+page, or document+chunk when no
// page number applies). It is not safe for concurrent use; like the Budget
// Manager, it is owned by the single goroutine driving one run.
type Registry struct {
	seen    map[string]struct{}
	entries []Entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{seen: make(map[string]struct{})}
}

// Add merges a batch of citations into the registry, skipping any whose
// dedup key has already been seen. sourceAssistantID identifies which
// assistant (the parent, or a delegated child) produced this batch; it is
// only recorded on the first contribution of a given citation.
func (r *Registry) Add(sourceAssistantID string, chunks []tools.Chunk) {
	for _, c := range chunks {
		e := Entry{Chunk: c, SourceAssistantID: sourceAssistantID}
		key := e.dedupKey()
		if _, dup := r.seen[key]; dup {
			continue
		}
		r.seen[key] = struct{}{}
		r.entries = append(r.entries, e)
	}
}

// AddWebResults merges web-search results, which carry a URL instead of a
// document/page pair, deduplicated by URL.
func (r *Registry) AddWebResults(sourceAssistantID string, results []tools.WebResult) {
	for _, wr := range results {
		key := "web:" + wr.URL
		if _, dup := r.seen[key]; dup {
			continue
		}
		r.seen[key] = struct{}{}
		r.entries = append(r.entries, Entry{
			Chunk:             tools.Chunk{DocumentFilename: wr.Title, Score: wr.Score},
			URL:               wr.URL,
			SourceAssistantID: sourceAssistantID,
		})
	}
}

// All returns the accumulated citations in contribution order, suitable for
// the cumulative `citations` event payload of SPEC_FULL.md §4.4.
func (r *Registry) All() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns the number of deduplicated citations, used for the
// `citations_count` field of the `done` event.
func (r *Registry) Count() int {
	return len(r.entries)
}
