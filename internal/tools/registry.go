package tools

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/northflow/agentcore/internal/run"
)

// profileOrder maps a profile string to its gating order, mirroring
// run.Profile.Order without importing the run package's Record/Store types
// into the hot registry-read path. Kept in sync with run.Profile.Order.
func profileOrder(profile string) int {
	return run.Profile(profile).Order()
}

// entry pairs an immutable Definition with its handler and a compiled
// argument schema (when one was supplied at registration).
type entry struct {
	def     Definition
	handler Handler
	schema  *jsonschema.Schema
}

// Registry is the process-global tool catalog. It is built once at startup
// via Register calls and is read-only thereafter; GetAllowedTools and
// ExecuteToolCall never mutate it, so concurrent reads require no locking.
type Registry struct {
	entries map[string]*entry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register stores a tool definition and its optional handler. A nil handler
// is valid for BLOCK-category tools with no side effects beyond echoing the
// arguments as a block payload (SPEC_FULL.md §4.3).
//
// argSchema, when non-nil, is a compiled JSON Schema (built via
// github.com/santhosh-tekuri/jsonschema/v6) used to validate the LLM's
// arguments before a handler is invoked.
func (r *Registry) Register(def Definition, handler Handler, argSchema *jsonschema.Schema) error {
	if def.Name == "" {
		return fmt.Errorf("tools: definition name is required")
	}
	if def.Category == CategoryIntegration && def.Provider == "" {
		return fmt.Errorf("tools: integration tool %q requires a provider", def.Name)
	}
	r.entries[def.Name] = &entry{def: def, handler: handler, schema: argSchema}
	return nil
}

// Lookup returns the definition and handler registered under name, if any.
func (r *Registry) Lookup(name string) (Definition, Handler, bool) {
	e, ok := r.entries[name]
	if !ok {
		return Definition{}, nil, false
	}
	return e.def, e.handler, true
}

// Filter narrows GetAllowedTools.
type Filter struct {
	Profile          string
	Providers        []string
	AllowedCategories []Category // nil means "no category restriction"
	BlockedTools     []string
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// GetAllowedTools returns the definitions visible to a run, applying every
// gate in SPEC_FULL.md §4.3 Filtering: profile order, category allowlist,
// name blocklist, and provider membership for INTEGRATION tools.
func (r *Registry) GetAllowedTools(f Filter) []Definition {
	order := profileOrder(f.Profile)
	var out []Definition
	for _, e := range r.entries {
		d := e.def
		if profileOrder(d.MinProfile) > order {
			continue
		}
		if f.AllowedCategories != nil && !contains(f.AllowedCategories, d.Category) {
			continue
		}
		if contains(f.BlockedTools, d.Name) {
			continue
		}
		if d.Category == CategoryIntegration && !contains(f.Providers, d.Provider) {
			continue
		}
		out = append(out, d)
	}
	return out
}
