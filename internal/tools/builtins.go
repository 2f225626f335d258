package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/northflow/agentcore/internal/budget"
)

// DocumentSearcher runs retrieval against a tenant's document collections.
// The actual hybrid-search/RRF/rerank pipeline sits behind this interface
// and is external to this core (SPEC_FULL.md §1 "Out of scope").
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, tenantID uuid.UUID, collectionIDs []uuid.UUID, query string) ([]Chunk, error)
}

// WebSearcher performs an external web search, backing the web_search_*
// configuration entries (SPEC_FULL.md §7).
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string) (*WebSearchResult, error)
}

// CalendarService is the thin binding to the tenant's connected calendar
// provider, an OAuth integration this core references but does not own
// (SPEC_FULL.md §1 "Out of scope").
type CalendarService interface {
	ListEvents(ctx context.Context, tenantID uuid.UUID, args map[string]any) (map[string]any, error)
	CreateEvent(ctx context.Context, tenantID uuid.UUID, args map[string]any) (map[string]any, error)
	UpdateEvent(ctx context.Context, tenantID uuid.UUID, args map[string]any) (map[string]any, error)
	DeleteEvent(ctx context.Context, tenantID uuid.UUID, args map[string]any) (map[string]any, error)
}

// ContactsSearcher looks up contact records, one of the CRUD services
// SPEC_FULL.md references without specifying (§1 "Out of scope").
type ContactsSearcher interface {
	SearchContacts(ctx context.Context, tenantID uuid.UUID, query string) ([]Chunk, error)
}

// IntegrationInvoker calls a single connected external provider's API (a
// CRM, a messaging platform, …). SPEC_FULL.md leaves the provider contracts
// themselves external; this is the seam a concrete provider client plugs
// into.
type IntegrationInvoker interface {
	Invoke(ctx context.Context, provider string, tenantID, assistantID uuid.UUID, args map[string]any) (map[string]any, error)
}

// DelegationRequest carries one delegate_to_assistant call's inputs to a
// Delegator.
type DelegationRequest struct {
	TenantID          uuid.UUID
	SourceAssistantID uuid.UUID
	TargetAssistantID uuid.UUID
	Question          string
	MaxTokensPer      int
}

// DelegationOutcome is a Delegator's result: the formatted answer plus the
// actual tokens the sub-run spent, so the caller's reservation can be
// consumed for the real amount and the remainder released.
type DelegationOutcome struct {
	Result     *DelegationResult
	TokensUsed int
}

// Delegator runs a bounded sub-run against another assistant: retrieval
// against its collections followed by one synthesis LLM call. A target with
// no collections, or an empty retrieval, comes back as a successful outcome
// whose answer text says so; a failure (target not found, search error, LLM
// error) is a returned Go error, which the delegate_to_assistant handler
// turns into a ResultError rather than letting it escape to the loop.
type Delegator interface {
	Delegate(ctx context.Context, req DelegationRequest) (*DelegationOutcome, error)
}

// knownIntegrationProviders lists the providers this process registers an
// INTEGRATION tool definition for. GetAllowedTools still gates each one on
// whether the run's assistant actually lists it among its connected
// providers (SPEC_FULL.md §4.3 "Filtering" rule 4); a deployment that
// connects a provider not in this list adds it here.
var knownIntegrationProviders = []string{"slack", "hubspot", "salesforce"}

// BuiltinDeps bundles the external collaborators the built-in tool set
// dispatches to. Every field is optional. A nil dependency still leaves its
// tool registered — so schema validation and profile/provider gating work —
// but its handler resolves to a normalized error result instead of
// invoking anything, so an incompletely wired deployment degrades per tool
// call instead of leaving the whole registry empty.
type BuiltinDeps struct {
	Documents    DocumentSearcher
	Web          WebSearcher
	Calendar     CalendarService
	Contacts     ContactsSearcher
	Integrations IntegrationInvoker
	Delegator    Delegator
}

// RegisterBuiltins registers the full built-in tool catalog SPEC_FULL.md
// §4.3 "Registration" names: the block tools, the email tool, the document
// tool, search_documents, search_web, the 4 calendar tools,
// delegate_to_assistant, contact tools, and one INTEGRATION tool per known
// connected-provider candidate. Called once at process start, before any
// run reaches GetAllowedTools.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) error {
	for _, reg2 := range []func(*Registry, BuiltinDeps) error{
		registerBlockTools,
		registerEmailTool,
		registerDocumentTool,
		registerRetrievalTools(deps),
		registerCalendarTools(deps),
		registerContactsTool(deps),
		registerDelegationTool(deps),
		registerIntegrationTools(deps),
	} {
		if err := reg2(reg, deps); err != nil {
			return err
		}
	}
	return nil
}

func registerBlockTools(reg *Registry, _ BuiltinDeps) error {
	blocks := []struct {
		name, blockType, description string
	}{
		{"show_chart", "chart", "Render a chart block from a labeled data series."},
		{"show_table", "table", "Render a tabular block from rows and columns."},
		{"show_map", "map", "Render a map block centered on one or more locations."},
		{"show_timeline", "timeline", "Render a timeline block from a sequence of dated events."},
	}
	for _, b := range blocks {
		if err := reg.Register(Definition{
			Name:        b.name,
			Category:    CategoryBlock,
			BlockType:   b.blockType,
			Description: b.description,
			OpenAISchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"title": map[string]any{"type": "string"}},
			},
		}, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func registerEmailTool(reg *Registry, _ BuiltinDeps) error {
	return reg.Register(Definition{
		Name:        "draft_email",
		Category:    CategoryEmail,
		Description: "Draft an email to review and send from the conversation, citing retrieved sources in the body when available.",
		OpenAISchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to":      map[string]any{"type": "string"},
				"subject": map[string]any{"type": "string"},
				"body":    map[string]any{"type": "string"},
			},
			"required": []string{"to", "subject", "body"},
		},
	}, emailDraftHandler, nil)
}

func emailDraftHandler(_ context.Context, args HandlerArgs) (*Result, error) {
	to, _ := args.Arguments["to"].(string)
	subject, _ := args.Arguments["subject"].(string)
	body, _ := args.Arguments["body"].(string)
	return &Result{Kind: ResultBlock, Block: &BlockPayload{
		ID:   uuid.NewString(),
		Type: "email_draft",
		Payload: map[string]any{
			"to":              to,
			"subject":         subject,
			"body":            body,
			"conversation_id": args.ConversationID.String(),
			"citations_count": len(args.Citations),
		},
	}}, nil
}

func registerDocumentTool(reg *Registry, _ BuiltinDeps) error {
	return reg.Register(Definition{
		Name:        "draft_document",
		Category:    CategoryBlock,
		BlockType:   "document_draft",
		Description: "Draft a document outline with a title and body content for the user to review.",
		OpenAISchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":   map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"title", "content"},
		},
	}, documentDraftHandler, nil)
}

func documentDraftHandler(_ context.Context, args HandlerArgs) (*Result, error) {
	title, _ := args.Arguments["title"].(string)
	content, _ := args.Arguments["content"].(string)
	return &Result{Kind: ResultBlock, Block: &BlockPayload{
		ID:   uuid.NewString(),
		Type: "document_draft",
		Payload: map[string]any{
			"title":   title,
			"content": content,
		},
	}}, nil
}

func registerRetrievalTools(deps BuiltinDeps) func(*Registry, BuiltinDeps) error {
	return func(reg *Registry, _ BuiltinDeps) error {
		if err := reg.Register(Definition{
			Name:        "search_documents",
			Category:    CategoryRetrieval,
			Description: "Search the assistant's document collections for passages relevant to a query.",
			OpenAISchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			},
		}, searchDocumentsHandler(deps.Documents), nil); err != nil {
			return err
		}
		return reg.Register(Definition{
			Name:        "search_web",
			Category:    CategoryRetrieval,
			Description: "Search the public web for information not covered by the assistant's own documents.",
			OpenAISchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			},
		}, searchWebHandler(deps.Web), nil)
	}
}

func searchDocumentsHandler(searcher DocumentSearcher) Handler {
	return func(ctx context.Context, args HandlerArgs) (*Result, error) {
		if searcher == nil {
			return &Result{Kind: ResultError, ErrorMsg: "search_documents: retrieval is not configured"}, nil
		}
		chunks, err := searcher.SearchDocuments(ctx, args.TenantID, args.CollectionIDs, args.Query)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: ResultChunks, Chunks: chunks}, nil
	}
}

func searchWebHandler(searcher WebSearcher) Handler {
	return func(ctx context.Context, args HandlerArgs) (*Result, error) {
		if searcher == nil {
			return &Result{Kind: ResultError, ErrorMsg: "search_web: web search is not configured"}, nil
		}
		res, err := searcher.SearchWeb(ctx, args.Query)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: ResultWebSearch, WebSearch: res}, nil
	}
}

func registerCalendarTools(deps BuiltinDeps) func(*Registry, BuiltinDeps) error {
	return func(reg *Registry, _ BuiltinDeps) error {
		calls := []struct {
			name, description string
			call               func(CalendarService, context.Context, uuid.UUID, map[string]any) (map[string]any, error)
		}{
			{"list_calendar_events", "List the user's calendar events in a time range.", CalendarService.ListEvents},
			{"create_calendar_event", "Create a new calendar event.", CalendarService.CreateEvent},
			{"update_calendar_event", "Update an existing calendar event.", CalendarService.UpdateEvent},
			{"delete_calendar_event", "Delete a calendar event.", CalendarService.DeleteEvent},
		}
		for _, c := range calls {
			call := c.call
			if err := reg.Register(Definition{
				Name:        c.name,
				Category:    CategoryCalendar,
				Description: c.description,
				OpenAISchema: map[string]any{
					"type":                 "object",
					"additionalProperties": true,
				},
			}, calendarHandler(deps.Calendar, call), nil); err != nil {
				return err
			}
		}
		return nil
	}
}

func calendarHandler(svc CalendarService, call func(CalendarService, context.Context, uuid.UUID, map[string]any) (map[string]any, error)) Handler {
	return func(ctx context.Context, args HandlerArgs) (*Result, error) {
		if svc == nil {
			return &Result{Kind: ResultError, ErrorMsg: "calendar: the calendar integration is not connected"}, nil
		}
		out, err := call(svc, ctx, args.TenantID, args.Arguments)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: ResultCalendar, Calendar: out}, nil
	}
}

func registerContactsTool(deps BuiltinDeps) func(*Registry, BuiltinDeps) error {
	return func(reg *Registry, _ BuiltinDeps) error {
		return reg.Register(Definition{
			Name:        "search_contacts",
			Category:    CategoryRetrieval,
			Description: "Search the tenant's contact directory by name, email, or company.",
			OpenAISchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			},
		}, searchContactsHandler(deps.Contacts), nil)
	}
}

func searchContactsHandler(searcher ContactsSearcher) Handler {
	return func(ctx context.Context, args HandlerArgs) (*Result, error) {
		if searcher == nil {
			return &Result{Kind: ResultError, ErrorMsg: "search_contacts: the contacts directory is not configured"}, nil
		}
		chunks, err := searcher.SearchContacts(ctx, args.TenantID, args.Query)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: ResultChunks, Chunks: chunks}, nil
	}
}

func registerDelegationTool(deps BuiltinDeps) func(*Registry, BuiltinDeps) error {
	return func(reg *Registry, _ BuiltinDeps) error {
		return reg.Register(Definition{
			Name:        "delegate_to_assistant",
			Category:    CategoryDelegation,
			Description: "Ask another assistant in the tenant to answer a narrow question from its own document collections.",
			MinProfile:  "balanced",
			OpenAISchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target_assistant_id": map[string]any{"type": "string"},
					"question":            map[string]any{"type": "string"},
				},
				"required": []string{"target_assistant_id", "question"},
			},
		}, delegationHandler(deps.Delegator), nil)
	}
}

// delegationHandler implements the delegate_to_assistant contract of
// SPEC_FULL.md §4.3 "Delegation": reserve max_tokens_per on the parent
// budget, run the sub-assistant, consume the tokens it actually spent,
// release the remainder, and normalize every failure mode (missing/invalid
// target, unsupported profile, delegation limit, target not found, search or
// synthesis error) into a ResultError instead of raising. A target with no
// collections, or an empty retrieval, yields a ResultDelegation whose answer
// text says so.
func delegationHandler(delegator Delegator) Handler {
	return func(ctx context.Context, args HandlerArgs) (*Result, error) {
		targetRaw, _ := args.Arguments["target_assistant_id"].(string)
		if targetRaw == "" {
			return &Result{Kind: ResultError, ErrorMsg: "delegate_to_assistant: target_assistant_id is required"}, nil
		}
		targetID, err := uuid.Parse(targetRaw)
		if err != nil {
			return &Result{Kind: ResultError, ErrorMsg: "delegate_to_assistant: target_assistant_id is not a valid id"}, nil
		}
		question, _ := args.Arguments["question"].(string)
		if question == "" {
			return &Result{Kind: ResultError, ErrorMsg: "delegate_to_assistant: question is required"}, nil
		}

		caps := budget.DelegationCapsForProfile(args.Profile)
		if caps.MaxDelegations == 0 {
			return &Result{Kind: ResultError, ErrorMsg: "delegate_to_assistant: profile " + args.Profile + " may not delegate"}, nil
		}
		if args.Budget == nil || !args.Budget.UseDelegation(caps.MaxDelegations) {
			return &Result{Kind: ResultError, ErrorMsg: "delegate_to_assistant: delegation limit reached for this run"}, nil
		}
		if delegator == nil {
			return &Result{Kind: ResultError, ErrorMsg: "delegate_to_assistant: delegation is not configured"}, nil
		}

		reservation, err := args.Budget.Reserve("delegation:"+targetRaw, caps.MaxTokensPer)
		if err != nil {
			return &Result{Kind: ResultError, ErrorMsg: "delegate_to_assistant: " + err.Error()}, nil
		}
		defer func() { _, _ = reservation.Release() }()

		outcome, err := delegator.Delegate(ctx, DelegationRequest{
			TenantID:          args.TenantID,
			SourceAssistantID: args.AssistantID,
			TargetAssistantID: targetID,
			Question:          question,
			MaxTokensPer:      caps.MaxTokensPer,
		})
		if err != nil {
			return &Result{Kind: ResultError, ErrorMsg: "delegate_to_assistant: " + err.Error()}, nil
		}
		if outcome == nil || outcome.Result == nil {
			return &Result{Kind: ResultError, ErrorMsg: "delegate_to_assistant: target assistant returned no answer"}, nil
		}
		if cerr := reservation.Consume(outcome.TokensUsed); cerr != nil {
			_ = reservation.Consume(reservation.Remaining())
		}
		return &Result{Kind: ResultDelegation, Delegation: outcome.Result}, nil
	}
}

func registerIntegrationTools(deps BuiltinDeps) func(*Registry, BuiltinDeps) error {
	return func(reg *Registry, _ BuiltinDeps) error {
		for _, provider := range knownIntegrationProviders {
			if err := reg.Register(Definition{
				Name:        "integration_" + provider,
				Category:    CategoryIntegration,
				Provider:    provider,
				Description: "Call the connected " + provider + " integration.",
				OpenAISchema: map[string]any{
					"type":                 "object",
					"additionalProperties": true,
				},
			}, integrationHandler(provider, deps.Integrations), nil); err != nil {
				return err
			}
		}
		return nil
	}
}

func integrationHandler(provider string, invoker IntegrationInvoker) Handler {
	return func(ctx context.Context, args HandlerArgs) (*Result, error) {
		if invoker == nil {
			return &Result{Kind: ResultError, ErrorMsg: "integration_" + provider + ": provider is not configured"}, nil
		}
		out, err := invoker.Invoke(ctx, provider, args.TenantID, args.AssistantID, args.Arguments)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: ResultCalendar, Calendar: out}, nil
	}
}
