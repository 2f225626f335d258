// Package delegate implements the sub-run a delegate_to_assistant tool call
// performs: resolve the target assistant, search its document collections,
// and synthesize a bounded answer with a single LLM call (SPEC_FULL.md §4.3
// "Delegation").
package delegate

import (
	"context"
	"fmt"

	"github.com/northflow/agentcore/internal/model"
	"github.com/northflow/agentcore/internal/tools"
	"github.com/northflow/agentcore/internal/worker"
)

// Runner implements tools.Delegator against the same AssistantLookup and
// document search collaborators the worker itself depends on, plus one
// model.Client for the synthesis call.
type Runner struct {
	Assistants worker.AssistantLookup
	Documents  tools.DocumentSearcher
	Client     model.Client
}

// New constructs a Runner. documents may be nil, in which case every
// delegation normalizes to a "no relevant information" answer rather than
// failing, matching a deployment where retrieval isn't wired yet.
func New(assistants worker.AssistantLookup, documents tools.DocumentSearcher, client model.Client) *Runner {
	return &Runner{Assistants: assistants, Documents: documents, Client: client}
}

// Delegate resolves req.TargetAssistantID, searches its collections, and
// synthesizes a grounded answer. A target with no collections, or a search
// that finds nothing, yields a successful outcome whose answer text says so.
// A failed target lookup (including target not found), a failed search, or
// a failed synthesis call is returned as a plain error; the
// delegate_to_assistant handler turns that into a normalized ResultError
// rather than letting it surface as a Go panic or an unhandled exception.
func (r *Runner) Delegate(ctx context.Context, req tools.DelegationRequest) (*tools.DelegationOutcome, error) {
	target, err := r.Assistants.GetAssistant(ctx, req.TenantID, req.TargetAssistantID)
	if err != nil {
		return nil, fmt.Errorf("resolve target assistant: %w", err)
	}

	if len(target.CollectionIDs) == 0 {
		return &tools.DelegationOutcome{Result: &tools.DelegationResult{
			AssistantName: target.Name,
			AnswerText:    "This assistant has no document collections to search.",
		}}, nil
	}

	var chunks []tools.Chunk
	if r.Documents != nil {
		chunks, err = r.Documents.SearchDocuments(ctx, req.TenantID, target.CollectionIDs, req.Question)
		if err != nil {
			return nil, fmt.Errorf("search target collections: %w", err)
		}
	}
	if len(chunks) == 0 {
		return &tools.DelegationOutcome{Result: &tools.DelegationResult{
			AssistantName: target.Name,
			AnswerText:    "No relevant information was found for this question.",
		}}, nil
	}

	resp, err := r.Client.Complete(ctx, &model.Request{
		RunID:       "delegation:" + req.TargetAssistantID.String(),
		System:      target.SystemPrompt,
		Messages:    []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: synthesisPrompt(req.Question, chunks)}}}},
		MaxTokens:   req.MaxTokensPer,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize delegated answer: %w", err)
	}

	return &tools.DelegationOutcome{
		Result: &tools.DelegationResult{
			AssistantName: target.Name,
			AnswerText:    responseText(resp),
			Citations:     chunks,
		},
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// synthesisPrompt builds the single-shot grounded-answer prompt from the
// retrieved chunks, in source order so the model can cite them by position.
func synthesisPrompt(question string, chunks []tools.Chunk) string {
	prompt := "Answer the following question using only the excerpts below. " +
		"Be concise.\n\nQuestion: " + question + "\n\nExcerpts:\n"
	for i, c := range chunks {
		prompt += fmt.Sprintf("[%d] %s\n", i+1, c.Excerpt)
	}
	return prompt
}

// responseText flattens a non-streaming Response's text parts into a single
// string.
func responseText(resp *model.Response) string {
	var out string
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if tp, ok := part.(model.TextPart); ok {
				out += tp.Text
			}
		}
	}
	return out
}
