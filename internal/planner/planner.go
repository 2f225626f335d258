// Package planner implements the planning step and the round-based agent
// loop described in SPEC_FULL.md §4.4: a constrained JSON planning call
// followed by a streaming tool-calling loop against a model.Client.
package planner

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/northflow/agentcore/internal/model"
	"github.com/northflow/agentcore/internal/run"
)

// StepAction is one of the three actions a plan step may name.
type StepAction string

const (
	ActionSearchDocuments      StepAction = "search_documents"
	ActionSynthesize           StepAction = "synthesize"
	ActionEnsureSourceCoverage StepAction = "ensure_source_coverage"
)

// StepStatus tracks a plan step's progress through the loop.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
)

// Step is one entry of a Plan.
type Step struct {
	Action      StepAction `json:"action"`
	Description string     `json:"description"`
	Tool        string     `json:"tool,omitempty"`
	Status      StepStatus `json:"-"`
}

// Plan is the planner's JSON output: a short reasoning note plus an ordered
// list of steps the loop works through, mutating Status as rounds complete.
type Plan struct {
	Reasoning string  `json:"reasoning"`
	Steps     []*Step `json:"steps"`
}

const maxPlanSteps = 5

const planSystemPrompt = `You produce a short plan for answering the user's question. ` +
	`Respond with JSON only, no prose: {"reasoning": string, "steps": [{"action": ` +
	`"search_documents"|"synthesize"|"ensure_source_coverage", "description": string, "tool"?: string}]}. ` +
	`Start with search_documents when the question needs outside information. Always end with ` +
	`ensure_source_coverage. Use at most 5 steps. A simple greeting may collapse to a single synthesize step.`

// DefaultPlan is the fixed fallback returned whenever planning cannot
// complete: an LLM failure, a non-JSON response, or a response that fails
// validation.
func DefaultPlan() *Plan {
	return &Plan{
		Reasoning: "default plan",
		Steps: []*Step{
			{Action: ActionSearchDocuments, Description: "Search for relevant documents."},
			{Action: ActionSynthesize, Description: "Synthesize an answer from the retrieved context."},
			{Action: ActionEnsureSourceCoverage, Description: "Verify every factual claim is attributed to a source."},
		},
	}
}

// Planner generates a plan via one constrained LLM call.
type Planner struct {
	client model.Client
}

// NewPlanner constructs a Planner over client. A nil client is valid and
// makes Generate always return DefaultPlan.
func NewPlanner(client model.Client) *Planner {
	return &Planner{client: client}
}

// Generate produces a plan for question. It never returns an error: any
// failure (LLM call, JSON parse, validation) falls back to DefaultPlan, per
// SPEC_FULL.md §4.4.
func (p *Planner) Generate(ctx context.Context, runID string, question string) *Plan {
	if p == nil || p.client == nil {
		return DefaultPlan()
	}
	req := &model.Request{
		RunID:      runID,
		ModelClass: model.ModelClassSmall,
		System:     planSystemPrompt,
		Messages: []*model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: question}}},
		},
		MaxTokens: 512,
	}
	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return DefaultPlan()
	}
	plan, err := parsePlan(extractText(resp))
	if err != nil {
		return DefaultPlan()
	}
	return plan
}

func parsePlan(text string) (*Plan, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "{"); i > 0 {
		text = text[i:]
	}
	if j := strings.LastIndex(text, "}"); j >= 0 && j < len(text)-1 {
		text = text[:j+1]
	}
	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, err
	}
	if err := validatePlan(&plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func validatePlan(plan *Plan) error {
	if len(plan.Steps) == 0 || len(plan.Steps) > maxPlanSteps {
		return errInvalidPlan
	}
	last := plan.Steps[len(plan.Steps)-1]
	if len(plan.Steps) == 1 && last.Action == ActionSynthesize {
		return nil
	}
	if last.Action != ActionEnsureSourceCoverage {
		return errInvalidPlan
	}
	return nil
}

var errInvalidPlan = planError("planner: plan failed validation")

type planError string

func (e planError) Error() string { return string(e) }

// Summary renders a short prompt-appendable description of the plan, to be
// appended to the system message when a plan was generated.
func (p *Plan) Summary() string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Plan: ")
	b.WriteString(p.Reasoning)
	for i, s := range p.Steps {
		if i > 0 {
			b.WriteString("; ")
		} else {
			b.WriteString(" — ")
		}
		b.WriteString(string(s.Action))
		if s.Description != "" {
			b.WriteString(": ")
			b.WriteString(s.Description)
		}
	}
	return b.String()
}

// MaxRounds returns the tool-loop round ceiling for a profile, per
// SPEC_FULL.md §4.4 (reactive 1, balanced 3, pro 5, exec 5).
func MaxRounds(profile run.Profile) int {
	switch profile {
	case run.ProfileBalanced:
		return 3
	case run.ProfilePro, run.ProfileExec:
		return 5
	default:
		return 1
	}
}

func extractText(resp *model.Response) string {
	var b strings.Builder
	for _, m := range resp.Content {
		for _, part := range m.Parts {
			if t, ok := part.(model.TextPart); ok {
				b.WriteString(t.Text)
			}
		}
	}
	return b.String()
}
