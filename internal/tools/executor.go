package tools

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/northflow/agentcore/internal/budget"
	"github.com/northflow/agentcore/internal/toolerrors"
)

// CallInput is the input to Executor.ExecuteToolCall, gathering the run-scoped
// context a handler may need (SPEC_FULL.md §4.3 execute_tool_call).
type CallInput struct {
	ToolName       string
	Arguments      map[string]any
	TenantID       uuid.UUID
	AssistantID    uuid.UUID
	ConversationID uuid.UUID
	CollectionIDs  []uuid.UUID
	Citations      []Chunk
	Budget         *budget.Manager
	Profile        string
	UserContext    map[string]any
}

// Executor dispatches tool calls against a Registry with a hard per-call
// deadline, isolating a slow or hung handler from the agent loop.
type Executor struct {
	registry *Registry
}

// NewExecutor constructs an Executor over the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// ExecuteToolCall dispatches one call, returning a result that is always
// non-nil: unknown tools, validation failures, timeouts, and handler errors
// are all reported as ExecutionResult{Success:false}, never as a Go error,
// so the agent loop can feed the failure back to the LLM as a tool message
// per SPEC_FULL.md §9's "exceptions never escape the worker" design note.
func (ex *Executor) ExecuteToolCall(ctx context.Context, in CallInput) *ExecutionResult {
	def, handler, ok := ex.registry.Lookup(in.ToolName)
	if !ok {
		return &ExecutionResult{
			ToolName: in.ToolName,
			Success:  false,
			Error:    toolerrors.Unknown(in.ToolName).Error(),
		}
	}

	if e := ex.registry.entries[in.ToolName]; e.schema != nil {
		if err := e.schema.Validate(in.Arguments); err != nil {
			return &ExecutionResult{
				ToolName: in.ToolName, Category: def.Category, Success: false,
				Error: "invalid arguments: " + err.Error(),
			}
		}
	}

	if handler == nil {
		if def.Category != CategoryBlock {
			return &ExecutionResult{
				ToolName: in.ToolName, Category: def.Category,
				Success: false, Error: toolerrors.Unknown(in.ToolName).Error(),
			}
		}
		return &ExecutionResult{
			ToolName: in.ToolName, Category: def.Category, Success: true,
			Result: &Result{Kind: ResultBlock, Block: &BlockPayload{
				ID: uuid.NewString(), Type: def.BlockType, Payload: in.Arguments,
			}},
		}
	}

	args := buildHandlerArgs(def.Category, in)
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(def.timeout())*time.Second)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := handler(callCtx, args)
		done <- outcome{res, err}
	}()

	select {
	case <-callCtx.Done():
		return &ExecutionResult{
			ToolName: in.ToolName, Category: def.Category, Success: false,
			Error: toolerrors.TimedOut(def.timeout()).Error(),
		}
	case o := <-done:
		if o.err != nil {
			return &ExecutionResult{
				ToolName: in.ToolName, Category: def.Category, Success: false,
				Error: o.err.Error(),
			}
		}
		return &ExecutionResult{
			ToolName: in.ToolName, Category: def.Category, Success: true, Result: o.res,
		}
	}
}

// buildHandlerArgs assembles the per-category kwargs table from
// SPEC_FULL.md §4.3. Fields outside a category's row are left zero-valued;
// the "default" row expands the raw arguments as-is.
func buildHandlerArgs(cat Category, in CallInput) HandlerArgs {
	base := HandlerArgs{Arguments: in.Arguments, Profile: in.Profile}
	switch cat {
	case CategoryEmail:
		base.TenantID = in.TenantID
		base.ConversationID = in.ConversationID
		base.Citations = in.Citations
	case CategoryBlock:
		base.TenantID = in.TenantID
		base.AssistantID = in.AssistantID
		base.ConversationID = in.ConversationID
		base.Citations = in.Citations
	case CategoryDelegation:
		base.TenantID = in.TenantID
		base.AssistantID = in.AssistantID
		base.Budget = in.Budget
	case CategoryCalendar:
		base.TenantID = in.TenantID
		base.UserContext = in.UserContext
	case CategoryRetrieval:
		if q, ok := in.Arguments["query"].(string); ok {
			base.Query = q
		}
		base.TenantID = in.TenantID
		base.CollectionIDs = in.CollectionIDs
	case CategoryIntegration:
		base.TenantID = in.TenantID
		base.AssistantID = in.AssistantID
		base.ConversationID = in.ConversationID
	}
	return base
}
