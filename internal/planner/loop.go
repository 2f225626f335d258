package planner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/northflow/agentcore/internal/budget"
	"github.com/northflow/agentcore/internal/citations"
	"github.com/northflow/agentcore/internal/model"
	"github.com/northflow/agentcore/internal/run"
	"github.com/northflow/agentcore/internal/stream"
	"github.com/northflow/agentcore/internal/tools"
)

// roundBudgetCheck is the token reservation the loop checks for before
// starting each round (SPEC_FULL.md §4.4 step 3.a).
const roundBudgetCheck = 500

// defaultMaxTokens bounds a single LLM call's response when the caller
// doesn't override it via LoopInput.MaxTokens.
const defaultMaxTokens = 4096

// defaultDeltaBatchInterval is used when LoopInput.DeltaBatchInterval is
// left zero (SPEC_FULL.md §4.5/§4.6: flush outgoing text at most every
// agent_delta_batch_ms, default 300ms).
const defaultDeltaBatchInterval = 300 * time.Millisecond

// LoopInput gathers everything the agent loop needs for one run.
type LoopInput struct {
	RunID          string
	Profile        run.Profile
	SystemPrompt   string
	History        []*model.Message
	UserMessage    string
	Plan           *Plan // nil means no plan was generated for this run
	MaxTokens      int
	DeltaBatchInterval time.Duration // 0 means defaultDeltaBatchInterval

	AllowedTools []tools.Definition
	Client       model.Client
	Executor     *tools.Executor
	Budget       *budget.Manager
	Publisher    stream.Publisher
	Citations    *citations.Registry

	TenantID       uuid.UUID
	AssistantID    uuid.UUID
	ConversationID uuid.UUID
	CollectionIDs  []uuid.UUID
	Providers      []string
	UserContext    map[string]any
}

// LoopResult summarizes a completed loop for the worker to persist onto the
// run record.
type LoopResult struct {
	Messages []*model.Message

	FinalText      string
	TokensInput    int
	TokensOutput   int
	ToolRounds     int
	BlocksCount    int
	CitationsCount int
	Blocks         []tools.BlockPayload

	Failed       bool
	ErrorCode    string
	ErrorMessage string
}

// Run drives the round-based agent loop of SPEC_FULL.md §4.4, emitting
// events to in.Publisher as it goes. Ordinary LLM and tool failures never
// surface as a Go error: they are reported on the stream as an `error` event
// and reflected in the returned LoopResult (SPEC_FULL.md §9 "exceptions
// never escape the worker"). Run returns a non-nil error only when the
// publisher itself fails, since a broken event stream leaves the caller
// with no way to observe what happened.
func Run(ctx context.Context, in LoopInput) (*LoopResult, error) {
	messages := buildMessages(in)
	systemPrompt := in.SystemPrompt
	if in.Plan != nil {
		if err := in.Publisher.Plan(in.Plan); err != nil {
			return nil, err
		}
		systemPrompt = strings.TrimSpace(systemPrompt + "\n" + in.Plan.Summary())
	}

	if in.Profile == run.ProfileReactive {
		if err := in.Publisher.Status("starting"); err != nil {
			return nil, err
		}
		if err := in.Publisher.Status("searching"); err != nil {
			return nil, err
		}
	}
	if err := in.Publisher.Status("analyzing"); err != nil {
		return nil, err
	}

	result := &LoopResult{}
	maxRounds := MaxRounds(in.Profile)
	assistantIdent := in.AssistantID.String()
	toolDefs := toModelTools(in.AllowedTools)
	batchInterval := in.DeltaBatchInterval
	if batchInterval <= 0 {
		batchInterval = defaultDeltaBatchInterval
	}

	var finalText string
	roundsDone := 0
	for roundNum := 1; roundNum <= maxRounds; roundNum++ {
		if !in.Budget.Check(roundBudgetCheck) {
			break
		}

		maxTok := in.MaxTokens
		if maxTok <= 0 {
			maxTok = defaultMaxTokens
		}
		req := &model.Request{
			RunID:      in.RunID,
			ModelClass: model.ModelClassDefault,
			System:     systemPrompt,
			Messages:   messages,
			MaxTokens:  maxTok,
			Stream:     true,
		}
		if len(toolDefs) > 0 {
			req.Tools = toolDefs
			req.ToolChoice = model.ToolChoiceAuto
		}

		round, err := runRound(ctx, in.Client, req, in.Publisher, batchInterval)
		if err != nil {
			result.Failed = true
			result.ErrorCode = "llm_error"
			result.ErrorMessage = err.Error()
			if pubErr := in.Publisher.Error(result.ErrorCode, result.ErrorMessage); pubErr != nil {
				return nil, pubErr
			}
			result.Messages = messages
			return result, nil
		}

		roundsDone++
		roundText := round.text
		finalText = roundText

		result.TokensInput += round.usage.InputTokens
		result.TokensOutput += round.usage.OutputTokens
		in.Budget.ConsumeSafe(round.usage.InputTokens + round.usage.OutputTokens)

		if len(round.toolCalls) == 0 {
			break
		}

		messages = append(messages, assistantMessageFor(roundText, round.toolCalls))

		anyContinues := false
		for _, tc := range round.toolCalls {
			var args map[string]any
			if len(tc.Payload) > 0 {
				_ = json.Unmarshal(tc.Payload, &args)
			}
			if args == nil {
				args = map[string]any{}
			}

			if err := in.Publisher.Tool(tc.Name, stream.ToolCalling, ""); err != nil {
				return nil, err
			}

			er := in.Executor.ExecuteToolCall(ctx, tools.CallInput{
				ToolName:       tc.Name,
				Arguments:      args,
				TenantID:       in.TenantID,
				AssistantID:    in.AssistantID,
				ConversationID: in.ConversationID,
				CollectionIDs:  in.CollectionIDs,
				Citations:      citationChunks(in.Citations),
				Budget:         in.Budget,
				Profile:        string(in.Profile),
				UserContext:    in.UserContext,
			})

			phase := stream.ToolCompleted
			detail := ""
			if !er.Success {
				phase = stream.ToolFailed
				detail = er.Error
			}
			if err := in.Publisher.Tool(tc.Name, phase, detail); err != nil {
				return nil, err
			}

			if er.Success && er.Result != nil {
				if err := handleToolResult(in, er, assistantIdent, result); err != nil {
					return nil, err
				}
			}
			if er.Category.ContinuesLoop() {
				anyContinues = true
			}

			messages = append(messages, toolResultMessage(tc.ID, er.ToolMessage(), !er.Success))
		}

		if roundsDone-1 < len(in.Plan.stepsOrNil()) {
			in.Plan.Steps[roundsDone-1].Status = StepCompleted
		}

		if !anyContinues {
			break
		}
	}

	if roundsDone > maxRounds {
		roundsDone = maxRounds
	}

	if disclaimer := sourceCoverageDisclaimer(in.Profile, in.Plan, finalText, result.CitationsCount); disclaimer != "" {
		finalText += disclaimer
		if err := in.Publisher.Delta(disclaimer); err != nil {
			return nil, err
		}
	}

	result.ToolRounds = roundsDone
	result.FinalText = finalText
	result.Messages = messages

	if err := in.Publisher.Done(result.TokensInput, result.TokensOutput, result.ToolRounds,
		result.BlocksCount, result.CitationsCount); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Plan) stepsOrNil() []*Step {
	if p == nil {
		return nil
	}
	return p.Steps
}

func buildMessages(in LoopInput) []*model.Message {
	msgs := make([]*model.Message, 0, len(in.History)+1)
	msgs = append(msgs, in.History...)
	msgs = append(msgs, &model.Message{
		Role:  model.RoleUser,
		Parts: []model.Part{model.TextPart{Text: in.UserMessage}},
	})
	return msgs
}

func toModelTools(defs []tools.Definition) []*model.ToolDefinition {
	if len(defs) == 0 {
		return nil
	}
	out := make([]*model.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = &model.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.OpenAISchema,
		}
	}
	return out
}

func assistantMessageFor(text string, calls []model.ToolCall) *model.Message {
	parts := make([]model.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, model.TextPart{Text: text})
	}
	for _, tc := range calls {
		parts = append(parts, model.ToolUsePart{ID: tc.ID, Name: tc.Name, Input: tc.Payload})
	}
	return &model.Message{Role: model.RoleAssistant, Parts: parts}
}

func toolResultMessage(toolCallID, content string, isError bool) *model.Message {
	return &model.Message{
		Role: model.RoleUser,
		Parts: []model.Part{
			model.ToolResultPart{ToolUseID: toolCallID, Content: content, IsError: isError},
		},
	}
}

// handleToolResult applies the per-category citation and block side effects
// of SPEC_FULL.md §4.4 step 3.g; rendering the tool message content itself
// is tools.ExecutionResult.ToolMessage's job.
func handleToolResult(in LoopInput, er *tools.ExecutionResult, assistantIdent string, result *LoopResult) error {
	emitCitations := false
	switch er.Result.Kind {
	case tools.ResultChunks:
		in.Citations.Add(assistantIdent, tools.CitationsFromChunks(er.Result.Chunks))
		emitCitations = true
	case tools.ResultWebSearch:
		in.Citations.AddWebResults(assistantIdent, er.Result.WebSearch.Results)
		emitCitations = true
	case tools.ResultDelegation:
		in.Citations.Add(er.Result.Delegation.AssistantName, er.Result.Delegation.Citations)
		emitCitations = true
	case tools.ResultBlock:
		result.Blocks = append(result.Blocks, *er.Result.Block)
		result.BlocksCount++
		if err := in.Publisher.Block(er.Result.Block.Payload); err != nil {
			return err
		}
	}
	if emitCitations {
		result.CitationsCount = in.Citations.Count()
		if err := in.Publisher.Citations(citationsToAny(in.Citations.All())); err != nil {
			return err
		}
	}
	return nil
}

func citationsToAny(entries []citations.Entry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e
	}
	return out
}

func citationChunks(reg *citations.Registry) []tools.Chunk {
	if reg == nil {
		return nil
	}
	entries := reg.All()
	out := make([]tools.Chunk, len(entries))
	for i, e := range entries {
		out[i] = e.Chunk
	}
	return out
}

// roundOutcome is one round's accumulated text, tool calls, and usage,
// regardless of whether it was produced by real streaming or the
// non-streaming fallback.
type roundOutcome struct {
	text      string
	toolCalls []model.ToolCall
	usage     model.TokenUsage
}

// runRound drives one model round. It prefers in.Client.Stream so deltas
// reach the publisher incrementally, batched at most every batchInterval
// (SPEC_FULL.md §4.5/§4.6 "delta batching"), with the final partial buffer
// always flushed before the round ends. Providers that haven't implemented
// Stream fall back to one blocking Complete call, whose full text is
// published as a single delta.
func runRound(ctx context.Context, client model.Client, req *model.Request, pub stream.Publisher, batchInterval time.Duration) (*roundOutcome, error) {
	streamer, err := client.Stream(ctx, req)
	if err != nil {
		if !errors.Is(err, model.ErrStreamingUnsupported) {
			return nil, err
		}
		return runRoundNonStreaming(ctx, client, req, pub)
	}
	defer streamer.Close()

	out := &roundOutcome{}
	var buf strings.Builder
	lastFlush := time.Now()

	flush := func() error {
		if buf.Len() == 0 {
			return nil
		}
		if err := pub.Delta(buf.String()); err != nil {
			return err
		}
		buf.Reset()
		lastFlush = time.Now()
		return nil
	}

	for {
		chunk, err := streamer.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		switch chunk.Type {
		case model.ChunkText:
			buf.WriteString(chunk.Text)
			out.text += chunk.Text
			if time.Since(lastFlush) >= batchInterval {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		case model.ChunkToolCall:
			if chunk.ToolCall != nil {
				out.toolCalls = append(out.toolCalls, *chunk.ToolCall)
			}
		case model.ChunkUsage:
			if chunk.UsageDelta != nil {
				out.usage = *chunk.UsageDelta
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// runRoundNonStreaming is the degraded path for providers without native
// streaming support: the full response arrives at once and is published as
// a single delta rather than faked as incremental token-by-token output.
func runRoundNonStreaming(ctx context.Context, client model.Client, req *model.Request, pub stream.Publisher) (*roundOutcome, error) {
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	text := extractText(resp)
	if text != "" {
		if err := pub.Delta(text); err != nil {
			return nil, err
		}
	}
	return &roundOutcome{text: text, toolCalls: resp.ToolCalls, usage: resp.Usage}, nil
}
