package planner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/northflow/agentcore/internal/budget"
	"github.com/northflow/agentcore/internal/citations"
	"github.com/northflow/agentcore/internal/model"
	"github.com/northflow/agentcore/internal/run"
	"github.com/northflow/agentcore/internal/stream"
	"github.com/northflow/agentcore/internal/tools"
)

type fakeLoopClient struct {
	responses []*model.Response
	calls     int
}

func (f *fakeLoopClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if f.calls >= len(f.responses) {
		return nil, errNoMoreResponses
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func (f *fakeLoopClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

type loopErr string

func (e loopErr) Error() string { return string(e) }

const errNoMoreResponses = loopErr("no more fake responses queued")

func textResponse(text string, in, out int) *model.Response {
	return &model.Response{
		Content: []model.Message{{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}},
		Usage:   model.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

func toolCallResponse(text, toolName string, args map[string]any, in, out int) *model.Response {
	payload, _ := json.Marshal(args)
	return &model.Response{
		Content:   []model.Message{{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}},
		ToolCalls: []model.ToolCall{{ID: "tc-1", Name: toolName, Payload: payload}},
		Usage:     model.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

func newTestExecutor(t *testing.T, category tools.Category, handler tools.Handler) *tools.Executor {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Definition{
		Name:     "search_documents",
		Category: category,
	}, handler, nil))
	return tools.NewExecutor(reg)
}

func baseLoopInput(t *testing.T, client model.Client, executor *tools.Executor) LoopInput {
	t.Helper()
	return LoopInput{
		RunID:       "run-1",
		Profile:     run.ProfileBalanced,
		UserMessage: "what is the refund policy?",
		Client:      client,
		Executor:    executor,
		Budget:      budget.New(budget.DefaultBalanced),
		Publisher:   stream.NewInMemoryPublisher(),
		Citations:   citations.New(),
		TenantID:    uuid.New(),
		AssistantID: uuid.New(),
	}
}

// S1: no tool calls at all, a single round produces the final answer.
func TestRun_SingleRoundNoTools(t *testing.T) {
	client := &fakeLoopClient{responses: []*model.Response{
		textResponse("Hello there.", 10, 5),
	}}
	in := baseLoopInput(t, client, newTestExecutor(t, tools.CategoryRetrieval, func(ctx context.Context, args tools.HandlerArgs) (*tools.Result, error) {
		t.Fatal("tool should not be called")
		return nil, nil
	}))

	result, err := Run(context.Background(), in)
	require.NoError(t, err)
	require.False(t, result.Failed)
	require.Equal(t, "Hello there.", result.FinalText)
	require.Equal(t, 1, result.ToolRounds)
	require.Equal(t, 10, result.TokensInput)
	require.Equal(t, 5, result.TokensOutput)

	pub := in.Publisher.(*stream.InMemoryPublisher)
	types := pub.Types()
	require.Contains(t, types, stream.EventStatus)
	require.Contains(t, types, stream.EventDelta)
	require.Equal(t, stream.EventDone, types[len(types)-1])
}

// S2: a retrieval tool call round followed by a final synthesis round.
func TestRun_ToolRoundThenFinal(t *testing.T) {
	client := &fakeLoopClient{responses: []*model.Response{
		toolCallResponse("", "search_documents", map[string]any{"query": "refunds"}, 20, 8),
		textResponse("Refunds are available within 30 days.", 15, 10),
	}}
	handlerCalled := false
	executor := newTestExecutor(t, tools.CategoryRetrieval, func(ctx context.Context, args tools.HandlerArgs) (*tools.Result, error) {
		handlerCalled = true
		require.Equal(t, "refunds", args.Query)
		page := 3
		return &tools.Result{Kind: tools.ResultChunks, Chunks: []tools.Chunk{
			{ChunkID: "c1", DocumentID: "doc1", DocumentFilename: "policy.pdf", PageNumber: &page, Excerpt: "Refund window is 30 days.", Score: 0.9},
		}}, nil
	})
	in := baseLoopInput(t, client, executor)

	result, err := Run(context.Background(), in)
	require.NoError(t, err)
	require.True(t, handlerCalled)
	require.False(t, result.Failed)
	require.Equal(t, 2, result.ToolRounds)
	require.Equal(t, 35, result.TokensInput)
	require.Equal(t, 18, result.TokensOutput)
	require.Equal(t, 1, result.CitationsCount)

	pub := in.Publisher.(*stream.InMemoryPublisher)
	types := pub.Types()
	require.Contains(t, types, stream.EventTool)
	require.Contains(t, types, stream.EventCitations)
	require.Equal(t, stream.EventDone, types[len(types)-1])
}

// The LLM call fails outright; the loop emits an error event and stops
// without a done event.
func TestRun_LLMFailureEmitsErrorNotDone(t *testing.T) {
	client := &fakeLoopClient{responses: nil}
	in := baseLoopInput(t, client, newTestExecutor(t, tools.CategoryRetrieval, nil))

	result, err := Run(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.Failed)
	require.Equal(t, "llm_error", result.ErrorCode)

	pub := in.Publisher.(*stream.InMemoryPublisher)
	types := pub.Types()
	require.Equal(t, stream.EventError, types[len(types)-1])
	require.NotContains(t, types, stream.EventDone)
}

// S4: the budget is already exhausted, so the loop never calls the model and
// reports zero completed rounds.
func TestRun_BudgetExhaustedBeforeFirstRound(t *testing.T) {
	client := &fakeLoopClient{responses: []*model.Response{textResponse("unused", 1, 1)}}
	in := baseLoopInput(t, client, newTestExecutor(t, tools.CategoryRetrieval, nil))
	in.Budget = budget.New(10) // below the 500-token per-round check

	result, err := Run(context.Background(), in)
	require.NoError(t, err)
	require.False(t, result.Failed)
	require.Equal(t, 0, result.ToolRounds)
	require.Equal(t, 0, client.calls)

	pub := in.Publisher.(*stream.InMemoryPublisher)
	require.Equal(t, stream.EventDone, pub.Types()[len(pub.Types())-1])
}

func TestRun_ReactiveProfileEmitsStartingSearchingAnalyzing(t *testing.T) {
	client := &fakeLoopClient{responses: []*model.Response{textResponse("hi", 1, 1)}}
	in := baseLoopInput(t, client, newTestExecutor(t, tools.CategoryRetrieval, nil))
	in.Profile = run.ProfileReactive
	in.Budget = budget.New(budget.DefaultReactive)

	_, err := Run(context.Background(), in)
	require.NoError(t, err)

	pub := in.Publisher.(*stream.InMemoryPublisher)
	var statuses []string
	for _, e := range pub.Events {
		if e.Type == stream.EventStatus {
			var data stream.StatusEventData
			require.NoError(t, json.Unmarshal(e.Data, &data))
			statuses = append(statuses, data.Status)
		}
	}
	require.Equal(t, []string{"starting", "searching", "analyzing"}, statuses)
}
