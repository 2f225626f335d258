package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutor_UnknownTool(t *testing.T) {
	ex := NewExecutor(NewRegistry())
	res := ex.ExecuteToolCall(context.Background(), CallInput{ToolName: "nope"})
	require.False(t, res.Success)
	require.Equal(t, "Unknown tool: nope", res.Error)
}

func TestExecutor_BlockWithoutHandler(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "show_chart", Category: CategoryBlock, BlockType: "chart",
	}, nil, nil))
	ex := NewExecutor(r)

	res := ex.ExecuteToolCall(context.Background(), CallInput{
		ToolName:  "show_chart",
		Arguments: map[string]any{"series": "revenue"},
	})
	require.True(t, res.Success)
	require.Equal(t, ResultBlock, res.Result.Kind)
	require.Equal(t, "chart", res.Result.Block.Type)
}

func TestExecutor_TimesOut(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "slow_tool", Category: CategoryRetrieval, TimeoutSeconds: 1,
	}, func(ctx context.Context, args HandlerArgs) (*Result, error) {
		select {
		case <-time.After(10 * time.Second):
			return &Result{Kind: ResultChunks}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil))
	ex := NewExecutor(r)

	start := time.Now()
	res := ex.ExecuteToolCall(context.Background(), CallInput{ToolName: "slow_tool"})
	elapsed := time.Since(start)

	require.False(t, res.Success)
	require.Equal(t, "Tool timed out after 1s", res.Error)
	require.Less(t, elapsed, 1500*time.Millisecond)
}

func TestExecutor_HandlerError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{Name: "boom", Category: CategoryRetrieval}, func(ctx context.Context, args HandlerArgs) (*Result, error) {
		return nil, errors.New("connection refused")
	}, nil))
	ex := NewExecutor(r)

	res := ex.ExecuteToolCall(context.Background(), CallInput{ToolName: "boom"})
	require.False(t, res.Success)
	require.Equal(t, "connection refused", res.Error)
}

func TestExecutor_RetrievalKwargs(t *testing.T) {
	r := NewRegistry()
	var seen HandlerArgs
	require.NoError(t, r.Register(Definition{Name: "search_documents", Category: CategoryRetrieval}, func(ctx context.Context, args HandlerArgs) (*Result, error) {
		seen = args
		return &Result{Kind: ResultChunks}, nil
	}, nil))
	ex := NewExecutor(r)

	res := ex.ExecuteToolCall(context.Background(), CallInput{
		ToolName:  "search_documents",
		Arguments: map[string]any{"query": "contrat X"},
	})
	require.True(t, res.Success)
	require.Equal(t, "contrat X", seen.Query)
}

func TestExecutionResult_ToolMessage(t *testing.T) {
	chunkRes := &ExecutionResult{Success: true, Result: &Result{
		Kind: ResultChunks,
		Chunks: []Chunk{{DocumentFilename: "contract.pdf", Excerpt: "Le contrat prévoit...", Score: 0.8}},
	}}
	require.Contains(t, chunkRes.ToolMessage(), "contract.pdf")

	errRes := &ExecutionResult{Success: false, Error: "boom"}
	require.Equal(t, `{"error":"boom"}`, errRes.ToolMessage())

	delegationRes := &ExecutionResult{Success: true, Result: &Result{
		Kind: ResultDelegation,
		Delegation: &DelegationResult{AssistantName: "Support", AnswerText: "Voici la réponse."},
	}}
	require.Equal(t, "[Réponse de l'assistant 'Support']\nVoici la réponse.", delegationRes.ToolMessage())
}
