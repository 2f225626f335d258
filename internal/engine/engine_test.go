package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type runInput struct{ Question string }
type runOutput struct{ Answer string }

func TestInMemoryEngine_WorkflowDrivesSingleActivity(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	require.NoError(t, eng.RegisterActivity(ctx, ActivityDefinition{
		Name: "run_agent",
		Handler: func(actx ActivityContext, input any) (any, error) {
			in := input.(*runInput)
			actx.Heartbeat("started")
			return &runOutput{Answer: "echo: " + in.Question}, nil
		},
	}))

	require.NoError(t, eng.RegisterWorkflow(ctx, WorkflowDefinition{
		Name: "agent_workflow",
		Handler: func(wctx WorkflowContext, input any) (any, error) {
			var out runOutput
			err := wctx.ExecuteActivity(wctx.Context(), ActivityRequest{
				Name:  "run_agent",
				Input: input,
			}, &out)
			return &out, err
		},
	}))

	handle, err := eng.StartWorkflow(ctx, WorkflowStartRequest{
		ID:       "run-1",
		Workflow: "agent_workflow",
		Input:    &runInput{Question: "hello"},
	})
	require.NoError(t, err)

	var result runOutput
	require.NoError(t, handle.Wait(ctx, &result))
	require.Equal(t, "echo: hello", result.Answer)
}

func TestInMemoryEngine_StartUnknownWorkflowErrors(t *testing.T) {
	eng := NewInMemoryEngine()
	_, err := eng.StartWorkflow(context.Background(), WorkflowStartRequest{Workflow: "missing"})
	require.Error(t, err)
}

func TestInMemoryEngine_RegisterDuplicateWorkflowErrors(t *testing.T) {
	eng := NewInMemoryEngine()
	def := WorkflowDefinition{Name: "wf", Handler: func(WorkflowContext, any) (any, error) { return nil, nil }}
	require.NoError(t, eng.RegisterWorkflow(context.Background(), def))
	require.Error(t, eng.RegisterWorkflow(context.Background(), def))
}

func TestInMemoryEngine_SignalDeliversToWorkflow(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()
	received := make(chan string, 1)

	require.NoError(t, eng.RegisterWorkflow(ctx, WorkflowDefinition{
		Name: "signaled_workflow",
		Handler: func(wctx WorkflowContext, input any) (any, error) {
			var payload string
			if err := wctx.SignalChannel("abort").Receive(wctx.Context(), &payload); err != nil {
				return nil, err
			}
			received <- payload
			return nil, nil
		},
	}))

	handle, err := eng.StartWorkflow(ctx, WorkflowStartRequest{ID: "run-2", Workflow: "signaled_workflow"})
	require.NoError(t, err)

	require.NoError(t, handle.Signal(ctx, "abort", "user_requested"))
	require.NoError(t, handle.Wait(ctx, nil))

	select {
	case payload := <-received:
		require.Equal(t, "user_requested", payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal delivery")
	}
}

func TestInMemoryEngine_CancelStopsWorkflowContext(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	require.NoError(t, eng.RegisterWorkflow(ctx, WorkflowDefinition{
		Name: "cancellable_workflow",
		Handler: func(wctx WorkflowContext, input any) (any, error) {
			<-wctx.Context().Done()
			return nil, wctx.Context().Err()
		},
	}))

	handle, err := eng.StartWorkflow(ctx, WorkflowStartRequest{ID: "run-3", Workflow: "cancellable_workflow"})
	require.NoError(t, err)
	require.NoError(t, handle.Cancel(ctx))
	require.ErrorIs(t, handle.Wait(ctx, nil), context.Canceled)
}

func TestNewTemporalEngine_RequiresTaskQueue(t *testing.T) {
	_, err := NewTemporalEngine(TemporalOptions{})
	require.Error(t, err)
}

func TestNewTemporalEngine_RequiresClientOrClientOptions(t *testing.T) {
	_, err := NewTemporalEngine(TemporalOptions{
		WorkerOptions: WorkerOptions{TaskQueue: "agent-runs"},
	})
	require.Error(t, err)
}

func TestConvertRetryPolicy_ZeroValueYieldsNil(t *testing.T) {
	require.Nil(t, convertRetryPolicy(RetryPolicy{}))
	require.NotNil(t, convertRetryPolicy(RetryPolicy{MaxAttempts: 3}))
}
