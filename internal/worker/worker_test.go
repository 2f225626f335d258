package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/northflow/agentcore/internal/engine"
	"github.com/northflow/agentcore/internal/model"
	"github.com/northflow/agentcore/internal/run"
	"github.com/northflow/agentcore/internal/runlog"
	"github.com/northflow/agentcore/internal/stream"
	"github.com/northflow/agentcore/internal/telemetry"
	"github.com/northflow/agentcore/internal/tools"
)

type fakeModelClient struct {
	text string
	err  error
}

func (f *fakeModelClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{
		Content: []model.Message{{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: f.text}}}},
		Usage:   model.TokenUsage{InputTokens: 10, OutputTokens: 20},
	}, nil
}

func (f *fakeModelClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

type fakeAssistants struct {
	assistant *Assistant
	err       error
}

func (f *fakeAssistants) GetAssistant(ctx context.Context, tenantID, assistantID uuid.UUID) (*Assistant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.assistant, nil
}

type fakeMessages struct {
	saved []AssistantMessage
}

func (f *fakeMessages) AppendAssistantMessage(ctx context.Context, msg AssistantMessage) error {
	f.saved = append(f.saved, msg)
	return nil
}

type fakeHistory struct {
	messages []*model.Message
}

func (f *fakeHistory) LoadHistory(ctx context.Context, conversationID uuid.UUID, limit int) ([]*model.Message, error) {
	return f.messages, nil
}

func newTestRuntime(t *testing.T, runs run.Store, assistants AssistantLookup, client model.Client, pubs map[string]*stream.InMemoryPublisher) *Runtime {
	t.Helper()
	rt, err := New(Options{
		Engine:     engine.NewInMemoryEngine(),
		Runs:       runs,
		RunLog:     runlog.NewInMemoryStore(),
		Tools:      tools.NewRegistry(),
		Model:      client,
		Assistants: assistants,
		Messages:   &fakeMessages{},
		Publisher: func(ctx context.Context, runID string) (stream.Publisher, error) {
			p := stream.NewInMemoryPublisher()
			if pubs != nil {
				pubs[runID] = p
			}
			return p, nil
		},
		StuckRunThreshold: time.Minute,
	})
	require.NoError(t, err)
	return rt
}

func createPendingRun(t *testing.T, runs run.Store, profile run.Profile) *run.Record {
	t.Helper()
	rec, err := runs.CreateRun(context.Background(), run.CreateInput{
		TenantID:       uuid.New(),
		AssistantID:    uuid.New(),
		ConversationID: uuid.New(),
		InputText:      "what is the refund policy?",
		Profile:        profile,
	})
	require.NoError(t, err)
	return rec
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestRunAgentActivity_HappyPathCompletesRun(t *testing.T) {
	runs := run.NewInMemoryStore()
	rec := createPendingRun(t, runs, run.ProfileReactive)
	assistants := &fakeAssistants{assistant: &Assistant{
		ID: rec.AssistantID, TenantID: rec.TenantID, SystemPrompt: "You are helpful.",
	}}
	pubs := map[string]*stream.InMemoryPublisher{}
	rt := newTestRuntime(t, runs, assistants, &fakeModelClient{text: "Here is your answer."}, pubs)

	out, err := rt.runAgentActivity(testActivityContext{}, &RunAgentInput{RunID: rec.ID})
	require.NoError(t, err)
	result := out.(*RunAgentOutput)
	require.Equal(t, run.StatusCompleted, result.Status)

	got, err := runs.GetRun(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	require.Equal(t, run.StatusCompleted, got.Status)
	require.Equal(t, "Here is your answer.", got.OutputText)

	pub := pubs[rec.ID.String()]
	require.NotNil(t, pub)
	types := pub.Types()
	require.Contains(t, types, stream.EventDone)
}

func TestRunAgentActivity_UnknownRunFails(t *testing.T) {
	runs := run.NewInMemoryStore()
	rt := newTestRuntime(t, runs, &fakeAssistants{}, &fakeModelClient{}, nil)

	out, err := rt.runAgentActivity(testActivityContext{}, &RunAgentInput{RunID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, run.StatusFailed, out.(*RunAgentOutput).Status)
}

func TestRunAgentActivity_AssistantNotFoundFailsRun(t *testing.T) {
	runs := run.NewInMemoryStore()
	rec := createPendingRun(t, runs, run.ProfileBalanced)
	rt := newTestRuntime(t, runs, &fakeAssistants{err: ErrAssistantNotFound}, &fakeModelClient{}, nil)

	out, err := rt.runAgentActivity(testActivityContext{}, &RunAgentInput{RunID: rec.ID})
	require.NoError(t, err)
	require.Equal(t, run.StatusFailed, out.(*RunAgentOutput).Status)

	got, err := runs.GetRun(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	require.Equal(t, run.StatusFailed, got.Status)
	require.Equal(t, "assistant_not_found", got.ErrorCode)
}

func TestRunAgentActivity_LLMErrorFailsRunWithLLMErrorCode(t *testing.T) {
	runs := run.NewInMemoryStore()
	rec := createPendingRun(t, runs, run.ProfileReactive)
	assistants := &fakeAssistants{assistant: &Assistant{ID: rec.AssistantID, TenantID: rec.TenantID}}
	rt := newTestRuntime(t, runs, assistants, &fakeModelClient{err: model.ErrRateLimited}, nil)

	out, err := rt.runAgentActivity(testActivityContext{}, &RunAgentInput{RunID: rec.ID})
	require.NoError(t, err)
	require.Equal(t, run.StatusFailed, out.(*RunAgentOutput).Status)

	got, err := runs.GetRun(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	require.Equal(t, "llm_error", got.ErrorCode)
}

func TestAbortRun_FailsRunningRunAndIsIdempotent(t *testing.T) {
	runs := run.NewInMemoryStore()
	rec := createPendingRun(t, runs, run.ProfileReactive)
	require.NoError(t, runs.StartRun(context.Background(), rec.ID))

	pubs := map[string]*stream.InMemoryPublisher{}
	rt := newTestRuntime(t, runs, &fakeAssistants{}, &fakeModelClient{}, pubs)

	require.NoError(t, rt.AbortRun(context.Background(), rec.ID))
	got, err := runs.GetRun(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	require.Equal(t, run.StatusAborted, got.Status)
	require.Equal(t, "worker_aborted", got.ErrorCode)

	// Calling it again on an already-terminal run is a no-op.
	require.NoError(t, rt.AbortRun(context.Background(), rec.ID))
	got2, err := runs.GetRun(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	require.Equal(t, run.StatusAborted, got2.Status)
}

func TestWatchdogSweep_FailsStuckRunningRuns(t *testing.T) {
	runs := run.NewInMemoryStore()
	rec := createPendingRun(t, runs, run.ProfileReactive)
	require.NoError(t, runs.StartRun(context.Background(), rec.ID))

	rt := newTestRuntime(t, runs, &fakeAssistants{}, &fakeModelClient{}, nil)

	err := rt.WatchdogSweep(context.Background(), time.Now().Add(2*time.Hour))
	require.NoError(t, err)

	got, err := runs.GetRun(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	require.Equal(t, run.StatusTimeout, got.Status)
	require.Equal(t, "watchdog_timeout", got.ErrorCode)
}

func TestRegisterAndStartRun_WiresThroughInMemoryEngine(t *testing.T) {
	runs := run.NewInMemoryStore()
	rec := createPendingRun(t, runs, run.ProfileReactive)
	assistants := &fakeAssistants{assistant: &Assistant{ID: rec.AssistantID, TenantID: rec.TenantID}}

	eng := engine.NewInMemoryEngine()
	rt, err := New(Options{
		Engine:     eng,
		Runs:       runs,
		Tools:      tools.NewRegistry(),
		Model:      &fakeModelClient{text: "done"},
		Assistants: assistants,
		Messages:   &fakeMessages{},
		Publisher: func(ctx context.Context, runID string) (stream.Publisher, error) {
			return stream.NewInMemoryPublisher(), nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, rt.Register(context.Background()))

	handle, err := rt.StartRun(context.Background(), rec.ID)
	require.NoError(t, err)

	var out RunAgentOutput
	require.NoError(t, handle.Wait(context.Background(), &out))
	require.Equal(t, run.StatusCompleted, out.Status)
}

// testActivityContext is a minimal engine.ActivityContext for driving
// runAgentActivity directly in tests, bypassing engine.NewInMemoryEngine's
// workflow/activity indirection.
type testActivityContext struct{}

func (testActivityContext) Context() context.Context  { return context.Background() }
func (testActivityContext) Heartbeat(details any)      {}
func (testActivityContext) Logger() telemetry.Logger   { return telemetry.NoopLogger{} }
func (testActivityContext) Metrics() telemetry.Metrics { return telemetry.NoopMetrics{} }
func (testActivityContext) Tracer() telemetry.Tracer   { return telemetry.NoopTracer{} }
