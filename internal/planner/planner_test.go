package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/northflow/agentcore/internal/model"
	"github.com/northflow/agentcore/internal/run"
)

type fakePlanClient struct {
	text string
	err  error
}

func (f *fakePlanClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{
		Content: []model.Message{{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: f.text}}}},
	}, nil
}

func (f *fakePlanClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func TestDefaultPlan_EndsWithEnsureSourceCoverage(t *testing.T) {
	plan := DefaultPlan()
	require.NotEmpty(t, plan.Steps)
	require.Equal(t, ActionEnsureSourceCoverage, plan.Steps[len(plan.Steps)-1].Action)
}

func TestPlanner_GenerateFallsBackOnNilClient(t *testing.T) {
	p := NewPlanner(nil)
	plan := p.Generate(context.Background(), "run-1", "hello")
	require.Equal(t, DefaultPlan(), plan)
}

func TestPlanner_GenerateFallsBackOnLLMError(t *testing.T) {
	p := NewPlanner(&fakePlanClient{err: model.ErrRateLimited})
	plan := p.Generate(context.Background(), "run-1", "hello")
	require.Equal(t, DefaultPlan(), plan)
}

func TestPlanner_GenerateParsesValidJSON(t *testing.T) {
	text := `{"reasoning":"need docs","steps":[
		{"action":"search_documents","description":"find it"},
		{"action":"synthesize","description":"write answer"},
		{"action":"ensure_source_coverage","description":"check sources"}
	]}`
	p := NewPlanner(&fakePlanClient{text: text})
	plan := p.Generate(context.Background(), "run-1", "what is the policy?")
	require.Equal(t, "need docs", plan.Reasoning)
	require.Len(t, plan.Steps, 3)
	require.Equal(t, ActionSearchDocuments, plan.Steps[0].Action)
}

func TestPlanner_GenerateCollapsesGreetingToSynthesize(t *testing.T) {
	text := `{"reasoning":"greeting","steps":[{"action":"synthesize","description":"say hi"}]}`
	p := NewPlanner(&fakePlanClient{text: text})
	plan := p.Generate(context.Background(), "run-1", "hi there")
	require.Len(t, plan.Steps, 1)
	require.Equal(t, ActionSynthesize, plan.Steps[0].Action)
}

func TestPlanner_GenerateFallsBackOnInvalidJSON(t *testing.T) {
	p := NewPlanner(&fakePlanClient{text: "not json at all"})
	plan := p.Generate(context.Background(), "run-1", "hello")
	require.Equal(t, DefaultPlan(), plan)
}

func TestPlanner_GenerateFallsBackWhenMissingEnsureSourceCoverage(t *testing.T) {
	text := `{"reasoning":"bad","steps":[{"action":"search_documents","description":"find it"}]}`
	p := NewPlanner(&fakePlanClient{text: text})
	plan := p.Generate(context.Background(), "run-1", "hello")
	require.Equal(t, DefaultPlan(), plan)
}

func TestPlanner_GenerateFallsBackOnTooManySteps(t *testing.T) {
	text := `{"reasoning":"too many","steps":[
		{"action":"search_documents","description":"a"},
		{"action":"search_documents","description":"b"},
		{"action":"search_documents","description":"c"},
		{"action":"search_documents","description":"d"},
		{"action":"search_documents","description":"e"},
		{"action":"ensure_source_coverage","description":"f"}
	]}`
	p := NewPlanner(&fakePlanClient{text: text})
	plan := p.Generate(context.Background(), "run-1", "hello")
	require.Equal(t, DefaultPlan(), plan)
}

func TestMaxRounds(t *testing.T) {
	require.Equal(t, 1, MaxRounds(run.ProfileReactive))
	require.Equal(t, 3, MaxRounds(run.ProfileBalanced))
	require.Equal(t, 5, MaxRounds(run.ProfilePro))
	require.Equal(t, 5, MaxRounds(run.ProfileExec))
	require.Equal(t, 1, MaxRounds(run.Profile("unknown")))
}
