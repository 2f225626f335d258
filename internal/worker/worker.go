// Package worker implements the worker runtime: the component that drains a
// queued run, binds it to a live agent loop, and guarantees it reaches a
// terminal status even if the worker process crashes mid-run (SPEC_FULL.md
// §4.6).
//
// A run's entire lifecycle — load, start, dispatch to the planner/loop,
// finalize — happens inside one engine.ActivityFunc. That keeps this
// package's dependence on internal/engine to the minimum the spec actually
// needs: one workflow that calls one activity, not the teacher's
// multi-activity plan/resume/tool-call split, which exists to satisfy
// Temporal's determinism rules for suspendable, multi-day workflows. This
// spec's runs are bounded-duration and single-pass, so there is nothing to
// suspend.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/northflow/agentcore/internal/budget"
	"github.com/northflow/agentcore/internal/citations"
	"github.com/northflow/agentcore/internal/engine"
	"github.com/northflow/agentcore/internal/model"
	"github.com/northflow/agentcore/internal/planner"
	"github.com/northflow/agentcore/internal/run"
	"github.com/northflow/agentcore/internal/runlog"
	"github.com/northflow/agentcore/internal/stream"
	"github.com/northflow/agentcore/internal/telemetry"
	"github.com/northflow/agentcore/internal/tools"
)

// WorkflowName and ActivityName are the registered names of the single
// workflow/activity pair this package drives.
const (
	WorkflowName = "agent_run_workflow"
	ActivityName = "run_agent"

	defaultHistoryLimit      = 10
	defaultTaskQueue         = "agent-runs"
	defaultStreamTTL         = 10 * time.Minute
	defaultStreamMaxLen      = 2000
	defaultStuckAfter        = 10 * time.Minute
	defaultHeartbeat         = 30 * time.Second
	defaultDeltaBatchInterval = 300 * time.Millisecond
)

// ErrAssistantNotFound is returned by an AssistantLookup when the target
// assistant does not exist or is not visible to the run's tenant.
var ErrAssistantNotFound = errors.New("worker: assistant not found")

// Assistant is the read-only configuration a run executes against.
// Assistant itself is owned by a system external to this core (SPEC_FULL.md
// §3 entity table marks it "Read-only in core"), so the worker depends on it
// only through AssistantLookup.
type Assistant struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Name          string
	SystemPrompt  string
	Profile       run.Profile
	CollectionIDs []uuid.UUID
	Integrations  []string
}

// AssistantLookup resolves the Assistant configuration a run targets.
type AssistantLookup interface {
	GetAssistant(ctx context.Context, tenantID, assistantID uuid.UUID) (*Assistant, error)
}

// HistoryLoader loads the most recent conversation turns for loop context
// (SPEC_FULL.md §4.6 step 7: "load last N messages of the conversation").
// Neither internal/run nor internal/session stores message bodies, so the
// worker owns this narrow interface rather than reaching into a store that
// isn't its concern.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, conversationID uuid.UUID, limit int) ([]*model.Message, error)
}

// AssistantMessage is the final assistant turn persisted once a run
// completes (SPEC_FULL.md §4.6 step 12).
type AssistantMessage struct {
	ConversationID uuid.UUID
	RunID          uuid.UUID
	Content        string
	Citations      []citations.Entry
	Blocks         []tools.BlockPayload
	TokensOutput   int
}

// MessageStore persists a run's final assistant message.
type MessageStore interface {
	AppendAssistantMessage(ctx context.Context, msg AssistantMessage) error
}

// PublisherFactory opens the stream publisher for one run's lifetime.
// Production wiring binds stream.NewRunPublisher against a live Pulse
// client; tests use stream.NewInMemoryPublisher.
type PublisherFactory func(ctx context.Context, runID string) (stream.Publisher, error)

// Options configures a Runtime.
type Options struct {
	Engine     engine.Engine
	Runs       run.Store
	RunLog     runlog.Store // optional; nil disables introspection logging
	Tools      *tools.Registry
	Model      model.Client
	Assistants AssistantLookup
	History    HistoryLoader // optional; nil means no history is loaded
	Messages   MessageStore

	Publisher PublisherFactory

	TaskQueue          string
	StreamTTL          time.Duration
	StreamMaxLen       int
	HistoryLimit       int
	StuckRunThreshold  time.Duration
	HeartbeatTimeout   time.Duration
	DeltaBatchInterval time.Duration

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Runtime drives the run_agent lifecycle of SPEC_FULL.md §4.6: dequeue,
// bind context, run the planner/loop, finalize to a terminal run status,
// with an abort hook and a watchdog sweep for crash recovery.
type Runtime struct {
	engine     engine.Engine
	runs       run.Store
	runlog     runlog.Store
	toolReg    *tools.Registry
	model      model.Client
	assistants AssistantLookup
	history    HistoryLoader
	messages   MessageStore
	publisher  PublisherFactory

	taskQueue          string
	streamTTL          time.Duration
	streamMaxLen       int
	historyLimit       int
	stuckThreshold     time.Duration
	heartbeatTimeout   time.Duration
	deltaBatchInterval time.Duration

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// New validates opts and constructs a Runtime, substituting noop telemetry
// and spec-default settings for anything left unset.
func New(opts Options) (*Runtime, error) {
	switch {
	case opts.Engine == nil:
		return nil, fmt.Errorf("worker: engine is required")
	case opts.Runs == nil:
		return nil, fmt.Errorf("worker: run store is required")
	case opts.Tools == nil:
		return nil, fmt.Errorf("worker: tool registry is required")
	case opts.Model == nil:
		return nil, fmt.Errorf("worker: model client is required")
	case opts.Assistants == nil:
		return nil, fmt.Errorf("worker: assistant lookup is required")
	case opts.Messages == nil:
		return nil, fmt.Errorf("worker: message store is required")
	case opts.Publisher == nil:
		return nil, fmt.Errorf("worker: publisher factory is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracer{}
	}

	taskQueue := opts.TaskQueue
	if taskQueue == "" {
		taskQueue = defaultTaskQueue
	}
	streamTTL := opts.StreamTTL
	if streamTTL <= 0 {
		streamTTL = defaultStreamTTL
	}
	streamMaxLen := opts.StreamMaxLen
	if streamMaxLen <= 0 {
		streamMaxLen = defaultStreamMaxLen
	}
	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	stuckThreshold := opts.StuckRunThreshold
	if stuckThreshold <= 0 {
		stuckThreshold = defaultStuckAfter
	}
	heartbeatTimeout := opts.HeartbeatTimeout
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = defaultHeartbeat
	}
	deltaBatchInterval := opts.DeltaBatchInterval
	if deltaBatchInterval <= 0 {
		deltaBatchInterval = defaultDeltaBatchInterval
	}

	return &Runtime{
		engine:             opts.Engine,
		runs:               opts.Runs,
		runlog:             opts.RunLog,
		toolReg:            opts.Tools,
		model:              opts.Model,
		assistants:         opts.Assistants,
		history:            opts.History,
		messages:           opts.Messages,
		publisher:          opts.Publisher,
		taskQueue:          taskQueue,
		streamTTL:          streamTTL,
		streamMaxLen:       streamMaxLen,
		historyLimit:       historyLimit,
		stuckThreshold:     stuckThreshold,
		heartbeatTimeout:   heartbeatTimeout,
		deltaBatchInterval: deltaBatchInterval,
		logger:             logger,
		metrics:            metrics,
		tracer:             tracer,
	}, nil
}

// RunAgentInput is the payload of the run-driving activity.
type RunAgentInput struct {
	RunID uuid.UUID
}

// RunAgentOutput summarizes a completed activity invocation.
type RunAgentOutput struct {
	Status       run.Status
	TokensInput  int
	TokensOutput int
}

// Register binds the workflow wrapper and the run-driving activity to the
// engine. Called once during process startup.
func (rt *Runtime) Register(ctx context.Context) error {
	if err := rt.engine.RegisterActivity(ctx, engine.ActivityDefinition{
		Name:    ActivityName,
		Handler: rt.runAgentActivity,
		Options: engine.ActivityOptions{
			Queue:               rt.taskQueue,
			StartToCloseTimeout: rt.stuckThreshold,
			HeartbeatTimeout:    rt.heartbeatTimeout,
			RetryPolicy:         engine.RetryPolicy{MaxAttempts: 1},
		},
	}); err != nil {
		return fmt.Errorf("worker: register activity: %w", err)
	}
	if err := rt.engine.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:      WorkflowName,
		TaskQueue: rt.taskQueue,
		Handler:   rt.workflowHandler,
	}); err != nil {
		return fmt.Errorf("worker: register workflow: %w", err)
	}
	return nil
}

// StartRun launches the workflow for one previously-created, pending run.
func (rt *Runtime) StartRun(ctx context.Context, runID uuid.UUID) (engine.WorkflowHandle, error) {
	return rt.engine.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        runID.String(),
		Workflow:  WorkflowName,
		TaskQueue: rt.taskQueue,
		Input:     &RunAgentInput{RunID: runID},
		RetryPolicy: engine.RetryPolicy{
			MaxAttempts: 1,
		},
	})
}

// workflowHandler is the thin workflow entry point: schedule the one
// run-driving activity and return its result.
func (rt *Runtime) workflowHandler(wctx engine.WorkflowContext, input any) (any, error) {
	var out RunAgentOutput
	err := wctx.ExecuteActivity(wctx.Context(), engine.ActivityRequest{
		Name:  ActivityName,
		Input: input,
		Options: engine.ActivityOptions{
			Queue:               rt.taskQueue,
			StartToCloseTimeout: rt.stuckThreshold,
			HeartbeatTimeout:    rt.heartbeatTimeout,
		},
	}, &out)
	return &out, err
}

// runAgentActivity implements the run_agent(run_id) lifecycle of
// SPEC_FULL.md §4.6. Any condition that prevents the run from reaching a
// clean completion is handled by failing the run and returning a nil Go
// error: only a broken event stream (the one failure the worker cannot
// itself report) propagates as an error, so the engine's retry/backoff
// machinery gets a chance at a fresh attempt.
func (rt *Runtime) runAgentActivity(actx engine.ActivityContext, input any) (any, error) {
	in, ok := input.(*RunAgentInput)
	if !ok || in == nil {
		return nil, fmt.Errorf("worker: invalid run_agent input")
	}
	ctx := actx.Context()
	logger := actx.Logger()
	runID := in.RunID

	ctx, span := actx.Tracer().Start(ctx, "worker.run_agent")
	defer span.End()

	pub, err := rt.publisher(ctx, runID.String())
	if err != nil {
		return nil, fmt.Errorf("worker: open stream for run %s: %w", runID, err)
	}
	defer pub.Close()
	if err := pub.Setup(rt.streamTTL, rt.streamMaxLen); err != nil {
		logger.Warn(ctx, "stream setup failed", "run_id", runID.String(), "err", err)
	}

	rec, err := rt.runs.GetRun(ctx, runID, nil)
	if err != nil || rec == nil {
		logger.Error(ctx, "run not found", "run_id", runID.String(), "err", err)
		_ = pub.Error("run_not_found", "run not found")
		return &RunAgentOutput{Status: run.StatusFailed}, nil
	}

	if err := rt.runs.StartRun(ctx, runID); err != nil {
		rt.failRun(ctx, logger, pub, rec, "worker_exception", err.Error())
		return &RunAgentOutput{Status: run.StatusFailed}, nil
	}
	logger.Info(ctx, "run started", "run_id", runID.String(), "tenant_id", rec.TenantID.String())
	if err := pub.Status("starting"); err != nil {
		logger.Warn(ctx, "publish status failed", "run_id", runID.String(), "err", err)
	}

	assistant, err := rt.assistants.GetAssistant(ctx, rec.TenantID, rec.AssistantID)
	if err != nil || assistant == nil {
		if err == nil {
			err = ErrAssistantNotFound
		}
		rt.failRun(ctx, logger, pub, rec, "assistant_not_found", err.Error())
		return &RunAgentOutput{Status: run.StatusFailed}, nil
	}

	budgetTotal := rec.BudgetTokens
	if budgetTotal <= 0 {
		budgetTotal = budget.DefaultForProfile(string(rec.Profile))
	}
	bm := budget.New(budgetTotal)

	allowed := rt.toolReg.GetAllowedTools(tools.Filter{
		Profile:   string(rec.Profile),
		Providers: assistant.Integrations,
	})
	logger.Info(ctx, "resolved allowed tools", "run_id", runID.String(), "count", len(allowed))

	var history []*model.Message
	if rt.history != nil {
		history, err = rt.history.LoadHistory(ctx, rec.ConversationID, rt.historyLimit)
		if err != nil {
			logger.Warn(ctx, "load history failed", "run_id", runID.String(), "err", err)
		}
	}

	var plan *planner.Plan
	if rec.Profile != run.ProfileReactive {
		plan = planner.NewPlanner(rt.model).Generate(ctx, runID.String(), rec.InputText)
		rt.appendRunLog(ctx, rec, runlog.EventPlanGenerated, plan)
	}

	reg := citations.New()
	actx.Heartbeat("loop_started")
	result, err := planner.Run(ctx, planner.LoopInput{
		RunID:              runID.String(),
		Profile:            rec.Profile,
		SystemPrompt:       assistant.SystemPrompt,
		History:            history,
		UserMessage:        rec.InputText,
		Plan:               plan,
		AllowedTools:       allowed,
		Client:             rt.model,
		Executor:           tools.NewExecutor(rt.toolReg),
		Budget:             bm,
		Publisher:          pub,
		Citations:          reg,
		TenantID:           rec.TenantID,
		AssistantID:        rec.AssistantID,
		ConversationID:     rec.ConversationID,
		CollectionIDs:      assistant.CollectionIDs,
		Providers:          assistant.Integrations,
		DeltaBatchInterval: rt.deltaBatchInterval,
	})
	actx.Heartbeat("loop_done")
	if err != nil {
		rt.failRun(ctx, logger, pub, rec, "worker_exception", err.Error())
		return &RunAgentOutput{Status: run.StatusFailed}, nil
	}
	if result.Failed {
		rt.failRun(ctx, logger, pub, rec, result.ErrorCode, result.ErrorMessage)
		return &RunAgentOutput{Status: run.StatusFailed}, nil
	}

	finalText := result.FinalText

	if err := rt.messages.AppendAssistantMessage(ctx, AssistantMessage{
		ConversationID: rec.ConversationID,
		RunID:          runID,
		Content:        finalText,
		Citations:      reg.All(),
		Blocks:         result.Blocks,
		TokensOutput:   result.TokensOutput,
	}); err != nil {
		logger.Error(ctx, "persist assistant message failed", "run_id", runID.String(), "err", err)
	}

	if err := rt.runs.RecordLLMTrace(ctx, run.LLMTrace{
		ID:               uuid.New(),
		TenantID:         &rec.TenantID,
		RunID:            &rec.ID,
		PromptTokens:     result.TokensInput,
		CompletionTokens: result.TokensOutput,
		TotalTokens:      result.TokensInput + result.TokensOutput,
		Status:           "completed",
		CreatedAt:        time.Now().UTC(),
	}); err != nil {
		logger.Error(ctx, "record llm trace failed", "run_id", runID.String(), "err", err)
	}

	if err := rt.runs.CompleteRun(ctx, runID, run.CompleteInput{
		OutputText:            finalText,
		TokensInput:           result.TokensInput,
		TokensOutput:          result.TokensOutput,
		ToolRounds:            result.ToolRounds,
		BudgetTokensRemaining: bm.Remaining(),
	}); err != nil {
		logger.Error(ctx, "complete run failed", "run_id", runID.String(), "err", err)
	}
	rt.appendRunLog(ctx, rec, runlog.EventRunCompleted, result)
	rt.metrics.IncCounter("worker.run.completed", 1, "profile", string(rec.Profile))
	rt.metrics.RecordGauge("worker.run.tokens_output", float64(result.TokensOutput), "profile", string(rec.Profile))

	return &RunAgentOutput{
		Status:       run.StatusCompleted,
		TokensInput:  result.TokensInput,
		TokensOutput: result.TokensOutput,
	}, nil
}

// failRun transitions rec to FAILED and emits the corresponding error event.
// Per SPEC_FULL.md §9 ("exceptions never escape the worker"), a commit
// failure here is logged, never re-raised: the activity must still return
// normally so the engine doesn't retry a run that already failed cleanly.
func (rt *Runtime) failRun(ctx context.Context, logger telemetry.Logger, pub stream.Publisher, rec *run.Record, code, message string) {
	if err := rt.runs.FailRun(ctx, rec.ID, code, message, run.StatusFailed); err != nil {
		logger.Error(ctx, "fail_run commit failed", "run_id", rec.ID.String(), "err", err)
	}
	if err := pub.Error(code, message); err != nil {
		logger.Error(ctx, "emit error event failed", "run_id", rec.ID.String(), "err", err)
	}
	rt.appendRunLog(ctx, rec, runlog.EventRunFailed, map[string]string{"code": code, "message": message})
	rt.metrics.IncCounter("worker.run.failed", 1, "code", code)
}

func (rt *Runtime) appendRunLog(ctx context.Context, rec *run.Record, eventType runlog.EventType, payload any) {
	if rt.runlog == nil {
		return
	}
	raw, err := marshalRunLogPayload(payload)
	if err != nil {
		rt.logger.Warn(ctx, "runlog payload marshal failed", "run_id", rec.ID.String(), "err", err)
		return
	}
	err = rt.runlog.Append(ctx, &runlog.Event{
		RunID:       rec.ID.String(),
		AssistantID: rec.AssistantID.String(),
		Type:        eventType,
		Payload:     raw,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		rt.logger.Warn(ctx, "runlog append failed", "run_id", rec.ID.String(), "type", string(eventType), "err", err)
	}
}

func marshalRunLogPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("null"), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// AbortRun implements on_agent_job_abort (SPEC_FULL.md §4.6): called by the
// process supervisor when a job is aborted out from under the worker
// (shutdown, external cancellation). It is idempotent — calling it on an
// already-terminal run is a no-op, matching FailRun's own idempotence
// contract.
func (rt *Runtime) AbortRun(ctx context.Context, runID uuid.UUID) error {
	rec, err := rt.runs.GetRun(ctx, runID, nil)
	if err != nil {
		return fmt.Errorf("worker: abort run %s: %w", runID, err)
	}
	if rec.Status.Terminal() {
		return nil
	}
	if err := rt.runs.FailRun(ctx, runID, "worker_aborted", "agent job was aborted", run.StatusAborted); err != nil {
		return fmt.Errorf("worker: abort run %s: %w", runID, err)
	}
	pub, err := rt.publisher(ctx, runID.String())
	if err != nil {
		rt.logger.Error(ctx, "abort: open stream failed", "run_id", runID.String(), "err", err)
		return nil
	}
	defer pub.Close()
	if err := pub.Error("worker_aborted", "agent job was aborted"); err != nil {
		rt.logger.Error(ctx, "abort: emit error event failed", "run_id", runID.String(), "err", err)
	}
	return nil
}

// WatchdogSweep implements watchdog_stuck_runs (SPEC_FULL.md §4.6): find
// every RUNNING run whose last progress predates the stuck-run threshold and
// fail each with error_code="watchdog_timeout". One run failing to commit or
// publish never stops the sweep from reaching the rest.
func (rt *Runtime) WatchdogSweep(ctx context.Context, now time.Time) error {
	stuck, err := rt.runs.FindStuckRuns(ctx, now.Add(-rt.stuckThreshold))
	if err != nil {
		return fmt.Errorf("worker: watchdog sweep: %w", err)
	}
	for _, rec := range stuck {
		if err := rt.runs.FailRun(ctx, rec.ID, "watchdog_timeout", "run exceeded the stuck-run threshold", run.StatusTimeout); err != nil {
			rt.logger.Error(ctx, "watchdog: fail_run failed", "run_id", rec.ID.String(), "err", err)
			continue
		}
		pub, err := rt.publisher(ctx, rec.ID.String())
		if err != nil {
			rt.logger.Error(ctx, "watchdog: open stream failed", "run_id", rec.ID.String(), "err", err)
			continue
		}
		if err := pub.Error("watchdog_timeout", "run exceeded the stuck-run threshold"); err != nil {
			rt.logger.Error(ctx, "watchdog: emit error failed", "run_id", rec.ID.String(), "err", err)
		}
		pub.Close()
	}
	return nil
}

// StartWatchdog runs WatchdogSweep on a ticker until the returned stop func
// is invoked or ctx is done.
func (rt *Runtime) StartWatchdog(ctx context.Context, interval time.Duration) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := rt.WatchdogSweep(ctx, time.Now()); err != nil {
					rt.logger.Error(ctx, "watchdog sweep failed", "err", err)
				}
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(stopCh) }
}
