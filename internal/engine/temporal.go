package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/northflow/agentcore/internal/telemetry"
)

// TemporalOptions configures the Temporal-backed Engine adapter. Either
// Client or ClientOptions must be set. WorkerOptions.TaskQueue is the
// default queue used whenever a WorkflowDefinition/ActivityDefinition
// doesn't name one.
type TemporalOptions struct {
	Client        client.Client
	ClientOptions *client.Options
	WorkerOptions WorkerOptions

	Instrumentation InstrumentationOptions

	// DisableWorkerAutoStart disables starting workers on first
	// StartWorkflow call; the caller must invoke Start() itself.
	DisableWorkerAutoStart bool

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// WorkerOptions configures the single worker this adapter runs. Unlike a
// general-purpose workflow engine fronting many workflow types across many
// queues, this spec's worker runtime registers exactly one workflow and one
// activity (SPEC_FULL.md §4.6), so one worker bundle on one task queue is
// enough; there is no per-queue worker map to manage.
type WorkerOptions struct {
	TaskQueue string
	Options   worker.Options
}

// InstrumentationOptions toggles OTEL tracing/metrics on the Temporal client
// and worker.
type InstrumentationOptions struct {
	DisableTracing bool
	DisableMetrics bool

	TracerOptions  temporalotel.TracerOptions
	MetricsOptions temporalotel.MetricsHandlerOptions
}

// TemporalEngine implements Engine on top of a real Temporal cluster. A
// crashed worker process simply stops heartbeating its in-flight activity;
// Temporal's own heartbeat-timeout/retry machinery is what gives the worker
// runtime its crash recovery, not anything this adapter does itself.
type TemporalEngine struct {
	client      client.Client
	closeClient bool

	taskQueue         string
	workerOpts        worker.Options
	autoStartDisabled bool

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	mu      sync.Mutex
	w       worker.Worker
	started bool
}

// NewTemporalEngine constructs a Temporal engine adapter.
func NewTemporalEngine(opts TemporalOptions) (*TemporalEngine, error) {
	if opts.WorkerOptions.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: worker options must include a task queue")
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

	inst, err := configureInstrumentation(opts.Instrumentation)
	if err != nil {
		return nil, err
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal engine: client or client options are required")
		}
		clientOpts := *opts.ClientOptions
		applyClientInstrumentation(&clientOpts, inst)
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: create client: %w", err)
		}
		closeClient = true
	}

	workerOpts := opts.WorkerOptions.Options
	applyWorkerInstrumentation(&workerOpts, inst)

	return &TemporalEngine{
		client:            cli,
		closeClient:       closeClient,
		taskQueue:         opts.WorkerOptions.TaskQueue,
		workerOpts:        workerOpts,
		autoStartDisabled: opts.DisableWorkerAutoStart,
		logger:            logger,
		metrics:           metrics,
		tracer:            tracer,
		w:                 worker.New(cli, opts.WorkerOptions.TaskQueue, workerOpts),
	}, nil
}

func (e *TemporalEngine) RegisterWorkflow(_ context.Context, def WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid workflow definition")
	}
	e.w.RegisterWorkflowWithOptions(func(tctx workflow.Context, input any) (any, error) {
		return def.Handler(newTemporalWorkflowContext(e, tctx), input)
	}, workflow.RegisterOptions{Name: def.Name})
	return nil
}

func (e *TemporalEngine) RegisterActivity(_ context.Context, def ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid activity definition")
	}
	e.w.RegisterActivityWithOptions(func(actx context.Context, input any) (any, error) {
		return def.Handler(&temporalActivityContext{ctx: actx, logger: e.logger}, input)
	}, activity.RegisterOptions{Name: def.Name})
	return nil
}

func (e *TemporalEngine) StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error) {
	if req.Workflow == "" {
		return nil, fmt.Errorf("temporal engine: workflow name is required")
	}
	if !e.autoStartDisabled {
		e.ensureStarted()
	}

	queue := req.TaskQueue
	if queue == "" {
		queue = e.taskQueue
	}
	opts := client.StartWorkflowOptions{
		ID:               req.ID,
		TaskQueue:        queue,
		Memo:             req.Memo,
		SearchAttributes: req.SearchAttributes,
	}
	if rp := convertRetryPolicy(req.RetryPolicy); rp != nil {
		opts.RetryPolicy = rp
	}

	run, err := e.client.ExecuteWorkflow(ctx, opts, req.Workflow, req.Input)
	if err != nil {
		return nil, err
	}
	return &temporalWorkflowHandle{run: run, client: e.client}, nil
}

// Start launches the worker if it hasn't been already. Safe to call even
// when auto-start is in effect.
func (e *TemporalEngine) Start() {
	e.ensureStarted()
}

func (e *TemporalEngine) ensureStarted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	go func() {
		if err := e.w.Run(worker.InterruptCh()); err != nil {
			e.logger.Error(context.Background(), "temporal worker exited", "queue", e.taskQueue, "err", err)
		}
	}()
}

// Stop gracefully drains the worker.
func (e *TemporalEngine) Stop() {
	e.w.Stop()
}

// Close shuts down the Temporal client if this adapter created it.
func (e *TemporalEngine) Close() error {
	if e.closeClient && e.client != nil {
		e.client.Close()
	}
	return nil
}

// SignalByID sends a named signal directly to a run's workflow, used by the
// worker runtime's abort hook (SPEC_FULL.md §4.6 on_agent_job_abort) when the
// caller only has a run ID, not a live WorkflowHandle.
func (e *TemporalEngine) SignalByID(ctx context.Context, workflowID, runID, name string, payload any) error {
	if workflowID == "" {
		return fmt.Errorf("temporal engine: workflow id is required")
	}
	return e.client.SignalWorkflow(ctx, workflowID, runID, name, payload)
}

type temporalWorkflowContext struct {
	engine     *TemporalEngine
	ctx        workflow.Context
	workflowID string
	runID      string
}

func newTemporalWorkflowContext(e *TemporalEngine, ctx workflow.Context) *temporalWorkflowContext {
	info := workflow.GetInfo(ctx)
	return &temporalWorkflowContext{
		engine:     e,
		ctx:        ctx,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
	}
}

func (w *temporalWorkflowContext) Context() context.Context { return context.Background() }
func (w *temporalWorkflowContext) WorkflowID() string        { return w.workflowID }
func (w *temporalWorkflowContext) RunID() string             { return w.runID }
func (w *temporalWorkflowContext) Logger() telemetry.Logger  { return w.engine.logger }
func (w *temporalWorkflowContext) Metrics() telemetry.Metrics { return w.engine.metrics }
func (w *temporalWorkflowContext) Tracer() telemetry.Tracer  { return w.engine.tracer }
func (w *temporalWorkflowContext) Now() time.Time             { return workflow.Now(w.ctx) }

func (w *temporalWorkflowContext) ExecuteActivity(_ context.Context, req ActivityRequest, result any) error {
	if req.Name == "" {
		return fmt.Errorf("temporal engine: activity name is required")
	}
	actx := workflow.WithActivityOptions(w.ctx, activityOptionsToTemporal(req.Queue, req.Options))
	fut := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return fut.Get(actx, result)
}

func (w *temporalWorkflowContext) SignalChannel(name string) SignalChannel {
	return &temporalSignalChannel{ctx: w.ctx, ch: workflow.GetSignalChannel(w.ctx, name)}
}

func activityOptionsToTemporal(queue string, opts ActivityOptions) workflow.ActivityOptions {
	if queue == "" {
		queue = opts.Queue
	}
	return workflow.ActivityOptions{
		TaskQueue:           queue,
		StartToCloseTimeout: opts.StartToCloseTimeout,
		HeartbeatTimeout:    opts.HeartbeatTimeout,
		RetryPolicy:         convertRetryPolicy(opts.RetryPolicy),
	}
}

func convertRetryPolicy(r RetryPolicy) *temporal.RetryPolicy {
	if r.MaxAttempts == 0 && r.InitialInterval == 0 && r.BackoffCoefficient == 0 {
		return nil
	}
	policy := &temporal.RetryPolicy{}
	if r.MaxAttempts > 0 {
		policy.MaximumAttempts = int32(r.MaxAttempts)
	}
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}
	if r.BackoffCoefficient > 0 {
		policy.BackoffCoefficient = r.BackoffCoefficient
	}
	return policy
}

type temporalSignalChannel struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

func (s *temporalSignalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.ctx, dest)
	return nil
}

func (s *temporalSignalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}

type temporalActivityContext struct {
	ctx    context.Context
	logger telemetry.Logger
}

func (a *temporalActivityContext) Context() context.Context { return a.ctx }

// Heartbeat records liveness through Temporal's real activity heartbeat
// mechanism, the piece the teacher's flatter single-context model never
// needed to expose: heartbeating only makes sense from inside a running
// activity, never from workflow code.
func (a *temporalActivityContext) Heartbeat(details any) {
	activity.RecordHeartbeat(a.ctx, details)
}
func (a *temporalActivityContext) Logger() telemetry.Logger   { return a.logger }
func (a *temporalActivityContext) Metrics() telemetry.Metrics { return telemetry.NoopMetrics{} }
func (a *temporalActivityContext) Tracer() telemetry.Tracer   { return telemetry.NoopTracer{} }

type temporalWorkflowHandle struct {
	run    client.WorkflowRun
	client client.Client
}

func (h *temporalWorkflowHandle) Wait(ctx context.Context, result any) error {
	return h.run.Get(ctx, result)
}

func (h *temporalWorkflowHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

func (h *temporalWorkflowHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}

type instrumentation struct {
	tracer  interceptor.Interceptor
	metrics client.MetricsHandler
}

func configureInstrumentation(opts InstrumentationOptions) (*instrumentation, error) {
	inst := &instrumentation{}
	if !opts.DisableTracing {
		tracer, err := temporalotel.NewTracingInterceptor(opts.TracerOptions)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: configure tracing interceptor: %w", err)
		}
		inst.tracer = tracer
	}
	if !opts.DisableMetrics {
		inst.metrics = temporalotel.NewMetricsHandler(opts.MetricsOptions)
	}
	if inst.tracer == nil && inst.metrics == nil {
		return nil, nil
	}
	return inst, nil
}

func applyClientInstrumentation(opts *client.Options, inst *instrumentation) {
	if inst == nil {
		return
	}
	if inst.tracer != nil {
		opts.Interceptors = append(opts.Interceptors, inst.tracer)
	}
	if inst.metrics != nil && opts.MetricsHandler == nil {
		opts.MetricsHandler = inst.metrics
	}
}

func applyWorkerInstrumentation(opts *worker.Options, inst *instrumentation) {
	if inst == nil {
		return
	}
	if inst.tracer != nil {
		opts.Interceptors = append(opts.Interceptors, inst.tracer)
	}
}
