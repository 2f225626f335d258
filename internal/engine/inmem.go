package engine

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/northflow/agentcore/internal/telemetry"
)

// InMemoryEngine is a direct, non-durable Engine implementation used for
// tests and single-process development. Activities run as plain goroutines;
// there is no retry, no replay, and a crashed process loses all in-flight
// runs. It exists to exercise worker logic without a live Temporal cluster.
type InMemoryEngine struct {
	mu         sync.RWMutex
	workflows  map[string]WorkflowDefinition
	activities map[string]ActivityDefinition
}

// NewInMemoryEngine constructs an empty InMemoryEngine.
func NewInMemoryEngine() *InMemoryEngine {
	return &InMemoryEngine{
		workflows:  make(map[string]WorkflowDefinition),
		activities: make(map[string]ActivityDefinition),
	}
}

func (e *InMemoryEngine) RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("engine: invalid workflow definition")
	}
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("engine: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

func (e *InMemoryEngine) RegisterActivity(ctx context.Context, def ActivityDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("engine: invalid activity definition")
	}
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("engine: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = def
	return nil
}

func (e *InMemoryEngine) StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error) {
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: workflow %q not registered", req.Workflow)
	}

	runCtx, cancel := context.WithCancel(ctx)
	wctx := &inmemWorkflowContext{
		ctx:    runCtx,
		id:     req.ID,
		runID:  req.ID,
		logger: telemetry.NoopLogger{},
		eng:    e,
		sigs:   make(map[string]*inmemSignalChan),
	}
	h := &inmemHandle{done: make(chan struct{}), cancel: cancel, wctx: wctx}

	go func() {
		defer close(h.done)
		res, err := def.Handler(wctx, req.Input)
		h.result, h.err = res, err
	}()
	return h, nil
}

type inmemWorkflowContext struct {
	ctx    context.Context
	id     string
	runID  string
	logger telemetry.Logger
	eng    *InMemoryEngine

	sigMu sync.Mutex
	sigs  map[string]*inmemSignalChan
}

func (w *inmemWorkflowContext) Context() context.Context { return w.ctx }
func (w *inmemWorkflowContext) WorkflowID() string        { return w.id }
func (w *inmemWorkflowContext) RunID() string             { return w.runID }
func (w *inmemWorkflowContext) Logger() telemetry.Logger  { return w.logger }
func (w *inmemWorkflowContext) Metrics() telemetry.Metrics { return telemetry.NoopMetrics{} }
func (w *inmemWorkflowContext) Tracer() telemetry.Tracer  { return telemetry.NoopTracer{} }
func (w *inmemWorkflowContext) Now() time.Time            { return time.Now() }

func (w *inmemWorkflowContext) ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error {
	w.eng.mu.RLock()
	def, ok := w.eng.activities[req.Name]
	w.eng.mu.RUnlock()
	if !ok {
		return fmt.Errorf("engine: activity %q not registered", req.Name)
	}
	actx := &inmemActivityContext{ctx: ctx, logger: w.logger}
	res, err := def.Handler(actx, req.Input)
	assignResult(result, res)
	return err
}

func (w *inmemWorkflowContext) SignalChannel(name string) SignalChannel {
	w.sigMu.Lock()
	defer w.sigMu.Unlock()
	ch, ok := w.sigs[name]
	if !ok {
		ch = &inmemSignalChan{ch: make(chan any, 1)}
		w.sigs[name] = ch
	}
	return ch
}

type inmemActivityContext struct {
	ctx    context.Context
	logger telemetry.Logger
}

func (a *inmemActivityContext) Context() context.Context  { return a.ctx }
func (a *inmemActivityContext) Heartbeat(details any)      {}
func (a *inmemActivityContext) Logger() telemetry.Logger   { return a.logger }
func (a *inmemActivityContext) Metrics() telemetry.Metrics { return telemetry.NoopMetrics{} }
func (a *inmemActivityContext) Tracer() telemetry.Tracer   { return telemetry.NoopTracer{} }

type inmemSignalChan struct{ ch chan any }

func (s *inmemSignalChan) Receive(ctx context.Context, dest any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case v := <-s.ch:
		assignResult(dest, v)
		return nil
	}
}

func (s *inmemSignalChan) ReceiveAsync(dest any) bool {
	select {
	case v := <-s.ch:
		assignResult(dest, v)
		return true
	default:
		return false
	}
}

type inmemHandle struct {
	mu     sync.Mutex
	done   chan struct{}
	cancel context.CancelFunc
	result any
	err    error
	wctx   *inmemWorkflowContext
}

func (h *inmemHandle) Wait(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		assignResult(result, h.result)
		return h.err
	}
}

func (h *inmemHandle) Signal(ctx context.Context, name string, payload any) error {
	ch := h.wctx.SignalChannel(name).(*inmemSignalChan)
	select {
	case ch.ch <- payload:
		return nil
	default:
		return fmt.Errorf("engine: signal %q channel full", name)
	}
}

func (h *inmemHandle) Cancel(ctx context.Context) error {
	h.cancel()
	return nil
}

// assignResult copies src into *dst. Handlers conventionally return a
// pointer to their result struct (e.g. &RunAgentOutput{...}) while callers
// pass a pointer to the pointee type (var out T; ExecuteActivity(..., &out)),
// so a pointer src is unwrapped once before the direct/interface assignment
// checks.
func assignResult(dst, src any) {
	if dst == nil || src == nil {
		return
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return
	}
	sv := reflect.ValueOf(src)
	if !sv.IsValid() {
		return
	}
	if sv.Kind() == reflect.Ptr && !sv.IsNil() && sv.Type().Elem().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv.Elem())
		return
	}
	if sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return
	}
	if dv.Elem().Kind() == reflect.Interface && sv.Type().Implements(dv.Elem().Type()) {
		dv.Elem().Set(sv)
	}
}
