package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// envelope is the wire format appended to the Pulse stream. seq is assigned
// by the publisher and is distinct from the Redis-assigned entry ID Add
// returns: seq is what consumers dedupe and order on, since the entry ID's
// format is a Redis implementation detail the fabric should not leak
// (SPEC_FULL.md §4.5, §9).
type envelope struct {
	Seq  int64           `json:"seq"`
	Type EventType       `json:"type"`
	TS   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// RunPublisher publishes events onto one run's Pulse stream, assigning a
// monotonic seq and refreshing the stream TTL on every 10th append and on a
// terminal event, so a run that keeps emitting keeps its log alive.
type RunPublisher struct {
	runID  string
	stream RawStream
	ttl    time.Duration
	seq    int64
	appends int
}

// NewRunPublisher constructs a publisher bound to a single run's stream.
func NewRunPublisher(ctx context.Context, client Client, runID string) (*RunPublisher, error) {
	str, err := client.Stream(streamName(runID))
	if err != nil {
		return nil, fmt.Errorf("open run stream: %w", err)
	}
	return &RunPublisher{runID: runID, stream: str}, nil
}

func streamName(runID string) string {
	return "run/" + runID
}

// Setup establishes the initial TTL for the run's stream. maxlen is accepted
// for interface symmetry with Publisher but trimming is configured at the
// client level (ClientOptions.StreamMaxLen), mirroring Pulse's own per-client
// trim knob rather than a per-stream one.
func (p *RunPublisher) Setup(ttl time.Duration, maxlen int) error {
	p.ttl = ttl
	return p.stream.Expire(context.Background(), ttl)
}

func (p *RunPublisher) Status(status string) error {
	return p.append(EventStatus, StatusEventData{Status: status})
}

func (p *RunPublisher) Delta(text string) error {
	return p.append(EventDelta, text)
}

func (p *RunPublisher) Tool(tool string, phase ToolPhase, detail string) error {
	return p.append(EventTool, ToolEventData{Tool: tool, Status: phase, Detail: detail})
}

func (p *RunPublisher) Block(payload map[string]any) error {
	return p.append(EventBlock, payload)
}

func (p *RunPublisher) Citations(citations []any) error {
	return p.append(EventCitations, citations)
}

func (p *RunPublisher) Plan(plan any) error {
	return p.append(EventPlan, plan)
}

func (p *RunPublisher) Done(tokensIn, tokensOut, toolRounds, blocksCount, citationsCount int) error {
	return p.append(EventDone, DoneEventData{
		TokensInput:    tokensIn,
		TokensOutput:   tokensOut,
		ToolRounds:     toolRounds,
		BlocksCount:    blocksCount,
		CitationsCount: citationsCount,
	})
}

func (p *RunPublisher) Error(code, message string) error {
	return p.append(EventError, ErrorEventData{Code: code, Message: message})
}

func (p *RunPublisher) Close() error {
	return nil
}

// append assigns the next seq, marshals the envelope, and writes it to the
// stream. Every 10th append, and unconditionally on a terminal event, the
// TTL is refreshed (SPEC_FULL.md §4.5): a chatty run keeps its log alive on
// its own activity, while a quiet-but-not-yet-terminal run still expires per
// the original TTL if nothing gets emitted.
func (p *RunPublisher) append(t EventType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", t, err)
	}
	seq := atomic.AddInt64(&p.seq, 1)
	env := envelope{Seq: seq, Type: t, TS: time.Now().UTC(), Data: raw}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	ctx := context.Background()
	if _, err := p.stream.Add(ctx, string(t), payload); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	p.appends++
	if p.ttl > 0 && (p.appends%10 == 0 || t.Terminal()) {
		if err := p.stream.Expire(ctx, p.ttl); err != nil {
			return fmt.Errorf("refresh ttl: %w", err)
		}
	}
	return nil
}
