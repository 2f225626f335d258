package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RunConsumer reads one run's event log from a resumable position, emitting
// synthetic heartbeat and hard-timeout events when the underlying stream
// goes quiet (SPEC_FULL.md §4.5 Reader contract, scenario S6).
type RunConsumer struct {
	runID  string
	sink   RawSink
	cancel context.CancelFunc
	opts   ConsumerOptions
}

// NewRunConsumer opens a sink named "subscriber-<runID>" on the run's stream
// with Pulse's default sink options; opts.LastID and opts.BlockInterval are
// not applied to it. The returned RunConsumer must be closed with Close.
func NewRunConsumer(ctx context.Context, client Client, runID string, opts ConsumerOptions) (*RunConsumer, error) {
	if opts.BlockInterval <= 0 {
		opts = DefaultConsumerOptions()
	}
	str, err := client.Stream(streamName(runID))
	if err != nil {
		return nil, fmt.Errorf("open run stream: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	sink, err := str.NewSink(runCtx, "subscriber-"+runID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open sink: %w", err)
	}
	return &RunConsumer{runID: runID, sink: sink, cancel: cancel, opts: opts}, nil
}

// Events returns a channel of decoded (or synthetic) events. The channel
// closes when ctx is canceled, Close is called, a terminal event is
// forwarded, or the hard timeout fires. Every event is acknowledged as soon
// as it is decoded, just before it is handed to the caller.
func (c *RunConsumer) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)
	go c.run(ctx, out)
	return out
}

func (c *RunConsumer) run(ctx context.Context, out chan<- Event) {
	defer close(out)
	raw := c.sink.Subscribe()

	heartbeat := time.NewTicker(c.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	hardDeadline := time.NewTimer(c.opts.HardTimeout)
	defer hardDeadline.Stop()

	resetIdle := func() {
		heartbeat.Reset(c.opts.HeartbeatInterval)
		if !hardDeadline.Stop() {
			select {
			case <-hardDeadline.C:
			default:
			}
		}
		hardDeadline.Reset(c.opts.HardTimeout)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hardDeadline.C:
			emit(ctx, out, Event{Seq: SyntheticSeq, Type: EventError, TS: time.Now().UTC(),
				Data: mustJSON(ErrorEventData{Code: "hard_timeout", Message: "no activity within hard timeout"})})
			return
		case <-heartbeat.C:
			if !emit(ctx, out, Event{Seq: SyntheticSeq, Type: EventStatus, TS: time.Now().UTC(),
				Data: mustJSON(StatusEventData{Status: "heartbeat"})}) {
				return
			}
		case evt, ok := <-raw:
			if !ok {
				return
			}
			resetIdle()
			var env envelope
			if err := json.Unmarshal(evt.Payload, &env); err != nil {
				emit(ctx, out, Event{Seq: SyntheticSeq, Type: EventError, TS: time.Now().UTC(),
					Data: mustJSON(ErrorEventData{Code: "decode_error", Message: err.Error()})})
				return
			}
			if err := c.sink.Ack(ctx, evt); err != nil {
				emit(ctx, out, Event{Seq: SyntheticSeq, Type: EventError, TS: time.Now().UTC(),
					Data: mustJSON(ErrorEventData{Code: "ack_error", Message: err.Error()})})
				return
			}
			if !emit(ctx, out, Event{Seq: env.Seq, Type: env.Type, TS: env.TS, Data: env.Data}) {
				return
			}
			if env.Type.Terminal() {
				return
			}
		}
	}
}

// emit writes an event to out unless ctx is canceled first; it reports
// whether the send succeeded.
func emit(ctx context.Context, out chan<- Event, evt Event) bool {
	select {
	case out <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// Close stops consumption and releases the underlying sink.
func (c *RunConsumer) Close() {
	c.cancel()
	c.sink.Close(context.Background())
}
