// Package stream (this file) provides a thin wrapper around goa.design/pulse
// streams, adapted from the teacher's features/stream/pulse/clients/pulse
// client: callers build a Redis client, pass it to New, and receive a
// typed interface restricted to what Publisher and Consumer need.
//
// Pulse itself has no notion of the publisher-assigned seq or the TTL
// refresh policy SPEC_FULL.md §4.5 requires; client.go adds an Expire
// passthrough straight to Redis since Pulse stores each stream under a key
// equal to its name.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// ClientOptions configures the Pulse client.
type ClientOptions struct {
	// Redis is the connection used to back Pulse streams. Required.
	Redis *redis.Client
	// StreamMaxLen bounds the number of entries kept per stream (the
	// approximate trim SPEC_FULL.md §4.5 names). Zero uses Pulse defaults.
	StreamMaxLen int
	// OperationTimeout bounds individual Add/Expire calls. Zero means none.
	OperationTimeout time.Duration
}

// Client exposes the subset of Pulse operations the event stream fabric
// needs.
type Client interface {
	Stream(name string, opts ...streamopts.Stream) (RawStream, error)
	Close(ctx context.Context) error
}

// RawStream is a single run's Pulse-backed event log.
type RawStream interface {
	Add(ctx context.Context, event string, payload []byte) (string, error)
	Expire(ctx context.Context, ttl time.Duration) error
	NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (RawSink, error)
	Destroy(ctx context.Context) error
}

// RawSink is a consumer group on a RawStream.
type RawSink interface {
	Subscribe() <-chan *streaming.Event
	Ack(context.Context, *streaming.Event) error
	Close(context.Context)
}

type client struct {
	redis   *redis.Client
	maxLen  int
	timeout time.Duration
}

// NewClient constructs a Pulse client backed by the provided Redis
// connection.
func NewClient(opts ClientOptions) (Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	return &client{redis: opts.Redis, maxLen: opts.StreamMaxLen, timeout: opts.OperationTimeout}, nil
}

func (c *client) Stream(name string, opts ...streamopts.Stream) (RawStream, error) {
	if name == "" {
		return nil, errors.New("stream name is required")
	}
	var streamOptions []streamopts.Stream
	if c.maxLen > 0 {
		streamOptions = append(streamOptions, streamopts.WithStreamMaxLen(c.maxLen))
	}
	streamOptions = append(streamOptions, opts...)
	str, err := streaming.NewStream(name, c.redis, streamOptions...)
	if err != nil {
		return nil, fmt.Errorf("create pulse stream: %w", err)
	}
	return &handle{name: name, stream: str, redis: c.redis, timeout: c.timeout}, nil
}

func (c *client) Close(ctx context.Context) error { return nil }

type handle struct {
	name    string
	stream  *streaming.Stream
	redis   *redis.Client
	timeout time.Duration
}

func (h *handle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.timeout)
}

func (h *handle) Add(ctx context.Context, event string, payload []byte) (string, error) {
	if event == "" {
		return "", errors.New("event name is required")
	}
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	id, err := h.stream.Add(ctx, event, payload)
	if err != nil {
		return "", fmt.Errorf("pulse add: %w", err)
	}
	return id, nil
}

func (h *handle) Expire(ctx context.Context, ttl time.Duration) error {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	return h.redis.Expire(ctx, h.name, ttl).Err()
}

func (h *handle) NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (RawSink, error) {
	sink, err := h.stream.NewSink(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return &sinkAdapter{Sink: sink}, nil
}

func (h *handle) Destroy(ctx context.Context) error {
	return h.stream.Destroy(ctx)
}

type sinkAdapter struct {
	*streaming.Sink
}

func (s sinkAdapter) Close(ctx context.Context) {
	s.Sink.Close(ctx)
}
