package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	completeErr error
	calls       int
}

func (f *fakeClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &Response{}, nil
}

func (f *fakeClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	return nil, ErrStreamingUnsupported
}

func req(text string) *Request {
	return &Request{Messages: []*Message{{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}}}
}

func TestAdaptiveRateLimiter_BacksOffOnRateLimitError(t *testing.T) {
	l := newAdaptiveRateLimiter(1000, 1000)
	inner := &fakeClient{completeErr: ErrRateLimited}
	client := l.Middleware()(inner)

	_, err := client.Complete(context.Background(), req("hello"))
	require.ErrorIs(t, err, ErrRateLimited)
	require.Less(t, l.currentTPM, 1000.0)
}

func TestAdaptiveRateLimiter_ProbesUpOnSuccess(t *testing.T) {
	l := newAdaptiveRateLimiter(1000, 2000)
	l.currentTPM = 500
	l.limiter.SetLimit(l.limiter.Limit())
	inner := &fakeClient{}
	client := l.Middleware()(inner)

	_, err := client.Complete(context.Background(), req("hello"))
	require.NoError(t, err)
	require.Greater(t, l.currentTPM, 500.0)
}

func TestAdaptiveRateLimiter_NeverExceedsMax(t *testing.T) {
	l := newAdaptiveRateLimiter(1000, 1000)
	inner := &fakeClient{}
	client := l.Middleware()(inner)
	for i := 0; i < 50; i++ {
		_, err := client.Complete(context.Background(), req("hello"))
		require.NoError(t, err)
	}
	require.LessOrEqual(t, l.currentTPM, 1000.0)
}

func TestEstimateTokens_EmptyMessageGetsFloor(t *testing.T) {
	require.Equal(t, 500, estimateTokens(&Request{}))
}

func TestEstimateTokens_ScalesWithContentLength(t *testing.T) {
	short := estimateTokens(req("hi"))
	long := estimateTokens(req(string(make([]byte, 3000))))
	require.Greater(t, long, short)
}

func TestMiddleware_NilClientReturnsNil(t *testing.T) {
	l := newAdaptiveRateLimiter(1000, 1000)
	require.Nil(t, l.Middleware()(nil))
}
