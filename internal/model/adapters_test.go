package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_ResolveModelID(t *testing.T) {
	c := &AnthropicClient{defaultModel: "claude-default", highModel: "claude-opus", smallModel: "claude-haiku"}
	require.Equal(t, "claude-default", c.resolveModelID(&Request{}))
	require.Equal(t, "claude-opus", c.resolveModelID(&Request{ModelClass: ModelClassHighReasoning}))
	require.Equal(t, "claude-haiku", c.resolveModelID(&Request{ModelClass: ModelClassSmall}))
	require.Equal(t, "claude-override", c.resolveModelID(&Request{Model: "claude-override", ModelClass: ModelClassSmall}))
}

func TestAnthropicClient_PrepareRequestRejectsEmptyMessages(t *testing.T) {
	c := &AnthropicClient{defaultModel: "claude-default", maxTok: 1024}
	_, err := c.prepareRequest(&Request{})
	require.Error(t, err)
}

func TestAnthropicClient_PrepareRequestRejectsMissingMaxTokens(t *testing.T) {
	c := &AnthropicClient{defaultModel: "claude-default"}
	_, err := c.prepareRequest(req("hi"))
	require.ErrorContains(t, err, "max_tokens")
}

func TestBedrockClient_ResolveModelID(t *testing.T) {
	c := &BedrockClient{defaultModel: "nova-default", highModel: "nova-pro", smallModel: "nova-micro"}
	require.Equal(t, "nova-default", c.resolveModelID(&Request{}))
	require.Equal(t, "nova-pro", c.resolveModelID(&Request{ModelClass: ModelClassHighReasoning}))
}
