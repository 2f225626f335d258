package toolerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToolError_Chain(t *testing.T) {
	root := errors.New("dial tcp: timeout")
	wrapped := NewWithCause("search_documents failed", root)

	require.Equal(t, "search_documents failed", wrapped.Error())
	var te *ToolError
	require.ErrorAs(t, wrapped.Cause, &te)
	require.Equal(t, "dial tcp: timeout", te.Error())
}

func TestToolError_TimedOutMessage(t *testing.T) {
	require.Equal(t, "Tool timed out after 1s", TimedOut(1).Error())
}

func TestToolError_UnknownMessage(t *testing.T) {
	require.Equal(t, "Unknown tool: frobnicate", Unknown("frobnicate").Error())
}

func TestToolError_NilSafe(t *testing.T) {
	var e *ToolError
	require.Equal(t, "", e.Error())
	require.Nil(t, e.Unwrap())
}

func TestFromError_PreservesExistingToolError(t *testing.T) {
	original := New("already structured")
	require.Same(t, original, FromError(original))
}
