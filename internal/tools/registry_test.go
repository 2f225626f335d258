package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_GetAllowedTools_ProfileGating(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{Name: "search_web", Category: CategoryRetrieval, MinProfile: "reactive"}, nil, nil))
	require.NoError(t, r.Register(Definition{Name: "delegate_to_assistant", Category: CategoryDelegation, MinProfile: "balanced"}, nil, nil))

	reactiveTools := r.GetAllowedTools(Filter{Profile: "reactive"})
	names := toolNames(reactiveTools)
	require.Contains(t, names, "search_web")
	require.NotContains(t, names, "delegate_to_assistant")

	balancedTools := r.GetAllowedTools(Filter{Profile: "balanced"})
	require.Contains(t, toolNames(balancedTools), "delegate_to_assistant")
}

func TestRegistry_GetAllowedTools_Blocklist(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{Name: "search_web", Category: CategoryRetrieval}, nil, nil))
	got := r.GetAllowedTools(Filter{Profile: "pro", BlockedTools: []string{"search_web"}})
	require.NotContains(t, toolNames(got), "search_web")
}

func TestRegistry_GetAllowedTools_IntegrationRequiresProvider(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "send_slack_message", Category: CategoryIntegration, Provider: "slack",
	}, nil, nil))

	none := r.GetAllowedTools(Filter{Profile: "exec"})
	require.NotContains(t, toolNames(none), "send_slack_message")

	withProvider := r.GetAllowedTools(Filter{Profile: "exec", Providers: []string{"slack"}})
	require.Contains(t, toolNames(withProvider), "send_slack_message")
}

func TestRegistry_IntegrationWithoutProviderRejected(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Definition{Name: "bad", Category: CategoryIntegration}, nil, nil)
	require.Error(t, err)
}

func toolNames(defs []Definition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
