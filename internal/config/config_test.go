package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"AGENT_CONFIG_FILE", "AGENT_STREAM_TTL", "AGENT_STREAM_MAXLEN",
		"AGENT_SSE_HEARTBEAT_INTERVAL", "AGENT_SSE_HARD_TIMEOUT",
		"AGENT_STUCK_RUN_THRESHOLD", "AGENT_DELTA_BATCH_MS",
		"LLM_MODEL", "LLM_MAX_TOKENS",
		"WEB_SEARCH_ENABLED", "WEB_SEARCH_PROVIDER", "WEB_SEARCH_API_KEY",
		"WEB_SEARCH_TOPK", "WEB_CACHE_TTL_HOURS",
		"REDIS_URL", "REDIS_PASSWORD", "MONGO_URI", "MONGO_DATABASE",
		"AGENT_TASK_QUEUE", "AGENT_HISTORY_LIMIT", "AGENT_HEARTBEAT_TIMEOUT",
	}
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_AppliesSpecDefaultsWithNoEnvironment(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 600*time.Second, cfg.StreamTTL)
	require.Equal(t, 2000, cfg.StreamMaxLen)
	require.Equal(t, 15*time.Second, cfg.SSEHeartbeatInterval)
	require.Equal(t, 180*time.Second, cfg.SSEHardTimeout)
	require.Equal(t, 600*time.Second, cfg.StuckRunThreshold)
	require.Equal(t, 300*time.Millisecond, cfg.DeltaBatchInterval)
	require.Equal(t, "agent-runs", cfg.TaskQueue)
	require.Equal(t, 10, cfg.HistoryLimit)
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("AGENT_STREAM_MAXLEN", "500"))
	require.NoError(t, os.Setenv("AGENT_STUCK_RUN_THRESHOLD", "90s"))
	require.NoError(t, os.Setenv("WEB_SEARCH_ENABLED", "true"))
	require.NoError(t, os.Setenv("WEB_SEARCH_PROVIDER", "bing"))
	defer clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 500, cfg.StreamMaxLen)
	require.Equal(t, 90*time.Second, cfg.StuckRunThreshold)
	require.True(t, cfg.WebSearchEnabled)
	require.Equal(t, "bing", cfg.WebSearchProvider)
}

func TestLoad_YAMLFileIsOverriddenByEnvironment(t *testing.T) {
	clearEnv(t)
	f, err := os.CreateTemp(t.TempDir(), "agentcore-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("agent_task_queue: from-file\nagent_history_limit: 25\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, os.Setenv("AGENT_CONFIG_FILE", f.Name()))
	require.NoError(t, os.Setenv("AGENT_HISTORY_LIMIT", "99"))
	defer clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.TaskQueue)
	require.Equal(t, 99, cfg.HistoryLimit)
}

func TestLoad_RejectsWebSearchEnabledWithoutProvider(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("WEB_SEARCH_ENABLED", "true"))
	defer clearEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveStreamMaxLen(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("AGENT_STREAM_MAXLEN", "0"))
	defer clearEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestConsumerOptions_MirrorsConfiguredTimeouts(t *testing.T) {
	cfg := Defaults()
	cfg.SSEHeartbeatInterval = 5 * time.Second
	cfg.SSEHardTimeout = 45 * time.Second

	opts := cfg.ConsumerOptions()
	require.Equal(t, 5*time.Second, opts.HeartbeatInterval)
	require.Equal(t, 45*time.Second, opts.HardTimeout)
}
