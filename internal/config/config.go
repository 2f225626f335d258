// Package config loads the environment-driven settings named in
// SPEC_FULL.md §6 into a single Config struct, then exposes small per-package
// Options values assembled from it — following the teacher's convention
// (registry/cmd/registry/main.go's envOr/envIntOr/envDurationOr helpers) of
// explicit per-component Options rather than a global singleton threaded
// everywhere.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/northflow/agentcore/internal/stream"
)

// Config holds every environment-configurable setting relevant to the agent
// runtime core. Field names mirror the snake_case setting names in
// SPEC_FULL.md §6; defaults match the table exactly.
type Config struct {
	StreamTTL            time.Duration `yaml:"agent_stream_ttl"`
	StreamMaxLen         int           `yaml:"agent_stream_maxlen"`
	SSEHeartbeatInterval time.Duration `yaml:"agent_sse_heartbeat_interval"`
	SSEHardTimeout       time.Duration `yaml:"agent_sse_hard_timeout"`
	StuckRunThreshold    time.Duration `yaml:"agent_stuck_run_threshold"`
	DeltaBatchInterval   time.Duration `yaml:"agent_delta_batch_ms"`

	LLMModel     string `yaml:"llm_model"`
	LLMMaxTokens int    `yaml:"llm_max_tokens"`

	WebSearchEnabled  bool   `yaml:"web_search_enabled"`
	WebSearchProvider string `yaml:"web_search_provider"`
	WebSearchAPIKey   string `yaml:"web_search_api_key"`
	WebSearchTopK     int    `yaml:"web_search_topk"`
	WebCacheTTLHours  int    `yaml:"web_cache_ttl_hours"`

	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`

	TaskQueue        string        `yaml:"agent_task_queue"`
	HistoryLimit     int           `yaml:"agent_history_limit"`
	HeartbeatTimeout time.Duration `yaml:"agent_heartbeat_timeout"`
}

// UnmarshalYAML lets an override file spell durations the same way
// time.ParseDuration does ("90s", "10m") instead of yaml.v3's native
// integer-nanoseconds encoding of time.Duration.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		StreamTTL            string `yaml:"agent_stream_ttl"`
		StreamMaxLen         *int   `yaml:"agent_stream_maxlen"`
		SSEHeartbeatInterval string `yaml:"agent_sse_heartbeat_interval"`
		SSEHardTimeout       string `yaml:"agent_sse_hard_timeout"`
		StuckRunThreshold    string `yaml:"agent_stuck_run_threshold"`
		DeltaBatchInterval   string `yaml:"agent_delta_batch_ms"`

		LLMModel     *string `yaml:"llm_model"`
		LLMMaxTokens *int    `yaml:"llm_max_tokens"`

		WebSearchEnabled  *bool   `yaml:"web_search_enabled"`
		WebSearchProvider *string `yaml:"web_search_provider"`
		WebSearchAPIKey   *string `yaml:"web_search_api_key"`
		WebSearchTopK     *int    `yaml:"web_search_topk"`
		WebCacheTTLHours  *int    `yaml:"web_cache_ttl_hours"`

		RedisURL      *string `yaml:"redis_url"`
		RedisPassword *string `yaml:"redis_password"`
		MongoURI      *string `yaml:"mongo_uri"`
		MongoDatabase *string `yaml:"mongo_database"`

		TaskQueue        *string `yaml:"agent_task_queue"`
		HistoryLimit     *int    `yaml:"agent_history_limit"`
		HeartbeatTimeout string  `yaml:"agent_heartbeat_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if err := setDuration(&c.StreamTTL, raw.StreamTTL); err != nil {
		return fmt.Errorf("agent_stream_ttl: %w", err)
	}
	if err := setDuration(&c.SSEHeartbeatInterval, raw.SSEHeartbeatInterval); err != nil {
		return fmt.Errorf("agent_sse_heartbeat_interval: %w", err)
	}
	if err := setDuration(&c.SSEHardTimeout, raw.SSEHardTimeout); err != nil {
		return fmt.Errorf("agent_sse_hard_timeout: %w", err)
	}
	if err := setDuration(&c.StuckRunThreshold, raw.StuckRunThreshold); err != nil {
		return fmt.Errorf("agent_stuck_run_threshold: %w", err)
	}
	if err := setDuration(&c.DeltaBatchInterval, raw.DeltaBatchInterval); err != nil {
		return fmt.Errorf("agent_delta_batch_ms: %w", err)
	}
	if err := setDuration(&c.HeartbeatTimeout, raw.HeartbeatTimeout); err != nil {
		return fmt.Errorf("agent_heartbeat_timeout: %w", err)
	}

	if raw.StreamMaxLen != nil {
		c.StreamMaxLen = *raw.StreamMaxLen
	}
	if raw.LLMModel != nil {
		c.LLMModel = *raw.LLMModel
	}
	if raw.LLMMaxTokens != nil {
		c.LLMMaxTokens = *raw.LLMMaxTokens
	}
	if raw.WebSearchEnabled != nil {
		c.WebSearchEnabled = *raw.WebSearchEnabled
	}
	if raw.WebSearchProvider != nil {
		c.WebSearchProvider = *raw.WebSearchProvider
	}
	if raw.WebSearchAPIKey != nil {
		c.WebSearchAPIKey = *raw.WebSearchAPIKey
	}
	if raw.WebSearchTopK != nil {
		c.WebSearchTopK = *raw.WebSearchTopK
	}
	if raw.WebCacheTTLHours != nil {
		c.WebCacheTTLHours = *raw.WebCacheTTLHours
	}
	if raw.RedisURL != nil {
		c.RedisURL = *raw.RedisURL
	}
	if raw.RedisPassword != nil {
		c.RedisPassword = *raw.RedisPassword
	}
	if raw.MongoURI != nil {
		c.MongoURI = *raw.MongoURI
	}
	if raw.MongoDatabase != nil {
		c.MongoDatabase = *raw.MongoDatabase
	}
	if raw.TaskQueue != nil {
		c.TaskQueue = *raw.TaskQueue
	}
	if raw.HistoryLimit != nil {
		c.HistoryLimit = *raw.HistoryLimit
	}
	return nil
}

func setDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Defaults returns the settings table's defaults verbatim (SPEC_FULL.md §6),
// before any file or environment override is applied.
func Defaults() Config {
	return Config{
		StreamTTL:            600 * time.Second,
		StreamMaxLen:         2000,
		SSEHeartbeatInterval: 15 * time.Second,
		SSEHardTimeout:       180 * time.Second,
		StuckRunThreshold:    600 * time.Second,
		DeltaBatchInterval:   300 * time.Millisecond,

		LLMModel:     "",
		LLMMaxTokens: 0,

		WebSearchEnabled:  false,
		WebSearchProvider: "",
		WebSearchAPIKey:   "",
		WebSearchTopK:     5,
		WebCacheTTLHours:  24,

		RedisURL:      "localhost:6379",
		RedisPassword: "",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "agentcore",

		TaskQueue:        "agent-runs",
		HistoryLimit:     10,
		HeartbeatTimeout: 30 * time.Second,
	}
}

// Load assembles a Config from defaults, an optional YAML override file
// (path from the AGENT_CONFIG_FILE environment variable, silently skipped
// when unset or missing), and finally environment variables, in that
// precedence order — env always wins, matching the teacher's envOr idiom of
// "environment variable overrides everything".
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("AGENT_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.StreamTTL = envDurationOr("AGENT_STREAM_TTL", cfg.StreamTTL)
	cfg.StreamMaxLen = envIntOr("AGENT_STREAM_MAXLEN", cfg.StreamMaxLen)
	cfg.SSEHeartbeatInterval = envDurationOr("AGENT_SSE_HEARTBEAT_INTERVAL", cfg.SSEHeartbeatInterval)
	cfg.SSEHardTimeout = envDurationOr("AGENT_SSE_HARD_TIMEOUT", cfg.SSEHardTimeout)
	cfg.StuckRunThreshold = envDurationOr("AGENT_STUCK_RUN_THRESHOLD", cfg.StuckRunThreshold)
	cfg.DeltaBatchInterval = envDurationOr("AGENT_DELTA_BATCH_MS", cfg.DeltaBatchInterval)

	cfg.LLMModel = envOr("LLM_MODEL", cfg.LLMModel)
	cfg.LLMMaxTokens = envIntOr("LLM_MAX_TOKENS", cfg.LLMMaxTokens)

	cfg.WebSearchEnabled = envBoolOr("WEB_SEARCH_ENABLED", cfg.WebSearchEnabled)
	cfg.WebSearchProvider = envOr("WEB_SEARCH_PROVIDER", cfg.WebSearchProvider)
	cfg.WebSearchAPIKey = envOr("WEB_SEARCH_API_KEY", cfg.WebSearchAPIKey)
	cfg.WebSearchTopK = envIntOr("WEB_SEARCH_TOPK", cfg.WebSearchTopK)
	cfg.WebCacheTTLHours = envIntOr("WEB_CACHE_TTL_HOURS", cfg.WebCacheTTLHours)

	cfg.RedisURL = envOr("REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = envOr("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.MongoURI = envOr("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = envOr("MONGO_DATABASE", cfg.MongoDatabase)

	cfg.TaskQueue = envOr("AGENT_TASK_QUEUE", cfg.TaskQueue)
	cfg.HistoryLimit = envIntOr("AGENT_HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.HeartbeatTimeout = envDurationOr("AGENT_HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.StreamMaxLen <= 0 {
		return fmt.Errorf("config: agent_stream_maxlen must be positive, got %d", c.StreamMaxLen)
	}
	if c.WebSearchEnabled && c.WebSearchProvider == "" {
		return fmt.Errorf("config: web_search_provider is required when web_search_enabled is true")
	}
	return nil
}

// ConsumerOptions builds the stream.ConsumerOptions this config implies.
func (c Config) ConsumerOptions() stream.ConsumerOptions {
	return stream.ConsumerOptions{
		LastID:            "0-0",
		BlockInterval:     500 * time.Millisecond,
		HeartbeatInterval: c.SSEHeartbeatInterval,
		HardTimeout:       c.SSEHardTimeout,
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBoolOr(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
