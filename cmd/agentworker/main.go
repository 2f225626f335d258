// Command agentworker runs the agent run worker: it registers the
// run_agent_workflow/run_agent Engine definitions, starts the stuck-run
// watchdog, and blocks until signaled to shut down.
//
// # Configuration
//
// Environment variables (see internal/config for the full table and
// defaults):
//
//	AGENT_CONFIG_FILE            - optional YAML override file
//	REDIS_URL / REDIS_PASSWORD   - event stream backend
//	MONGO_URI / MONGO_DATABASE   - run/runlog/session storage
//	LLM_PROVIDER                 - "anthropic" (default), "openai", or "bedrock"
//	TEMPORAL_ADDRESS             - when set, runs against a real Temporal
//	                                cluster instead of the in-memory engine
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	temporalclient "go.temporal.io/sdk/client"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/northflow/agentcore/internal/config"
	"github.com/northflow/agentcore/internal/delegate"
	"github.com/northflow/agentcore/internal/engine"
	"github.com/northflow/agentcore/internal/model"
	"github.com/northflow/agentcore/internal/run"
	"github.com/northflow/agentcore/internal/runlog"
	"github.com/northflow/agentcore/internal/stream"
	"github.com/northflow/agentcore/internal/telemetry"
	"github.com/northflow/agentcore/internal/tools"
	"github.com/northflow/agentcore/internal/worker"
)

func main() {
	if err := run_(); err != nil {
		log.Fatal(err)
	}
}

// run_ avoids shadowing the internal/run package name within this file.
func run_() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	mongoClient, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Printf("disconnect mongo: %v", err)
		}
	}()
	db := mongoClient.Database(cfg.MongoDatabase)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	streamClient, err := stream.NewClient(stream.ClientOptions{
		Redis:        redisClient,
		StreamMaxLen: cfg.StreamMaxLen,
	})
	if err != nil {
		return fmt.Errorf("create stream client: %w", err)
	}
	defer func() {
		if err := streamClient.Close(ctx); err != nil {
			log.Printf("close stream client: %v", err)
		}
	}()

	runStore := run.NewMongoStore(db)
	runLogStore := runlog.NewMongoStore(db)
	toolRegistry := tools.NewRegistry()
	assistants := newMongoAssistantLookup(db)

	llmClient, err := newModelClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}

	// Document search, web search, calendar, contacts, and the per-provider
	// integrations are owned by the wider platform (SPEC_FULL.md §1 "Out of
	// scope"); only the delegation handler has a real backing implementation
	// here, since it only needs collaborators this core already owns.
	if err := tools.RegisterBuiltins(toolRegistry, tools.BuiltinDeps{
		Delegator: delegate.New(assistants, nil, llmClient),
	}); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}

	eng, err := newEngine(cfg, logger, metrics, tracer)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	rt, err := worker.New(worker.Options{
		Engine:     eng,
		Runs:       runStore,
		RunLog:     runLogStore,
		Tools:      toolRegistry,
		Model:      llmClient,
		Assistants: assistants,
		Messages:   noopMessageStore{},
		Publisher: func(ctx context.Context, runID string) (stream.Publisher, error) {
			pub, err := stream.NewRunPublisher(ctx, streamClient, runID)
			if err != nil {
				return nil, err
			}
			return pub, nil
		},
		TaskQueue:          cfg.TaskQueue,
		StreamTTL:          cfg.StreamTTL,
		StreamMaxLen:       cfg.StreamMaxLen,
		HistoryLimit:       cfg.HistoryLimit,
		StuckRunThreshold:  cfg.StuckRunThreshold,
		HeartbeatTimeout:   cfg.HeartbeatTimeout,
		DeltaBatchInterval: cfg.DeltaBatchInterval,
		Logger:             logger,
		Metrics:            metrics,
		Tracer:             tracer,
	})
	if err != nil {
		return fmt.Errorf("create worker runtime: %w", err)
	}

	if err := rt.Register(ctx); err != nil {
		return fmt.Errorf("register workflow/activity: %w", err)
	}

	stopWatchdog := rt.StartWatchdog(ctx, cfg.StuckRunThreshold/10)
	defer stopWatchdog()

	logger.Info(ctx, "agentworker started", "task_queue", cfg.TaskQueue)
	<-ctx.Done()
	logger.Info(ctx, "agentworker shutting down")
	return nil
}

// newModelClient wires the LLM adapter named by LLM_PROVIDER (default
// "anthropic") using the model named by cfg.LLMModel.
func newModelClient(ctx context.Context, cfg config.Config) (model.Client, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "anthropic"
	}
	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return model.NewAnthropicClientFromAPIKey(apiKey, cfg.LLMModel)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		return model.NewOpenAIClientFromAPIKey(apiKey, cfg.LLMModel)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return model.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), model.BedrockOptions{
			DefaultModel: cfg.LLMModel,
			MaxTokens:    cfg.LLMMaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", provider)
	}
}

// newEngine returns a TemporalEngine when TEMPORAL_ADDRESS is configured, or
// the in-memory engine otherwise (suitable for local development only — a
// process crash loses every in-flight run).
func newEngine(cfg config.Config, logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) (engine.Engine, error) {
	addr := os.Getenv("TEMPORAL_ADDRESS")
	if addr == "" {
		return engine.NewInMemoryEngine(), nil
	}
	temporalOpts := temporalclient.Options{HostPort: addr}
	if ns := os.Getenv("TEMPORAL_NAMESPACE"); ns != "" {
		temporalOpts.Namespace = ns
	}
	return engine.NewTemporalEngine(engine.TemporalOptions{
		ClientOptions: &temporalOpts,
		WorkerOptions: engine.WorkerOptions{TaskQueue: cfg.TaskQueue},
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	})
}

// noopMessageStore is a placeholder MessageStore for local/dev runs where no
// conversation-message backend is wired yet; production deployments inject a
// real implementation owned by the conversation service.
type noopMessageStore struct{}

func (noopMessageStore) AppendAssistantMessage(ctx context.Context, msg worker.AssistantMessage) error {
	return nil
}
