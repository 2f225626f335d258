package run

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is a Store backed by a MongoDB collection. It mirrors the
// teacher's features/run/mongo persistence idiom: one document per run,
// status transitions applied via FindOneAndUpdate with a status filter so the
// update itself enforces the state machine rather than relying on a
// read-modify-write race in application code.
type MongoStore struct {
	runs   *mongo.Collection
	audits *mongo.Collection
	traces *mongo.Collection
}

// NewMongoStore constructs a MongoStore over the given database, using the
// conventional "runs", "audit_logs", and "llm_traces" collection names.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		runs:   db.Collection("runs"),
		audits: db.Collection("audit_logs"),
		traces: db.Collection("llm_traces"),
	}
}

type runDoc struct {
	ID                    uuid.UUID      `bson:"_id"`
	TenantID              uuid.UUID      `bson:"tenant_id"`
	AssistantID           uuid.UUID      `bson:"assistant_id"`
	ConversationID        uuid.UUID      `bson:"conversation_id"`
	Profile               Profile        `bson:"profile"`
	Status                Status         `bson:"status"`
	InputText             string         `bson:"input_text"`
	OutputText            string         `bson:"output_text,omitempty"`
	TokensInput           int            `bson:"tokens_input"`
	TokensOutput          int            `bson:"tokens_output"`
	ToolRounds            int            `bson:"tool_rounds"`
	BudgetTokens          int            `bson:"budget_tokens"`
	BudgetTokensRemaining int            `bson:"budget_tokens_remaining"`
	ErrorCode             string         `bson:"error_code,omitempty"`
	ErrorMessage          string         `bson:"error_message,omitempty"`
	Metadata              map[string]any `bson:"metadata,omitempty"`
	StartedAt             *time.Time     `bson:"started_at,omitempty"`
	CompletedAt           *time.Time     `bson:"completed_at,omitempty"`
	CreatedAt             time.Time      `bson:"created_at"`
}

func (d *runDoc) record() *Record {
	return &Record{
		ID: d.ID, TenantID: d.TenantID, AssistantID: d.AssistantID,
		ConversationID: d.ConversationID, Profile: d.Profile, Status: d.Status,
		InputText: d.InputText, OutputText: d.OutputText,
		TokensInput: d.TokensInput, TokensOutput: d.TokensOutput,
		ToolRounds: d.ToolRounds, BudgetTokens: d.BudgetTokens,
		BudgetTokensRemaining: d.BudgetTokensRemaining,
		ErrorCode:             d.ErrorCode, ErrorMessage: d.ErrorMessage,
		Metadata: d.Metadata, StartedAt: d.StartedAt, CompletedAt: d.CompletedAt,
		CreatedAt: d.CreatedAt,
	}
}

func (m *MongoStore) CreateRun(ctx context.Context, in CreateInput) (*Record, error) {
	doc := runDoc{
		ID: uuid.New(), TenantID: in.TenantID, AssistantID: in.AssistantID,
		ConversationID: in.ConversationID, Profile: in.Profile, Status: StatusPending,
		InputText: in.InputText, BudgetTokens: in.BudgetTokens,
		BudgetTokensRemaining: in.BudgetTokens, Metadata: in.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := m.runs.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return doc.record(), nil
}

func (m *MongoStore) StartRun(ctx context.Context, runID uuid.UUID) error {
	now := time.Now().UTC()
	res, err := m.runs.UpdateOne(ctx,
		bson.M{"_id": runID, "status": StatusPending},
		bson.M{"$set": bson.M{"status": StatusRunning, "started_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := m.GetRun(ctx, runID, nil); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

func (m *MongoStore) CompleteRun(ctx context.Context, runID uuid.UUID, in CompleteInput) error {
	now := time.Now().UTC()
	_, err := m.runs.UpdateOne(ctx,
		bson.M{"_id": runID, "status": StatusRunning},
		bson.M{"$set": bson.M{
			"status":                  StatusCompleted,
			"output_text":             in.OutputText,
			"tokens_input":            in.TokensInput,
			"tokens_output":           in.TokensOutput,
			"tool_rounds":             in.ToolRounds,
			"budget_tokens_remaining": in.BudgetTokensRemaining,
			"completed_at":            now,
		}},
	)
	// Matching zero documents means the run is already terminal (completed by
	// a concurrent caller, or failed); CompleteRun is not meant to override a
	// terminal status, so this is treated as success, not an error.
	return err
}

func (m *MongoStore) FailRun(ctx context.Context, runID uuid.UUID, errorCode, errorMessage string, status Status) error {
	now := time.Now().UTC()
	_, err := m.runs.UpdateOne(ctx,
		bson.M{"_id": runID, "status": bson.M{"$nin": []Status{
			StatusCompleted, StatusFailed, StatusAborted, StatusTimeout,
		}}},
		bson.M{"$set": bson.M{
			"status":        status,
			"error_code":    errorCode,
			"error_message": errorMessage,
			"completed_at":  now,
		}},
	)
	return err
}

func (m *MongoStore) GetRun(ctx context.Context, runID uuid.UUID, tenantID *uuid.UUID) (*Record, error) {
	filter := bson.M{"_id": runID}
	if tenantID != nil {
		filter["tenant_id"] = *tenantID
	}
	var doc runDoc
	if err := m.runs.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.record(), nil
}

func (m *MongoStore) ListRuns(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]*Record, error) {
	q := bson.M{"tenant_id": tenantID}
	if filter.ConversationID != nil {
		q["conversation_id"] = *filter.ConversationID
	}
	if filter.Status != nil {
		q["status"] = *filter.Status
	}
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := m.runs.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*Record
	for cur.Next(ctx) {
		var doc runDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.record())
	}
	return out, cur.Err()
}

func (m *MongoStore) FindStuckRuns(ctx context.Context, runningSinceBefore time.Time) ([]*Record, error) {
	cur, err := m.runs.Find(ctx, bson.M{
		"status":     StatusRunning,
		"started_at": bson.M{"$lt": runningSinceBefore},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*Record
	for cur.Next(ctx) {
		var doc runDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.record())
	}
	return out, cur.Err()
}

func (m *MongoStore) LogAudit(ctx context.Context, entry AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	// Audit writes never block the lifecycle: failures are returned to the
	// caller to log, not wrapped in a panic or retried here.
	_, err := m.audits.InsertOne(ctx, entry)
	return err
}

func (m *MongoStore) RecordLLMTrace(ctx context.Context, trace LLMTrace) error {
	if trace.ID == uuid.Nil {
		trace.ID = uuid.New()
	}
	trace.TotalTokens = trace.PromptTokens + trace.CompletionTokens
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = time.Now().UTC()
	}
	_, err := m.traces.InsertOne(ctx, trace)
	return err
}
