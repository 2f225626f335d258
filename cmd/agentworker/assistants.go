package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/northflow/agentcore/internal/run"
	"github.com/northflow/agentcore/internal/worker"
)

// mongoAssistantLookup implements worker.AssistantLookup by reading the
// assistant configuration collection directly. The Assistant entity is
// owned by the wider platform, not this core (SPEC_FULL.md marks it
// external/read-only); this is a thin, read-only binding so the binary
// doesn't block on an external service existing yet, following the same
// one-document-per-entity shape as run.MongoStore.
type mongoAssistantLookup struct {
	assistants *mongo.Collection
}

func newMongoAssistantLookup(db *mongo.Database) *mongoAssistantLookup {
	return &mongoAssistantLookup{assistants: db.Collection("assistants")}
}

type assistantDoc struct {
	ID            uuid.UUID   `bson:"_id"`
	TenantID      uuid.UUID   `bson:"tenant_id"`
	Name          string      `bson:"name"`
	SystemPrompt  string      `bson:"system_prompt"`
	Profile       run.Profile `bson:"profile"`
	CollectionIDs []uuid.UUID `bson:"collection_ids,omitempty"`
	Integrations  []string    `bson:"integrations,omitempty"`
}

func (l *mongoAssistantLookup) GetAssistant(ctx context.Context, tenantID, assistantID uuid.UUID) (*worker.Assistant, error) {
	var doc assistantDoc
	err := l.assistants.FindOne(ctx, bson.M{"_id": assistantID, "tenant_id": tenantID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, worker.ErrAssistantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load assistant %s: %w", assistantID, err)
	}
	return &worker.Assistant{
		ID:            doc.ID,
		TenantID:      doc.TenantID,
		Name:          doc.Name,
		SystemPrompt:  doc.SystemPrompt,
		Profile:       doc.Profile,
		CollectionIDs: doc.CollectionIDs,
		Integrations:  doc.Integrations,
	}, nil
}
