package session

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is a Store backed by MongoDB, following the same per-document,
// filtered-update idiom as internal/run.MongoStore: run metadata is upserted
// with UpdateOne and EndSession uses a status-filtered FindOneAndUpdate.
// CreateSession loads the session first and inserts it only when none
// exists.
type MongoStore struct {
	sessions *mongo.Collection
	runs     *mongo.Collection
}

// NewMongoStore constructs a MongoStore using the conventional "sessions" and
// "session_runs" collection names.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		sessions: db.Collection("sessions"),
		runs:     db.Collection("session_runs"),
	}
}

type sessionDoc struct {
	ID        string     `bson:"_id"`
	Status    Status     `bson:"status"`
	CreatedAt time.Time  `bson:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty"`
}

func (d *sessionDoc) toSession() Session {
	return Session{ID: d.ID, Status: d.Status, CreatedAt: d.CreatedAt, EndedAt: d.EndedAt}
}

type runMetaDoc struct {
	RunID       string         `bson:"_id"`
	AssistantID string         `bson:"assistant_id"`
	SessionID   string         `bson:"session_id"`
	Status      RunStatus      `bson:"status"`
	StartedAt   time.Time      `bson:"started_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
	Labels      map[string]string `bson:"labels,omitempty"`
	Metadata    map[string]any    `bson:"metadata,omitempty"`
}

func (d *runMetaDoc) toMeta() RunMeta {
	return RunMeta{
		AssistantID: d.AssistantID, RunID: d.RunID, SessionID: d.SessionID,
		Status: d.Status, StartedAt: d.StartedAt, UpdatedAt: d.UpdatedAt,
		Labels: d.Labels, Metadata: d.Metadata,
	}
}

func (m *MongoStore) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (Session, error) {
	existing, err := m.LoadSession(ctx, sessionID)
	if err == nil {
		if existing.Status == StatusEnded {
			return Session{}, ErrSessionEnded
		}
		return existing, nil
	}
	if err != ErrSessionNotFound {
		return Session{}, err
	}
	doc := sessionDoc{ID: sessionID, Status: StatusActive, CreatedAt: createdAt}
	if _, err := m.sessions.InsertOne(ctx, doc); err != nil {
		return Session{}, err
	}
	return doc.toSession(), nil
}

func (m *MongoStore) LoadSession(ctx context.Context, sessionID string) (Session, error) {
	var doc sessionDoc
	if err := m.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return doc.toSession(), nil
}

func (m *MongoStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (Session, error) {
	var doc sessionDoc
	err := m.sessions.FindOneAndUpdate(ctx,
		bson.M{"_id": sessionID, "status": StatusActive},
		bson.M{"$set": bson.M{"status": StatusEnded, "ended_at": endedAt}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toSession(), nil
	}
	if err != mongo.ErrNoDocuments {
		return Session{}, err
	}
	return m.LoadSession(ctx, sessionID)
}

func (m *MongoStore) UpsertRun(ctx context.Context, run RunMeta) error {
	doc := runMetaDoc{
		RunID: run.RunID, AssistantID: run.AssistantID, SessionID: run.SessionID,
		Status: run.Status, StartedAt: run.StartedAt, UpdatedAt: run.UpdatedAt,
		Labels: run.Labels, Metadata: run.Metadata,
	}
	_, err := m.runs.UpdateOne(ctx,
		bson.M{"_id": run.RunID},
		bson.M{"$set": doc},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (m *MongoStore) LoadRun(ctx context.Context, runID string) (RunMeta, error) {
	var doc runMetaDoc
	if err := m.runs.FindOne(ctx, bson.M{"_id": runID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return RunMeta{}, ErrRunNotFound
		}
		return RunMeta{}, err
	}
	return doc.toMeta(), nil
}

func (m *MongoStore) ListRunsBySession(ctx context.Context, sessionID string, statuses []RunStatus) ([]RunMeta, error) {
	q := bson.M{"session_id": sessionID}
	if len(statuses) > 0 {
		q["status"] = bson.M{"$in": statuses}
	}
	cur, err := m.runs.Find(ctx, q, options.Find().SetSort(bson.M{"started_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []RunMeta
	for cur.Next(ctx) {
		var doc runMetaDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toMeta())
	}
	return out, cur.Err()
}
