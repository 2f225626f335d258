package runlog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is a Store backed by MongoDB. Events are inserted into a single
// append-only collection indexed by run_id; the document's own ObjectID
// serves directly as the pagination cursor since ObjectIDs are
// monotonically increasing within a single mongod's clock.
type MongoStore struct {
	events *mongo.Collection
}

// NewMongoStore constructs a MongoStore using the conventional "run_events"
// collection name.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{events: db.Collection("run_events")}
}

type eventDoc struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	RunID       string        `bson:"run_id"`
	AssistantID string        `bson:"assistant_id,omitempty"`
	SessionID   string        `bson:"session_id,omitempty"`
	Type        EventType     `bson:"type"`
	Payload     bson.Raw      `bson:"payload,omitempty"`
	Timestamp   time.Time     `bson:"timestamp"`
}

func (d *eventDoc) toEvent() *Event {
	return &Event{
		ID: d.ID.Hex(), RunID: d.RunID, AssistantID: d.AssistantID,
		SessionID: d.SessionID, Type: d.Type, Payload: []byte(d.Payload),
		Timestamp: d.Timestamp,
	}
}

func (m *MongoStore) Append(ctx context.Context, e *Event) error {
	doc := eventDoc{
		RunID: e.RunID, AssistantID: e.AssistantID, SessionID: e.SessionID,
		Type: e.Type, Payload: bson.Raw(e.Payload), Timestamp: e.Timestamp,
	}
	res, err := m.events.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	e.ID = res.InsertedID.(bson.ObjectID).Hex()
	return nil
}

func (m *MongoStore) List(ctx context.Context, runID string, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		return Page{}, fmt.Errorf("runlog: limit must be positive")
	}
	q := bson.M{"run_id": runID}
	if cursor != "" {
		oid, err := bson.ObjectIDFromHex(cursor)
		if err != nil {
			return Page{}, fmt.Errorf("runlog: invalid cursor %q", cursor)
		}
		q["_id"] = bson.M{"$gt": oid}
	}
	cur, err := m.events.Find(ctx, q,
		options.Find().SetSort(bson.M{"_id": 1}).SetLimit(int64(limit+1)))
	if err != nil {
		return Page{}, err
	}
	defer cur.Close(ctx)

	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return Page{}, err
	}

	page := Page{}
	n := len(docs)
	if n > limit {
		n = limit
	}
	page.Events = make([]*Event, n)
	for i := 0; i < n; i++ {
		page.Events[i] = docs[i].toEvent()
	}
	if len(docs) > limit {
		page.NextCursor = docs[limit-1].ID.Hex()
	}
	return page, nil
}
