package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/types"
)

// MongoStore is a MongoDB-based implementation of ChatStore.
// Results and messages are stored as their canonical JSON payloads so the
// round-trip behaves exactly like the other backends; only the fields the
// store queries on (summary, timestamps) are lifted into the documents.
type MongoStore struct {
	client   *mongo.Client
	results  *mongo.Collection
	messages *mongo.Collection

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

// chatResultDoc is the chat_results document. SavedAt is kept in
// nanoseconds because BSON datetimes only carry milliseconds, which is too
// coarse to keep the first-save listing order stable.
type chatResultDoc struct {
	ChatID  string `bson:"_id"`
	Summary string `bson:"summary"`
	SavedAt int64  `bson:"saved_at"`
	Payload []byte `bson:"payload"`
}

// chatMessageDoc is the chat_messages document.
type chatMessageDoc struct {
	ChatID    string `bson:"chat_id"`
	CreatedAt int64  `bson:"created_at"`
	Payload   []byte `bson:"payload"`
}

// NewMongoStore creates a new MongoDB-based chat store.
func NewMongoStore(cfg StoreConfig) (*MongoStore, error) {
	uri := cfg.Mongo.URI
	if uri == "" {
		uri = DefaultStoreConfig().Mongo.URI
	}
	database := cfg.Mongo.Database
	if database == "" {
		database = DefaultStoreConfig().Mongo.Database
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		results:  db.Collection("chat_results"),
		messages: db.Collection("chat_messages"),
		stop:     make(chan struct{}),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	if retentionEnabled(cfg.Retention) {
		go runRetentionLoop(s, cfg.Retention, s.stop)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.results.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "saved_at", Value: 1}},
	})
	if err != nil {
		return err
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

// SaveResult archives a finished chat, upserting by chat ID.
func (s *MongoStore) SaveResult(ctx context.Context, result *chat.Result) error {
	if result == nil || result.ChatID == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal chat result: %w", err)
	}

	// $setOnInsert keeps the first-save time, so re-saves do not reorder
	// the listing
	update := bson.M{
		"$set": bson.M{
			"summary": result.Summary,
			"payload": data,
		},
		"$setOnInsert": bson.M{
			"saved_at": time.Now().UnixNano(),
		},
	}
	_, err = s.results.UpdateOne(ctx, bson.M{"_id": result.ChatID}, update,
		options.UpdateOne().SetUpsert(true))
	return err
}

// GetResult returns the archived chat or ErrNotFound.
func (s *MongoStore) GetResult(ctx context.Context, chatID string) (*chat.Result, error) {
	var doc chatResultDoc
	err := s.results.FindOne(ctx, bson.M{"_id": chatID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeResultPayload(doc.Payload)
}

func decodeResultPayload(payload []byte) (*chat.Result, error) {
	var result chat.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("parse chat result: %w", err)
	}
	return &result, nil
}

// ListResults pages through archived chats in first-save order.
func (s *MongoStore) ListResults(ctx context.Context, cursor string, limit int) ([]*chat.Result, string, error) {
	offset, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = normalizeLimit(limit)

	findOpts := options.Find().
		SetSort(bson.D{{Key: "saved_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := s.results.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, "", err
	}
	defer cur.Close(ctx)

	out := make([]*chat.Result, 0, limit)
	for cur.Next(ctx) {
		var doc chatResultDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, "", err
		}
		result, err := decodeResultPayload(doc.Payload)
		if err != nil {
			return nil, "", err
		}
		out = append(out, result)
	}
	if err := cur.Err(); err != nil {
		return nil, "", err
	}
	return out, nextCursor(offset, len(out), limit), nil
}

// SaveMessage appends one message to a chat's live message log.
func (s *MongoStore) SaveMessage(ctx context.Context, chatID string, msg types.Message) error {
	if chatID == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = s.messages.InsertOne(ctx, chatMessageDoc{
		ChatID:    chatID,
		CreatedAt: time.Now().UnixNano(),
		Payload:   data,
	})
	return err
}

// GetMessages returns the live message log of a chat, oldest first.
func (s *MongoStore) GetMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.messages.Find(ctx, bson.M{"chat_id": chatID}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []types.Message
	for cur.Next(ctx) {
		var doc chatMessageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		var msg types.Message
		if err := json.Unmarshal(doc.Payload, &msg); err != nil {
			return nil, fmt.Errorf("parse message: %w", err)
		}
		out = append(out, msg)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteChat removes the archived result and the message log.
func (s *MongoStore) DeleteChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return ErrInvalidInput
	}
	res, err := s.results.DeleteOne(ctx, bson.M{"_id": chatID})
	if err != nil {
		return err
	}
	msgs, err := s.messages.DeleteMany(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 && msgs.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats reports how many chats and messages the store holds.
func (s *MongoStore) Stats(ctx context.Context) (Stats, error) {
	chats, err := s.results.CountDocuments(ctx, bson.M{})
	if err != nil {
		return Stats{}, err
	}
	messages, err := s.messages.CountDocuments(ctx, bson.M{})
	if err != nil {
		return Stats{}, err
	}
	return Stats{Chats: chats, Messages: messages}, nil
}

// DeleteOlderThan removes chats first saved before cutoff, with their messages.
func (s *MongoStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	filter := bson.M{"saved_at": bson.M{"$lt": cutoff.UnixNano()}}
	cur, err := s.results.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ChatID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return 0, err
		}
		ids = append(ids, doc.ChatID)
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := s.results.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return 0, err
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"chat_id": bson.M{"$in": ids}}); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Ping checks if the store is healthy.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close closes the store.
func (s *MongoStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ensure MongoStore implements ChatStore
var _ ChatStore = (*MongoStore)(nil)
