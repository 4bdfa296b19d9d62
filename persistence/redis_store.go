package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/types"
)

// RedisStore is a Redis-based implementation of ChatStore.
// Suitable for distributed production deployments. Results live in plain
// keys, message logs in lists, and a sorted set scored by first-save time
// keeps the listing order.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

// NewRedisStore creates a new Redis-based chat store.
func NewRedisStore(cfg StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	keyPrefix := cfg.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultStoreConfig().Redis.KeyPrefix
	}

	s := &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "chat:",
		stop:      make(chan struct{}),
	}
	if retentionEnabled(cfg.Retention) {
		go runRetentionLoop(s, cfg.Retention, s.stop)
	}
	return s, nil
}

// resultKey returns the Redis key for an archived chat result.
func (s *RedisStore) resultKey(chatID string) string {
	return s.keyPrefix + "result:" + chatID
}

// messagesKey returns the Redis key for a chat's live message log.
func (s *RedisStore) messagesKey(chatID string) string {
	return s.keyPrefix + "messages:" + chatID
}

// indexKey returns the Redis key for the first-save ordering index.
func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "index"
}

// SaveResult archives a finished chat, upserting by chat ID.
func (s *RedisStore) SaveResult(ctx context.Context, result *chat.Result) error {
	if result == nil || result.ChatID == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal chat result: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.resultKey(result.ChatID), data, 0)
	// NX keeps the first-save score, so re-saves do not reorder the listing
	pipe.ZAddNX(ctx, s.indexKey(), redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: result.ChatID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// GetResult returns the archived chat or ErrNotFound.
func (s *RedisStore) GetResult(ctx context.Context, chatID string) (*chat.Result, error) {
	data, err := s.client.Get(ctx, s.resultKey(chatID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var result chat.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse chat result: %w", err)
	}
	return &result, nil
}

// ListResults pages through archived chats in first-save order.
func (s *RedisStore) ListResults(ctx context.Context, cursor string, limit int) ([]*chat.Result, string, error) {
	offset, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = normalizeLimit(limit)

	ids, err := s.client.ZRange(ctx, s.indexKey(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, "", err
	}
	out := make([]*chat.Result, 0, len(ids))
	for _, id := range ids {
		result, err := s.GetResult(ctx, id)
		if err == ErrNotFound {
			// 与并发删除竞争时跳过
			continue
		}
		if err != nil {
			return nil, "", err
		}
		out = append(out, result)
	}
	return out, nextCursor(offset, len(ids), limit), nil
}

// SaveMessage appends one message to a chat's live message log.
func (s *RedisStore) SaveMessage(ctx context.Context, chatID string, msg types.Message) error {
	if chatID == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.client.RPush(ctx, s.messagesKey(chatID), data).Err()
}

// GetMessages returns the live message log of a chat, oldest first.
func (s *RedisStore) GetMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	items, err := s.client.LRange(ctx, s.messagesKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.Message, 0, len(items))
	for _, item := range items {
		var msg types.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("parse message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// DeleteChat removes the archived result and the message log.
func (s *RedisStore) DeleteChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return ErrInvalidInput
	}
	exists, err := s.client.Exists(ctx, s.resultKey(chatID), s.messagesKey(chatID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.resultKey(chatID), s.messagesKey(chatID))
	pipe.ZRem(ctx, s.indexKey(), chatID)
	_, err = pipe.Exec(ctx)
	return err
}

// Stats reports how many chats and messages the store holds.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	chats, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Chats: chats}

	logKeys, err := s.client.Keys(ctx, s.keyPrefix+"messages:*").Result()
	if err != nil {
		return Stats{}, err
	}
	for _, key := range logKeys {
		n, err := s.client.LLen(ctx, key).Result()
		if err != nil {
			continue
		}
		stats.Messages += n
	}
	return stats, nil
}

// DeleteOlderThan removes chats first saved before cutoff, with their messages.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixNano(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(ids))
	pipe := s.client.Pipeline()
	for i, id := range ids {
		members[i] = id
		pipe.Del(ctx, s.resultKey(id), s.messagesKey(id))
	}
	pipe.ZRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Ping checks if the store is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)
	return s.client.Close()
}

// Ensure RedisStore implements ChatStore
var _ ChatStore = (*RedisStore)(nil)
