// Package persistence provides durable storage for chat results and messages.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - File: one JSON file per chat, for single-node deployments
//   - Redis: for distributed deployments
//   - Mongo: document storage for large chat archives
//   - Database: relational storage through GORM (SQLite/MySQL/Postgres)
package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeFile     StoreType = "file"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeMongo    StoreType = "mongo"
	StoreTypeDatabase StoreType = "database"
)

// DefaultListLimit is used when ListResults is called with a non-positive limit.
const DefaultListLimit = 50

// RetentionConfig controls automatic cleanup of old chats.
// Disabled by default: chat archives are kept until deleted explicitly.
type RetentionConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	MaxAge   time.Duration `json:"max_age" yaml:"max_age"`
}

// DefaultRetentionConfig returns the default retention configuration.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Enabled:  false,
		Interval: 1 * time.Hour,
		MaxAge:   7 * 24 * time.Hour,
	}
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// MongoStoreConfig contains MongoDB-specific configuration
type MongoStoreConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	Database string `json:"database" yaml:"database"`
}

// StoreConfig is the configuration shared by all store implementations
type StoreConfig struct {
	Type      StoreType        `json:"type" yaml:"type"`
	BaseDir   string           `json:"base_dir" yaml:"base_dir"`
	Redis     RedisStoreConfig `json:"redis" yaml:"redis"`
	Mongo     MongoStoreConfig `json:"mongo" yaml:"mongo"`
	Retention RetentionConfig  `json:"retention" yaml:"retention"`
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/chats",
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "agentchat:",
		},
		Mongo: MongoStoreConfig{
			URI:      "mongodb://localhost:27017",
			Database: "agentchat",
		},
		Retention: DefaultRetentionConfig(),
	}
}

// Stats reports store contents.
type Stats struct {
	Chats    int64 `json:"chats"`
	Messages int64 `json:"messages"`
}

// ChatStore persists chat results and live chat messages.
//
// Results and messages are independent: SaveMessage streams messages of a
// running chat as they happen, SaveResult archives the finished chat. The
// listing order is the order of first save.
type ChatStore interface {
	// SaveResult archives a finished chat, upserting by chat ID.
	SaveResult(ctx context.Context, result *chat.Result) error

	// GetResult returns the archived chat or ErrNotFound.
	GetResult(ctx context.Context, chatID string) (*chat.Result, error)

	// ListResults pages through archived chats in first-save order.
	// An empty cursor starts from the beginning; the returned cursor is
	// empty when the listing is exhausted.
	ListResults(ctx context.Context, cursor string, limit int) ([]*chat.Result, string, error)

	// SaveMessage appends one message to a chat's live message log.
	SaveMessage(ctx context.Context, chatID string, msg types.Message) error

	// GetMessages returns the live message log of a chat, oldest first.
	// Unknown chats yield an empty slice.
	GetMessages(ctx context.Context, chatID string) ([]types.Message, error)

	// DeleteChat removes the archived result and the message log.
	// Returns ErrNotFound when the chat has neither.
	DeleteChat(ctx context.Context, chatID string) error

	// Stats reports how many chats and messages the store holds.
	Stats(ctx context.Context) (Stats, error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// cleaner is implemented by stores that support retention cleanup.
// DeleteOlderThan removes archived chats first saved before cutoff, with
// their message logs. Message logs of chats that never archived a result
// belong to in-flight chats and are left alone.
type cleaner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// runRetentionLoop deletes chats older than MaxAge every Interval until
// stop is closed.
func runRetentionLoop(c cleaner, cfg RetentionConfig, stop <-chan struct{}) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, _ = c.DeleteOlderThan(ctx, time.Now().Add(-cfg.MaxAge))
			cancel()
		}
	}
}

func retentionEnabled(cfg RetentionConfig) bool {
	return cfg.Enabled && cfg.Interval > 0 && cfg.MaxAge > 0
}

func parseCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad cursor %q", ErrInvalidInput, cursor)
	}
	return n, nil
}

func nextCursor(offset, returned, limit int) string {
	if returned < limit {
		return ""
	}
	return strconv.Itoa(offset + returned)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func cloneResult(r *chat.Result) *chat.Result {
	if r == nil {
		return nil
	}
	out := *r
	out.History = types.CloneMessages(r.History)
	out.HumanInputs = append([]string(nil), r.HumanInputs...)
	return &out
}
