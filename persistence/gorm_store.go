package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/types"
)

// GormStore is a SQL-database implementation of ChatStore backed by GORM.
// Works with any dialect the module ships drivers for (MySQL, PostgreSQL,
// SQLite). Results and messages are stored as their canonical JSON
// payloads; queryable fields are lifted into columns.
type GormStore struct {
	db *gorm.DB

	closeOnce sync.Once
	stop      chan struct{}
}

// chatResultRow is the chat_results table. Upserts update the existing
// row, so the auto-increment ID preserves first-save order.
type chatResultRow struct {
	ID        uint      `gorm:"primaryKey"`
	ChatID    string    `gorm:"size:64;uniqueIndex;not null"`
	Summary   string    `gorm:"type:text"`
	Payload   []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (chatResultRow) TableName() string {
	return "chat_results"
}

// chatMessageRow is the chat_messages table.
type chatMessageRow struct {
	ID        uint   `gorm:"primaryKey"`
	ChatID    string `gorm:"size:64;index;not null"`
	Payload   []byte `gorm:"not null"`
	CreatedAt time.Time
}

func (chatMessageRow) TableName() string {
	return "chat_messages"
}

// NewGormStore creates a SQL-backed chat store on an existing database
// handle. The handle stays owned by the caller; Close does not close it.
func NewGormStore(db *gorm.DB, cfg StoreConfig) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil database handle", ErrInvalidInput)
	}
	if err := db.AutoMigrate(&chatResultRow{}, &chatMessageRow{}); err != nil {
		return nil, fmt.Errorf("migrate chat store schema: %w", err)
	}

	s := &GormStore{db: db, stop: make(chan struct{})}
	if retentionEnabled(cfg.Retention) {
		go runRetentionLoop(s, cfg.Retention, s.stop)
	}
	return s, nil
}

// SaveResult archives a finished chat, upserting by chat ID.
func (s *GormStore) SaveResult(ctx context.Context, result *chat.Result) error {
	if result == nil || result.ChatID == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal chat result: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row chatResultRow
		err := tx.Where("chat_id = ?", result.ChatID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&chatResultRow{
				ChatID:  result.ChatID,
				Summary: result.Summary,
				Payload: data,
			}).Error
		}
		if err != nil {
			return err
		}
		row.Summary = result.Summary
		row.Payload = data
		return tx.Save(&row).Error
	})
}

// GetResult returns the archived chat or ErrNotFound.
func (s *GormStore) GetResult(ctx context.Context, chatID string) (*chat.Result, error) {
	var row chatResultRow
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeResultPayload(row.Payload)
}

// ListResults pages through archived chats in first-save order.
func (s *GormStore) ListResults(ctx context.Context, cursor string, limit int) ([]*chat.Result, string, error) {
	offset, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = normalizeLimit(limit)

	var rows []chatResultRow
	err = s.db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, "", err
	}

	out := make([]*chat.Result, 0, len(rows))
	for _, row := range rows {
		result, err := decodeResultPayload(row.Payload)
		if err != nil {
			return nil, "", err
		}
		out = append(out, result)
	}
	return out, nextCursor(offset, len(rows), limit), nil
}

// SaveMessage appends one message to a chat's live message log.
func (s *GormStore) SaveMessage(ctx context.Context, chatID string, msg types.Message) error {
	if chatID == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.db.WithContext(ctx).Create(&chatMessageRow{
		ChatID:  chatID,
		Payload: data,
	}).Error
}

// GetMessages returns the live message log of a chat, oldest first.
func (s *GormStore) GetMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	var rows []chatMessageRow
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]types.Message, 0, len(rows))
	for _, row := range rows {
		var msg types.Message
		if err := json.Unmarshal(row.Payload, &msg); err != nil {
			return nil, fmt.Errorf("parse message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// DeleteChat removes the archived result and the message log.
func (s *GormStore) DeleteChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return ErrInvalidInput
	}
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("chat_id = ?", chatID).Delete(&chatResultRow{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected

		res = tx.Where("chat_id = ?", chatID).Delete(&chatMessageRow{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected
		return nil
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats reports how many chats and messages the store holds.
func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.WithContext(ctx).Model(&chatResultRow{}).Count(&stats.Chats).Error; err != nil {
		return Stats{}, err
	}
	if err := s.db.WithContext(ctx).Model(&chatMessageRow{}).Count(&stats.Messages).Error; err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// DeleteOlderThan removes chats first saved before cutoff, with their messages.
func (s *GormStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&chatResultRow{}).
		Where("created_at < ?", cutoff).
		Pluck("chat_id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id IN ?", ids).Delete(&chatResultRow{}).Error; err != nil {
			return err
		}
		return tx.Where("chat_id IN ?", ids).Delete(&chatMessageRow{}).Error
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Ping checks if the store is healthy.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close stops the retention loop. The underlying database handle is owned
// by the caller and stays open.
func (s *GormStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	return nil
}

// Ensure GormStore implements ChatStore
var _ ChatStore = (*GormStore)(nil)
