package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/types"
)

// FileStore is a file-based implementation of ChatStore.
// Each chat lives in one JSON file under the base directory; the full
// content is cached in memory and flushed on every mutation.
// Suitable for single-node deployments.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
	chats   map[string]*chatEnvelope
	order   []string
	closed  bool
	stop    chan struct{}
}

// chatEnvelope is the on-disk format: the archived result plus the live
// message log of one chat.
type chatEnvelope struct {
	SavedAt  time.Time       `json:"saved_at"`
	Result   *chat.Result    `json:"result,omitempty"`
	Messages []types.Message `json:"messages,omitempty"`
}

// NewFileStore creates a file-based chat store rooted at cfg.BaseDir.
func NewFileStore(cfg StoreConfig) (*FileStore, error) {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		baseDir = DefaultStoreConfig().BaseDir
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chat store directory: %w", err)
	}

	s := &FileStore{
		baseDir: baseDir,
		chats:   make(map[string]*chatEnvelope),
		stop:    make(chan struct{}),
	}
	if err := s.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("load chat store: %w", err)
	}
	if retentionEnabled(cfg.Retention) {
		go runRetentionLoop(s, cfg.Retention, s.stop)
	}
	return s, nil
}

func (s *FileStore) loadFromDisk() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			return err
		}
		var env chatEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		chatID := strings.TrimSuffix(entry.Name(), ".json")
		s.chats[chatID] = &env
		if env.Result != nil {
			s.order = append(s.order, chatID)
		}
	}
	// 按首次保存时间恢复列表顺序
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.chats[s.order[i]].SavedAt.Before(s.chats[s.order[j]].SavedAt)
	})
	return nil
}

func (s *FileStore) chatPath(chatID string) string {
	return filepath.Join(s.baseDir, chatID+".json")
}

func validateChatID(chatID string) error {
	if chatID == "" || strings.ContainsAny(chatID, `/\`) || strings.Contains(chatID, "..") {
		return fmt.Errorf("%w: bad chat id %q", ErrInvalidInput, chatID)
	}
	return nil
}

// flushLocked writes one chat's envelope to disk. Callers hold the lock.
func (s *FileStore) flushLocked(chatID string) error {
	data, err := json.MarshalIndent(s.chats[chatID], "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chat %s: %w", chatID, err)
	}
	if err := os.WriteFile(s.chatPath(chatID), data, 0o644); err != nil {
		return fmt.Errorf("write chat %s: %w", chatID, err)
	}
	return nil
}

// SaveResult archives a finished chat, upserting by chat ID.
func (s *FileStore) SaveResult(ctx context.Context, result *chat.Result) error {
	if result == nil {
		return ErrInvalidInput
	}
	if err := validateChatID(result.ChatID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	env, ok := s.chats[result.ChatID]
	if !ok {
		env = &chatEnvelope{SavedAt: time.Now()}
		s.chats[result.ChatID] = env
	}
	if env.Result == nil {
		s.order = append(s.order, result.ChatID)
	}
	if env.SavedAt.IsZero() {
		env.SavedAt = time.Now()
	}
	env.Result = cloneResult(result)
	return s.flushLocked(result.ChatID)
}

// GetResult returns the archived chat or ErrNotFound.
func (s *FileStore) GetResult(ctx context.Context, chatID string) (*chat.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	env, ok := s.chats[chatID]
	if !ok || env.Result == nil {
		return nil, ErrNotFound
	}
	return cloneResult(env.Result), nil
}

// ListResults pages through archived chats in first-save order.
func (s *FileStore) ListResults(ctx context.Context, cursor string, limit int) ([]*chat.Result, string, error) {
	offset, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, "", ErrStoreClosed
	}
	if offset >= len(s.order) {
		return nil, "", nil
	}
	end := offset + limit
	if end > len(s.order) {
		end = len(s.order)
	}
	out := make([]*chat.Result, 0, end-offset)
	for _, id := range s.order[offset:end] {
		out = append(out, cloneResult(s.chats[id].Result))
	}
	return out, nextCursor(offset, len(out), limit), nil
}

// SaveMessage appends one message to a chat's live message log.
func (s *FileStore) SaveMessage(ctx context.Context, chatID string, msg types.Message) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	env, ok := s.chats[chatID]
	if !ok {
		env = &chatEnvelope{SavedAt: time.Now()}
		s.chats[chatID] = env
	}
	env.Messages = append(env.Messages, msg)
	return s.flushLocked(chatID)
}

// GetMessages returns the live message log of a chat, oldest first.
func (s *FileStore) GetMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	env, ok := s.chats[chatID]
	if !ok {
		return nil, nil
	}
	return types.CloneMessages(env.Messages), nil
}

// DeleteChat removes the archived result and the message log.
func (s *FileStore) DeleteChat(ctx context.Context, chatID string) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.chats[chatID]; !ok {
		return ErrNotFound
	}
	return s.removeLocked(chatID)
}

func (s *FileStore) removeLocked(chatID string) error {
	delete(s.chats, chatID)
	for i, id := range s.order {
		if id == chatID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if err := os.Remove(s.chatPath(chatID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove chat %s: %w", chatID, err)
	}
	return nil
}

// Stats reports how many chats and messages the store holds.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrStoreClosed
	}
	stats := Stats{}
	for _, env := range s.chats {
		if env.Result != nil {
			stats.Chats++
		}
		stats.Messages += int64(len(env.Messages))
	}
	return stats, nil
}

// DeleteOlderThan removes chats first saved before cutoff, with their messages.
func (s *FileStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	var expired []string
	for id, env := range s.chats {
		if env.Result != nil && env.SavedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		if err := s.removeLocked(id); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// Ping checks if the store is healthy.
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

// Close closes the store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)
	return nil
}

// Ensure FileStore implements ChatStore
var _ ChatStore = (*FileStore)(nil)
