package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/types"
)

// MemoryStore is an in-memory implementation of ChatStore.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]*storedChat
	order    []string // chat IDs in first-save order
	messages map[string][]types.Message
	closed   bool
	stop     chan struct{}
}

type storedChat struct {
	result  *chat.Result
	savedAt time.Time
}

// NewMemoryStore creates an in-memory chat store.
func NewMemoryStore(cfg StoreConfig) *MemoryStore {
	s := &MemoryStore{
		chats:    make(map[string]*storedChat),
		messages: make(map[string][]types.Message),
		stop:     make(chan struct{}),
	}
	if retentionEnabled(cfg.Retention) {
		go runRetentionLoop(s, cfg.Retention, s.stop)
	}
	return s
}

// SaveResult archives a finished chat, upserting by chat ID.
// Re-saving keeps the chat's original position in the listing.
func (s *MemoryStore) SaveResult(ctx context.Context, result *chat.Result) error {
	if result == nil || result.ChatID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if existing, ok := s.chats[result.ChatID]; ok {
		existing.result = cloneResult(result)
		return nil
	}
	s.chats[result.ChatID] = &storedChat{result: cloneResult(result), savedAt: time.Now()}
	s.order = append(s.order, result.ChatID)
	return nil
}

// GetResult returns the archived chat or ErrNotFound.
func (s *MemoryStore) GetResult(ctx context.Context, chatID string) (*chat.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	stored, ok := s.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResult(stored.result), nil
}

// ListResults pages through archived chats in first-save order.
func (s *MemoryStore) ListResults(ctx context.Context, cursor string, limit int) ([]*chat.Result, string, error) {
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
		out = append(out, cloneResult(s.chats[id].result))
	}
	return out, nextCursor(offset, len(out), limit), nil
}

// SaveMessage appends one message to a chat's live message log.
func (s *MemoryStore) SaveMessage(ctx context.Context, chatID string, msg types.Message) error {
	if chatID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	return nil
}

// GetMessages returns the live message log of a chat, oldest first.
func (s *MemoryStore) GetMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return types.CloneMessages(s.messages[chatID]), nil
}

// DeleteChat removes the archived result and the message log.
func (s *MemoryStore) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, hasResult := s.chats[chatID]
	_, hasMessages := s.messages[chatID]
	if !hasResult && !hasMessages {
		return ErrNotFound
	}
	s.removeLocked(chatID)
	return nil
}

func (s *MemoryStore) removeLocked(chatID string) {
	delete(s.chats, chatID)
	delete(s.messages, chatID)
	for i, id := range s.order {
		if id == chatID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Stats reports how many chats and messages the store holds.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrStoreClosed
	}
	var messages int64
	for _, msgs := range s.messages {
		messages += int64(len(msgs))
	}
	return Stats{Chats: int64(len(s.chats)), Messages: messages}, nil
}

// DeleteOlderThan removes chats first saved before cutoff, with their messages.
func (s *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	var expired []string
	for id, stored := range s.chats {
		if stored.savedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		s.removeLocked(id)
	}
	return len(expired), nil
}

// Ping checks if the store is healthy.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)
	return nil
}

// Ensure MemoryStore implements ChatStore
var _ ChatStore = (*MemoryStore)(nil)
