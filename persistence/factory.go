package persistence

import (
	"fmt"

	"gorm.io/gorm"
)

// NewChatStore creates a new ChatStore based on the configuration.
// The database handle is only used by StoreTypeDatabase and may be nil
// for every other backend.
func NewChatStore(cfg StoreConfig, db *gorm.DB) (ChatStore, error) {
	switch cfg.Type {
	case StoreTypeMemory:
		return NewMemoryStore(cfg), nil
	case StoreTypeFile:
		return NewFileStore(cfg)
	case StoreTypeRedis:
		return NewRedisStore(cfg)
	case StoreTypeMongo:
		return NewMongoStore(cfg)
	case StoreTypeDatabase:
		if db == nil {
			return nil, fmt.Errorf("%w: store type %q needs a database handle", ErrInvalidInput, cfg.Type)
		}
		return NewGormStore(db, cfg)
	default:
		return nil, fmt.Errorf("unsupported chat store type: %s", cfg.Type)
	}
}

// MustNewChatStore creates a new ChatStore or panics on error.
//
// WARNING: This function should ONLY be used during application
// initialization (e.g., in main() or init()). For runtime store creation,
// use NewChatStore instead.
func MustNewChatStore(cfg StoreConfig, db *gorm.DB) ChatStore {
	store, err := NewChatStore(cfg, db)
	if err != nil {
		panic(fmt.Sprintf("failed to create chat store: %v", err))
	}
	return store
}
