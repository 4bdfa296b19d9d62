package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/types"
)

func sampleResult(chatID, summary string) *chat.Result {
	r := &chat.Result{
		ChatID: chatID,
		History: []types.Message{
			types.NewUserMessage("hello"),
			types.NewChatMessage(types.RoleAssistant, "bob", "hi there"),
		},
		Summary:     summary,
		HumanInputs: []string{"looks good"},
	}
	r.Cost.Total.TotalCost = 0.5
	return r
}

// runChatStoreTests runs the shared conformance battery against one store.
// Subtests use distinct chat IDs so they can share the store; DeleteOlderThan
// runs last because it sweeps everything saved before its cutoff.
func runChatStoreTests(t *testing.T, store ChatStore) {
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetResult", func(t *testing.T) {
		result := sampleResult("roundtrip-1", "greeting exchange")
		if err := store.SaveResult(ctx, result); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}

		retrieved, err := store.GetResult(ctx, "roundtrip-1")
		if err != nil {
			t.Fatalf("GetResult failed: %v", err)
		}
		if retrieved.Summary != "greeting exchange" {
			t.Errorf("Summary mismatch: got %q", retrieved.Summary)
		}
		if len(retrieved.History) != 2 {
			t.Fatalf("Expected 2 history messages, got %d", len(retrieved.History))
		}
		if retrieved.History[1].Content != "hi there" {
			t.Errorf("History content mismatch: got %q", retrieved.History[1].Content)
		}
		if retrieved.History[1].Name != "bob" {
			t.Errorf("History name mismatch: got %q", retrieved.History[1].Name)
		}
		if len(retrieved.HumanInputs) != 1 || retrieved.HumanInputs[0] != "looks good" {
			t.Errorf("HumanInputs mismatch: got %v", retrieved.HumanInputs)
		}
		if retrieved.Cost.Total.TotalCost != 0.5 {
			t.Errorf("Cost mismatch: got %f", retrieved.Cost.Total.TotalCost)
		}
	})

	t.Run("GetResultNotFound", func(t *testing.T) {
		_, err := store.GetResult(ctx, "missing-chat")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveResultInvalid", func(t *testing.T) {
		if err := store.SaveResult(ctx, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for nil result, got %v", err)
		}
		if err := store.SaveResult(ctx, &chat.Result{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for empty chat ID, got %v", err)
		}
	})

	t.Run("BadCursor", func(t *testing.T) {
		_, _, err := store.ListResults(ctx, "not-a-number", 10)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("UpsertUpdatesResult", func(t *testing.T) {
		if err := store.SaveResult(ctx, sampleResult("upsert-1", "first")); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
		if err := store.SaveResult(ctx, sampleResult("upsert-1", "second")); err != nil {
			t.Fatalf("Re-save failed: %v", err)
		}

		retrieved, err := store.GetResult(ctx, "upsert-1")
		if err != nil {
			t.Fatalf("GetResult failed: %v", err)
		}
		if retrieved.Summary != "second" {
			t.Errorf("Expected updated summary, got %q", retrieved.Summary)
		}
	})

	t.Run("ListOrderAndPagination", func(t *testing.T) {
		want := []string{"page-1", "page-2", "page-3", "page-4", "page-5"}
		for _, id := range want {
			if err := store.SaveResult(ctx, sampleResult(id, "chat "+id)); err != nil {
				t.Fatalf("SaveResult %s failed: %v", id, err)
			}
		}
		// Re-save must not move page-2 in the listing
		if err := store.SaveResult(ctx, sampleResult("page-2", "updated")); err != nil {
			t.Fatalf("Re-save failed: %v", err)
		}

		// Walk the full listing in pages of 2 and keep only our IDs;
		// the store is shared with the other subtests
		var got []string
		cursor := ""
		for page := 0; ; page++ {
			if page > 50 {
				t.Fatal("Pagination did not terminate")
			}
			results, next, err := store.ListResults(ctx, cursor, 2)
			if err != nil {
				t.Fatalf("ListResults failed: %v", err)
			}
			if len(results) > 2 {
				t.Fatalf("Page larger than limit: %d", len(results))
			}
			for _, r := range results {
				if len(r.ChatID) > 5 && r.ChatID[:5] == "page-" {
					got = append(got, r.ChatID)
				}
			}
			if next == "" {
				break
			}
			cursor = next
		}

		if len(got) != len(want) {
			t.Fatalf("Expected %d page chats, got %d: %v", len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Order mismatch at %d: got %s, want %s", i, got[i], want[i])
			}
		}
	})

	t.Run("SaveAndGetMessages", func(t *testing.T) {
		contents := []string{"first", "second", "third"}
		for _, c := range contents {
			msg := types.NewChatMessage(types.RoleAssistant, "bob", c)
			if err := store.SaveMessage(ctx, "msgs-1", msg); err != nil {
				t.Fatalf("SaveMessage failed: %v", err)
			}
		}

		msgs, err := store.GetMessages(ctx, "msgs-1")
		if err != nil {
			t.Fatalf("GetMessages failed: %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("Expected 3 messages, got %d", len(msgs))
		}
		for i, c := range contents {
			if msgs[i].Content != c {
				t.Errorf("Message %d mismatch: got %q, want %q", i, msgs[i].Content, c)
			}
		}
	})

	t.Run("GetMessagesUnknownChat", func(t *testing.T) {
		msgs, err := store.GetMessages(ctx, "no-such-chat")
		if err != nil {
			t.Fatalf("GetMessages failed: %v", err)
		}
		if len(msgs) != 0 {
			t.Errorf("Expected no messages, got %d", len(msgs))
		}
	})

	t.Run("MessagesWithoutResult", func(t *testing.T) {
		msg := types.NewUserMessage("streamed before the chat finished")
		if err := store.SaveMessage(ctx, "inflight-1", msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}

		if _, err := store.GetResult(ctx, "inflight-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for unarchived chat, got %v", err)
		}
		msgs, err := store.GetMessages(ctx, "inflight-1")
		if err != nil {
			t.Fatalf("GetMessages failed: %v", err)
		}
		if len(msgs) != 1 {
			t.Errorf("Expected 1 message, got %d", len(msgs))
		}
	})

	t.Run("DeleteChat", func(t *testing.T) {
		if err := store.SaveResult(ctx, sampleResult("del-1", "to delete")); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
		if err := store.SaveMessage(ctx, "del-1", types.NewUserMessage("bye")); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}

		if err := store.DeleteChat(ctx, "del-1"); err != nil {
			t.Fatalf("DeleteChat failed: %v", err)
		}
		if _, err := store.GetResult(ctx, "del-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Result should be deleted, got %v", err)
		}
		msgs, err := store.GetMessages(ctx, "del-1")
		if err != nil {
			t.Fatalf("GetMessages failed: %v", err)
		}
		if len(msgs) != 0 {
			t.Errorf("Messages should be deleted, got %d", len(msgs))
		}

		if err := store.DeleteChat(ctx, "del-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Second delete should report ErrNotFound, got %v", err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		if err := store.SaveResult(ctx, sampleResult("stats-1", "counted")); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
		if err := store.SaveMessage(ctx, "stats-1", types.NewUserMessage("counted")); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Chats == 0 {
			t.Error("Expected some chats in stats")
		}
		if stats.Messages == 0 {
			t.Error("Expected some messages in stats")
		}
	})

	t.Run("DeleteOlderThan", func(t *testing.T) {
		if err := store.SaveResult(ctx, sampleResult("old-1", "expired")); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
		cutoff := time.Now()
		time.Sleep(50 * time.Millisecond)
		if err := store.SaveResult(ctx, sampleResult("new-1", "kept")); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}

		cleaner, ok := store.(interface {
			DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
		})
		if !ok {
			t.Fatal("Store does not support retention cleanup")
		}
		count, err := cleaner.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			t.Fatalf("DeleteOlderThan failed: %v", err)
		}
		if count == 0 {
			t.Error("Expected at least one chat to be cleaned up")
		}

		if _, err := store.GetResult(ctx, "old-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Old chat should be cleaned up, got %v", err)
		}
		if _, err := store.GetResult(ctx, "new-1"); err != nil {
			t.Errorf("Chat saved after cutoff should survive: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(DefaultStoreConfig())
	defer store.Close()

	runChatStoreTests(t, store)

	t.Run("ClosedStore", func(t *testing.T) {
		if err := store.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		// Close is idempotent
		if err := store.Close(); err != nil {
			t.Fatalf("Second close failed: %v", err)
		}
		if err := store.Ping(context.Background()); !errors.Is(err, ErrStoreClosed) {
			t.Errorf("Expected ErrStoreClosed, got %v", err)
		}
	})
}

func TestFileStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chatstore-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	config := DefaultStoreConfig()
	config.Type = StoreTypeFile
	config.BaseDir = tmpDir

	store, err := NewFileStore(config)
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	defer store.Close()

	runChatStoreTests(t, store)

	t.Run("RejectsBadChatID", func(t *testing.T) {
		ctx := context.Background()
		for _, id := range []string{"../escape", "a/b", `a\b`} {
			err := store.SaveResult(ctx, sampleResult(id, "bad"))
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput for %q, got %v", id, err)
			}
		}
	})

	t.Run("PersistenceAcrossRestart", func(t *testing.T) {
		ctx := context.Background()
		if err := store.SaveResult(ctx, sampleResult("persist-1", "survives restart")); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
		if err := store.SaveMessage(ctx, "persist-1", types.NewUserMessage("still here")); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
		store.Close()

		store2, err := NewFileStore(config)
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		defer store2.Close()

		retrieved, err := store2.GetResult(ctx, "persist-1")
		if err != nil {
			t.Fatalf("Result should persist: %v", err)
		}
		if retrieved.Summary != "survives restart" {
			t.Errorf("Summary mismatch after restart: got %q", retrieved.Summary)
		}
		msgs, err := store2.GetMessages(ctx, "persist-1")
		if err != nil {
			t.Fatalf("GetMessages failed: %v", err)
		}
		if len(msgs) != 1 || msgs[0].Content != "still here" {
			t.Errorf("Messages should persist, got %v", msgs)
		}
	})
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	config := DefaultStoreConfig()
	config.Type = StoreTypeRedis
	config.Redis.Addr = mr.Addr()

	store, err := NewRedisStore(config)
	if err != nil {
		t.Fatalf("Failed to create redis store: %v", err)
	}
	defer store.Close()

	runChatStoreTests(t, store)
}

func TestGormStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}

	store, err := NewGormStore(db, DefaultStoreConfig())
	if err != nil {
		t.Fatalf("Failed to create gorm store: %v", err)
	}
	defer store.Close()

	runChatStoreTests(t, store)

	t.Run("NilDB", func(t *testing.T) {
		if _, err := NewGormStore(nil, DefaultStoreConfig()); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestCursorHelpers(t *testing.T) {
	t.Run("ParseEmpty", func(t *testing.T) {
		offset, err := parseCursor("")
		if err != nil || offset != 0 {
			t.Errorf("Empty cursor should parse to 0, got %d, %v", offset, err)
		}
	})

	t.Run("ParseInvalid", func(t *testing.T) {
		for _, cursor := range []string{"abc", "-3", "1.5"} {
			if _, err := parseCursor(cursor); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput for %q, got %v", cursor, err)
			}
		}
	})

	t.Run("NextCursor", func(t *testing.T) {
		if got := nextCursor(0, 2, 2); got != "2" {
			t.Errorf("Full page should continue, got %q", got)
		}
		if got := nextCursor(4, 1, 2); got != "" {
			t.Errorf("Short page should stop, got %q", got)
		}
	})
}

func TestFactory(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		config := DefaultStoreConfig()
		config.Type = StoreTypeMemory

		store, err := NewChatStore(config, nil)
		if err != nil {
			t.Fatalf("Failed to create memory store: %v", err)
		}
		defer store.Close()

		if _, ok := store.(*MemoryStore); !ok {
			t.Error("Expected MemoryStore")
		}
	})

	t.Run("File", func(t *testing.T) {
		tmpDir, _ := os.MkdirTemp("", "factory-test-*")
		defer os.RemoveAll(tmpDir)

		config := DefaultStoreConfig()
		config.Type = StoreTypeFile
		config.BaseDir = tmpDir

		store, err := NewChatStore(config, nil)
		if err != nil {
			t.Fatalf("Failed to create file store: %v", err)
		}
		defer store.Close()

		if _, ok := store.(*FileStore); !ok {
			t.Error("Expected FileStore")
		}
	})

	t.Run("Database", func(t *testing.T) {
		db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:factory-%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{})
		if err != nil {
			t.Fatalf("Failed to open sqlite: %v", err)
		}

		config := DefaultStoreConfig()
		config.Type = StoreTypeDatabase

		store, err := NewChatStore(config, db)
		if err != nil {
			t.Fatalf("Failed to create database store: %v", err)
		}
		defer store.Close()

		if _, ok := store.(*GormStore); !ok {
			t.Error("Expected GormStore")
		}
	})

	t.Run("DatabaseWithoutHandle", func(t *testing.T) {
		config := DefaultStoreConfig()
		config.Type = StoreTypeDatabase

		if _, err := NewChatStore(config, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("InvalidType", func(t *testing.T) {
		config := DefaultStoreConfig()
		config.Type = "invalid"

		if _, err := NewChatStore(config, nil); err == nil {
			t.Error("Expected error for invalid type")
		}
	})
}
