package history

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/coda/pkg/conversation"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir, zerolog.Nop())
	require.NoError(t, err)
	return store, dir
}

func TestAppendAndLoad(t *testing.T) {
	t.Run("should round-trip messages in order", func(t *testing.T) {
		store, _ := newTestStore(t)

		require.NoError(t, store.Append("sess1", conversation.Message{Role: "user", Content: "hello"}))
		require.NoError(t, store.Append("sess1", conversation.Message{Role: "assistant", Content: "hi there"}))
		require.NoError(t, store.Append("sess1", conversation.Message{Role: "tool", Content: "ok", ToolCallID: "c1"}))

		messages, err := store.Load("sess1")
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "user", messages[0].Role)
		assert.Equal(t, "hello", messages[0].Content)
		assert.Equal(t, "c1", messages[2].ToolCallID)
	})

	t.Run("should return empty for a missing session", func(t *testing.T) {
		store, _ := newTestStore(t)
		messages, err := store.Load("nope")
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("should skip a torn final line", func(t *testing.T) {
		store, dir := newTestStore(t)
		require.NoError(t, store.Append("sess1", conversation.Message{Role: "user", Content: "hello"}))

		f, err := os.OpenFile(filepath.Join(dir, "sess1.jsonl"), os.O_APPEND|os.O_WRONLY, 0600)
		require.NoError(t, err)
		_, err = f.WriteString(`{"sessionKey":"sess1","mess`)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		messages, err := store.Load("sess1")
		require.NoError(t, err)
		assert.Len(t, messages, 1)
	})

	t.Run("should reject a message with no role", func(t *testing.T) {
		store, _ := newTestStore(t)
		assert.Error(t, store.Append("sess1", conversation.Message{Content: "x"}))
	})

	t.Run("should serialize concurrent appends to one session", func(t *testing.T) {
		store, _ := newTestStore(t)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.Append("busy", conversation.Message{Role: "user", Content: "msg"})
			}()
		}
		wg.Wait()

		messages, err := store.Load("busy")
		require.NoError(t, err)
		assert.Len(t, messages, 20)
	})
}

func TestValidateSessionKey(t *testing.T) {
	store, _ := newTestStore(t)

	for _, key := range []string{"", "../escape", "a/b", `a\b`, "nul\x00byte"} {
		t.Run("should reject "+key, func(t *testing.T) {
			assert.Error(t, store.Append(key, conversation.Message{Role: "user", Content: "x"}))
		})
	}
}

func TestListAndDelete(t *testing.T) {
	t.Run("should list only jsonl sessions", func(t *testing.T) {
		store, dir := newTestStore(t)
		require.NoError(t, store.Append("a", conversation.Message{Role: "user", Content: "x"}))
		require.NoError(t, store.Append("b", conversation.Message{Role: "user", Content: "y"}))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0600))

		keys, err := store.List()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, keys)
	})

	t.Run("should delete a session", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Append("a", conversation.Message{Role: "user", Content: "x"}))
		require.NoError(t, store.Delete("a"))

		keys, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("should tolerate deleting a missing session", func(t *testing.T) {
		store, _ := newTestStore(t)
		assert.NoError(t, store.Delete("ghost"))
	})
}
