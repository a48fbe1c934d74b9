package permission

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestGate(t *testing.T, handler ApprovalHandler) (*Gate, string) {
	t.Helper()

	tmpDir := t.TempDir()
	storePath := filepath.Join(tmpDir, "permissions.json")

	gate, err := NewGate(Config{
		StorePath: storePath,
		Handler:   handler,
		Logger:    zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
	require.NoError(t, err)

	return gate, storePath
}

func TestCheck(t *testing.T) {
	t.Run("should return needs approval without records", func(t *testing.T) {
		gate, _ := setupTestGate(t, nil)

		assert.Equal(t, NeedsApproval, gate.Check("shell", "rm -rf /"))
	})

	t.Run("should allow after persisted approval of a prefix", func(t *testing.T) {
		gate, _ := setupTestGate(t, nil)

		require.NoError(t, gate.Approve("shell", "rm -rf", Allow, true))

		assert.Equal(t, Allow, gate.Check("shell", "rm -rf /tmp/x"))
		assert.Equal(t, NeedsApproval, gate.Check("shell", "shutdown now"))
	})

	t.Run("should let most specific scope win", func(t *testing.T) {
		gate, _ := setupTestGate(t, nil)

		require.NoError(t, gate.Approve("write", "/repo", Allow, false))
		require.NoError(t, gate.Approve("write", "/repo/vendor", Deny, false))

		assert.Equal(t, Allow, gate.Check("write", "/repo/main.go"))
		assert.Equal(t, Deny, gate.Check("write", "/repo/vendor/lib.go"))
	})

	t.Run("should let deny win ties", func(t *testing.T) {
		gate, _ := setupTestGate(t, nil)

		require.NoError(t, gate.Approve("shell", "git ", Allow, false))
		require.NoError(t, gate.Approve("shell", "git ", Deny, false))

		assert.Equal(t, Deny, gate.Check("shell", "git push --force"))
	})

	t.Run("should not match across categories", func(t *testing.T) {
		gate, _ := setupTestGate(t, nil)

		require.NoError(t, gate.Approve("shell", "/tmp", Allow, false))

		assert.Equal(t, NeedsApproval, gate.Check("write", "/tmp/file"))
	})
}

func TestApprovePersistence(t *testing.T) {
	t.Run("should survive reopening the store", func(t *testing.T) {
		gate, storePath := setupTestGate(t, nil)

		require.NoError(t, gate.Approve("shell", "go test", Allow, true))
		require.NoError(t, gate.Close())

		reopened, err := NewGate(Config{
			StorePath: storePath,
			Logger:    zerolog.New(os.Stdout).Level(zerolog.Disabled),
		})
		require.NoError(t, err)

		assert.Equal(t, Allow, reopened.Check("shell", "go test ./..."))
	})

	t.Run("should clear session records on reset", func(t *testing.T) {
		gate, _ := setupTestGate(t, nil)

		require.NoError(t, gate.Approve("write", "/tmp", Allow, false))
		assert.Equal(t, Allow, gate.Check("write", "/tmp/a"))

		gate.ResetSession()
		assert.Equal(t, NeedsApproval, gate.Check("write", "/tmp/a"))
	})
}

type recordingHandler struct {
	response Response
	requests []Request
}

func (h *recordingHandler) RequestApproval(_ context.Context, req Request) (Response, error) {
	h.requests = append(h.requests, req)
	return h.response, nil
}

func TestResolve(t *testing.T) {
	t.Run("should escalate to handler when interactive", func(t *testing.T) {
		handler := &recordingHandler{response: Response{Approved: true}}
		gate, _ := setupTestGate(t, handler)

		decision, err := gate.Resolve(context.Background(), Request{
			Tool: "exec", Category: "shell", Scope: "make build",
		}, true)

		require.NoError(t, err)
		assert.Equal(t, Allow, decision)
		assert.Len(t, handler.requests, 1)
	})

	t.Run("should deny in non-interactive context without prompting", func(t *testing.T) {
		handler := &recordingHandler{response: Response{Approved: true}}
		gate, _ := setupTestGate(t, handler)

		decision, err := gate.Resolve(context.Background(), Request{
			Tool: "exec", Category: "shell", Scope: "make build",
		}, false)

		require.NoError(t, err)
		assert.Equal(t, Deny, decision)
		assert.Empty(t, handler.requests)
	})

	t.Run("should not re-prompt after remembered approval", func(t *testing.T) {
		handler := &recordingHandler{response: Response{Approved: true, Remember: true}}
		gate, _ := setupTestGate(t, handler)

		req := Request{Tool: "exec", Category: "shell", Scope: "make build"}

		_, err := gate.Resolve(context.Background(), req, true)
		require.NoError(t, err)

		decision, err := gate.Resolve(context.Background(), req, true)
		require.NoError(t, err)

		assert.Equal(t, Allow, decision)
		assert.Len(t, handler.requests, 1)
	})

	t.Run("should respect stored deny without prompting", func(t *testing.T) {
		handler := &recordingHandler{response: Response{Approved: true}}
		gate, _ := setupTestGate(t, handler)

		require.NoError(t, gate.Approve("shell", "rm", Deny, false))

		decision, err := gate.Resolve(context.Background(), Request{
			Tool: "exec", Category: "shell", Scope: "rm -rf /",
		}, true)

		require.NoError(t, err)
		assert.Equal(t, Deny, decision)
		assert.Empty(t, handler.requests)
	})
}

func TestObserver(t *testing.T) {
	t.Run("should report every resolved decision", func(t *testing.T) {
		obs := &recordingObserver{}
		gate, err := NewGate(Config{
			StorePath: filepath.Join(t.TempDir(), "permissions.json"),
			Handler:   AllowAllHandler{},
			Observer:  obs,
			Logger:    zerolog.New(os.Stdout).Level(zerolog.Disabled),
		})
		require.NoError(t, err)

		_, err = gate.Resolve(context.Background(), Request{
			Tool: "write_file", Category: "write", Scope: "/work/a.go",
		}, true)
		require.NoError(t, err)

		_, err = gate.Resolve(context.Background(), Request{
			Tool: "exec", Category: "shell", Scope: "make test",
		}, false)
		require.NoError(t, err)

		require.Len(t, obs.decisions, 2)
		assert.Equal(t, [2]string{"write", "allow"}, obs.decisions[0])
		assert.Equal(t, [2]string{"shell", "deny"}, obs.decisions[1])
	})
}

type recordingObserver struct {
	decisions [][2]string
}

func (o *recordingObserver) RecordPermissionDecision(category, decision string) {
	o.decisions = append(o.decisions, [2]string{category, decision})
}

func TestRemember(t *testing.T) {
	t.Run("should cache allow for the session only", func(t *testing.T) {
		gate, storePath := setupTestGate(t, nil)

		gate.Remember("write", "/work/file.go")
		assert.Equal(t, Allow, gate.Check("write", "/work/file.go"))

		_, err := os.Stat(storePath)
		assert.True(t, os.IsNotExist(err))
	})
}
