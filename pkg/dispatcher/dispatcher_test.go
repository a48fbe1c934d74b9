package dispatcher

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/coda/pkg/permission"
)

type fakeGate struct {
	decision   permission.Decision
	resolved   []permission.Request
	remembered []string
}

func (g *fakeGate) Resolve(_ context.Context, req permission.Request, _ bool) (permission.Decision, error) {
	g.resolved = append(g.resolved, req)
	return g.decision, nil
}

func (g *fakeGate) Remember(category, scope string) {
	g.remembered = append(g.remembered, category+":"+scope)
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func echoTool(calls *atomic.Int64) ToolDefinition {
	return ToolDefinition{
		Name:        "echo",
		Description: "Echo the input back",
		Category:    CategoryGeneral,
		Parameters: []ToolParameter{
			{Name: "input", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			if calls != nil {
				calls.Add(1)
			}
			return params["input"], nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})

		require.NoError(t, d.Register(echoTool(nil)))
		assert.Equal(t, 1, d.Count())
		assert.NotNil(t, d.Get("echo"))
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})

		require.NoError(t, d.Register(echoTool(nil)))
		err := d.Register(echoTool(nil))

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("should reject definition without handler", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})

		err := d.Register(ToolDefinition{Name: "broken", Description: "no handler"})

		assert.Error(t, err)
	})

	t.Run("should reject invalid parameter type", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})

		err := d.Register(ToolDefinition{
			Name:        "broken",
			Description: "bad param",
			Parameters:  []ToolParameter{{Name: "x", Type: "float"}},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return nil, nil
			},
		})

		assert.Error(t, err)
	})
}

func TestDispatch(t *testing.T) {
	t.Run("should invoke handler exactly once and carry the call id", func(t *testing.T) {
		var calls atomic.Int64
		d := New(Config{Logger: testLogger()})
		require.NoError(t, d.Register(echoTool(&calls)))

		result := d.Dispatch(context.Background(), ToolCall{
			ID:        "call-1",
			Name:      "echo",
			Arguments: map[string]interface{}{"input": "hello"},
		}, nil)

		assert.Equal(t, int64(1), calls.Load())
		assert.Equal(t, "call-1", result.ToolCallID)
		assert.False(t, result.IsError)
		assert.Equal(t, "hello", result.Content)
	})

	t.Run("should return error result for unknown tool", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})

		result := d.Dispatch(context.Background(), ToolCall{ID: "c", Name: "missing"}, nil)

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "tool not found")
	})

	t.Run("should return error result on schema mismatch without running handler", func(t *testing.T) {
		var calls atomic.Int64
		d := New(Config{Logger: testLogger()})
		require.NoError(t, d.Register(echoTool(&calls)))

		result := d.Dispatch(context.Background(), ToolCall{
			ID:        "c",
			Name:      "echo",
			Arguments: map[string]interface{}{"input": 42},
		}, nil)

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "validation")
		assert.Equal(t, int64(0), calls.Load())
	})

	t.Run("should reject missing required argument", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})
		require.NoError(t, d.Register(echoTool(nil)))

		result := d.Dispatch(context.Background(), ToolCall{ID: "c", Name: "echo"}, nil)

		assert.True(t, result.IsError)
	})

	t.Run("should recover handler panic as error result", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})
		require.NoError(t, d.Register(ToolDefinition{
			Name:        "boom",
			Description: "Always panics",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				panic("kaboom")
			},
		}))

		result := d.Dispatch(context.Background(), ToolCall{ID: "c", Name: "boom"}, nil)

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "panicked")
	})

	t.Run("should time out slow handlers", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})
		require.NoError(t, d.Register(ToolDefinition{
			Name:        "slow",
			Description: "Sleeps past the deadline",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				select {
				case <-time.After(5 * time.Second):
					return "done", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		}))

		result := d.Dispatch(context.Background(), ToolCall{ID: "c", Name: "slow"},
			&ExecContext{Timeout: 20 * time.Millisecond})

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "timeout")
	})

	t.Run("should report caller cancellation as cancelled, not timeout", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})
		started := make(chan struct{})
		require.NoError(t, d.Register(ToolDefinition{
			Name:        "stuck",
			Description: "Blocks until the test ends",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				close(started)
				time.Sleep(5 * time.Second)
				return "done", nil
			},
		}))

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-started
			cancel()
		}()

		result := d.Dispatch(ctx, ToolCall{ID: "c", Name: "stuck"},
			&ExecContext{Timeout: time.Minute})

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "cancelled")
		assert.NotContains(t, result.Content, "timeout")
	})

	t.Run("should truncate oversized output", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})
		require.NoError(t, d.Register(ToolDefinition{
			Name:        "huge",
			Description: "Returns a lot of text",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return strings.Repeat("x", maxOutputBytes*2), nil
			},
		}))

		result := d.Dispatch(context.Background(), ToolCall{ID: "c", Name: "huge"}, nil)

		assert.False(t, result.IsError)
		assert.True(t, result.Truncated)
		assert.Contains(t, result.Content, "[output truncated]")
	})
}

func mutatingTool(executed *atomic.Int64) ToolDefinition {
	return ToolDefinition{
		Name:        "write_file",
		Description: "Write a file",
		Category:    CategoryWrite,
		Mutating:    true,
		Parameters: []ToolParameter{
			{Name: "path", Type: "string", Description: "Target path", Required: true},
			{Name: "content", Type: "string", Description: "File content", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			if executed != nil {
				executed.Add(1)
			}
			return "written", nil
		},
	}
}

func TestDispatchPermissions(t *testing.T) {
	t.Run("should block denied mutating call without running handler", func(t *testing.T) {
		var executed atomic.Int64
		gate := &fakeGate{decision: permission.Deny}
		d := New(Config{Gate: gate, Logger: testLogger()})
		require.NoError(t, d.Register(mutatingTool(&executed)))

		result := d.Dispatch(context.Background(), ToolCall{
			ID:   "c",
			Name: "write_file",
			Arguments: map[string]interface{}{
				"path": "/etc/passwd", "content": "x",
			},
		}, nil)

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "permission denied")
		assert.Equal(t, int64(0), executed.Load())
		require.Len(t, gate.resolved, 1)
		assert.Equal(t, "/etc/passwd", gate.resolved[0].Scope)
		assert.Equal(t, "write", gate.resolved[0].Category)
	})

	t.Run("should run allowed mutating call and cache the scope", func(t *testing.T) {
		var executed atomic.Int64
		gate := &fakeGate{decision: permission.Allow}
		d := New(Config{Gate: gate, Logger: testLogger()})
		require.NoError(t, d.Register(mutatingTool(&executed)))

		result := d.Dispatch(context.Background(), ToolCall{
			ID:   "c",
			Name: "write_file",
			Arguments: map[string]interface{}{
				"path": "/work/a.go", "content": "x",
			},
		}, nil)

		assert.False(t, result.IsError)
		assert.Equal(t, int64(1), executed.Load())
		assert.Equal(t, []string{"write:/work/a.go"}, gate.remembered)
	})

	t.Run("should not consult gate for read-only tools", func(t *testing.T) {
		gate := &fakeGate{decision: permission.Deny}
		d := New(Config{Gate: gate, Logger: testLogger()})
		require.NoError(t, d.Register(echoTool(nil)))

		result := d.Dispatch(context.Background(), ToolCall{
			ID:        "c",
			Name:      "echo",
			Arguments: map[string]interface{}{"input": "hi"},
		}, nil)

		assert.False(t, result.IsError)
		assert.Empty(t, gate.resolved)
	})
}

func TestView(t *testing.T) {
	t.Run("should hide tools outside the allow list", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})
		require.NoError(t, d.Register(echoTool(nil)))
		require.NoError(t, d.Register(mutatingTool(nil)))

		view := d.View([]string{"echo"})

		assert.True(t, view.Allowed("echo"))
		assert.False(t, view.Allowed("write_file"))
		assert.Equal(t, []string{"echo"}, view.List())
		assert.Len(t, view.SchemaList(), 1)

		result := view.Dispatch(context.Background(), ToolCall{
			ID:   "c",
			Name: "write_file",
			Arguments: map[string]interface{}{
				"path": "/x", "content": "y",
			},
		}, nil)

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "not available")
	})

	t.Run("should expose everything with empty allow list", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})
		require.NoError(t, d.Register(echoTool(nil)))

		view := d.View(nil)

		assert.True(t, view.Allowed("echo"))
		assert.Len(t, view.SchemaList(), 1)
	})

	t.Run("should run overrides instead of handlers and skip the gate", func(t *testing.T) {
		var executed atomic.Int64
		gate := &fakeGate{decision: permission.Deny}
		d := New(Config{Gate: gate, Logger: testLogger()})
		require.NoError(t, d.Register(mutatingTool(&executed)))

		view := d.View(nil).WithOverrides(map[string]ToolHandler{
			"write_file": func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return fmt.Sprintf("recorded write to %v", params["path"]), nil
			},
		})

		result := view.Dispatch(context.Background(), ToolCall{
			ID:   "c",
			Name: "write_file",
			Arguments: map[string]interface{}{
				"path": "/x", "content": "y",
			},
		}, nil)

		assert.False(t, result.IsError)
		assert.Contains(t, result.Content, "recorded write to /x")
		assert.Equal(t, int64(0), executed.Load())
		assert.Empty(t, gate.resolved)
	})

	t.Run("should still validate arguments for overridden tools", func(t *testing.T) {
		d := New(Config{Logger: testLogger()})
		require.NoError(t, d.Register(mutatingTool(nil)))

		view := d.View(nil).WithOverrides(map[string]ToolHandler{
			"write_file": func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return "recorded", nil
			},
		})

		result := view.Dispatch(context.Background(), ToolCall{
			ID:        "c",
			Name:      "write_file",
			Arguments: map[string]interface{}{"path": "/x"},
		}, nil)

		assert.True(t, result.IsError)
	})
}
