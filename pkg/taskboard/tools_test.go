package taskboard

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/coda/pkg/dispatcher"
)

func setupToolBoard(t *testing.T) (*dispatcher.Dispatcher, *Board) {
	t.Helper()

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	board, err := NewBoard(Options{Logger: logger})
	require.NoError(t, err)

	d := dispatcher.New(dispatcher.Config{Logger: logger})
	require.NoError(t, RegisterTools(d, board))

	return d, board
}

func TestTaskTools(t *testing.T) {
	t.Run("should register all four entry points", func(t *testing.T) {
		d, _ := setupToolBoard(t)

		assert.Equal(t, 4, d.Count())
		for _, name := range []string{"task_create", "task_update", "task_list", "task_get"} {
			assert.NotNil(t, d.Get(name), name)
		}
	})

	t.Run("should create and list through the tool surface", func(t *testing.T) {
		d, board := setupToolBoard(t)

		result := d.Dispatch(context.Background(), dispatcher.ToolCall{
			ID:        "c1",
			Name:      "task_create",
			Arguments: map[string]interface{}{"title": "Fix login bug", "notes": "see issue 12"},
		}, nil)
		require.False(t, result.IsError, result.Content)
		assert.Contains(t, result.Content, "Task #1 created")

		result = d.Dispatch(context.Background(), dispatcher.ToolCall{
			ID:   "c2",
			Name: "task_list",
		}, nil)
		require.False(t, result.IsError)
		assert.Contains(t, result.Content, "#1 [pending] Fix login bug")

		assert.Equal(t, 1, board.Count())
	})

	t.Run("should record the calling agent as owner", func(t *testing.T) {
		d, board := setupToolBoard(t)

		execCtx := &dispatcher.ExecContext{AgentID: "explore"}
		result := d.Dispatch(context.Background(), dispatcher.ToolCall{
			ID:        "c",
			Name:      "task_create",
			Arguments: map[string]interface{}{"title": "Owned"},
		}, execCtx)
		require.False(t, result.IsError)

		task, err := board.Get(1)
		require.NoError(t, err)
		assert.Equal(t, "explore", task.Owner)
	})

	t.Run("should surface invalid transitions as tool errors", func(t *testing.T) {
		d, _ := setupToolBoard(t)

		d.Dispatch(context.Background(), dispatcher.ToolCall{
			ID:        "c1",
			Name:      "task_create",
			Arguments: map[string]interface{}{"title": "task"},
		}, nil)

		result := d.Dispatch(context.Background(), dispatcher.ToolCall{
			ID:        "c2",
			Name:      "task_update",
			Arguments: map[string]interface{}{"task_id": "1", "status": "completed"},
		}, nil)

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "invalid task transition")
	})

	t.Run("should reject unknown status at the schema", func(t *testing.T) {
		d, _ := setupToolBoard(t)

		result := d.Dispatch(context.Background(), dispatcher.ToolCall{
			ID:        "c",
			Name:      "task_update",
			Arguments: map[string]interface{}{"task_id": "1", "status": "deleted"},
		}, nil)

		assert.True(t, result.IsError)
	})

	t.Run("should get task details", func(t *testing.T) {
		d, _ := setupToolBoard(t)

		d.Dispatch(context.Background(), dispatcher.ToolCall{
			ID:        "c1",
			Name:      "task_create",
			Arguments: map[string]interface{}{"title": "Detailed", "notes": "all the details"},
		}, nil)

		result := d.Dispatch(context.Background(), dispatcher.ToolCall{
			ID:        "c2",
			Name:      "task_get",
			Arguments: map[string]interface{}{"task_id": "#1"},
		}, nil)

		require.False(t, result.IsError)
		assert.Contains(t, result.Content, "Task #1: Detailed")
		assert.Contains(t, result.Content, "Notes: all the details")
	})
}
