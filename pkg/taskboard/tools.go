package taskboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/harun/coda/pkg/dispatcher"
)

// RegisterTools exposes the board to agents as four ordinary tools.
func RegisterTools(d *dispatcher.Dispatcher, board *Board) error {
	tools := []dispatcher.ToolDefinition{
		createTool(board),
		updateTool(board),
		listTool(board),
		getTool(board),
	}

	for _, tool := range tools {
		if err := d.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func createTool(board *Board) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "task_create",
		Description: "Create a new task to track work. Use for complex multi-step tasks.",
		Category:    dispatcher.CategoryTask,
		Parameters: []dispatcher.ToolParameter{
			{Name: "title", Type: "string", Description: "Brief title for the task (imperative form, e.g. 'Fix login bug')", Required: true},
			{Name: "notes", Type: "string", Description: "Detailed description of what needs to be done"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			title, _ := params["title"].(string)
			notes, _ := params["notes"].(string)

			owner := ""
			if execCtx := dispatcher.ExecContextFromContext(ctx); execCtx != nil {
				owner = execCtx.AgentID
			}

			task, err := board.Create(title, notes, owner)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Task #%d created: %s", task.ID, task.Title), nil
		},
	}
}

func updateTool(board *Board) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "task_update",
		Description: "Update a task's status or notes. Set status to 'in_progress' when starting, 'completed' when done.",
		Category:    dispatcher.CategoryTask,
		Parameters: []dispatcher.ToolParameter{
			{Name: "task_id", Type: "string", Description: "The task id to update", Required: true},
			{Name: "status", Type: "string", Description: "New status for the task",
				Enum: []string{"pending", "in_progress", "completed", "cancelled"}},
			{Name: "notes", Type: "string", Description: "New notes for the task"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			id, err := parseTaskID(params["task_id"])
			if err != nil {
				return nil, err
			}

			status, _ := params["status"].(string)
			notes, _ := params["notes"].(string)

			task, err := board.Update(id, Status(status), notes)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Task #%d updated: %s [%s]", task.ID, task.Title, task.Status), nil
		},
	}
}

func listTool(board *Board) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "task_list",
		Description: "List all current tasks with their status, in creation order.",
		Category:    dispatcher.CategoryTask,
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			tasks := board.List()
			if len(tasks) == 0 {
				return "No tasks found", nil
			}

			lines := make([]string, 0, len(tasks))
			for _, task := range tasks {
				line := fmt.Sprintf("#%d [%s] %s", task.ID, task.Status, task.Title)
				if task.Owner != "" {
					line += fmt.Sprintf(" (owner: %s)", task.Owner)
				}
				lines = append(lines, line)
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func getTool(board *Board) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "task_get",
		Description: "Get full details of a specific task.",
		Category:    dispatcher.CategoryTask,
		Parameters: []dispatcher.ToolParameter{
			{Name: "task_id", Type: "string", Description: "The task id to retrieve", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			id, err := parseTaskID(params["task_id"])
			if err != nil {
				return nil, err
			}

			task, err := board.Get(id)
			if err != nil {
				return nil, err
			}

			lines := []string{
				fmt.Sprintf("Task #%d: %s", task.ID, task.Title),
				fmt.Sprintf("Status: %s", task.Status),
			}
			if task.Notes != "" {
				lines = append(lines, fmt.Sprintf("Notes: %s", task.Notes))
			}
			if task.Owner != "" {
				lines = append(lines, fmt.Sprintf("Owner: %s", task.Owner))
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func parseTaskID(value interface{}) (int64, error) {
	switch v := value.(type) {
	case string:
		id, err := strconv.ParseInt(strings.TrimPrefix(v, "#"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid task id %q", v)
		}
		return id, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("invalid task id %v", value)
	}
}
