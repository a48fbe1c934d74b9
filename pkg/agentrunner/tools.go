package agentrunner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harun/coda/pkg/dispatcher"
)

const defaultFetchWait = 2 * time.Minute

// RegisterTools registers the sub-agent tools on a dispatcher. Specs is
// consulted for the spawn tool's description so the model sees the
// available agent types.
func RegisterTools(d *dispatcher.Dispatcher, runner *Runner, names []string) error {
	tools := []dispatcher.ToolDefinition{
		spawnTool(runner, names),
		outputTool(runner),
		cancelTool(runner),
	}

	for _, tool := range tools {
		if err := d.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func spawnTool(runner *Runner, names []string) dispatcher.ToolDefinition {
	sorted := append([]string{}, names...)
	sort.Strings(sorted)

	return dispatcher.ToolDefinition{
		Name:        "spawn_agent",
		Description: fmt.Sprintf("Spawn a sub-agent to work on a task. Available agent types: %s.", strings.Join(sorted, ", ")),
		Category:    dispatcher.CategoryAgent,
		Parameters: []dispatcher.ToolParameter{
			{Name: "agent_type", Type: "string", Description: "Agent type to spawn", Required: true, Enum: sorted},
			{Name: "input", Type: "string", Description: "Task for the sub-agent", Required: true},
			{Name: "background", Type: "boolean", Description: "Run in the background (default false)", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			agentType, _ := params["agent_type"].(string)
			input, _ := params["input"].(string)
			background, _ := params["background"].(bool)

			req := SpawnRequest{
				AgentType:  agentType,
				Input:      input,
				Background: background,
			}
			if execCtx := dispatcher.ExecContextFromContext(ctx); execCtx != nil {
				req.ParentSession = execCtx.SessionKey
				req.Depth = execCtx.Depth
				req.Plan = execCtx.Plan
			}

			runID, err := runner.Spawn(ctx, req)
			if err != nil {
				return nil, err
			}

			if background {
				return fmt.Sprintf("Agent %s spawned in background. Use agent_output with run_id %q to collect its result.", agentType, runID), nil
			}

			handle, err := runner.registry.Get(runID)
			if err != nil {
				return nil, err
			}
			if handle.Status == StatusFailed {
				return fmt.Sprintf("Agent %s failed: %s", agentType, handle.Error), nil
			}
			if handle.Status == StatusCancelled {
				return fmt.Sprintf("Agent %s was cancelled", agentType), nil
			}
			return handle.Result, nil
		},
	}
}

func outputTool(runner *Runner) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "agent_output",
		Description: "Fetch the result of a spawned agent run, waiting for completion if needed.",
		Category:    dispatcher.CategoryAgent,
		Parameters: []dispatcher.ToolParameter{
			{Name: "run_id", Type: "string", Description: "Run ID returned by spawn_agent", Required: true},
			{Name: "wait", Type: "boolean", Description: "Block until the run finishes (default true)", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			runID, _ := params["run_id"].(string)
			wait := true
			if raw, ok := params["wait"].(bool); ok {
				wait = raw
			}

			handle, err := runner.Fetch(ctx, runID, wait, defaultFetchWait)
			if err != nil {
				return nil, err
			}

			switch handle.Status {
			case StatusCompleted:
				return handle.Result, nil
			case StatusFailed:
				return fmt.Sprintf("Agent run %s failed: %s", runID, handle.Error), nil
			case StatusCancelled:
				return fmt.Sprintf("Agent run %s was cancelled", runID), nil
			default:
				return fmt.Sprintf("Agent run %s is still %s", runID, handle.Status), nil
			}
		},
	}
}

func cancelTool(runner *Runner) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "cancel_agent",
		Description: "Cancel an in-flight agent run.",
		Category:    dispatcher.CategoryAgent,
		Parameters: []dispatcher.ToolParameter{
			{Name: "run_id", Type: "string", Description: "Run ID returned by spawn_agent", Required: true},
		},
		Handler: func(_ context.Context, params map[string]interface{}) (interface{}, error) {
			runID, _ := params["run_id"].(string)
			if err := runner.Cancel(runID); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Cancellation requested for run %s", runID), nil
		},
	}
}
