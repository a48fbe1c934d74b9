package coretools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/harun/coda/pkg/dispatcher"
)

const defaultExecTimeout = 30 * time.Second

func execTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "exec",
		Description: "Execute a shell command in the workspace.",
		Category:    dispatcher.CategoryShell,
		Mutating:    true,
		Parameters: []dispatcher.ToolParameter{
			{Name: "command", Type: "string", Description: "Command to execute", Required: true},
			{Name: "cwd", Type: "string", Description: "Working directory (relative to workspace)", Required: false},
			{Name: "timeout", Type: "number", Description: "Timeout in seconds", Required: false},
			{Name: "stdin", Type: "string", Description: "Standard input", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			command, _ := params["command"].(string)
			command = strings.TrimSpace(command)
			if command == "" {
				return nil, fmt.Errorf("command is required")
			}

			root, err := resolveWorkspaceRoot(ctx, opts)
			if err != nil {
				return nil, err
			}

			cwd := root
			if raw, ok := params["cwd"].(string); ok && strings.TrimSpace(raw) != "" {
				cwd, err = resolvePathInWorkspace(root, raw)
				if err != nil {
					return nil, err
				}
			}

			timeout := parseDurationSeconds(params["timeout"], defaultExecTimeout)
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "sh", "-c", command)
			cmd.Dir = cwd
			// Run the shell in its own process group and kill the whole
			// group on expiry, so grandchildren holding the output pipes
			// cannot outlive the timeout. WaitDelay bounds the pipe drain
			// if anything survives the kill.
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
			cmd.Cancel = func() error {
				return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			cmd.WaitDelay = time.Second
			if stdin, ok := params["stdin"].(string); ok && stdin != "" {
				cmd.Stdin = strings.NewReader(stdin)
			}

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			runErr := cmd.Run()
			if runCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("command timed out after %s", timeout)
			}

			exitCode := 0
			if runErr != nil {
				if exitErr, ok := runErr.(*exec.ExitError); ok {
					exitCode = exitErr.ExitCode()
				} else {
					return nil, runErr
				}
			}

			return map[string]interface{}{
				"stdout":    stdout.String(),
				"stderr":    stderr.String(),
				"exit_code": exitCode,
			}, nil
		},
	}
}

func parseDurationSeconds(value interface{}, fallback time.Duration) time.Duration {
	if v, ok := value.(float64); ok && v > 0 {
		return time.Duration(v * float64(time.Second))
	}
	return fallback
}
