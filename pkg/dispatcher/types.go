package dispatcher

import (
	"context"
	"errors"
	"time"
)

// Category groups tools for permission scoping. File categories use path
// prefixes as scope patterns, the shell category uses command prefixes.
type Category string

const (
	CategoryRead    Category = "read"
	CategoryWrite   Category = "write"
	CategoryShell   Category = "shell"
	CategoryTask    Category = "task"
	CategoryAgent   Category = "agent"
	CategoryNetwork Category = "network"
	CategoryGeneral Category = "general"
)

// Sentinel errors surfaced as error ToolResults, never as session failures.
var (
	ErrValidation       = errors.New("tool argument validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrToolNotFound     = errors.New("tool not found")
)

// ToolParameter defines a parameter for a tool.
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	Items       string      `json:"items,omitempty"` // element type for array parameters
}

// ToolHandler is the function signature for tool execution.
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ToolDefinition defines a tool's metadata and handler. Mutating tools are
// gated through the permission checker before their handler runs.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    Category        `json:"category"`
	Mutating    bool            `json:"mutating"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolCall is one invocation request produced by the model. IDs are unique
// within a round; each call is consumed exactly once.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult is the single result produced for a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// ExecContext provides runtime information for tool execution.
type ExecContext struct {
	SessionKey  string
	WorkingDir  string
	Timeout     time.Duration
	AgentID     string
	Depth       int
	Interactive bool
	// Plan marks calls issued from a plan-mode session. Sub-agents
	// spawned from such a call inherit plan mode so no descendant can
	// mutate the workspace.
	Plan bool
}
