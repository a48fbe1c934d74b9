package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/harun/coda/pkg/dispatcher"
)

// State names one position in the session state machine.
type State int

const (
	StateIdle State = iota
	StateAwaitingModel
	StateExecutingTools
	StateDone
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal session failures.
var (
	ErrIterationLimit = errors.New("iteration limit exceeded")
	ErrCancelled      = errors.New("session cancelled")
)

// Message is one immutable conversation turn. The owning session appends
// messages exclusively; nothing mutates them afterwards.
type Message struct {
	Role       string                `json:"role"`
	Content    string                `json:"content"`
	ToolCalls  []dispatcher.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string                `json:"tool_call_id,omitempty"`
	IsError    bool                  `json:"is_error,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// Request is one model invocation.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []map[string]interface{}
	Temperature  float64
	MaxTokens    int
}

// Reply is the model's answer to a Request: text plus an ordered list of
// tool calls.
type Reply struct {
	Content   string
	ToolCalls []dispatcher.ToolCall
	Usage     *TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Transport is the model collaborator. Implementations stream internally;
// the session only sees the assembled reply.
type Transport interface {
	Send(ctx context.Context, request Request) (*Reply, error)
	Provider() string
}

// ToolRunner is the session's window onto the tool registry. Implemented
// by *dispatcher.Dispatcher and *dispatcher.View.
type ToolRunner interface {
	Dispatch(ctx context.Context, call dispatcher.ToolCall, execCtx *dispatcher.ExecContext) dispatcher.ToolResult
	SchemaList() []map[string]interface{}
}

// Result is the outcome of a completed session run.
type Result struct {
	Output    string
	Rounds    int
	ToolCalls []dispatcher.ToolCall
	Usage     TokenUsage
}
