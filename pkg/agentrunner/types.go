// Package agentrunner spawns and tracks sub-agent runs: bounded-depth
// child sessions executing over a restricted tool view.
package agentrunner

import (
	"errors"
	"time"
)

// MaxDepth bounds sub-agent nesting. A run at this depth cannot spawn
// further children.
const MaxDepth = 3

var (
	// ErrDepthExceeded is returned when a spawn would exceed MaxDepth.
	ErrDepthExceeded = errors.New("agent depth limit exceeded")
	// ErrNotFound is returned for unknown run IDs.
	ErrNotFound = errors.New("agent run not found")
	// ErrNotTerminal is returned when a result is requested from a run
	// that is still in flight.
	ErrNotTerminal = errors.New("agent run still in progress")
)

// Status is the lifecycle state of an agent run. Transitions only move
// forward: Spawned -> Running -> one terminal state.
type Status string

const (
	StatusSpawned   Status = "spawned"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func statusRank(s Status) int {
	switch s {
	case StatusSpawned:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 2
	default:
		return -1
	}
}

// Spec describes an agent type: what it may do and how it is prompted.
type Spec struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Color        string   `json:"color,omitempty" yaml:"color,omitempty"`
	AllowTools   []string `json:"allow_tools,omitempty" yaml:"allow_tools,omitempty"`
	Instructions string   `json:"instructions" yaml:"instructions"`
	Plan         bool     `json:"plan,omitempty" yaml:"plan,omitempty"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
}

// SpecSource resolves agent type names to specs. Implemented by the
// agent definition registry.
type SpecSource interface {
	Lookup(name string) (Spec, bool)
}

// Handle is the tracked record of one agent run.
type Handle struct {
	ID            string `json:"id"`
	AgentType     string `json:"agent_type"`
	ParentSession string `json:"parent_session,omitempty"`
	ChildSession  string `json:"child_session"`
	Input         string `json:"input"`
	Depth         int    `json:"depth"`
	Status        Status `json:"status"`
	StartedAt     int64  `json:"started_at"`
	CompletedAt   *int64 `json:"completed_at,omitempty"`
	Result        string `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Registry file format.
type registryFile struct {
	Version     int       `json:"version"`
	Runs        []*Handle `json:"runs"`
	LastUpdated int64     `json:"last_updated"`
}

// Stats summarizes the registry.
type Stats struct {
	TotalRuns     int `json:"total_runs"`
	ActiveRuns    int `json:"active_runs"`
	CompletedRuns int `json:"completed_runs"`
	FailedRuns    int `json:"failed_runs"`
	CancelledRuns int `json:"cancelled_runs"`
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
