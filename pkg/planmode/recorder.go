// Package planmode turns mutating tools into recorders so a session can
// draft a change set without touching the filesystem or spawning
// processes. The recorded changes render to a reviewable plan artifact.
package planmode

import (
	"fmt"
	"strings"
	"sync"
)

// ChangeKind classifies a recorded mutation.
type ChangeKind string

const (
	KindWrite   ChangeKind = "write"
	KindEdit    ChangeKind = "edit"
	KindCommand ChangeKind = "command"
)

// Change is one proposed mutation, in proposal order.
type Change struct {
	Seq     int        `json:"seq"`
	Kind    ChangeKind `json:"kind"`
	Path    string     `json:"path,omitempty"`
	Content string     `json:"content,omitempty"`
	OldText string     `json:"old_text,omitempty"`
	NewText string     `json:"new_text,omitempty"`
	Command string     `json:"command,omitempty"`
}

// Recorder accumulates proposed changes from a planning session.
type Recorder struct {
	changes []Change
	mu      sync.Mutex
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(change Change) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	change.Seq = len(r.changes) + 1
	r.changes = append(r.changes, change)
	return change.Seq
}

// Changes returns a copy of the recorded changes in proposal order.
func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	changes := make([]Change, len(r.changes))
	copy(changes, r.changes)
	return changes
}

// Len returns the number of recorded changes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

// Render produces the plan artifact: an ordered markdown document that
// carries enough detail to apply every change verbatim.
func (r *Recorder) Render() string {
	changes := r.Changes()

	var b strings.Builder
	b.WriteString("# Proposed Plan\n\n")

	if len(changes) == 0 {
		b.WriteString("No changes proposed.\n")
		return b.String()
	}

	for _, change := range changes {
		switch change.Kind {
		case KindWrite:
			fmt.Fprintf(&b, "## %d. Write `%s`\n\n", change.Seq, change.Path)
			fmt.Fprintf(&b, "```\n%s\n```\n\n", change.Content)
		case KindEdit:
			fmt.Fprintf(&b, "## %d. Edit `%s`\n\n", change.Seq, change.Path)
			fmt.Fprintf(&b, "Replace:\n\n```\n%s\n```\n\nWith:\n\n```\n%s\n```\n\n", change.OldText, change.NewText)
		case KindCommand:
			fmt.Fprintf(&b, "## %d. Run command\n\n", change.Seq)
			fmt.Fprintf(&b, "```sh\n%s\n```\n\n", change.Command)
		}
	}

	return b.String()
}
