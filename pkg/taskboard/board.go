package taskboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal returns true if the status is terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
)

// Task is one tracked work item. Tasks are mutated only through the
// board; agents see them through the tool surface.
type Task struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// validTransitions is the full transition table. Anything absent is
// rejected, including InProgress back to Pending.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func transitionAllowed(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Board is the concurrency-safe task store shared by all running agents.
// Mutation goes through an exclusive lock; ids are assigned monotonically
// and listing preserves creation order.
type Board struct {
	tasks  map[int64]*Task
	order  []int64
	nextID int64
	store  *Store
	logger zerolog.Logger
	mu     sync.RWMutex
}

// Options holds board configuration.
type Options struct {
	// Store persists tasks across restarts. Nil keeps the board
	// memory-only.
	Store  *Store
	Logger zerolog.Logger
}

// NewBoard creates a board, loading persisted tasks when a store is set.
func NewBoard(opts Options) (*Board, error) {
	b := &Board{
		tasks:  make(map[int64]*Task),
		store:  opts.Store,
		logger: opts.Logger,
	}

	if b.store != nil {
		tasks, err := b.store.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load task store: %w", err)
		}
		for i := range tasks {
			task := tasks[i]
			b.tasks[task.ID] = &task
			b.order = append(b.order, task.ID)
			if task.ID > b.nextID {
				b.nextID = task.ID
			}
		}
		b.logger.Info().Int("tasks", len(tasks)).Msg("Task board loaded")
	}

	return b, nil
}

// Create adds a pending task with the next monotonically increasing id.
func (b *Board) Create(title, notes, owner string) (Task, error) {
	if title == "" {
		return Task{}, fmt.Errorf("task title cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	now := time.Now()
	task := &Task{
		ID:        b.nextID,
		Title:     title,
		Status:    StatusPending,
		Notes:     notes,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}

	b.tasks[task.ID] = task
	b.order = append(b.order, task.ID)

	if err := b.persistLocked(task); err != nil {
		b.logger.Error().Err(err).Int64("task", task.ID).Msg("Failed to persist task")
	}

	b.logger.Debug().Int64("task", task.ID).Str("title", title).Msg("Task created")

	return *task, nil
}

// Update applies a status transition and/or new notes. Invalid
// transitions fail with ErrInvalidTransition and leave the board
// unchanged.
func (b *Board) Update(id int64, status Status, notes string) (Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	task, exists := b.tasks[id]
	if !exists {
		return Task{}, fmt.Errorf("%w: #%d", ErrNotFound, id)
	}

	if status != "" && status != task.Status {
		if !status.Valid() {
			return Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
		}
		if !transitionAllowed(task.Status, status) {
			return Task{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, status)
		}
		task.Status = status
	}

	if notes != "" {
		task.Notes = notes
	}
	task.UpdatedAt = time.Now()

	if err := b.persistLocked(task); err != nil {
		b.logger.Error().Err(err).Int64("task", task.ID).Msg("Failed to persist task")
	}

	b.logger.Debug().Int64("task", id).Str("status", string(task.Status)).Msg("Task updated")

	return *task, nil
}

// Get returns a task by id.
func (b *Board) Get(id int64) (Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	task, exists := b.tasks[id]
	if !exists {
		return Task{}, fmt.Errorf("%w: #%d", ErrNotFound, id)
	}
	return *task, nil
}

// List returns all tasks in creation order.
func (b *Board) List() []Task {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tasks := make([]Task, 0, len(b.order))
	for _, id := range b.order {
		tasks = append(tasks, *b.tasks[id])
	}
	return tasks
}

// Count returns the number of tasks on the board.
func (b *Board) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tasks)
}

func (b *Board) persistLocked(task *Task) error {
	if b.store == nil {
		return nil
	}
	return b.store.Save(*task)
}
