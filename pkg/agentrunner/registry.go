package agentrunner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Registry tracks agent run handles in memory and mirrors them to a JSON
// file. Status updates only move forward; a terminal handle never changes
// again.
type Registry struct {
	runs     map[string]*Handle
	path     string
	autoSave bool
	logger   zerolog.Logger
	mu       sync.RWMutex
	waiters  map[string][]chan struct{}
}

// RegistryConfig holds registry configuration.
type RegistryConfig struct {
	Path     string
	AutoSave bool
	Logger   zerolog.Logger
}

// NewRegistry creates a registry. An empty path defaults to
// ~/.coda/agents.json.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Path = filepath.Join(homeDir, ".coda", "agents.json")
	}

	r := &Registry{
		runs:     make(map[string]*Handle),
		path:     cfg.Path,
		autoSave: cfg.AutoSave,
		logger:   cfg.Logger,
		waiters:  make(map[string][]chan struct{}),
	}

	return r, nil
}

// Initialize loads persisted handles from disk. A missing or corrupt file
// starts an empty registry rather than failing.
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		r.logger.Info().Msg("Agent registry file does not exist, starting empty")
		return nil
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to read agent registry file")
		return nil
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		r.logger.Error().Err(err).Msg("Failed to parse agent registry file, starting empty")
		return nil
	}

	for _, run := range file.Runs {
		// In-flight runs from a previous process can never finish.
		if !run.Status.IsTerminal() {
			run.Status = StatusFailed
			run.Error = "process terminated before completion"
			now := nowMillis()
			run.CompletedAt = &now
		}
		r.runs[run.ID] = run
	}

	r.logger.Info().Int("runs", len(r.runs)).Msg("Agent registry loaded")
	return nil
}

// Close persists the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

// Register creates a handle in the Spawned state and returns its ID.
func (r *Registry) Register(handle Handle) (string, error) {
	runID, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}

	handle.ID = runID
	handle.Status = StatusSpawned
	handle.StartedAt = nowMillis()

	r.mu.Lock()
	r.runs[runID] = &handle
	if r.autoSave {
		if err := r.saveLocked(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to save agent registry after registration")
		}
	}
	r.mu.Unlock()

	r.logger.Info().
		Str("runId", runID).
		Str("agentType", handle.AgentType).
		Int("depth", handle.Depth).
		Msg("Agent run registered")

	return runID, nil
}

// UpdateStatus advances a handle's status. Backward transitions and
// updates to terminal handles are rejected.
func (r *Registry) UpdateStatus(runID string, status Status, result, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, exists := r.runs[runID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	if handle.Status.IsTerminal() {
		return fmt.Errorf("run %s is already %s", runID, handle.Status)
	}
	if statusRank(status) <= statusRank(handle.Status) {
		return fmt.Errorf("cannot move run %s from %s to %s", runID, handle.Status, status)
	}

	handle.Status = status
	if status.IsTerminal() {
		now := nowMillis()
		handle.CompletedAt = &now
		handle.Result = result
		handle.Error = errMsg
		r.notifyLocked(runID)
	}

	if r.autoSave {
		if err := r.saveLocked(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to save agent registry after status update")
		}
	}

	r.logger.Info().
		Str("runId", runID).
		Str("status", string(status)).
		Msg("Agent run status updated")

	return nil
}

// Get returns a copy of a handle.
func (r *Registry) Get(runID string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, exists := r.runs[runID]
	if !exists {
		return Handle{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return *handle, nil
}

// List returns copies of all handles.
func (r *Registry) List() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.runs))
	for _, handle := range r.runs {
		handles = append(handles, *handle)
	}
	return handles
}

// ListChildren returns the direct children of a session.
func (r *Registry) ListChildren(sessionKey string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	children := []Handle{}
	for _, handle := range r.runs {
		if handle.ParentSession == sessionKey {
			children = append(children, *handle)
		}
	}
	return children
}

// CountActive counts non-terminal runs spawned by a session.
func (r *Registry) CountActive(sessionKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, handle := range r.runs {
		if handle.ParentSession == sessionKey && !handle.Status.IsTerminal() {
			count++
		}
	}
	return count
}

// Done returns a channel closed when the run reaches a terminal state.
// Already-terminal runs yield a closed channel.
func (r *Registry) Done(runID string) (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, exists := r.runs[runID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	ch := make(chan struct{})
	if handle.Status.IsTerminal() {
		close(ch)
		return ch, nil
	}

	r.waiters[runID] = append(r.waiters[runID], ch)
	return ch, nil
}

func (r *Registry) notifyLocked(runID string) {
	for _, ch := range r.waiters[runID] {
		close(ch)
	}
	delete(r.waiters, runID)
}

// Cleanup removes terminal runs older than the retention window.
func (r *Registry) Cleanup(retentionMs int64) (int, error) {
	if retentionMs <= 0 {
		retentionMs = 7 * 24 * 60 * 60 * 1000
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := nowMillis() - retentionMs
	removed := 0

	for runID, handle := range r.runs {
		if !handle.Status.IsTerminal() {
			continue
		}
		if handle.CompletedAt != nil && *handle.CompletedAt < cutoff {
			delete(r.runs, runID)
			removed++
		}
	}

	if r.autoSave && removed > 0 {
		if err := r.saveLocked(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to save agent registry after cleanup")
		}
	}

	r.logger.Info().Int("removed", removed).Msg("Agent registry cleanup completed")
	return removed, nil
}

// GetStats summarizes the registry.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{TotalRuns: len(r.runs)}
	for _, handle := range r.runs {
		switch handle.Status {
		case StatusSpawned, StatusRunning:
			stats.ActiveRuns++
		case StatusCompleted:
			stats.CompletedRuns++
		case StatusFailed:
			stats.FailedRuns++
		case StatusCancelled:
			stats.CancelledRuns++
		}
	}
	return stats
}

// saveLocked writes the registry atomically. Persistence failures are
// logged, never fatal.
func (r *Registry) saveLocked() error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		r.logger.Error().Err(err).Msg("Failed to create agent registry directory")
		return nil
	}

	runs := make([]*Handle, 0, len(r.runs))
	for _, handle := range r.runs {
		runs = append(runs, handle)
	}

	file := registryFile{
		Version:     1,
		Runs:        runs,
		LastUpdated: nowMillis(),
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to marshal agent registry")
		return nil
	}

	tempPath := r.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		r.logger.Error().Err(err).Msg("Failed to write temp agent registry file")
		return nil
	}
	if err := os.Rename(tempPath, r.path); err != nil {
		r.logger.Error().Err(err).Msg("Failed to rename agent registry file")
		os.Remove(tempPath)
		return nil
	}

	r.logger.Debug().Msg("Agent registry saved")
	return nil
}
