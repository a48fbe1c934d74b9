package agentrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/coda/pkg/conversation"
	"github.com/harun/coda/pkg/dispatcher"
	"github.com/harun/coda/pkg/planmode"
)

// Observer receives run telemetry. Implemented by the metrics registry;
// a nil observer disables recording.
type Observer interface {
	RecordAgentRun(agentType string, duration time.Duration, status string)
}

// Runner spawns sub-agent sessions over restricted tool views and tracks
// them in the registry.
type Runner struct {
	dispatcher *dispatcher.Dispatcher
	transport  conversation.Transport
	registry   *Registry
	specs      SpecSource
	history    conversation.HistorySink
	model      string
	maxRounds  int
	workingDir string
	observer   Observer
	logger     zerolog.Logger

	cancels map[string]context.CancelFunc
	mu      sync.Mutex
}

// Config holds runner configuration.
type Config struct {
	Dispatcher *dispatcher.Dispatcher
	Transport  conversation.Transport
	Registry   *Registry
	Specs      SpecSource
	History    conversation.HistorySink
	Model      string
	MaxRounds  int
	WorkingDir string
	Observer   Observer
	Logger     zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Specs == nil {
		return nil, errors.New("spec source is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	return &Runner{
		dispatcher: cfg.Dispatcher,
		transport:  cfg.Transport,
		registry:   cfg.Registry,
		specs:      cfg.Specs,
		history:    cfg.History,
		model:      cfg.Model,
		maxRounds:  cfg.MaxRounds,
		workingDir: cfg.WorkingDir,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		cancels:    make(map[string]context.CancelFunc),
	}, nil
}

// SpawnRequest describes one sub-agent launch.
type SpawnRequest struct {
	AgentType     string
	Input         string
	ParentSession string
	Depth         int
	Background    bool
	// Plan is set when the spawning session runs in plan mode; the child
	// then runs plan-wrapped regardless of its own spec.
	Plan bool
}

// Spawn launches a sub-agent run and returns its handle ID. Background
// runs return immediately; foreground runs return after completion. The
// depth bound is enforced before any session state is created.
func (r *Runner) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	if req.Depth >= MaxDepth {
		return "", fmt.Errorf("%w: depth %d (max %d)", ErrDepthExceeded, req.Depth, MaxDepth)
	}

	spec, ok := r.specs.Lookup(req.AgentType)
	if !ok {
		return "", fmt.Errorf("unknown agent type: %s", req.AgentType)
	}

	runID, err := r.registry.Register(Handle{
		AgentType:     req.AgentType,
		ParentSession: req.ParentSession,
		ChildSession:  uuid.New().String(),
		Input:         req.Input,
		Depth:         req.Depth,
	})
	if err != nil {
		return "", err
	}

	if req.Background {
		// Background runs outlive the spawning call; they are cancelled
		// through Cancel, not through the parent's context.
		runCtx, cancel := context.WithCancel(context.Background())
		r.mu.Lock()
		r.cancels[runID] = cancel
		r.mu.Unlock()

		go func() {
			defer cancel()
			r.run(runCtx, runID, spec, req)
			r.mu.Lock()
			delete(r.cancels, runID)
			r.mu.Unlock()
		}()

		return runID, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[runID] = cancel
	r.mu.Unlock()

	r.run(runCtx, runID, spec, req)

	r.mu.Lock()
	delete(r.cancels, runID)
	r.mu.Unlock()
	cancel()

	return runID, nil
}

// run executes one agent session. Every failure mode lands in the
// registry; errors never propagate to the caller.
func (r *Runner) run(ctx context.Context, runID string, spec Spec, req SpawnRequest) {
	logger := r.logger.With().Str("runId", runID).Str("agentType", spec.Name).Logger()

	if err := r.registry.UpdateStatus(runID, StatusRunning, "", ""); err != nil {
		logger.Error().Err(err).Msg("Failed to mark agent run running")
		return
	}

	handle, err := r.registry.Get(runID)
	if err != nil {
		logger.Error().Err(err).Msg("Agent run vanished")
		return
	}

	view := r.dispatcher.View(spec.AllowTools)

	// Plan mode is transitive: a child spawned from a plan-mode session
	// runs plan-wrapped even when its own spec is not a plan spec.
	planActive := spec.Plan || req.Plan

	var recorder *planmode.Recorder
	if planActive {
		recorder = planmode.NewRecorder()
		view = planmode.Wrap(view, recorder)
	}

	model := r.model
	if spec.Model != "" {
		model = spec.Model
	}

	session, err := conversation.NewSession(conversation.Config{
		Transport:    r.transport,
		Tools:        view,
		Model:        model,
		SystemPrompt: spec.Instructions,
		MaxRounds:    r.maxRounds,
		SessionKey:   handle.ChildSession,
		WorkingDir:   r.workingDir,
		AgentID:      runID,
		Depth:        req.Depth + 1,
		Interactive:  false,
		Plan:         planActive,
		History:      r.history,
		Logger:       logger,
	})
	if err != nil {
		r.finish(runID, StatusFailed, "", err.Error())
		return
	}

	started := time.Now()
	result, err := session.Run(ctx, req.Input)

	var status Status
	switch {
	case errors.Is(err, conversation.ErrCancelled), errors.Is(err, context.Canceled):
		status = StatusCancelled
		r.finish(runID, status, "", "cancelled")
	case err != nil:
		status = StatusFailed
		r.finish(runID, status, "", err.Error())
	case spec.Plan:
		status = StatusCompleted
		r.finish(runID, status, recorder.Render(), "")
	case planActive && recorder.Len() > 0:
		// Inherited plan mode: surface the proposals the child recorded
		// so the planning parent sees them.
		status = StatusCompleted
		r.finish(runID, status, recorder.Render(), "")
	default:
		status = StatusCompleted
		r.finish(runID, status, result.Output, "")
	}

	if r.observer != nil {
		r.observer.RecordAgentRun(spec.Name, time.Since(started), string(status))
	}
}

func (r *Runner) finish(runID string, status Status, result, errMsg string) {
	if err := r.registry.UpdateStatus(runID, status, result, errMsg); err != nil {
		r.logger.Error().Str("runId", runID).Err(err).Msg("Failed to record agent run outcome")
	}
}

// Fetch returns a run's handle. With wait set it blocks until the run is
// terminal or the timeout elapses; a zero timeout waits on ctx alone.
func (r *Runner) Fetch(ctx context.Context, runID string, wait bool, timeout time.Duration) (Handle, error) {
	handle, err := r.registry.Get(runID)
	if err != nil {
		return Handle{}, err
	}
	if !wait || handle.Status.IsTerminal() {
		return handle, nil
	}

	done, err := r.registry.Done(runID)
	if err != nil {
		return Handle{}, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-done:
		return r.registry.Get(runID)
	case <-ctx.Done():
		return r.registry.Get(runID)
	}
}

// Cancel stops an in-flight run. Cancelling a terminal run is a no-op.
func (r *Runner) Cancel(runID string) error {
	handle, err := r.registry.Get(runID)
	if err != nil {
		return err
	}
	if handle.Status.IsTerminal() {
		return nil
	}

	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()

	if ok {
		cancel()
	}

	r.logger.Info().Str("runId", runID).Msg("Agent run cancellation requested")
	return nil
}
