package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/coda/pkg/dispatcher"
)

const (
	DefaultMaxRounds  = 10
	DefaultMaxRetries = 3
)

// HistorySink receives every appended message. Nil disables persistence;
// the engine works without it.
type HistorySink interface {
	Append(sessionKey string, msg Message) error
}

// Config holds session configuration.
type Config struct {
	Transport    Transport
	Tools        ToolRunner
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	MaxRounds    int
	MaxRetries   int
	ToolTimeout  time.Duration
	SessionKey   string
	WorkingDir   string
	AgentID      string
	Depth        int
	Interactive  bool
	// Plan marks the session as plan-mode: tool calls carry the flag so
	// spawned sub-agents stay side-effect free too.
	Plan    bool
	History HistorySink
	Logger  zerolog.Logger

	// Preload seeds the transcript with messages from an earlier run,
	// letting a fresh session continue a stored conversation. Preloaded
	// messages are not re-appended to History.
	Preload []Message
}

// Session drives one conversation through the multi-round tool-calling
// loop. The transcript is owned exclusively by the session: a single
// logical flow mutates it, concurrent sessions never share one.
type Session struct {
	cfg      Config
	id       string
	state    State
	rounds   int
	messages []Message
	mu       sync.RWMutex
}

// NewSession creates a session in the Idle state.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool runner is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = uuid.New().String()
	}

	s := &Session{
		cfg:   cfg,
		id:    cfg.SessionKey,
		state: StateIdle,
	}
	if len(cfg.Preload) > 0 {
		s.messages = make([]Message, len(cfg.Preload))
		copy(s.messages, cfg.Preload)
	}

	return s, nil
}

// ID returns the session key.
func (s *Session) ID() string { return s.id }

// State returns the current machine state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Rounds returns how many model-call rounds have been issued.
func (s *Session) Rounds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rounds
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return messages
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) append(msg Message) {
	msg.Timestamp = time.Now()

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	if s.cfg.History != nil {
		if err := s.cfg.History.Append(s.id, msg); err != nil {
			s.cfg.Logger.Error().Err(err).Str("session", s.id).Msg("Failed to persist message")
		}
	}
}

// Run executes the tool-calling loop for one input until the model stops
// issuing tool calls, a bound is hit, or the context is cancelled.
// Cancellation is checked at every state transition boundary.
func (s *Session) Run(ctx context.Context, input string) (Result, error) {
	logger := s.cfg.Logger.With().Str("session", s.id).Logger()

	if state := s.State(); state != StateIdle {
		return Result{}, fmt.Errorf("session is %s, not idle", state)
	}

	s.append(Message{Role: "user", Content: input})

	allToolCalls := []dispatcher.ToolCall{}
	usage := TokenUsage{}
	tools := s.cfg.Tools.SchemaList()

	for {
		if err := ctx.Err(); err != nil {
			return s.fail(logger, ErrCancelled)
		}

		s.mu.Lock()
		s.rounds++
		round := s.rounds
		s.mu.Unlock()

		if round > s.cfg.MaxRounds {
			logger.Warn().Int("max_rounds", s.cfg.MaxRounds).Msg("Iteration limit reached")
			return s.fail(logger, ErrIterationLimit)
		}

		s.setState(StateAwaitingModel)

		reply, err := s.sendWithRetry(ctx, Request{
			Model:        s.cfg.Model,
			SystemPrompt: s.cfg.SystemPrompt,
			Messages:     s.Messages(),
			Tools:        tools,
			Temperature:  s.cfg.Temperature,
			MaxTokens:    s.cfg.MaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return s.fail(logger, ErrCancelled)
			}
			return s.fail(logger, err)
		}

		if reply.Usage != nil {
			usage.InputTokens += reply.Usage.InputTokens
			usage.OutputTokens += reply.Usage.OutputTokens
		}

		s.append(Message{
			Role:      "assistant",
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})

		if len(reply.ToolCalls) == 0 {
			s.setState(StateDone)
			logger.Debug().Int("rounds", round).Msg("Session done")
			return Result{
				Output:    reply.Content,
				Rounds:    round,
				ToolCalls: allToolCalls,
				Usage:     usage,
			}, nil
		}

		s.setState(StateExecutingTools)

		// Calls dispatch sequentially in issue order so the transcript
		// stays deterministic.
		for _, call := range reply.ToolCalls {
			if err := ctx.Err(); err != nil {
				return s.fail(logger, ErrCancelled)
			}

			result := s.cfg.Tools.Dispatch(ctx, call, &dispatcher.ExecContext{
				SessionKey:  s.id,
				WorkingDir:  s.cfg.WorkingDir,
				Timeout:     s.cfg.ToolTimeout,
				AgentID:     s.cfg.AgentID,
				Depth:       s.cfg.Depth,
				Interactive: s.cfg.Interactive,
				Plan:        s.cfg.Plan,
			})

			s.append(Message{
				Role:       "tool",
				Content:    result.Content,
				ToolCallID: result.ToolCallID,
				IsError:    result.IsError,
			})

			if err := ctx.Err(); err != nil {
				return s.fail(logger, ErrCancelled)
			}
		}

		allToolCalls = append(allToolCalls, reply.ToolCalls...)
	}
}

func (s *Session) fail(logger zerolog.Logger, err error) (Result, error) {
	s.setState(StateFailed)
	logger.Warn().Err(err).Msg("Session failed")
	return Result{Rounds: s.Rounds()}, err
}

// sendWithRetry calls the transport with bounded exponential backoff for
// retryable errors.
func (s *Session) sendWithRetry(ctx context.Context, req Request) (*Reply, error) {
	var lastErr error

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		reply, err := s.cfg.Transport.Send(ctx, req)
		if err == nil {
			return reply, nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return nil, err
		}
		if attempt == s.cfg.MaxRetries-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		s.cfg.Logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Str("provider", s.cfg.Transport.Provider()).
			Msg("Retrying model call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", s.cfg.MaxRetries, lastErr)
}
