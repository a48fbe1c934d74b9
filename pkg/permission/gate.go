package permission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Gate is the approval engine consulted before mutating tool calls.
// Persisted records survive across sessions; session records are dropped
// by ResetSession. Lookup is a pure function of (category, scope, records).
type Gate struct {
	store    *Store
	session  []Record
	handler  ApprovalHandler
	observer Observer
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// Observer receives resolved decisions. Implemented by the metrics
// registry; a nil observer disables recording.
type Observer interface {
	RecordPermissionDecision(category, decision string)
}

// Config holds gate configuration.
type Config struct {
	// StorePath locates the persisted record file. Empty selects the
	// default under the user's home directory.
	StorePath string
	// Handler resolves NeedsApproval outcomes. Nil means every
	// unresolved check denies.
	Handler  ApprovalHandler
	Observer Observer
	Logger   zerolog.Logger
}

// NewGate creates a gate and loads the persisted store.
func NewGate(cfg Config) (*Gate, error) {
	store, err := OpenStore(cfg.StorePath, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open permission store: %w", err)
	}

	return &Gate{
		store:    store,
		handler:  cfg.Handler,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}, nil
}

// Check returns the stored decision for (category, scope). The most
// specific matching scope wins; Deny wins ties. No match yields
// NeedsApproval.
func (g *Gate) Check(category, scope string) Decision {
	g.mu.RLock()
	session := g.session
	g.mu.RUnlock()

	best := Decision(NeedsApproval)
	bestLen := -1

	consider := func(rec Record) {
		if rec.Category != category && rec.Category != "*" {
			return
		}
		if !strings.HasPrefix(scope, rec.Scope) {
			return
		}
		n := len(rec.Scope)
		if n > bestLen || (n == bestLen && rec.Decision == Deny) {
			best = rec.Decision
			bestLen = n
		}
	}

	for _, rec := range session {
		consider(rec)
	}
	for _, rec := range g.store.Records() {
		consider(rec)
	}

	return best
}

// Approve records a decision for (category, scope). With persist the
// record is written through to the on-disk store; otherwise it lives for
// the current session only.
func (g *Gate) Approve(category, scope string, decision Decision, persist bool) error {
	rec := Record{
		Category: category,
		Scope:    scope,
		Decision: decision,
		AddedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	if persist {
		if err := g.store.Append(rec); err != nil {
			return fmt.Errorf("failed to persist approval: %w", err)
		}
	} else {
		g.mu.Lock()
		g.session = append(g.session, rec)
		g.mu.Unlock()
	}

	g.logger.Info().
		Str("category", category).
		Str("scope", scope).
		Str("decision", string(decision)).
		Bool("persist", persist).
		Msg("Permission recorded")

	return nil
}

// Resolve checks the stored records and, when the outcome is
// NeedsApproval and interactive is set, escalates to the approval
// handler. Non-interactive contexts resolve NeedsApproval to Deny.
func (g *Gate) Resolve(ctx context.Context, req Request, interactive bool) (Decision, error) {
	decision := g.Check(req.Category, req.Scope)
	if decision != NeedsApproval {
		g.record(req.Category, decision)
		return decision, nil
	}

	g.mu.RLock()
	handler := g.handler
	g.mu.RUnlock()

	if !interactive || handler == nil {
		g.logger.Debug().
			Str("tool", req.Tool).
			Str("scope", req.Scope).
			Msg("Unresolved approval in non-interactive context, denying")
		g.record(req.Category, Deny)
		return Deny, nil
	}

	resp, err := handler.RequestApproval(ctx, req)
	if err != nil {
		return Deny, fmt.Errorf("approval request failed: %w", err)
	}

	decision = Deny
	if resp.Approved {
		decision = Allow
	}

	if resp.Remember || resp.Persist {
		if err := g.Approve(req.Category, req.Scope, decision, resp.Persist); err != nil {
			g.logger.Error().Err(err).Msg("Failed to record approval decision")
		}
	}

	g.record(req.Category, decision)
	return decision, nil
}

func (g *Gate) record(category string, decision Decision) {
	if g.observer != nil {
		g.observer.RecordPermissionDecision(category, string(decision))
	}
}

// Remember caches a session-scoped Allow so the same scope is not
// re-prompted within the session.
func (g *Gate) Remember(category, scope string) {
	if g.Check(category, scope) == Allow {
		return
	}
	if err := g.Approve(category, scope, Allow, false); err != nil {
		g.logger.Error().Err(err).Msg("Failed to cache session approval")
	}
}

// ResetSession clears all session-scoped records.
func (g *Gate) ResetSession() {
	g.mu.Lock()
	g.session = nil
	g.mu.Unlock()
}

// SetHandler replaces the approval handler.
func (g *Gate) SetHandler(handler ApprovalHandler) {
	g.mu.Lock()
	g.handler = handler
	g.mu.Unlock()
}

// Close flushes the persisted store.
func (g *Gate) Close() error {
	return g.store.Save()
}
