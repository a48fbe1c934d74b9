package permission

import "context"

// Decision is the outcome of a permission check.
type Decision string

const (
	Allow         Decision = "allow"
	Deny          Decision = "deny"
	NeedsApproval Decision = "needs_approval"
)

// Record maps a (category, scope pattern) pair to a decision.
// Scope patterns are plain prefixes: a path prefix for file categories,
// a command prefix for the shell category.
type Record struct {
	Category string   `json:"category"`
	Scope    string   `json:"scope"`
	Decision Decision `json:"decision"`
	AddedAt  string   `json:"added_at"`
}

// Request describes an operation awaiting a human decision.
type Request struct {
	Tool        string `json:"tool"`
	Category    string `json:"category"`
	Scope       string `json:"scope"`
	AgentID     string `json:"agent_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// Response is the answer to an approval request.
type Response struct {
	Approved bool   `json:"approved"`
	Remember bool   `json:"remember"` // keep the decision for the rest of the session
	Persist  bool   `json:"persist"`  // keep the decision across sessions
	Reason   string `json:"reason,omitempty"`
}

// ApprovalHandler resolves a NeedsApproval outcome, typically by asking
// the human at the other end of the session.
type ApprovalHandler interface {
	RequestApproval(ctx context.Context, req Request) (Response, error)
}

// DenyAllHandler refuses every request without user interaction.
// Sub-agent contexts use it so background work never escalates prompts.
type DenyAllHandler struct{}

// RequestApproval implements ApprovalHandler.
func (DenyAllHandler) RequestApproval(_ context.Context, _ Request) (Response, error) {
	return Response{Approved: false, Reason: "non-interactive context"}, nil
}

// AllowAllHandler approves every request. Used in tests and trusted setups.
type AllowAllHandler struct{}

// RequestApproval implements ApprovalHandler.
func (AllowAllHandler) RequestApproval(_ context.Context, _ Request) (Response, error) {
	return Response{Approved: true, Reason: "auto-approved"}, nil
}
