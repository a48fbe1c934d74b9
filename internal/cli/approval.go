package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/harun/coda/pkg/permission"
)

// TerminalApprovalHandler asks the user at the terminal to approve a
// gated tool call.
type TerminalApprovalHandler struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalApprovalHandler creates a handler reading answers from in
// and writing prompts to out.
func NewTerminalApprovalHandler(in io.Reader, out io.Writer) *TerminalApprovalHandler {
	return &TerminalApprovalHandler{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// RequestApproval implements permission.ApprovalHandler. It blocks until
// the user answers or the context is cancelled.
func (h *TerminalApprovalHandler) RequestApproval(ctx context.Context, req permission.Request) (permission.Response, error) {
	fmt.Fprintf(h.out, "\n%s wants to run:\n", req.Tool)
	fmt.Fprintf(h.out, "  %s: %s\n", req.Category, req.Scope)
	if req.Description != "" {
		fmt.Fprintf(h.out, "  %s\n", req.Description)
	}
	fmt.Fprint(h.out, "Allow? [y]es / [n]o / [a]lways this session / [p]ersist: ")

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := h.in.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return permission.Response{}, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return permission.Response{}, fmt.Errorf("failed to read approval answer: %w", a.err)
		}

		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return permission.Response{Approved: true}, nil
		case "a", "always":
			return permission.Response{Approved: true, Remember: true}, nil
		case "p", "persist":
			return permission.Response{Approved: true, Remember: true, Persist: true}, nil
		default:
			return permission.Response{Approved: false, Reason: "denied by user"}, nil
		}
	}
}
