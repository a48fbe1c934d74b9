package dispatcher

import (
	"context"
	"fmt"
)

// View is a restricted window onto a dispatcher: an allow-list filter plus
// optional handler overrides. Sub-agents receive views, never the full
// registry; plan-mode sessions receive views whose mutating handlers are
// swapped for recorders.
type View struct {
	dispatcher *Dispatcher
	allowed    map[string]bool // nil means all tools
	overrides  map[string]ToolHandler
}

// View creates a filtered view. An empty allow list means unrestricted.
func (d *Dispatcher) View(allow []string) *View {
	v := &View{dispatcher: d}
	if len(allow) > 0 {
		v.allowed = make(map[string]bool, len(allow))
		for _, name := range allow {
			v.allowed[name] = true
		}
	}
	return v
}

// WithOverrides returns a copy of the view whose named tools run the given
// handlers instead of their registered ones. Overridden tools bypass the
// permission gate: the replacement handler is expected to be side-effect
// free.
func (v *View) WithOverrides(overrides map[string]ToolHandler) *View {
	merged := make(map[string]ToolHandler, len(v.overrides)+len(overrides))
	for name, handler := range v.overrides {
		merged[name] = handler
	}
	for name, handler := range overrides {
		merged[name] = handler
	}
	return &View{dispatcher: v.dispatcher, allowed: v.allowed, overrides: merged}
}

// Allowed reports whether the view exposes a tool.
func (v *View) Allowed(name string) bool {
	if v.allowed == nil {
		return true
	}
	return v.allowed[name]
}

// List returns the tool names the view exposes.
func (v *View) List() []string {
	names := []string{}
	for _, name := range v.dispatcher.List() {
		if v.Allowed(name) {
			names = append(names, name)
		}
	}
	return names
}

// SchemaList exports the schemas of the exposed tools.
func (v *View) SchemaList() []map[string]interface{} {
	v.dispatcher.mu.RLock()
	defer v.dispatcher.mu.RUnlock()

	schemas := []map[string]interface{}{}
	for name, def := range v.dispatcher.tools {
		if v.Allowed(name) {
			schemas = append(schemas, toolSchema(def))
		}
	}
	return schemas
}

// Dispatch routes a call through the view. Calls outside the allow-list
// fail without reaching the registry; overridden tools validate arguments
// normally, then run the override.
func (v *View) Dispatch(ctx context.Context, call ToolCall, execCtx *ExecContext) ToolResult {
	if !v.Allowed(call.Name) {
		v.dispatcher.logger.Warn().
			Str("tool", call.Name).
			Msg("Tool not exposed to this agent")
		return errorResult(call.ID, fmt.Sprintf("tool %q is not available to this agent", call.Name))
	}

	if override, ok := v.overrides[call.Name]; ok {
		return v.dispatchOverride(ctx, call, execCtx, override)
	}

	return v.dispatcher.Dispatch(ctx, call, execCtx)
}

func (v *View) dispatchOverride(ctx context.Context, call ToolCall, execCtx *ExecContext, handler ToolHandler) ToolResult {
	v.dispatcher.mu.RLock()
	def := v.dispatcher.tools[call.Name]
	schema := v.dispatcher.schemas[call.Name]
	v.dispatcher.mu.RUnlock()

	if def == nil {
		return errorResult(call.ID, fmt.Sprintf("%v: %s", ErrToolNotFound, call.Name))
	}

	if err := validateArguments(schema, call.Arguments); err != nil {
		return errorResult(call.ID, fmt.Sprintf("%v: %v", ErrValidation, err))
	}

	shadow := *def
	shadow.Handler = handler
	shadow.Mutating = false

	return v.dispatcher.execute(ctx, &shadow, call, execCtx)
}
