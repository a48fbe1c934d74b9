package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/coda/pkg/permission"
)

const (
	defaultTimeout = 30 * time.Second
	maxOutputBytes = 10 * 1024
)

// PermissionChecker gates mutating tool calls. Implemented by
// *permission.Gate.
type PermissionChecker interface {
	Resolve(ctx context.Context, req permission.Request, interactive bool) (permission.Decision, error)
	Remember(category, scope string)
}

// Observer receives execution telemetry. Implemented by the metrics
// registry; a nil observer disables recording.
type Observer interface {
	RecordToolExecution(tool string, duration time.Duration, success bool)
}

// Dispatcher is the name-keyed tool registry and invocation engine.
type Dispatcher struct {
	tools    map[string]*ToolDefinition
	schemas  map[string]*gojsonschema.Schema
	gate     PermissionChecker
	observer Observer
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// Config holds dispatcher configuration.
type Config struct {
	// Gate is consulted before any mutating handler executes. Nil
	// disables gating (used only in tests).
	Gate     PermissionChecker
	Observer Observer
	Logger   zerolog.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		tools:    make(map[string]*ToolDefinition),
		schemas:  make(map[string]*gojsonschema.Schema),
		gate:     cfg.Gate,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}

	d.logger.Info().Msg("Tool dispatcher initialized")

	return d
}

// Register validates a tool definition, compiles its argument schema and
// adds it to the registry.
func (d *Dispatcher) Register(def ToolDefinition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	d.tools[def.Name] = &def
	d.schemas[def.Name] = schema

	d.logger.Info().Str("tool", def.Name).Str("category", string(def.Category)).Msg("Tool registered")

	return nil
}

// Get returns a tool definition by name, or nil.
func (d *Dispatcher) Get(name string) *ToolDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tools[name]
}

// List returns all registered tool names.
func (d *Dispatcher) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered tools.
func (d *Dispatcher) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tools)
}

// SchemaList exports the declared tool schemas in the wire format the
// model transport expects.
func (d *Dispatcher) SchemaList() []map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	schemas := make([]map[string]interface{}, 0, len(d.tools))
	for _, def := range d.tools {
		schemas = append(schemas, toolSchema(def))
	}
	return schemas
}

// Dispatch validates, permission-gates and executes one tool call,
// producing exactly one ToolResult. A failing tool never terminates the
// session: every failure mode maps to an error ToolResult.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall, execCtx *ExecContext) ToolResult {
	d.mu.RLock()
	def := d.tools[call.Name]
	schema := d.schemas[call.Name]
	d.mu.RUnlock()

	if def == nil {
		d.logger.Error().Str("tool", call.Name).Msg("Tool not found")
		return errorResult(call.ID, fmt.Sprintf("%v: %s", ErrToolNotFound, call.Name))
	}

	if err := validateArguments(schema, call.Arguments); err != nil {
		d.logger.Warn().Str("tool", call.Name).Err(err).Msg("Argument validation failed")
		return errorResult(call.ID, fmt.Sprintf("%v: %v", ErrValidation, err))
	}

	scope := scopeForCall(def, call.Arguments)

	if def.Mutating && d.gate != nil {
		interactive := execCtx == nil || execCtx.Interactive
		req := permission.Request{
			Tool:     def.Name,
			Category: string(def.Category),
			Scope:    scope,
		}
		if execCtx != nil {
			req.AgentID = execCtx.AgentID
		}

		decision, err := d.gate.Resolve(ctx, req, interactive)
		if err != nil {
			d.logger.Error().Str("tool", call.Name).Err(err).Msg("Permission resolution failed")
			return errorResult(call.ID, fmt.Sprintf("%v: %v", ErrPermissionDenied, err))
		}
		if decision != permission.Allow {
			d.logger.Warn().
				Str("tool", call.Name).
				Str("scope", scope).
				Msg("Tool execution blocked by permission gate")
			return errorResult(call.ID, fmt.Sprintf("%v: %s on %q", ErrPermissionDenied, def.Name, scope))
		}
	}

	result := d.execute(ctx, def, call, execCtx)

	if def.Mutating && d.gate != nil && !result.IsError {
		d.gate.Remember(string(def.Category), scope)
	}

	return result
}

// execute runs the handler under a bounded timeout with panic recovery.
func (d *Dispatcher) execute(ctx context.Context, def *ToolDefinition, call ToolCall, execCtx *ExecContext) ToolResult {
	startTime := time.Now()

	timeout := defaultTimeout
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handlerCtx := ContextWithExecContext(timeoutCtx, execCtx)

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool handler panicked: %v", r)
			}
		}()
		output, err := def.Handler(handlerCtx, call.Arguments)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- output
		}
	}()

	select {
	case output := <-resultChan:
		duration := time.Since(startTime)
		content, truncated := formatOutput(output)

		d.logger.Debug().
			Str("tool", def.Name).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")
		d.observe(def.Name, duration, true)

		return ToolResult{ToolCallID: call.ID, Content: content, Truncated: truncated}

	case err := <-errChan:
		duration := time.Since(startTime)

		d.logger.Error().
			Str("tool", def.Name).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")
		d.observe(def.Name, duration, false)

		return errorResult(call.ID, err.Error())

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)
		d.observe(def.Name, duration, false)

		// The parent context going away is a cancellation, not a timeout.
		if errors.Is(timeoutCtx.Err(), context.Canceled) {
			d.logger.Warn().
				Str("tool", def.Name).
				Dur("duration", duration).
				Msg("Tool execution cancelled")
			return errorResult(call.ID, "tool execution cancelled")
		}

		d.logger.Error().
			Str("tool", def.Name).
			Dur("duration", duration).
			Msg("Tool execution timeout")

		return errorResult(call.ID, fmt.Sprintf("tool execution timeout after %v", timeout))
	}
}

func (d *Dispatcher) observe(tool string, duration time.Duration, success bool) {
	if d.observer != nil {
		d.observer.RecordToolExecution(tool, duration, success)
	}
}

func errorResult(callID, message string) ToolResult {
	return ToolResult{ToolCallID: callID, Content: message, IsError: true}
}

// scopeForCall derives the permission scope pattern from the call
// arguments: the command string for shell tools, the target path for file
// tools, the tool name otherwise.
func scopeForCall(def *ToolDefinition, args map[string]interface{}) string {
	switch def.Category {
	case CategoryShell:
		if command, ok := args["command"].(string); ok {
			return strings.TrimSpace(command)
		}
	case CategoryRead, CategoryWrite:
		if path, ok := args["path"].(string); ok {
			return path
		}
	}
	return def.Name
}

// formatOutput renders a handler result as text, truncating over the cap.
func formatOutput(output interface{}) (string, bool) {
	var text string

	switch v := output.(type) {
	case nil:
		text = ""
	case string:
		text = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			text = fmt.Sprintf("%v", v)
		} else {
			text = string(data)
		}
	}

	if len(text) <= maxOutputBytes {
		return text, false
	}
	return text[:maxOutputBytes] + "\n... [output truncated]", true
}

func validateDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// compileSchema builds the JSON Schema for a tool's arguments.
func compileSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	loader := gojsonschema.NewGoLoader(schemaMap(def))
	return gojsonschema.NewSchema(loader)
}

func schemaMap(def ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			paramSchema["enum"] = param.Enum
		}
		if param.Type == "array" && param.Items != "" {
			paramSchema["items"] = map[string]interface{}{"type": param.Items}
		}

		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func toolSchema(def *ToolDefinition) map[string]interface{} {
	schema := schemaMap(*def)
	delete(schema, "additionalProperties")

	return map[string]interface{}{
		"name":         def.Name,
		"description":  def.Description,
		"input_schema": schema,
	}
}

func validateArguments(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}

	if !result.Valid() {
		messages := []string{}
		for _, verr := range result.Errors() {
			messages = append(messages, verr.String())
		}
		return fmt.Errorf("%s", strings.Join(messages, "; "))
	}

	return nil
}
