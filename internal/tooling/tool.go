// Package tooling defines the tool capability interface and the dispatcher
// that extracts structured tool calls from model output and routes them to
// registered tools.
package tooling

import (
	"context"
	"errors"
)

// LogFunc lets a tool surface intermediate log lines during execution; the
// dispatcher forwards them to its event reporter as tool_log notifications.
type LogFunc func(format string, args ...any)

// Tool is a named, pluggable capability.
type Tool interface {
	// Name is matched literally against the tool segment of call syntax.
	Name() string

	// Preprompt is the tool's self-description, injected into the system
	// prompt so the model knows the tool exists and how to drive it.
	Preprompt() string

	// Execute runs one call. Unknown commands must be rejected with an
	// error, not a panic; errors are captured by the dispatcher and
	// surfaced as the call's result error.
	Execute(ctx context.Context, command, content string, log LogFunc) (any, error)
}

// Call is one structured tool call found in a response. Tool is nil when the
// named tool is not registered.
type Call struct {
	ID      string
	Tool    Tool
	Name    string
	Command string
	Content string
	Raw     string
}

// Result is the outcome of one dispatched call. Err non-empty means Value
// must be treated as absent.
type Result struct {
	ID    string
	Value any
	Err   string
}

// Dispatcher errors.
var (
	// ErrNoTools is returned when constructing a Tooler with no tools.
	ErrNoTools = errors.New("at least one tool required")
)
