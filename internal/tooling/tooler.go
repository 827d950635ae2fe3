package tooling

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"toolchat/internal/logging"
)

// Events receives dispatch lifecycle notifications. Callbacks are optional,
// fire-and-forget, and must not block; a tool_call is always followed by
// exactly one tool_result for the same id once dispatch begins.
type Events struct {
	OnCall   func(Call)
	OnLog    func(callID, line string)
	OnResult func(Result)
}

// Tooler scans response text for call syntax, deduplicates by call id, and
// dispatches to registered tools. The set of seen ids only grows, so Dispatch
// is safe to invoke repeatedly on a lengthening transcript.
type Tooler struct {
	mu     sync.Mutex
	tools  map[string]Tool
	order  []string
	seen   map[string]bool
	events Events
}

// NewTooler registers tools in order. Name collisions are first-wins: a
// later tool with a duplicate name is dropped with a warning.
func NewTooler(tools []Tool, events Events) (*Tooler, error) {
	if len(tools) == 0 {
		return nil, ErrNoTools
	}
	t := &Tooler{
		tools:  make(map[string]Tool, len(tools)),
		seen:   make(map[string]bool),
		events: events,
	}
	for _, tool := range tools {
		if _, exists := t.tools[tool.Name()]; exists {
			logging.ToolerWarn("duplicate tool name %q ignored (first registration wins)", tool.Name())
			continue
		}
		t.tools[tool.Name()] = tool
		t.order = append(t.order, tool.Name())
	}
	return t, nil
}

// Preprompt is the machine-readable capability briefing appended to the
// system prompt: the exact call syntax plus each tool's self-description.
func (t *Tooler) Preprompt() string {
	var b strings.Builder
	b.WriteString("You can request tool execution. To call a tool, emit a line of the form\n\n")
	b.WriteString(CallMarker + "<id>/<tool>/<command>\n\n")
	b.WriteString("immediately followed by a fenced code block containing the call content.\n")
	b.WriteString("<id> is a short opaque identifier you choose; results are reported back to you under that id.\n")
	b.WriteString("Each id is executed at most once, and only the first call in a response is executed.\n\n")
	b.WriteString("Available tools:\n")
	for _, name := range t.order {
		b.WriteString("\n")
		b.WriteString(t.tools[name].Preprompt())
		b.WriteString("\n")
	}
	return b.String()
}

// FindCalls scans text for call syntax. Pure and side-effect free: it does
// not touch the seen set. Unregistered tool names yield a Call with a nil
// Tool.
func (t *Tooler) FindCalls(text string) []Call {
	raws := scanCalls(text)
	calls := make([]Call, 0, len(raws))
	for _, r := range raws {
		calls = append(calls, Call{
			ID:      r.id,
			Tool:    t.tools[r.tool],
			Name:    r.tool,
			Command: r.command,
			Content: r.content,
			Raw:     r.raw,
		})
	}
	return calls
}

// Dispatch scans text and executes the first new resolvable call, reporting
// tool_call and tool_result through the event callbacks. Additional new calls
// in the same text are ignored with a warning; unknown tool names are logged
// and skipped without a result (nothing was dispatched). Zero matches is a
// no-op. Dispatch never panics past itself: execution failures become the
// result's Err.
func (t *Tooler) Dispatch(ctx context.Context, text string) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []Call
	for _, c := range t.FindCalls(text) {
		if !t.seen[c.ID] {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	for i, c := range fresh {
		if c.Tool == nil {
			logging.Tooler("unknown tool %q in call %s, skipping", c.Name, c.ID)
			continue
		}

		if remaining := len(fresh) - i - 1; remaining > 0 {
			logging.ToolerWarn("ignoring %d additional tool call(s) in the same response", remaining)
		}

		t.seen[c.ID] = true
		logging.Tooler("dispatching call %s -> %s/%s", c.ID, c.Name, c.Command)
		if t.events.OnCall != nil {
			t.events.OnCall(c)
		}

		logFn := func(format string, args ...any) {
			line := fmt.Sprintf(format, args...)
			logging.ToolsDebug("call %s: %s", c.ID, line)
			if t.events.OnLog != nil {
				t.events.OnLog(c.ID, line)
			}
		}

		value, err := execute(ctx, c, logFn)
		res := Result{ID: c.ID}
		if err != nil {
			// A present error invalidates the value.
			res.Err = err.Error()
			logging.Tooler("call %s failed: %s", c.ID, res.Err)
		} else {
			res.Value = value
		}
		if t.events.OnResult != nil {
			t.events.OnResult(res)
		}
		return &res
	}
	return nil
}

// Seen reports whether a call id has already been dispatched.
func (t *Tooler) Seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen[id]
}

// execute runs one tool call, converting panics into errors so a misbehaving
// tool cannot take down the turn.
func execute(ctx context.Context, c Call, log LogFunc) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("tool %s panicked: %v", c.Name, r)
		}
	}()
	return c.Tool.Execute(ctx, c.Command, c.Content, log)
}
