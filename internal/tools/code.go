// Package tools provides the built-in tool implementations: sandboxed code
// execution, shell commands, and browser automation.
package tools

import (
	"context"
	"fmt"
	"strings"

	"toolchat/internal/logging"
	"toolchat/internal/sandbox"
	"toolchat/internal/tooling"
)

// Code executes snippets in a sandboxed interpreter. Console output produced
// by a snippet is forwarded as tool log lines.
type Code struct {
	exec *sandbox.Executor
}

// NewCode wraps a sandbox executor as a tool.
func NewCode(exec *sandbox.Executor) *Code {
	if exec == nil {
		exec = sandbox.New(sandbox.Options{})
	}
	return &Code{exec: exec}
}

// Executor exposes the underlying sandbox, mainly so callers can seed
// persistent context bindings.
func (c *Code) Executor() *sandbox.Executor { return c.exec }

func (c *Code) Name() string { return "code" }

func (c *Code) Preprompt() string {
	return strings.TrimSpace(`
code: run Go snippets in a sandbox.
  exec — evaluate the code block and report its result. The value of the
  trailing expression (or an explicit return) becomes the call result.
  console.Log(...) lines are captured; results.Set(name, value) persists a
  value under a name for later calls.`)
}

// Execute handles the "exec" command. Captured console lines are forwarded
// even when evaluation fails.
func (c *Code) Execute(ctx context.Context, command, content string, log tooling.LogFunc) (any, error) {
	if command != "exec" {
		return nil, fmt.Errorf("unknown code command %q", command)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty code block")
	}

	logging.ToolsDebug("code exec: %d bytes", len(content))
	res, err := c.exec.Exec(ctx, content, nil)
	if res != nil {
		for _, line := range res.Logs {
			log("%s", strings.TrimRight(line.String(), "\n"))
		}
	}
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}
