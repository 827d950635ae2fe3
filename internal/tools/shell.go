package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"toolchat/internal/logging"
	"toolchat/internal/tooling"
)

// Shell output beyond this many bytes is truncated.
const maxShellOutput = 50000

// ShellOptions configures the shell tool.
type ShellOptions struct {
	// Timeout bounds one command. Zero means the default of 60 seconds;
	// negative disables the bound.
	Timeout time.Duration

	// Dir is the working directory. Empty means the process cwd.
	Dir string

	// Env entries ("KEY=value") are appended to the inherited environment.
	Env []string
}

// Shell runs commands through the system shell.
type Shell struct {
	opts ShellOptions
}

// NewShell creates the shell tool.
func NewShell(opts ShellOptions) *Shell {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Shell{opts: opts}
}

func (s *Shell) Name() string { return "shell" }

func (s *Shell) Preprompt() string {
	return strings.TrimSpace(`
shell: run shell commands.
  run — execute the code block with sh -c and report the combined output.
  Long output is truncated; a non-zero exit is reported as an error that
  still carries the output.`)
}

// Execute handles the "run" command.
func (s *Shell) Execute(ctx context.Context, command, content string, log tooling.LogFunc) (any, error) {
	if command != "run" {
		return nil, fmt.Errorf("unknown shell command %q", command)
	}
	script := strings.TrimSpace(content)
	if script == "" {
		return nil, fmt.Errorf("empty command")
	}

	execCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	log("$ %s", script)
	logging.ToolsDebug("shell run: %q (dir=%s)", script, s.opts.Dir)

	cmd := exec.CommandContext(execCtx, "sh", "-c", script)
	cmd.Dir = s.opts.Dir
	cmd.Env = append(os.Environ(), s.opts.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > maxShellOutput {
		output = output[:maxShellOutput] + "\n...[truncated]"
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command timed out after %s", s.opts.Timeout)
		}
		logging.Tools("shell command failed: %v", err)
		return nil, fmt.Errorf("command failed: %w\nOutput:\n%s", err, output)
	}

	logging.Tools("shell command completed (%d bytes output)", len(output))
	return output, nil
}
