package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolchat/internal/config"
	"toolchat/internal/dialog"
	"toolchat/internal/logging"
	"toolchat/internal/provider"
	"toolchat/internal/sandbox"
	"toolchat/internal/tooling"
	"toolchat/internal/tools"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

const chatPreamble = `You are a helpful assistant with access to tools. Use them when a question
calls for computation, system inspection, or web content, and explain what
you did with the results.`

// session bundles the dialog with everything that needs shutting down.
type session struct {
	dialog  *dialog.Dialog
	browser *tools.Browser
	watcher *config.Watcher
}

func (s *session) close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.browser != nil {
		_ = s.browser.Shutdown()
	}
	s.dialog.Close()
}

// buildSession wires provider, tools, and dialog from the loaded config.
func buildSession(ctx context.Context) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gemini, err := provider.NewGemini(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return nil, err
	}

	exec := sandbox.New(sandbox.Options{
		Timeout:     cfg.SandboxTimeout(),
		LogMemory:   cfg.Sandbox.LogMemory,
		EchoConsole: cfg.Sandbox.EchoConsole,
	})

	toolset := []tooling.Tool{tools.NewCode(exec)}
	if cfg.Shell.Enabled {
		toolset = append(toolset, tools.NewShell(tools.ShellOptions{
			Timeout: cfg.ShellTimeout(),
			Dir:     cfg.Shell.Dir,
			Env:     cfg.Shell.Env,
		}))
	}
	var browser *tools.Browser
	if cfg.Browser.Enabled {
		browser = tools.NewBrowser(tools.BrowserOptions{
			DebuggerURL: cfg.Browser.DebuggerURL,
			Headless:    cfg.Browser.Headless,
			NavTimeout:  cfg.BrowserNavTimeout(),
		})
		toolset = append(toolset, browser)
	}

	mode := dialog.ModeQuery
	if cfg.LLM.Stream {
		mode = dialog.ModeStream
	}
	d, err := dialog.New(dialog.Options{
		Provider: gemini,
		Tools:    toolset,
		Preamble: chatPreamble,
		Mode:     mode,
		Sink:     printEvent,
	})
	if err != nil {
		return nil, err
	}

	s := &session{dialog: d, browser: browser}

	// Live config edits only retune logging; transport settings need a
	// restart and say so.
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		categories := make(map[string]bool)
		for _, c := range next.Logging.Categories {
			categories[c] = true
		}
		if len(categories) == 0 {
			categories = nil
		}
		_ = logging.Initialize(workspace, logging.Options{
			DebugMode:  next.Logging.Debug,
			Level:      next.Logging.Level,
			Categories: categories,
		})
		if next.LLM.Model != cfg.LLM.Model {
			fmt.Fprintln(os.Stderr, "(model change takes effect on restart)")
		}
	})
	if err == nil {
		if err := watcher.Start(ctx); err == nil {
			s.watcher = watcher
		}
	}

	logging.Boot("session ready: model=%s tools=%d stream=%v", cfg.LLM.Model, len(toolset), cfg.LLM.Stream)
	return s, nil
}

func runChat(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := buildSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	logger.Info("chat session started", zap.String("model", cfg.LLM.Model))
	fmt.Printf("toolchat %s (%s) — /help for commands\n", version, cfg.LLM.Model)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := slashCommand(s, line); quit {
				return nil
			}
			continue
		}

		if err := s.dialog.Ask(ctx, line); err != nil {
			if ctx.Err() != nil {
				fmt.Println()
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// slashCommand handles the local session commands. Returns true to quit.
func slashCommand(s *session, line string) bool {
	switch line {
	case "/quit", "/exit":
		return true
	case "/clear":
		s.dialog.Clear()
		fmt.Println("(conversation cleared)")
	case "/stop":
		s.dialog.Stop()
		fmt.Println("(dispatch stopped; queued messages wait)")
	case "/resume":
		s.dialog.Resume()
		fmt.Println("(resumed)")
	case "/help":
		fmt.Println("commands: /clear /stop /resume /quit")
	default:
		fmt.Printf("unknown command %s (try /help)\n", line)
	}
	return false
}

// printEvent renders dialog events for the terminal.
func printEvent(ev dialog.Event) {
	switch ev.Type {
	case dialog.EventAIChunk:
		fmt.Print(ev.Text)
	case dialog.EventThoughtChunk:
		if showThink {
			fmt.Fprint(os.Stderr, ev.Text)
		}
	case dialog.EventThought:
		if showThink {
			fmt.Fprintf(os.Stderr, "[thinking] %s\n", strings.TrimSpace(ev.Text))
		}
	case dialog.EventAIResponse:
		if cfg.LLM.Stream {
			fmt.Println()
		} else {
			fmt.Println(ev.Text)
		}
	case dialog.EventToolCall:
		fmt.Printf("⚙ %s %s/%s\n", ev.Call.ID, ev.Call.Name, ev.Call.Command)
	case dialog.EventToolLog:
		fmt.Printf("  · %s\n", ev.Text)
	case dialog.EventToolResult:
		if ev.Result.Err != "" {
			fmt.Printf("  ✗ %s: %s\n", ev.Result.ID, ev.Result.Err)
		} else {
			fmt.Printf("  ✓ %s\n", ev.Result.ID)
		}
	case dialog.EventError:
		fmt.Fprintf(os.Stderr, "Error: %v\n", ev.Err)
	}
}
