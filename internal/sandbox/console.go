package sandbox

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// ConsoleLog is one captured console line.
type ConsoleLog struct {
	Level string
	Args  []any
	Time  time.Time
}

func (c ConsoleLog) String() string {
	return fmt.Sprintf("[%s] %s", c.Level, fmt.Sprintln(c.Args...))
}

// consoleRecorder collects the console output of a single Exec call.
// It has its own lock because an abandoned (timed-out) evaluation goroutine
// may still be logging while the executor has moved on.
type consoleRecorder struct {
	mu   sync.Mutex
	logs []ConsoleLog
}

func (r *consoleRecorder) add(entry ConsoleLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
}

func (r *consoleRecorder) snapshot() []ConsoleLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConsoleLog, len(r.logs))
	copy(out, r.logs)
	return out
}

// record routes one console line into the current call's recorder, the
// executor's bounded rolling memory, and (optionally) stderr.
func (e *Executor) record(level string, args []any) {
	entry := ConsoleLog{Level: level, Args: args, Time: time.Now()}

	e.recMu.Lock()
	if e.recorder != nil {
		e.recorder.add(entry)
	}
	e.memory = append(e.memory, entry)
	if limit := e.opts.LogMemory; limit > 0 && len(e.memory) > limit {
		e.memory = e.memory[len(e.memory)-limit:]
	}
	e.recMu.Unlock()

	if e.opts.EchoConsole {
		fmt.Fprintf(os.Stderr, "[sandbox:%s] %s", level, fmt.Sprintln(args...))
	}
}

// Memory returns a copy of the rolling console window across all calls.
func (e *Executor) Memory() []ConsoleLog {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	out := make([]ConsoleLog, len(e.memory))
	copy(out, e.memory)
	return out
}
