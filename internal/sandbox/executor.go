// Package sandbox runs untrusted code snippets in a yaegi interpreter with a
// curated global surface, per-call console capture, call-scoped variable
// injection with guaranteed cleanup, and a process-wide named result store.
//
// Isolation rule: top-level declarations inside a snippet are call-scoped
// (each snippet is evaluated as an immediately-invoked function), while the
// persistent context bindings (UpdateContext) and the named result store are
// the only cross-call persistence mechanisms.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"toolchat/internal/logging"
)

// Options configures an Executor.
type Options struct {
	// Timeout bounds the wall clock of a single Exec. Zero means the
	// default of 30 seconds.
	Timeout time.Duration

	// LogMemory bounds the rolling console window kept across calls.
	// Zero means the default of 1000 entries.
	LogMemory int

	// EchoConsole forwards captured console lines to stderr as well.
	EchoConsole bool

	// Store overrides the process-wide named result store. Leave nil to
	// share Results() with every other executor in the process.
	Store *Store
}

// ExecResult is the output of one Exec call.
type ExecResult struct {
	// Value is the snippet's result: the value of an explicit return, or
	// of the trailing expression, or nil.
	Value any

	// Logs is the console output captured during this call, in order.
	Logs []ConsoleLog
}

// Executor evaluates snippets in a reusable isolated interpreter.
// All methods are safe for concurrent use; Exec calls are serialized.
type Executor struct {
	mu   sync.Mutex
	opts Options

	store   *Store
	env     map[string]any            // persistent context bindings
	modules map[string]interp.Exports // loadable symbol bundles, by name
	loaded  map[string]bool

	interp *interp.Interpreter
	dirty  bool // interpreter must be rebuilt before the next Exec

	recMu    sync.Mutex
	recorder *consoleRecorder
	memory   []ConsoleLog
}

// New creates an Executor with the default module bundles registered.
func New(opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.LogMemory <= 0 {
		opts.LogMemory = 1000
	}
	store := opts.Store
	if store == nil {
		store = Results()
	}
	e := &Executor{
		opts:    opts,
		store:   store,
		env:     make(map[string]any),
		modules: make(map[string]interp.Exports),
		loaded:  make(map[string]bool),
		dirty:   true,
	}
	registerDefaultModules(e)
	return e
}

// UpdateContext merges patch into the persistent context bindings. The
// interpreter is rebuilt before the next Exec so the new bindings take
// effect, available to snippets as env.<Name>.
func (e *Executor) UpdateContext(patch map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range patch {
		e.env[k] = v
	}
	e.dirty = true
}

// Context returns a copy of the persistent context bindings.
func (e *Executor) Context() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any, len(e.env))
	for k, v := range e.env {
		out[k] = v
	}
	return out
}

// ClearContext drops all persistent context bindings.
func (e *Executor) ClearContext() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.env = make(map[string]any)
	e.dirty = true
}

// Store returns the named result store this executor exposes to snippets.
func (e *Executor) Store() *Store {
	return e.store
}

// RegisterModule registers a symbol bundle loadable from snippets via
// sandbox.Use(name). Symbols become members of a package named after the
// module.
func (e *Executor) RegisterModule(name string, symbols map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modules[name] = exportsFromMap(name, symbols)
}

// Exec evaluates code and returns its result and captured console output.
// extra bindings are exposed as call.<Name> for the duration of this call
// only; they are removed unconditionally afterward, error or not.
// Every failure is reported as an error prefixed "Execution error:".
func (e *Executor) Exec(ctx context.Context, code string, extra map[string]any) (*ExecResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := logging.StartTimer(logging.CategorySandbox, "exec")
	defer timer.Stop()

	pre, err := prepare(code)
	if err != nil {
		return nil, execError(err)
	}

	// Modules named by sandbox.Use are loaded before evaluation so the
	// snippet can import them; unknown names fail the call outright.
	for _, name := range pre.modules {
		if _, ok := e.modules[name]; !ok {
			return nil, execError(fmt.Errorf("unknown module %q (dynamic package resolution is not available in this host)", name))
		}
		if !e.loaded[name] {
			e.loaded[name] = true
			e.dirty = true
		}
	}

	if e.interp == nil || e.dirty {
		if err := e.rebuild(); err != nil {
			return nil, execError(err)
		}
	}

	if len(extra) > 0 {
		if err := e.interp.Use(exportsFromMap("call", extra)); err != nil {
			return nil, execError(err)
		}
		if _, err := e.interp.Eval(`import "call"`); err != nil {
			return nil, execError(err)
		}
		// Call-scoped bindings are torn down by rebuilding; yaegi cannot
		// retract symbols from a live interpreter. The deferred flag runs
		// on every exit path, including errors.
		defer func() { e.dirty = true }()
	}

	rec := &consoleRecorder{}
	e.recMu.Lock()
	e.recorder = rec
	e.recMu.Unlock()
	defer func() {
		e.recMu.Lock()
		e.recorder = nil
		e.recMu.Unlock()
	}()

	for _, imp := range pre.imports {
		if _, err := e.interp.Eval(imp); err != nil {
			return nil, execError(err)
		}
	}

	value, err := e.evalBounded(ctx, pre)
	result := &ExecResult{Value: value, Logs: rec.snapshot()}
	if err != nil {
		return result, err
	}
	return result, nil
}

type outcome struct {
	value reflect.Value
	err   error
}

// evalBounded runs the prepared snippet under the configured timeout.
// On timeout the evaluation goroutine is abandoned and the interpreter is
// discarded so a wedged interpreter is never reused.
func (e *Executor) evalBounded(ctx context.Context, pre *prepared) (any, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	in := e.interp
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := in.Eval(pre.wrapped)
		if err != nil && pre.transformed && !isRuntimeErr(err) {
			// The trailing-expression rewrite can produce code like
			// "return f()" for a void f. Compile errors in a rewritten
			// snippet get one retry in the snippet's original form.
			v, err = in.Eval(pre.plain)
		}
		ch <- outcome{value: v, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, execError(out.err)
		}
		if !out.value.IsValid() || !out.value.CanInterface() {
			return nil, nil
		}
		return out.value.Interface(), nil
	case <-execCtx.Done():
		e.interp = nil
		e.dirty = true
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, execError(fmt.Errorf("timeout after %s", e.opts.Timeout))
		}
		return nil, execError(execCtx.Err())
	}
}

// rebuild constructs a fresh interpreter carrying the stdlib surface, the
// builtin console/results/sandbox packages, the persistent env bindings, and
// any loaded module bundles.
func (e *Executor) rebuild() error {
	logging.SandboxDebug("rebuilding interpreter (env=%d, modules=%d)", len(e.env), len(e.loaded))

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("load stdlib: %w", err)
	}
	if err := i.Use(e.builtinExports()); err != nil {
		return fmt.Errorf("load builtins: %w", err)
	}

	ambient := []string{"console", "results", "sandbox"}
	if len(e.env) > 0 {
		if err := i.Use(exportsFromMap("env", e.env)); err != nil {
			return fmt.Errorf("load context bindings: %w", err)
		}
		ambient = append(ambient, "env")
	}
	for name := range e.loaded {
		if err := i.Use(e.modules[name]); err != nil {
			return fmt.Errorf("load module %s: %w", name, err)
		}
		ambient = append(ambient, name)
	}

	// Pre-import the ambient packages so snippets use them bare.
	for _, pkg := range ambient {
		if _, err := i.Eval(fmt.Sprintf("import %q", pkg)); err != nil {
			return fmt.Errorf("import %s: %w", pkg, err)
		}
	}

	e.interp = i
	e.dirty = false
	return nil
}

// builtinExports is the curated global surface beyond the stdlib: the console
// proxy, the named result store, and the module loader.
func (e *Executor) builtinExports() interp.Exports {
	console := map[string]reflect.Value{
		"Log":   reflect.ValueOf(func(args ...any) { e.record("log", args) }),
		"Warn":  reflect.ValueOf(func(args ...any) { e.record("warn", args) }),
		"Error": reflect.ValueOf(func(args ...any) { e.record("error", args) }),
		"Info":  reflect.ValueOf(func(args ...any) { e.record("info", args) }),
		"Debug": reflect.ValueOf(func(args ...any) { e.record("debug", args) }),
	}
	results := map[string]reflect.Value{
		"Set":    reflect.ValueOf(e.store.Set),
		"Get":    reflect.ValueOf(e.store.Get),
		"Has":    reflect.ValueOf(e.store.Has),
		"Delete": reflect.ValueOf(e.store.Delete),
		"Clear":  reflect.ValueOf(e.store.Clear),
		"Keys":   reflect.ValueOf(e.store.Keys),
	}
	sandboxPkg := map[string]reflect.Value{
		// Use is resolved ahead of evaluation by the prescan; at runtime
		// it only reports whether the module exists.
		"Use": reflect.ValueOf(func(name string) error {
			if _, ok := e.modules[name]; !ok {
				return fmt.Errorf("unknown module %q", name)
			}
			return nil
		}),
	}
	return interp.Exports{
		"console/console": console,
		"results/results": results,
		"sandbox/sandbox": sandboxPkg,
	}
}

// exportsFromMap builds a single-package export set whose members are the
// map entries, typed by their dynamic types.
func exportsFromMap(pkg string, symbols map[string]any) interp.Exports {
	values := make(map[string]reflect.Value, len(symbols))
	for name, v := range symbols {
		values[name] = reflect.ValueOf(v)
	}
	return interp.Exports{pkg + "/" + pkg: values}
}

func execError(err error) error {
	return fmt.Errorf("Execution error: %v", err)
}

// isRuntimeErr reports whether a yaegi evaluation error came from running
// code (as opposed to compiling it).
func isRuntimeErr(err error) bool {
	var p interp.Panic
	return errors.As(err, &p)
}
