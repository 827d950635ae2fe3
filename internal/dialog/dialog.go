// Package dialog implements the turn-based conversation orchestrator: it
// owns conversation memory, serializes outgoing provider requests through a
// single worker, separates thought spans from visible output, and feeds tool
// results back into the conversation until the turn settles.
package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"toolchat/internal/logging"
	"toolchat/internal/provider"
	"toolchat/internal/tooling"
)

// Mode selects how provider replies are consumed.
type Mode int

const (
	// ModeQuery awaits one full reply per request.
	ModeQuery Mode = iota

	// ModeStream consumes the reply as incremental chunks, emitting
	// ai_chunk / thought_chunk deltas.
	ModeStream
)

// Options configures a Dialog.
type Options struct {
	// Provider is the injected model backend. Required.
	Provider provider.Provider

	// Tools, if non-empty, are registered with a dispatcher whose
	// capability briefing is appended to the system preamble.
	Tools []tooling.Tool

	// Preamble is the application-specific system prompt.
	Preamble string

	// Sink receives every DialogEvent. Optional.
	Sink Sink

	// OnError additionally receives every turn-level error. Optional.
	OnError func(error)

	// Mode selects streaming or single-shot response handling.
	Mode Mode
}

// Dialog drives one conversation. Memory is owned exclusively by the
// instance and never shared; all sends are serialized through one worker
// goroutine, so concurrent Asks only enqueue.
type Dialog struct {
	provider provider.Provider
	tooler   *tooling.Tooler
	mode     Mode
	sink     Sink
	onError  func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}

	mu      sync.Mutex
	memory  []provider.Message
	pending []provider.Message
	waiters []chan error
	stopped bool
	closed  bool
}

// ErrClosed is returned by Ask after Close.
var ErrClosed = errors.New("dialog closed")

// New creates a Dialog and starts its worker.
func New(opts Options) (*Dialog, error) {
	if opts.Provider == nil {
		return nil, errors.New("provider required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dialog{
		provider: opts.Provider,
		mode:     opts.Mode,
		sink:     opts.Sink,
		onError:  opts.OnError,
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
	}

	system := opts.Preamble
	if len(opts.Tools) > 0 {
		tooler, err := tooling.NewTooler(opts.Tools, tooling.Events{
			OnCall: func(c tooling.Call) {
				d.emit(Event{Type: EventToolCall, CallID: c.ID, Call: &c})
			},
			OnLog: func(id, line string) {
				d.emit(Event{Type: EventToolLog, CallID: id, Text: line})
			},
			OnResult: func(r tooling.Result) {
				d.emit(Event{Type: EventToolResult, CallID: r.ID, Result: &r})
			},
		})
		if err != nil {
			cancel()
			return nil, err
		}
		d.tooler = tooler
		if system != "" {
			system += "\n\n"
		}
		system += tooler.Preprompt()
	}
	if system != "" {
		d.memory = []provider.Message{{Role: provider.RoleSystem, Content: system}}
	}

	go d.run()
	return d, nil
}

// Ask wraps text as a user message and enqueues it, blocking until the
// resulting turn settles (or ctx is cancelled, which only stops waiting).
func (d *Dialog) Ask(ctx context.Context, text string) error {
	return d.AskMessage(ctx, provider.Message{Role: provider.RoleUser, Content: text})
}

// AskMessage enqueues a well-formed message. Malformed input fails fast with
// a validation error and a synchronous error event.
func (d *Dialog) AskMessage(ctx context.Context, msg provider.Message) error {
	if !msg.Role.Valid() || msg.Content == "" {
		err := fmt.Errorf("invalid message: role=%q content length=%d", msg.Role, len(msg.Content))
		d.emit(Event{Type: EventError, Err: err})
		if d.onError != nil {
			d.onError(err)
		}
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.mu.Unlock()

	// Emitted before the message is visible to the worker, so the ask event
	// always precedes the turn's ai_request.
	d.emit(Event{Type: EventAsk, Message: &msg})

	ch := make(chan error, 1)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.pending = append(d.pending, msg)
	d.waiters = append(d.waiters, ch)
	d.mu.Unlock()
	d.signal()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop prevents further queued sends from being dispatched. An in-flight
// turn still completes.
func (d *Dialog) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	logging.Dialog("stopped")
}

// Resume clears the stop flag and drains any backlog.
func (d *Dialog) Resume() {
	d.mu.Lock()
	d.stopped = false
	d.mu.Unlock()
	logging.Dialog("resumed")
	d.signal()
}

// Clear empties the pending queue and resets memory to the leading system
// messages. It does not cancel an in-flight provider call. Waiters for
// cleared messages are released.
func (d *Dialog) Clear() {
	d.mu.Lock()
	d.pending = nil
	var sys []provider.Message
	for _, m := range d.memory {
		if m.Role != provider.RoleSystem {
			break
		}
		sys = append(sys, m)
	}
	d.memory = sys
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	for _, w := range waiters {
		w <- nil
	}
	logging.Dialog("cleared (kept %d system messages)", len(sys))
}

// Close shuts down the worker. Pending waiters are released with ErrClosed.
func (d *Dialog) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	for _, w := range waiters {
		w <- ErrClosed
	}
	d.cancel()
}

// Memory returns a copy of the conversation memory.
func (d *Dialog) Memory() []provider.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]provider.Message, len(d.memory))
	copy(out, d.memory)
	return out
}

func (d *Dialog) emit(ev Event) {
	if d.sink != nil {
		d.sink(ev)
	}
}

func (d *Dialog) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dialog) run() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.wake:
			d.drain()
		}
	}
}

// drain runs turns until the pending queue is empty, then settles: emits
// done and releases the waiters. Any turn error is converted to an error
// event plus the error callback, and the worker survives for future asks.
func (d *Dialog) drain() {
	ranTurn := false
	for {
		d.mu.Lock()
		if d.stopped || d.closed {
			d.mu.Unlock()
			return
		}
		if len(d.pending) == 0 {
			waiters := d.waiters
			d.waiters = nil
			d.mu.Unlock()

			if ranTurn {
				d.emit(Event{Type: EventDone})
				logging.Dialog("turn settled")
			}
			for _, w := range waiters {
				w <- nil
			}
			return
		}

		batch := d.pending
		d.pending = nil
		d.memory = append(d.memory, batch...)
		request := make([]provider.Message, len(d.memory))
		copy(request, d.memory)
		d.mu.Unlock()

		if err := d.turn(request); err != nil {
			logging.DialogError("turn failed: %v", err)
			d.emit(Event{Type: EventError, Err: err})
			if d.onError != nil {
				d.onError(err)
			}

			d.mu.Lock()
			waiters := d.waiters
			d.waiters = nil
			d.mu.Unlock()
			for _, w := range waiters {
				w <- err
			}
			return
		}
		ranTurn = true
	}
}

// turn performs one request/response cycle: send memory, split thoughts from
// visible text, record the assistant reply, and dispatch at most one tool
// call whose result re-enters the conversation as a queued user message.
func (d *Dialog) turn(request []provider.Message) error {
	d.emit(Event{Type: EventAIRequest, Request: request})
	logging.DialogDebug("sending %d messages (mode=%d)", len(request), d.mode)

	var visible string
	var err error
	if d.mode == ModeStream {
		visible, err = d.streamReply(request)
	} else {
		visible, err = d.queryReply(request)
	}
	if err != nil {
		return err
	}

	d.emit(Event{Type: EventAIResponse, Text: visible})
	d.mu.Lock()
	d.memory = append(d.memory, provider.Message{Role: provider.RoleAssistant, Content: visible})
	d.mu.Unlock()

	if d.tooler == nil {
		return nil
	}
	if res := d.tooler.Dispatch(d.ctx, visible); res != nil {
		feedback := formatResult(res)
		d.mu.Lock()
		d.pending = append(d.pending, provider.Message{Role: provider.RoleUser, Content: feedback})
		d.mu.Unlock()
	}
	return nil
}

func (d *Dialog) queryReply(request []provider.Message) (string, error) {
	reply, err := d.provider.Query(d.ctx, request)
	if err != nil {
		return "", err
	}
	visible, thoughts := extractThoughts(reply)
	for _, th := range thoughts {
		d.emit(Event{Type: EventThought, Text: th})
	}
	return visible, nil
}

func (d *Dialog) streamReply(request []provider.Message) (string, error) {
	ch, err := d.provider.Stream(d.ctx, request)
	if err != nil {
		return "", err
	}

	var visible strings.Builder
	p := &thoughtParser{
		onVisible: func(s string) {
			visible.WriteString(s)
			d.emit(Event{Type: EventAIChunk, Text: s})
		},
		onThought: func(s string) {
			d.emit(Event{Type: EventThoughtChunk, Text: s})
		},
	}

	for chunk := range ch {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		p.feed(chunk.Text)
	}
	p.flush()
	return strings.TrimSpace(visible.String()), nil
}

// formatResult renders a tool result as the user-role feedback message the
// model sees next turn.
func formatResult(r *tooling.Result) string {
	if r.Err != "" {
		return fmt.Sprintf("Tool call %s failed.\nError: %s", r.ID, r.Err)
	}
	data, err := json.Marshal(r.Value)
	if err != nil {
		data = []byte(fmt.Sprintf("%q", fmt.Sprint(r.Value)))
	}
	return fmt.Sprintf("Tool call %s returned:\n%s", r.ID, data)
}
