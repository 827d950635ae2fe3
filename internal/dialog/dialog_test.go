package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"toolchat/internal/provider"
	"toolchat/internal/tooling"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// scriptedProvider replays canned replies in order. Stream mode splits each
// reply into small chunks to exercise the incremental path.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	next    int
	err     error
}

func (p *scriptedProvider) take() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	if p.next >= len(p.replies) {
		return "", fmt.Errorf("no scripted reply %d", p.next)
	}
	r := p.replies[p.next]
	p.next++
	return r, nil
}

func (p *scriptedProvider) Query(ctx context.Context, messages []provider.Message) (string, error) {
	return p.take()
}

func (p *scriptedProvider) Stream(ctx context.Context, messages []provider.Message) (<-chan provider.Chunk, error) {
	reply, err := p.take()
	if err != nil {
		return nil, err
	}
	ch := make(chan provider.Chunk)
	go func() {
		defer close(ch)
		for len(reply) > 0 {
			n := 3
			if n > len(reply) {
				n = len(reply)
			}
			ch <- provider.Chunk{Text: reply[:n]}
			reply = reply[n:]
		}
	}()
	return ch, nil
}

// recorder is a threadsafe event sink.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) byType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// answerTool returns 42 for the "run" command.
type answerTool struct{}

func (answerTool) Name() string      { return "calc" }
func (answerTool) Preprompt() string { return "calc: run returns the answer." }
func (answerTool) Execute(ctx context.Context, command, content string, log tooling.LogFunc) (any, error) {
	if command != "run" {
		return nil, fmt.Errorf("unknown command %q", command)
	}
	log("computing")
	return 42, nil
}

func callBlock(id, tool, command, content string) string {
	return fmt.Sprintf("%s%s/%s/%s\n```\n%s\n```", tooling.CallMarker, id, tool, command, content)
}

func TestAskPlainTurn(t *testing.T) {
	rec := &recorder{}
	d, err := New(Options{
		Provider: &scriptedProvider{replies: []string{"hello there"}},
		Sink:     rec.sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Ask(context.Background(), "hi"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	want := []EventType{EventAsk, EventAIRequest, EventAIResponse, EventDone}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	mem := d.Memory()
	if len(mem) != 2 {
		t.Fatalf("memory has %d messages, want 2", len(mem))
	}
	if mem[0].Role != provider.RoleUser || mem[1].Role != provider.RoleAssistant {
		t.Errorf("memory roles = %s, %s", mem[0].Role, mem[1].Role)
	}
	if mem[1].Content != "hello there" {
		t.Errorf("assistant content = %q", mem[1].Content)
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	first := "Let me compute that.\n\n" + callBlock("a1", "calc", "run", "answer")
	rec := &recorder{}
	d, err := New(Options{
		Provider: &scriptedProvider{replies: []string{first, "The answer is 42."}},
		Tools:    []tooling.Tool{answerTool{}},
		Preamble: "You are terse.",
		Sink:     rec.sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Ask(context.Background(), "what is the answer?"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	want := []EventType{
		EventAsk,
		EventAIRequest, EventAIResponse,
		EventToolCall, EventToolLog, EventToolResult,
		EventAIRequest, EventAIResponse,
		EventDone,
	}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	results := rec.byType(EventToolResult)
	if results[0].Result.Value != 42 || results[0].Result.ID != "a1" {
		t.Errorf("result = %+v", results[0].Result)
	}

	// The second request carries the tool feedback as a user message.
	reqs := rec.byType(EventAIRequest)
	last := reqs[1].Request[len(reqs[1].Request)-1]
	if last.Role != provider.RoleUser {
		t.Errorf("feedback role = %s", last.Role)
	}
	if last.Content != "Tool call a1 returned:\n42" {
		t.Errorf("feedback = %q", last.Content)
	}

	// System preamble includes the tool briefing.
	mem := d.Memory()
	if mem[0].Role != provider.RoleSystem {
		t.Fatalf("memory[0].Role = %s", mem[0].Role)
	}
	if !strings.Contains(mem[0].Content, "You are terse.") ||
		!strings.Contains(mem[0].Content, "calc: run returns the answer.") {
		t.Errorf("system preamble = %q", mem[0].Content)
	}
}

func TestToolErrorFeedback(t *testing.T) {
	first := callBlock("e1", "calc", "explode", "")
	rec := &recorder{}
	d, err := New(Options{
		Provider: &scriptedProvider{replies: []string{first, "Sorry, that failed."}},
		Tools:    []tooling.Tool{answerTool{}},
		Sink:     rec.sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Ask(context.Background(), "go"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	reqs := rec.byType(EventAIRequest)
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	last := reqs[1].Request[len(reqs[1].Request)-1]
	if !strings.HasPrefix(last.Content, "Tool call e1 failed.\nError: ") {
		t.Errorf("feedback = %q", last.Content)
	}
}

func TestStreamThoughts(t *testing.T) {
	rec := &recorder{}
	d, err := New(Options{
		Provider: &scriptedProvider{replies: []string{"<thinking>pondering deeply</thinking>The sky is blue."}},
		Sink:     rec.sink,
		Mode:     ModeStream,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Ask(context.Background(), "why is the sky blue?"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	var visible, thought strings.Builder
	for _, ev := range rec.byType(EventAIChunk) {
		visible.WriteString(ev.Text)
	}
	for _, ev := range rec.byType(EventThoughtChunk) {
		thought.WriteString(ev.Text)
	}
	if visible.String() != "The sky is blue." {
		t.Errorf("visible chunks = %q", visible.String())
	}
	if thought.String() != "pondering deeply" {
		t.Errorf("thought chunks = %q", thought.String())
	}

	resp := rec.byType(EventAIResponse)
	if len(resp) != 1 || resp[0].Text != "The sky is blue." {
		t.Errorf("ai_response = %+v", resp)
	}
	mem := d.Memory()
	if mem[len(mem)-1].Content != "The sky is blue." {
		t.Errorf("memory keeps thoughts: %q", mem[len(mem)-1].Content)
	}
}

func TestQueryThoughtEvents(t *testing.T) {
	rec := &recorder{}
	d, err := New(Options{
		Provider: &scriptedProvider{replies: []string{"<thinking>working</thinking>done"}},
		Sink:     rec.sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Ask(context.Background(), "go"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	thoughts := rec.byType(EventThought)
	if len(thoughts) != 1 || thoughts[0].Text != "working" {
		t.Errorf("thoughts = %+v", thoughts)
	}
	resp := rec.byType(EventAIResponse)
	if resp[0].Text != "done" {
		t.Errorf("visible = %q", resp[0].Text)
	}
}

func TestAskValidation(t *testing.T) {
	rec := &recorder{}
	d, err := New(Options{
		Provider: &scriptedProvider{},
		Sink:     rec.sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Ask(context.Background(), ""); err == nil {
		t.Error("empty content should be rejected")
	}
	if err := d.AskMessage(context.Background(), provider.Message{Role: "robot", Content: "x"}); err == nil {
		t.Error("unknown role should be rejected")
	}
	if n := len(rec.byType(EventError)); n != 2 {
		t.Errorf("got %d error events, want 2", n)
	}
	if len(d.Memory()) != 0 {
		t.Error("rejected messages must not enter memory")
	}
}

func TestProviderErrorSurfaced(t *testing.T) {
	boom := errors.New("backend down")
	var gotErr error
	d, err := New(Options{
		Provider: &scriptedProvider{err: boom},
		OnError:  func(e error) { gotErr = e },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Ask(context.Background(), "hi"); !errors.Is(err, boom) {
		t.Errorf("Ask error = %v, want %v", err, boom)
	}
	if !errors.Is(gotErr, boom) {
		t.Errorf("OnError got %v", gotErr)
	}
}

func TestStopResume(t *testing.T) {
	rec := &recorder{}
	d, err := New(Options{
		Provider: &scriptedProvider{replies: []string{"late reply"}},
		Sink:     rec.sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Ask(ctx, "queued"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Ask while stopped = %v, want deadline exceeded", err)
	}
	if len(rec.byType(EventAIRequest)) != 0 {
		t.Fatal("stopped dialog must not send")
	}

	d.Resume()
	deadline := time.After(2 * time.Second)
	for len(rec.byType(EventDone)) == 0 {
		select {
		case <-deadline:
			t.Fatal("resume did not drain the queue")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if mem := d.Memory(); mem[len(mem)-1].Content != "late reply" {
		t.Errorf("memory after resume = %+v", mem)
	}
}

func TestClearKeepsSystemPrefix(t *testing.T) {
	d, err := New(Options{
		Provider: &scriptedProvider{replies: []string{"first"}},
		Preamble: "stay helpful",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Ask(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if len(d.Memory()) != 3 {
		t.Fatalf("memory = %d messages before clear", len(d.Memory()))
	}

	d.Clear()
	mem := d.Memory()
	if len(mem) != 1 || mem[0].Role != provider.RoleSystem || mem[0].Content != "stay helpful" {
		t.Errorf("memory after clear = %+v", mem)
	}
}

func TestAskAfterClose(t *testing.T) {
	d, err := New(Options{Provider: &scriptedProvider{}})
	if err != nil {
		t.Fatal(err)
	}
	d.Close()
	if err := d.Ask(context.Background(), "hi"); !errors.Is(err, ErrClosed) {
		t.Errorf("Ask after close = %v, want ErrClosed", err)
	}
}
