package dialog

import (
	"toolchat/internal/provider"
	"toolchat/internal/tooling"
)

// EventType tags a DialogEvent.
type EventType string

const (
	// EventAsk fires when a message is accepted for sending.
	EventAsk EventType = "ask"

	// EventAIRequest carries the outgoing message batch of one provider call.
	EventAIRequest EventType = "ai_request"

	// EventAIChunk and EventThoughtChunk are streaming deltas of visible
	// and thought text respectively.
	EventAIChunk      EventType = "ai_chunk"
	EventThoughtChunk EventType = "thought_chunk"

	// EventAIResponse carries the finalized visible reply; EventThought a
	// finalized thought span (query mode).
	EventAIResponse EventType = "ai_response"
	EventThought    EventType = "thought"

	// Tool lifecycle. A tool_call is always followed by exactly one
	// tool_result for the same id.
	EventToolCall   EventType = "tool_call"
	EventToolLog    EventType = "tool_log"
	EventToolResult EventType = "tool_result"

	// EventDone marks a settled turn; EventError a failed one.
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one lifecycle notification. Which fields are set depends on Type.
// Events are fire-and-forget: they carry no acknowledgement and the sink
// must not block or throw.
type Event struct {
	Type    EventType
	Text    string              // chunk/response/thought/log text
	Message *provider.Message   // ask
	Request []provider.Message  // ai_request
	CallID  string              // tool_log
	Call    *tooling.Call       // tool_call
	Result  *tooling.Result     // tool_result
	Err     error               // error
}

// Sink receives every event in emission order.
type Sink func(Event)
