// Package provider abstracts the language-model backend. The dialog layer
// treats implementations as opaque: failures propagate as errors caught at
// the turn boundary.
package provider

import "context"

// Role identifies a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the three known values.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one entry of conversation memory.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Chunk is one streaming fragment. Err non-nil terminates the stream.
type Chunk struct {
	Text string
	Err  error
}

// Provider is the injected model backend.
type Provider interface {
	// Query sends the conversation and returns one full reply.
	Query(ctx context.Context, messages []Message) (string, error)

	// Stream sends the conversation and returns incremental text
	// fragments. The channel is closed when the reply is complete or a
	// Chunk carrying Err has been delivered.
	Stream(ctx context.Context, messages []Message) (<-chan Chunk, error)
}
