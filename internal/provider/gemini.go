package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"toolchat/internal/logging"
)

// Gemini talks to Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Query sends the conversation and returns the full reply text.
func (g *Gemini) Query(ctx context.Context, messages []Message) (string, error) {
	contents, cfg := toGenAI(messages)
	logging.ProviderDebug("query: %d messages -> %s", len(messages), g.model)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini query: %w", err)
	}
	return resp.Text(), nil
}

// Stream sends the conversation and forwards reply fragments as they arrive.
func (g *Gemini) Stream(ctx context.Context, messages []Message) (<-chan Chunk, error) {
	contents, cfg := toGenAI(messages)
	logging.ProviderDebug("stream: %d messages -> %s", len(messages), g.model)

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				ch <- Chunk{Err: fmt.Errorf("gemini stream: %w", err)}
				return
			}
			if text := resp.Text(); text != "" {
				ch <- Chunk{Text: text}
			}
		}
	}()
	return ch, nil
}

// toGenAI maps conversation memory onto the GenAI request shape: system
// messages join into the system instruction, user/assistant alternate as
// user/model contents.
func toGenAI(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}

	var cfg *genai.GenerateContentConfig
	if len(system) > 0 {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
			},
		}
	}
	return contents, cfg
}
