package provider

import (
	"context"
	"testing"

	"google.golang.org/genai"
)

func TestToGenAI(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleSystem, Content: "tools available"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "compute"},
	}

	contents, cfg := toGenAI(msgs)

	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(contents))
	}
	if contents[0].Role != genai.RoleUser || contents[1].Role != genai.RoleModel {
		t.Errorf("roles = %s, %s", contents[0].Role, contents[1].Role)
	}
	if contents[1].Parts[0].Text != "hello" {
		t.Errorf("assistant text = %q", contents[1].Parts[0].Text)
	}

	if cfg == nil || cfg.SystemInstruction == nil {
		t.Fatal("system instruction missing")
	}
	if cfg.SystemInstruction.Parts[0].Text != "be brief\n\ntools available" {
		t.Errorf("system instruction = %q", cfg.SystemInstruction.Parts[0].Text)
	}
}

func TestToGenAINoSystem(t *testing.T) {
	_, cfg := toGenAI([]Message{{Role: RoleUser, Content: "hi"}})
	if cfg != nil {
		t.Error("config should be nil without system messages")
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "", "model"); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleSystem, RoleUser, RoleAssistant} {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}
	if Role("robot").Valid() {
		t.Error("unknown role should be invalid")
	}
}
