package main

import (
	"context"
	"testing"

	"toolchat/internal/dialog"
	"toolchat/internal/provider"
)

type nullProvider struct{}

func (nullProvider) Query(ctx context.Context, messages []provider.Message) (string, error) {
	return "ok", nil
}

func (nullProvider) Stream(ctx context.Context, messages []provider.Message) (<-chan provider.Chunk, error) {
	ch := make(chan provider.Chunk)
	close(ch)
	return ch, nil
}

func testSession(t *testing.T) *session {
	t.Helper()
	d, err := dialog.New(dialog.Options{Provider: nullProvider{}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Close)
	return &session{dialog: d}
}

func TestSlashCommands(t *testing.T) {
	s := testSession(t)

	if !slashCommand(s, "/quit") {
		t.Error("/quit should end the session")
	}
	if !slashCommand(s, "/exit") {
		t.Error("/exit should end the session")
	}
	for _, cmd := range []string{"/clear", "/stop", "/resume", "/help", "/bogus"} {
		if slashCommand(s, cmd) {
			t.Errorf("%s should not end the session", cmd)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	if version == "" {
		t.Fatal("version must be set")
	}
	versionCmd.Run(versionCmd, nil)
}
