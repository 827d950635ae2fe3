package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("GEMINI_API_KEY sets the key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("TOOLCHAT_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
	})

	t.Run("TOOLCHAT_API_KEY wins over GEMINI_API_KEY", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("TOOLCHAT_API_KEY", "chat-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "chat-key", cfg.LLM.APIKey)
	})

	t.Run("env does not clobber file values when unset", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("TOOLCHAT_API_KEY", "")
		t.Setenv("TOOLCHAT_MODEL", "")

		cfg := &Config{LLM: LLMConfig{APIKey: "file-key", Model: "file-model"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "file-key", cfg.LLM.APIKey)
		assert.Equal(t, "file-model", cfg.LLM.Model)
	})

	t.Run("TOOLCHAT_MODEL overrides the model", func(t *testing.T) {
		t.Setenv("TOOLCHAT_MODEL", "gemini-exp")

		cfg := &Config{LLM: LLMConfig{Model: "file-model"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-exp", cfg.LLM.Model)
	})
}

func TestEnvOverrides_Browser(t *testing.T) {
	t.Setenv("TOOLCHAT_DEBUGGER_URL", "ws://127.0.0.1:9222/devtools")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "ws://127.0.0.1:9222/devtools", cfg.Browser.DebuggerURL)
	assert.True(t, cfg.Browser.Enabled, "a debugger URL implies the browser tool")
}
