package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "gpt-4.1-nano", cfg.LLM.Model)
	assert.Equal(t, 10, cfg.Chat.HistoryLimit)
	assert.Equal(t, "You are a helpful assistant.", cfg.Chat.SystemPrompt)
	assert.Equal(t, "Please enter a message.", cfg.Chat.EmptyMessageReply)
	assert.Equal(t, 0.100, cfg.Pricing.InputPerMillion)
	assert.Equal(t, 0.400, cfg.Pricing.OutputPerMillion)
	assert.Equal(t, "Asia/Seoul", cfg.Tools.DateTimezone)
	require.NoError(t, Validate(cfg))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-nano", cfg.LLM.Model)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
chat:
  history_limit: 20
llm:
  model: gpt-test
  api_key: sk-from-file
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 20, cfg.Chat.HistoryLimit)
	assert.Equal(t, "gpt-test", cfg.LLM.Model)
	assert.Equal(t, "sk-from-file", cfg.LLM.APIKey)
	// Untouched fields keep their defaults.
	assert.Equal(t, "Please enter a message.", cfg.Chat.EmptyMessageReply)
}

func TestEnvOverridesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  model: gpt-from-file
  api_key: sk-from-file
`), 0o600))

	t.Setenv("PARLEY_MODEL", "gpt-from-env")
	t.Setenv("PARLEY_OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-from-env", cfg.LLM.Model)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero history limit", func(c *Config) { c.Chat.HistoryLimit = 0 }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"negative pricing", func(c *Config) { c.Pricing.InputPerMillion = -1 }},
		{"relative base url", func(c *Config) { c.LLM.BaseURL = "api.openai.com" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoadDecryptsSecrets(t *testing.T) {
	encrypted, err := EncryptValue("sk-secret", "passphrase-1")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  api_key: enc:"+encrypted+"\n"), 0o600))

	t.Setenv("PARLEY_CONFIG_KEY", "passphrase-1")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
}

func TestLoadEncryptedWithoutKeyFails(t *testing.T) {
	encrypted, err := EncryptValue("sk-secret", "passphrase-1")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  api_key: enc:"+encrypted+"\n"), 0o600))

	t.Setenv("PARLEY_CONFIG_KEY", "")
	_, err = Load(path)
	assert.ErrorContains(t, err, "PARLEY_CONFIG_KEY")
}
