package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 8400, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 60, cfg.LLM.TimeoutSeconds)
	assert.Equal(t, 20, cfg.Session.MaxMessages)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.7, *cfg.LLM.Temperature, 0.001)
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8400, cfg.Server.Port)
}

func TestLoad_ParsesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  bind: lan
llm:
  provider: ollama
  model: llama3
  endpoint: http://localhost:11434
session:
  maxMessages: 10
  store: sqlite
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "lan", cfg.Server.Bind)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 10, cfg.Session.MaxMessages)
	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_PartialFile_FillsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, 20, cfg.Session.MaxMessages)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: valid")

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_ExpandsAPIKeyEnvVar(t *testing.T) {
	t.Setenv("TEST_CAREMATE_KEY", "secret123")
	path := writeConfig(t, `
llm:
  apiKey: ${TEST_CAREMATE_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret123", cfg.LLM.APIKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CAREMATE_PORT", "7777")
	t.Setenv("CAREMATE_LOG_LEVEL", "DEBUG")
	t.Setenv("CAREMATE_SESSION_STORE", "sqlite")
	t.Setenv("CAREMATE_MAX_MESSAGES", "8")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, 8, cfg.Session.MaxMessages)
}

func TestLoad_GoogleAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "env-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
}

func TestValidate_OK(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.APIKey = "key"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Issues(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 99999
	cfg.Server.Bind = "whatever"
	cfg.LLM.Provider = "openai"
	cfg.Session.MaxMessages = 0
	cfg.Session.Store = "redis"
	cfg.Logging.Level = "loud"

	issues := Validate(&cfg)
	require.NotEmpty(t, issues)

	paths := make([]string, 0, len(issues))
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	assert.Contains(t, paths, "server.port")
	assert.Contains(t, paths, "server.bind")
	assert.Contains(t, paths, "llm.provider")
	assert.Contains(t, paths, "session.maxMessages")
	assert.Contains(t, paths, "session.store")
	assert.Contains(t, paths, "logging.level")
}

func TestValidate_GeminiRequiresAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.APIKey = ""

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "llm.apiKey", issues[0].Path)
}

func TestResolvePaths_HomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CAREMATE_HOME", dir)

	paths, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, dir, paths.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(dir, "data"), paths.Data)
}
