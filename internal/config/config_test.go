package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

var envKeys = []string{
	"LLM_ENDPOINT", "LLM_EMBEDDING_ENDPOINT", "LLM_EMBEDDING_MODEL", "LLM_API_KEY", "LLM_DEFAULT_MODEL",
	"DB_DRIVER", "DB_CONNECTION_STRING", "DB_PATH", "IP_ADDRESS", "PORT",
	"API_ENDPOINT", "API_ACCESS_TOKEN", "ACCESS_TOKENS", "DEBUG",
}

// clearEnv unsets every variable Load reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { _ = os.Setenv(key, old) })
		} else {
			t.Cleanup(func() { _ = os.Unsetenv(key) })
		}
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 200, cfg.Index.ChunkSize)
	assert.Equal(t, 20, cfg.Index.ChunkOverlap)
	assert.Equal(t, 5, cfg.Index.Limit)
	assert.Equal(t, "default", cfg.Index.DefaultName)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, models.ChatOptions{Model: "chat_4o", Source: "rag", Temperature: 0.8, MaxTokens: 750}, cfg.Client.DefaultOptions)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, "gpt-4o", cfg.LLM.Models["chat_4o"])
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
debug: true
server:
  host: 127.0.0.1
  port: 9090
llm:
  endpoint: http://llm/v1/chat/completions
  timeout: 45s
  models:
    chat_35: my-deployment
storage:
  driver: sqlite
  path: /tmp/chat.db
index:
  chunk_size: 100
  chunk_overlap: 10
client:
  default_options:
    model: chat_35
    temperature: 0.2
    max_tokens: 300
auth:
  access_tokens: [a, b]
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "http://llm/v1/chat/completions", cfg.LLM.Endpoint)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, map[string]string{"chat_35": "my-deployment"}, cfg.LLM.Models)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 100, cfg.Index.ChunkSize)
	assert.Equal(t, models.ChatOptions{Model: "chat_35", Source: "rag", Temperature: 0.2, MaxTokens: 300}, cfg.Client.DefaultOptions)
	assert.Equal(t, []string{"a", "b"}, cfg.Auth.AccessTokens)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "server:\n  port: 9090\nstorage:\n  driver: sqlite\n")
	envPath := writeFile(t, ".env", "LLM_API_KEY=from-dotenv\nPORT=7000\n")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_CONNECTION_STRING", "postgres://localhost/chat")
	t.Setenv("ACCESS_TOKENS", " t1, ,t2 ")
	t.Setenv("PORT", "7100")

	cfg, err := Load(path, envPath)
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
	assert.Equal(t, 7100, cfg.Server.Port, "real environment wins over .env")
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, []string{"t1", "t2"}, cfg.Auth.AccessTokens)
}

func TestLoad_MissingDotenvIsIgnored(t *testing.T) {
	clearEnv(t)
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "unknown driver", yaml: "storage:\n  driver: mongo\n"},
		{name: "postgres without connection", yaml: "storage:\n  driver: postgres\n"},
		{name: "overlap too large", yaml: "index:\n  chunk_size: 10\n  chunk_overlap: 10\n"},
		{name: "bad options", yaml: "client:\n  default_options:\n    temperature: 3\n"},
		{name: "bad yaml", yaml: "server: [\n"},
		{name: "bad port", env: map[string]string{"PORT": "eighty"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "config.yaml", tt.yaml)
			}
			_, err := Load(path, "")
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}
