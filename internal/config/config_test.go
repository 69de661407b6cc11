package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// isolate runs the test in an empty directory so no stray .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_FILE", "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "all", cfg.RunMode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 3, cfg.Chat.TopK)
	assert.Equal(t, 0, cfg.Chat.HistoryMessages)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, "postgres", cfg.QueueBackend())
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "sercha.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
run_mode = "worker"
port = 9000

[chunking]
size = 800
overlap = 100

[llm]
provider = "openai"
model = "gpt-4o-mini"
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "worker", cfg.RunMode)
	assert.Equal(t, 9100, cfg.Port, "environment wins over file")
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "redis", cfg.QueueBackend())

	llm := cfg.LLMSettings()
	assert.Equal(t, domain.AIProviderOpenAI, llm.Provider)
	assert.Equal(t, "gpt-4o-mini", llm.Model)
	assert.Equal(t, "sk-test", llm.APIKey)
	assert.True(t, llm.IsConfigured())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHUNK_SIZE=300\nCHUNK_OVERLAP=30\n"), 0o600))
	// godotenv does not override variables that are already set
	t.Setenv("CHUNK_OVERLAP", "10")
	t.Cleanup(func() { os.Unsetenv("CHUNK_SIZE") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Chunking.Size)
	assert.Equal(t, 10, cfg.Chunking.Overlap)
}

func TestLoad_BadFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = ["), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.toml")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown run mode", func(c *Config) { c.RunMode = "batch" }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "s3" }},
		{"unknown index", func(c *Config) { c.Index.Backend = "faiss" }},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"no secret", func(c *Config) { c.JWTSecret = "" }},
		{"negative temperature", func(c *Config) { c.LLM.Temperature = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Temperature = 0
	assert.NoError(t, cfg.Validate(), "zero temperature is a valid deterministic setting")
}

func TestEmbeddingSettings(t *testing.T) {
	cfg := Default()
	cfg.Embedding.RateLimit = 5

	s := cfg.EmbeddingSettings()
	assert.Equal(t, domain.AIProviderHash, s.Provider)
	assert.Equal(t, 384, s.Dimensions)
	assert.InDelta(t, 5.0, s.RateLimit, 1e-9)
	assert.True(t, s.IsConfigured())
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	assert.NotNil(t, cfg.Logger())

	cfg.LogLevel = "nonsense"
	assert.NotNil(t, cfg.Logger())
}
