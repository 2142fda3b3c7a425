package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http", cfg.Server.Mode)
	assert.Equal(t, 1200, cfg.Chunk.MaxLen)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.False(t, cfg.Mirror.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
  mode: stdio
chunk:
  max_len: 800
  overlap: 50
mirror:
  enabled: true
  write_timeout: 5s
seed:
  repo: acme/handbook/docs
  extensions: [".md"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "stdio", cfg.Server.Mode)
	assert.Equal(t, 800, cfg.Chunk.MaxLen)
	assert.Equal(t, 20, cfg.Chunk.MinLen)
	assert.Equal(t, 50, cfg.Chunk.Overlap)
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Mirror.WriteTimeout)
	assert.Equal(t, "localhost", cfg.Mirror.Host)
	assert.Equal(t, "acme/handbook/docs", cfg.Seed.Repo)
	assert.Equal(t, "docs", cfg.Seed.Collection)
	assert.Equal(t, []string{".md"}, cfg.Seed.Extensions)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("SERVER_MODE", "false")
	t.Setenv("QDRANT_HOST", "qdrant")
	t.Setenv("QDRANT_PORT", "6400")
	t.Setenv("MIRROR_ENABLED", "true")
	t.Setenv("SEED_GITHUB_REPO", "acme/handbook")
	t.Setenv("GITHUB_TOKEN", "ghp_x")
	t.Setenv("CHUNK_MAX_LEN", "600")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "stdio", cfg.Server.Mode)
	assert.Equal(t, "qdrant", cfg.Mirror.Host)
	assert.Equal(t, 6400, cfg.Mirror.Port)
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, "acme/handbook", cfg.Seed.Repo)
	assert.Equal(t, "ghp_x", cfg.Seed.Token)
	assert.Equal(t, 600, cfg.Chunk.MaxLen)
}

func TestEnvOverrideServerModeTrue(t *testing.T) {
	t.Setenv("SERVER_MODE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Server.Mode)
}

func TestEnvInvalidNumber(t *testing.T) {
	t.Setenv("QDRANT_PORT", "not-a-port")

	_, err := Load("")
	assert.ErrorContains(t, err, "QDRANT_PORT")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.OpenAI.APIKey = "sk"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing key", func(c *Config) { c.OpenAI.APIKey = "" }, "OPENAI_API_KEY"},
		{"bad mode", func(c *Config) { c.Server.Mode = "grpc" }, "server.mode"},
		{"bad max len", func(c *Config) { c.Chunk.MaxLen = 0 }, "chunk.max_len"},
		{"negative overlap", func(c *Config) { c.Chunk.Overlap = -1 }, "chunk.overlap"},
		{"bad top k", func(c *Config) { c.Retrieval.TopK = 0 }, "retrieval.top_k"},
		{"bad mirror port", func(c *Config) { c.Mirror.Enabled = true; c.Mirror.Port = 0 }, "mirror.port"},
		{"seed without collection", func(c *Config) { c.Seed.Repo = "a/b"; c.Seed.Collection = "" }, "seed.collection"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, valid().Validate())
}
