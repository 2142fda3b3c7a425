// Package config loads server settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the listeners.
type ServerConfig struct {
	Port string `yaml:"port"`
	// Mode is "http" (API and MCP over HTTP) or "stdio" (MCP over stdin/stdout,
	// API still served on Port).
	Mode            string        `yaml:"mode"`
	MCPStateless    bool          `yaml:"mcp_stateless"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OpenAIConfig configures every OpenAI call.
type OpenAIConfig struct {
	APIKey          string  `yaml:"-"`
	BaseURL         string  `yaml:"base_url"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	Dimensions      int     `yaml:"dimensions"`
	BatchSize       int     `yaml:"batch_size"`
	ChatModel       string  `yaml:"chat_model"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
	Enrich          bool    `yaml:"enrich"`
	EnrichMaxTokens int     `yaml:"enrich_max_tokens"`
}

// ChunkConfig configures the chunker.
type ChunkConfig struct {
	MaxLen int `yaml:"max_len"`
	MinLen int `yaml:"min_len"`
	// Overlap is accepted for compatibility and never applied.
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig configures search defaults.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// MirrorConfig configures the optional Qdrant mirror.
type MirrorConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Collection   string        `yaml:"collection"`
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SeedConfig configures seeding a collection from a GitHub directory at startup.
type SeedConfig struct {
	// Repo is "owner/repo" or "owner/repo/path"; empty disables seeding.
	Repo       string   `yaml:"repo"`
	Collection string   `yaml:"collection"`
	Extensions []string `yaml:"extensions"`
	Token      string   `yaml:"-"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Seed      SeedConfig      `yaml:"seed"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Mode:            "http",
			MaxUploadBytes:  32 << 20,
			ShutdownTimeout: 15 * time.Second,
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel:  "text-embedding-3-small",
			Dimensions:      1536,
			BatchSize:       500,
			ChatModel:       "gpt-4o-mini",
			MaxTokens:       1024,
			Temperature:     0.2,
			EnrichMaxTokens: 16000,
		},
		Chunk: ChunkConfig{
			MaxLen: 1200,
			MinLen: 20,
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Mirror: MirrorConfig{
			Host:         "localhost",
			Port:         6334,
			Collection:   "rag_documents",
			QueueSize:    256,
			WriteTimeout: 30 * time.Second,
		},
		Seed: SeedConfig{
			Collection: "docs",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config yaml: %w", err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.OpenAI.EmbeddingModel)
	cfg.OpenAI.ChatModel = getEnv("CHAT_MODEL", cfg.OpenAI.ChatModel)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Mirror.Host = getEnv("QDRANT_HOST", cfg.Mirror.Host)
	cfg.Mirror.Collection = getEnv("QDRANT_COLLECTION", cfg.Mirror.Collection)
	cfg.Seed.Repo = getEnv("SEED_GITHUB_REPO", cfg.Seed.Repo)
	cfg.Seed.Collection = getEnv("SEED_COLLECTION", cfg.Seed.Collection)
	cfg.Seed.Token = getEnv("GITHUB_TOKEN", cfg.Seed.Token)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	// SERVER_MODE=true selects HTTP mode, as it always has; other values name the mode.
	if v := os.Getenv("SERVER_MODE"); v != "" {
		switch v {
		case "true":
			cfg.Server.Mode = "http"
		case "false":
			cfg.Server.Mode = "stdio"
		default:
			cfg.Server.Mode = v
		}
	}

	var err error
	if cfg.Mirror.Port, err = getEnvInt("QDRANT_PORT", cfg.Mirror.Port); err != nil {
		return err
	}
	if cfg.Chunk.MaxLen, err = getEnvInt("CHUNK_MAX_LEN", cfg.Chunk.MaxLen); err != nil {
		return err
	}
	if cfg.Chunk.Overlap, err = getEnvInt("CHUNK_OVERLAP", cfg.Chunk.Overlap); err != nil {
		return err
	}
	if cfg.Mirror.Enabled, err = getEnvBool("MIRROR_ENABLED", cfg.Mirror.Enabled); err != nil {
		return err
	}
	if cfg.OpenAI.Enrich, err = getEnvBool("ENRICH_METADATA", cfg.OpenAI.Enrich); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.Server.Mode != "http" && c.Server.Mode != "stdio" {
		errs = append(errs, fmt.Errorf("server.mode must be http or stdio, got %q", c.Server.Mode))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Chunk.MaxLen <= 0 {
		errs = append(errs, fmt.Errorf("chunk.max_len must be positive, got %d", c.Chunk.MaxLen))
	}
	if c.Chunk.MinLen < 0 {
		errs = append(errs, fmt.Errorf("chunk.min_len must not be negative, got %d", c.Chunk.MinLen))
	}
	if c.Chunk.Overlap < 0 {
		errs = append(errs, fmt.Errorf("chunk.overlap must not be negative, got %d", c.Chunk.Overlap))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.OpenAI.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("openai.dimensions must be positive, got %d", c.OpenAI.Dimensions))
	}
	if c.Mirror.Enabled && (c.Mirror.Port <= 0 || c.Mirror.Port > 65535) {
		errs = append(errs, fmt.Errorf("mirror.port out of range: %d", c.Mirror.Port))
	}
	if c.Seed.Repo != "" && c.Seed.Collection == "" {
		errs = append(errs, errors.New("seed.collection is required when seed.repo is set"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
