// Package config loads service configuration from an optional YAML
// file with environment overrides. A .env file is honored for local
// development; real deployments set the variables directly.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Context  ContextConfig  `yaml:"context"`
	Memory   MemoryConfig   `yaml:"memory"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	HeartbeatIntervalSeconds int    `yaml:"heartbeat_interval_seconds"`
}

// ProviderConfig points at the OpenAI-compatible generation backend.
type ProviderConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// ContextConfig tunes context assembly and the embedding pipeline.
type ContextConfig struct {
	RecentMessageCount    int     `yaml:"recent_message_count"`
	SemanticSearchResults int     `yaml:"semantic_search_results"`
	SubChatHistories      int     `yaml:"sub_chat_histories"`
	PreviousConversations int     `yaml:"previous_conversations"`
	MaxTotalTokens        int     `yaml:"max_total_tokens"`
	SemanticThreshold     float64 `yaml:"semantic_threshold"`
	EmbeddingBatchSize    int     `yaml:"embedding_batch_size"`
}

// MemoryConfig selects the long-term memory backend.
type MemoryConfig struct {
	// Backend is one of "memory", "sqlite", "qdrant".
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	QdrantURL  string `yaml:"qdrant_url"`
	QdrantKey  string `yaml:"qdrant_api_key"`
	Collection string `yaml:"collection"`
	VectorSize int    `yaml:"vector_size"`
}

// RedisConfig controls the embedding cache. Disabled means embeddings
// are recomputed on every request.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                     "0.0.0.0",
			Port:                     8087,
			HeartbeatIntervalSeconds: 15,
		},
		Provider: ProviderConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		Context: ContextConfig{
			RecentMessageCount:    10,
			SemanticSearchResults: 5,
			SubChatHistories:      5,
			PreviousConversations: 3,
			MaxTotalTokens:        8000,
			SemanticThreshold:     0.7,
			EmbeddingBatchSize:    10,
		},
		Memory: MemoryConfig{
			Backend:    "memory",
			SQLitePath: "helixchat_memory.db",
			QdrantURL:  "http://localhost:6333",
			Collection: "helixchat_memories",
			VectorSize: 1536,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (if any), then environment variables.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Host, "HELIXCHAT_HOST")
	setInt(&c.Server.Port, "HELIXCHAT_PORT")

	setString(&c.Provider.APIKey, "HELIXCHAT_API_KEY")
	setString(&c.Provider.BaseURL, "HELIXCHAT_BASE_URL")
	setString(&c.Provider.Model, "HELIXCHAT_MODEL")
	setString(&c.Provider.EmbeddingModel, "HELIXCHAT_EMBEDDING_MODEL")

	setInt(&c.Context.RecentMessageCount, "HELIXCHAT_RECENT_MESSAGE_COUNT")
	setInt(&c.Context.SemanticSearchResults, "HELIXCHAT_SEMANTIC_SEARCH_RESULTS")
	setInt(&c.Context.SubChatHistories, "HELIXCHAT_SUB_CHAT_HISTORIES")
	setInt(&c.Context.PreviousConversations, "HELIXCHAT_PREVIOUS_CONVERSATIONS")
	setInt(&c.Context.MaxTotalTokens, "HELIXCHAT_MAX_TOTAL_TOKENS")
	setFloat(&c.Context.SemanticThreshold, "HELIXCHAT_SEMANTIC_THRESHOLD")
	setInt(&c.Context.EmbeddingBatchSize, "HELIXCHAT_EMBEDDING_BATCH_SIZE")

	setString(&c.Memory.Backend, "HELIXCHAT_MEMORY_BACKEND")
	setString(&c.Memory.SQLitePath, "HELIXCHAT_SQLITE_PATH")
	setString(&c.Memory.QdrantURL, "HELIXCHAT_QDRANT_URL")
	setString(&c.Memory.QdrantKey, "HELIXCHAT_QDRANT_API_KEY")

	setBool(&c.Redis.Enabled, "HELIXCHAT_REDIS_ENABLED")
	setString(&c.Redis.Addr, "HELIXCHAT_REDIS_ADDR")
	setString(&c.Redis.Password, "HELIXCHAT_REDIS_PASSWORD")
	setInt(&c.Redis.DB, "HELIXCHAT_REDIS_DB")

	setString(&c.Logging.Level, "HELIXCHAT_LOG_LEVEL")
	setString(&c.Logging.Format, "HELIXCHAT_LOG_FORMAT")
}

// Validate rejects configurations that cannot possibly serve.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Context.MaxTotalTokens <= 0 {
		return fmt.Errorf("max_total_tokens must be positive, got %d", c.Context.MaxTotalTokens)
	}
	if c.Context.SemanticThreshold < 0 || c.Context.SemanticThreshold > 1 {
		return fmt.Errorf("semantic_threshold must be within [0,1], got %v", c.Context.SemanticThreshold)
	}
	switch c.Memory.Backend {
	case "memory", "sqlite", "qdrant":
	default:
		return fmt.Errorf("unknown memory backend: %q", c.Memory.Backend)
	}
	return nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
