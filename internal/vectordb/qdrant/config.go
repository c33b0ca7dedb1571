// Package qdrant is a minimal HTTP client for the Qdrant vector
// database, covering the operations the memory index needs.
package qdrant

import (
	"fmt"
	"strings"
	"time"
)

// Config holds connection settings for a Qdrant instance.
type Config struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	VectorSize int           `yaml:"vector_size"`
	Distance   string        `yaml:"distance"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultConfig returns settings for a local Qdrant instance.
func DefaultConfig() *Config {
	return &Config{
		URL:        "http://localhost:6333",
		Collection: "helixchat_memories",
		VectorSize: 1536,
		Distance:   "Cosine",
		Timeout:    10 * time.Second,
	}
}

// Validate checks the config for usable values.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("vector_size must be positive")
	}
	return nil
}

// BaseURL returns the URL without a trailing slash.
func (c *Config) BaseURL() string {
	return strings.TrimSuffix(c.URL, "/")
}
