// Package config loads server and client settings from a YAML file, a .env
// file and the environment, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Storage StorageConfig `yaml:"storage"`
	Index   IndexConfig   `yaml:"index"`
	Client  ClientConfig  `yaml:"client"`
	Auth    AuthConfig    `yaml:"auth"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LLMConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	EmbeddingEndpoint string        `yaml:"embedding_endpoint"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	APIKey            string        `yaml:"api_key"`
	DefaultModel      string        `yaml:"default_model"`
	SystemPromptPath  string        `yaml:"system_prompt_path"`
	Timeout           time.Duration `yaml:"timeout"`
	// Models maps the model names clients send to LLM model ids.
	Models map[string]string `yaml:"models"`
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver           string `yaml:"driver"`
	Path             string `yaml:"path"`
	ConnectionString string `yaml:"connection_string"`
}

type IndexConfig struct {
	// Path of the bleve index; empty keeps it in memory.
	Path         string `yaml:"path"`
	DefaultName  string `yaml:"default_name"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Limit        int    `yaml:"limit"`
	// RewriteQuery asks the LLM for search words before retrieval.
	RewriteQuery bool `yaml:"rewrite_query"`
}

type ClientConfig struct {
	APIEndpoint    string             `yaml:"api_endpoint"`
	AccessToken    string             `yaml:"access_token"`
	Timeout        time.Duration      `yaml:"timeout"`
	DefaultOptions models.ChatOptions `yaml:"default_options"`
}

type AuthConfig struct {
	AccessTokens []string `yaml:"access_tokens"`
}

// Load reads the YAML file at path (skipped when path is empty), then the
// .env file at envPath when it exists, then applies environment overrides
// and defaults.
func Load(path, envPath string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString("LLM_ENDPOINT", &cfg.LLM.Endpoint)
	setString("LLM_EMBEDDING_ENDPOINT", &cfg.LLM.EmbeddingEndpoint)
	setString("LLM_EMBEDDING_MODEL", &cfg.LLM.EmbeddingModel)
	setString("LLM_API_KEY", &cfg.LLM.APIKey)
	setString("LLM_DEFAULT_MODEL", &cfg.LLM.DefaultModel)
	setString("DB_DRIVER", &cfg.Storage.Driver)
	setString("DB_CONNECTION_STRING", &cfg.Storage.ConnectionString)
	setString("DB_PATH", &cfg.Storage.Path)
	setString("IP_ADDRESS", &cfg.Server.Host)
	setString("API_ENDPOINT", &cfg.Client.APIEndpoint)
	setString("API_ACCESS_TOKEN", &cfg.Client.AccessToken)

	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv("ACCESS_TOKENS"); ok {
		cfg.Auth.AccessTokens = splitList(v)
	}
	if v, ok := os.LookupEnv("DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}
	return nil
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Storage.ConnectionString == "" {
			return errors.New("storage.connection_string is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap (%d) must be smaller than index.chunk_size (%d)", c.Index.ChunkOverlap, c.Index.ChunkSize)
	}
	if err := models.Validate(c.Client.DefaultOptions); err != nil {
		return fmt.Errorf("invalid client.default_options: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
