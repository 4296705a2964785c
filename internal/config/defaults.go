package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = "gpt-4o"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.SystemPromptPath == "" {
		cfg.LLM.SystemPromptPath = "./system_prompt.txt"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if len(cfg.LLM.Models) == 0 {
		cfg.LLM.Models = map[string]string{
			"chat_4o": "gpt-4o",
			"chat_35": "gpt-3.5-turbo",
		}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverMemory
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "knowledgechat.db"
	}
	if cfg.Index.DefaultName == "" {
		cfg.Index.DefaultName = "default"
	}
	if cfg.Index.ChunkSize == 0 {
		cfg.Index.ChunkSize = 200
	}
	if cfg.Index.ChunkOverlap == 0 {
		cfg.Index.ChunkOverlap = 20
	}
	if cfg.Index.Limit == 0 {
		cfg.Index.Limit = 5
	}
	if cfg.Client.APIEndpoint == "" {
		cfg.Client.APIEndpoint = "http://localhost:8080"
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 60 * time.Second
	}
	opts := &cfg.Client.DefaultOptions
	if opts.Model == "" {
		opts.Model = "chat_4o"
	}
	if opts.Source == "" {
		opts.Source = "rag"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 750
	}
}
