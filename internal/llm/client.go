package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tune a single completion. Zero values fall back to the
// client's defaults.
type CompletionOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client sends a conversation to the LLM server and returns the reply text.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	GetEmbedding(ctx context.Context, input string, modelName string) ([]float32, error)
}

// CredentialProvider supplies the bearer key for LLM requests.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredential is a fixed API key. An empty key sends no Authorization header.
type StaticCredential string

func (c StaticCredential) Token(context.Context) (string, error) {
	return string(c), nil
}
