package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/pkg/utils"
)

// DefaultSystemPrompt is used when no system prompt file is present.
const DefaultSystemPrompt = `You answer questions using only the provided documents.
Reply with a JSON object of the form
{"answer": "<markdown answer>", "suggestingQuestions": ["<follow-up>", ...], "keywords": ["<keyword>", ...]}.
If the documents do not contain the answer, say so in "answer".`

var ErrEmptyResponse = errors.New("no response from LLM server")

type OpenAIClient struct {
	endpoint          string
	embeddingEndpoint string
	credentials       CredentialProvider
	httpClient        *http.Client
	systemPrompt      string
	defaultModelName  string
	logger            *zap.Logger
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type openAIResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type Option func(*OpenAIClient)

func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenAIClient) { o.httpClient = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *OpenAIClient) { o.logger = utils.OrNop(l) }
}

func WithSystemPrompt(prompt string) Option {
	return func(o *OpenAIClient) { o.systemPrompt = prompt }
}

// LoadSystemPrompt reads the system prompt from path, falling back to
// DefaultSystemPrompt when the file is missing or empty.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSystemPrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	if prompt := strings.TrimSpace(string(data)); prompt != "" {
		return prompt, nil
	}
	return DefaultSystemPrompt, nil
}

func NewOpenAIClient(endpoint, embeddingEndpoint string, credentials CredentialProvider, defaultModelName string, opts ...Option) *OpenAIClient {
	if credentials == nil {
		credentials = StaticCredential("")
	}
	c := &OpenAIClient{
		endpoint:          endpoint,
		embeddingEndpoint: embeddingEndpoint,
		credentials:       credentials,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		systemPrompt:     DefaultSystemPrompt,
		defaultModelName: defaultModelName,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete prepends the system prompt to messages and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	return c.complete(ctx, c.systemPrompt, messages, opts)
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt string, messages []Message, opts CompletionOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.defaultModelName
	}

	all := make([]Message, 0, len(messages)+1)
	if systemPrompt != "" {
		all = append(all, Message{Role: RoleSystem, Content: systemPrompt})
	}
	all = append(all, messages...)

	reqBody := openAIRequest{
		Model:       model,
		Messages:    all,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	var resp openAIResponse
	if err := c.post(ctx, c.endpoint, reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// GetSearchWords asks the model to condense a question into a search query.
func (c *OpenAIClient) GetSearchWords(ctx context.Context, question string, modelName string) (string, error) {
	words, err := c.complete(ctx, "", []Message{{
		Role:    RoleUser,
		Content: "Please create a search query for this. ONLY give me the search string. Do not use quotes: \n\n" + question,
	}}, CompletionOptions{Model: modelName})
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(words), `"`), nil
}

func (c *OpenAIClient) GetEmbedding(ctx context.Context, input string, modelName string) ([]float32, error) {
	if modelName == "" {
		modelName = c.defaultModelName
	}

	var resp openAIEmbeddingResponse
	if err := c.post(ctx, c.embeddingEndpoint, openAIEmbeddingRequest{Model: modelName, Input: input}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Data[0].Embedding, nil
}

func (c *OpenAIClient) post(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.credentials.Token(ctx)
	if err != nil {
		return fmt.Errorf("get LLM credentials: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("LLM request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("LLM request finished",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("LLM server returned status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode LLM response: %w", err)
	}
	return nil
}
