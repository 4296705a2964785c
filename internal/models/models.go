package models

import "time"

type Document struct {
	ID        string    `json:"documentId"`
	Dataset   string    `json:"dataset"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chunk is a retrievable slice of a document's body.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Vec        []float32 `json:"-"`
}

type HistoryEntry struct {
	Role     string     `json:"role"`
	Content  string     `json:"content"`
	Datetime *time.Time `json:"datetime,omitempty"`
}

type ChatSession struct {
	ID       string         `json:"id"`
	Messages []HistoryEntry `json:"messages"`
	Model    string         `json:"model"`
}

// ChatOptions are replaced as a whole; a change applies from the next question on.
type ChatOptions struct {
	Model       string  `json:"model" yaml:"model" validate:"required"`
	Source      string  `json:"source" yaml:"source"`
	Temperature float64 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `json:"maxTokens" yaml:"max_tokens" validate:"gt=0"`
}

// Reference points at the document and chunk that back an answer.
type Reference struct {
	DocumentID  string `json:"documentId"`
	Label       string `json:"label"`
	Location    string `json:"location"`
	DocumentURL string `json:"documentUrl,omitempty"`
	ChunkText   string `json:"chunkText,omitempty"`
}

type FeedbackRecord struct {
	ID                  string         `json:"id,omitempty"`
	IsPositive          bool           `json:"isPositive"`
	Reason              string         `json:"reason" validate:"required"`
	Comment             string         `json:"comment"`
	History             []HistoryEntry `json:"history"`
	Options             ChatOptions    `json:"options"`
	Sources             []Reference    `json:"sources"`
	FilterByDocumentIDs []string       `json:"filterByDocumentIds"`
	GroundTruthAnswer   string         `json:"groundTruthAnswer"`
	DocumentURLs        []string       `json:"documentURLs"`
	ChunkTexts          []string       `json:"chunkTexts"`
	CreatedAt           time.Time      `json:"createdAt,omitempty"`
}

// ConversationSnapshot is an immutable copy of the chat state taken when
// feedback is triggered.
type ConversationSnapshot struct {
	History             []HistoryEntry
	Options             ChatOptions
	FilterByDocumentIDs []string
}

type AccessToken struct {
	UserID     int64     `json:"id"`
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}
