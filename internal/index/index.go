// Package index retrieves document chunks relevant to a question.
package index

import (
	"context"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

// Query restricts a search. Empty Dataset and DocumentIDs search everything.
type Query struct {
	Text        string
	Dataset     string
	DocumentIDs []string
	Limit       int
}

// Hit is one matching chunk, best first.
type Hit struct {
	ChunkID    string  `json:"chunkId"`
	DocumentID string  `json:"documentId"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type Index interface {
	// IndexDocument replaces the indexed chunks of doc.
	IndexDocument(ctx context.Context, doc models.Document, chunks []models.Chunk) error
	Search(ctx context.Context, q Query) ([]Hit, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Close() error
}
