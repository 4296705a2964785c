package index

import (
	"context"
	"fmt"

	"github.com/mrhollen/KnowledgeChat/internal/db"
	"github.com/mrhollen/KnowledgeChat/internal/llm"
	"github.com/mrhollen/KnowledgeChat/internal/models"
)

// ChunkStore persists chunk vectors. db.PostgresDB implements it.
type ChunkStore interface {
	SaveChunks(ctx context.Context, chunks []models.Chunk) error
	SearchChunks(ctx context.Context, queryVector []float32, dataset string, documentIDs []string, limit int) ([]db.ChunkMatch, error)
	DeleteChunks(ctx context.Context, documentID string) error
}

// VectorIndex ranks chunks by embedding distance.
type VectorIndex struct {
	store    ChunkStore
	embedder llm.Embedder
	model    string
}

func NewVectorIndex(store ChunkStore, embedder llm.Embedder, embeddingModel string) *VectorIndex {
	return &VectorIndex{store: store, embedder: embedder, model: embeddingModel}
}

func (v *VectorIndex) IndexDocument(ctx context.Context, doc models.Document, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return v.store.DeleteChunks(ctx, doc.ID)
	}

	embedded := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		vec, err := v.embedder.GetEmbedding(ctx, c.Text, v.model)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %s: %w", c.ID, err)
		}
		c.DocumentID = doc.ID
		c.Vec = vec
		embedded[i] = c
	}
	return v.store.SaveChunks(ctx, embedded)
}

func (v *VectorIndex) Search(ctx context.Context, q Query) ([]Hit, error) {
	vec, err := v.embedder.GetEmbedding(ctx, q.Text, v.model)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	matches, err := v.store.SearchChunks(ctx, vec, q.Dataset, q.DocumentIDs, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, Hit{
			ChunkID:    m.Chunk.ID,
			DocumentID: m.Chunk.DocumentID,
			Text:       m.Chunk.Text,
			Score:      1 / (1 + m.Distance),
		})
	}
	return hits, nil
}

func (v *VectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	return v.store.DeleteChunks(ctx, documentID)
}

// Close is a no-op; the chunk store is closed by its owner.
func (v *VectorIndex) Close() error {
	return nil
}
