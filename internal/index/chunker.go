package index

import (
	"fmt"
	"strings"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

// Chunker splits text into overlapping word windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap, in words.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into chunks of docID. Chunk ids are stable for the same
// input so re-indexing a document overwrites its previous chunks.
func (c *Chunker) Chunk(docID, text string) []models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}

	var chunks []models.Chunk
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, models.Chunk{
			ID:         fmt.Sprintf("%s_%d", docID, len(chunks)),
			DocumentID: docID,
			Index:      len(chunks),
			Text:       strings.Join(words[i:end], " "),
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}
