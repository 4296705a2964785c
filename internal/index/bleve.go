package index

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

const (
	fieldText       = "text"
	fieldTitle      = "title"
	fieldDocumentID = "document_id"
	fieldDataset    = "dataset"

	// maxChunksPerDocument bounds the lookup done when a document is removed.
	maxChunksPerDocument = 10000
)

type chunkDoc struct {
	DocumentID string `json:"document_id"`
	Dataset    string `json:"dataset"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// BleveIndex is a keyword index over document chunks.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	chunkMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt(fieldText, textFieldMapping)
	chunkMapping.AddFieldMappingsAt(fieldTitle, textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	chunkMapping.AddFieldMappingsAt(fieldDocumentID, keywordFieldMapping)
	chunkMapping.AddFieldMappingsAt(fieldDataset, keywordFieldMapping)

	im.AddDocumentMapping("chunk", chunkMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = chunkMapping
	return im
}

// NewBleveIndex opens the index at path, creating it when it does not exist.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemBleveIndex creates an index that lives only in memory.
func NewMemBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func (b *BleveIndex) IndexDocument(ctx context.Context, doc models.Document, chunks []models.Chunk) error {
	if err := b.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		err := batch.Index(c.ID, chunkDoc{
			DocumentID: doc.ID,
			Dataset:    doc.Dataset,
			Title:      doc.Title,
			Text:       c.Text,
		})
		if err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	return nil
}

// Search matches q.Text against chunk text and titles, restricted to
// q.Dataset and to any of q.DocumentIDs when those are set.
func (b *BleveIndex) Search(ctx context.Context, q Query) ([]Hit, error) {
	text := bleve.NewMatchQuery(q.Text)
	text.SetField(fieldText)
	title := bleve.NewMatchQuery(q.Text)
	title.SetField(fieldTitle)

	must := []blevequery.Query{bleve.NewDisjunctionQuery(text, title)}
	if q.Dataset != "" {
		dataset := bleve.NewTermQuery(q.Dataset)
		dataset.SetField(fieldDataset)
		must = append(must, dataset)
	}
	if len(q.DocumentIDs) > 0 {
		must = append(must, documentFilter(q.DocumentIDs))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(must...), limit, 0, false)
	req.Fields = []string{fieldText, fieldDocumentID}

	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		hits = append(hits, Hit{
			ChunkID:    h.ID,
			DocumentID: stringField(h.Fields, fieldDocumentID),
			Text:       stringField(h.Fields, fieldText),
			Score:      h.Score,
		})
	}
	return hits, nil
}

func (b *BleveIndex) DeleteDocument(ctx context.Context, documentID string) error {
	req := bleve.NewSearchRequestOptions(documentFilter([]string{documentID}), maxChunksPerDocument, 0, false)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to look up chunks of %s: %w", documentID, err)
	}
	if len(results.Hits) == 0 {
		return nil
	}

	batch := b.index.NewBatch()
	for _, h := range results.Hits {
		batch.Delete(h.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
	}
	return nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func documentFilter(ids []string) blevequery.Query {
	terms := make([]blevequery.Query, 0, len(ids))
	for _, id := range ids {
		t := bleve.NewTermQuery(id)
		t.SetField(fieldDocumentID)
		terms = append(terms, t)
	}
	return bleve.NewDisjunctionQuery(terms...)
}

func stringField(fields map[string]interface{}, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}
