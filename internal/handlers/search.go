package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	api "github.com/mrhollen/KnowledgeChat/internal/api/search"
	"github.com/mrhollen/KnowledgeChat/internal/db"
	"github.com/mrhollen/KnowledgeChat/internal/index"
	"github.com/mrhollen/KnowledgeChat/internal/models"
)

// SearchHandler returns ranked chunks with their document's title and url.
type SearchHandler struct {
	DB     db.DB
	Index  index.Index
	Limit  int
	Logger *zap.Logger
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := models.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, "query is required and limit must be between 1 and 100")
		return
	}

	dataset := req.Dataset
	if dataset != "" {
		var err error
		if dataset, err = index.CleanName(dataset, ""); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	limit := h.Limit
	if req.Limit != nil {
		limit = *req.Limit
	}

	ctx := r.Context()
	hits, err := h.Index.Search(ctx, index.Query{
		Text:        req.Query,
		Dataset:     dataset,
		DocumentIDs: req.DocumentIDs,
		Limit:       limit,
	})
	if err != nil {
		h.Logger.Error("search failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to search documents")
		return
	}

	response := api.SearchResponse{Responses: []api.SearchResponseContent{}}
	docs := make(map[string]*models.Document)
	for _, hit := range hits {
		doc, ok := docs[hit.DocumentID]
		if !ok {
			doc, err = h.DB.GetDocument(ctx, hit.DocumentID)
			if errors.Is(err, db.ErrNotFound) {
				h.Logger.Warn("indexed chunk without document", zap.String("document_id", hit.DocumentID))
				continue
			}
			if err != nil {
				h.Logger.Error("failed to load document", zap.String("document_id", hit.DocumentID), zap.Error(err))
				respondError(w, http.StatusInternalServerError, "Failed to search documents")
				return
			}
			docs[hit.DocumentID] = doc
		}
		response.Responses = append(response.Responses, api.SearchResponseContent{
			DocumentID: hit.DocumentID,
			ChunkID:    hit.ChunkID,
			Title:      doc.Title,
			URL:        doc.URL,
			Text:       hit.Text,
			Score:      hit.Score,
		})
	}
	respondJSON(w, http.StatusOK, response)
}
