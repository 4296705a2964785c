package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	api "github.com/mrhollen/KnowledgeChat/internal/api/documents"
	"github.com/mrhollen/KnowledgeChat/internal/db"
	"github.com/mrhollen/KnowledgeChat/internal/index"
	"github.com/mrhollen/KnowledgeChat/internal/models"
)

type DocumentHandler struct {
	DB             db.DB
	Index          index.Index
	Chunker        *index.Chunker
	DefaultDataset string
	Logger         *zap.Logger
}

func (h *DocumentHandler) AddDocument(w http.ResponseWriter, r *http.Request) {
	var req api.AddDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := models.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, "title and body are required and url must be valid")
		return
	}

	doc := models.Document{
		ID:      req.ID,
		Dataset: req.Dataset,
		Title:   req.Title,
		URL:     req.URL,
		Body:    req.Body,
	}
	h.ingest(r.Context(), w, &doc)
}

// ingest stores doc, indexes its chunks and writes the response.
func (h *DocumentHandler) ingest(ctx context.Context, w http.ResponseWriter, doc *models.Document) {
	dataset, err := index.CleanName(doc.Dataset, h.DefaultDataset)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc.Dataset = dataset

	if err := h.DB.AddDocument(ctx, doc); err != nil {
		h.Logger.Error("failed to add document", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to add document")
		return
	}

	chunks := h.Chunker.Chunk(doc.ID, doc.Body)
	if err := h.Index.IndexDocument(ctx, *doc, chunks); err != nil {
		h.Logger.Error("failed to index document", zap.String("document_id", doc.ID), zap.Error(err))
		if rbErr := h.DB.DeleteDocument(ctx, doc.ID); rbErr != nil {
			h.Logger.Error("failed to roll back unindexed document", zap.String("document_id", doc.ID), zap.Error(rbErr))
		}
		respondError(w, http.StatusInternalServerError, "Failed to index document")
		return
	}

	h.Logger.Info("document added",
		zap.String("document_id", doc.ID),
		zap.String("dataset", doc.Dataset),
		zap.Int("chunks", len(chunks)),
	)
	respondJSON(w, http.StatusCreated, api.AddDocumentResponse{
		ID:      doc.ID,
		Dataset: doc.Dataset,
		Chunks:  len(chunks),
	})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.DB.GetDocument(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		h.Logger.Error("failed to get document", zap.String("document_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get document")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	dataset := r.URL.Query().Get("dataset")
	if dataset != "" {
		var err error
		if dataset, err = index.CleanName(dataset, ""); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	docs, err := h.DB.ListDocuments(r.Context(), dataset)
	if err != nil {
		h.Logger.Error("failed to list documents", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

// DeleteDocument removes the document's chunks before the document itself,
// so a failed delete can be retried.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Index.DeleteDocument(r.Context(), id); err != nil {
		h.Logger.Error("failed to unindex document", zap.String("document_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove document %s from the index", id))
		return
	}

	err := h.DB.DeleteDocument(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		h.Logger.Error("failed to delete document", zap.String("document_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
