package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/internal/db"
	"github.com/mrhollen/KnowledgeChat/internal/models"
)

type FeedbackHandler struct {
	DB      db.DB
	Metrics *Metrics
	Logger  *zap.Logger
}

// SubmitFeedback stores a feedback record and answers with a bare true.
func (h *FeedbackHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var record models.FeedbackRecord
	if !decodeJSON(w, r, &record) {
		return
	}
	record.Reason = strings.TrimSpace(record.Reason)
	if err := models.Validate(record); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid feedback record")
		return
	}
	// Ids are assigned by the store.
	record.ID = ""

	if err := h.DB.SaveFeedback(r.Context(), &record); err != nil {
		h.Logger.Error("failed to save feedback", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to save feedback")
		return
	}

	h.Metrics.feedback(record.IsPositive)
	h.Logger.Info("feedback received",
		zap.String("feedback_id", record.ID),
		zap.Bool("positive", record.IsPositive),
		zap.Int("sources", len(record.Sources)),
	)
	respondJSON(w, http.StatusOK, true)
}

func (h *FeedbackHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	records, err := h.DB.ListFeedback(r.Context())
	if err != nil {
		h.Logger.Error("failed to list feedback", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list feedback")
		return
	}
	respondJSON(w, http.StatusOK, records)
}
