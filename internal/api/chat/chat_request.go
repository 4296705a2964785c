package api

import "github.com/mrhollen/KnowledgeChat/internal/models"

type ChatRequest struct {
	Question      string              `json:"Question" validate:"required"`
	ChatSessionID string              `json:"chatSessionId" validate:"required"`
	DocumentIDs   []string            `json:"DocumentIds"`
	Options       *models.ChatOptions `json:"options,omitempty"`
}
