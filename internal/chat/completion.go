package chat

import (
	"context"
	"fmt"

	api "github.com/mrhollen/KnowledgeChat/internal/api/chat"
	"github.com/mrhollen/KnowledgeChat/internal/models"
)

// CompletionRequest is one question sent to the backend.
type CompletionRequest struct {
	Question    string
	SessionID   string
	DocumentIDs []string
	Options     models.ChatOptions
}

// AnswerPayload is the backend's reply before rendering.
type AnswerPayload struct {
	Answer             string
	SuggestedFollowUps []string
	DocumentIDs        []string
	Keywords           []string
}

// CompletionProvider answers a question. It may fail.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*AnswerPayload, error)
}

// JSONPoster is the part of the gateway the chat client needs.
type JSONPoster interface {
	PostJSON(ctx context.Context, path string, body, out any) error
}

const chatPath = "/chat"

// HTTPCompletion calls POST /chat on the backend.
type HTTPCompletion struct {
	poster JSONPoster
}

func NewHTTPCompletion(poster JSONPoster) *HTTPCompletion {
	return &HTTPCompletion{poster: poster}
}

func (c *HTTPCompletion) Complete(ctx context.Context, req CompletionRequest) (*AnswerPayload, error) {
	opts := req.Options
	body := api.ChatRequest{
		Question:      req.Question,
		ChatSessionID: req.SessionID,
		DocumentIDs:   req.DocumentIDs,
		Options:       &opts,
	}

	var resp api.ChatResponse
	if err := c.poster.PostJSON(ctx, chatPath, body, &resp); err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if resp.Answer == nil || *resp.Answer == "" {
		return nil, ErrMalformedResponse
	}

	return &AnswerPayload{
		Answer:             *resp.Answer,
		SuggestedFollowUps: resp.SuggestingQuestions,
		DocumentIDs:        resp.DocumentIDs,
		Keywords:           resp.Keywords,
	}, nil
}
