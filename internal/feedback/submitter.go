package feedback

import (
	"context"
	"fmt"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

const feedbackPath = "/api/Chat/Feedback"

// JSONPoster is the part of the gateway the submitter needs.
type JSONPoster interface {
	PostJSON(ctx context.Context, path string, body, out any) error
}

// HTTPSubmitter posts feedback records to the backend.
type HTTPSubmitter struct {
	poster JSONPoster
}

func NewHTTPSubmitter(poster JSONPoster) *HTTPSubmitter {
	return &HTTPSubmitter{poster: poster}
}

func (s *HTTPSubmitter) SubmitFeedback(ctx context.Context, record *models.FeedbackRecord) (bool, error) {
	var accepted bool
	if err := s.poster.PostJSON(ctx, feedbackPath, record, &accepted); err != nil {
		return false, fmt.Errorf("post feedback: %w", err)
	}
	return accepted, nil
}
