package db

import (
	"context"
	"errors"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

var ErrNotFound = errors.New("not found")

// DB stores documents, chat sessions, feedback and access tokens.
type DB interface {
	// AddDocument assigns an id when doc.ID is empty.
	AddDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// ListDocuments lists documents of a dataset, or all when dataset is empty.
	ListDocuments(ctx context.Context, dataset string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// GetSession returns an empty session for an unknown id.
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	SaveSession(ctx context.Context, session *models.ChatSession) error

	SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error
	ListFeedback(ctx context.Context) ([]models.FeedbackRecord, error)

	// GetAccessTokens returns the tokens that have not expired.
	GetAccessTokens(ctx context.Context) ([]models.AccessToken, error)

	Close() error
}
