package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

// MemoryDB keeps everything in process. Sessions expire after an hour of
// inactivity; documents, feedback and tokens live until Close.
type MemoryDB struct {
	sessions *cache.Cache

	mu        sync.RWMutex
	documents map[string]models.Document
	feedback  []models.FeedbackRecord
	tokens    []models.AccessToken
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		sessions:  cache.New(1*time.Hour, 10*time.Minute),
		documents: make(map[string]models.Document),
	}
}

func (m *MemoryDB) AddDocument(_ context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.documents[doc.ID] = *doc
	m.mu.Unlock()
	return nil
}

func (m *MemoryDB) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (m *MemoryDB) ListDocuments(_ context.Context, dataset string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := []models.Document{}
	for _, doc := range m.documents {
		if dataset == "" || doc.Dataset == dataset {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

func (m *MemoryDB) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[id]; !ok {
		return ErrNotFound
	}
	delete(m.documents, id)
	return nil
}

func (m *MemoryDB) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	if x, found := m.sessions.Get(id); found {
		stored := x.(models.ChatSession)
		stored.Messages = append([]models.HistoryEntry{}, stored.Messages...)
		return &stored, nil
	}
	return &models.ChatSession{ID: id, Messages: []models.HistoryEntry{}}, nil
}

func (m *MemoryDB) SaveSession(_ context.Context, session *models.ChatSession) error {
	stored := *session
	stored.Messages = append([]models.HistoryEntry{}, session.Messages...)
	m.sessions.Set(session.ID, stored, cache.DefaultExpiration)
	return nil
}

func (m *MemoryDB) SaveFeedback(_ context.Context, record *models.FeedbackRecord) error {
	prepareFeedback(record)

	m.mu.Lock()
	m.feedback = append(m.feedback, *record)
	m.mu.Unlock()
	return nil
}

func (m *MemoryDB) ListFeedback(context.Context) ([]models.FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.FeedbackRecord{}, m.feedback...), nil
}

func (m *MemoryDB) AddAccessToken(_ context.Context, token models.AccessToken) error {
	m.mu.Lock()
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()
	return nil
}

func (m *MemoryDB) GetAccessTokens(context.Context) ([]models.AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var tokens []models.AccessToken
	for _, t := range m.tokens {
		if t.Expiration.After(now) {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

func (m *MemoryDB) Close() error {
	m.sessions.Flush()
	return nil
}
