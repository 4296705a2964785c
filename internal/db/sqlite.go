package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

type SQLiteDB struct {
	conn *sql.DB
}

// NewSQLiteDB opens or creates the database at dataSourceName. ":memory:"
// gives a throwaway database.
func NewSQLiteDB(dataSourceName string) (*SQLiteDB, error) {
	if dataSourceName != ":memory:" {
		if dir := filepath.Dir(dataSourceName); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see a different database.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			dataset TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT,
			body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_dataset ON documents(dataset);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			messages TEXT NOT NULL,
			model TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			is_positive INTEGER NOT NULL,
			reason TEXT NOT NULL,
			record TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS access_tokens (
			user_id INTEGER NOT NULL,
			token TEXT PRIMARY KEY,
			expiration TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := conn.Exec(q); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &SQLiteDB{conn: conn}, nil
}

func (s *SQLiteDB) AddDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (id, dataset, title, url, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			dataset = excluded.dataset,
			title = excluded.title,
			url = excluded.url,
			body = excluded.body
	`
	if _, err := s.conn.ExecContext(ctx, query, doc.ID, doc.Dataset, doc.Title, doc.URL, doc.Body, doc.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT id, dataset, title, COALESCE(url, ''), body, created_at FROM documents WHERE id = ?`

	var doc models.Document
	err := s.conn.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Dataset, &doc.Title, &doc.URL, &doc.Body, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve document: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteDB) ListDocuments(ctx context.Context, dataset string) ([]models.Document, error) {
	query := `
		SELECT id, dataset, title, COALESCE(url, ''), body, created_at
		FROM documents
		WHERE ? = '' OR dataset = ?
		ORDER BY created_at, id
	`
	rows, err := s.conn.QueryContext(ctx, query, dataset, dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Dataset, &doc.Title, &doc.URL, &doc.Body, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteDB) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteDB) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	var messages string
	var model sql.NullString
	err := s.conn.QueryRowContext(ctx, `SELECT messages, model FROM sessions WHERE id = ?`, id).Scan(&messages, &model)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ChatSession{ID: id, Messages: []models.HistoryEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve session: %w", err)
	}

	session := &models.ChatSession{ID: id, Model: model.String}
	if err := json.Unmarshal([]byte(messages), &session.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode session messages: %w", err)
	}
	return session, nil
}

func (s *SQLiteDB) SaveSession(ctx context.Context, session *models.ChatSession) error {
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	messages := session.Messages
	if messages == nil {
		messages = []models.HistoryEntry{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode session messages: %w", err)
	}

	query := `
		INSERT INTO sessions (id, messages, model) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET messages = excluded.messages, model = excluded.model
	`
	if _, err := s.conn.ExecContext(ctx, query, session.ID, string(data), session.Model); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteDB) SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error {
	prepareFeedback(record)
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	query := `INSERT INTO feedback (id, is_positive, reason, record, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.conn.ExecContext(ctx, query, record.ID, record.IsPositive, record.Reason, string(payload), record.CreatedAt); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListFeedback(ctx context.Context) ([]models.FeedbackRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT record FROM feedback ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	records := []models.FeedbackRecord{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		var record models.FeedbackRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("failed to decode feedback: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// AddAccessToken stores a token for userID valid until expiration.
func (s *SQLiteDB) AddAccessToken(ctx context.Context, token models.AccessToken) error {
	query := `INSERT OR REPLACE INTO access_tokens (user_id, token, expiration) VALUES (?, ?, ?)`
	if _, err := s.conn.ExecContext(ctx, query, token.UserID, token.Token, token.Expiration.UTC()); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetAccessTokens(ctx context.Context) ([]models.AccessToken, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT user_id, token, expiration FROM access_tokens`)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var tokens []models.AccessToken
	for rows.Next() {
		var t models.AccessToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.Expiration); err != nil {
			return nil, fmt.Errorf("failed to scan access token: %w", err)
		}
		if t.Expiration.After(now) {
			tokens = append(tokens, t)
		}
	}
	return tokens, rows.Err()
}

func (s *SQLiteDB) Close() error {
	return s.conn.Close()
}
