package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

const postgresSchema = `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		dataset TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		vector vector
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		messages TEXT[] NOT NULL,
		model TEXT
	);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		is_positive BOOLEAN NOT NULL,
		reason TEXT NOT NULL,
		filter_document_ids TEXT[] NOT NULL,
		record JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS access_tokens (
		user_id BIGINT NOT NULL,
		token TEXT PRIMARY KEY,
		expiration TIMESTAMPTZ NOT NULL
	);
`

// ChunkMatch is a chunk found by vector search, closest first.
type ChunkMatch struct {
	Chunk    models.Chunk
	Distance float64
}

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(connString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("unable to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

func (pg *PostgresDB) AddDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (id, dataset, title, url, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET dataset = EXCLUDED.dataset,
		    title = EXCLUDED.title,
		    url = EXCLUDED.url,
		    body = EXCLUDED.body
	`
	_, err := pg.db.ExecContext(ctx, query, doc.ID, doc.Dataset, doc.Title, doc.URL, doc.Body, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (pg *PostgresDB) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT id, dataset, title, COALESCE(url, ''), body, created_at FROM documents WHERE id = $1`

	var doc models.Document
	err := pg.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Dataset, &doc.Title, &doc.URL, &doc.Body, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve document: %w", err)
	}
	return &doc, nil
}

func (pg *PostgresDB) ListDocuments(ctx context.Context, dataset string) ([]models.Document, error) {
	query := `
		SELECT id, dataset, title, COALESCE(url, ''), body, created_at
		FROM documents
		WHERE $1::text = '' OR dataset = $1
		ORDER BY created_at, id
	`
	rows, err := pg.db.QueryContext(ctx, query, dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	documents := []models.Document{}
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Dataset, &doc.Title, &doc.URL, &doc.Body, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating through documents: %w", err)
	}
	return documents, nil
}

func (pg *PostgresDB) DeleteDocument(ctx context.Context, id string) error {
	res, err := pg.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireAffected(res)
}

// SaveChunks replaces the stored chunks of the document the chunks belong to.
// All chunks must share one DocumentID.
func (pg *PostgresDB) SaveChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := pg.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, chunks[0].DocumentID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, text, vector)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Vec) == 0 {
			return errors.New("vector cannot be empty")
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Index, c.Text, pgvector.NewVector(c.Vec)); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

// SearchChunks orders chunks by distance to queryVector. An empty dataset or
// documentIDs does not restrict the search.
func (pg *PostgresDB) SearchChunks(ctx context.Context, queryVector []float32, dataset string, documentIDs []string, limit int) ([]ChunkMatch, error) {
	if len(queryVector) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	query := `
		SELECT c.id, c.document_id, c.chunk_index, c.text, c.vector <-> $1 AS distance
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE (cardinality($2::text[]) = 0 OR c.document_id = ANY($2))
		  AND ($3::text = '' OR d.dataset = $3)
		ORDER BY c.vector <-> $1
		LIMIT $4
	`
	if documentIDs == nil {
		documentIDs = []string{}
	}
	rows, err := pg.db.QueryContext(ctx, query, pgvector.NewVector(queryVector), pq.Array(documentIDs), dataset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.DocumentID, &m.Chunk.Index, &m.Chunk.Text, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating through chunks: %w", err)
	}
	return matches, nil
}

func (pg *PostgresDB) DeleteChunks(ctx context.Context, documentID string) error {
	if _, err := pg.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (pg *PostgresDB) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	query := `SELECT id, messages, COALESCE(model, '') FROM sessions WHERE id = $1`

	var session models.ChatSession
	var messages []string
	err := pg.db.QueryRowContext(ctx, query, id).Scan(&session.ID, pq.Array(&messages), &session.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ChatSession{ID: id, Messages: []models.HistoryEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve session: %w", err)
	}

	session.Messages, err = decodeMessages(messages)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (pg *PostgresDB) SaveSession(ctx context.Context, session *models.ChatSession) error {
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	messages, err := encodeMessages(session.Messages)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, messages, model)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET messages = EXCLUDED.messages,
		    model = EXCLUDED.model
	`
	if _, err := pg.db.ExecContext(ctx, query, session.ID, pq.Array(messages), session.Model); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (pg *PostgresDB) SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error {
	prepareFeedback(record)
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	query := `
		INSERT INTO feedback (id, is_positive, reason, filter_document_ids, record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = pg.db.ExecContext(ctx, query,
		record.ID, record.IsPositive, record.Reason, pq.Array(record.FilterByDocumentIDs), payload, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

func (pg *PostgresDB) ListFeedback(ctx context.Context) ([]models.FeedbackRecord, error) {
	rows, err := pg.db.QueryContext(ctx, `SELECT record FROM feedback ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	records := []models.FeedbackRecord{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		var record models.FeedbackRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("failed to decode feedback: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (pg *PostgresDB) GetAccessTokens(ctx context.Context) ([]models.AccessToken, error) {
	query := `
		SELECT user_id, token, expiration
		FROM access_tokens
		WHERE expiration > NOW();
	`

	rows, err := pg.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var accessTokens []models.AccessToken
	for rows.Next() {
		var accessToken models.AccessToken
		if err := rows.Scan(&accessToken.UserID, &accessToken.Token, &accessToken.Expiration); err != nil {
			return nil, fmt.Errorf("failed to scan access token: %w", err)
		}
		accessTokens = append(accessTokens, accessToken)
	}
	return accessTokens, rows.Err()
}

func (pg *PostgresDB) Close() error {
	return pg.db.Close()
}
