package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

// Session messages are stored one JSON object per element.
func encodeMessages(entries []models.HistoryEntry) ([]string, error) {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode message: %w", err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

func decodeMessages(raw []string) ([]models.HistoryEntry, error) {
	out := make([]models.HistoryEntry, 0, len(raw))
	for _, r := range raw {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func prepareFeedback(record *models.FeedbackRecord) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.FilterByDocumentIDs == nil {
		record.FilterByDocumentIDs = []string{}
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
