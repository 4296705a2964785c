package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

func stores(t *testing.T) map[string]DB {
	t.Helper()
	sqlite, err := NewSQLiteDB(filepath.Join(t.TempDir(), "data", "chat.db"))
	require.NoError(t, err)
	memory := NewMemoryDB()
	t.Cleanup(func() {
		_ = sqlite.Close()
		_ = memory.Close()
	})
	return map[string]DB{"sqlite": sqlite, "memory": memory}
}

func TestDocuments(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			a := &models.Document{Dataset: "hr", Title: "Leave", Body: "days off", CreatedAt: base}
			b := &models.Document{ID: "doc-b", Dataset: "it", Title: "VPN", URL: "https://wiki/vpn", Body: "connect", CreatedAt: base.Add(time.Minute)}
			require.NoError(t, store.AddDocument(ctx, a))
			require.NoError(t, store.AddDocument(ctx, b))
			assert.Len(t, a.ID, 36)

			got, err := store.GetDocument(ctx, "doc-b")
			require.NoError(t, err)
			assert.Equal(t, "VPN", got.Title)
			assert.Equal(t, "https://wiki/vpn", got.URL)
			assert.True(t, got.CreatedAt.Equal(b.CreatedAt))

			_, err = store.GetDocument(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			all, err := store.ListDocuments(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, a.ID, all[0].ID)
			assert.Equal(t, "doc-b", all[1].ID)

			hr, err := store.ListDocuments(ctx, "hr")
			require.NoError(t, err)
			require.Len(t, hr, 1)
			assert.Equal(t, "Leave", hr[0].Title)

			none, err := store.ListDocuments(ctx, "finance")
			require.NoError(t, err)
			assert.Empty(t, none)

			require.NoError(t, store.DeleteDocument(ctx, "doc-b"))
			assert.ErrorIs(t, store.DeleteDocument(ctx, "doc-b"), ErrNotFound)
			_, err = store.GetDocument(ctx, "doc-b")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSessions(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			fresh, err := store.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "s1", fresh.ID)
			assert.Empty(t, fresh.Messages)

			fresh.Model = "chat_4o"
			fresh.Messages = append(fresh.Messages,
				models.HistoryEntry{Role: "user", Content: "hi"},
				models.HistoryEntry{Role: "assistant", Content: "hello"},
			)
			require.NoError(t, store.SaveSession(ctx, fresh))

			fresh.Messages[0].Content = "mutated after save"

			loaded, err := store.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "chat_4o", loaded.Model)
			require.Len(t, loaded.Messages, 2)
			assert.Equal(t, "hi", loaded.Messages[0].Content)
			assert.Equal(t, "assistant", loaded.Messages[1].Role)
		})
	}
}

func TestFeedback(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rec := &models.FeedbackRecord{
				IsPositive: false,
				Reason:     "Wrong answer",
				Comment:    "outdated",
				History:    []models.HistoryEntry{{Role: "user", Content: "q"}},
				Options:    models.ChatOptions{Model: "chat_4o", Temperature: 0.8, MaxTokens: 750},
				Sources:    []models.Reference{{DocumentID: "d1", Label: "Guide", Location: "p. 2"}},
			}
			require.NoError(t, store.SaveFeedback(ctx, rec))
			assert.NotEmpty(t, rec.ID)
			assert.False(t, rec.CreatedAt.IsZero())
			assert.Equal(t, []string{}, rec.FilterByDocumentIDs)

			list, err := store.ListFeedback(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, rec.ID, list[0].ID)
			assert.Equal(t, "outdated", list[0].Comment)
			assert.Equal(t, rec.Options, list[0].Options)
			assert.Equal(t, rec.Sources, list[0].Sources)
		})
	}
}

type tokenAdder interface {
	AddAccessToken(ctx context.Context, token models.AccessToken) error
}

func TestAccessTokens(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			adder := store.(tokenAdder)

			require.NoError(t, adder.AddAccessToken(ctx, models.AccessToken{UserID: 1, Token: "live", Expiration: time.Now().Add(time.Hour)}))
			require.NoError(t, adder.AddAccessToken(ctx, models.AccessToken{UserID: 2, Token: "expired", Expiration: time.Now().Add(-time.Hour)}))

			tokens, err := store.GetAccessTokens(ctx)
			require.NoError(t, err)
			require.Len(t, tokens, 1)
			assert.Equal(t, "live", tokens[0].Token)
			assert.Equal(t, int64(1), tokens[0].UserID)
		})
	}
}
