package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	docapi "github.com/mrhollen/KnowledgeChat/internal/api/documents"
	"github.com/mrhollen/KnowledgeChat/internal/auth"
	"github.com/mrhollen/KnowledgeChat/internal/chat"
	"github.com/mrhollen/KnowledgeChat/internal/conversation"
	"github.com/mrhollen/KnowledgeChat/internal/db"
	"github.com/mrhollen/KnowledgeChat/internal/feedback"
	"github.com/mrhollen/KnowledgeChat/internal/filter"
	"github.com/mrhollen/KnowledgeChat/internal/gateway"
	"github.com/mrhollen/KnowledgeChat/internal/handlers"
	"github.com/mrhollen/KnowledgeChat/internal/index"
	"github.com/mrhollen/KnowledgeChat/internal/llm"
	"github.com/mrhollen/KnowledgeChat/internal/markup"
	"github.com/mrhollen/KnowledgeChat/internal/models"
)

const adminToken = "admin-token"

type cannedLLM struct{}

func (cannedLLM) Complete(_ context.Context, messages []llm.Message, _ llm.CompletionOptions) (string, error) {
	last := messages[len(messages)-1].Content
	if !strings.Contains(last, "twenty") {
		return `{"answer":"I don't know.","suggestingQuestions":[],"keywords":[]}`, nil
	}
	return "```json\n" + `{"answer":"You get **twenty** days.","suggestingQuestions":["Can I carry them over?"],"keywords":["leave"]}` + "\n```", nil
}

type fixture struct {
	db  *db.MemoryDB
	srv *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := db.NewMemoryDB()
	idx, err := index.NewMemBleveIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	reg := prometheus.NewRegistry()
	docs := &handlers.DocumentHandler{
		DB:             store,
		Index:          idx,
		Chunker:        index.NewChunker(200, 20),
		DefaultDataset: "default",
		Logger:         logger,
	}
	s := &Server{
		Chat: &handlers.ChatHandler{
			DB:             store,
			LLM:            cannedLLM{},
			Index:          idx,
			Limit:          5,
			DefaultOptions: chat.DefaultOptions(),
			Metrics:        handlers.NewMetrics(reg),
			Logger:         logger,
		},
		Feedback:   &handlers.FeedbackHandler{DB: store, Logger: logger},
		Documents:  docs,
		Upload:     &handlers.UploadHandler{Documents: docs, Logger: logger},
		Search:     &handlers.SearchHandler{DB: store, Index: idx, Limit: 5, Logger: logger},
		Authorizer: auth.NewAccessTokenAuthorizer(store, []string{adminToken}, logger),
		Registry:   reg,
		Logger:     logger,
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &fixture{db: store, srv: srv}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	var health map[string]string
	require.NoError(t, gateway.New(f.srv.URL).GetJSON(context.Background(), "/health", &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "# TYPE knowledgechat_chat_requests_total counter")
}

func TestRouter_WriteRoutesNeedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := docapi.AddDocumentRequest{Title: "Leave", Body: "twenty days"}

	err := gateway.New(f.srv.URL).PostJSON(ctx, "/documents", doc, nil)
	var se *gateway.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)

	err = gateway.New(f.srv.URL).GetJSON(ctx, "/api/Chat/Feedback", nil)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)

	var added docapi.AddDocumentResponse
	require.NoError(t, gateway.New(f.srv.URL, gateway.WithBearerToken(adminToken)).PostJSON(ctx, "/documents", doc, &added))
	assert.NotEmpty(t, added.ID)

	var listed []models.Document
	require.NoError(t, gateway.New(f.srv.URL).GetJSON(ctx, "/documents", &listed))
	assert.Len(t, listed, 1)
}

func TestRoundTrip_ChatThenFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := gateway.New(f.srv.URL, gateway.WithBearerToken(adminToken))

	var leave, vpn docapi.AddDocumentResponse
	require.NoError(t, admin.PostJSON(ctx, "/documents", docapi.AddDocumentRequest{Title: "Leave", Body: "Staff get twenty days of leave."}, &leave))
	require.NoError(t, admin.PostJSON(ctx, "/documents", docapi.AddDocumentRequest{Title: "VPN", Body: "Leave the VPN on at home."}, &vpn))

	client := gateway.New(f.srv.URL)
	orch := chat.New(chat.NewHTTPCompletion(client), markup.NewHTMLRenderer())
	orch.SetScope(filter.SelectedDocuments)
	orch.SetDocuments(filter.Documents{Selected: []filter.Document{{ID: leave.ID, Title: "Leave"}}})

	require.NoError(t, orch.SubmitQuestion(ctx, "How much leave do I get?"))

	turns := orch.Turns()
	require.Len(t, turns, 1)
	answer := turns[0].Answer
	require.Equal(t, conversation.StatusAnswered, answer.Status)
	assert.Contains(t, answer.Text, "<strong>twenty</strong>")
	assert.Equal(t, []string{"Can I carry them over?"}, answer.SuggestedFollowUps)
	assert.Equal(t, []string{leave.ID}, answer.DocumentIDs)

	attr := feedback.New(orch, feedback.NewHTTPSubmitter(client))
	attr.Open([]models.Reference{{DocumentID: leave.ID, Label: "Leave", Location: "p. 1", ChunkText: "twenty days"}})
	ok, err := attr.SubmitNegative(ctx, "Incomplete answer", "mention carry-over")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, attr.ThankYouShown())

	records, err := f.db.ListFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	got := records[0]
	assert.False(t, got.IsPositive)
	assert.Equal(t, "Incomplete answer", got.Reason)
	assert.Equal(t, []string{leave.ID}, got.FilterByDocumentIDs)
	assert.Equal(t, []string{"twenty days"}, got.ChunkTexts)
	require.Len(t, got.History, 2)
	assert.Equal(t, "How much leave do I get?", got.History[0].Content)

	session, err := f.db.GetSession(ctx, orch.SessionID())
	require.NoError(t, err)
	assert.Len(t, session.Messages, 2)
}
