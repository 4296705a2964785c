package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	chatapi "github.com/mrhollen/KnowledgeChat/internal/api/chat"
	searchapi "github.com/mrhollen/KnowledgeChat/internal/api/search"
	"github.com/mrhollen/KnowledgeChat/internal/chat"
	"github.com/mrhollen/KnowledgeChat/internal/feedback"
	"github.com/mrhollen/KnowledgeChat/internal/filter"
	"github.com/mrhollen/KnowledgeChat/internal/gateway"
	"github.com/mrhollen/KnowledgeChat/internal/markup"
	"github.com/mrhollen/KnowledgeChat/internal/models"
)

// backend fakes the chat server routes the session talks to.
type backend struct {
	mu       sync.Mutex
	asked    []chatapi.ChatRequest
	feedback []models.FeedbackRecord
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/documents", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.Document{
			{ID: "d1", Title: "Leave", Dataset: "hr", URL: "https://wiki/leave"},
			{ID: "d2", Title: "VPN", Dataset: "it"},
		})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(searchapi.SearchResponse{Responses: []searchapi.SearchResponseContent{
			{DocumentID: "d1", ChunkID: "d1_0", Title: "Leave", URL: "https://wiki/leave", Text: "twenty days", Score: 0.9},
			{DocumentID: "d1", ChunkID: "d1_1", Title: "Leave", Text: "carry-over rules", Score: 0.5},
		}})
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req chatapi.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.asked = append(b.asked, req)
		b.mu.Unlock()

		answer := "You get **twenty** days."
		_ = json.NewEncoder(w).Encode(chatapi.ChatResponse{
			Answer:              &answer,
			SuggestingQuestions: []string{"Can I carry them over?"},
			DocumentIDs:         []string{"d1"},
			Keywords:            []string{},
		})
	})
	mux.HandleFunc("/api/Chat/Feedback", func(w http.ResponseWriter, r *http.Request) {
		var record models.FeedbackRecord
		_ = json.NewDecoder(r.Body).Decode(&record)
		b.mu.Lock()
		b.feedback = append(b.feedback, record)
		b.mu.Unlock()
		_, _ = w.Write([]byte("true"))
	})
	return mux
}

func newSession(t *testing.T) (*Session, *backend, *bytes.Buffer) {
	t.Helper()
	b := &backend{}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	gw := gateway.New(srv.URL)
	orch := chat.New(chat.NewHTTPCompletion(gw), markup.NewHTMLRenderer())
	attr := feedback.New(orch, feedback.NewHTTPSubmitter(gw))
	var out bytes.Buffer
	return NewSession(orch, attr, gw, &out, zap.NewNop()), b, &out
}

func TestSession_SearchScopeAndAsk(t *testing.T) {
	s, b, out := newSession(t)
	ctx := context.Background()

	require.NoError(t, s.Handle(ctx, "/docs"))
	assert.Contains(t, out.String(), "Leave [hr]")

	require.NoError(t, s.Handle(ctx, "/search leave"))
	assert.Contains(t, out.String(), "1 documents found.")

	require.NoError(t, s.Handle(ctx, "/scope search results"))
	assert.Equal(t, filter.SearchResultDocuments, s.orch.Scope())

	out.Reset()
	require.NoError(t, s.Handle(ctx, "How much leave do I get?"))
	require.Len(t, b.asked, 1)
	assert.Equal(t, []string{"d1"}, b.asked[0].DocumentIDs)
	assert.Equal(t, "How much leave do I get?", b.asked[0].Question)

	printed := out.String()
	assert.Contains(t, printed, "**twenty**")
	assert.Contains(t, printed, "- Leave (d1)")
	assert.Contains(t, printed, "1. Can I carry them over?")

	require.NoError(t, s.Handle(ctx, "/follow 1"))
	require.Len(t, b.asked, 2)
	assert.Equal(t, "Can I carry them over?", b.asked[1].Question)
	assert.Equal(t, b.asked[0].ChatSessionID, b.asked[1].ChatSessionID)

	assert.Error(t, s.Handle(ctx, "/follow 7"))
}

func TestSession_Feedback(t *testing.T) {
	s, b, out := newSession(t)
	ctx := context.Background()

	assert.Error(t, s.Handle(ctx, "/good"))

	require.NoError(t, s.Handle(ctx, "/search leave"))
	require.NoError(t, s.Handle(ctx, "How much leave?"))
	require.NoError(t, s.Handle(ctx, "/good"))
	assert.Contains(t, out.String(), "Thank you for your feedback.")

	require.ErrorIs(t, s.Handle(ctx, "/bad  | just a comment"), feedback.ErrReasonRequired)
	assert.True(t, s.feedback.IsOpen())
	require.NoError(t, s.Handle(ctx, "/bad Outdated | the policy changed"))
	assert.False(t, s.feedback.IsOpen())

	require.Len(t, b.feedback, 2)
	positive, negative := b.feedback[0], b.feedback[1]

	assert.True(t, positive.IsPositive)
	assert.Equal(t, feedback.PositiveReason, positive.Reason)
	require.Len(t, positive.Sources, 1)
	assert.Equal(t, models.Reference{
		DocumentID:  "d1",
		Label:       "Leave",
		Location:    "d1_0",
		DocumentURL: "https://wiki/leave",
		ChunkText:   "twenty days",
	}, positive.Sources[0])
	assert.Equal(t, []string{"https://wiki/leave"}, positive.DocumentURLs)

	assert.False(t, negative.IsPositive)
	assert.Equal(t, "Outdated", negative.Reason)
	assert.Equal(t, "the policy changed", negative.Comment)
	assert.Len(t, negative.History, 2)
}

func TestSession_OptionsAndNewTopic(t *testing.T) {
	s, _, out := newSession(t)
	ctx := context.Background()

	assert.Error(t, s.Handle(ctx, "/temperature warm"))
	assert.Error(t, s.Handle(ctx, "/temperature 9"))
	require.NoError(t, s.Handle(ctx, "/temperature 0.2"))
	require.NoError(t, s.Handle(ctx, "/model chat_35"))
	require.NoError(t, s.Handle(ctx, "/options"))
	assert.Contains(t, out.String(), "model=chat_35 source=rag temperature=0.20 tokens=750")

	require.NoError(t, s.Handle(ctx, "/doc d2"))
	require.NoError(t, s.Handle(ctx, "/scope Selected Document"))
	require.NoError(t, s.Handle(ctx, "hello"))
	require.NotEmpty(t, s.orch.SessionID())

	require.NoError(t, s.Handle(ctx, "/new"))
	assert.Empty(t, s.orch.Turns())
	assert.Empty(t, s.orch.SessionID())
	assert.Equal(t, filter.AllDocuments, s.orch.Scope())
	assert.Nil(t, s.orch.Documents().Single)
	assert.Equal(t, "chat_35", s.orch.Options().Model)

	assert.Error(t, s.Handle(ctx, "/scope everything"))
	assert.Error(t, s.Handle(ctx, "/bogus"))
	assert.ErrorIs(t, s.Handle(ctx, "/quit"), ErrQuit)
}

func TestSession_Run(t *testing.T) {
	s, b, out := newSession(t)

	in := strings.NewReader("hello\n/nope\n/history\n/quit\nnever asked\n")
	require.NoError(t, s.Run(context.Background(), in))

	assert.Len(t, b.asked, 1)
	assert.Contains(t, out.String(), "error: unknown command /nope")
	assert.Contains(t, out.String(), "user: hello")
	assert.Contains(t, out.String(), "[All Documents] > ")
}
