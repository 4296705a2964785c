package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/mrhollen/KnowledgeChat/internal/api/chat"
	"github.com/mrhollen/KnowledgeChat/internal/conversation"
	"github.com/mrhollen/KnowledgeChat/internal/gateway"
)

func newBackend(t *testing.T, handler func(req api.ChatRequest) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(handler(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPCompletion_Complete(t *testing.T) {
	var got api.ChatRequest
	srv := newBackend(t, func(req api.ChatRequest) any {
		got = req
		return map[string]any{
			"answer":              "hello",
			"suggestingQuestions": []string{"next?"},
			"documentIds":         []string{"d1"},
			"keywords":            []string{"k"},
		}
	})

	c := NewHTTPCompletion(gateway.New(srv.URL))
	payload, err := c.Complete(context.Background(), CompletionRequest{
		Question:    "q",
		SessionID:   "s",
		DocumentIDs: []string{},
		Options:     DefaultOptions(),
	})
	require.NoError(t, err)

	assert.Equal(t, "q", got.Question)
	assert.Equal(t, "s", got.ChatSessionID)
	require.NotNil(t, got.Options)
	assert.Equal(t, DefaultOptions(), *got.Options)

	assert.Equal(t, "hello", payload.Answer)
	assert.Equal(t, []string{"next?"}, payload.SuggestedFollowUps)
	assert.Equal(t, []string{"d1"}, payload.DocumentIDs)
	assert.Equal(t, []string{"k"}, payload.Keywords)
}

func TestHTTPCompletion_EmptyDocumentIDsAreSentAsArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.JSONEq(t, `[]`, string(raw["DocumentIds"]))
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPCompletion(gateway.New(srv.URL)).Complete(context.Background(), CompletionRequest{
		Question:    "q",
		SessionID:   "s",
		DocumentIDs: []string{},
		Options:     DefaultOptions(),
	})
	require.NoError(t, err)
}

func TestHTTPCompletion_Malformed(t *testing.T) {
	srv := newBackend(t, func(api.ChatRequest) any { return map[string]any{} })

	_, err := NewHTTPCompletion(gateway.New(srv.URL)).Complete(context.Background(), CompletionRequest{Question: "q"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestOrchestrator_MalformedResponseFailsTurn(t *testing.T) {
	srv := newBackend(t, func(api.ChatRequest) any { return map[string]any{} })

	o := New(NewHTTPCompletion(gateway.New(srv.URL)), passthroughRenderer{})
	require.NoError(t, o.SubmitQuestion(context.Background(), "q"))

	turns := o.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, conversation.StatusFailed, turns[0].Answer.Status)
	assert.Equal(t, FailureMessage, turns[0].Answer.Text)
}

func TestOrchestrator_ServerErrorFailsTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := New(NewHTTPCompletion(gateway.New(srv.URL)), passthroughRenderer{})
	require.NoError(t, o.SubmitQuestion(context.Background(), "q"))

	turns := o.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, conversation.StatusFailed, turns[0].Answer.Status)
	assert.False(t, o.Loading())
}
