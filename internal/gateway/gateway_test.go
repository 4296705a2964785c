package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	}))
	defer srv.Close()

	g := New(srv.URL+"/", WithBearerToken("secret"))
	var out map[string]string
	require.NoError(t, g.PostJSON(context.Background(), "/chat", map[string]string{"q": "hi"}, &out))
	assert.Equal(t, "hi", out["echo"])
}

func TestGateway_NilLogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var out map[string]string
	require.NoError(t, New(srv.URL, WithLogger(nil)).GetJSON(context.Background(), "/health", &out))
	assert.Equal(t, "ok", out["status"])
}

func TestGateway_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).PostJSON(context.Background(), "chat", struct{}{}, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, "nope", se.Body)
}

func TestGateway_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	var out map[string]any
	err := New(srv.URL).GetJSON(context.Background(), "/health", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestGateway_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	g := New(srv.URL, WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	err := g.GetJSON(context.Background(), "/slow", nil)
	require.Error(t, err)
}
