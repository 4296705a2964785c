// Package server wires the HTTP API of the chat backend.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/internal/auth"
	"github.com/mrhollen/KnowledgeChat/internal/handlers"
)

type Server struct {
	Chat      *handlers.ChatHandler
	Feedback  *handlers.FeedbackHandler
	Documents *handlers.DocumentHandler
	Upload    *handlers.UploadHandler
	Search    *handlers.SearchHandler
	// Authorizer guards document and feedback-listing routes; nil leaves them open.
	Authorizer *auth.AccessTokenAuthorizer
	Registry   *prometheus.Registry
	Logger     *zap.Logger

	server *http.Server
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	}

	r.Post("/chat", s.Chat.Chat)
	r.Post("/api/Chat/Feedback", s.Feedback.SubmitFeedback)
	r.Post("/search", s.Search.Search)
	r.Get("/documents", s.Documents.ListDocuments)
	r.Get("/documents/{id}", s.Documents.GetDocument)

	r.Group(func(r chi.Router) {
		if s.Authorizer != nil {
			r.Use(s.Authorizer.Middleware)
		}
		r.Post("/documents", s.Documents.AddDocument)
		r.Post("/documents/upload", s.Upload.UploadFile)
		r.Delete("/documents/{id}", s.Documents.DeleteDocument)
		r.Get("/api/Chat/Feedback", s.Feedback.ListFeedback)
	})

	return r
}

// Start serves on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
