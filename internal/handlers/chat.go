package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	api "github.com/mrhollen/KnowledgeChat/internal/api/chat"
	"github.com/mrhollen/KnowledgeChat/internal/db"
	"github.com/mrhollen/KnowledgeChat/internal/index"
	"github.com/mrhollen/KnowledgeChat/internal/llm"
	"github.com/mrhollen/KnowledgeChat/internal/models"
)

// SourceRAG grounds answers in retrieved chunks; any other source asks the
// model directly.
const SourceRAG = "rag"

// QueryRewriter condenses a question into search words.
type QueryRewriter interface {
	GetSearchWords(ctx context.Context, question string, modelName string) (string, error)
}

type ChatHandler struct {
	DB             db.DB
	LLM            llm.Client
	Index          index.Index
	Limit          int
	DefaultOptions models.ChatOptions
	// ModelAliases maps client model names such as "chat_4o" to LLM model ids.
	ModelAliases map[string]string
	// Rewriter, when set, turns the question into the search text.
	Rewriter QueryRewriter
	Metrics  *Metrics
	Logger   *zap.Logger
}

type searchResult struct {
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if !decodeJSON(w, r, &req) {
		h.Metrics.chat(outcomeInvalid)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if err := models.Validate(req); err != nil {
		h.Metrics.chat(outcomeInvalid)
		respondError(w, http.StatusBadRequest, "Question and chatSessionId are required")
		return
	}

	opts := h.DefaultOptions
	if req.Options != nil {
		if err := models.Validate(req.Options); err != nil {
			h.Metrics.chat(outcomeInvalid)
			respondError(w, http.StatusBadRequest, "Invalid chat options")
			return
		}
		opts = *req.Options
	}

	ctx := r.Context()
	logger := h.Logger.With(zap.String("session_id", req.ChatSessionID))

	session, err := h.DB.GetSession(ctx, req.ChatSessionID)
	if err != nil {
		h.fail(w, logger, "Failed to retrieve session", err)
		return
	}

	model := h.resolveModel(opts.Model)

	var hits []index.Hit
	if h.Index != nil && (opts.Source == "" || opts.Source == SourceRAG) {
		hits, err = h.Index.Search(ctx, index.Query{
			Text:        h.searchText(ctx, logger, req.Question, model),
			DocumentIDs: req.DocumentIDs,
			Limit:       h.Limit,
		})
		if err != nil {
			h.fail(w, logger, "Failed to search documents", err)
			return
		}
	}

	messages := make([]llm.Message, 0, len(session.Messages)+1)
	for _, m := range session.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	prompt, err := buildPrompt(req.Question, hits)
	if err != nil {
		h.fail(w, logger, "Failed to build prompt", err)
		return
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	raw, err := h.LLM.Complete(ctx, messages, llm.CompletionOptions{
		Model:       model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		h.fail(w, logger, "Failed to get response from LLM", err)
		return
	}
	answer := llm.ParseAnswer(raw)

	asked := time.Now().UTC()
	answered := time.Now().UTC()
	session.Messages = append(session.Messages,
		models.HistoryEntry{Role: llm.RoleUser, Content: req.Question, Datetime: &asked},
		models.HistoryEntry{Role: llm.RoleAssistant, Content: answer.Answer, Datetime: &answered},
	)
	session.Model = model
	if err := h.DB.SaveSession(ctx, session); err != nil {
		h.fail(w, logger, "Failed to save session", err)
		return
	}

	h.Metrics.chat(outcomeAnswered)
	logger.Debug("chat answered", zap.Int("hits", len(hits)), zap.String("model", model))

	respondJSON(w, http.StatusOK, api.ChatResponse{
		Answer:              &answer.Answer,
		SuggestingQuestions: answer.SuggestingQuestions,
		DocumentIDs:         hitDocumentIDs(hits),
		Keywords:            answer.Keywords,
	})
}

func (h *ChatHandler) fail(w http.ResponseWriter, logger *zap.Logger, message string, err error) {
	h.Metrics.chat(outcomeFailed)
	logger.Error(message, zap.Error(err))
	respondError(w, http.StatusInternalServerError, message)
}

func (h *ChatHandler) searchText(ctx context.Context, logger *zap.Logger, question, model string) string {
	if h.Rewriter == nil {
		return question
	}
	words, err := h.Rewriter.GetSearchWords(ctx, question, model)
	if err != nil || strings.TrimSpace(words) == "" {
		logger.Warn("query rewrite failed, searching with the question", zap.Error(err))
		return question
	}
	logger.Debug("rewrote query", zap.String("search_words", words))
	return words
}

func (h *ChatHandler) resolveModel(name string) string {
	if id, ok := h.ModelAliases[name]; ok {
		return id
	}
	return name
}

func buildPrompt(question string, hits []index.Hit) (string, error) {
	var b strings.Builder
	b.WriteString("Search results: \n")
	if len(hits) == 0 {
		b.WriteString("No results \n\n")
	}
	for _, hit := range hits {
		data, err := json.Marshal(searchResult{DocumentID: hit.DocumentID, Text: hit.Text})
		if err != nil {
			return "", fmt.Errorf("marshal search result: %w", err)
		}
		fmt.Fprintf(&b, "```json\n%s\n```\n\n", data)
	}
	b.WriteString(question)
	return b.String(), nil
}

// hitDocumentIDs lists the distinct documents behind hits, best first.
func hitDocumentIDs(hits []index.Hit) []string {
	ids := []string{}
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.DocumentID]; ok {
			continue
		}
		seen[h.DocumentID] = struct{}{}
		ids = append(ids, h.DocumentID)
	}
	return ids
}
