// Package chat drives question/answer cycles against the chat backend.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/internal/conversation"
	"github.com/mrhollen/KnowledgeChat/internal/filter"
	"github.com/mrhollen/KnowledgeChat/internal/markup"
	"github.com/mrhollen/KnowledgeChat/internal/models"
	"github.com/mrhollen/KnowledgeChat/pkg/utils"
)

const (
	// PlaceholderText is shown for a question while its answer is pending.
	PlaceholderText = "Fetching answer..."
	// FailureMessage replaces the answer of a turn whose completion failed.
	FailureMessage = "Sorry, an error occurred while processing your request. Please try again later."
)

var (
	ErrBlankQuestion     = errors.New("question is blank")
	ErrBusy              = errors.New("a question is already pending")
	ErrMalformedResponse = errors.New("chat response has no answer")
)

// DefaultOptions are the options a new orchestrator starts with.
func DefaultOptions() models.ChatOptions {
	return models.ChatOptions{
		Model:       "chat_4o",
		Source:      "rag",
		Temperature: 0.8,
		MaxTokens:   750,
	}
}

// Orchestrator owns the canonical chat state: session id, options, document
// scope and the turn log. Only one question may be pending at a time.
type Orchestrator struct {
	store        *conversation.Store
	completion   CompletionProvider
	renderer     markup.Renderer
	logger       *zap.Logger
	newSessionID func() string

	mu        sync.Mutex
	sessionID string
	options   models.ChatOptions
	scope     filter.Scope
	documents filter.Documents
	loading   bool
	request   uint64 // request that currently owns loading
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = utils.OrNop(l) }
}

// WithOptions sets the initial chat options.
func WithOptions(opts models.ChatOptions) Option {
	return func(o *Orchestrator) { o.options = opts }
}

// WithSessionIDs replaces the session id generator.
func WithSessionIDs(gen func() string) Option {
	return func(o *Orchestrator) { o.newSessionID = gen }
}

// WithStore replaces the turn log, e.g. to inject a clock.
func WithStore(s *conversation.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

func New(completion CompletionProvider, renderer markup.Renderer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        conversation.NewStore(PlaceholderText),
		completion:   completion,
		renderer:     renderer,
		logger:       zap.NewNop(),
		newSessionID: uuid.NewString,
		options:      DefaultOptions(),
		scope:        filter.AllDocuments,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitQuestion asks text in the current session. Completion failures are
// absorbed into a failed turn; only ErrBlankQuestion and ErrBusy are
// returned, both before any turn is created.
func (o *Orchestrator) SubmitQuestion(ctx context.Context, text string) error {
	question := strings.TrimSpace(text)
	if question == "" {
		return ErrBlankQuestion
	}

	o.mu.Lock()
	if o.loading {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.sessionID == "" {
		o.sessionID = o.newSessionID()
	}
	req := CompletionRequest{
		Question:    question,
		SessionID:   o.sessionID,
		DocumentIDs: filter.Resolve(o.scope, o.documents),
		Options:     o.options,
	}
	handle := o.store.Append(question)
	o.loading = true
	o.request++
	token := o.request
	o.mu.Unlock()

	answer := o.complete(ctx, req)
	if !o.store.Resolve(handle, answer) {
		o.logger.Debug("dropping answer for a cleared conversation", zap.String("session_id", req.SessionID))
	}

	o.mu.Lock()
	if o.request == token {
		o.loading = false
	}
	o.mu.Unlock()
	return nil
}

// FollowUp asks one of the suggested follow-up questions.
func (o *Orchestrator) FollowUp(ctx context.Context, text string) error {
	return o.SubmitQuestion(ctx, text)
}

func (o *Orchestrator) complete(ctx context.Context, req CompletionRequest) conversation.Answer {
	payload, err := o.completion.Complete(ctx, req)
	if err == nil && payload == nil {
		err = ErrMalformedResponse
	}
	if err != nil {
		o.logger.Error("chat completion failed",
			zap.String("session_id", req.SessionID),
			zap.Strings("document_ids", req.DocumentIDs),
			zap.Error(err),
		)
		return conversation.Failed(FailureMessage)
	}

	rendered, err := o.renderer.Render(markup.Unescape(payload.Answer))
	if err != nil {
		o.logger.Error("rendering answer failed", zap.String("session_id", req.SessionID), zap.Error(err))
		return conversation.Failed(FailureMessage)
	}

	followUps := make([]string, 0, len(payload.SuggestedFollowUps))
	for _, f := range payload.SuggestedFollowUps {
		if strings.TrimSpace(f) != "" {
			followUps = append(followUps, f)
		}
	}
	return conversation.Answered(rendered, followUps, payload.DocumentIDs, payload.Keywords)
}

// ChangeOptions replaces the chat options. Turns already asked keep the
// options they were sent with.
func (o *Orchestrator) ChangeOptions(opts models.ChatOptions) error {
	if err := models.Validate(opts); err != nil {
		return fmt.Errorf("invalid chat options: %w", err)
	}
	o.mu.Lock()
	o.options = opts
	o.mu.Unlock()
	return nil
}

// SetScope selects which document list constrains the next question.
func (o *Orchestrator) SetScope(scope filter.Scope) {
	o.mu.Lock()
	o.scope = scope
	o.mu.Unlock()
}

// SetDocuments replaces the externally supplied document lists.
func (o *Orchestrator) SetDocuments(docs filter.Documents) {
	o.mu.Lock()
	o.documents = cloneDocuments(docs)
	o.mu.Unlock()
}

// NewTopic starts over: empty log, no session, default scope, no single
// selected document. A response still in flight is discarded on arrival.
func (o *Orchestrator) NewTopic() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.store.Clear()
	o.sessionID = ""
	o.scope = filter.AllDocuments
	o.documents.Single = nil
	o.loading = false
	o.request++
}

func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

func (o *Orchestrator) Options() models.ChatOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.options
}

func (o *Orchestrator) Scope() filter.Scope {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scope
}

func (o *Orchestrator) Documents() filter.Documents {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneDocuments(o.documents)
}

// Loading reports whether a question is waiting for its answer.
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

func (o *Orchestrator) Turns() []conversation.Turn {
	return o.store.Turns()
}

func (o *Orchestrator) History() []models.HistoryEntry {
	return o.store.History()
}

// FeedbackSnapshot copies the state a feedback record is built from.
func (o *Orchestrator) FeedbackSnapshot() models.ConversationSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return models.ConversationSnapshot{
		History:             o.store.History(),
		Options:             o.options,
		FilterByDocumentIDs: filter.Resolve(o.scope, o.documents),
	}
}

func cloneDocuments(d filter.Documents) filter.Documents {
	out := filter.Documents{
		All:           append([]filter.Document(nil), d.All...),
		SearchResults: append([]filter.Document(nil), d.SearchResults...),
		Selected:      append([]filter.Document(nil), d.Selected...),
	}
	if d.Single != nil {
		single := *d.Single
		out.Single = &single
	}
	return out
}
