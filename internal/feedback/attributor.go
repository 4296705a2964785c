// Package feedback attaches a user's judgment of an answer to a snapshot of
// the conversation that produced it and sends it to the backend.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/internal/models"
	"github.com/mrhollen/KnowledgeChat/pkg/utils"
)

// PositiveReason is the canned reason sent with positive feedback.
const PositiveReason = "Correct answer"

var (
	ErrFormNotOpen        = errors.New("feedback form is not open")
	ErrReasonRequired     = errors.New("feedback reason is required")
	ErrSubmissionInFlight = errors.New("a feedback submission is already in flight")
)

// SnapshotSource provides a copy of the conversation state at trigger time.
type SnapshotSource interface {
	FeedbackSnapshot() models.ConversationSnapshot
}

// Submitter sends a record and reports whether the backend accepted it.
type Submitter interface {
	SubmitFeedback(ctx context.Context, record *models.FeedbackRecord) (bool, error)
}

type Attributor struct {
	source    SnapshotSource
	submitter Submitter
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	open       bool
	sources    []models.Reference
	submitting bool
	thankYou   bool
}

type Option func(*Attributor)

func WithLogger(l *zap.Logger) Option {
	return func(a *Attributor) { a.logger = utils.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(a *Attributor) { a.now = now }
}

func New(source SnapshotSource, submitter Submitter, opts ...Option) *Attributor {
	a := &Attributor{
		source:    source,
		submitter: submitter,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open captures the sources of the most recent answer and shows the
// negative feedback form. Nothing is submitted.
func (a *Attributor) Open(sources []models.Reference) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = true
	a.sources = cloneReferences(sources)
	a.thankYou = false
}

// Close dismisses the form without submitting.
func (a *Attributor) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
	a.sources = nil
}

func (a *Attributor) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// Submitting reports whether a submission is waiting for the backend.
func (a *Attributor) Submitting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitting
}

// ThankYouShown reports whether the last submission was accepted.
func (a *Attributor) ThankYouShown() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thankYou
}

// DismissThankYou hides the acknowledgement.
func (a *Attributor) DismissThankYou() {
	a.mu.Lock()
	a.thankYou = false
	a.mu.Unlock()
}

// SubmitPositive sends positive feedback for the given sources right away.
func (a *Attributor) SubmitPositive(ctx context.Context, sources []models.Reference) (bool, error) {
	a.mu.Lock()
	if a.submitting {
		a.mu.Unlock()
		return false, ErrSubmissionInFlight
	}
	a.submitting = true
	a.thankYou = false
	record := a.build(true, PositiveReason, "", sources)
	a.mu.Unlock()

	ok, err := a.send(ctx, record)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitting = false
	a.thankYou = ok
	return ok, err
}

// SubmitNegative sends the reason and comment collected by the open form,
// attributed to the sources captured by Open. The form closes only when the
// backend accepts the record.
func (a *Attributor) SubmitNegative(ctx context.Context, reason, comment string) (bool, error) {
	reason = strings.TrimSpace(reason)

	a.mu.Lock()
	switch {
	case !a.open:
		a.mu.Unlock()
		return false, ErrFormNotOpen
	case reason == "":
		a.mu.Unlock()
		return false, ErrReasonRequired
	case a.submitting:
		a.mu.Unlock()
		return false, ErrSubmissionInFlight
	}
	a.submitting = true
	a.thankYou = false
	record := a.build(false, reason, strings.TrimSpace(comment), a.sources)
	a.mu.Unlock()

	ok, err := a.send(ctx, record)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitting = false
	if ok {
		a.open = false
		a.sources = nil
		a.thankYou = true
	}
	return ok, err
}

// build must be called with a.mu held.
func (a *Attributor) build(positive bool, reason, comment string, sources []models.Reference) *models.FeedbackRecord {
	snap := a.source.FeedbackSnapshot()
	refs := cloneReferences(sources)

	record := &models.FeedbackRecord{
		IsPositive:          positive,
		Reason:              reason,
		Comment:             comment,
		History:             append([]models.HistoryEntry{}, snap.History...),
		Options:             snap.Options,
		Sources:             refs,
		FilterByDocumentIDs: append([]string{}, snap.FilterByDocumentIDs...),
		DocumentURLs:        []string{},
		ChunkTexts:          []string{},
		CreatedAt:           a.now().UTC(),
	}
	for _, ref := range refs {
		if ref.DocumentURL != "" {
			record.DocumentURLs = append(record.DocumentURLs, ref.DocumentURL)
		}
		if ref.ChunkText != "" {
			record.ChunkTexts = append(record.ChunkTexts, ref.ChunkText)
		}
	}
	return record
}

func (a *Attributor) send(ctx context.Context, record *models.FeedbackRecord) (bool, error) {
	ok, err := a.submitter.SubmitFeedback(ctx, record)
	if err != nil {
		a.logger.Error("feedback submission failed",
			zap.Bool("positive", record.IsPositive),
			zap.Error(err),
		)
		return false, fmt.Errorf("submit feedback: %w", err)
	}
	if !ok {
		a.logger.Warn("feedback rejected by backend", zap.Bool("positive", record.IsPositive))
	}
	return ok, nil
}

func cloneReferences(refs []models.Reference) []models.Reference {
	return append([]models.Reference{}, refs...)
}
