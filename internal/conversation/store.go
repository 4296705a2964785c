// Package conversation keeps the ordered turn log of the active chat session.
package conversation

import (
	"sync"
	"time"

	"github.com/mrhollen/KnowledgeChat/internal/models"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Status is the state of a turn's answer.
type Status int

const (
	StatusPending Status = iota
	StatusAnswered
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAnswered:
		return "answered"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Answer holds what is shown for a turn. Text is the placeholder while
// pending, the rendered answer once answered and the error text on failure.
type Answer struct {
	Status             Status
	Text               string
	SuggestedFollowUps []string
	DocumentIDs        []string
	Keywords           []string
}

// Answered builds a successful answer.
func Answered(text string, followUps, documentIDs, keywords []string) Answer {
	return Answer{
		Status:             StatusAnswered,
		Text:               text,
		SuggestedFollowUps: followUps,
		DocumentIDs:        documentIDs,
		Keywords:           keywords,
	}
}

// Failed builds a failed answer carrying the user-facing error text.
func Failed(text string) Answer {
	return Answer{Status: StatusFailed, Text: text}
}

type Turn struct {
	Question   string
	Answer     Answer
	AskedAt    time.Time
	AnsweredAt time.Time // zero while pending
}

// Handle identifies a turn appended during one generation of the store.
type Handle struct {
	index      int
	generation uint64
}

// Store is the turn log. At most one turn is pending and it is always the
// last one appended.
type Store struct {
	mu          sync.Mutex
	turns       []Turn
	generation  uint64
	placeholder string
	now         func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(placeholder string, opts ...Option) *Store {
	s := &Store{
		placeholder: placeholder,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a pending turn for question and returns its handle.
func (s *Store) Append(question string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{
		Question: question,
		Answer:   Answer{Status: StatusPending, Text: s.placeholder},
		AskedAt:  s.now(),
	})
	return Handle{index: len(s.turns) - 1, generation: s.generation}
}

// Resolve moves the turn behind h out of the pending state. It reports false
// and changes nothing when the store was cleared since h was issued, the turn
// is already resolved, or answer is itself pending.
func (s *Store) Resolve(h Handle, answer Answer) bool {
	if answer.Status == StatusPending {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h.generation != s.generation || h.index < 0 || h.index >= len(s.turns) {
		return false
	}
	turn := &s.turns[h.index]
	if turn.Answer.Status != StatusPending {
		return false
	}
	turn.Answer = cloneAnswer(answer)
	turn.AnsweredAt = s.now()
	return true
}

// Clear drops every turn and invalidates all outstanding handles.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = nil
	s.generation++
}

// History flattens the log into alternating user and assistant entries, as
// they are displayed. Pending assistant entries carry no timestamp.
func (s *Store) History() []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]models.HistoryEntry, 0, 2*len(s.turns))
	for _, t := range s.turns {
		asked := t.AskedAt
		history = append(history, models.HistoryEntry{
			Role:     RoleUser,
			Content:  t.Question,
			Datetime: &asked,
		})

		entry := models.HistoryEntry{Role: RoleAssistant, Content: t.Answer.Text}
		if !t.AnsweredAt.IsZero() {
			answered := t.AnsweredAt
			entry.Datetime = &answered
		}
		history = append(history, entry)
	}
	return history
}

// Turns returns a copy of the log.
func (s *Store) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		t.Answer = cloneAnswer(t.Answer)
		out[i] = t
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// HasPending reports whether the last turn is still waiting for its answer.
func (s *Store) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns) > 0 && s.turns[len(s.turns)-1].Answer.Status == StatusPending
}

func cloneAnswer(a Answer) Answer {
	a.SuggestedFollowUps = append([]string(nil), a.SuggestedFollowUps...)
	a.DocumentIDs = append([]string(nil), a.DocumentIDs...)
	a.Keywords = append([]string(nil), a.Keywords...)
	return a
}
