// Package cli is the terminal front end of the chat client. A Session reads
// one line at a time: plain text is asked as a question and lines starting
// with a slash are commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"go.uber.org/zap"

	searchapi "github.com/mrhollen/KnowledgeChat/internal/api/search"
	"github.com/mrhollen/KnowledgeChat/internal/chat"
	"github.com/mrhollen/KnowledgeChat/internal/conversation"
	"github.com/mrhollen/KnowledgeChat/internal/feedback"
	"github.com/mrhollen/KnowledgeChat/internal/filter"
	"github.com/mrhollen/KnowledgeChat/internal/markup"
	"github.com/mrhollen/KnowledgeChat/internal/models"
	"github.com/mrhollen/KnowledgeChat/pkg/utils"
)

// ErrQuit is returned by Handle for /quit.
var ErrQuit = errors.New("quit")

// Backend is the part of the gateway the session uses directly.
type Backend interface {
	PostJSON(ctx context.Context, path string, body, out any) error
	GetJSON(ctx context.Context, path string, out any) error
}

// Session binds an orchestrator and a feedback attributor to a terminal.
type Session struct {
	orch      *chat.Orchestrator
	feedback  *feedback.Attributor
	backend   Backend
	out       io.Writer
	logger    *zap.Logger
	converter *md.Converter

	// known holds what search and listing taught us about each document.
	known map[string]models.Reference
}

func NewSession(orch *chat.Orchestrator, attr *feedback.Attributor, backend Backend, out io.Writer, logger *zap.Logger) *Session {
	return &Session{
		orch:      orch,
		feedback:  attr,
		backend:   backend,
		out:       out,
		logger:    utils.OrNop(logger),
		converter: md.NewConverter("", true, nil),
		known:     make(map[string]models.Reference),
	}
}

// Run reads lines from in until EOF or /quit.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	s.prompt()
	for scanner.Scan() {
		err := s.Handle(ctx, scanner.Text())
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		s.prompt()
	}
	return scanner.Err()
}

func (s *Session) prompt() {
	fmt.Fprintf(s.out, "[%s] > ", s.orch.Scope())
}

// Handle runs one input line.
func (s *Session) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return s.ask(ctx, line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit":
		return ErrQuit
	case "help":
		fmt.Fprint(s.out, helpText)
		return nil
	case "new":
		s.orch.NewTopic()
		s.feedback.Close()
		fmt.Fprintln(s.out, "Started a new topic.")
		return nil
	case "scope":
		return s.setScope(arg)
	case "docs":
		return s.listDocuments(ctx, arg)
	case "search":
		return s.search(ctx, arg)
	case "select":
		return s.selectDocuments(arg)
	case "doc":
		return s.selectDocument(arg)
	case "model", "source", "temperature", "tokens":
		return s.changeOption(name, arg)
	case "options":
		opts := s.orch.Options()
		fmt.Fprintf(s.out, "model=%s source=%s temperature=%.2f tokens=%d\n", opts.Model, opts.Source, opts.Temperature, opts.MaxTokens)
		return nil
	case "follow":
		return s.follow(ctx, arg)
	case "good":
		return s.good(ctx)
	case "bad":
		return s.bad(ctx, arg)
	case "history":
		s.printHistory()
		return nil
	default:
		return fmt.Errorf("unknown command /%s, try /help", name)
	}
}

const helpText = `Type a question to ask it. Commands:
  /new                      start a new topic
  /scope <label>            All Documents, Search Results, Selected Documents, Selected Document
  /docs [dataset]           list documents
  /search <query>           search documents and keep the results
  /select <id,id,...>       choose the selected documents
  /doc <id>                 choose the single selected document
  /model, /source, /temperature, /tokens <value>
  /options                  show the current options
  /follow <n>               ask the n-th suggested follow-up
  /good                     rate the last answer as correct
  /bad <reason> [| comment] report a problem with the last answer
  /history                  show the conversation
  /quit
`

func (s *Session) ask(ctx context.Context, question string) error {
	if err := s.orch.SubmitQuestion(ctx, question); err != nil {
		return err
	}
	s.feedback.Close()
	s.feedback.DismissThankYou()

	turn, ok := s.lastTurn()
	if !ok {
		return nil
	}
	s.printTurn(turn)
	return nil
}

func (s *Session) lastTurn() (conversation.Turn, bool) {
	turns := s.orch.Turns()
	if len(turns) == 0 {
		return conversation.Turn{}, false
	}
	return turns[len(turns)-1], true
}

func (s *Session) printTurn(turn conversation.Turn) {
	if turn.Answer.Status == conversation.StatusFailed {
		fmt.Fprintln(s.out, turn.Answer.Text)
		return
	}
	fmt.Fprintln(s.out, s.toTerminal(turn.Answer.Text))
	if len(turn.Answer.DocumentIDs) > 0 {
		fmt.Fprintln(s.out, "\nSources:")
		for _, ref := range s.references(turn.Answer.DocumentIDs) {
			fmt.Fprintf(s.out, "  - %s (%s)\n", ref.Label, ref.DocumentID)
		}
	}
	if len(turn.Answer.SuggestedFollowUps) > 0 {
		fmt.Fprintln(s.out, "\nFollow-ups:")
		for i, f := range turn.Answer.SuggestedFollowUps {
			fmt.Fprintf(s.out, "  %d. %s\n", i+1, f)
		}
	}
}

// toTerminal turns rendered answer HTML back into markdown for display.
func (s *Session) toTerminal(html string) string {
	text, err := s.converter.ConvertString(html)
	if err != nil {
		s.logger.Debug("html to markdown failed", zap.Error(err))
		return markup.Unescape(html)
	}
	return text
}

func (s *Session) setScope(label string) error {
	scope, err := filter.ParseScope(label)
	if err != nil {
		return err
	}
	s.orch.SetScope(scope)
	fmt.Fprintf(s.out, "Scope: %s (%d documents)\n", scope, len(filter.Resolve(scope, s.orch.Documents())))
	return nil
}

func (s *Session) listDocuments(ctx context.Context, dataset string) error {
	path := "/documents"
	if dataset != "" {
		path += "?dataset=" + url.QueryEscape(dataset)
	}
	var docs []models.Document
	if err := s.backend.GetJSON(ctx, path, &docs); err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	all := make([]filter.Document, 0, len(docs))
	for _, d := range docs {
		all = append(all, filter.Document{ID: d.ID, Title: d.Title})
		s.learn(models.Reference{DocumentID: d.ID, Label: d.Title, DocumentURL: d.URL})
		fmt.Fprintf(s.out, "  %s  %s [%s]\n", d.ID, d.Title, d.Dataset)
	}

	docsState := s.orch.Documents()
	docsState.All = all
	s.orch.SetDocuments(docsState)
	return nil
}

func (s *Session) search(ctx context.Context, query string) error {
	if query == "" {
		return errors.New("usage: /search <query>")
	}
	var resp searchapi.SearchResponse
	if err := s.backend.PostJSON(ctx, "/search", searchapi.SearchRequest{Query: query}, &resp); err != nil {
		return fmt.Errorf("search: %w", err)
	}

	results := []filter.Document{}
	seen := make(map[string]bool)
	for _, r := range resp.Responses {
		if seen[r.DocumentID] {
			continue
		}
		seen[r.DocumentID] = true
		s.learn(models.Reference{
			DocumentID:  r.DocumentID,
			Label:       r.Title,
			Location:    r.ChunkID,
			DocumentURL: r.URL,
			ChunkText:   r.Text,
		})
		results = append(results, filter.Document{ID: r.DocumentID, Title: r.Title})
		fmt.Fprintf(s.out, "  %s  %s (%.3f)\n", r.DocumentID, r.Title, r.Score)
	}

	docs := s.orch.Documents()
	docs.SearchResults = results
	s.orch.SetDocuments(docs)
	fmt.Fprintf(s.out, "%d documents found.\n", len(results))
	return nil
}

func (s *Session) selectDocuments(arg string) error {
	selected := []filter.Document{}
	for _, id := range strings.Split(arg, ",") {
		if id = strings.TrimSpace(id); id != "" {
			selected = append(selected, filter.Document{ID: id, Title: s.known[id].Label})
		}
	}
	docs := s.orch.Documents()
	docs.Selected = selected
	s.orch.SetDocuments(docs)
	fmt.Fprintf(s.out, "%d documents selected.\n", len(selected))
	return nil
}

func (s *Session) selectDocument(id string) error {
	docs := s.orch.Documents()
	if id == "" {
		docs.Single = nil
	} else {
		docs.Single = &filter.Document{ID: id, Title: s.known[id].Label}
	}
	s.orch.SetDocuments(docs)
	return nil
}

func (s *Session) changeOption(name, value string) error {
	opts := s.orch.Options()
	switch name {
	case "model":
		opts.Model = value
	case "source":
		opts.Source = value
	case "temperature":
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("temperature must be a number: %w", err)
		}
		opts.Temperature = t
	case "tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("tokens must be an integer: %w", err)
		}
		opts.MaxTokens = n
	}
	return s.orch.ChangeOptions(opts)
}

func (s *Session) follow(ctx context.Context, arg string) error {
	turn, ok := s.lastTurn()
	if !ok {
		return errors.New("nothing to follow up on")
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(turn.Answer.SuggestedFollowUps) {
		return fmt.Errorf("choose a follow-up between 1 and %d", len(turn.Answer.SuggestedFollowUps))
	}
	question := turn.Answer.SuggestedFollowUps[n-1]
	fmt.Fprintf(s.out, "> %s\n", question)
	if err := s.orch.FollowUp(ctx, question); err != nil {
		return err
	}
	if turn, ok = s.lastTurn(); ok {
		s.printTurn(turn)
	}
	return nil
}

func (s *Session) good(ctx context.Context) error {
	turn, ok := s.lastTurn()
	if !ok || turn.Answer.Status != conversation.StatusAnswered {
		return errors.New("there is no answer to rate")
	}
	accepted, err := s.feedback.SubmitPositive(ctx, s.references(turn.Answer.DocumentIDs))
	if err != nil {
		return err
	}
	if accepted {
		fmt.Fprintln(s.out, "Thank you for your feedback.")
	}
	return nil
}

// bad opens the feedback form for the last answer and submits it. The
// argument is "reason" or "reason | comment".
func (s *Session) bad(ctx context.Context, arg string) error {
	turn, ok := s.lastTurn()
	if !ok || turn.Answer.Status != conversation.StatusAnswered {
		return errors.New("there is no answer to rate")
	}
	reason, comment, _ := strings.Cut(arg, "|")

	if !s.feedback.IsOpen() {
		s.feedback.Open(s.references(turn.Answer.DocumentIDs))
	}
	accepted, err := s.feedback.SubmitNegative(ctx, reason, comment)
	if err != nil {
		return err
	}
	if accepted {
		fmt.Fprintln(s.out, "Thank you for your feedback.")
	}
	return nil
}

func (s *Session) printHistory() {
	for _, h := range s.orch.History() {
		content := h.Content
		if h.Role == conversation.RoleAssistant {
			content = s.toTerminal(content)
		}
		fmt.Fprintf(s.out, "%s: %s\n", h.Role, content)
	}
}

func (s *Session) learn(ref models.Reference) {
	if prev, ok := s.known[ref.DocumentID]; ok && ref.ChunkText == "" {
		ref.Location = prev.Location
		ref.ChunkText = prev.ChunkText
	}
	s.known[ref.DocumentID] = ref
}

// references describes ids using whatever search and listing returned.
func (s *Session) references(ids []string) []models.Reference {
	refs := make([]models.Reference, 0, len(ids))
	for _, id := range ids {
		ref, ok := s.known[id]
		if !ok {
			ref = models.Reference{DocumentID: id}
		}
		if ref.Label == "" {
			ref.Label = id
		}
		refs = append(refs, ref)
	}
	return refs
}
