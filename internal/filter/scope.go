// Package filter resolves which documents constrain retrieval for a chat turn.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownScope is returned by ParseScope for a label it does not know.
var ErrUnknownScope = errors.New("unknown document scope")

// Scope selects the document set a question is asked against.
type Scope int

const (
	// AllDocuments searches the full corpus. It is the default scope.
	AllDocuments Scope = iota
	SearchResultDocuments
	SelectedDocuments
	SingleSelectedDocument
)

var labels = map[Scope]string{
	AllDocuments:           "All Documents",
	SearchResultDocuments:  "Search Results",
	SelectedDocuments:      "Selected Documents",
	SingleSelectedDocument: "Selected Document",
}

func (s Scope) String() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// ParseScope maps a UI label such as "Search Results" to its Scope.
// Matching ignores case and surrounding space.
func ParseScope(label string) (Scope, error) {
	label = strings.TrimSpace(label)
	for s, l := range labels {
		if strings.EqualFold(l, label) {
			return s, nil
		}
	}
	return AllDocuments, fmt.Errorf("%w: %q", ErrUnknownScope, label)
}

// Document is the part of a document the filter cares about.
type Document struct {
	ID    string `json:"documentId"`
	Title string `json:"title,omitempty"`
}

// Documents are the externally supplied lists a scope resolves against.
type Documents struct {
	All           []Document
	SearchResults []Document
	Selected      []Document
	Single        *Document
}

// Resolve returns the document ids for scope, in list order. The result is
// never nil; an empty slice means no filter.
func Resolve(scope Scope, docs Documents) []string {
	switch scope {
	case SelectedDocuments:
		return ids(docs.Selected)
	case SearchResultDocuments:
		return ids(docs.SearchResults)
	case SingleSelectedDocument:
		if docs.Single == nil || docs.Single.ID == "" {
			return []string{}
		}
		return []string{docs.Single.ID}
	default:
		return []string{}
	}
}

func ids(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}
