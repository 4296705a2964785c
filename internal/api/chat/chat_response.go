package api

// ChatResponse is what POST /chat returns. Answer is a pointer so a reply
// without an answer can be told apart from an empty one.
type ChatResponse struct {
	Answer              *string  `json:"answer"`
	SuggestingQuestions []string `json:"suggestingQuestions"`
	DocumentIDs         []string `json:"documentIds"`
	Keywords            []string `json:"keywords"`
}
