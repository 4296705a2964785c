package llm

import (
	"encoding/json"
	"strings"
)

// Answer is the structured reply the system prompt asks for.
type Answer struct {
	Answer              string   `json:"answer"`
	SuggestingQuestions []string `json:"suggestingQuestions"`
	Keywords            []string `json:"keywords"`
}

// ParseAnswer extracts an Answer from raw model output. The JSON may be
// wrapped in a code fence or surrounded by prose. Output that holds no
// usable JSON becomes the answer text as is.
func ParseAnswer(raw string) Answer {
	text := strings.TrimSpace(raw)

	if candidate, ok := jsonObject(text); ok {
		var a Answer
		if err := json.Unmarshal([]byte(candidate), &a); err == nil && strings.TrimSpace(a.Answer) != "" {
			if a.SuggestingQuestions == nil {
				a.SuggestingQuestions = []string{}
			}
			if a.Keywords == nil {
				a.Keywords = []string{}
			}
			return a
		}
	}

	return Answer{
		Answer:              text,
		SuggestingQuestions: []string{},
		Keywords:            []string{},
	}
}

func jsonObject(text string) (string, bool) {
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			text = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
