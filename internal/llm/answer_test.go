package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Answer
	}{
		{
			name: "bare json",
			raw:  `{"answer":"Paris","suggestingQuestions":["And Spain?"],"keywords":["france"]}`,
			want: Answer{Answer: "Paris", SuggestingQuestions: []string{"And Spain?"}, Keywords: []string{"france"}},
		},
		{
			name: "fenced json",
			raw:  "Here you go:\n```json\n{\"answer\":\"Paris\"}\n```",
			want: Answer{Answer: "Paris", SuggestingQuestions: []string{}, Keywords: []string{}},
		},
		{
			name: "plain text",
			raw:  "  Paris is the capital.  ",
			want: Answer{Answer: "Paris is the capital.", SuggestingQuestions: []string{}, Keywords: []string{}},
		},
		{
			name: "json without answer",
			raw:  `{"keywords":["x"]}`,
			want: Answer{Answer: `{"keywords":["x"]}`, SuggestingQuestions: []string{}, Keywords: []string{}},
		},
		{
			name: "broken json",
			raw:  `{"answer": "Par`,
			want: Answer{Answer: `{"answer": "Par`, SuggestingQuestions: []string{}, Keywords: []string{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAnswer(tt.raw))
		})
	}
}
