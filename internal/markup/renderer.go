// Package markup turns LLM-produced markdown into display-safe HTML.
package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts answer text into display markup.
type Renderer interface {
	Render(src string) (string, error)
}

// HTMLRenderer renders CommonMark with GitHub extensions and then sanitizes
// the result. Raw HTML in the source is never passed through.
//
// Surviving elements: p br hr strong em b i del code pre blockquote ul ol li
// h1-h6 table thead tbody tr th td a. Links keep only href with an http,
// https or mailto scheme and are marked rel="nofollow".
type HTMLRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: Policy(),
	}
}

// Policy is the sanitization allow-list applied after rendering.
func Policy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "hr", "strong", "em", "b", "i", "del", "code", "pre", "blockquote",
		"ul", "ol", "li", "h1", "h2", "h3", "h4", "h5", "h6",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	return p
}

func (r *HTMLRenderer) Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimSpace(r.policy.Sanitize(buf.String())), nil
}

// Unescape turns literal `\n` sequences into real newlines.
func Unescape(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
