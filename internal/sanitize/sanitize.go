package sanitize

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// Policy cleans short labels such as chatroom names, and renders stored message markdown for display.
// Message content itself is stored as sent and only made safe here on the way out.
type Policy struct {
	strict   *bluemonday.Policy
	ugc      *bluemonday.Policy
	markdown goldmark.Markdown
}

func New() *Policy {
	return &Policy{
		strict:   bluemonday.StrictPolicy(),
		ugc:      bluemonday.UGCPolicy(),
		markdown: goldmark.New(),
	}
}

// Text strips every HTML tag, keeping the text content. Markdown is left untouched.
func (p *Policy) Text(s string) string {
	if s == "" {
		return ""
	}
	// StrictPolicy escapes entities; unescape so "<3" style text survives as typed
	return strings.TrimSpace(html.UnescapeString(p.strict.Sanitize(s)))
}

// HTML renders markdown to HTML safe to embed in a page.
func (p *Policy) HTML(markdown string) string {
	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(markdown), &buf); err != nil {
		return p.strict.Sanitize(markdown)
	}
	return p.ugc.Sanitize(buf.String())
}
