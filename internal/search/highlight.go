// Package search finds articles by text and marks query matches for display.
package search

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Span is a piece of highlighted text.
type Span struct {
	Text  string `json:"text"`
	Match bool   `json:"match"`
}

// ExcerptRunes is the default excerpt width.
const ExcerptRunes = 160

func pattern(query string) *regexp.Regexp {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(q))
}

// Highlight splits text on case-insensitive literal occurrences of the
// trimmed query. A blank query yields one non-match span holding text.
func Highlight(text, query string) []Span {
	re := pattern(query)
	if re == nil {
		return []Span{{Text: text}}
	}
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []Span{{Text: text}}
	}
	spans := make([]Span, 0, 2*len(locs)+1)
	pos := 0
	for _, loc := range locs {
		if loc[0] > pos {
			spans = append(spans, Span{Text: text[pos:loc[0]]})
		}
		spans = append(spans, Span{Text: text[loc[0]:loc[1]], Match: true})
		pos = loc[1]
	}
	if pos < len(text) {
		spans = append(spans, Span{Text: text[pos:]})
	}
	return spans
}

// HighlightHTML escapes text and wraps matches in <mark>.
func HighlightHTML(text, query string) string {
	var sb strings.Builder
	for _, s := range Highlight(text, query) {
		if s.Match {
			sb.WriteString("<mark>")
			sb.WriteString(html.EscapeString(s.Text))
			sb.WriteString("</mark>")
			continue
		}
		sb.WriteString(html.EscapeString(s.Text))
	}
	return sb.String()
}

// Excerpt returns at most width runes of text, centred on the first match
// of query when there is one. Cut ends are marked with an ellipsis.
func Excerpt(text, query string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if width <= 0 {
		width = ExcerptRunes
	}
	if utf8.RuneCountInString(text) <= width {
		return text
	}
	runes := []rune(text)
	start := 0
	if re := pattern(query); re != nil {
		if loc := re.FindStringIndex(text); loc != nil {
			matchAt := utf8.RuneCountInString(text[:loc[0]])
			start = max(0, matchAt-width/3)
		}
	}
	end := min(len(runes), start+width)
	if end-start < width {
		start = max(0, end-width)
	}
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}
