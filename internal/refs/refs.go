// Package refs resolves article references against the articles of a journal.
package refs

import (
	"fmt"
	"strings"

	"github.com/starford/quire/internal/models"
)

// PreviewMaxRunes caps the length of a preview.
const PreviewMaxRunes = 180

// Map answers title and preview lookups for a fixed set of articles.
// The zero value resolves nothing and is ready to use.
type Map struct {
	titles   map[int64]string
	previews map[int64]string
}

// Resolve indexes articles by id. Later duplicates win.
func Resolve(articles []models.Article) Map {
	m := Map{
		titles:   make(map[int64]string, len(articles)),
		previews: make(map[int64]string, len(articles)),
	}
	for _, a := range articles {
		m.titles[a.ID] = a.Title
		m.previews[a.ID] = Preview(a.ContentText)
	}
	return m
}

// Fallback is the title shown for an unresolved reference.
func Fallback(id int64) string {
	return fmt.Sprintf("Article #%d", id)
}

// Lookup returns the sibling title when id is known.
func (m Map) Lookup(id int64) (string, bool) {
	t, ok := m.titles[id]
	return t, ok
}

// TitleOf returns the sibling title or the fallback for unknown ids.
func (m Map) TitleOf(id int64) string {
	if t, ok := m.titles[id]; ok {
		return t
	}
	return Fallback(id)
}

// PreviewOf returns the preview of a known article. The preview of a known
// article with no text is empty and ok is still true.
func (m Map) PreviewOf(id int64) (string, bool) {
	p, ok := m.previews[id]
	return p, ok
}

// Tooltip is "{title}\n{preview}", or just the title when there is no preview.
func (m Map) Tooltip(id int64) string {
	title := m.TitleOf(id)
	if p, ok := m.PreviewOf(id); ok && p != "" {
		return title + "\n" + p
	}
	return title
}

// Len reports how many articles the map knows.
func (m Map) Len() int {
	return len(m.titles)
}

// Preview takes the first two non-empty lines of text, joined by a space
// and cut to PreviewMaxRunes with an ellipsis.
func Preview(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 2 {
			break
		}
	}
	out := strings.Join(lines, " ")
	r := []rune(out)
	if len(r) <= PreviewMaxRunes {
		return out
	}
	return strings.TrimSpace(string(r[:PreviewMaxRunes-1])) + "…"
}
