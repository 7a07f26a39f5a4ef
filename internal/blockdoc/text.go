package blockdoc

import (
	"encoding/json"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/starford/quire/internal/models"
)

var strict = bluemonday.StrictPolicy()

// textKeys are the data fields searched for text, in output order.
var textKeys = []string{"text", "caption", "title", "message"}

// StripTags removes markup from a rich-text fragment and decodes entities.
func StripTags(fragment string) string {
	if fragment == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(fragment)))
}

// PlainText flattens the document to searchable text: for every block the
// text, caption, title and message fields followed by list items (nested
// items depth-first), tags stripped, empty values skipped, one per line.
func (d Document) PlainText() string {
	var parts []string
	for _, b := range d.Blocks {
		parts = append(parts, b.textParts()...)
	}
	return strings.Join(parts, "\n")
}

func (b Block) textParts() []string {
	var data map[string]json.RawMessage
	if err := b.decode(&data); err != nil || data == nil {
		return nil
	}
	var parts []string
	for _, key := range textKeys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if t := StripTags(s); t != "" {
			parts = append(parts, t)
		}
	}
	if raw, ok := data["items"]; ok {
		var items []ListItem
		if err := json.Unmarshal(raw, &items); err == nil {
			parts = appendItemText(parts, items)
		}
	}
	return parts
}

func appendItemText(parts []string, items []ListItem) []string {
	for _, it := range items {
		if t := StripTags(it.Content); t != "" {
			parts = append(parts, t)
		}
		parts = appendItemText(parts, it.Items)
	}
	return parts
}

// RichText returns the rich-text fragments of a block that may carry link
// markers. Only paragraph, heading, list and quote blocks have any.
func (b Block) RichText() []string {
	switch b.Kind() {
	case KindParagraph:
		d, err := b.Paragraph()
		if err != nil {
			return nil
		}
		return []string{d.Text}
	case KindHeading:
		d, err := b.Heading()
		if err != nil {
			return nil
		}
		return []string{d.Text}
	case KindQuote:
		d, err := b.Quote()
		if err != nil {
			return nil
		}
		return []string{d.Text, d.Caption}
	case KindList:
		d, err := b.List()
		if err != nil {
			return nil
		}
		return itemFragments(nil, d.Items)
	default:
		return nil
	}
}

func itemFragments(out []string, items []ListItem) []string {
	for _, it := range items {
		out = append(out, it.Content)
		out = itemFragments(out, it.Items)
	}
	return out
}

// LinkMarkers returns every article link in the document in document order.
func (d Document) LinkMarkers() []LinkMarker {
	var out []LinkMarker
	for _, b := range d.Blocks {
		for _, frag := range b.RichText() {
			out = append(out, ExtractLinkMarkers(frag)...)
		}
	}
	return out
}

// IndexEntries returns the valid entries of all index-list blocks.
func (d Document) IndexEntries() []models.IndexEntry {
	var out []models.IndexEntry
	for _, b := range d.Blocks {
		if b.Kind() != KindIndexList {
			continue
		}
		data, err := b.IndexList()
		if err != nil {
			continue
		}
		for _, e := range data.Entries {
			if !e.Valid {
				continue
			}
			out = append(out, models.IndexEntry{ArticleID: e.TargetID, Title: strings.TrimSpace(e.FallbackTitle)})
		}
	}
	return out
}

// References returns the distinct article ids referenced by link markers
// and index entries, in order of first appearance.
func (d Document) References() []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, m := range d.LinkMarkers() {
		add(m.TargetID)
	}
	for _, e := range d.IndexEntries() {
		add(e.ArticleID)
	}
	return out
}
