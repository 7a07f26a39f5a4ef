// Package render turns block documents into display markup.
package render

import (
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/starford/quire/internal/blockdoc"
	"github.com/starford/quire/internal/refs"
)

// Block is the markup of one rendered block. Links lists the article ids
// the block links to, in order of first appearance.
type Block struct {
	ID    string        `json:"id,omitempty"`
	Kind  blockdoc.Kind `json:"kind"`
	HTML  string        `json:"html"`
	Links []int64       `json:"links,omitempty"`
}

// Renderer renders documents. It holds no per-call state and is safe for
// concurrent use.
type Renderer struct {
	policy *bluemonday.Policy
}

// New returns a Renderer using InlinePolicy.
func New() *Renderer {
	return &Renderer{policy: InlinePolicy()}
}

var defaultRenderer = New()

// Render renders doc with the package default Renderer.
func Render(doc blockdoc.Document, m refs.Map) []Block {
	return defaultRenderer.Render(doc, m)
}

// Join concatenates rendered blocks, one per line.
func Join(blocks []Block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.HTML
	}
	return strings.Join(parts, "\n")
}

// Render renders every known block of doc. Unknown kinds and blocks whose
// data cannot be decoded produce no output.
func (r *Renderer) Render(doc blockdoc.Document, m refs.Map) []Block {
	out := make([]Block, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		w := &writer{r: r, refs: m}
		if !w.block(b) {
			continue
		}
		out = append(out, Block{ID: b.ID, Kind: b.Kind(), HTML: w.sb.String(), Links: w.links})
	}
	return out
}

type writer struct {
	r     *Renderer
	refs  refs.Map
	sb    strings.Builder
	links []int64
}

func (w *writer) block(b blockdoc.Block) bool {
	switch b.Kind() {
	case blockdoc.KindParagraph:
		d, err := b.Paragraph()
		if err != nil {
			return false
		}
		w.sb.WriteString("<p>")
		w.inline(d.Text)
		w.sb.WriteString("</p>")
	case blockdoc.KindHeading:
		d, err := b.Heading()
		if err != nil {
			return false
		}
		tag := "h" + strconv.Itoa(d.Level)
		w.sb.WriteString("<" + tag + ">")
		w.inline(d.Text)
		w.sb.WriteString("</" + tag + ">")
	case blockdoc.KindList:
		d, err := b.List()
		if err != nil {
			return false
		}
		w.list(d.Ordered(), d.Items)
	case blockdoc.KindQuote:
		d, err := b.Quote()
		if err != nil {
			return false
		}
		w.sb.WriteString("<blockquote><p>")
		w.inline(d.Text)
		w.sb.WriteString("</p>")
		if strings.TrimSpace(d.Caption) != "" {
			w.sb.WriteString("<cite>")
			w.inline(d.Caption)
			w.sb.WriteString("</cite>")
		}
		w.sb.WriteString("</blockquote>")
	case blockdoc.KindDelimiter:
		w.sb.WriteString(`<hr class="delimiter">`)
	case blockdoc.KindImage:
		d, err := b.Image()
		if err != nil || !safeURL(d.URL) {
			return false
		}
		w.sb.WriteString(`<figure class="image"><img src="`)
		w.sb.WriteString(html.EscapeString(d.URL))
		w.sb.WriteString(`" alt="`)
		w.sb.WriteString(html.EscapeString(blockdoc.StripTags(d.Caption)))
		w.sb.WriteString(`">`)
		if strings.TrimSpace(d.Caption) != "" {
			w.sb.WriteString("<figcaption>")
			w.inline(d.Caption)
			w.sb.WriteString("</figcaption>")
		}
		w.sb.WriteString("</figure>")
	case blockdoc.KindIndexList:
		d, err := b.IndexList()
		if err != nil {
			return false
		}
		w.indexList(d.Entries)
	default:
		return false
	}
	return true
}

func (w *writer) list(ordered bool, items []blockdoc.ListItem) {
	tag := "ul"
	if ordered {
		tag = "ol"
	}
	w.sb.WriteString("<" + tag + ">")
	for _, it := range items {
		w.sb.WriteString("<li>")
		w.inline(it.Content)
		if len(it.Items) > 0 {
			w.list(ordered, it.Items)
		}
		w.sb.WriteString("</li>")
	}
	w.sb.WriteString("</" + tag + ">")
}

func (w *writer) indexList(entries []blockdoc.IndexEntry) {
	w.sb.WriteString(`<ol class="index-list">`)
	for _, e := range entries {
		if !e.Valid {
			continue
		}
		title, ok := w.refs.Lookup(e.TargetID)
		if !ok || strings.TrimSpace(title) == "" {
			title = strings.TrimSpace(e.FallbackTitle)
		}
		if title == "" {
			continue
		}
		w.sb.WriteString("<li>")
		w.anchor(e.TargetID, title, html.EscapeString(title))
		w.sb.WriteString("</li>")
	}
	w.sb.WriteString("</ol>")
}

// inline sanitizes a rich-text fragment and rewrites its article links.
func (w *writer) inline(fragment string) {
	if fragment == "" {
		return
	}
	clean := w.r.policy.Sanitize(fragment)
	for _, seg := range blockdoc.Segments(clean) {
		if seg.Kind == blockdoc.SegmentMarkup {
			w.sb.WriteString(seg.HTML)
			continue
		}
		title := w.refs.TitleOf(seg.TargetID)
		inner := seg.HTML
		if strings.TrimSpace(blockdoc.StripTags(inner)) == "" {
			inner = html.EscapeString(title)
		}
		w.anchor(seg.TargetID, title, inner)
	}
}

func (w *writer) anchor(id int64, title, inner string) {
	tooltip := title
	if p, ok := w.refs.PreviewOf(id); ok && p != "" {
		tooltip = title + "\n" + p
	}
	ids := strconv.FormatInt(id, 10)
	w.sb.WriteString(`<a href="/articles/` + ids + `" target="_blank" rel="noopener" class="article-link" data-article-id="` + ids + `" title="`)
	w.sb.WriteString(html.EscapeString(tooltip))
	w.sb.WriteString(`">`)
	w.sb.WriteString(inner)
	w.sb.WriteString("</a>")
	w.addLink(id)
}

func (w *writer) addLink(id int64) {
	for _, l := range w.links {
		if l == id {
			return
		}
	}
	w.links = append(w.links, id)
}

func safeURL(u string) bool {
	u = strings.TrimSpace(u)
	switch {
	case u == "":
		return false
	case strings.HasPrefix(u, "//"):
		return false
	case strings.HasPrefix(u, "/"):
		return true
	}
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}
