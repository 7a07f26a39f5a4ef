package blockdoc

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LinkMarker is a reference to another article embedded in rich text.
type LinkMarker struct {
	TargetID   int64
	AnchorText string
}

// SegmentKind tells markup apart from article links in a tokenized fragment.
type SegmentKind int

const (
	SegmentMarkup SegmentKind = iota
	SegmentLink
)

// Segment is a piece of rich text. Markup segments hold re-serialized HTML;
// link segments hold the target id and the serialized anchor content.
type Segment struct {
	Kind     SegmentKind
	HTML     string
	TargetID int64
}

type anchorState int

const (
	anchorKeep anchorState = iota
	anchorLink
	anchorDrop
)

// Segments splits a rich-text fragment into markup and article links.
// Anchors whose data-article-id is not a positive integer lose their tags
// and keep their content. Anchors without data-article-id are kept as markup.
// Nested anchors inside an article link are flattened into its content.
func Segments(fragment string) []Segment {
	if fragment == "" {
		return nil
	}
	var (
		out    []Segment
		buf    strings.Builder
		inner  strings.Builder
		stack  []anchorState
		linkID int64
		inLink bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, Segment{Kind: SegmentMarkup, HTML: buf.String()})
			buf.Reset()
		}
	}
	write := func(s string) {
		if inLink {
			inner.WriteString(s)
			return
		}
		buf.WriteString(s)
	}

	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()
		switch tt {
		case html.CommentToken, html.DoctypeToken:
			continue
		case html.StartTagToken:
			if tok.DataAtom != atom.A {
				write(tok.String())
				continue
			}
			if inLink {
				stack = append(stack, anchorDrop)
				continue
			}
			raw, has := attr(tok, "data-article-id")
			if !has {
				stack = append(stack, anchorKeep)
				write(tok.String())
				continue
			}
			id, ok := ParseTargetID(raw)
			if !ok {
				stack = append(stack, anchorDrop)
				continue
			}
			flush()
			stack = append(stack, anchorLink)
			inLink, linkID = true, id
			inner.Reset()
		case html.EndTagToken:
			if tok.DataAtom != atom.A {
				write(tok.String())
				continue
			}
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch top {
			case anchorKeep:
				write(tok.String())
			case anchorLink:
				out = append(out, Segment{Kind: SegmentLink, HTML: inner.String(), TargetID: linkID})
				inLink = false
			}
		default:
			write(tok.String())
		}
	}
	if inLink {
		out = append(out, Segment{Kind: SegmentLink, HTML: inner.String(), TargetID: linkID})
	}
	flush()
	return out
}

// ExtractLinkMarkers returns the article links of one rich-text fragment in
// document order.
func ExtractLinkMarkers(fragment string) []LinkMarker {
	var out []LinkMarker
	for _, seg := range Segments(fragment) {
		if seg.Kind != SegmentLink {
			continue
		}
		out = append(out, LinkMarker{TargetID: seg.TargetID, AnchorText: StripTags(seg.HTML)})
	}
	return out
}

func attr(tok html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
