package blockdoc

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	markdown      = goldmark.New(goldmark.WithExtensions(extension.GFM))
	articleLinkRe = regexp.MustCompile(`^/articles/(\d+)/?$`)
)

// FromMarkdown converts a markdown body into a block document. Links to
// /articles/{id} become link markers; other links keep only their text.
func FromMarkdown(src []byte) Document {
	root := markdown.Parser().Parse(text.NewReader(src))
	var doc Document
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if b, ok := blockFromNode(n, src); ok {
			doc.Blocks = append(doc.Blocks, b)
		}
	}
	return doc
}

func blockFromNode(n ast.Node, src []byte) (Block, bool) {
	var (
		b   Block
		err error
	)
	switch v := n.(type) {
	case *ast.Heading:
		b, err = NewBlock(KindHeading, HeadingData{Text: inlineHTML(v, src), Level: v.Level})
	case *ast.Paragraph:
		if img, ok := soleImage(v); ok {
			b, err = NewBlock(KindImage, map[string]any{
				"file":    map[string]string{"url": string(img.Destination)},
				"caption": inlineHTML(img, src),
			})
			break
		}
		b, err = NewBlock(KindParagraph, TextData{Text: inlineHTML(v, src)})
	case *ast.List:
		style := "unordered"
		if v.IsOrdered() {
			style = "ordered"
		}
		b, err = NewBlock(KindList, ListData{Style: style, Items: listItems(v, src)})
	case *ast.Blockquote:
		b, err = NewBlock(KindQuote, QuoteData{Text: joinChildren(v, src)})
	case *ast.ThematicBreak:
		b, err = NewBlock(KindDelimiter, struct{}{})
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		b, err = NewBlock(KindParagraph, TextData{Text: "<code>" + html.EscapeString(linesOf(n, src)) + "</code>"})
	default:
		return Block{}, false
	}
	return b, err == nil
}

func soleImage(p *ast.Paragraph) (*ast.Image, bool) {
	if p.ChildCount() != 1 {
		return nil, false
	}
	img, ok := p.FirstChild().(*ast.Image)
	return img, ok
}

func listItems(l *ast.List, src []byte) []ListItem {
	var items []ListItem
	for c := l.FirstChild(); c != nil; c = c.NextSibling() {
		li, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		var (
			item  ListItem
			texts []string
		)
		for part := li.FirstChild(); part != nil; part = part.NextSibling() {
			switch p := part.(type) {
			case *ast.List:
				item.Items = append(item.Items, listItems(p, src)...)
			case *ast.TextBlock, *ast.Paragraph:
				texts = append(texts, inlineHTML(p, src))
			}
		}
		item.Content = strings.Join(texts, "<br>")
		items = append(items, item)
	}
	return items
}

func joinChildren(n ast.Node, src []byte) string {
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
			parts = append(parts, inlineHTML(v, src))
		default:
			parts = append(parts, joinChildren(v, src))
		}
	}
	return strings.Join(parts, "<br>")
}

func linesOf(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func inlineHTML(n ast.Node, src []byte) string {
	var sb strings.Builder
	writeInline(&sb, n, src)
	return strings.TrimSpace(sb.String())
}

func writeInline(sb *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			sb.WriteString(html.EscapeString(string(v.Segment.Value(src))))
			switch {
			case v.HardLineBreak():
				sb.WriteString("<br>")
			case v.SoftLineBreak():
				sb.WriteString(" ")
			}
		case *ast.String:
			sb.WriteString(html.EscapeString(string(v.Value)))
		case *ast.CodeSpan:
			sb.WriteString("<code>")
			writeInline(sb, v, src)
			sb.WriteString("</code>")
		case *ast.Emphasis:
			tag := "i"
			if v.Level >= 2 {
				tag = "b"
			}
			sb.WriteString("<" + tag + ">")
			writeInline(sb, v, src)
			sb.WriteString("</" + tag + ">")
		case *ast.Link:
			id, ok := articleID(string(v.Destination))
			if !ok {
				writeInline(sb, v, src)
				continue
			}
			fmt.Fprintf(sb, `<a data-article-id="%d">`, id)
			writeInline(sb, v, src)
			sb.WriteString("</a>")
		case *ast.AutoLink:
			sb.WriteString(html.EscapeString(string(v.URL(src))))
		case *ast.RawHTML:
		default:
			writeInline(sb, c, src)
		}
	}
}

func articleID(dest string) (int64, bool) {
	m := articleLinkRe.FindStringSubmatch(dest)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
