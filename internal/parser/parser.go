// Package parser reads markdown article files: YAML frontmatter, title and
// wikilinks to other articles.
package parser

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

// WikiLink is a [[target]] or [[target|anchor]] reference.
type WikiLink struct {
	Target string
	Anchor string
}

// Result holds the output of parsing a markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	Slug        string
	// IsIndex is nil when the frontmatter does not say.
	IsIndex *bool
	Links   []WikiLink
}

// Parse splits frontmatter from the body and collects wikilinks.
// Invalid YAML is not an error; the whole input is then treated as body.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)
	r := &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Slug:        stringField(fm, "slug"),
		Links:       extractLinks(body),
	}
	if v, ok := fm["is_index"].(bool); ok {
		r.IsIndex = &v
	}
	return r, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Without frontmatter the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}
	yamlBlock := rest[:idx]
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

func splitLink(raw string) WikiLink {
	target, anchor := raw, ""
	if i := strings.Index(raw, "|"); i >= 0 {
		target, anchor = raw[:i], raw[i+1:]
	}
	return WikiLink{Target: strings.TrimSpace(target), Anchor: strings.TrimSpace(anchor)}
}

// extractLinks returns wikilinks in order, deduplicated on (target, anchor).
func extractLinks(body string) []WikiLink {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[WikiLink]struct{}, len(matches))
	var out []WikiLink
	for _, m := range matches {
		l := splitLink(m[1])
		if l.Target == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// RewriteLinks turns wikilinks into markdown links to /articles/{id}.
// Numeric targets are used as ids; other targets go through resolve.
// Unresolvable links are replaced by their anchor (or target) text.
func RewriteLinks(body string, resolve func(target string) (int64, bool)) string {
	return wikilinkRe.ReplaceAllStringFunc(body, func(m string) string {
		l := splitLink(m[2 : len(m)-2])
		if l.Target == "" {
			return m
		}
		text := l.Anchor
		if text == "" {
			text = l.Target
		}
		id, err := strconv.ParseInt(l.Target, 10, 64)
		ok := err == nil && id > 0
		if ok && l.Anchor == "" {
			text = ""
		}
		if !ok && resolve != nil {
			id, ok = resolve(l.Target)
		}
		if !ok {
			return text
		}
		return "[" + text + "](/articles/" + strconv.FormatInt(id, 10) + ")"
	})
}

func stringField(fm map[string]interface{}, key string) string {
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s := stringField(fm, "title"); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
