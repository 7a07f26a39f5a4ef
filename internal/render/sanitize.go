package render

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// InlinePolicy is the markup allowed inside rich text before link
// resolution: basic formatting, line breaks, article links carrying a
// numeric data-article-id and plain external links.
func InlinePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "s", "mark", "code", "br", "sub", "sup")
	p.AllowAttrs("data-article-id").Matching(regexp.MustCompile(`^\s*\d+\s*$`)).OnElements("a")
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}
