package mcpserver

// BlockFormatURI is the resource holding BlockFormatContract.
const BlockFormatURI = "quire://block-format"

// BlockFormatContract describes the article formats LLM consumers can
// write: the Markdown accepted by create_article and the block document it
// is stored as.
const BlockFormatContract = `# Quire Article Format

Articles are stored as block documents. The create_article tool accepts
Markdown and converts it; the REST API accepts the block document directly.

## Markdown input

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL – defaults to the first "# heading"
slug: kebab-case-slug               # OPTIONAL – derived from the title
is_index: false                     # OPTIONAL – marks a table-of-contents article
---

# Title

Body text. Link other articles of the same journal with [[Their Title]],
[[their-slug]], [[42]] (article id) or [[Their Title|custom anchor text]].

![Caption](/uploads/0b6f1c1e.png)
` + "```" + `

1. Wikilinks are resolved against the titles and slugs of the journal,
   case-insensitively. Unresolved wikilinks keep their text and link nowhere.
2. Headings, paragraphs, lists, block quotes, images and "---" rules are kept.
   Code blocks become <code> paragraphs; tables and raw HTML blocks are dropped.
3. Upload images first with upload_image and use the returned URL.

## Block document

` + "```" + `json
{
  "blocks": [
    {"type": "heading",   "data": {"text": "Title", "level": 2}},
    {"type": "paragraph", "data": {"text": "See <a data-article-id=\"42\">the map</a>."}},
    {"type": "list",      "data": {"style": "unordered", "items": ["one", {"content": "two", "items": ["nested"]}]}},
    {"type": "quote",     "data": {"text": "Quoted", "caption": "Someone"}},
    {"type": "delimiter", "data": {}},
    {"type": "image",     "data": {"url": "/uploads/x.png", "caption": "A photo"}},
    {"type": "index-list","data": {"entries": [{"article_id": 42, "title": "The map"}]}}
  ]
}
` + "```" + `

- Rich text is an HTML fragment; <b>, <i>, <u>, <a href> and line breaks
  survive rendering, everything else is stripped.
- An article link is <a data-article-id="N">anchor</a>. It renders as a link
  to /articles/N titled with the target's title, or as plain anchor text when
  N is not an article of the journal.
- Unknown block types are stored and returned unchanged but not rendered.
- An article with index-list entries is an index article unless is_index is
  set explicitly.
`
