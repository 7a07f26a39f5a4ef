package blockdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TextData is the payload of paragraph blocks.
type TextData struct {
	Text string `json:"text"`
}

// HeadingData is the payload of heading blocks.
type HeadingData struct {
	Text  string `json:"text"`
	Level int    `json:"level,omitempty"`
}

// ListData is the payload of list blocks.
type ListData struct {
	Style string     `json:"style,omitempty"`
	Items []ListItem `json:"items"`
}

// Ordered reports whether the list is numbered.
func (l ListData) Ordered() bool {
	return l.Style == "ordered"
}

// ListItem is one list entry. Items arrive either as bare strings or as
// {"content": ..., "items": [...]} objects for nested lists.
type ListItem struct {
	Content string     `json:"content"`
	Items   []ListItem `json:"items,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (li *ListItem) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		li.Items = nil
		return json.Unmarshal(trimmed, &li.Content)
	}
	type plain ListItem
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*li = ListItem(p)
	return nil
}

// QuoteData is the payload of quote blocks.
type QuoteData struct {
	Text    string `json:"text"`
	Caption string `json:"caption,omitempty"`
}

// ImageData is the payload of image blocks. The uploaded asset URL is
// accepted either as data.url or as data.file.url.
type ImageData struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (im *ImageData) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
		File    struct {
			URL string `json:"url"`
		} `json:"file"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	im.URL = raw.URL
	if im.URL == "" {
		im.URL = raw.File.URL
	}
	im.Caption = raw.Caption
	return nil
}

// IndexListData is the payload of index-list blocks.
type IndexListData struct {
	Entries []IndexEntry `json:"entries"`
}

// IndexEntry references another article from an index-list block.
// Valid is false when the stored target id is missing or not numeric.
type IndexEntry struct {
	TargetID      int64
	FallbackTitle string
	Valid         bool
}

// UnmarshalJSON accepts {"article_id", "title"} and the
// {"targetArticleId", "fallbackTitle"} spelling.
func (e *IndexEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = IndexEntry{}
	for _, key := range []string{"article_id", "targetArticleId"} {
		if v, ok := raw[key]; ok {
			e.TargetID, e.Valid = parseRawID(v)
			break
		}
	}
	for _, key := range []string{"title", "fallbackTitle"} {
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, &e.FallbackTitle)
			break
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e IndexEntry) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if e.Valid {
		out["article_id"] = e.TargetID
	}
	if e.FallbackTitle != "" {
		out["title"] = e.FallbackTitle
	}
	return json.Marshal(out)
}

func parseRawID(raw json.RawMessage) (int64, bool) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(t)
	default:
		return 0, false
	}
	return ParseTargetID(n.String())
}

// ParseTargetID parses an article id as found in link markers and index
// entries. Only positive base-10 integers are accepted.
func ParseTargetID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (b Block) decode(v any) error {
	data := bytes.TrimSpace(b.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("blockdoc: decode %s block: %w", b.Type, err)
	}
	return nil
}

// Paragraph decodes a paragraph payload.
func (b Block) Paragraph() (TextData, error) {
	var d TextData
	err := b.decode(&d)
	return d, err
}

// Heading decodes a heading payload. Level defaults to 2 and is clamped to 1..6.
func (b Block) Heading() (HeadingData, error) {
	var d HeadingData
	if err := b.decode(&d); err != nil {
		return d, err
	}
	switch {
	case d.Level == 0:
		d.Level = 2
	case d.Level < 1:
		d.Level = 1
	case d.Level > 6:
		d.Level = 6
	}
	return d, nil
}

// List decodes a list payload.
func (b Block) List() (ListData, error) {
	var d ListData
	err := b.decode(&d)
	return d, err
}

// Quote decodes a quote payload.
func (b Block) Quote() (QuoteData, error) {
	var d QuoteData
	err := b.decode(&d)
	return d, err
}

// Image decodes an image payload.
func (b Block) Image() (ImageData, error) {
	var d ImageData
	err := b.decode(&d)
	return d, err
}

// IndexList decodes an index-list payload.
func (b Block) IndexList() (IndexListData, error) {
	var d IndexListData
	err := b.decode(&d)
	return d, err
}
