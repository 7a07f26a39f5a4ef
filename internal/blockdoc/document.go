// Package blockdoc models article content as an ordered sequence of typed blocks.
//
// The exchange format is the one produced by block editors:
//
//	{"blocks": [{"id": "...", "type": "paragraph", "data": {...}}], "version": "2.28.0", "time": 1700000000000}
//
// Blocks of kinds this package does not know are kept verbatim, so a document
// survives a load/save cycle through Quire without losing content.
package blockdoc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/quire/internal/apperr"
)

// Kind is the normalized block kind.
type Kind string

// Known block kinds.
const (
	KindParagraph Kind = "paragraph"
	KindHeading   Kind = "heading"
	KindList      Kind = "list"
	KindQuote     Kind = "quote"
	KindDelimiter Kind = "delimiter"
	KindImage     Kind = "image"
	KindIndexList Kind = "index-list"
	KindUnknown   Kind = "unknown"
)

// KindOf maps a wire type string to a Kind. Editor aliases ("header",
// "index_list", "indexList") are folded onto the canonical kinds.
func KindOf(raw string) Kind {
	switch raw {
	case "paragraph":
		return KindParagraph
	case "heading", "header":
		return KindHeading
	case "list":
		return KindList
	case "quote":
		return KindQuote
	case "delimiter":
		return KindDelimiter
	case "image":
		return KindImage
	case "index-list", "index_list", "indexList":
		return KindIndexList
	default:
		return KindUnknown
	}
}

// Block is one unit of content. Type keeps the wire spelling; unknown
// top-level fields (block tunes and the like) are carried in extra.
type Block struct {
	ID    string
	Type  string
	Data  json.RawMessage
	extra map[string]json.RawMessage
}

// NewBlock builds a block of the given kind from a data value.
func NewBlock(kind Kind, data any) (Block, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Block{}, fmt.Errorf("blockdoc: encode %s data: %w", kind, err)
	}
	return Block{Type: string(kind), Data: raw}, nil
}

// Kind returns the normalized kind of the block.
func (b Block) Kind() Kind {
	return KindOf(b.Type)
}

// UnmarshalJSON accepts both "type" and "kind" as the block tag.
func (b *Block) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*b = Block{}
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &b.ID); err == nil {
			delete(fields, "id")
		}
	}
	for _, key := range []string{"type", "kind"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if b.Type == "" {
			b.Type = s
			delete(fields, key)
		}
	}
	if raw, ok := fields["data"]; ok {
		b.Data = append(json.RawMessage(nil), raw...)
		delete(fields, "data")
	}
	if len(fields) > 0 {
		b.extra = fields
	}
	return nil
}

// MarshalJSON writes the block with sorted keys so output is deterministic.
func (b Block) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(b.extra)+3)
	for k, v := range b.extra {
		out[k] = v
	}
	if b.ID != "" {
		id, _ := json.Marshal(b.ID)
		out["id"] = id
	}
	typ, _ := json.Marshal(b.Type)
	out["type"] = typ
	data := b.Data
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage(`{}`)
	}
	out["data"] = data
	return json.Marshal(out)
}

// Document is an article's content.
type Document struct {
	Blocks  []Block
	Version string
	Time    int64
	extra   map[string]json.RawMessage
}

// Parse decodes a block document. Blank input and JSON null yield an empty
// document; anything that is not a JSON object is a validation failure.
func Parse(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Document{}, apperr.Validation("content is not a block document: %v", err)
	}
	return doc, nil
}

// MustParse is Parse for fixtures; it panics on malformed input.
func MustParse(data string) Document {
	doc, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return doc
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*d = Document{}
	if raw, ok := fields["blocks"]; ok {
		if err := json.Unmarshal(raw, &d.Blocks); err != nil {
			return fmt.Errorf("blocks: %w", err)
		}
		delete(fields, "blocks")
	}
	if raw, ok := fields["version"]; ok {
		if err := json.Unmarshal(raw, &d.Version); err == nil {
			delete(fields, "version")
		}
	}
	if raw, ok := fields["time"]; ok {
		if err := json.Unmarshal(raw, &d.Time); err == nil {
			delete(fields, "time")
		}
	}
	if len(fields) > 0 {
		d.extra = fields
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.extra)+3)
	for k, v := range d.extra {
		out[k] = v
	}
	blocks := d.Blocks
	if blocks == nil {
		blocks = []Block{}
	}
	raw, err := json.Marshal(blocks)
	if err != nil {
		return nil, err
	}
	out["blocks"] = raw
	if d.Version != "" {
		out["version"], _ = json.Marshal(d.Version)
	}
	if d.Time != 0 {
		out["time"], _ = json.Marshal(d.Time)
	}
	return json.Marshal(out)
}

// Empty reports whether the document has no blocks.
func (d Document) Empty() bool {
	return len(d.Blocks) == 0
}
