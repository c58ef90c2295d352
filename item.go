package graphview

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultIDPath is where document-store items carry the entity id.
const DefaultIDPath = "_nodeid.id"

// Item is one raw semi-structured document handed to the decoder. Fields are
// looked up by key at run time; no schema is assumed.
type Item struct {
	doc gjson.Result
}

// ParseItem parses a single JSON object.
func ParseItem(raw []byte) (Item, error) {
	if !gjson.ValidBytes(raw) {
		return Item{}, malformed("item", string(raw), nil)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Item{}, malformed("item", string(raw), errNotObject)
	}
	// Detach from the caller's buffer.
	return Item{doc: gjson.Parse(strings.Clone(doc.Raw))}, nil
}

// ParseItems parses either a JSON array of objects or newline-delimited JSON
// objects. Blank lines are skipped.
func ParseItems(raw []byte) ([]Item, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		if !gjson.ValidBytes(trimmed) {
			return nil, malformed("item batch", string(trimmed), nil)
		}
		var (
			items []Item
			err   error
		)
		gjson.ParseBytes(trimmed).ForEach(func(_, v gjson.Result) bool {
			var it Item
			if it, err = ParseItem([]byte(v.Raw)); err != nil {
				return false
			}
			items = append(items, it)
			return true
		})
		return items, err
	}

	var items []Item
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		it, err := ParseItem(line)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, malformed("item batch", "", err)
	}
	return items, nil
}

// Lookup returns the top-level field named key. Key characters that gjson
// treats as path syntax are escaped, so the lookup is literal.
func (it Item) Lookup(key string) (gjson.Result, bool) {
	v := it.doc.Get(gjson.Escape(key))
	return v, v.Exists()
}

// LookupPath resolves a gjson path such as "_nodeid.id".
func (it Item) LookupPath(path string) (gjson.Result, bool) {
	v := it.doc.Get(path)
	return v, v.Exists()
}

// Raw returns the item's JSON text.
func (it Item) Raw() string { return it.doc.Raw }
