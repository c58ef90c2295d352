package graphview

import (
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Reserved adjacency-token fields. They are never copied into records as
// ordinary edge properties.
const (
	SinkField   = "_sink" // id of the node the edge points to
	EdgeIDField = "_ID"   // internal edge id
)

// EmptyAdjacency is the canonical serialized form of an adjacency list with
// no edges. Consumers must also accept the empty string, which older
// producers emit for the same thing; see IsEmptyAdjacency.
const EmptyAdjacency = "[]"

// IsEmptyAdjacency reports whether s encodes an adjacency list with no edges.
// Both "" and "[]" (with any inner whitespace) qualify.
func IsEmptyAdjacency(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return true
	}
	return len(t) >= 2 && t[0] == '[' && t[len(t)-1] == ']' && strings.TrimSpace(t[1:len(t)-1]) == ""
}

func isReservedField(name string) bool {
	return name == SinkField || name == EdgeIDField
}

// EdgeToken is the serialized form of one edge: a compact JSON object with
// the reserved sink and id fields plus arbitrary named properties.
type EdgeToken struct {
	raw  string
	sink string
	id   string
}

// NewEdgeToken parses a single JSON object into a token.
func NewEdgeToken(raw string) (EdgeToken, error) {
	if !gjson.Valid(raw) {
		return EdgeToken{}, malformed("adjacency token", raw, nil)
	}
	return tokenFromResult(gjson.Parse(raw))
}

func tokenFromResult(v gjson.Result) (EdgeToken, error) {
	if !v.IsObject() {
		return EdgeToken{}, malformed("adjacency token", v.Raw, errNotObject)
	}
	sink := v.Get(SinkField)
	if !sink.Exists() {
		return EdgeToken{}, malformed("adjacency token", v.Raw, errMissingSink)
	}
	return EdgeToken{
		raw:  string(pretty.Ugly([]byte(v.Raw))),
		sink: sink.String(),
		id:   v.Get(EdgeIDField).String(),
	}, nil
}

// Sink returns the id of the node the edge points to.
func (t EdgeToken) Sink() string { return t.sink }

// ID returns the internal edge id, or "" when the token has none.
func (t EdgeToken) ID() string { return t.id }

// Raw returns the compact JSON form of the token.
func (t EdgeToken) Raw() string { return t.raw }

// Properties calls fn for every non-reserved field of the token, in document
// order, until fn returns false.
func (t EdgeToken) Properties(fn func(name string, value gjson.Result) bool) {
	gjson.Parse(t.raw).ForEach(func(key, value gjson.Result) bool {
		if isReservedField(key.String()) {
			return true
		}
		return fn(key.String(), value)
	})
}

// identity is the key used for set semantics: the token's content with keys
// sorted and insignificant whitespace removed.
func (t EdgeToken) identity() string {
	sorted := pretty.PrettyOptions([]byte(t.raw), &pretty.Options{SortKeys: true})
	return string(pretty.Ugly(sorted))
}

// AdjacencyList is the decoded form of one node's edges for one edge name.
type AdjacencyList []EdgeToken

// ParseAdjacency decodes an encoded adjacency list. Empty inputs (see
// IsEmptyAdjacency) yield an empty list.
func ParseAdjacency(s string) (AdjacencyList, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil, nil
	}
	if !gjson.Valid(t) {
		return nil, malformed("adjacency list", s, nil)
	}
	arr := gjson.Parse(t)
	if !arr.IsArray() {
		return nil, malformed("adjacency list", s, errNotArray)
	}

	var (
		list AdjacencyList
		err  error
	)
	arr.ForEach(func(_, v gjson.Result) bool {
		var tok EdgeToken
		if tok, err = tokenFromResult(v); err != nil {
			return false
		}
		list = append(list, tok)
		return true
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// String encodes the list. An empty list encodes as EmptyAdjacency.
func (l AdjacencyList) String() string {
	if len(l) == 0 {
		return EmptyAdjacency
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, t := range l {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(t.raw)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Sinks returns the sink ids of the list in order.
func (l AdjacencyList) Sinks() []string {
	out := make([]string, len(l))
	for i, t := range l {
		out[i] = t.sink
	}
	return out
}

// tokenSet is an insertion-ordered set of edge tokens keyed by content.
type tokenSet struct {
	m *linkedhashmap.Map // identity → EdgeToken
}

func newTokenSet() *tokenSet {
	return &tokenSet{m: linkedhashmap.New()}
}

// add inserts t unless an equal token is already present; the first copy wins.
func (s *tokenSet) add(t EdgeToken) bool {
	key := t.identity()
	if _, found := s.m.Get(key); found {
		return false
	}
	s.m.Put(key, t)
	return true
}

// addValue merges an item field into the set. Arrays contribute each
// element, objects contribute themselves, strings are treated as encoded
// adjacency lists, and missing or null values contribute nothing.
func (s *tokenSet) addValue(v gjson.Result) error {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return nil
	case v.IsArray():
		var err error
		v.ForEach(func(_, elem gjson.Result) bool {
			var tok EdgeToken
			if tok, err = tokenFromResult(elem); err != nil {
				return false
			}
			s.add(tok)
			return true
		})
		return err
	case v.IsObject():
		tok, err := tokenFromResult(v)
		if err != nil {
			return err
		}
		s.add(tok)
		return nil
	case v.Type == gjson.String:
		list, err := ParseAdjacency(v.String())
		if err != nil {
			return err
		}
		for _, tok := range list {
			s.add(tok)
		}
		return nil
	default:
		return malformed("adjacency value", v.Raw, errNotArray)
	}
}

func (s *tokenSet) list() AdjacencyList {
	vals := s.m.Values()
	out := make(AdjacencyList, len(vals))
	for i, v := range vals {
		out[i] = v.(EdgeToken)
	}
	return out
}
