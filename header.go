package graphview

import "strings"

// Header is the ordered column layout shared by every record of one query
// plan. It is built once by the upstream compiler and never mutated, so a
// single *Header can be read from any number of goroutines.
//
// Records are addressed by position only; name lookups go through the
// header once, when an operator is set up.
type Header struct {
	columns []string
	index   map[string]int // first position of each column name
}

// NewHeader builds a header from the given column names.
func NewHeader(columns ...string) *Header {
	h := &Header{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range h.columns {
		if _, dup := h.index[c]; !dup {
			h.index[c] = i
		}
	}
	return h
}

// Len returns the number of columns.
func (h *Header) Len() int { return len(h.columns) }

// Column returns the name of the column at pos.
func (h *Header) Column(pos int) string { return h.columns[pos] }

// Columns returns a copy of the column names.
func (h *Header) Columns() []string { return append([]string(nil), h.columns...) }

// IndexOf returns the first position of name, or -1.
func (h *Header) IndexOf(name string) int {
	if i, ok := h.index[name]; ok {
		return i
	}
	return -1
}

// Contains reports whether name is a column of the header.
func (h *Header) Contains(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Position is IndexOf that fails with a SchemaMismatchError when name is absent.
func (h *Header) Position(name string) (int, error) {
	if i, ok := h.index[name]; ok {
		return i, nil
	}
	return -1, &SchemaMismatchError{Column: name, Position: -1, Reason: "is not in the header"}
}

// String returns the header as a pipe-separated line, handy in logs.
func (h *Header) String() string {
	return "| " + strings.Join(h.columns, " | ") + " |"
}

// AdjacencyColumnPrefix is the conventional prefix of edge columns in a meta
// segment. It is stripped to obtain the edge name.
const AdjacencyColumnPrefix = "adj_"

// EdgeName returns the edge name carried by an edge column.
func EdgeName(column string) string {
	return strings.TrimPrefix(column, AdjacencyColumnPrefix)
}

// FieldAlias returns the storage-side field name of a header column. The
// document store forbids '.' and ' ' in field identifiers, so both are
// replaced by '_'.
func FieldAlias(column string) string {
	return strings.NewReplacer(".", "_", " ", "_").Replace(column)
}

// NodeLayout locates one pattern node's meta segment in the header: the
// node-id column at Offset, followed by MetaLength-1 columns holding
// (edge, sink) pairs for each materialized edge.
type NodeLayout struct {
	Offset     int `yaml:"offset" json:"offset"`
	MetaLength int `yaml:"metaLength" json:"metaLength"`
}

// EdgeColumn describes one materialized edge of a node layout.
type EdgeColumn struct {
	Name   string // edge name (column name without AdjacencyColumnPrefix)
	Column int    // position of the encoded adjacency list
	Sink   int    // position of the sink-id column, always Column+1
}

// Validate checks the layout against a header.
func (l NodeLayout) Validate(h *Header) error {
	if l.Offset < 0 || l.Offset >= h.Len() {
		return positionError(l.Offset, "is not a valid node offset")
	}
	if l.MetaLength < 1 || l.MetaLength%2 == 0 {
		return &SchemaMismatchError{Position: l.Offset, Reason: "has a meta length that is not 1+2k"}
	}
	if l.Offset+l.MetaLength > h.Len() {
		return widthError(l.Offset+l.MetaLength, h.Len(), "meta segment runs past the header")
	}
	return nil
}

// ProjectionStart is the first column after the node's meta segment.
func (l NodeLayout) ProjectionStart() int { return l.Offset + l.MetaLength }

// EdgeColumns lists the materialized edges of the layout. The layout must be
// valid for h.
func (l NodeLayout) EdgeColumns(h *Header) []EdgeColumn {
	if l.MetaLength <= 1 {
		return nil
	}
	cols := make([]EdgeColumn, 0, (l.MetaLength-1)/2)
	// Step by two to skip each edge's sink column.
	for pos := l.Offset + 1; pos < l.Offset+l.MetaLength; pos += 2 {
		cols = append(cols, EdgeColumn{Name: EdgeName(h.Column(pos)), Column: pos, Sink: pos + 1})
	}
	return cols
}
