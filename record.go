package graphview

import "strings"

// Record is one positionally addressed row flowing between operators. Field
// i belongs to Header column i. A record owns its backing array; operators
// that fan out always hand each branch its own copy.
type Record []string

// Sentinel offsets for ApplyParams and ExtendRecord.
const (
	// NoDestination disables the edge.sink = destination.id join predicate.
	NoDestination = -1
	// NoExtension keeps the record width unchanged.
	NoExtension = -1
)

// NewRecord returns a blank record of the given width.
func NewRecord(width int) Record {
	return make(Record, width)
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	copy(out, r)
	return out
}

// Last returns the final field, which by convention carries the path column.
func (r Record) Last() string {
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}

// String renders the record as a pipe-separated row, for logs.
func (r Record) String() string {
	return "| " + strings.Join(r, " | ") + " |"
}

// CheckWidth verifies that the record is exactly as wide as h.
func (r Record) CheckWidth(h *Header) error {
	if len(r) != h.Len() {
		return widthError(h.Len(), len(r), "record width differs from header")
	}
	return nil
}

// field returns r[pos] or a SchemaMismatchError when pos is out of range.
func (r Record) field(pos int) (string, error) {
	if pos < 0 || pos >= len(r) {
		return "", positionError(pos, "is outside the record")
	}
	return r[pos], nil
}

// set writes r[pos] or fails with a SchemaMismatchError.
func (r Record) set(pos int, v string) error {
	if pos < 0 || pos >= len(r) {
		return positionError(pos, "is outside the record")
	}
	r[pos] = v
	return nil
}

// ExtendRecord copies old into a record of the given width while opening a
// gap of metaLength columns at offset for a newly joined node.
//
// With metaLength == NoExtension the result is a deep copy of old and width
// is ignored. Otherwise columns [0, offset) keep their positions, every later
// column moves right by metaLength, and the inserted columns are left blank
// for the caller to fill. Offset 0 copies no prefix.
func ExtendRecord(old Record, width, offset, metaLength int) (Record, error) {
	if metaLength == NoExtension {
		return old.Clone(), nil
	}
	if metaLength < 0 {
		return nil, positionError(metaLength, "is not a valid meta length")
	}
	if offset < 0 || offset > len(old) {
		return nil, positionError(offset, "is not a valid extension offset")
	}
	if len(old)+metaLength > width {
		return nil, widthError(width, len(old)+metaLength, "extended record does not fit the header")
	}

	out := NewRecord(width)
	copy(out[:offset], old[:offset])
	copy(out[offset+metaLength:], old[offset:])
	return out, nil
}
