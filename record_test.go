package graphview

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtendRecordNoExtensionCopies(t *testing.T) {
	old := Record{"a", "b", "c"}
	got, err := ExtendRecord(old, 10, 1, NoExtension)
	require.NoError(t, err)
	if diff := cmp.Diff(old, got); diff != "" {
		t.Fatalf("copy differs (-want +got):\n%s", diff)
	}

	got[0] = "changed"
	assert.Equal(t, "a", old[0], "copy must not alias the input")
}

func TestExtendRecordPreservesFields(t *testing.T) {
	tests := []struct {
		name       string
		old        Record
		width      int
		offset     int
		metaLength int
		want       Record
	}{
		{
			name: "insert in the middle",
			old:  Record{"n1", "adj", "sink", "name"}, width: 7, offset: 3, metaLength: 3,
			want: Record{"n1", "adj", "sink", "", "", "", "name"},
		},
		{
			name: "append at the end",
			old:  Record{"n1", "adj"}, width: 3, offset: 2, metaLength: 1,
			want: Record{"n1", "adj", ""},
		},
		{
			name: "offset zero shifts everything",
			old:  Record{"x", "y"}, width: 3, offset: 0, metaLength: 1,
			want: Record{"", "x", "y"},
		},
		{
			name: "wider target keeps trailing blanks",
			old:  Record{"x"}, width: 4, offset: 1, metaLength: 1,
			want: Record{"x", "", "", ""},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtendRecord(tc.old, tc.width, tc.offset, tc.metaLength)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ExtendRecord mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtendRecordBounds(t *testing.T) {
	old := Record{"a", "b"}

	_, err := ExtendRecord(old, 5, 3, 1)
	assert.True(t, errors.Is(err, ErrSchemaMismatch), "offset past the record: %v", err)

	_, err = ExtendRecord(old, 5, -1, 1)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = ExtendRecord(old, 2, 1, 3)
	var sm *SchemaMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, 2, sm.Want)
	assert.Equal(t, 5, sm.Got)
}

func TestRecordAccessors(t *testing.T) {
	r := Record{"a", "b", "c"}
	assert.Equal(t, "c", r.Last())
	assert.Equal(t, "", Record{}.Last())
	assert.Equal(t, "| a | b | c |", r.String())

	_, err := r.field(3)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.ErrorIs(t, r.set(-1, "x"), ErrSchemaMismatch)

	h := NewHeader("x", "y")
	assert.ErrorIs(t, r.CheckWidth(h), ErrSchemaMismatch)
	assert.NoError(t, r[:2].CheckWidth(h))

	assert.Nil(t, Record(nil).Clone())
}
