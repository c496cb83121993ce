package txstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() *TableSchema {
	return &TableSchema{
		Id:   FirstNonSystemId,
		Name: "widgets",
		Columns: []ColumnDef{
			{Name: "id", Type: TypeInt64},
			{Name: "name", Type: TypeString},
			{Name: "payload", Type: TypeBytes, Nullable: true},
		},
		PrimaryKey: ColList{0},
	}
}

func newTestTable(t *testing.T, blobThreshold int) (*Table, *BadgerBlobStore) {
	t.Helper()
	bs, err := NewInMemoryBlobStore()
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	tbl := NewTable(testSchema(), Committed, bs, blobThreshold)
	return tbl, bs
}

func TestTableInsertDeleteSetSemantics(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultBlobThreshold)
	row := Row{Int64Value(1), StringValue("gizmo"), NullValue(TypeBytes)}

	_, ptr, _, err := tbl.Insert(row, false, nil)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.RowCount)

	_, _, _, err = tbl.Insert(row.Clone(), false, nil)
	require.Error(t, err, "a byte-identical row must be rejected under set semantics")

	require.NoError(t, tbl.Delete(ptr))
	require.Equal(t, 0, tbl.RowCount)

	_, _, _, err = tbl.Insert(row.Clone(), false, nil)
	require.NoError(t, err, "reinserting after delete is fine")
}

func TestTableBlobThresholdRoundTrip(t *testing.T) {
	tbl, _ := newTestTable(t, 8) // tiny threshold forces the blob path
	big := Row{Int64Value(1), StringValue("gizmo"), BytesValue([]byte(strings.Repeat("x", 500)))}

	_, ptr, _, err := tbl.Insert(big, false, nil)
	require.NoError(t, err)
	require.Greater(t, tbl.BlobStoreBytes, int64(0))

	got, err := tbl.RowAt(ptr)
	require.NoError(t, err)
	require.True(t, got.Equal(big))

	require.NoError(t, tbl.Delete(ptr))
	require.Equal(t, int64(0), tbl.BlobStoreBytes)
}

func TestTableUniqueIndexRejectsDuplicateKey(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultBlobThreshold)
	idx := NewTableIndex(1, ColList{0}, true)
	tbl.AddIndex(idx)
	require.Nil(t, tbl.PointerMap, "installing a unique index drops the pointer map")

	_, _, _, err := tbl.Insert(Row{Int64Value(1), StringValue("a"), NullValue(TypeBytes)}, false, nil)
	require.NoError(t, err)

	_, _, _, err = tbl.Insert(Row{Int64Value(1), StringValue("b"), NullValue(TypeBytes)}, false, nil)
	require.Error(t, err)
	var ie *InsertError
	require.ErrorAs(t, err, &ie)

	require.Equal(t, 1, tbl.RowCount, "the roll-forward cleanup must leave row_count untouched by the rejected insert")
}

func TestTableDeleteIndexRebuildsPointerMap(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultBlobThreshold)
	idx := NewTableIndex(1, ColList{0}, true)
	tbl.AddIndex(idx)
	_, _, _, err := tbl.Insert(Row{Int64Value(1), StringValue("a"), NullValue(TypeBytes)}, false, nil)
	require.NoError(t, err)

	tbl.DeleteIndex(1)
	require.NotNil(t, tbl.PointerMap)
	require.Equal(t, 1, tbl.PointerMap.Len())
}
