package txstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newBootstrappedDatabase(t *testing.T) *Database {
	t.Helper()
	bs, err := NewInMemoryBlobStore()
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	db := NewDatabase(uuid.New(), bs, DefaultBlobThreshold, nil)
	require.NoError(t, Bootstrap(db))
	return db
}

func createWidgets(t *testing.T, db *Database) TableId {
	t.Helper()
	tx := db.BeginMutTx()
	schema := testSchema()
	schema.Id = TableId(db.AllocObjectId())
	_, err := tx.CreateTable(schema)
	require.NoError(t, err)
	_, _, readTx, err := tx.Commit()
	require.NoError(t, err)
	readTx.Release()
	return schema.Id
}

func TestBootstrapInsertCommit(t *testing.T) {
	db := newBootstrappedDatabase(t)
	tableId := createWidgets(t, db)

	tx := db.BeginMutTx()
	_, ptr, _, err := tx.Insert(tableId, Row{Int64Value(1), StringValue("gizmo"), NullValue(TypeBytes)})
	require.NoError(t, err)
	txId, data, readTx, err := tx.Commit()
	require.NoError(t, err)
	require.NotZero(t, txId)
	require.Len(t, data.Tables, 1)
	require.Len(t, data.Tables[0].Inserts, 1)
	defer readTx.Release()

	tbl, err := readTx.GetTable(tableId)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.RowCount)
	row, err := tbl.RowAt(ptr)
	require.NoError(t, err)
	require.Equal(t, "gizmo", row[1].Str)
}

func TestUniqueIndexViolationAcrossCommittedAndOverlay(t *testing.T) {
	db := newBootstrappedDatabase(t)
	tableId := createWidgets(t, db)

	tx := db.BeginMutTx()
	require.NoError(t, tx.CreateIndex(tableId, IndexDef{Id: IndexId(db.AllocObjectId()), Name: "widgets_id", TableId: tableId, Columns: ColList{0}, Unique: true, Algo: IndexAlgoBTree}))
	_, _, _, err := tx.Insert(tableId, Row{Int64Value(1), StringValue("a"), NullValue(TypeBytes)})
	require.NoError(t, err)
	_, _, readTx, err := tx.Commit()
	require.NoError(t, err)
	readTx.Release()

	tx2 := db.BeginMutTx()
	_, _, _, err = tx2.Insert(tableId, Row{Int64Value(1), StringValue("b"), NullValue(TypeBytes)})
	require.Error(t, err)
	var ie *InsertError
	require.ErrorAs(t, err, &ie)
	tx2.Rollback()
}

func TestDeleteReinsertIdenticalRowIsNoOpAtCommit(t *testing.T) {
	db := newBootstrappedDatabase(t)
	tableId := createWidgets(t, db)

	row := Row{Int64Value(1), StringValue("gizmo"), NullValue(TypeBytes)}
	tx := db.BeginMutTx()
	_, _, _, err := tx.Insert(tableId, row)
	require.NoError(t, err)
	_, _, readTx1, err := tx.Commit()
	require.NoError(t, err)
	committedTbl, err := readTx1.GetTable(tableId)
	require.NoError(t, err)
	ptr, ok := committedTbl.FindSameRow(row)
	require.True(t, ok, "the committed table must hold the just-committed row under its final pointer")
	readTx1.Release()

	tx2 := db.BeginMutTx()
	require.NoError(t, tx2.Delete(tableId, ptr))
	_, _, _, err = tx2.Insert(tableId, row.Clone())
	require.NoError(t, err)
	txId, data, readTx2, err := tx2.Commit()
	require.NoError(t, err)
	defer readTx2.Release()

	require.Zero(t, txId, "an empty tx (net-zero row effect, no schema change) does not consume a tx_offset")
	for _, td := range data.Tables {
		require.Empty(t, td.Inserts, "delete+reinsert of an unchanged row must not appear as an insert")
		require.Empty(t, td.Deletes, "delete+reinsert of an unchanged row must not appear as a delete")
	}

	tbl, err := readTx2.GetTable(tableId)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.RowCount)
}

func TestUpdateViaUniqueIndex(t *testing.T) {
	db := newBootstrappedDatabase(t)
	tableId := createWidgets(t, db)

	tx := db.BeginMutTx()
	indexId := IndexId(db.AllocObjectId())
	require.NoError(t, tx.CreateIndex(tableId, IndexDef{Id: indexId, Name: "widgets_id", TableId: tableId, Columns: ColList{0}, Unique: true, Algo: IndexAlgoBTree}))
	_, _, _, err := tx.Insert(tableId, Row{Int64Value(1), StringValue("a"), NullValue(TypeBytes)})
	require.NoError(t, err)
	_, _, readTx0, err := tx.Commit()
	require.NoError(t, err)
	readTx0.Release()

	tx2 := db.BeginMutTx()
	newRowVal := Row{Int64Value(1), StringValue("b"), NullValue(TypeBytes)}
	_, _, newRow, err := tx2.Update(tableId, indexId, newRowVal)
	require.NoError(t, err)
	require.Equal(t, "b", newRow[1].Str)
	_, _, readTx2, err := tx2.Commit()
	require.NoError(t, err)
	defer readTx2.Release()

	tbl, err := readTx2.GetTable(tableId)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.RowCount)
	ptr, ok := tbl.FindSameRow(newRowVal)
	require.True(t, ok)
	got, err := tbl.RowAt(ptr)
	require.NoError(t, err)
	require.Equal(t, "b", got[1].Str)
}

func TestRollbackRestoresIndicesAndSequences(t *testing.T) {
	db := newBootstrappedDatabase(t)
	tableId := createWidgets(t, db)

	seqId := SequenceId(db.AllocObjectId())
	tx := db.BeginMutTx()
	require.NoError(t, tx.CreateSequence(SequenceDef{Id: seqId, Name: "widgets_id_seq", TableId: tableId, Col: 0, Increment: 1, Start: 1, Min: 1, Max: 1000}))
	_, _, readTx0, err := tx.Commit()
	require.NoError(t, err)
	readTx0.Release()

	before, ok := db.seqs.AllocatedValue(seqId)
	require.True(t, ok)

	tx2 := db.BeginMutTx()
	indexId := IndexId(db.AllocObjectId())
	require.NoError(t, tx2.CreateIndex(tableId, IndexDef{Id: indexId, Name: "widgets_id", TableId: tableId, Columns: ColList{0}, Unique: true, Algo: IndexAlgoBTree}))
	_, _, _, err = tx2.Insert(tableId, Row{Int64Value(0), StringValue("a"), NullValue(TypeBytes)}) // 0 triggers generation
	require.NoError(t, err)
	mid, ok := db.seqs.AllocatedValue(seqId)
	require.True(t, ok)
	require.NotEqual(t, before, mid, "the in-progress tx must have advanced the sequence")
	tx2.Rollback()

	after, ok := db.seqs.AllocatedValue(seqId)
	require.True(t, ok)
	require.Equal(t, before, after, "rollback restores the sequence's pre-tx counters")

	readTx := db.BeginTx()
	defer readTx.Release()
	tbl, err := readTx.GetTable(tableId)
	require.NoError(t, err)
	_, hasIndex := tbl.Indices[indexId]
	require.False(t, hasIndex, "rollback must undo the index creation too")
	require.Equal(t, 0, tbl.RowCount, "rollback discards every row this tx staged")
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := newBootstrappedDatabase(t)
	tableId := createWidgets(t, db)

	tx := db.BeginMutTx()
	_, _, _, err := tx.Insert(tableId, Row{Int64Value(1), StringValue("gizmo"), NullValue(TypeBytes)})
	require.NoError(t, err)
	_, _, readTx, err := tx.Commit()
	require.NoError(t, err)
	readTx.Release()

	snap := CaptureSnapshot(db)
	require.Equal(t, db.Identity, snap.DatabaseIdentity)

	bs2, err := NewInMemoryBlobStore()
	require.NoError(t, err)
	defer bs2.Close()
	restored := RestoreSnapshot(snap, bs2, DefaultBlobThreshold, nil)

	origTbl := db.committed.GetTable(tableId)
	restoredTbl := restored.committed.GetTable(tableId)
	require.Equal(t, origTbl.RowCount, restoredTbl.RowCount)
	require.Equal(t, len(origTbl.Pages), len(restoredTbl.Pages))
	for i := range origTbl.Pages {
		require.Equal(t, origTbl.Pages[i].ContentHash(), restoredTbl.Pages[i].ContentHash())
	}
}
