package txstore

import "encoding/binary"

// ReplayVisitor applies a sequence of previously-committed TxData
// records straight onto a Database's committed state, skipping every
// constraint check a live transaction would perform (spec.md §4.11):
// replayed data was already validated once, when it was first
// committed. The only check retained is tx_offset continuity.
type ReplayVisitor struct {
	db           *Database
	nextExpected uint64
}

// NewReplayVisitor resumes a replay starting right after whatever
// tx_offset db's committed state already reflects.
func NewReplayVisitor(db *Database) *ReplayVisitor {
	return &ReplayVisitor{db: db, nextExpected: db.nextTxOffset + 1}
}

// Apply replays one transaction's recorded changes in order: deletes
// first, then inserts, matching the order Commit itself applies them.
func (r *ReplayVisitor) Apply(data *TxData) error {
	if data.TxOffset != r.nextExpected {
		return ErrInvalidOffset(r.nextExpected, data.TxOffset)
	}
	for _, td := range data.Tables {
		t := r.db.committed.GetTable(td.TableId)
		if t == nil {
			return ErrTableIdNotFound(td.TableId)
		}
		for _, row := range td.Deletes {
			ptr, ok := t.FindSameRow(row)
			if !ok {
				r.db.logger.Printf("[WARN] replay: tx_offset %d deletes a row from table %d no longer present, skipping", data.TxOffset, td.TableId)
				continue
			}
			_ = t.Delete(ptr)
		}
		for _, row := range td.Inserts {
			ptr, err := t.physicalInsert(row)
			if err != nil {
				return err
			}
			if t.PointerMap != nil {
				t.PointerMap.Insert(HashRow(row), ptr)
			} else {
				for _, idx := range t.Indices {
					idx.CheckAndInsert(row, ptr)
				}
			}
			t.RowCount++
		}
	}
	r.db.nextTxOffset = data.TxOffset
	r.nextExpected++
	return nil
}

// RebuildStateAfterReplay reconstructs everything replay itself does
// not maintain incrementally: any user table recorded in st_table but
// not yet materialized, every index recorded in st_index, and the
// sequence state recorded in st_sequence (spec.md §4.11). It must run
// once, after the last TxData has been applied and before the database
// accepts new transactions.
func RebuildStateAfterReplay(db *Database) error {
	stTable := db.committed.GetTable(StTableId)
	stColumn := db.committed.GetTable(StColumnId)
	if stTable == nil || stColumn == nil {
		return ErrTableIdNotFound(StTableId)
	}

	stTable.ForEach(func(row Row, _ RowPointer) bool {
		id := TableId(row[0].I64)
		if db.committed.GetTable(id) != nil {
			return true
		}
		var cols []ColumnDef
		stColumn.ForEach(func(crow Row, _ RowPointer) bool {
			if TableId(crow[0].I64) != id {
				return true
			}
			cols = append(cols, ColumnDef{Name: crow[2].Str, Type: ColumnType(crow[3].I64), Nullable: crow[4].Bool})
			return true
		})
		schema := &TableSchema{
			Id: id, Name: row[1].Str, Type: TableType(row[2].I64), Access: TableAccess(row[3].I64), Columns: cols,
		}
		db.committed.CreateTable(schema)
		db.reserveObjectIdLocked(uint32(id))
		return true
	})

	if stIndex := db.committed.GetTable(StIndexId); stIndex != nil {
		stIndex.ForEach(func(row Row, _ RowPointer) bool {
			tableId := TableId(row[2].I64)
			t := db.committed.GetTable(tableId)
			if t == nil {
				return true
			}
			idx := NewTableIndex(IndexId(row[0].I64), decodeColList(row[3].Bytes), row[4].Bool)
			idx.Algo = IndexAlgorithm(row[5].Str)
			_ = idx.BuildFromRows(t.ForEach)
			t.AddIndex(idx)
			db.reserveObjectIdLocked(uint32(idx.Id))
			return true
		})
	}

	db.seqs = NewSequenceStateWithStep(db.seqs.step)
	if stSequence := db.committed.GetTable(StSequenceId); stSequence != nil {
		stSequence.ForEach(func(row Row, _ RowPointer) bool {
			def := SequenceDef{
				Id: SequenceId(row[0].I64), Name: row[1].Str, TableId: TableId(row[2].I64), Col: ColId(row[3].I64),
				Increment: row[4].I64, Start: row[5].I64, Min: row[6].I64, Max: row[7].I64,
			}
			db.seqs.Add(def)
			if snap, ok := db.seqs.Snapshot(def.Id); ok {
				snap.Allocated = row[8].I64
				snap.Value = row[8].I64
				db.seqs.Restore(snap)
			}
			if t := db.committed.GetTable(def.TableId); t != nil {
				t.AutoInc[def.Col] = def.Id
			}
			db.reserveObjectIdLocked(uint32(def.Id))
			return true
		})
	}
	return nil
}

// encodeColList/decodeColList give ColList a stable bytes encoding for
// storage in st_index.columns, one big-endian uint32 per column.
func encodeColList(cols ColList) []byte {
	out := make([]byte, 4*len(cols))
	for i, c := range cols {
		binary.BigEndian.PutUint32(out[i*4:], uint32(c))
	}
	return out
}

func decodeColList(b []byte) ColList {
	out := make(ColList, len(b)/4)
	for i := range out {
		out[i] = ColId(binary.BigEndian.Uint32(b[i*4:]))
	}
	return out
}
