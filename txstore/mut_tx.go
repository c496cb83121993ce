package txstore

// MutTx is the single mutable transaction a Database can have open at
// once (spec.md §4.9): it stages row-level changes in a TxState overlay
// and applies schema changes to the committed state immediately,
// recording each in an undo log so Rollback can reverse them.
type MutTx struct {
	db    *Database
	state *TxState
	done  bool

	seqSaved map[SequenceId]Sequence
}

func (tx *MutTx) touchSequence(id SequenceId) {
	if _, ok := tx.seqSaved[id]; ok {
		return
	}
	if snap, ok := tx.db.seqs.Snapshot(id); ok {
		tx.seqSaved[id] = snap
	}
}

// --- schema (DDL) ----------------------------------------------------

// CreateTable installs schema as a brand-new committed table. schema.Id
// must already be assigned (via Database.AllocObjectId).
func (tx *MutTx) CreateTable(schema *TableSchema) (*Table, error) {
	tx.db.stateMu.Lock()
	defer tx.db.stateMu.Unlock()
	if tx.db.committed.GetTableByName(schema.Name) != nil {
		return nil, &TableError{Kind: TableSystem, Name: schema.Name, Detail: "already exists"}
	}
	t := tx.db.committed.CreateTable(schema)
	tx.state.log(PendingSchemaChange{Kind: TableAdded, TableId: schema.Id})
	return t, nil
}

// DropTable removes a table (and all its rows, indices and pointer
// map) from the committed state.
func (tx *MutTx) DropTable(id TableId) error {
	tx.db.stateMu.Lock()
	defer tx.db.stateMu.Unlock()
	t := tx.db.committed.GetTable(id)
	if t == nil {
		return ErrTableIdNotFound(id)
	}
	tx.db.committed.DropTable(id)
	tx.state.log(PendingSchemaChange{Kind: TableRemoved, TableId: id, OldTable: t})
	return nil
}

// AlterTableAccess flips a table between public and private.
func (tx *MutTx) AlterTableAccess(id TableId, access TableAccess) error {
	tx.db.stateMu.Lock()
	defer tx.db.stateMu.Unlock()
	t := tx.db.committed.GetTable(id)
	if t == nil {
		return ErrTableIdNotFound(id)
	}
	old := t.Schema.Access
	t.Schema.Access = access
	tx.state.log(PendingSchemaChange{Kind: TableAlterAccess, TableId: id, OldAccess: old})
	return nil
}

// CreateIndex builds idx from the table's current committed rows and
// installs it. Rows inserted after it in the same transaction are
// indexed; rows this transaction staged for the table before it are
// not added to the new index.
func (tx *MutTx) CreateIndex(tableId TableId, def IndexDef) error {
	tx.db.stateMu.Lock()
	defer tx.db.stateMu.Unlock()
	t := tx.db.committed.GetTable(tableId)
	if t == nil {
		return ErrTableIdNotFound(tableId)
	}
	idx := NewTableIndex(def.Id, def.Columns, def.Unique)
	idx.Algo = def.Algo
	if err := idx.BuildFromRows(t.ForEach); err != nil {
		return ErrUniqueConstraintViolation(def.Name, t.Schema.Name, colNames(t.Schema, def.Columns), Value{})
	}
	t.AddIndex(idx)
	tx.state.log(PendingSchemaChange{Kind: IndexAdded, IndexDef: def})
	return nil
}

// DropIndex removes an index, rebuilding the pointer map if it was the
// table's last unique index.
func (tx *MutTx) DropIndex(tableId TableId, indexId IndexId) error {
	tx.db.stateMu.Lock()
	defer tx.db.stateMu.Unlock()
	t := tx.db.committed.GetTable(tableId)
	if t == nil {
		return ErrTableIdNotFound(tableId)
	}
	idx, ok := t.Indices[indexId]
	if !ok {
		return ErrIndexNotFound(indexId)
	}
	def := IndexDef{Id: idx.Id, TableId: tableId, Columns: idx.Columns, Unique: idx.Unique, Algo: idx.Algo}
	t.DeleteIndex(idx.Id)
	tx.state.log(PendingSchemaChange{Kind: IndexRemoved, IndexDef: def})
	return nil
}

// CreateSequence registers seq and wires it to its owning column's
// auto-increment slot.
func (tx *MutTx) CreateSequence(def SequenceDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	tx.db.stateMu.Lock()
	defer tx.db.stateMu.Unlock()
	t := tx.db.committed.GetTable(def.TableId)
	if t == nil {
		return ErrTableIdNotFound(def.TableId)
	}
	tx.db.seqs.Add(def)
	t.AutoInc[def.Col] = def.Id
	tx.state.log(PendingSchemaChange{Kind: SequenceAdded, SequenceDef: def})
	return nil
}

// DropSequence removes a sequence and its column wiring.
func (tx *MutTx) DropSequence(def SequenceDef) error {
	tx.db.stateMu.Lock()
	defer tx.db.stateMu.Unlock()
	t := tx.db.committed.GetTable(def.TableId)
	if t == nil {
		return ErrTableIdNotFound(def.TableId)
	}
	tx.db.seqs.Remove(def.Id)
	delete(t.AutoInc, def.Col)
	tx.state.log(PendingSchemaChange{Kind: SequenceRemoved, SequenceDef: def})
	return nil
}

// CreateConstraint materializes a unique constraint as a unique index.
func (tx *MutTx) CreateConstraint(def ConstraintDef) error {
	if err := tx.CreateIndex(def.TableId, IndexDef{
		Id: def.IndexId, Name: def.Name, TableId: def.TableId, Columns: def.Columns, Unique: true, Algo: IndexAlgoBTree,
	}); err != nil {
		return err
	}
	tx.db.stateMu.Lock()
	tx.state.log(PendingSchemaChange{Kind: ConstraintAdded, ConstraintDef: def})
	tx.db.stateMu.Unlock()
	return nil
}

// DropConstraint removes a constraint's backing index.
func (tx *MutTx) DropConstraint(def ConstraintDef) error {
	if err := tx.DropIndex(def.TableId, def.IndexId); err != nil {
		return err
	}
	tx.db.stateMu.Lock()
	tx.state.log(PendingSchemaChange{Kind: ConstraintRemoved, ConstraintDef: def})
	tx.db.stateMu.Unlock()
	return nil
}

func colNames(schema *TableSchema, cols ColList) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if int(c) < len(schema.Columns) {
			out[i] = schema.Columns[c].Name
		}
	}
	return out
}

// --- row-level (DML) --------------------------------------------------

// Insert stages row into the transaction's insert overlay for tableId,
// generating sequence values for zero-placeholder auto-increment
// columns and rejecting a duplicate against either the committed table
// (excluding rows this tx has deleted) or the overlay itself.
func (tx *MutTx) Insert(tableId TableId, row Row) (RowHash, RowPointer, Row, error) {
	committed := tx.db.committed.GetTable(tableId)
	if committed == nil {
		return 0, RowPointer{}, nil, ErrTableIdNotFound(tableId)
	}
	shadow := tx.state.insertShadow(tableId)

	row = row.Clone()
	for col, seqId := range committed.AutoInc {
		v := row[col]
		if v.Type != TypeInt64 || v.Null || v.I64 != 0 {
			continue
		}
		tx.touchSequence(seqId)
		next, err := tx.db.seqs.Next(seqId)
		if err != nil {
			return 0, RowPointer{}, nil, err
		}
		row[col] = Int64Value(next)
	}

	hash := HashRow(row)

	if committed.PointerMap != nil {
		for _, ptr := range committed.PointerMap.Lookup(hash) {
			existing, err := committed.RowAt(ptr)
			if err != nil || !existing.Equal(row) {
				continue
			}
			if tx.state.IsDeleted(tableId, ptr) {
				// Deleting and reinserting a byte-identical row within
				// the same transaction nets out to nothing: undo the
				// delete instead of staging a redundant insert.
				tx.state.UnmarkDeleted(tableId, ptr)
				return hash, ptr, row, nil
			}
			return 0, ptr, nil, ErrDuplicate(ptr)
		}
		for _, ptr := range shadow.PointerMap.Lookup(hash) {
			if existing, err := shadow.RowAt(ptr); err == nil && existing.Equal(row) {
				return 0, ptr, nil, ErrDuplicate(ptr)
			}
		}
		ptr, err := shadow.physicalInsert(row)
		if err != nil {
			return 0, RowPointer{}, nil, err
		}
		shadow.PointerMap.Insert(hash, ptr)
		shadow.RowCount++
		return hash, ptr, row, nil
	}

	for id, idx := range committed.Indices {
		if !idx.Unique {
			continue
		}
		key := row.Key(idx.Columns)
		for _, ptr := range idx.SeekPoint(key) {
			if !tx.state.IsDeleted(tableId, ptr) {
				return 0, RowPointer{}, nil, wrapIndexError(&IndexError{Kind: IndexUniqueConstraintViolation, IndexId: id})
			}
			if existing, err := committed.RowAt(ptr); err == nil && existing.Equal(row) {
				tx.state.UnmarkDeleted(tableId, ptr)
				return hash, ptr, row, nil
			}
		}
		if sidx, ok := shadow.Indices[id]; ok && len(sidx.SeekPoint(key)) > 0 {
			return 0, RowPointer{}, nil, wrapIndexError(&IndexError{Kind: IndexUniqueConstraintViolation, IndexId: id})
		}
	}

	ptr, err := shadow.physicalInsert(row)
	if err != nil {
		return 0, RowPointer{}, nil, err
	}
	if _, err := shadow.confirm(row, ptr); err != nil {
		return 0, RowPointer{}, nil, err
	}
	return hash, ptr, row, nil
}

// Delete marks a committed row deleted (overlay-only, reversible by
// Rollback) or, if ptr addresses a row this same transaction inserted,
// removes it from the overlay outright.
func (tx *MutTx) Delete(tableId TableId, ptr RowPointer) error {
	if ptr.IsCommitted() {
		tx.state.MarkDeleted(tableId, ptr)
		return nil
	}
	shadow, ok := tx.state.InsertTables[tableId]
	if !ok {
		return ErrTableIdNotFound(tableId)
	}
	return shadow.Delete(ptr)
}

// DeleteEqualRow finds and deletes a row byte-identical to needle,
// searching the overlay before the committed table, and reports
// whether anything was found.
func (tx *MutTx) DeleteEqualRow(tableId TableId, needle Row) (bool, error) {
	if shadow, ok := tx.state.InsertTables[tableId]; ok {
		if ptr, ok := shadow.FindSameRow(needle); ok {
			return true, shadow.Delete(ptr)
		}
	}
	committed := tx.db.committed.GetTable(tableId)
	if committed == nil {
		return false, ErrTableIdNotFound(tableId)
	}
	if ptr, ok := tx.findSameLiveCommittedRow(tableId, committed, needle); ok {
		tx.state.MarkDeleted(tableId, ptr)
		return true, nil
	}
	return false, nil
}

func (tx *MutTx) findSameLiveCommittedRow(tableId TableId, committed *Table, needle Row) (RowPointer, bool) {
	if committed.PointerMap != nil {
		for _, ptr := range committed.PointerMap.Lookup(HashRow(needle)) {
			if tx.state.IsDeleted(tableId, ptr) {
				continue
			}
			if row, err := committed.RowAt(ptr); err == nil && row.Equal(needle) {
				return ptr, true
			}
		}
		return RowPointer{}, false
	}
	for _, idx := range committed.Indices {
		if !idx.Unique {
			continue
		}
		for _, ptr := range idx.SeekPoint(needle.Key(idx.Columns)) {
			if tx.state.IsDeleted(tableId, ptr) {
				continue
			}
			if row, err := committed.RowAt(ptr); err == nil && row.Equal(needle) {
				return ptr, true
			}
		}
	}
	return RowPointer{}, false
}

// Update looks up the row currently filed under newRow's projection
// onto a unique index, then replaces it with newRow — eliding the
// work entirely when the existing row is already byte-identical, and
// resurrecting a row this same transaction deleted when the new value
// matches it exactly (spec.md §4.6 update specializations).
func (tx *MutTx) Update(tableId TableId, indexId IndexId, newRow Row) (RowHash, RowPointer, Row, error) {
	committed := tx.db.committed.GetTable(tableId)
	if committed == nil {
		return 0, RowPointer{}, nil, ErrTableIdNotFound(tableId)
	}
	idx, ok := committed.Indices[indexId]
	if !ok {
		return 0, RowPointer{}, nil, ErrIndexNotFound(indexId)
	}
	if !idx.Unique {
		return 0, RowPointer{}, nil, &IndexError{Kind: IndexNotUnique, IndexId: indexId}
	}
	key := newRow.Key(idx.Columns)

	if shadow, ok := tx.state.InsertTables[tableId]; ok {
		if sidx, ok := shadow.Indices[indexId]; ok {
			for _, ptr := range sidx.SeekPoint(key) {
				existing, err := shadow.RowAt(ptr)
				if err != nil {
					continue
				}
				if existing.Equal(newRow) {
					return HashRow(newRow), ptr, newRow, nil
				}
				if err := shadow.Delete(ptr); err != nil {
					return 0, RowPointer{}, nil, err
				}
				return tx.Insert(tableId, newRow)
			}
		}
	}

	for _, ptr := range idx.SeekPoint(key) {
		if tx.state.IsDeleted(tableId, ptr) {
			existing, err := committed.RowAt(ptr)
			if err == nil && existing.Equal(newRow) {
				tx.state.UnmarkDeleted(tableId, ptr)
				return HashRow(newRow), ptr, newRow, nil
			}
			continue
		}
		existing, err := committed.RowAt(ptr)
		if err != nil {
			continue
		}
		if existing.Equal(newRow) {
			return HashRow(newRow), ptr, newRow, nil
		}
		tx.state.MarkDeleted(tableId, ptr)
		return tx.Insert(tableId, newRow)
	}

	return tx.Insert(tableId, newRow)
}

// ForEach visits every logically-live row of a table as of this
// transaction: committed rows minus those this tx deleted, plus every
// row this tx inserted.
func (tx *MutTx) ForEach(tableId TableId, fn func(Row, RowPointer) bool) error {
	committed := tx.db.committed.GetTable(tableId)
	if committed == nil {
		return ErrTableIdNotFound(tableId)
	}
	stop := false
	committed.ForEach(func(row Row, ptr RowPointer) bool {
		if tx.state.IsDeleted(tableId, ptr) {
			return true
		}
		if !fn(row, ptr) {
			stop = true
			return false
		}
		return true
	})
	if stop {
		return nil
	}
	if shadow, ok := tx.state.InsertTables[tableId]; ok {
		shadow.ForEach(fn)
	}
	return nil
}
