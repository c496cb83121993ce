package txstore

// TxTableData is one table's slice of TxData: every row this
// transaction inserted and every row it deleted, by value (not by
// pointer, since committed pointers are meaningless once replayed
// against a different page layout).
type TxTableData struct {
	TableId TableId
	Inserts []Row
	Deletes []Row
}

// TxData is the durable record of everything a committed transaction
// changed, the payload a commitlog writer appends (spec.md §4.9/§6).
type TxData struct {
	TxOffset uint64
	Tables   []TxTableData
}

func (d *TxData) add(tableId TableId, inserts, deletes []Row) {
	for i := range d.Tables {
		if d.Tables[i].TableId == tableId {
			d.Tables[i].Inserts = append(d.Tables[i].Inserts, inserts...)
			d.Tables[i].Deletes = append(d.Tables[i].Deletes, deletes...)
			return
		}
	}
	d.Tables = append(d.Tables, TxTableData{TableId: tableId, Inserts: inserts, Deletes: deletes})
}

// Commit merges this transaction's overlay into the committed state
// and returns the data it changed, a TxId, and a read-only Tx already
// holding the post-commit view (the "commit-downgrade" of spec.md
// §4.9). The caller must release the returned Tx exactly as it would
// one obtained from BeginTx.
func (tx *MutTx) Commit() (TxId, *TxData, *Tx, error) {
	if tx.done {
		return 0, nil, nil, nil
	}
	d := tx.db
	d.stateMu.Lock()

	for tableId, shadow := range tx.state.InsertTables {
		committed := d.committed.Tables[tableId]
		if committed == nil {
			continue
		}
		for id, sidx := range shadow.Indices {
			cidx := committed.Indices[id]
			if cidx == nil {
				continue
			}
			isDeleted := func(p RowPointer) bool { return tx.state.IsDeleted(tableId, p) }
			if !sidx.CanMerge(cidx, isDeleted) {
				for i := len(tx.state.Pending) - 1; i >= 0; i-- {
					tx.undo(tx.state.Pending[i])
				}
				d.stateMu.Unlock()
				for _, saved := range tx.seqSaved {
					d.seqs.Restore(saved)
				}
				tx.done = true
				d.writeMu.Unlock()
				return 0, nil, nil, wrapIndexError(&IndexError{Kind: IndexUniqueConstraintViolation, IndexId: id})
			}
		}
	}

	txData := &TxData{}
	touched := len(tx.state.Pending) > 0

	for tableId, deleted := range tx.state.DeleteTables {
		committed := d.committed.Tables[tableId]
		if committed == nil || len(deleted) == 0 {
			continue
		}
		var delRows []Row
		for ptr := range deleted {
			if row, err := committed.RowAt(ptr); err == nil {
				delRows = append(delRows, row)
			}
			_ = committed.Delete(ptr)
		}
		if len(delRows) > 0 {
			txData.add(tableId, nil, delRows)
			touched = true
		}
	}

	for tableId, shadow := range tx.state.InsertTables {
		if shadow.RowCount == 0 {
			continue
		}
		committed := d.committed.Tables[tableId]
		if committed == nil {
			shadow.Squashed = Committed
			d.committed.Tables[tableId] = shadow
			var insRows []Row
			shadow.ForEach(func(row Row, _ RowPointer) bool {
				insRows = append(insRows, row)
				return true
			})
			txData.add(tableId, insRows, nil)
			touched = true
			continue
		}

		var insRows []Row
		shadow.ForEach(func(row Row, _ RowPointer) bool {
			insRows = append(insRows, row)
			return true
		})

		base := uint16(len(committed.Pages))
		committed.Pages = append(committed.Pages, shadow.Pages...)
		remap := func(p RowPointer) RowPointer {
			return NewRowPointer(Committed, p.PageIndex+base, p.PageOffset)
		}

		if shadow.PointerMap != nil && committed.PointerMap != nil {
			for h, ptrs := range shadow.PointerMap.buckets {
				for _, p := range ptrs {
					committed.PointerMap.Insert(h, remap(p))
				}
			}
		}
		for id, sidx := range shadow.Indices {
			cidx, ok := committed.Indices[id]
			if !ok {
				continue
			}
			for _, e := range sidx.entries {
				cidx.insertKey(e.Key, remap(e.Ptr))
			}
		}
		committed.RowCount += shadow.RowCount
		committed.BlobStoreBytes += shadow.BlobStoreBytes

		if len(insRows) > 0 {
			txData.add(tableId, insRows, nil)
			touched = true
		}
	}

	var txId TxId
	if touched {
		d.nextTxOffset++
		txData.TxOffset = d.nextTxOffset
		txId = TxId(d.nextTxOffset)
	}
	tx.state.Pending = nil
	tx.done = true

	d.stateMu.Unlock()
	readTx := d.BeginTx()
	d.writeMu.Unlock()
	return txId, txData, readTx, nil
}

// Rollback undoes every schema change this transaction made (in
// reverse order), restores every sequence counter this transaction
// advanced, and discards the row-level overlay entirely (spec.md §4.9).
func (tx *MutTx) Rollback() {
	if tx.done {
		return
	}
	d := tx.db
	d.stateMu.Lock()
	for i := len(tx.state.Pending) - 1; i >= 0; i-- {
		tx.undo(tx.state.Pending[i])
	}
	d.stateMu.Unlock()

	for _, saved := range tx.seqSaved {
		d.seqs.Restore(saved)
	}

	tx.done = true
	d.writeMu.Unlock()
}

func (tx *MutTx) undo(c PendingSchemaChange) {
	d := tx.db
	switch c.Kind {
	case TableAdded:
		d.committed.DropTable(c.TableId)
	case TableRemoved:
		d.committed.Tables[c.TableId] = c.OldTable
	case TableAlterAccess:
		if t := d.committed.Tables[c.TableId]; t != nil {
			t.Schema.Access = c.OldAccess
		}
	case TableAlterRowType:
		if t := d.committed.Tables[c.TableId]; t != nil {
			t.Schema = c.OldSchema
			t.Layout = c.OldSchema.Layout()
		}
	case IndexAdded:
		if t := d.committed.Tables[c.IndexDef.TableId]; t != nil {
			t.DeleteIndex(c.IndexDef.Id)
		}
	case IndexRemoved:
		if t := d.committed.Tables[c.IndexDef.TableId]; t != nil {
			idx := NewTableIndex(c.IndexDef.Id, c.IndexDef.Columns, c.IndexDef.Unique)
			idx.Algo = c.IndexDef.Algo
			_ = idx.BuildFromRows(t.ForEach)
			t.AddIndex(idx)
		}
	case SequenceAdded:
		d.seqs.Remove(c.SequenceDef.Id)
		if t := d.committed.Tables[c.SequenceDef.TableId]; t != nil {
			delete(t.AutoInc, c.SequenceDef.Col)
		}
	case SequenceRemoved:
		d.seqs.Add(c.SequenceDef)
		if t := d.committed.Tables[c.SequenceDef.TableId]; t != nil {
			t.AutoInc[c.SequenceDef.Col] = c.SequenceDef.Id
		}
	case ConstraintAdded:
		if t := d.committed.Tables[c.ConstraintDef.TableId]; t != nil {
			t.DeleteIndex(c.ConstraintDef.IndexId)
		}
	case ConstraintRemoved:
		if t := d.committed.Tables[c.ConstraintDef.TableId]; t != nil {
			idx := NewTableIndex(c.ConstraintDef.IndexId, c.ConstraintDef.Columns, true)
			_ = idx.BuildFromRows(t.ForEach)
			t.AddIndex(idx)
		}
	}
}
