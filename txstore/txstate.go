package txstore

// SchemaChangeKind enumerates every kind of pending schema mutation a
// transaction can make before commit, each reversible by Rollback
// replaying the log in reverse (spec.md §4.7/§4.9).
type SchemaChangeKind uint8

const (
	TableAdded SchemaChangeKind = iota
	TableRemoved
	TableAlterAccess
	TableAlterRowType
	IndexAdded
	IndexRemoved
	SequenceAdded
	SequenceRemoved
	ConstraintAdded
	ConstraintRemoved
)

// PendingSchemaChange is one entry of the tx-state undo log. Only the
// fields relevant to Kind are populated.
type PendingSchemaChange struct {
	Kind SchemaChangeKind

	TableId TableId
	OldAccess TableAccess
	OldTable *Table // TableRemoved: the full table, restored verbatim on rollback

	OldSchema *TableSchema // TableAlterRowType: schema before the change

	IndexDef IndexDef

	SequenceDef SequenceDef

	ConstraintDef ConstraintDef
}

// TxState is the mutable overlay a single in-progress transaction
// accumulates on top of a CommittedState: lazily-cloned insert-table
// shadows, a per-table set of committed pointers marked for deletion,
// and the ordered undo log of schema changes (spec.md §4.7).
type TxState struct {
	committed *CommittedState

	InsertTables map[TableId]*Table
	DeleteTables map[TableId]map[RowPointer]bool
	Pending      []PendingSchemaChange
}

// NewTxState opens a fresh overlay on top of committed.
func NewTxState(committed *CommittedState) *TxState {
	return &TxState{
		committed:    committed,
		InsertTables: make(map[TableId]*Table),
		DeleteTables: make(map[TableId]map[RowPointer]bool),
	}
}

// insertShadow returns (creating if necessary) the tx-state shadow
// table used to stage newly-inserted rows for id.
func (tx *TxState) insertShadow(id TableId) *Table {
	if t, ok := tx.InsertTables[id]; ok {
		return t
	}
	committed := tx.committed.Tables[id]
	shadow := committed.CloneEmptyShadow()
	tx.InsertTables[id] = shadow
	return shadow
}

// IsDeleted reports whether a committed pointer has been marked deleted
// by this transaction.
func (tx *TxState) IsDeleted(tableId TableId, ptr RowPointer) bool {
	return tx.DeleteTables[tableId][ptr]
}

// MarkDeleted records that a committed row is deleted as of this tx.
func (tx *TxState) MarkDeleted(tableId TableId, ptr RowPointer) {
	set, ok := tx.DeleteTables[tableId]
	if !ok {
		set = make(map[RowPointer]bool)
		tx.DeleteTables[tableId] = set
	}
	set[ptr] = true
}

// UnmarkDeleted reverses MarkDeleted — used by the update/undelete fast
// path that resurrects a just-deleted committed row (spec.md §4.6).
func (tx *TxState) UnmarkDeleted(tableId TableId, ptr RowPointer) {
	if set, ok := tx.DeleteTables[tableId]; ok {
		delete(set, ptr)
	}
}

// log appends one entry to the undo log.
func (tx *TxState) log(c PendingSchemaChange) { tx.Pending = append(tx.Pending, c) }
