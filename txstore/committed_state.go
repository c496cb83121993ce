package txstore

// CommittedState holds the durable, last-committed view of every table
// plus the shared blob store. Its NextTxOffset field is not advanced by
// Commit, replay or snapshot restore; the live tx_offset counter is
// Database.nextTxOffset. Access is serialized by the outer Database's
// RWMutex (spec.md §5 lock ordering) — CommittedState itself does no
// locking.
type CommittedState struct {
	Tables        map[TableId]*Table
	Blobs         BlobStore
	NextTxOffset  uint64
	BlobThreshold int
}

// NewCommittedState creates an empty committed state sharing blobs as
// its blob store collaborator.
func NewCommittedState(blobs BlobStore, blobThreshold int) *CommittedState {
	if blobThreshold <= 0 {
		blobThreshold = DefaultBlobThreshold
	}
	return &CommittedState{
		Tables:        make(map[TableId]*Table),
		Blobs:         blobs,
		BlobThreshold: blobThreshold,
	}
}

// GetTable returns the committed table by id, or nil.
func (c *CommittedState) GetTable(id TableId) *Table { return c.Tables[id] }

// GetTableByName scans for a table by name — used by schema lookups
// that only have a name to go on (spec.md's st_table is always searched
// this way before an id is known).
func (c *CommittedState) GetTableByName(name string) *Table {
	for _, t := range c.Tables {
		if t.Schema.Name == name {
			return t
		}
	}
	return nil
}

// CreateTable installs a brand-new, empty committed table.
func (c *CommittedState) CreateTable(schema *TableSchema) *Table {
	t := NewTable(schema, Committed, c.Blobs, c.BlobThreshold)
	c.Tables[schema.Id] = t
	return t
}

// DropTable removes a committed table outright. MutTx.DropTable calls
// it (keeping the removed table in its undo log), and rollback calls it
// to undo a TableAdded change.
func (c *CommittedState) DropTable(id TableId) { delete(c.Tables, id) }
