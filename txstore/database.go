package txstore

import (
	"sync"

	"github.com/google/uuid"
)

// LockWaitObserver is notified around every lock acquisition the
// single-writer protocol performs, mirroring the teacher's habit of
// threading an optional, mostly-unused instrumentation hook through its
// datasource constructors. The zero value (nil) disables observation.
type LockWaitObserver interface {
	OnWaitStart(lock string)
	OnWaitEnd(lock string)
}

type noopLockWaitObserver struct{}

func (noopLockWaitObserver) OnWaitStart(string) {}
func (noopLockWaitObserver) OnWaitEnd(string)   {}

// TxId identifies one committed or rolled-back transaction, handed back
// by Commit so a caller can correlate it with a commitlog offset.
type TxId uint64

// Database is the top-level handle bundling the committed state, the
// shared blob store, the sequence allocator, and the lock triple
// spec.md §5 orders as (1) committed state, (2) sequence state, (3)
// blob store (already internally locked by Badger). Only one MutTx may
// be open at a time; BeginMutTx blocks until the previous one commits
// or rolls back.
type Database struct {
	Identity uuid.UUID

	writeMu sync.Mutex   // serializes MutTx lifetimes (single-writer)
	stateMu sync.RWMutex // guards CommittedState.Tables and Table contents

	committed     *CommittedState
	seqs          *SequenceState
	blobs         BlobStore
	blobThreshold int
	observer      LockWaitObserver
	logger        Logger

	nextObjectId uint32
	nextTxOffset uint64
}

// NewDatabase creates an empty database with the given identity, blob
// store, blob threshold (<= 0 selects DefaultBlobThreshold) and lock
// wait observer (nil installs a no-op one), a log.Default() logger and
// the default sequence allocation step. Callers normally follow this with a
// bootstrap pass that installs the system catalog (see Bootstrap)
// before accepting any user transaction. NewDatabaseWithOptions offers
// the full set of tunables.
func NewDatabase(identity uuid.UUID, blobs BlobStore, blobThreshold int, observer LockWaitObserver) *Database {
	return NewDatabaseWithOptions(Options{
		Identity:      identity,
		Blobs:         blobs,
		BlobThreshold: blobThreshold,
		Observer:      observer,
	})
}

// AllocObjectId hands out the next free table/index/sequence/constraint
// identifier. The engine shares one counter across all four object
// kinds rather than modeling four independent id sequences, which is
// simpler and still collision-free since the kinds are never compared
// against each other.
func (d *Database) AllocObjectId() uint32 {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	id := d.nextObjectId
	d.nextObjectId++
	return id
}

// reserveObjectIdLocked bumps the object-id counter past id without
// taking stateMu. Bootstrap, RebuildStateAfterReplay and RestoreSnapshot
// call it before the database accepts any transaction.
func (d *Database) reserveObjectIdLocked(id uint32) {
	if id >= d.nextObjectId {
		d.nextObjectId = id + 1
	}
}

// BeginMutTx blocks until any prior MutTx has committed or rolled back,
// then returns a fresh one. Deferred Commit or Rollback must always
// follow.
func (d *Database) BeginMutTx() *MutTx {
	d.observer.OnWaitStart("write")
	d.writeMu.Lock()
	d.observer.OnWaitEnd("write")
	return &MutTx{
		db:       d,
		state:    NewTxState(d.committed),
		seqSaved: make(map[SequenceId]Sequence),
	}
}

// Tx is a read-only snapshot view returned by Commit's lock-downgrade
// (spec.md §4.9) or obtained directly via BeginTx for a query that
// never mutates. sync.RWMutex offers no atomic write-to-read downgrade
// primitive, so the downgrade here is approximated by releasing the
// write lock and immediately acquiring the read lock before any other
// writer can start — safe under this engine's single-writer discipline
// since BeginMutTx itself blocks on writeMu, not stateMu.
type Tx struct {
	db *Database
}

// BeginTx acquires a read lock over the committed state for the
// duration of a read-only query.
func (d *Database) BeginTx() *Tx {
	d.observer.OnWaitStart("read")
	d.stateMu.RLock()
	d.observer.OnWaitEnd("read")
	return &Tx{db: d}
}

// Release drops the read lock. Callers must call it exactly once.
func (t *Tx) Release() { t.db.stateMu.RUnlock() }

// GetTable returns the committed table by id.
func (t *Tx) GetTable(id TableId) (*Table, error) {
	tbl := t.db.committed.GetTable(id)
	if tbl == nil {
		return nil, ErrTableIdNotFound(id)
	}
	return tbl, nil
}

// GetTableByName returns the committed table by name.
func (t *Tx) GetTableByName(name string) (*Table, error) {
	tbl := t.db.committed.GetTableByName(name)
	if tbl == nil {
		return nil, ErrTableNotFound(name)
	}
	return tbl, nil
}
