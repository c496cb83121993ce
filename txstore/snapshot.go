package txstore

import (
	"sort"

	"github.com/google/uuid"
)

// PageSnapshot is a byte-for-byte capture of one Page's full internal
// state, enough to restore it such that ContentHash() recomputes to
// the same value (spec.md §6 "snapshot capture/restore").
type PageSnapshot struct {
	Data         [PageSize]byte
	FixedRowSize uint16
	FixedHWM     uint16
	FixedFree    uint16
	VarHWM       uint32
	VarFree      GranuleIndex
	RowCount     uint16
	GranuleCount uint16
	Present      []uint16
}

// CapturePage snapshots a page's entire state.
func CapturePage(p *Page) PageSnapshot {
	return PageSnapshot{
		Data:         p.data,
		FixedRowSize: p.fixedRowSize,
		FixedHWM:     p.fixedHWM,
		FixedFree:    p.fixedFree,
		VarHWM:       p.varHWM,
		VarFree:      p.varFree,
		RowCount:     p.rowCount,
		GranuleCount: p.granuleCount,
		Present:      p.presentOffsetsSorted(),
	}
}

// RestorePage reconstructs a Page from a snapshot.
func RestorePage(s PageSnapshot) *Page {
	p := &Page{
		data:         s.Data,
		fixedRowSize: s.FixedRowSize,
		fixedHWM:     s.FixedHWM,
		fixedFree:    s.FixedFree,
		varHWM:       s.VarHWM,
		varFree:      s.VarFree,
		rowCount:     s.RowCount,
		granuleCount: s.GranuleCount,
		present:      make(map[uint16]bool, len(s.Present)),
	}
	for _, off := range s.Present {
		p.present[off] = true
	}
	return p
}

// TableSnapshot captures one table's schema, pages and running
// statistics. Indices and the pointer map are not captured — they are
// cheap to rebuild from the restored rows, and doing so avoids having
// to serialize index internals.
type TableSnapshot struct {
	Schema         *TableSchema
	Pages          []PageSnapshot
	RowCount       int
	BlobStoreBytes int64
	AutoInc        map[ColId]SequenceId
}

// Snapshot is the full captured state of a Database: its identity, the
// tx_offset it reflects, and every table's TableSnapshot, keyed so
// capture/restore is deterministic regardless of Go map iteration order
// (spec.md §6, "tables: sorted_map<table_id, []Page>"). The blob store
// is assumed to be restored independently (it is Badger-backed and
// persists on its own), consistent with spec.md's snapshot description
// treating it as a shared, separately-durable collaborator.
type Snapshot struct {
	DatabaseIdentity uuid.UUID
	TxOffset         uint64
	TableIds         []TableId
	Tables           map[TableId]TableSnapshot
}

// CaptureSnapshot captures db's entire committed state under a read
// lock.
func CaptureSnapshot(db *Database) *Snapshot {
	db.stateMu.RLock()
	defer db.stateMu.RUnlock()

	ids := make([]TableId, 0, len(db.committed.Tables))
	for id := range db.committed.Tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	snap := &Snapshot{
		DatabaseIdentity: db.Identity,
		TxOffset:         db.nextTxOffset,
		TableIds:         ids,
		Tables:           make(map[TableId]TableSnapshot, len(ids)),
	}
	for _, id := range ids {
		t := db.committed.Tables[id]
		pages := make([]PageSnapshot, len(t.Pages))
		for i, p := range t.Pages {
			pages[i] = CapturePage(p)
		}
		autoInc := make(map[ColId]SequenceId, len(t.AutoInc))
		for k, v := range t.AutoInc {
			autoInc[k] = v
		}
		snap.Tables[id] = TableSnapshot{
			Schema: t.Schema.Clone(), Pages: pages,
			RowCount: t.RowCount, BlobStoreBytes: t.BlobStoreBytes, AutoInc: autoInc,
		}
	}
	return snap
}

// RestoreSnapshot rebuilds a Database from a captured snapshot. Indices
// are not restored (the snapshot does not capture them) — call
// RebuildStateAfterReplay-equivalent index construction afterward if
// the caller also has st_index rows to rebuild from, exactly as a
// cold-start restart does after loading a snapshot and replaying
// whatever commitlog entries follow it.
func RestoreSnapshot(snap *Snapshot, blobs BlobStore, blobThreshold int, observer LockWaitObserver) *Database {
	db := NewDatabase(snap.DatabaseIdentity, blobs, blobThreshold, observer)
	db.nextTxOffset = snap.TxOffset

	for _, id := range snap.TableIds {
		ts := snap.Tables[id]
		t := db.committed.CreateTable(ts.Schema)
		db.reserveObjectIdLocked(uint32(id))
		t.RowCount = ts.RowCount
		t.BlobStoreBytes = ts.BlobStoreBytes
		for k, v := range ts.AutoInc {
			t.AutoInc[k] = v
		}
		t.Pages = make([]*Page, len(ts.Pages))
		for i, ps := range ts.Pages {
			t.Pages[i] = RestorePage(ps)
		}
		t.PointerMap = NewPointerMap()
		t.ForEach(func(row Row, ptr RowPointer) bool {
			t.PointerMap.Insert(HashRow(row), ptr)
			return true
		})
	}
	return db
}
