// Package txstore implements the core transactional storage engine of an
// in-memory relational database: a multi-table, single-writer datastore
// that represents rows as packed binary pages, maintains secondary
// indices, enforces unique constraints, generates auto-increment values,
// and supports atomic commit or rollback of whole transactions.
package txstore

import "fmt"

// TableId, IndexId, SequenceId, ConstraintId, ColId are opaque 32-bit
// identifiers. Sentinel denotes "unassigned".
type (
	TableId      uint32
	IndexId      uint32
	SequenceId   uint32
	ConstraintId uint32
	ColId        uint32
)

// Sentinel marks an identifier as unassigned. Nothing in this package
// replaces it automatically on insert; identifiers are handed out by
// Database.AllocObjectId.
const Sentinel = 0

// FirstNonSystemId is the first identifier handed out to user-defined
// tables, indices, sequences, constraints and schedules. Everything
// below it is reserved for the system catalog installed at bootstrap.
const FirstNonSystemId = 4096

// ColList is a non-empty, ordered list of column positions used to
// project a row onto an index key or a primary key.
type ColList []ColId

func (c ColList) String() string {
	return fmt.Sprintf("%v", []ColId(c))
}

// SquashedOffset distinguishes committed-state row pointers from
// tx-state row pointers. A RowPointer must never be used against the
// wrong side without the caller checking this tag first.
type SquashedOffset uint8

const (
	Committed SquashedOffset = iota
	Tx
)

func (s SquashedOffset) String() string {
	if s == Committed {
		return "COMMITTED"
	}
	return "TX"
}

// RowPointer is a stable handle to a row's storage location: which page
// of the table, which fixed-slot offset within the page, and which side
// of the MVCC-free overlay (committed vs. tx-state) it refers to.
//
// Equality of RowPointers does not imply equality of row *content* after
// a delete+reinsert has recycled the slot.
type RowPointer struct {
	PageIndex      uint16
	PageOffset     uint16
	SquashedOffset SquashedOffset
	reserved       uint16
}

// NewRowPointer builds a RowPointer for the given page/offset on the
// given side of the overlay.
func NewRowPointer(squashed SquashedOffset, pageIndex, pageOffset uint16) RowPointer {
	return RowPointer{PageIndex: pageIndex, PageOffset: pageOffset, SquashedOffset: squashed}
}

// IsCommitted reports whether this pointer addresses the committed side.
func (p RowPointer) IsCommitted() bool { return p.SquashedOffset == Committed }

func (p RowPointer) String() string {
	return fmt.Sprintf("RowPointer{%s page=%d offset=%d}", p.SquashedOffset, p.PageIndex, p.PageOffset)
}

// RowHash is a keyed 64-bit hash of a row's semantic content: fields are
// walked in column order and var-len values (blob-backed or not) are
// hashed by their bytes, not by where they are stored. Two equal
// rows always have equal hash; the converse is only probabilistic.
type RowHash uint64

// BlobHash is the content-addressed identity of a blob-store entry.
type BlobHash [32]byte

func (h BlobHash) String() string {
	return fmt.Sprintf("%x", [32]byte(h))
}
