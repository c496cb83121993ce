package txstore

import "fmt"

// RowRef is a borrowed, typed view of a single row identified by a
// RowPointer (spec.md glossary). Obtaining the materialized Row from a
// RowRef always re-reads through the owning table so callers never
// retain stale bytes across a mutation.
type RowRef struct {
	Table *Table
	Ptr   RowPointer
}

// Row re-decodes and returns the row this ref addresses.
func (r RowRef) Row() (Row, error) { return r.Table.RowAt(r.Ptr) }

// Table is one table instance: its schema, its pages, its indices, its
// optional pointer map, and the statistics spec.md §3 requires be
// maintained incrementally.
type Table struct {
	Schema         *TableSchema
	Layout         *RowLayout
	Pages          []*Page
	Indices        map[IndexId]*TableIndex
	PointerMap     *PointerMap
	RowCount       int
	BlobStoreBytes int64
	Squashed       SquashedOffset
	AutoInc        map[ColId]SequenceId
	IsScheduler    bool

	blobs         BlobStore
	blobThreshold int
}

// NewTable creates a fresh, empty table for schema, tagged as either a
// committed table or a tx-state shadow.
func NewTable(schema *TableSchema, squashed SquashedOffset, blobs BlobStore, blobThreshold int) *Table {
	if blobThreshold <= 0 {
		blobThreshold = DefaultBlobThreshold
	}
	return &Table{
		Schema:        schema,
		Layout:        schema.Layout(),
		Indices:       make(map[IndexId]*TableIndex),
		PointerMap:    NewPointerMap(),
		Squashed:      squashed,
		AutoInc:       make(map[ColId]SequenceId),
		blobs:         blobs,
		blobThreshold: blobThreshold,
		IsScheduler:   schema.Scheduled != nil,
	}
}

// CloneEmptyShadow builds the tx-state shadow of a committed table:
// same schema identity and index *structure*, no row content (spec.md
// §4.7 — insert-tables are "created lazily by cloning the committed
// table's schema and index structure (but not contents)").
func (t *Table) CloneEmptyShadow() *Table {
	shadow := NewTable(t.Schema, Tx, t.blobs, t.blobThreshold)
	shadow.AutoInc = t.AutoInc
	shadow.IsScheduler = t.IsScheduler
	if t.PointerMap == nil {
		shadow.PointerMap = nil
	}
	for id, idx := range t.Indices {
		shadow.Indices[id] = idx.CloneStructure()
	}
	return shadow
}

func (t *Table) rowBuf(ptr RowPointer) ([]byte, *Page, error) {
	if int(ptr.PageIndex) >= len(t.Pages) {
		return nil, nil, fmt.Errorf("txstore: row pointer %s out of range", ptr)
	}
	page := t.Pages[ptr.PageIndex]
	if !page.IsPresent(ptr.PageOffset) {
		return nil, nil, fmt.Errorf("txstore: row pointer %s does not refer to a live row", ptr)
	}
	return page.RowBytes(ptr.PageOffset, t.Layout.FixedSize), page, nil
}

// RowAt decodes the full row (fixed fields plus resolved var-len
// fields) a pointer currently addresses.
func (t *Table) RowAt(ptr RowPointer) (Row, error) {
	buf, page, err := t.rowBuf(ptr)
	if err != nil {
		return nil, err
	}
	row := t.Layout.DecodeFixed(buf)
	for _, slot := range t.Layout.VarLenSlots() {
		if row[slot.ColIdx].Null {
			continue
		}
		ref := t.Layout.GetVarLenRef(buf, slot)
		if ref.IsNull() {
			continue
		}
		raw, err := t.resolveVarLen(page, ref)
		if err != nil {
			return nil, err
		}
		if slot.Col.Type == TypeString {
			row[slot.ColIdx] = StringValue(string(raw))
		} else {
			row[slot.ColIdx] = BytesValue(raw)
		}
	}
	return row, nil
}

func (t *Table) resolveVarLen(page *Page, ref VarLenRef) ([]byte, error) {
	if int(ref.LengthBytes) <= t.blobThreshold {
		return page.ReadVarLen(ref), nil
	}
	hashBytes := page.ReadVarLen(ref)
	var h BlobHash
	copy(h[:], hashBytes)
	data, ok := t.blobs.Retrieve(h)
	if !ok {
		return nil, fmt.Errorf("txstore: blob %s missing from blob store", h)
	}
	return data, nil
}

// physicalInsert writes row's bytes into some page of the table
// (allocating a new one if none has room) and returns its pointer. It
// does not touch any index or the pointer map.
func (t *Table) physicalInsert(row Row) (RowPointer, error) {
	buf := t.Layout.EncodeFixed(row)
	varSlots := t.Layout.VarLenSlots()

	for pageIdx, page := range t.Pages {
		ptr, ok, err := t.tryPhysicalInsertIntoPage(page, uint16(pageIdx), buf, row, varSlots)
		if err != nil {
			return RowPointer{}, err
		}
		if ok {
			return ptr, nil
		}
	}
	page := NewPage(t.Layout.FixedSize)
	t.Pages = append(t.Pages, page)
	ptr, ok, err := t.tryPhysicalInsertIntoPage(page, uint16(len(t.Pages)-1), buf, row, varSlots)
	if err != nil {
		return RowPointer{}, err
	}
	if !ok {
		return RowPointer{}, ErrInsufficientFixedLenSpace(uint32(t.Layout.FixedSize))
	}
	return ptr, nil
}

// tryPhysicalInsertIntoPage attempts the whole physical write against
// one page, rolling back every granule and the fixed slot it touched
// if any step fails partway — the pre-reservation discipline of
// spec.md §7 applied at row granularity (each var column is allocated
// only after its page-level granule budget has already been checked by
// Page.AllocVarLen).
func (t *Table) tryPhysicalInsertIntoPage(page *Page, pageIdx uint16, buf []byte, row Row, varSlots []fieldSlot) (RowPointer, bool, error) {
	offset, err := page.AllocFixedRow()
	if err != nil {
		return RowPointer{}, false, nil
	}
	rowBuf := append([]byte(nil), buf...)

	var allocatedBlobs []BlobHash
	var allocatedGranules []VarLenRef
	var blobBytesAdded int64
	rollback := func() {
		for _, ref := range allocatedGranules {
			page.FreeGranuleChain(ref.FirstGranule)
		}
		for _, h := range allocatedBlobs {
			_ = t.blobs.Free(h)
		}
		t.BlobStoreBytes -= blobBytesAdded
		page.FreeFixedRow(offset)
	}

	for _, slot := range varSlots {
		v := row[slot.ColIdx]
		if v.Null {
			continue
		}
		raw := varLenBytes(v)
		if len(raw) > t.blobThreshold {
			h, err := t.blobs.Insert(raw)
			if err != nil {
				rollback()
				return RowPointer{}, false, fmt.Errorf("txstore: blob insert: %w", err)
			}
			allocatedBlobs = append(allocatedBlobs, h)
			ref, err := t.allocBlobRef(page, h, len(raw))
			if err != nil {
				rollback()
				return RowPointer{}, false, nil
			}
			allocatedGranules = append(allocatedGranules, ref)
			t.Layout.PutVarLenRef(rowBuf, slot, ref)
			t.BlobStoreBytes += int64(len(raw))
			blobBytesAdded += int64(len(raw))
			continue
		}
		ref, err := page.AllocVarLen(raw)
		if err != nil {
			rollback()
			return RowPointer{}, false, nil
		}
		allocatedGranules = append(allocatedGranules, ref)
		t.Layout.PutVarLenRef(rowBuf, slot, ref)
	}

	page.WriteRowBytes(offset, rowBuf)
	return NewRowPointer(t.Squashed, pageIdx, offset), true, nil
}

func (t *Table) allocBlobRef(page *Page, h BlobHash, totalLen int) (VarLenRef, error) {
	if page.CountFreeGranules() < 1 {
		return VarLenRef{}, ErrInsufficientVarLenSpace(1, 0)
	}
	ref, err := page.AllocVarLen(h[:])
	if err != nil {
		return VarLenRef{}, err
	}
	ref.LengthBytes = uint32(totalLen)
	return ref, nil
}

func varLenBytes(v Value) []byte {
	if v.Type == TypeString {
		return []byte(v.Str)
	}
	return v.Bytes
}

// physicalDelete frees a row's granule chains (or blob references) and
// its fixed slot, without touching any index or the pointer map.
func (t *Table) physicalDelete(ptr RowPointer) error {
	buf, page, err := t.rowBuf(ptr)
	if err != nil {
		return err
	}
	for _, slot := range t.Layout.VarLenSlots() {
		if isNull(buf[:t.Layout.NullBytes], slot.ColIdx) {
			continue
		}
		ref := t.Layout.GetVarLenRef(buf, slot)
		if ref.IsNull() {
			continue
		}
		if int(ref.LengthBytes) > t.blobThreshold {
			hashBytes := page.ReadVarLen(ref)
			var h BlobHash
			copy(h[:], hashBytes)
			_ = t.blobs.Free(h)
			t.BlobStoreBytes -= int64(ref.LengthBytes)
		}
		page.FreeGranuleChain(ref.FirstGranule)
	}
	page.FreeFixedRow(ptr.PageOffset)
	return nil
}

// Insert physically writes row, optionally substitutes sequence values
// for zero-placeholder auto-increment columns, then confirms the
// insertion against the pointer map or every index (spec.md §4.6).
// generate=false disables sequence generation (Bootstrap inserts this
// way; commitlog replay bypasses Insert and calls physicalInsert).
func (t *Table) Insert(row Row, generate bool, seqs *SequenceState) (RowHash, RowPointer, Row, error) {
	row = row.Clone()
	if generate {
		for col, seqId := range t.AutoInc {
			if row[col].Type != TypeInt64 || row[col].Null || row[col].I64 != 0 {
				continue
			}
			v, err := seqs.Next(seqId)
			if err != nil {
				return 0, RowPointer{}, nil, err
			}
			row[col] = Int64Value(v)
		}
	}

	ptr, err := t.physicalInsert(row)
	if err != nil {
		return 0, RowPointer{}, nil, err
	}

	hash, err := t.confirm(row, ptr)
	if err != nil {
		return 0, RowPointer{}, nil, err
	}
	return hash, ptr, row, nil
}

// confirm adds ptr to the pointer map (checking for a duplicate) or to
// every index (rolling forward cleanup on the first failure).
func (t *Table) confirm(row Row, ptr RowPointer) (RowHash, error) {
	hash := HashRow(row)

	if t.PointerMap != nil {
		for _, existing := range t.PointerMap.Lookup(hash) {
			existingRow, err := t.RowAt(existing)
			if err == nil && existingRow.Equal(row) {
				_ = t.physicalDelete(ptr)
				return 0, ErrDuplicate(existing)
			}
		}
		t.PointerMap.Insert(hash, ptr)
		t.RowCount++
		return hash, nil
	}

	touched := make([]IndexId, 0, len(t.Indices))
	for id, idx := range t.Indices {
		if _, ok := idx.CheckAndInsert(row, ptr); !ok {
			for _, tid := range touched {
				t.Indices[tid].Delete(row, ptr)
			}
			_ = t.physicalDelete(ptr)
			return 0, wrapIndexError(&IndexError{Kind: IndexUniqueConstraintViolation, IndexId: id})
		}
		touched = append(touched, id)
	}
	t.RowCount++
	return hash, nil
}

// Delete removes ptr's row from every index (or the pointer map) and
// frees it physically. It is only valid for pointers owned by this
// table's own storage (i.e. never call it with a committed pointer
// from within a tx-state table — MutTx routes committed deletions
// through the delete-table instead, per spec.md §4.6/§4.9).
func (t *Table) Delete(ptr RowPointer) error {
	row, err := t.RowAt(ptr)
	if err != nil {
		return err
	}
	if t.PointerMap != nil {
		t.PointerMap.Remove(HashRow(row), ptr)
	} else {
		for _, idx := range t.Indices {
			idx.Delete(row, ptr)
		}
	}
	t.RowCount--
	return t.physicalDelete(ptr)
}

// FindSameRow locates a row byte-identical to needle, via the pointer
// map if present or else any unique index (spec.md §4.6
// "delete_equal_row").
func (t *Table) FindSameRow(needle Row) (RowPointer, bool) {
	if t.PointerMap != nil {
		for _, ptr := range t.PointerMap.Lookup(HashRow(needle)) {
			row, err := t.RowAt(ptr)
			if err == nil && row.Equal(needle) {
				return ptr, true
			}
		}
		return RowPointer{}, false
	}
	for _, idx := range t.Indices {
		if !idx.Unique {
			continue
		}
		for _, ptr := range idx.SeekPoint(needle.Key(idx.Columns)) {
			row, err := t.RowAt(ptr)
			if err == nil && row.Equal(needle) {
				return ptr, true
			}
		}
	}
	return RowPointer{}, false
}

// Clear physically empties the table and drops every index entry and
// pointer-map entry, leaving schema and index structure intact.
func (t *Table) Clear() {
	t.Pages = nil
	t.RowCount = 0
	t.BlobStoreBytes = 0
	if t.PointerMap != nil {
		t.PointerMap.Clear()
	}
	for _, idx := range t.Indices {
		idx.entries = nil
		idx.numKeyBytes = 0
	}
}

// AddIndex installs idx, already populated via BuildFromRows, and
// drops the pointer map if idx is the table's first unique index
// (spec.md §4.6/§3 invariant 4-5).
func (t *Table) AddIndex(idx *TableIndex) {
	t.Indices[idx.Id] = idx
	if idx.Unique {
		t.PointerMap = nil
	}
}

// DeleteIndex removes an index and, if it was the table's last unique
// index, rebuilds the pointer map by scanning every present row
// (spec.md §3 "when the last unique index is removed, the pointer map
// is rebuilt by scanning all rows").
func (t *Table) DeleteIndex(id IndexId) {
	removed := t.Indices[id]
	delete(t.Indices, id)
	if removed == nil || !removed.Unique {
		return
	}
	for _, idx := range t.Indices {
		if idx.Unique {
			return
		}
	}
	t.PointerMap = NewPointerMap()
	t.ForEach(func(row Row, ptr RowPointer) bool {
		t.PointerMap.Insert(HashRow(row), ptr)
		return true
	})
}

// ForEach visits every present row in page order, offset order.
func (t *Table) ForEach(fn func(Row, RowPointer) bool) {
	for pageIdx, page := range t.Pages {
		offsets := page.presentOffsetsSorted()
		for _, off := range offsets {
			ptr := NewRowPointer(t.Squashed, uint16(pageIdx), off)
			row, err := t.RowAt(ptr)
			if err != nil {
				continue
			}
			if !fn(row, ptr) {
				return
			}
		}
	}
}

// IterPagesWithHashes mutates each page to compute-and-cache its
// content hash if absent, then yields (hash, page) pairs — the
// primitive snapshot capture is built on (spec.md §4.6).
func (t *Table) IterPagesWithHashes(fn func(hash uint64, page *Page)) {
	for _, page := range t.Pages {
		fn(page.ContentHash(), page)
	}
}
