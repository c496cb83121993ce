package txstore

import (
	"encoding/binary"
	"sort"
)

// Page geometry constants (spec.md §4.1).
const (
	PageSize    = 64 * 1024
	GranuleSize = 64
	granuleData = GranuleSize - 2 // 2-byte header + 62-byte payload
	GranuleCount = PageSize / GranuleSize

	// noFreeSlot marks an empty fixed-row freelist. It collides with a
	// legitimate row offset only for a one-byte row size on a maximally
	// packed page, a configuration CompileLayout never produces (the
	// minimum fixed size is clamped to 2 bytes).
	noFreeSlot = 0xFFFF

	// DefaultBlobThreshold is the byte length past which a var-len
	// object is stored as a single granule holding a 32-byte blob hash
	// rather than inline chunks (spec.md §4.1, OBJECT_SIZE_BLOB_THRESHOLD).
	DefaultBlobThreshold = 4096
)

// GranuleIndex identifies a 64-byte granule within a page by
// data[idx*64 : idx*64+64]. 0 is reserved as the "no granule" sentinel:
// byte offset 0 always belongs to the fixed-row region, so a granule
// chain or freelist never legitimately points there.
type GranuleIndex uint16

func (g GranuleIndex) byteOffset() int { return int(g) * GranuleSize }

// Page is a 64 KiB aligned block holding one table's rows: a fixed-row
// region growing up from offset 0, and a var-len granule region growing
// down from the end, per spec.md §4.1.
type Page struct {
	data [PageSize]byte

	fixedRowSize uint16
	fixedHWM     uint16 // next never-used fixed offset
	fixedFree    uint16 // head of fixed-row freelist, noFreeSlot if empty

	varHWM  uint32 // next never-used var byte offset, from PageSize down
	varFree GranuleIndex

	rowCount     uint16
	granuleCount uint16
	present      map[uint16]bool // present fixed-row offsets; popcount == rowCount

	unmodifiedHash    uint64
	unmodifiedHashSet bool
}

// NewPage allocates an empty page sized for rows of fixedRowSize bytes.
func NewPage(fixedRowSize uint16) *Page {
	if fixedRowSize < 2 {
		fixedRowSize = 2
	}
	return &Page{
		fixedRowSize: fixedRowSize,
		fixedFree:    noFreeSlot,
		varHWM:       PageSize,
		varFree:      0,
		present:      make(map[uint16]bool),
	}
}

func (p *Page) invalidateHash() { p.unmodifiedHashSet = false }

// RowCount returns the number of present fixed rows.
func (p *Page) RowCount() int { return len(p.present) }

// IsPresent reports whether a fixed slot currently holds a live row.
func (p *Page) IsPresent(offset uint16) bool { return p.present[offset] }

// presentOffsetsSorted returns every live fixed-row offset in ascending
// order, the iteration order Table.ForEach and snapshot capture rely on
// for determinism.
func (p *Page) presentOffsetsSorted() []uint16 {
	offsets := make([]uint16, 0, len(p.present))
	for off := range p.present {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets
}

// --- fixed-row allocation -------------------------------------------------

// AllocFixedRow reserves one fixed-size slot and returns its offset.
func (p *Page) AllocFixedRow() (uint16, error) {
	if p.fixedFree != noFreeSlot {
		offset := p.fixedFree
		next := binary.LittleEndian.Uint16(p.data[offset:])
		p.fixedFree = next
		p.markPresent(offset)
		return offset, nil
	}
	need := uint32(p.fixedHWM) + uint32(p.fixedRowSize)
	if need > p.varHWM {
		return 0, ErrInsufficientFixedLenSpace(uint32(p.fixedRowSize))
	}
	offset := p.fixedHWM
	p.fixedHWM += p.fixedRowSize
	p.markPresent(offset)
	return offset, nil
}

func (p *Page) markPresent(offset uint16) {
	p.present[offset] = true
	p.rowCount = uint16(len(p.present))
	p.invalidateHash()
}

// FreeFixedRow releases a previously allocated fixed slot.
func (p *Page) FreeFixedRow(offset uint16) {
	delete(p.present, offset)
	p.rowCount = uint16(len(p.present))
	binary.LittleEndian.PutUint16(p.data[offset:], p.fixedFree)
	p.fixedFree = offset
	p.invalidateHash()
}

// RowBytes returns the raw fixed-row bytes at offset, live until the
// next mutation of the page.
func (p *Page) RowBytes(offset uint16, size uint16) []byte {
	return p.data[offset : offset+size]
}

// WriteRowBytes overwrites the fixed-row bytes at offset.
func (p *Page) WriteRowBytes(offset uint16, buf []byte) {
	copy(p.data[offset:], buf)
	p.invalidateHash()
}

// --- var-len granule allocation -------------------------------------------

func (p *Page) granuleHeader(idx GranuleIndex) (length int, next GranuleIndex) {
	off := idx.byteOffset()
	h := binary.LittleEndian.Uint16(p.data[off:])
	return int(h & 0x3F), GranuleIndex(h >> 6)
}

func (p *Page) setGranuleHeader(idx GranuleIndex, length int, next GranuleIndex) {
	off := idx.byteOffset()
	h := uint16(length&0x3F) | uint16(next)<<6
	binary.LittleEndian.PutUint16(p.data[off:], h)
}

func (p *Page) granulePayload(idx GranuleIndex) []byte {
	off := idx.byteOffset()
	return p.data[off+2 : off+GranuleSize]
}

// CountFreeGranules returns how many granules could be allocated right
// now: the freelist plus whatever remains in the gap between the two
// high-water marks.
func (p *Page) CountFreeGranules() int {
	free := 0
	for g := p.varFree; g != 0; {
		free++
		_, next := p.granuleHeader(g)
		g = next
	}
	gap := (int(p.varHWM) - int(p.fixedHWM)) / GranuleSize
	if gap < 0 {
		gap = 0
	}
	return free + gap
}

func (p *Page) allocGranule() (GranuleIndex, bool) {
	if p.varFree != 0 {
		idx := p.varFree
		_, next := p.granuleHeader(idx)
		p.varFree = next
		return idx, true
	}
	if p.varHWM < uint32(p.fixedHWM)+GranuleSize {
		return 0, false
	}
	p.varHWM -= GranuleSize
	idx := GranuleIndex(p.varHWM / GranuleSize)
	p.granuleCount++
	return idx, true
}

func (p *Page) freeGranule(idx GranuleIndex) {
	p.setGranuleHeader(idx, 0, p.varFree)
	p.varFree = idx
	if p.granuleCount > 0 {
		p.granuleCount--
	}
	p.invalidateHash()
}

// FreeGranuleChain walks and frees every granule in the chain rooted
// at first (spec.md §4.1, invoked on row delete to release var-len data).
func (p *Page) FreeGranuleChain(first GranuleIndex) {
	g := first
	for g != 0 {
		_, next := p.granuleHeader(g)
		p.freeGranule(g)
		g = next
	}
}

// AllocVarLen encodes data as a granule chain (or, past the blob
// threshold, expects the caller to have already substituted a 32-byte
// blob hash as the payload) and returns the VarLenRef pointing at it.
// The granule budget is checked before any granule is touched so a
// failure leaves the page byte-for-byte as it was (spec.md §7).
func (p *Page) AllocVarLen(data []byte) (VarLenRef, error) {
	need := (len(data) + granuleData - 1) / granuleData
	if need == 0 {
		need = 1
	}
	if have := p.CountFreeGranules(); need > have {
		return VarLenRef{}, ErrInsufficientVarLenSpace(uint32(need), uint32(have))
	}

	chunks := make([][]byte, 0, need)
	for i := 0; i < len(data); i += granuleData {
		end := i + granuleData
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	if len(chunks) == 0 {
		chunks = append(chunks, nil)
	}

	var prev GranuleIndex
	for i := len(chunks) - 1; i >= 0; i-- {
		idx, ok := p.allocGranule()
		if !ok {
			// Unreachable given the pre-flight check above, but freed
			// defensively so a budget-accounting bug cannot corrupt
			// the page invariant.
			p.FreeGranuleChain(prev)
			return VarLenRef{}, ErrInsufficientVarLenSpace(uint32(need), uint32(p.CountFreeGranules()))
		}
		copy(p.granulePayload(idx), chunks[i])
		p.setGranuleHeader(idx, len(chunks[i]), prev)
		prev = idx
	}
	p.invalidateHash()
	return VarLenRef{FirstGranule: prev, LengthBytes: uint32(len(data))}, nil
}

// ReadVarLen reassembles the bytes of a granule chain, for lengths at
// or below the blob threshold. Above it, the chain holds only a blob
// hash and the caller must resolve it through the blob store instead.
func (p *Page) ReadVarLen(ref VarLenRef) []byte {
	if ref.IsNull() {
		return nil
	}
	out := make([]byte, 0, ref.LengthBytes)
	g := ref.FirstGranule
	for g != 0 {
		length, next := p.granuleHeader(g)
		out = append(out, p.granulePayload(g)[:length]...)
		g = next
	}
	return out
}

// Clear resets the page to empty, freeing every row and every granule.
func (p *Page) Clear() {
	p.present = make(map[uint16]bool)
	p.rowCount = 0
	p.granuleCount = 0
	p.fixedHWM = 0
	p.fixedFree = noFreeSlot
	p.varHWM = PageSize
	p.varFree = 0
	p.invalidateHash()
}

// ContentHash computes (or returns the cached) keyed hash of the
// page's semantic content: the scalar header fields, the present-rows
// set with each present row's fixed bytes, and the var-len granule
// region, per spec.md §4.1.
func (p *Page) ContentHash() uint64 {
	if p.unmodifiedHashSet {
		return p.unmodifiedHash
	}
	h := newHasher()
	h.writeUint16(p.fixedRowSize)
	h.writeUint16(p.fixedHWM)
	h.writeUint16(uint16(p.varHWM))
	h.writeUint16(p.rowCount)
	h.writeUint16(p.granuleCount)
	offsets := make([]uint16, 0, len(p.present))
	for off := range p.present {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	for _, off := range offsets {
		h.writeUint16(off)
		h.writeBytes(p.RowBytes(off, p.fixedRowSize))
	}
	h.writeUint16(uint16(p.varFree))
	h.writeBytes(p.data[p.varHWM:])
	sum := h.sum()
	p.unmodifiedHash = sum
	p.unmodifiedHashSet = true
	return sum
}
