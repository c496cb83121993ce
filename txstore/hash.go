package txstore

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// rowHashSeed keys the row-content hash so that RowHash values are not
// trivially forgeable across datastores; it is fixed for the lifetime of
// a process, matching the teacher's xxhash-backed content hashing (it
// arrives transitively via the badger dependency already required by
// pkg/resource/badger).
const rowHashSeed = 0x736d5f68617368 // "sm_hash"

// hasher accumulates a keyed digest over a row's fields in column order.
// It is the single hashing primitive behind both RowHash (set semantics
// via the pointer map) and Page.ContentHash (snapshot round-tripping).
type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher() *hasher {
	d := xxhash.NewWithSeed(rowHashSeed)
	return &hasher{d: d}
}

func (h *hasher) writeBytes(b []byte) {
	_, _ = h.d.Write(b)
}

func (h *hasher) writeUint64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *hasher) writeUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, _ = h.d.Write(b[:])
}

func (h *hasher) writeBool(v bool) {
	if v {
		h.writeByte(1)
	} else {
		h.writeByte(0)
	}
}

func (h *hasher) writeByte(b byte) {
	_, _ = h.d.Write([]byte{b})
}

func (h *hasher) sum() uint64 { return h.d.Sum64() }

// hashValue folds one column Value into the hasher. Var-len values are
// hashed by their bytes, so a blob-backed value hashes by its content
// rather than its page location.
func hashValue(h *hasher, v Value) {
	h.writeByte(byte(v.Type))
	if v.Null {
		h.writeByte(1)
		return
	}
	h.writeByte(0)
	switch v.Type {
	case TypeBool:
		h.writeBool(v.Bool)
	case TypeInt64:
		h.writeUint64(uint64(v.I64))
	case TypeFloat64:
		h.writeUint64(math.Float64bits(v.F64))
	case TypeString:
		h.writeUint64(uint64(len(v.Str)))
		h.writeBytes([]byte(v.Str))
	case TypeBytes:
		h.writeUint64(uint64(len(v.Bytes)))
		h.writeBytes(v.Bytes)
	}
}

// HashRow computes the RowHash of r per the layout's column order.
func HashRow(r Row) RowHash {
	h := newHasher()
	h.writeUint16(uint16(len(r)))
	for _, v := range r {
		hashValue(h, v)
	}
	return RowHash(h.sum())
}
