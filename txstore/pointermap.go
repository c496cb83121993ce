package txstore

// PointerMap is the hash-multimap from RowHash to RowPointer used to
// enforce set semantics (spec.md §4.4) when a table declares no unique
// index. Insert/remove are O(1) amortized/expected; a hash bucket is
// dropped once its last pointer is removed.
type PointerMap struct {
	buckets map[RowHash][]RowPointer
	count   int
}

// NewPointerMap creates an empty pointer map.
func NewPointerMap() *PointerMap {
	return &PointerMap{buckets: make(map[RowHash][]RowPointer)}
}

// Insert records that a row hashing to h now lives at ptr.
func (m *PointerMap) Insert(h RowHash, ptr RowPointer) {
	m.buckets[h] = append(m.buckets[h], ptr)
	m.count++
}

// Lookup returns every pointer currently recorded under h.
func (m *PointerMap) Lookup(h RowHash) []RowPointer {
	return m.buckets[h]
}

// Remove drops one occurrence of ptr from h's bucket, returning whether
// it was found. The bucket entry is deleted once empty.
func (m *PointerMap) Remove(h RowHash, ptr RowPointer) bool {
	bucket := m.buckets[h]
	for i, p := range bucket {
		if p == ptr {
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(m.buckets, h)
			} else {
				m.buckets[h] = bucket
			}
			m.count--
			return true
		}
	}
	return false
}

// Len returns the total number of (hash, pointer) pairs recorded,
// which spec.md §8 requires to equal the table's row_count.
func (m *PointerMap) Len() int { return m.count }

// Clear empties the map in place.
func (m *PointerMap) Clear() {
	m.buckets = make(map[RowHash][]RowPointer)
	m.count = 0
}

// Clone returns an independent deep copy. Tx-state shadow tables do not
// use it: CloneEmptyShadow gives them a fresh, empty pointer map.
func (m *PointerMap) Clone() *PointerMap {
	cp := NewPointerMap()
	for h, ptrs := range m.buckets {
		cp.buckets[h] = append([]RowPointer(nil), ptrs...)
	}
	cp.count = m.count
	return cp
}
