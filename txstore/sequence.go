package txstore

import "sync"

// SequenceAllocationStep bounds how many values a sequence leases from
// its st_sequence row at a time, the same lease-a-bandwidth shape as
// the teacher's pkg/resource/badger.SequenceManager, which leases
// bandwidth from badger.DB.GetSequence (spec.md §4.8).
const SequenceAllocationStep = 100

// Sequence is one auto-increment generator's full state.
type Sequence struct {
	Id        SequenceId
	TableId   TableId
	Col       ColId
	Increment int64
	Start     int64
	Min       int64
	Max       int64

	// Allocated is the end of the currently leased range of values; it
	// is held in memory only and not written to the st_sequence row.
	// Value is the last value handed out (Start - Increment before the
	// first); it never exceeds Allocated.
	Allocated int64
	Value     int64
}

func newSequenceFromDef(d SequenceDef) *Sequence {
	return &Sequence{
		Id: d.Id, TableId: d.TableId, Col: d.Col,
		Increment: d.Increment, Start: d.Start, Min: d.Min, Max: d.Max,
		Allocated: d.Start - d.Increment,
		Value:     d.Start - d.Increment,
	}
}

// Validate enforces the structural invariants spec.md §6's
// SequenceError taxonomy names.
func (d SequenceDef) Validate() error {
	if d.Increment == 0 {
		return &SequenceError{Kind: SequenceIncrementIsZero}
	}
	if d.Min > d.Max {
		return &SequenceError{Kind: SequenceMinMax}
	}
	if d.Start < d.Min {
		return &SequenceError{Kind: SequenceMinStart}
	}
	if d.Start > d.Max {
		return &SequenceError{Kind: SequenceMaxStart}
	}
	return nil
}

// reallocate leases the next bandwidth of values by advancing
// Allocated by step, clamped to Max. Only the in-memory counter moves;
// no caller in this package writes the new Allocated value back into
// the st_sequence row.
func (s *Sequence) reallocate(step int64) bool {
	next := s.Allocated + s.Increment*step
	if s.Increment > 0 && next > s.Max {
		next = s.Max
	}
	if s.Increment < 0 && next < s.Min {
		next = s.Min
	}
	if next == s.Allocated {
		return false
	}
	s.Allocated = next
	return true
}

// next returns the next value to hand out, advancing Value, leasing a
// fresh bandwidth first if the in-memory counter has caught up to the
// last durably-reserved value.
func (s *Sequence) next(step int64) (int64, error) {
	candidate := s.Value + s.Increment
	overshoots := func(v int64) bool {
		if s.Increment > 0 {
			return v > s.Allocated
		}
		return v < s.Allocated
	}
	if overshoots(candidate) {
		if !s.reallocate(step) {
			return 0, ErrSequenceUnableToAllocate()
		}
	}
	candidate = s.Value + s.Increment
	if s.Increment > 0 && candidate > s.Max {
		return 0, ErrSequenceUnableToAllocate()
	}
	if s.Increment < 0 && candidate < s.Min {
		return 0, ErrSequenceUnableToAllocate()
	}
	s.Value = candidate
	return candidate, nil
}

// SequenceState holds every sequence in the database under one mutex,
// the second lock in the §5 ordering (committed state, then sequence
// state).
type SequenceState struct {
	mu        sync.Mutex
	sequences map[SequenceId]*Sequence
	step      int64
}

// NewSequenceState creates a sequence state leasing bandwidth in steps
// of SequenceAllocationStep. Use NewSequenceStateWithStep to override
// it, e.g. from txstore.Options.SequenceAllocationStep.
func NewSequenceState() *SequenceState {
	return NewSequenceStateWithStep(SequenceAllocationStep)
}

// NewSequenceStateWithStep creates a sequence state leasing bandwidth
// in steps of the given size (<= 0 falls back to
// SequenceAllocationStep).
func NewSequenceStateWithStep(step int64) *SequenceState {
	if step <= 0 {
		step = SequenceAllocationStep
	}
	return &SequenceState{sequences: make(map[SequenceId]*Sequence), step: step}
}

func (s *SequenceState) Add(d SequenceDef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[d.Id] = newSequenceFromDef(d)
}

func (s *SequenceState) Remove(id SequenceId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sequences, id)
}

// Next allocates and returns the next value for sequence id.
func (s *SequenceState) Next(id SequenceId) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if !ok {
		return 0, &SequenceError{Kind: SequenceNotFound}
	}
	return seq.next(s.step)
}

// Snapshot returns a value-copy of a sequence's counters, used to save
// pre-transaction state for rollback (spec.md §4.9 "reset sequence
// allocators... to their pre-tx counter value").
func (s *SequenceState) Snapshot(id SequenceId) (Sequence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if !ok {
		return Sequence{}, false
	}
	return *seq, true
}

// Restore overwrites a sequence's live counters with a saved snapshot.
func (s *SequenceState) Restore(saved Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sequences[saved.Id]; ok {
		*cur = saved
	} else {
		cp := saved
		s.sequences[saved.Id] = &cp
	}
}

// AllocatedValue exposes the in-memory leased watermark. Nothing in
// this package writes it into the st_sequence row;
// RebuildStateAfterReplay reads the allocated column back from that row.
func (s *SequenceState) AllocatedValue(id SequenceId) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if !ok {
		return 0, false
	}
	return seq.Allocated, true
}
