package txstore

import "fmt"

// TableError is the structural-error family: table-identity lookups
// that failed. Mirrors the teacher's domain.ErrTableNotFound shape —
// a concrete, inspectable struct rather than a bare errors.New.
type TableError struct {
	Kind    TableErrorKind
	TableId TableId
	Name    string
	Detail  string
}

type TableErrorKind uint8

const (
	TableIdNotFound TableErrorKind = iota
	TableNotFound
	TableRawSqlNotFound
	TableBflatn
	TableSystem
)

func (e *TableError) Error() string {
	switch e.Kind {
	case TableIdNotFound:
		return fmt.Sprintf("table error: id %d not found", e.TableId)
	case TableNotFound:
		return fmt.Sprintf("table error: %q not found", e.Name)
	case TableRawSqlNotFound:
		return fmt.Sprintf("table error: raw sql table %q not found", e.Name)
	case TableBflatn:
		return fmt.Sprintf("table error: bflatn decode failed: %s", e.Detail)
	default:
		return fmt.Sprintf("table error: system: %s", e.Detail)
	}
}

func ErrTableIdNotFound(id TableId) error {
	return &TableError{Kind: TableIdNotFound, TableId: id}
}

func ErrTableNotFound(name string) error {
	return &TableError{Kind: TableNotFound, Name: name}
}

// IndexError is the family of errors a TableIndex operation can raise.
type IndexError struct {
	Kind           IndexErrorKind
	IndexId        IndexId
	Key            Row
	ConstraintName string
	TableName      string
	Cols           []string
	Value          Value
	Detail         string
}

type IndexErrorKind uint8

const (
	IndexNotFound IndexErrorKind = iota
	IndexNotUnique
	IndexKeyNotFound
	IndexUniqueConstraintViolation
	IndexDecode
)

func (e *IndexError) Error() string {
	switch e.Kind {
	case IndexNotFound:
		return fmt.Sprintf("index error: index %d not found", e.IndexId)
	case IndexNotUnique:
		return fmt.Sprintf("index error: index %d is not unique", e.IndexId)
	case IndexKeyNotFound:
		return fmt.Sprintf("index error: key %v not found in index %d", e.Key, e.IndexId)
	case IndexUniqueConstraintViolation:
		return fmt.Sprintf("duplicate key value violates unique constraint %q on table %q columns %v: value %s",
			e.ConstraintName, e.TableName, e.Cols, e.Value)
	default:
		return fmt.Sprintf("index error: decode failed: %s", e.Detail)
	}
}

func ErrIndexNotFound(id IndexId) error {
	return &IndexError{Kind: IndexNotFound, IndexId: id}
}

func ErrIndexKeyNotFound(id IndexId, key Row) error {
	return &IndexError{Kind: IndexKeyNotFound, IndexId: id, Key: key}
}

func ErrUniqueConstraintViolation(constraintName, tableName string, cols []string, value Value) error {
	return &IndexError{
		Kind:           IndexUniqueConstraintViolation,
		ConstraintName: constraintName,
		TableName:      tableName,
		Cols:           cols,
		Value:          value,
	}
}

// SequenceError is the family of errors a sequence allocator can raise.
type SequenceError struct {
	Kind SequenceErrorKind
	Col  ColId
	Found Value
}

type SequenceErrorKind uint8

const (
	SequenceNotFound SequenceErrorKind = iota
	SequenceUnableToAllocate
	SequenceNotInteger
	SequenceIncrementIsZero
	SequenceMinMax
	SequenceMinStart
	SequenceMaxStart
)

func (e *SequenceError) Error() string {
	switch e.Kind {
	case SequenceNotFound:
		return "sequence error: not found"
	case SequenceUnableToAllocate:
		return "sequence error: unable to allocate a new value"
	case SequenceNotInteger:
		return fmt.Sprintf("sequence error: column %d is not an integer, found %s", e.Col, e.Found)
	case SequenceIncrementIsZero:
		return "sequence error: increment is zero"
	case SequenceMinMax:
		return "sequence error: min must be <= max"
	case SequenceMinStart:
		return "sequence error: start must be >= min"
	default:
		return "sequence error: start must be <= max"
	}
}

func ErrSequenceUnableToAllocate() error {
	return &SequenceError{Kind: SequenceUnableToAllocate}
}

// InsertError is the family of errors Table.Insert can raise.
type InsertError struct {
	Kind    InsertErrorKind
	Dup     RowPointer
	Wrapped error
}

type InsertErrorKind uint8

const (
	InsertDuplicate InsertErrorKind = iota
	InsertBflatn
	InsertIndexError
)

func (e *InsertError) Error() string {
	switch e.Kind {
	case InsertDuplicate:
		return fmt.Sprintf("insert error: duplicate row at %s", e.Dup)
	case InsertBflatn:
		return fmt.Sprintf("insert error: encode failed: %v", e.Wrapped)
	default:
		return fmt.Sprintf("insert error: %v", e.Wrapped)
	}
}

func (e *InsertError) Unwrap() error { return e.Wrapped }

func ErrDuplicate(ptr RowPointer) error {
	return &InsertError{Kind: InsertDuplicate, Dup: ptr}
}

func wrapIndexError(err error) error {
	return &InsertError{Kind: InsertIndexError, Wrapped: err}
}

// ReplayError is surfaced by the commitlog replay visitor (spec.md
// §4.11 / §6).
type ReplayError struct {
	Kind     ReplayErrorKind
	Expected uint64
	Got      uint64
	Wrapped  error
}

type ReplayErrorKind uint8

const (
	ReplayInvalidOffset ReplayErrorKind = iota
	ReplayDecode
	ReplayDb
	ReplayAny
)

func (e *ReplayError) Error() string {
	switch e.Kind {
	case ReplayInvalidOffset:
		return fmt.Sprintf("replay error: expected tx_offset %d, got %d", e.Expected, e.Got)
	case ReplayDecode:
		return fmt.Sprintf("replay error: decode failed: %v", e.Wrapped)
	case ReplayDb:
		return fmt.Sprintf("replay error: db: %v", e.Wrapped)
	default:
		return fmt.Sprintf("replay error: %v", e.Wrapped)
	}
}

func (e *ReplayError) Unwrap() error { return e.Wrapped }

func ErrInvalidOffset(expected, got uint64) error {
	return &ReplayError{Kind: ReplayInvalidOffset, Expected: expected, Got: got}
}

// PageError is the physical-error family from spec.md §4.1.
type PageError struct {
	Kind PageErrorKind
	Need uint32
	Have uint32
}

type PageErrorKind uint8

const (
	PageInsufficientFixedLenSpace PageErrorKind = iota
	PageInsufficientVarLenSpace
)

func (e *PageError) Error() string {
	if e.Kind == PageInsufficientFixedLenSpace {
		return fmt.Sprintf("page error: insufficient fixed-len space, need %d bytes", e.Need)
	}
	return fmt.Sprintf("page error: insufficient var-len space, need %d granules, have %d", e.Need, e.Have)
}

func ErrInsufficientFixedLenSpace(need uint32) error {
	return &PageError{Kind: PageInsufficientFixedLenSpace, Need: need}
}

func ErrInsufficientVarLenSpace(need, have uint32) error {
	return &PageError{Kind: PageInsufficientVarLenSpace, Need: need, Have: have}
}
