package txstore

import "github.com/google/uuid"

// Options configures a Database. txstore is a library, not a process,
// so it has no config file of its own (spec.md never describes one);
// a host that does load JSON configuration can decode straight into
// Options with encoding/json, the same codec the teacher's
// pkg/config.Load uses for its own MVCCConfig, since every field below
// is already JSON-tagged.
type Options struct {
	// BlobThreshold is the byte length past which a var-len value is
	// spilled to the blob store instead of inlined in a page granule
	// chain (spec.md §4.2). Zero/negative falls back to
	// DefaultBlobThreshold.
	BlobThreshold int `json:"blob_threshold"`

	// SequenceAllocationStep overrides how many values a sequence
	// leases from its st_sequence row at a time (spec.md §4.8).
	// Zero/negative falls back to SequenceAllocationStep.
	SequenceAllocationStep int64 `json:"sequence_allocation_step"`

	// Identity is the database's stable identity, carried into
	// snapshots (spec.md §6). A zero UUID gets a fresh uuid.New() at
	// NewDatabaseWithOptions time.
	Identity uuid.UUID `json:"-"`

	// Blobs is the blob store collaborator (spec.md §4.2). Required;
	// NewDatabaseWithOptions panics if nil, since a database cannot
	// function without somewhere to put spilled var-len values.
	Blobs BlobStore `json:"-"`

	// Observer receives lock-wait notifications (spec.md §5 "lock
	// wait time is measured"). Nil installs a no-op observer.
	Observer LockWaitObserver `json:"-"`

	// Logger receives the occasional warning txstore itself emits
	// (e.g. ReplayVisitor skipping a delete whose row is already
	// gone). Nil installs a logger over log.Default(), matching the
	// teacher's own stdlib-logging idiom.
	Logger Logger `json:"-"`
}

// NewDatabaseWithOptions builds a Database from Options, applying the
// same defaults NewDatabase applies to its positional parameters.
func NewDatabaseWithOptions(opts Options) *Database {
	if opts.Blobs == nil {
		panic("txstore: Options.Blobs is required")
	}
	identity := opts.Identity
	if identity == uuid.Nil {
		identity = uuid.New()
	}
	blobThreshold := opts.BlobThreshold
	if blobThreshold <= 0 {
		blobThreshold = DefaultBlobThreshold
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopLockWaitObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = defaultLogger()
	}
	return &Database{
		Identity:      identity,
		committed:     NewCommittedState(opts.Blobs, blobThreshold),
		seqs:          NewSequenceStateWithStep(opts.SequenceAllocationStep),
		blobs:         opts.Blobs,
		blobThreshold: blobThreshold,
		observer:      observer,
		logger:        logger,
		nextObjectId:  FirstNonSystemId,
	}
}
