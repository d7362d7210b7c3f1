package cache

// constError is an immutable error type for sentinel errors.
// It implements the error interface and provides compile-time safety.
type constError string

func (e constError) Error() string { return string(e) }

// Sentinel errors returned by the cache engine. All are comparable with
// errors.Is().
var (
	// ErrFetch wraps any failure of the backing data service. The cache is
	// left untouched when it occurs; the last good bucket keeps serving.
	ErrFetch = constError("fetch from backing service failed")

	// ErrSessionClosed indicates an operation on a session whose scheduler
	// has already been stopped via Close.
	ErrSessionClosed = constError("session is closed")

	// ErrNoSnapshot indicates the persistence slot does not exist yet.
	ErrNoSnapshot = constError("no persisted snapshot")

	// ErrSnapshotCorrupt indicates the persistence slot exists but cannot be
	// decoded. Loading falls back to an empty cache.
	ErrSnapshotCorrupt = constError("persisted snapshot is corrupt")

	// ErrSnapshotVersion indicates the persisted snapshot was written by an
	// incompatible schema version.
	ErrSnapshotVersion = constError("persisted snapshot has incompatible version")

	// ErrUnknownDomain indicates a snapshot domain with no registered codec.
	ErrUnknownDomain = constError("no codec registered for domain")

	// ErrBadInstant indicates a value that cannot be normalized to a time
	// instant (unsupported type or unparseable text).
	ErrBadInstant = constError("value is not a recognizable instant")
)
