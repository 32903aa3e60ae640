package syncmgr

import "github.com/cockroachdb/errors"

// Error kinds. Recovery is always at the granularity of one context: a
// failed context is removed and the partition rejoins membership with a
// fresh revision.
var (
	// ErrInvalidPartition means the partition id is out of range or the
	// partition has not been created.
	ErrInvalidPartition = errors.New("invalid partition")

	// ErrContextLimit means context slot or buffer allocation exhaustion.
	ErrContextLimit = errors.New("sync context limit exceeded")

	// ErrIllegalOperation means the operation is not legal for the
	// partition's current role.
	ErrIllegalOperation = errors.New("operation not permitted for partition role")

	// ErrStaleMessage marks a message whose SyncID version, statement id
	// or ack is stale. Callers drop these silently; counters stay
	// unchanged.
	ErrStaleMessage = errors.New("stale sync message")

	// ErrPeerFailure is reported by the transport for an unreachable
	// peer; the affected context is removed as failed after timeout.
	ErrPeerFailure = errors.New("sync peer failure")

	// ErrInternal marks an allocator or invariant violation. It aborts
	// the enclosing context, never the process.
	ErrInternal = errors.New("internal sync error")
)
