// Package bufalloc provides the sized-buffer allocator used for log and
// chunk payloads during partition synchronization. Buffers come from
// power-of-two size classes and every allocation is charged to the owning
// partition through an accounting hook.
package bufalloc

import (
	"math/bits"
	"sync"

	"github.com/cockroachdb/errors"
)

const (
	// ElementBoundary is the smallest class size; requests below it are
	// rounded up to it.
	ElementBoundary = 256

	// ClassChunkSize is the number of bytes carved at once when a size
	// class runs dry.
	ClassChunkSize = 1 << 20

	// ReserveSize is the number of bytes pre-carved at construction.
	ReserveSize = 2 << 20

	maxClassSize = 1 << 26

	numClasses = 19 // 256 B .. 64 MiB
)

// ErrLimit is returned when an allocation would exceed the configured
// outstanding-bytes limit.
var ErrLimit = errors.New("bufalloc: allocation limit exceeded")

// Accounting receives a callback for every allocation and free, tagged with
// the partition the buffer belongs to and the exact requested length.
type Accounting interface {
	StatAllocate(pID uint32, size uint32)
	StatFree(pID uint32, size uint32)
}

// Allocator is a thread-safe variable-size allocator with per-partition
// accounting. It is shared across partition groups; mutation is serialized
// internally.
type Allocator struct {
	mu          sync.Mutex
	freeLists   [numClasses][][]byte
	outstanding uint64
	limit       uint64 // 0 means unlimited
	acct        Accounting
}

// New creates an allocator charging all traffic to acct. limit bounds total
// outstanding bytes; zero disables the bound.
func New(acct Accounting, limit uint64) *Allocator {
	a := &Allocator{acct: acct, limit: limit}
	reserved := 0
	for reserved < ReserveSize {
		a.carve(0)
		reserved += ClassChunkSize
	}
	return a
}

// classIndex maps a request size to its size class. Class c holds buffers
// of capacity ElementBoundary << c.
func classIndex(size int) int {
	if size <= ElementBoundary {
		return 0
	}
	return bits.Len(uint(size-1)) - 8
}

func classSize(class int) int {
	return ElementBoundary << class
}

// carve refills the free list of class with one chunk worth of buffers.
func (a *Allocator) carve(class int) {
	cs := classSize(class)
	n := ClassChunkSize / cs
	if n == 0 {
		n = 1
	}
	backing := make([]byte, n*cs)
	for i := 0; i < n; i++ {
		a.freeLists[class] = append(a.freeLists[class], backing[i*cs:i*cs:i*cs+cs])
	}
}

// Allocate returns a buffer of exactly size bytes charged to pID. The
// backing capacity is the class size; Free recovers it from cap.
func (a *Allocator) Allocate(pID uint32, size int) ([]byte, error) {
	if size <= 0 || size > maxClassSize {
		return nil, errors.Wrapf(ErrLimit, "invalid allocation size %d", size)
	}
	class := classIndex(size)

	a.mu.Lock()
	if a.limit != 0 && a.outstanding+uint64(size) > a.limit {
		a.mu.Unlock()
		return nil, errors.Wrapf(ErrLimit, "outstanding=%d request=%d limit=%d",
			a.outstanding, size, a.limit)
	}
	if len(a.freeLists[class]) == 0 {
		a.carve(class)
	}
	last := len(a.freeLists[class]) - 1
	buf := a.freeLists[class][last]
	a.freeLists[class][last] = nil
	a.freeLists[class] = a.freeLists[class][:last]
	a.outstanding += uint64(size)
	a.mu.Unlock()

	if a.acct != nil {
		a.acct.StatAllocate(pID, uint32(size))
	}
	return buf[:size], nil
}

// Free returns buf to its size class and charges len(buf) back to pID.
// Freeing a nil buffer is a no-op.
func (a *Allocator) Free(pID uint32, buf []byte) {
	if buf == nil {
		return
	}
	size := len(buf)
	class := classIndex(cap(buf))

	a.mu.Lock()
	a.freeLists[class] = append(a.freeLists[class], buf[:0:cap(buf)])
	a.outstanding -= uint64(size)
	a.mu.Unlock()

	if a.acct != nil {
		a.acct.StatFree(pID, uint32(size))
	}
}

// Outstanding reports total bytes currently allocated.
func (a *Allocator) Outstanding() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outstanding
}
