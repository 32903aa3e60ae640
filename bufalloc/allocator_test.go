package bufalloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAccounting struct {
	mu        sync.Mutex
	allocated map[uint32]uint64
	refs      map[uint32]int64
}

func newRecordingAccounting() *recordingAccounting {
	return &recordingAccounting{
		allocated: make(map[uint32]uint64),
		refs:      make(map[uint32]int64),
	}
}

func (r *recordingAccounting) StatAllocate(pID uint32, size uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocated[pID] += uint64(size)
	r.refs[pID]++
}

func (r *recordingAccounting) StatFree(pID uint32, size uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocated[pID] -= uint64(size)
	r.refs[pID]--
}

func TestAllocateExactLength(t *testing.T) {
	acct := newRecordingAccounting()
	a := New(acct, 0)

	buf, err := a.Allocate(3, 1000)
	require.NoError(t, err)
	assert.Len(t, buf, 1000)
	assert.GreaterOrEqual(t, cap(buf), 1024)

	// Accounting records the requested length, not the class size.
	assert.Equal(t, uint64(1000), acct.allocated[3])
	assert.Equal(t, int64(1), acct.refs[3])
	assert.Equal(t, uint64(1000), a.Outstanding())

	a.Free(3, buf)
	assert.Zero(t, acct.allocated[3])
	assert.Zero(t, acct.refs[3])
	assert.Zero(t, a.Outstanding())
}

func TestSmallRequestsShareTheMinimumClass(t *testing.T) {
	a := New(nil, 0)

	one, err := a.Allocate(0, 1)
	require.NoError(t, err)
	assert.Equal(t, ElementBoundary, cap(one))

	full, err := a.Allocate(0, ElementBoundary)
	require.NoError(t, err)
	assert.Equal(t, ElementBoundary, cap(full))

	over, err := a.Allocate(0, ElementBoundary+1)
	require.NoError(t, err)
	assert.Equal(t, 2*ElementBoundary, cap(over))
}

func TestFreeRecyclesBuffers(t *testing.T) {
	a := New(nil, 0)

	buf, err := a.Allocate(0, 4096)
	require.NoError(t, err)
	a.Free(0, buf)

	// The recycled buffer is reused for an equal-class request.
	again, err := a.Allocate(0, 4096)
	require.NoError(t, err)
	assert.Equal(t, &buf[:1][0], &again[:1][0])
}

func TestAllocationLimit(t *testing.T) {
	acct := newRecordingAccounting()
	a := New(acct, 1024)

	buf, err := a.Allocate(0, 1024)
	require.NoError(t, err)

	_, err = a.Allocate(0, 1)
	assert.ErrorIs(t, err, ErrLimit)
	// The failed allocation charged nothing.
	assert.Equal(t, uint64(1024), acct.allocated[0])

	a.Free(0, buf)
	_, err = a.Allocate(0, 512)
	assert.NoError(t, err)
}

func TestInvalidSizes(t *testing.T) {
	a := New(nil, 0)

	_, err := a.Allocate(0, 0)
	assert.ErrorIs(t, err, ErrLimit)
	_, err = a.Allocate(0, -5)
	assert.ErrorIs(t, err, ErrLimit)

	// Freeing nil is a no-op.
	a.Free(0, nil)
	assert.Zero(t, a.Outstanding())
}

func TestConcurrentAllocateFree(t *testing.T) {
	acct := newRecordingAccounting()
	a := New(acct, 0)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(pID uint32) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				buf, err := a.Allocate(pID, 300+i)
				if err != nil {
					t.Error(err)
					return
				}
				a.Free(pID, buf)
			}
		}(uint32(g))
	}
	wg.Wait()

	assert.Zero(t, a.Outstanding())
	for p := uint32(0); p < 8; p++ {
		assert.Zero(t, acct.allocated[p])
		assert.Zero(t, acct.refs[p])
	}
}
