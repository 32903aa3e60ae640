package syncmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chn0318/partsync/bufalloc"
	"github.com/chn0318/partsync/partition"
)

func newTestAllocator(partitionNum uint32) (*bufalloc.Allocator, *OptStat) {
	stat := NewOptStat(partitionNum)
	return bufalloc.New(stat, 0), stat
}

func TestAckBarrierDiscipline(t *testing.T) {
	ctx := newSyncContext(0)
	for _, n := range []NodeID{1, 2, 3} {
		ctx.IncrementCounter(n)
	}
	require.Equal(t, 3, ctx.Counter())

	// V-ACK: after k distinct acks the counter is n-k.
	for i, n := range []NodeID{2, 1, 3} {
		crossed, ok := ctx.DecrementCounter(n)
		assert.True(t, ok)
		assert.Equal(t, 2-i, ctx.Counter())
		assert.Equal(t, i == 2, crossed)
	}

	// A further ack after the barrier crossed is a duplicate.
	_, ok := ctx.DecrementCounter(1)
	assert.False(t, ok)
	assert.Equal(t, 0, ctx.Counter())
}

func TestDuplicateAckDoesNotUnderflow(t *testing.T) {
	ctx := newSyncContext(0)
	ctx.IncrementCounter(1)
	ctx.IncrementCounter(2)

	_, ok := ctx.DecrementCounter(1)
	require.True(t, ok)
	_, ok = ctx.DecrementCounter(1)
	assert.False(t, ok)
	assert.Equal(t, 1, ctx.Counter())

	_, ok = ctx.DecrementCounter(9)
	assert.False(t, ok)
	assert.Equal(t, 1, ctx.Counter())
}

func TestDuplicateNodeIDCreditsEarliestUnacked(t *testing.T) {
	// Duplicate node entries are legal during topology changes; the
	// earliest unacked entry is the one credited.
	ctx := newSyncContext(0)
	ctx.IncrementCounter(7)
	ctx.IncrementCounter(7)
	require.Equal(t, 2, ctx.Counter())

	crossed, ok := ctx.DecrementCounter(7)
	assert.True(t, ok)
	assert.False(t, crossed)

	crossed, ok = ctx.DecrementCounter(7)
	assert.True(t, ok)
	assert.True(t, crossed)

	_, ok = ctx.DecrementCounter(7)
	assert.False(t, ok)
}

func TestResetCounterBeginsFreshBarrier(t *testing.T) {
	ctx := newSyncContext(0)
	ctx.IncrementCounter(1)
	ctx.IncrementCounter(2)
	_, ok := ctx.DecrementCounter(1)
	require.True(t, ok)
	_, ok = ctx.DecrementCounter(2)
	require.True(t, ok)
	require.Equal(t, 0, ctx.Counter())

	ctx.ResetCounter()
	assert.Equal(t, 2, ctx.Counter())
	crossed, ok := ctx.DecrementCounter(1)
	assert.True(t, ok)
	assert.False(t, crossed)
	crossed, ok = ctx.DecrementCounter(2)
	assert.True(t, ok)
	assert.True(t, crossed)
}

func TestBeginBarrierOverSubset(t *testing.T) {
	ctx := newSyncContext(0)
	for _, n := range []NodeID{1, 2, 3} {
		ctx.IncrementCounter(n)
	}
	ctx.BeginBarrier([]NodeID{1, 3})
	assert.Equal(t, 2, ctx.Counter())

	// The excluded peer counts as already acked.
	_, ok := ctx.DecrementCounter(2)
	assert.False(t, ok)

	crossed, ok := ctx.DecrementCounter(1)
	require.True(t, ok)
	assert.False(t, crossed)
	crossed, ok = ctx.DecrementCounter(3)
	require.True(t, ok)
	assert.True(t, crossed)
}

func TestStatementIDMonotonic(t *testing.T) {
	ctx := newSyncContext(0)
	var last StatementID
	for i := 0; i < 100; i++ {
		next := ctx.CreateStatementID()
		assert.Greater(t, next, last)
		assert.Equal(t, next, ctx.StatementID())
		last = next
	}
}

func TestCheckpointPendingCompletedInvariant(t *testing.T) {
	ctx := newSyncContext(0)
	require.NoError(t, ctx.SetSyncCheckpointPending(true))
	assert.True(t, ctx.IsSyncCheckpointPending())

	// Completion clears pending: pending implies not completed.
	ctx.SetSyncCheckpointCompleted()
	assert.True(t, ctx.IsSyncCheckpointCompleted())
	assert.False(t, ctx.IsSyncCheckpointPending())

	// Re-arming after completion violates the invariant.
	err := ctx.SetSyncCheckpointPending(true)
	assert.ErrorIs(t, err, ErrInternal)
	assert.False(t, ctx.IsSyncCheckpointPending())
}

func TestBufferHandoff(t *testing.T) {
	alloc, stat := newTestAllocator(4)
	ctx := newSyncContext(0)
	ctx.pID = 2

	payload := make([]byte, 1000)
	require.NoError(t, ctx.CopyLogBuffer(alloc, payload))
	buf, size := ctx.LogBuffer()
	assert.Equal(t, int32(1000), size)
	assert.Len(t, buf, 1000)
	assert.Equal(t, uint64(1000), stat.AllocateSize(2))
	assert.Equal(t, int64(1), stat.ReferenceCount(2))

	// Replacing the buffer frees the old one: never more than one held.
	require.NoError(t, ctx.CopyLogBuffer(alloc, make([]byte, 500)))
	_, size = ctx.LogBuffer()
	assert.Equal(t, int32(500), size)
	assert.Equal(t, uint64(500), stat.AllocateSize(2))
	assert.Equal(t, int64(1), stat.ReferenceCount(2))

	// Chunk buffer is independent of the log buffer.
	require.NoError(t, ctx.CopyChunkBuffer(alloc, make([]byte, 2048), 1024, 2))
	assert.Equal(t, uint64(500+2048), stat.AllocateSize(2))
	assert.Equal(t, int64(2), stat.ReferenceCount(2))
	assert.Equal(t, int32(2), ctx.ChunkNum())
	assert.Len(t, ctx.ChunkAt(1), 1024)
	assert.Nil(t, ctx.ChunkAt(2))

	// copyLogBuffer then freeBuffer leaves statistics at baseline.
	ctx.FreeBuffer(alloc, LogBuffer)
	ctx.FreeBuffer(alloc, ChunkBuffer)
	assert.Zero(t, stat.AllocateSize(2))
	assert.Zero(t, stat.ReferenceCount(2))

	// Freeing an absent buffer is safe.
	ctx.FreeBuffer(alloc, LogBuffer)
	assert.Zero(t, stat.AllocateSize(2))
}

func TestContextClearReleasesEverything(t *testing.T) {
	alloc, stat := newTestAllocator(2)
	ctx := newSyncContext(3)
	ctx.pID = 1
	ctx.IncrementCounter(4)
	require.NoError(t, ctx.CopyLogBuffer(alloc, make([]byte, 300)))
	require.NoError(t, ctx.CopyChunkBuffer(alloc, make([]byte, 600), 600, 1))
	ctx.IncProcessedLogNum(300)
	ctx.SetProcessedLSN(10, 20)
	ctx.SetSendReady()

	ctx.clear(alloc)

	assert.Zero(t, stat.AllocateSize(1))
	assert.Zero(t, stat.ReferenceCount(1))
	assert.Equal(t, 0, ctx.Counter())
	assert.Zero(t, ctx.ProcessedLogNum())
	assert.Zero(t, ctx.StartLSN())
	assert.Zero(t, ctx.EndLSN())
	assert.Equal(t, partition.UndefNodeID, ctx.RecvNodeID())
	assert.False(t, ctx.IsSendReady())
	assert.Equal(t, int32(3), ctx.ID())
}

func TestResetProcessedChunkNum(t *testing.T) {
	ctx := newSyncContext(0)
	ctx.SetChunkInfo(10, 256)
	ctx.IncProcessedChunkNum(4)
	require.Equal(t, int32(4), ctx.ProcessedChunkNum())

	ctx.ResetProcessedChunkNum()
	assert.Zero(t, ctx.ProcessedChunkNum())
	assert.Equal(t, int32(10), ctx.ChunkNum())
}
