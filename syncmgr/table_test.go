package syncmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(pID PartitionID) *contextTable {
	alloc, _ := newTestAllocator(pID + 1)
	return newContextTable(pID, alloc)
}

func TestTableCreateAndResolve(t *testing.T) {
	tbl := newTestTable(0)

	ctx, err := tbl.createSyncContext(5)
	require.NoError(t, err)
	require.NotNil(t, ctx)
	assert.True(t, ctx.Used())
	assert.Equal(t, Revision(5), ctx.Revision())
	assert.Equal(t, int32(1), tbl.usedNum())

	// V-ID: the context resolves through its own (id, version).
	got := tbl.getSyncContext(ctx.ID(), ctx.Version())
	assert.Same(t, ctx, got)

	// Wrong version or out-of-range id resolves to nothing.
	assert.Nil(t, tbl.getSyncContext(ctx.ID(), ctx.Version()+1))
	assert.Nil(t, tbl.getSyncContext(-1, 0))
	assert.Nil(t, tbl.getSyncContext(999, 0))
}

func TestTableRecycleBumpsVersion(t *testing.T) {
	tbl := newTestTable(0)

	ctx, err := tbl.createSyncContext(1)
	require.NoError(t, err)
	id, version := ctx.ID(), ctx.Version()

	tbl.removeSyncContext(ctx)
	assert.Equal(t, int32(0), tbl.usedNum())

	// V-STALE: the final version never resolves again.
	assert.Nil(t, tbl.getSyncContext(id, version))

	reused, err := tbl.createSyncContext(2)
	require.NoError(t, err)
	assert.Equal(t, id, reused.ID())
	assert.Equal(t, version+1, reused.Version())

	// The stale version still fails even though the slot is live again.
	assert.Nil(t, tbl.getSyncContext(id, version))
	assert.Same(t, reused, tbl.getSyncContext(id, version+1))
}

func TestTableFreeListIsLIFO(t *testing.T) {
	tbl := newTestTable(0)

	a, err := tbl.createSyncContext(1)
	require.NoError(t, err)
	b, err := tbl.createSyncContext(1)
	require.NoError(t, err)
	c, err := tbl.createSyncContext(1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), tbl.usedNum())

	tbl.removeSyncContext(a)
	tbl.removeSyncContext(c)

	// The most recently freed slot is reused first.
	reused, err := tbl.createSyncContext(2)
	require.NoError(t, err)
	assert.Equal(t, c.ID(), reused.ID())

	reused2, err := tbl.createSyncContext(2)
	require.NoError(t, err)
	assert.Equal(t, a.ID(), reused2.ID())

	_ = b
	assert.Equal(t, int32(3), tbl.usedNum())
}

func TestTableGrowsBySlotBlocks(t *testing.T) {
	tbl := newTestTable(0)

	ctxs := make([]*SyncContext, 0, slotGrowth+1)
	for i := 0; i < slotGrowth+1; i++ {
		ctx, err := tbl.createSyncContext(1)
		require.NoError(t, err)
		assert.Equal(t, int32(i), ctx.ID())
		ctxs = append(ctxs, ctx)
	}
	assert.Equal(t, int32(slotGrowth+1), tbl.usedNum())
	assert.Len(t, tbl.slots, 2*slotGrowth)

	for _, ctx := range ctxs {
		assert.Same(t, ctx, tbl.getSyncContext(ctx.ID(), ctx.Version()))
	}
}

func TestTableRemoveIdempotent(t *testing.T) {
	tbl := newTestTable(0)
	ctx, err := tbl.createSyncContext(1)
	require.NoError(t, err)

	tbl.removeSyncContext(ctx)
	tbl.removeSyncContext(ctx)
	assert.Equal(t, int32(0), tbl.usedNum())

	// The slot still comes back exactly once.
	r1, err := tbl.createSyncContext(2)
	require.NoError(t, err)
	r2, err := tbl.createSyncContext(2)
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID(), r2.ID())
}
