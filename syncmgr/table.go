package syncmgr

import (
	"github.com/cockroachdb/errors"

	"github.com/chn0318/partsync/bufalloc"
)

const (
	// slotGrowth is the number of slots appended when a table runs out.
	slotGrowth = 128

	// maxContextsPerPartition bounds slot growth per partition.
	maxContextsPerPartition = 1 << 16
)

// contextTable is the per-partition context pool: a slab of slots,
// allocated by (id, version) and recycled through an index-linked free
// list. Mutation is sequential per partition group; the table itself is
// not locked.
type contextTable struct {
	pID        PartitionID
	numCounter int32 // next never-used raw slot
	freeList   int32 // head slot index of recycled contexts, -1 when empty
	numUsed    int32
	slots      []*SyncContext
	varAlloc   *bufalloc.Allocator
}

func newContextTable(pID PartitionID, varAlloc *bufalloc.Allocator) *contextTable {
	return &contextTable{
		pID:      pID,
		freeList: -1,
		varAlloc: varAlloc,
	}
}

// createSyncContext produces a live context for the given revision. A
// recycled slot has its version bumped so stale SyncIDs can no longer
// resolve to it.
func (t *contextTable) createSyncContext(ptRev Revision) (*SyncContext, error) {
	var ctx *SyncContext
	if t.freeList != -1 {
		ctx = t.slots[t.freeList]
		t.freeList = ctx.nextEmptyChain
		ctx.nextEmptyChain = -1
		ctx.version++
	} else {
		if t.numCounter >= maxContextsPerPartition {
			return nil, errors.Wrapf(ErrContextLimit,
				"pId=%d slots=%d", t.pID, t.numCounter)
		}
		if int(t.numCounter) == len(t.slots) {
			grown := make([]*SyncContext, len(t.slots)+slotGrowth)
			copy(grown, t.slots)
			for i := len(t.slots); i < len(grown); i++ {
				grown[i] = newSyncContext(int32(i))
			}
			t.slots = grown
		}
		ctx = t.slots[t.numCounter]
		t.numCounter++
	}
	ctx.used = true
	ctx.pID = t.pID
	ctx.ptRev = ptRev
	t.numUsed++
	return ctx, nil
}

// getSyncContext resolves (id, version) to its live context, or nil when
// the slot is dead or the version is stale.
func (t *contextTable) getSyncContext(id int32, version uint64) *SyncContext {
	if id < 0 || int(id) >= int(t.numCounter) {
		return nil
	}
	ctx := t.slots[id]
	if !ctx.used || ctx.version != version {
		return nil
	}
	return ctx
}

// removeSyncContext releases the context's buffers and returns its slot to
// the free list. Idempotent on already-removed contexts. The version is
// bumped on the next reuse, not here.
func (t *contextTable) removeSyncContext(ctx *SyncContext) {
	if !ctx.used {
		return
	}
	ctx.clear(t.varAlloc)
	ctx.used = false
	ctx.nextEmptyChain = t.freeList
	t.freeList = ctx.id
	t.numUsed--
}

// removeAll removes every live context.
func (t *contextTable) removeAll() {
	for i := int32(0); i < t.numCounter; i++ {
		t.removeSyncContext(t.slots[i])
	}
}

func (t *contextTable) usedNum() int32 { return t.numUsed }

// forEachLive calls fn for every live context.
func (t *contextTable) forEachLive(fn func(*SyncContext)) {
	for i := int32(0); i < t.numCounter; i++ {
		if t.slots[i].used {
			fn(t.slots[i])
		}
	}
}
