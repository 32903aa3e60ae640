package syncmgr

import (
	"sync"

	"github.com/chn0318/partsync/partition"
)

// LongSyncEntry records the unique long-term sync of one side (owner or
// catchup) currently in flight for one partition.
type LongSyncEntry struct {
	SyncID           SyncID
	PtRev            Revision
	SequentialNumber int64
	IsOwner          bool
}

func emptyLongSyncEntry() LongSyncEntry {
	return LongSyncEntry{SyncID: UndefSyncID, SequentialNumber: -1, IsOwner: true}
}

// longSyncRegistry tracks per partition the unique owner-side and
// catchup-side long-term sync, plus the single "focus" partition per side
// the engine serializes long-term work on. The watchdog reads under the
// read lock; registration mutates under the write lock.
type longSyncRegistry struct {
	mu sync.RWMutex

	ownerEntries   []LongSyncEntry
	catchupEntries []LongSyncEntry

	currentOwnerPID   PartitionID
	currentOwnerSSN   int64
	currentCatchupPID PartitionID
	currentCatchupSSN int64
}

func newLongSyncRegistry(partitionNum uint32) *longSyncRegistry {
	r := &longSyncRegistry{
		ownerEntries:      make([]LongSyncEntry, partitionNum),
		catchupEntries:    make([]LongSyncEntry, partitionNum),
		currentOwnerPID:   partition.UndefID,
		currentOwnerSSN:   -1,
		currentCatchupPID: partition.UndefID,
		currentCatchupSSN: -1,
	}
	for i := range r.ownerEntries {
		r.ownerEntries[i] = emptyLongSyncEntry()
		r.catchupEntries[i] = emptyLongSyncEntry()
	}
	return r
}

// register records ctx as the current long-term sync of its side for pID
// and focuses that side on pID. Returns false when a different long-term
// sync of the same side is still registered for pID.
func (r *longSyncRegistry) register(pID PartitionID, ctx *SyncContext) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.sideEntries(ctx.roleStatus == partition.RoleOwner)
	if entries[pID].SyncID.Valid() && entries[pID].SyncID != ctx.SyncID() {
		return false
	}
	entries[pID] = LongSyncEntry{
		SyncID:           ctx.SyncID(),
		PtRev:            ctx.ptRev,
		SequentialNumber: ctx.ssn,
		IsOwner:          ctx.roleStatus == partition.RoleOwner,
	}
	if ctx.roleStatus == partition.RoleOwner {
		r.currentOwnerPID = pID
		r.currentOwnerSSN = ctx.ssn
	} else {
		r.currentCatchupPID = pID
		r.currentCatchupSSN = ctx.ssn
	}
	return true
}

// reset clears the entry of the given side for pID, dropping the focus
// when it pointed there.
func (r *longSyncRegistry) reset(pID PartitionID, isOwner bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sideEntries(isOwner)[pID] = emptyLongSyncEntry()
	if isOwner && r.currentOwnerPID == pID {
		r.currentOwnerPID = partition.UndefID
		r.currentOwnerSSN = -1
	}
	if !isOwner && r.currentCatchupPID == pID {
		r.currentCatchupPID = partition.UndefID
		r.currentCatchupSSN = -1
	}
}

// entry returns the registered long-term sync of the given side for pID.
func (r *longSyncRegistry) entry(pID PartitionID, isOwner bool) LongSyncEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sideEntries(isOwner)[pID]
}

// current returns the focus partition of the given side and its entry.
func (r *longSyncRegistry) current(isOwner bool) (PartitionID, LongSyncEntry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pID PartitionID
	if isOwner {
		pID = r.currentOwnerPID
	} else {
		pID = r.currentCatchupPID
	}
	if pID == partition.UndefID {
		return partition.UndefID, emptyLongSyncEntry()
	}
	return pID, r.sideEntries(isOwner)[pID]
}

// sideEntries must be called with r.mu held.
func (r *longSyncRegistry) sideEntries(isOwner bool) []LongSyncEntry {
	if isOwner {
		return r.ownerEntries
	}
	return r.catchupEntries
}
