package storage

import (
	"github.com/chn0318/partsync/partition"
)

// CheckpointRunner bridges the checkpoint service contract: a snapshot
// request freezes the store asynchronously and the completion callback
// posts the result back onto the requesting partition's group.
type CheckpointRunner struct {
	store      *MemStore
	onComplete func(pID partition.ID, ssn int64)
}

// NewCheckpointRunner creates a runner snapshotting store. onComplete is
// invoked off the caller's goroutine once the snapshot is frozen.
func NewCheckpointRunner(store *MemStore, onComplete func(pID partition.ID, ssn int64)) *CheckpointRunner {
	return &CheckpointRunner{store: store, onComplete: onComplete}
}

// RequestSyncCheckpoint implements syncmgr.CheckpointService.
func (r *CheckpointRunner) RequestSyncCheckpoint(pID partition.ID, ssn int64) error {
	go func() {
		r.store.Checkpoint(pID)
		r.onComplete(pID, ssn)
	}()
	return nil
}
