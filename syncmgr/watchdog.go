package syncmgr

import (
	"github.com/chn0318/partsync/partition"
)

// DefaultDetectSyncErrorCount is the number of consecutive no-progress
// polls before a long-term sync is declared stalled.
const DefaultDetectSyncErrorCount = 3

// SyncStatus is the watchdog's scratch record of the focused long-term
// sync, compared across successive polls.
type SyncStatus struct {
	pID        PartitionID
	ssn        int64
	chunkNum   int32
	startLSN   LSN
	endLSN     LSN
	errorCount int32
}

func (s *SyncStatus) clear() {
	s.pID = partition.UndefID
	s.ssn = -1
	s.chunkNum = 0
	s.startLSN = 0
	s.endLSN = 0
	s.errorCount = 0
}

// checkAndUpdate compares the observed context against the previous poll.
// A new (pID, ssn) pair or any advance in chunk count or streamed LSN range
// resets the strike count; otherwise a strike accrues, and once the strike
// count reaches DefaultDetectSyncErrorCount the context's partition is
// returned to signal an abort.
func (s *SyncStatus) checkAndUpdate(ctx *SyncContext) PartitionID {
	observedPID := ctx.PartitionID()
	observedSSN := ctx.SequentialNumber()
	chunkNum := ctx.ProcessedChunkNum()
	startLSN := ctx.StartLSN()
	endLSN := ctx.EndLSN()

	if s.pID != observedPID || s.ssn != observedSSN {
		s.pID = observedPID
		s.ssn = observedSSN
		s.chunkNum = chunkNum
		s.startLSN = startLSN
		s.endLSN = endLSN
		s.errorCount = 0
		return partition.UndefID
	}

	if chunkNum > s.chunkNum || startLSN > s.startLSN || endLSN > s.endLSN {
		s.chunkNum = chunkNum
		s.startLSN = startLSN
		s.endLSN = endLSN
		s.errorCount = 0
		return partition.UndefID
	}

	s.errorCount++
	if s.errorCount >= DefaultDetectSyncErrorCount {
		return s.pID
	}
	return partition.UndefID
}

// CheckCurrentSyncStatus observes the owner-side focused long-term sync.
// It returns the partition to abort, or partition.UndefID while progress
// is being made. Called from the watchdog tick.
func (m *Manager) CheckCurrentSyncStatus() PartitionID {
	pID, entry := m.registry.current(true)
	if pID == partition.UndefID || !entry.SyncID.Valid() {
		m.currentStatus.clear()
		return partition.UndefID
	}

	ctx := m.GetSyncContext(pID, entry.SyncID)
	if ctx == nil {
		m.currentStatus.clear()
		return partition.UndefID
	}

	stalled := m.currentStatus.checkAndUpdate(ctx)
	if stalled != partition.UndefID {
		m.log.Warn().
			Uint32("pId", stalled).
			Int64("ssn", ctx.SequentialNumber()).
			Str("context", ctx.Dump()).
			Msg("long-term sync made no progress, aborting")
	}
	return stalled
}
