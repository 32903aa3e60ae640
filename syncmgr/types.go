// Package syncmgr implements the partition synchronization manager: the
// in-memory coordination fabric that brings a partition replica into
// agreement with the current owner after membership or role changes.
//
// Two protocols are multiplexed here. Short-term sync streams missing log
// records to freshly assigned backups and completes within seconds.
// Long-term sync seeds a catchup replica from a storage snapshot followed
// by redo log and may run for hours alongside normal traffic.
package syncmgr

import (
	"fmt"

	"github.com/chn0318/partsync/partition"
)

// Mode distinguishes the two synchronization protocols.
type Mode int8

const (
	ModeShorttermSync Mode = iota
	ModeLongtermSync
)

func (m Mode) String() string {
	if m == ModeShorttermSync {
		return "SHORT_TERM_SYNC"
	}
	return "LONG_TERM_SYNC"
}

// StatementID tags each emission of a context so stale replies can be
// filtered.
type StatementID = uint64

// Operation enumerates the typed operations delivered to the manager. The
// numeric values are wire-visible and assigned sequentially from zero.
type Operation int32

const (
	OpShorttermSyncRequest Operation = iota
	OpShorttermSyncStart
	OpShorttermSyncStartAck
	OpShorttermSyncLog
	OpShorttermSyncLogAck
	OpShorttermSyncEnd
	OpShorttermSyncEndAck
	OpLongtermSyncRequest
	OpLongtermSyncStart
	OpLongtermSyncStartAck
	OpLongtermSyncChunk
	OpLongtermSyncChunkAck
	OpLongtermSyncLog
	OpLongtermSyncLogAck
	OpSyncTimeout
	OpDropPartition
	OpLongtermSyncPrepareAck
	numOperations
)

var operationNames = [...]string{
	"SHORTTERM_SYNC_REQUEST",
	"SHORTTERM_SYNC_START",
	"SHORTTERM_SYNC_START_ACK",
	"SHORTTERM_SYNC_LOG",
	"SHORTTERM_SYNC_LOG_ACK",
	"SHORTTERM_SYNC_END",
	"SHORTTERM_SYNC_END_ACK",
	"LONGTERM_SYNC_REQUEST",
	"LONGTERM_SYNC_START",
	"LONGTERM_SYNC_START_ACK",
	"LONGTERM_SYNC_CHUNK",
	"LONGTERM_SYNC_CHUNK_ACK",
	"LONGTERM_SYNC_LOG",
	"LONGTERM_SYNC_LOG_ACK",
	"SYNC_TIMEOUT",
	"DROP_PARTITION",
	"LONGTERM_SYNC_PREPARE_ACK",
}

func (op Operation) String() string {
	if op < 0 || op >= numOperations {
		return fmt.Sprintf("Operation(%d)", int32(op))
	}
	return operationNames[op]
}

// SyncID identifies a sync context slot together with the generation stamp
// that makes reused slots safe to dereference.
type SyncID struct {
	ContextID      int32
	ContextVersion uint64
}

const (
	// UndefContextID marks an unset SyncID.
	UndefContextID int32 = -1

	// InitialContextVersion is the generation of a never-recycled slot.
	InitialContextVersion uint64 = 0
)

// UndefSyncID is the value every unset SyncID carries. It is not the Go
// zero value: SyncID{} addresses slot 0 at version 0 and is valid.
var UndefSyncID = SyncID{ContextID: UndefContextID, ContextVersion: InitialContextVersion}

func (s SyncID) Valid() bool {
	return s.ContextID != UndefContextID
}

func (s SyncID) String() string {
	return fmt.Sprintf("{contextId:%d, version:%d}", s.ContextID, s.ContextVersion)
}

// LongtermSyncInfo is the watchdog correlation payload attached to
// long-term sync operations. Fields travel positionally on the wire.
type LongtermSyncInfo struct {
	ContextID            int32
	ContextVersion       uint64
	SyncSequentialNumber int64
}

func (i LongtermSyncInfo) SyncID() SyncID {
	return SyncID{ContextID: i.ContextID, ContextVersion: i.ContextVersion}
}

func (i LongtermSyncInfo) String() string {
	return fmt.Sprintf("%d, %d, %d", i.ContextID, i.ContextVersion, i.SyncSequentialNumber)
}

// Aliases for the cluster-wide identifier types.
type (
	PartitionID = partition.ID
	NodeID      = partition.NodeID
	LSN         = partition.LSN
	Revision    = partition.Revision
)
