package syncmgr

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/chn0318/partsync/bufalloc"
	"github.com/chn0318/partsync/partition"
)

// BufferKind selects which payload buffer of a context an operation targets.
type BufferKind int8

const (
	LogBuffer BufferKind = iota
	ChunkBuffer
)

// Stopwatch measures elapsed time at nanosecond resolution.
type Stopwatch struct {
	startedAt time.Time
}

func (w *Stopwatch) Reset() { w.startedAt = time.Time{} }

func (w *Stopwatch) Start() { w.startedAt = time.Now() }

func (w *Stopwatch) ElapsedNanos() int64 {
	if w.startedAt.IsZero() {
		return 0
	}
	return time.Since(w.startedAt).Nanoseconds()
}

// sendBackup tracks one downstream peer of a barrier: a backup during
// short-term sync, or the single catchup during long-term sync.
type sendBackup struct {
	nodeID       NodeID
	acked        bool
	lsn          LSN
	backupSyncID SyncID
}

// SyncContext is the full state of one in-flight synchronization episode on
// one node. Contexts live in slab slots owned by a per-partition table; a
// context is addressable only while used is set and only through a SyncID
// carrying the current slot version.
type SyncContext struct {
	id      int32
	pID     PartitionID
	version uint64
	used    bool

	numSendBackup uint32
	nextStmtID    StatementID
	recvNodeID    NodeID

	cpCompleted    bool
	cpPending      bool
	startCompleted bool

	nextEmptyChain int32 // free-list successor slot index, -1 at tail
	ptRev          Revision

	sendBackups []sendBackup

	logBuffer     []byte
	logBufferSize int32

	chunkBuffer     []byte
	chunkBufferSize int32
	chunkBaseSize   int32
	chunkNum        int32
	chunkNo         int32

	mode       Mode
	roleStatus partition.Role

	processedChunkNum int32
	processedLogNum   int32
	processedLogSize  int64

	actualLogTime   int64 // nanoseconds
	actualChunkTime int64
	chunkLeadTime   int64
	totalTime       int64

	startLSN LSN
	endLSN   LSN

	ssn        int64
	watch      Stopwatch
	roundWatch Stopwatch

	sendReady bool
}

func newSyncContext(id int32) *SyncContext {
	return &SyncContext{
		id:             id,
		version:        InitialContextVersion,
		recvNodeID:     partition.UndefNodeID,
		nextEmptyChain: -1,
	}
}

func (c *SyncContext) ID() int32              { return c.id }
func (c *SyncContext) Version() uint64        { return c.version }
func (c *SyncContext) PartitionID() PartitionID { return c.pID }
func (c *SyncContext) Used() bool             { return c.used }
func (c *SyncContext) Mode() Mode             { return c.mode }
func (c *SyncContext) RoleStatus() partition.Role { return c.roleStatus }
func (c *SyncContext) Revision() Revision     { return c.ptRev }

func (c *SyncContext) setSyncMode(mode Mode, role partition.Role) {
	c.mode = mode
	c.roleStatus = role
}

// SyncID returns the generational identity of this context.
func (c *SyncContext) SyncID() SyncID {
	return SyncID{ContextID: c.id, ContextVersion: c.version}
}

func (c *SyncContext) RecvNodeID() NodeID       { return c.recvNodeID }
func (c *SyncContext) SetRecvNodeID(n NodeID)   { c.recvNodeID = n }

func (c *SyncContext) SequentialNumber() int64     { return c.ssn }
func (c *SyncContext) setSequentialNumber(n int64) { c.ssn = n }

// SetSendReady marks the start barrier as crossed: every peer confirmed
// and payload streaming may begin.
func (c *SyncContext) SetSendReady() { c.sendReady = true }

// IsSendReady reports whether payload emissions are permitted yet.
func (c *SyncContext) IsSendReady() bool { return c.sendReady }

// CreateStatementID advances and returns the per-context statement tag.
// Strictly monotonic for the lifetime of the context.
func (c *SyncContext) CreateStatementID() StatementID {
	c.nextStmtID++
	return c.nextStmtID
}

// StatementID returns the tag of the most recent emission. Replies carrying
// any other tag are stale.
func (c *SyncContext) StatementID() StatementID { return c.nextStmtID }

// SetSyncCheckpointCompleted marks the long-term snapshot as finished. A
// completed checkpoint can no longer be pending.
func (c *SyncContext) SetSyncCheckpointCompleted() {
	c.cpCompleted = true
	c.cpPending = false
}

func (c *SyncContext) IsSyncCheckpointCompleted() bool { return c.cpCompleted }

// SetSyncCheckpointPending arms or disarms the wait for the snapshot.
// Re-arming after completion is an invariant violation.
func (c *SyncContext) SetSyncCheckpointPending(flag bool) error {
	if flag && c.cpCompleted {
		return errors.Wrapf(ErrInternal,
			"checkpoint already completed for context %s", c.SyncID())
	}
	c.cpPending = flag
	return nil
}

func (c *SyncContext) IsSyncCheckpointPending() bool { return c.cpPending }

func (c *SyncContext) SetSyncStartCompleted(flag bool) { c.startCompleted = flag }
func (c *SyncContext) IsSyncStartCompleted() bool      { return c.startCompleted }

// IncrementCounter registers node as a barrier participant owing an ack.
func (c *SyncContext) IncrementCounter(node NodeID) {
	c.sendBackups = append(c.sendBackups, sendBackup{
		nodeID: node,
		lsn:    partition.UndefLSN,
	})
	c.numSendBackup++
}

// ResetCounter begins a fresh barrier: every registered peer owes an ack
// again.
func (c *SyncContext) ResetCounter() {
	for i := range c.sendBackups {
		c.sendBackups[i].acked = false
	}
	c.numSendBackup = uint32(len(c.sendBackups))
}

// BeginBarrier begins a barrier over a subset of the registered peers.
// Peers outside the subset count as already acked.
func (c *SyncContext) BeginBarrier(nodes []NodeID) {
	for i := range c.sendBackups {
		c.sendBackups[i].acked = true
	}
	count := uint32(0)
	for _, n := range nodes {
		for i := range c.sendBackups {
			if c.sendBackups[i].nodeID == n && c.sendBackups[i].acked {
				c.sendBackups[i].acked = false
				count++
				break
			}
		}
	}
	c.numSendBackup = count
}

// DecrementCounter credits an ack from node to the earliest unacked entry
// with that node id. It returns (crossed, ok): ok is false for a duplicate
// or unknown ack, crossed is true when the barrier count reaches zero.
func (c *SyncContext) DecrementCounter(node NodeID) (crossed bool, ok bool) {
	for i := range c.sendBackups {
		if c.sendBackups[i].nodeID == node && !c.sendBackups[i].acked {
			c.sendBackups[i].acked = true
			c.numSendBackup--
			return c.numSendBackup == 0, true
		}
	}
	return false, false
}

// Counter returns the number of pending acks in the current barrier.
func (c *SyncContext) Counter() int {
	return int(c.numSendBackup)
}

// SyncTargetNodeIDs lists every registered peer.
func (c *SyncContext) SyncTargetNodeIDs() []NodeID {
	nodes := make([]NodeID, 0, len(c.sendBackups))
	for i := range c.sendBackups {
		nodes = append(nodes, c.sendBackups[i].nodeID)
	}
	return nodes
}

// SetSyncTargetLSN records the reported log position of node.
func (c *SyncContext) SetSyncTargetLSN(node NodeID, lsn LSN) {
	for i := range c.sendBackups {
		if c.sendBackups[i].nodeID == node {
			c.sendBackups[i].lsn = lsn
			return
		}
	}
}

// SetSyncTargetLSNWithSyncID records the reported log position of node
// together with the peer's own context identity.
func (c *SyncContext) SetSyncTargetLSNWithSyncID(node NodeID, lsn LSN, syncID SyncID) {
	for i := range c.sendBackups {
		if c.sendBackups[i].nodeID == node {
			c.sendBackups[i].lsn = lsn
			c.sendBackups[i].backupSyncID = syncID
			return
		}
	}
}

// SyncTargetLSN returns the last reported log position of node.
func (c *SyncContext) SyncTargetLSN(node NodeID) LSN {
	for i := range c.sendBackups {
		if c.sendBackups[i].nodeID == node {
			return c.sendBackups[i].lsn
		}
	}
	return partition.UndefLSN
}

// SyncTargetSyncID returns the recorded context identity of node.
func (c *SyncContext) SyncTargetSyncID(node NodeID) SyncID {
	for i := range c.sendBackups {
		if c.sendBackups[i].nodeID == node {
			return c.sendBackups[i].backupSyncID
		}
	}
	return UndefSyncID
}

// CatchupSyncID returns the context identity of the single long-term
// downstream peer.
func (c *SyncContext) CatchupSyncID() SyncID {
	if len(c.sendBackups) == 0 {
		return UndefSyncID
	}
	return c.sendBackups[0].backupSyncID
}

// SetChunkInfo records the snapshot geometry before chunk streaming.
func (c *SyncContext) SetChunkInfo(chunkNum, chunkSize int32) {
	c.chunkNum = chunkNum
	c.chunkBaseSize = chunkSize
}

func (c *SyncContext) ChunkNum() int32 { return c.chunkNum }

func (c *SyncContext) IncProcessedChunkNum(n int32) {
	c.processedChunkNum += n
}

// ResetProcessedChunkNum rewinds chunk streaming to the first chunk, used
// when a failed install restarts the batch sequence.
func (c *SyncContext) ResetProcessedChunkNum() { c.processedChunkNum = 0 }

func (c *SyncContext) ProcessedChunkNum() int32 { return c.processedChunkNum }

func (c *SyncContext) IncProcessedLogNum(logSize int64) {
	c.processedLogSize += logSize
	c.processedLogNum++
}

func (c *SyncContext) ProcessedLogNum() int32  { return c.processedLogNum }
func (c *SyncContext) ProcessedLogSize() int64 { return c.processedLogSize }

// SetProcessedLSN records the range of log streamed so far. The start is
// pinned on the first slice.
func (c *SyncContext) SetProcessedLSN(start, end LSN) {
	if c.processedLogNum == 0 {
		c.startLSN = start
	}
	c.endLSN = end
}

func (c *SyncContext) StartLSN() LSN { return c.startLSN }
func (c *SyncContext) EndLSN() LSN   { return c.endLSN }

// StartAll starts the context-wide stopwatch.
func (c *SyncContext) StartAll() { c.watch.Start() }

// StartRound starts the per-emission stopwatch; the matching ack charges
// it via EndLog or EndChunk.
func (c *SyncContext) StartRound() { c.roundWatch.Start() }

// RoundWatch returns the per-emission stopwatch.
func (c *SyncContext) RoundWatch() *Stopwatch { return &c.roundWatch }

// EndAll folds the stopwatch into the total elapsed time.
func (c *SyncContext) EndAll() { c.totalTime += c.watch.ElapsedNanos() }

// EndLog charges a finished log emission interval.
func (c *SyncContext) EndLog(w *Stopwatch) { c.actualLogTime += w.ElapsedNanos() }

// EndChunk charges a finished chunk emission interval.
func (c *SyncContext) EndChunk(w *Stopwatch) { c.actualChunkTime += w.ElapsedNanos() }

// EndChunkAll records the lead time until all chunks were delivered.
func (c *SyncContext) EndChunkAll() { c.chunkLeadTime = c.watch.ElapsedNanos() }

// CheckTotalTime reports whether this context is worth a detailed dump.
// Long-term syncs always are; short-term syncs only when they exceeded the
// threshold.
func (c *SyncContext) CheckTotalTime(threshold time.Duration) bool {
	if c.mode == ModeLongtermSync {
		return true
	}
	return c.totalTime >= threshold.Nanoseconds()
}

// CopyLogBuffer replaces the held log slice with a copy of src. On
// allocation failure the previous buffer is preserved and the operation
// errors.
func (c *SyncContext) CopyLogBuffer(alloc *bufalloc.Allocator, src []byte) error {
	buf, err := alloc.Allocate(c.pID, len(src))
	if err != nil {
		return errors.Wrapf(err, "copy log buffer pId=%d", c.pID)
	}
	copy(buf, src)
	if c.logBuffer != nil {
		alloc.Free(c.pID, c.logBuffer)
	}
	c.logBuffer = buf
	c.logBufferSize = int32(len(src))
	return nil
}

// CopyChunkBuffer replaces the held chunk batch with a copy of src holding
// chunkNum chunks of chunkSize bytes each.
func (c *SyncContext) CopyChunkBuffer(alloc *bufalloc.Allocator, src []byte, chunkSize, chunkNum int32) error {
	buf, err := alloc.Allocate(c.pID, len(src))
	if err != nil {
		return errors.Wrapf(err, "copy chunk buffer pId=%d", c.pID)
	}
	copy(buf, src)
	if c.chunkBuffer != nil {
		alloc.Free(c.pID, c.chunkBuffer)
	}
	c.chunkBuffer = buf
	c.chunkBufferSize = int32(len(src))
	c.chunkBaseSize = chunkSize
	c.chunkNum = chunkNum
	return nil
}

// FreeBuffer releases the buffer of the given kind. Safe when no buffer of
// that kind is held.
func (c *SyncContext) FreeBuffer(alloc *bufalloc.Allocator, kind BufferKind) {
	switch kind {
	case LogBuffer:
		if c.logBuffer != nil {
			alloc.Free(c.pID, c.logBuffer)
			c.logBuffer = nil
			c.logBufferSize = 0
		}
	case ChunkBuffer:
		if c.chunkBuffer != nil {
			alloc.Free(c.pID, c.chunkBuffer)
			c.chunkBuffer = nil
			c.chunkBufferSize = 0
		}
	}
}

// LogBuffer returns the held log slice.
func (c *SyncContext) LogBuffer() ([]byte, int32) {
	return c.logBuffer, c.logBufferSize
}

// ChunkAt returns the chunkNo-th chunk of the held batch.
func (c *SyncContext) ChunkAt(chunkNo int32) []byte {
	if c.chunkBuffer == nil || c.chunkBaseSize <= 0 {
		return nil
	}
	off := chunkNo * c.chunkBaseSize
	if off < 0 || off >= c.chunkBufferSize {
		return nil
	}
	end := off + c.chunkBaseSize
	if end > c.chunkBufferSize {
		end = c.chunkBufferSize
	}
	return c.chunkBuffer[off:end]
}

// clear releases both buffers and resets every per-episode field, keeping
// only the slot identity. Called on removal before the context returns to
// the free list.
func (c *SyncContext) clear(alloc *bufalloc.Allocator) {
	c.FreeBuffer(alloc, LogBuffer)
	c.FreeBuffer(alloc, ChunkBuffer)

	c.numSendBackup = 0
	c.nextStmtID = 0
	c.recvNodeID = partition.UndefNodeID
	c.cpCompleted = false
	c.cpPending = false
	c.startCompleted = false
	c.ptRev = 0
	c.sendBackups = c.sendBackups[:0]
	c.chunkBaseSize = 0
	c.chunkNum = 0
	c.chunkNo = 0
	c.processedChunkNum = 0
	c.processedLogNum = 0
	c.processedLogSize = 0
	c.actualLogTime = 0
	c.actualChunkTime = 0
	c.chunkLeadTime = 0
	c.totalTime = 0
	c.startLSN = 0
	c.endLSN = 0
	c.ssn = 0
	c.watch.Reset()
	c.roundWatch.Reset()
	c.sendReady = false
	c.mode = ModeShorttermSync
	c.roleStatus = partition.RoleNone
}

// Dump renders the context for operator logging.
func (c *SyncContext) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{mode:%s, role:%s, pId:%d, syncId:%s, ssn:%d, rev:%d",
		c.mode, c.roleStatus, c.pID, c.SyncID(), c.ssn, c.ptRev)
	fmt.Fprintf(&b, ", pendingAcks:%d, stmtId:%d", c.numSendBackup, c.nextStmtID)
	fmt.Fprintf(&b, ", logs:%d(%dB), chunks:%d/%d, lsn:[%d,%d]",
		c.processedLogNum, c.processedLogSize,
		c.processedChunkNum, c.chunkNum, c.startLSN, c.endLSN)
	fmt.Fprintf(&b, ", logTime:%dms, chunkTime:%dms, leadTime:%dms, totalTime:%dms}",
		c.actualLogTime/1e6, c.actualChunkTime/1e6,
		c.chunkLeadTime/1e6, c.totalTime/1e6)
	return b.String()
}
