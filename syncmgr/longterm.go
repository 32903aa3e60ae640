package syncmgr

import (
	"github.com/cockroachdb/errors"

	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/proto/syncpb"
)

// Long-term synchronization seeds a catchup replica from a storage
// snapshot followed by redo log. It runs concurrently with normal traffic,
// is paced by the emitter, and its progress is watched by the stall
// detector.
//
// Owner states: IDLE -> PREPARED -> CHUNK_STREAMING -> LOG_CATCHUP -> DONE.

func (m *Manager) longtermInfo(ctx *SyncContext) *syncpb.LongtermSyncInfo {
	return &syncpb.LongtermSyncInfo{
		ContextId:            ctx.ID(),
		ContextVersion:       ctx.Version(),
		SyncSequentialNumber: ctx.SequentialNumber(),
	}
}

// handleLongtermSyncRequest opens the owner-side context, registers it as
// the partition's unique owner-side long-term sync, and starts the catchup.
func (m *Manager) handleLongtermSyncRequest(env *syncpb.SyncEnvelope) error {
	pID := PartitionID(env.PartitionId)
	rev := Revision(env.Revision)
	if rev == 0 {
		rev = m.pt.Revision(pID)
	}

	m.removeExistingLongterm(pID, true)
	ctx, err := m.CreateSyncContext(pID, rev, ModeLongtermSync, partition.RoleOwner)
	if err != nil {
		return err
	}

	catchups := m.pt.Assignment(pID).Catchups
	if len(catchups) == 0 {
		m.log.Warn().Uint32("pId", pID).Msg("long-term sync requested without catchup replica")
		m.RemoveSyncContext(pID, ctx, true)
		return nil
	}
	target := catchups[0]
	ctx.IncrementCounter(target)

	stmtID := ctx.CreateStatementID()
	m.emit(target, &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_LONGTERM_SYNC_START,
		PartitionId:  uint32(pID),
		Revision:     rev,
		StmtId:       stmtID,
		SenderSyncId: pbSyncID(ctx.SyncID()),
		Lsn:          m.collab.Log.TailLSN(pID),
		Longterm:     m.longtermInfo(ctx),
	})
	return nil
}

// handleLongtermSyncStart opens the catchup-side context, acknowledges,
// prepares local storage for the snapshot and signals readiness.
func (m *Manager) handleLongtermSyncStart(env *syncpb.SyncEnvelope) error {
	pID := PartitionID(env.PartitionId)

	m.removeExistingLongterm(pID, false)
	ctx, err := m.CreateSyncContext(pID, Revision(env.Revision), ModeLongtermSync, partition.RoleCatchup)
	if err != nil {
		return err
	}
	ctx.SetRecvNodeID(env.SenderNode)
	ctx.IncrementCounter(env.SenderNode)
	ctx.SetSyncTargetLSNWithSyncID(env.SenderNode, env.Lsn, fromPBSyncID(env.SenderSyncId))

	m.emit(env.SenderNode, &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_LONGTERM_SYNC_START_ACK,
		PartitionId:  uint32(pID),
		Revision:     env.Revision,
		StmtId:       env.StmtId,
		SyncId:       env.SenderSyncId,
		SenderSyncId: pbSyncID(ctx.SyncID()),
		Lsn:          m.collab.Log.TailLSN(pID),
	})

	if err := m.collab.Chunks.Prepare(pID); err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(err, "long-term prepare pId=%d", pID)
	}
	m.emit(env.SenderNode, &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_LONGTERM_SYNC_PREPARE_ACK,
		PartitionId:  uint32(pID),
		Revision:     env.Revision,
		StmtId:       env.StmtId,
		SyncId:       env.SenderSyncId,
		SenderSyncId: pbSyncID(ctx.SyncID()),
		Lsn:          m.collab.Log.TailLSN(pID),
	})
	return nil
}

// handleLongtermSyncStartAck records the catchup's position and identity.
func (m *Manager) handleLongtermSyncStartAck(env *syncpb.SyncEnvelope) error {
	ctx := m.resolveReply(env)
	if ctx == nil {
		return nil
	}
	ctx.SetSyncTargetLSNWithSyncID(env.SenderNode, env.Lsn, fromPBSyncID(env.SenderSyncId))
	crossed, ok := ctx.DecrementCounter(env.SenderNode)
	if !ok {
		return nil
	}
	if crossed {
		ctx.SetSyncStartCompleted(true)
		ctx.SetSendReady()
	}
	return nil
}

// handleLongtermSyncPrepareAck arms the checkpoint wait and asks the
// checkpoint service for a snapshot. Completion arrives asynchronously via
// HandleCheckpointCompleted.
func (m *Manager) handleLongtermSyncPrepareAck(env *syncpb.SyncEnvelope) error {
	ctx := m.resolveReply(env)
	if ctx == nil {
		return nil
	}
	pID := ctx.PartitionID()
	if err := ctx.SetSyncCheckpointPending(true); err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return err
	}
	if err := m.collab.Checkpoint.RequestSyncCheckpoint(pID, ctx.SequentialNumber()); err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(err, "long-term checkpoint request pId=%d", pID)
	}
	return nil
}

// sendLongtermChunks streams the next chunk batch. Each batch awaits its
// ack before the next is produced.
func (m *Manager) sendLongtermChunks(ctx *SyncContext) error {
	pID := ctx.PartitionID()
	remaining := ctx.ChunkNum() - ctx.ProcessedChunkNum()
	if remaining <= 0 {
		return m.finishChunkStreaming(ctx)
	}
	batch := m.cfg.SendChunkNum()
	if batch > remaining {
		batch = remaining
	}

	// Each chunk is staged through the partition group's staging block
	// before joining the batch.
	bs := m.cfg.BlockSize()
	stage := m.ChunkStageBuffer(m.GroupOf(pID))
	data := make([]byte, 0, int(batch)*int(bs))
	for i := int32(0); i < batch; i++ {
		if err := m.collab.Chunks.ReadChunk(pID, ctx.ProcessedChunkNum()+i, stage); err != nil {
			m.RemoveSyncContext(pID, ctx, true)
			return errors.Wrapf(err, "long-term chunk read pId=%d", pID)
		}
		data = append(data, stage...)
	}
	if err := ctx.CopyChunkBuffer(m.varAlloc, data, bs, batch); err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return err
	}

	ctx.ResetCounter()
	stmtID := ctx.CreateStatementID()
	target := ctx.SyncTargetNodeIDs()[0]

	ctx.StartRound()
	m.emit(target, &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_LONGTERM_SYNC_CHUNK,
		PartitionId:  uint32(pID),
		Revision:     ctx.Revision(),
		StmtId:       stmtID,
		SyncId:       pbSyncID(ctx.CatchupSyncID()),
		SenderSyncId: pbSyncID(ctx.SyncID()),
		ChunkData:    data,
		ChunkSize:    bs,
		ChunkNum:     batch,
		ChunkNo:      ctx.ProcessedChunkNum(),
		Longterm:     m.longtermInfo(ctx),
	})

	interval := m.extra.LongtermDumpChunkInterval()
	if interval > 0 && ctx.ProcessedChunkNum()/interval != (ctx.ProcessedChunkNum()+batch)/interval {
		m.log.Info().Uint32("pId", pID).
			Int32("sent", ctx.ProcessedChunkNum()+batch).
			Int32("total", ctx.ChunkNum()).
			Msg("long-term chunk streaming progress")
	}
	return nil
}

// handleLongtermSyncChunk installs a chunk batch on the catchup replica.
// A failed install resets local state and reports the failure back so the
// owner can retry or abort.
func (m *Manager) handleLongtermSyncChunk(env *syncpb.SyncEnvelope) error {
	pID := PartitionID(env.PartitionId)
	ctx := m.GetSyncContext(pID, fromPBSyncID(env.SyncId))
	if ctx == nil {
		return nil
	}
	installErr := m.collab.Chunks.Install(pID, env.ChunkData, env.ChunkSize, env.ChunkNum)
	if installErr != nil {
		m.log.Warn().Err(installErr).Uint32("pId", pID).
			Int32("chunkNo", env.ChunkNo).Msg("chunk install failed")
		if err := m.collab.Chunks.Prepare(pID); err != nil {
			m.RemoveSyncContext(pID, ctx, true)
			return errors.Wrapf(err, "long-term re-prepare pId=%d", pID)
		}
		ctx.ResetProcessedChunkNum()
	} else {
		ctx.IncProcessedChunkNum(env.ChunkNum)
	}

	m.emit(ctx.RecvNodeID(), &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_LONGTERM_SYNC_CHUNK_ACK,
		PartitionId:  uint32(pID),
		Revision:     env.Revision,
		StmtId:       env.StmtId,
		SyncId:       env.SenderSyncId,
		SenderSyncId: pbSyncID(ctx.SyncID()),
		ChunkNum:     env.ChunkNum,
		Lsn:          m.collab.Log.TailLSN(pID),
		Failed:       installErr != nil,
	})
	return nil
}

// handleLongtermSyncChunkAck advances chunk streaming, or switches to log
// catchup once every chunk is delivered. A failed ack restarts the batch
// sequence in retry-chunk mode and aborts the sync otherwise.
func (m *Manager) handleLongtermSyncChunkAck(env *syncpb.SyncEnvelope) error {
	ctx := m.resolveReply(env)
	if ctx == nil {
		return nil
	}
	crossed, ok := ctx.DecrementCounter(env.SenderNode)
	if !ok || !crossed {
		return nil
	}
	pID := ctx.PartitionID()
	if env.Failed {
		if m.SyncMode() == SyncModeRetryChunk {
			m.log.Warn().Uint32("pId", pID).
				Msg("chunk install failed on catchup, restarting chunk streaming")
			ctx.ResetProcessedChunkNum()
			return m.sendLongtermChunks(ctx)
		}
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(ErrPeerFailure, "chunk install failed on catchup pId=%d", pID)
	}
	ctx.IncProcessedChunkNum(env.ChunkNum)
	ctx.EndChunk(ctx.RoundWatch())
	if ctx.ProcessedChunkNum() < ctx.ChunkNum() {
		return m.sendLongtermChunks(ctx)
	}
	return m.finishChunkStreaming(ctx)
}

// finishChunkStreaming releases the chunk buffer, records the lead time
// and begins log catchup from the snapshot position.
func (m *Manager) finishChunkStreaming(ctx *SyncContext) error {
	pID := ctx.PartitionID()
	ctx.EndChunkAll()
	ctx.FreeBuffer(m.varAlloc, ChunkBuffer)

	targets := ctx.SyncTargetNodeIDs()
	if len(targets) == 0 {
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(ErrInternal, "long-term sync without catchup peer pId=%d", pID)
	}
	ctx.SetSyncTargetLSN(targets[0], m.collab.Chunks.SnapshotLSN(pID))
	return m.sendLongtermLog(ctx)
}

// sendLongtermLog streams the next redo log slice, or completes the sync
// once the catchup has reached the owner's tail.
func (m *Manager) sendLongtermLog(ctx *SyncContext) error {
	pID := ctx.PartitionID()
	target := ctx.SyncTargetNodeIDs()[0]
	catchupLSN := ctx.SyncTargetLSN(target)
	tail := m.collab.Log.TailLSN(pID)

	if catchupLSN != partition.UndefLSN && catchupLSN >= tail {
		if m.collab.Cluster != nil {
			m.collab.Cluster.ReportSyncCompleted(pID, ctx.Revision())
		}
		m.RemoveSyncContext(pID, ctx, false)
		return nil
	}
	from := LSN(0)
	if catchupLSN != partition.UndefLSN {
		from = catchupLSN + 1
	}

	data, start, end, err := m.collab.Log.Read(pID, from, m.cfg.MaxMessageSize())
	if err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(err, "long-term log read pId=%d", pID)
	}
	if err := ctx.CopyLogBuffer(m.varAlloc, data); err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return err
	}
	ctx.SetProcessedLSN(start, end)
	ctx.IncProcessedLogNum(int64(len(data)))

	ctx.ResetCounter()
	stmtID := ctx.CreateStatementID()
	logBuf, _ := ctx.LogBuffer()

	ctx.StartRound()
	m.emit(target, &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_LONGTERM_SYNC_LOG,
		PartitionId:  uint32(pID),
		Revision:     ctx.Revision(),
		StmtId:       stmtID,
		SyncId:       pbSyncID(ctx.CatchupSyncID()),
		SenderSyncId: pbSyncID(ctx.SyncID()),
		Lsn:          tail,
		StartLsn:     start,
		EndLsn:       end,
		LogData:      logBuf,
		Longterm:     m.longtermInfo(ctx),
	})
	return nil
}

// handleLongtermSyncLog replays a redo slice on the catchup replica.
func (m *Manager) handleLongtermSyncLog(env *syncpb.SyncEnvelope) error {
	pID := PartitionID(env.PartitionId)
	ctx := m.GetSyncContext(pID, fromPBSyncID(env.SyncId))
	if ctx == nil {
		return nil
	}
	if err := m.collab.Log.Apply(pID, env.LogData, env.EndLsn); err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(err, "long-term log apply pId=%d", pID)
	}
	ctx.IncProcessedLogNum(int64(len(env.LogData)))
	ctx.SetProcessedLSN(env.StartLsn, env.EndLsn)

	m.emit(ctx.RecvNodeID(), &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_LONGTERM_SYNC_LOG_ACK,
		PartitionId:  uint32(pID),
		Revision:     env.Revision,
		StmtId:       env.StmtId,
		SyncId:       env.SenderSyncId,
		SenderSyncId: pbSyncID(ctx.SyncID()),
		Lsn:          m.collab.Log.TailLSN(pID),
	})
	return nil
}

// handleLongtermSyncLogAck advances log catchup until the gap closes.
func (m *Manager) handleLongtermSyncLogAck(env *syncpb.SyncEnvelope) error {
	ctx := m.resolveReply(env)
	if ctx == nil {
		return nil
	}
	ctx.SetSyncTargetLSN(env.SenderNode, env.Lsn)
	crossed, ok := ctx.DecrementCounter(env.SenderNode)
	if !ok || !crossed {
		return nil
	}
	ctx.EndLog(ctx.RoundWatch())
	return m.sendLongtermLog(ctx)
}
