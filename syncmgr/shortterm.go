package syncmgr

import (
	"github.com/cockroachdb/errors"

	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/proto/syncpb"
)

// Short-term synchronization catches freshly assigned backups up to the
// owner's log tail. The partition is unavailable for writes while it runs,
// so every barrier is expected to cross within seconds.
//
// Owner states: IDLE -> REQUESTED -> STARTED -> LOG_STREAMING -> ENDED.

// handleShorttermSyncRequest opens the owner-side context and asks every
// backup in the role to report its log position.
func (m *Manager) handleShorttermSyncRequest(env *syncpb.SyncEnvelope) error {
	pID := PartitionID(env.PartitionId)
	rev := Revision(env.Revision)
	if rev == 0 {
		rev = m.pt.Revision(pID)
	}

	ctx, err := m.CreateSyncContext(pID, rev, ModeShorttermSync, partition.RoleOwner)
	if err != nil {
		return err
	}

	backups := m.pt.Assignment(pID).Backups
	if len(backups) == 0 {
		if m.collab.Cluster != nil {
			m.collab.Cluster.ReportSyncCompleted(pID, rev)
		}
		m.RemoveSyncContext(pID, ctx, false)
		return nil
	}

	for _, b := range backups {
		ctx.IncrementCounter(b)
	}
	ownerLSN := m.collab.Log.TailLSN(pID)
	stmtID := ctx.CreateStatementID()
	for _, b := range backups {
		m.emit(b, &syncpb.SyncEnvelope{
			Op:           syncpb.SyncOp_SHORTTERM_SYNC_START,
			PartitionId:  uint32(pID),
			Revision:     rev,
			StmtId:       stmtID,
			SenderSyncId: pbSyncID(ctx.SyncID()),
			Lsn:          ownerLSN,
		})
	}
	return nil
}

// handleShorttermSyncStart opens the backup-side context and reports this
// replica's log position to the owner.
func (m *Manager) handleShorttermSyncStart(env *syncpb.SyncEnvelope) error {
	pID := PartitionID(env.PartitionId)

	ctx, err := m.CreateSyncContext(pID, Revision(env.Revision), ModeShorttermSync, partition.RoleBackup)
	if err != nil {
		return err
	}
	ctx.SetRecvNodeID(env.SenderNode)
	ctx.IncrementCounter(env.SenderNode)
	ctx.SetSyncTargetLSNWithSyncID(env.SenderNode, env.Lsn, fromPBSyncID(env.SenderSyncId))

	m.emit(env.SenderNode, &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_SHORTTERM_SYNC_START_ACK,
		PartitionId:  uint32(pID),
		Revision:     env.Revision,
		StmtId:       env.StmtId,
		SyncId:       env.SenderSyncId,
		SenderSyncId: pbSyncID(ctx.SyncID()),
		Lsn:          m.collab.Log.TailLSN(pID),
	})
	return nil
}

// handleShorttermSyncStartAck credits a backup's position report. Once the
// barrier crosses, the common log range is computed and streaming begins.
func (m *Manager) handleShorttermSyncStartAck(env *syncpb.SyncEnvelope) error {
	ctx := m.resolveReply(env)
	if ctx == nil {
		return nil
	}
	ctx.SetSyncTargetLSNWithSyncID(env.SenderNode, env.Lsn, fromPBSyncID(env.SenderSyncId))
	crossed, ok := ctx.DecrementCounter(env.SenderNode)
	if !ok {
		m.log.Debug().Uint32("pId", env.PartitionId).Int32("node", env.SenderNode).
			Msg("duplicate short-term start ack dropped")
		return nil
	}
	if !crossed {
		return nil
	}
	ctx.SetSyncStartCompleted(true)
	ctx.SetSendReady()
	return m.sendShorttermLog(ctx)
}

// sendShorttermLog streams one log slice to every backup still behind the
// owner's tail, or ends the sync when all have caught up. Only legal once
// the start barrier crossed.
func (m *Manager) sendShorttermLog(ctx *SyncContext) error {
	pID := ctx.PartitionID()
	if !ctx.IsSendReady() {
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(ErrInternal,
			"short-term log send before start barrier pId=%d", pID)
	}
	tail := m.collab.Log.TailLSN(pID)

	var behind []NodeID
	minLSN := partition.UndefLSN
	for _, node := range ctx.SyncTargetNodeIDs() {
		lsn := ctx.SyncTargetLSN(node)
		if lsn == partition.UndefLSN || lsn < tail {
			behind = append(behind, node)
			if lsn == partition.UndefLSN {
				lsn = 0
			}
			if lsn < minLSN {
				minLSN = lsn
			}
		}
	}
	if len(behind) == 0 {
		return m.sendShorttermEnd(ctx)
	}

	data, start, end, err := m.collab.Log.Read(pID, minLSN+1, m.cfg.MaxMessageSize())
	if err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(err, "short-term log read pId=%d", pID)
	}
	if err := ctx.CopyLogBuffer(m.varAlloc, data); err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return err
	}
	ctx.SetProcessedLSN(start, end)
	ctx.IncProcessedLogNum(int64(len(data)))

	ctx.BeginBarrier(behind)
	stmtID := ctx.CreateStatementID()
	logBuf, _ := ctx.LogBuffer()

	ctx.StartRound()
	for _, node := range behind {
		m.emit(node, &syncpb.SyncEnvelope{
			Op:           syncpb.SyncOp_SHORTTERM_SYNC_LOG,
			PartitionId:  uint32(pID),
			Revision:     ctx.Revision(),
			StmtId:       stmtID,
			SyncId:       pbSyncID(ctx.SyncTargetSyncID(node)),
			SenderSyncId: pbSyncID(ctx.SyncID()),
			Lsn:          tail,
			StartLsn:     start,
			EndLsn:       end,
			LogData:      logBuf,
		})
	}
	return nil
}

// handleShorttermSyncLog applies a log slice on the backup and reports the
// new position.
func (m *Manager) handleShorttermSyncLog(env *syncpb.SyncEnvelope) error {
	pID := PartitionID(env.PartitionId)
	ctx := m.GetSyncContext(pID, fromPBSyncID(env.SyncId))
	if ctx == nil {
		return nil
	}
	if err := m.collab.Log.Apply(pID, env.LogData, env.EndLsn); err != nil {
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(err, "short-term log apply pId=%d", pID)
	}
	ctx.IncProcessedLogNum(int64(len(env.LogData)))
	ctx.SetProcessedLSN(env.StartLsn, env.EndLsn)

	m.emit(ctx.RecvNodeID(), &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_SHORTTERM_SYNC_LOG_ACK,
		PartitionId:  uint32(pID),
		Revision:     env.Revision,
		StmtId:       env.StmtId,
		SyncId:       env.SenderSyncId,
		SenderSyncId: pbSyncID(ctx.SyncID()),
		Lsn:          m.collab.Log.TailLSN(pID),
	})
	return nil
}

// handleShorttermSyncLogAck advances or repeats log streaming; when every
// backup has reached the tail the end barrier begins.
func (m *Manager) handleShorttermSyncLogAck(env *syncpb.SyncEnvelope) error {
	ctx := m.resolveReply(env)
	if ctx == nil {
		return nil
	}
	ctx.SetSyncTargetLSN(env.SenderNode, env.Lsn)
	crossed, ok := ctx.DecrementCounter(env.SenderNode)
	if !ok {
		return nil
	}
	if !crossed {
		return nil
	}
	ctx.EndLog(ctx.RoundWatch())
	return m.sendShorttermLog(ctx)
}

// sendShorttermEnd begins the final barrier over every backup.
func (m *Manager) sendShorttermEnd(ctx *SyncContext) error {
	pID := ctx.PartitionID()
	ctx.ResetCounter()
	stmtID := ctx.CreateStatementID()
	tail := m.collab.Log.TailLSN(pID)
	for _, node := range ctx.SyncTargetNodeIDs() {
		m.emit(node, &syncpb.SyncEnvelope{
			Op:           syncpb.SyncOp_SHORTTERM_SYNC_END,
			PartitionId:  uint32(pID),
			Revision:     ctx.Revision(),
			StmtId:       stmtID,
			SyncId:       pbSyncID(ctx.SyncTargetSyncID(node)),
			SenderSyncId: pbSyncID(ctx.SyncID()),
			Lsn:          tail,
		})
	}
	return nil
}

// handleShorttermSyncEnd activates the backup and releases its context.
func (m *Manager) handleShorttermSyncEnd(env *syncpb.SyncEnvelope) error {
	pID := PartitionID(env.PartitionId)
	ctx := m.GetSyncContext(pID, fromPBSyncID(env.SyncId))
	if ctx == nil {
		return nil
	}

	m.emit(ctx.RecvNodeID(), &syncpb.SyncEnvelope{
		Op:           syncpb.SyncOp_SHORTTERM_SYNC_END_ACK,
		PartitionId:  uint32(pID),
		Revision:     env.Revision,
		StmtId:       env.StmtId,
		SyncId:       env.SenderSyncId,
		SenderSyncId: pbSyncID(ctx.SyncID()),
		Lsn:          m.collab.Log.TailLSN(pID),
	})
	if m.collab.Cluster != nil {
		m.collab.Cluster.ReportSyncCompleted(pID, ctx.Revision())
	}
	m.RemoveSyncContext(pID, ctx, false)
	return nil
}

// handleShorttermSyncEndAck finishes the owner side once every backup has
// confirmed, reporting promotion to the cluster.
func (m *Manager) handleShorttermSyncEndAck(env *syncpb.SyncEnvelope) error {
	ctx := m.resolveReply(env)
	if ctx == nil {
		return nil
	}
	crossed, ok := ctx.DecrementCounter(env.SenderNode)
	if !ok || !crossed {
		return nil
	}
	pID := ctx.PartitionID()
	if m.collab.Cluster != nil {
		m.collab.Cluster.ReportSyncCompleted(pID, ctx.Revision())
	}
	m.RemoveSyncContext(pID, ctx, false)
	return nil
}
