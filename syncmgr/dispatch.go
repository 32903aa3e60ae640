package syncmgr

import (
	"github.com/cockroachdb/errors"

	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/proto/syncpb"
)

func pbSyncID(id SyncID) *syncpb.SyncId {
	return &syncpb.SyncId{ContextId: id.ContextID, ContextVersion: id.ContextVersion}
}

func fromPBSyncID(id *syncpb.SyncId) SyncID {
	if id == nil {
		return UndefSyncID
	}
	return SyncID{ContextID: id.ContextId, ContextVersion: id.ContextVersion}
}

// Dispatch validates an inbound operation against the partition's current
// role and applies the matching state transition. Stale messages are
// dropped silently; gate violations surface as ErrIllegalOperation.
func (m *Manager) Dispatch(env *syncpb.SyncEnvelope) error {
	if !m.initialized {
		return errors.Wrap(ErrInternal, "manager not initialized")
	}

	op := Operation(env.Op)
	pID := PartitionID(env.PartitionId)
	if pID >= m.pt.PartitionNum() {
		return errors.Wrapf(ErrInvalidPartition, "op=%s pId=%d", op, pID)
	}

	role := m.pt.RoleStatus(pID)
	if err := m.CheckExecutable(op, pID, role); err != nil {
		m.log.Warn().Uint32("pId", pID).Str("op", op.String()).
			Str("role", role.String()).Msg("operation rejected by gate")
		return err
	}

	switch op {
	case OpShorttermSyncRequest:
		return m.handleShorttermSyncRequest(env)
	case OpShorttermSyncStart:
		return m.handleShorttermSyncStart(env)
	case OpShorttermSyncStartAck:
		return m.handleShorttermSyncStartAck(env)
	case OpShorttermSyncLog:
		return m.handleShorttermSyncLog(env)
	case OpShorttermSyncLogAck:
		return m.handleShorttermSyncLogAck(env)
	case OpShorttermSyncEnd:
		return m.handleShorttermSyncEnd(env)
	case OpShorttermSyncEndAck:
		return m.handleShorttermSyncEndAck(env)
	case OpLongtermSyncRequest:
		return m.handleLongtermSyncRequest(env)
	case OpLongtermSyncStart:
		return m.handleLongtermSyncStart(env)
	case OpLongtermSyncStartAck:
		return m.handleLongtermSyncStartAck(env)
	case OpLongtermSyncPrepareAck:
		return m.handleLongtermSyncPrepareAck(env)
	case OpLongtermSyncChunk:
		return m.handleLongtermSyncChunk(env)
	case OpLongtermSyncChunkAck:
		return m.handleLongtermSyncChunkAck(env)
	case OpLongtermSyncLog:
		return m.handleLongtermSyncLog(env)
	case OpLongtermSyncLogAck:
		return m.handleLongtermSyncLogAck(env)
	case OpSyncTimeout:
		m.CancelPartition(pID)
		return nil
	case OpDropPartition:
		m.RemovePartition(pID)
		return nil
	default:
		return errors.Wrapf(ErrIllegalOperation, "unknown operation %d", int32(op))
	}
}

// resolveReply resolves the destination context of an ack and filters stale
// messages: unknown or version-mismatched SyncIDs and statement tags other
// than the current expectation. A nil return means silent drop.
func (m *Manager) resolveReply(env *syncpb.SyncEnvelope) *SyncContext {
	pID := PartitionID(env.PartitionId)
	ctx := m.GetSyncContext(pID, fromPBSyncID(env.SyncId))
	if ctx == nil {
		m.log.Debug().Uint32("pId", pID).
			Str("op", Operation(env.Op).String()).
			Str("syncId", fromPBSyncID(env.SyncId).String()).
			Msg("reply for unknown or stale context dropped")
		return nil
	}
	if env.StmtId != ctx.StatementID() {
		m.log.Debug().Uint32("pId", pID).
			Str("op", Operation(env.Op).String()).
			Uint64("stmtId", env.StmtId).
			Uint64("expected", ctx.StatementID()).
			Msg("reply with stale statement id dropped")
		return nil
	}
	return ctx
}

// emit stamps the envelope with this node's identity and hands it to the
// transport.
func (m *Manager) emit(target NodeID, env *syncpb.SyncEnvelope) {
	env.SenderNode = m.pt.SelfNodeID()
	m.collab.Emitter.Emit(target, env)
}

// removeExistingLongterm tears down a superseded long-term sync of one
// side before a new request replaces it.
func (m *Manager) removeExistingLongterm(pID PartitionID, isOwner bool) {
	entry := m.registry.entry(pID, isOwner)
	if !entry.SyncID.Valid() {
		return
	}
	if ctx := m.GetSyncContext(pID, entry.SyncID); ctx != nil {
		m.log.Info().Uint32("pId", pID).Bool("owner", isOwner).
			Str("syncId", entry.SyncID.String()).
			Msg("superseding in-flight long-term sync")
		m.RemoveSyncContext(pID, ctx, false)
		return
	}
	m.registry.reset(pID, isOwner)
}

// AbortLongtermSync tears down the focused long-term sync of pID after a
// watchdog strike-out and cascades a drop to its peers.
func (m *Manager) AbortLongtermSync(pID PartitionID) {
	entry := m.registry.entry(pID, true)
	ctx := m.GetSyncContext(pID, entry.SyncID)
	if ctx == nil {
		m.registry.reset(pID, true)
		return
	}

	peers := ctx.SyncTargetNodeIDs()
	m.RemoveSyncContext(pID, ctx, true)
	for _, peer := range peers {
		m.emit(peer, &syncpb.SyncEnvelope{
			Op:          syncpb.SyncOp_DROP_PARTITION,
			PartitionId: uint32(pID),
		})
	}
}

// HandleCheckpointCompleted resumes the owner-side long-term sync of pID
// once its snapshot is ready, moving it into chunk streaming.
func (m *Manager) HandleCheckpointCompleted(pID PartitionID, syncID SyncID) error {
	ctx := m.GetSyncContext(pID, syncID)
	if ctx == nil {
		m.log.Debug().Uint32("pId", pID).Str("syncId", syncID.String()).
			Msg("checkpoint completion for stale context dropped")
		return nil
	}
	if ctx.RoleStatus() != partition.RoleOwner || ctx.Mode() != ModeLongtermSync {
		return errors.Wrapf(ErrInternal,
			"checkpoint completion for non-owner context %s", syncID)
	}
	if !ctx.IsSendReady() {
		m.RemoveSyncContext(pID, ctx, true)
		return errors.Wrapf(ErrInternal,
			"checkpoint completed before catchup confirmed start pId=%d", pID)
	}

	ctx.SetSyncCheckpointCompleted()
	chunkNum := m.collab.Chunks.ChunkCount(pID)
	ctx.SetChunkInfo(chunkNum, m.cfg.BlockSize())
	if chunkNum == 0 {
		catchup := ctx.SyncTargetNodeIDs()
		if len(catchup) > 0 {
			ctx.SetSyncTargetLSN(catchup[0], m.collab.Chunks.SnapshotLSN(pID))
		}
		return m.sendLongtermLog(ctx)
	}
	return m.sendLongtermChunks(ctx)
}
