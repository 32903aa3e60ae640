package syncmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/proto/syncpb"
)

func TestWatchdogAbortsStalledLongtermSync(t *testing.T) {
	h := newTestHarness(t, 4)
	const pID = PartitionID(2)
	ctx := driveLongtermToChunkStreaming(t, h, pID, 4)
	ownerID := ctx.SyncID()
	chunkMsgs := h.emitter.ofOp(syncpb.SyncOp_LONGTERM_SYNC_CHUNK)
	require.NotEmpty(t, chunkMsgs)

	// First poll registers the observation; three further polls with no
	// chunk ack accrue the strikes.
	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())
	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())
	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())
	assert.Equal(t, pID, h.mgr.CheckCurrentSyncStatus())

	h.mgr.AbortLongtermSync(pID)
	assert.Nil(t, h.mgr.GetSyncContext(pID, ownerID))
	assert.False(t, h.mgr.LongSyncEntryOf(pID, true).SyncID.Valid())
	require.NotEmpty(t, h.cluster.failed)

	// The cascade drops the partition on the catchup peer.
	drops := h.emitter.ofOp(syncpb.SyncOp_DROP_PARTITION)
	require.Len(t, drops, 1)
	assert.Equal(t, NodeID(5), drops[0].target)

	// A late chunk ack for the aborted SyncId is silently dropped.
	h.emitter.take()
	require.NoError(t, h.mgr.Dispatch(ack(
		chunkMsgs[0], syncpb.SyncOp_LONGTERM_SYNC_CHUNK_ACK, 5, nil, 0)))
	assert.Empty(t, h.emitter.sent)
}

func TestWatchdogResetsOnProgress(t *testing.T) {
	h := newTestHarness(t, 4)
	const pID = PartitionID(1)
	ctx := driveLongtermToChunkStreaming(t, h, pID, 4)

	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())
	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())

	// Chunk progress between polls resets the strike count.
	ctx.IncProcessedChunkNum(1)
	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())
	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())
	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())
	assert.Equal(t, pID, h.mgr.CheckCurrentSyncStatus())
}

func TestWatchdogClearsWhenNoFocus(t *testing.T) {
	h := newTestHarness(t, 4)
	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())
	assert.Equal(t, partition.UndefID, h.mgr.CheckCurrentSyncStatus())
}
