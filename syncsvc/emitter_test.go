package syncsvc

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chn0318/partsync/proto/syncpb"
	"github.com/chn0318/partsync/syncmgr"
)

func testExtraConfig(t *testing.T) *syncmgr.ExtraConfig {
	t.Helper()
	v := viper.New()
	syncmgr.RegisterParameters(v)
	extra, err := syncmgr.NewExtraConfig(v)
	require.NoError(t, err)
	return extra
}

func TestPacingDelaySelectsLoadInterval(t *testing.T) {
	extra := testExtraConfig(t)
	require.True(t, extra.SetLimitLongtermQueueSize(40))
	require.True(t, extra.SetLongtermLowLoadChunkInterval(0))
	require.True(t, extra.SetLongtermHighLoadChunkInterval(100))

	// At or below the limit the low-load interval applies.
	assert.Equal(t, time.Duration(0),
		PacingDelay(extra, syncmgr.ModeLongtermSync, KindChunk, 40))

	// The 41st pending chunk message crosses the limit: the high-load
	// interval applies.
	assert.Equal(t, 100*time.Millisecond,
		PacingDelay(extra, syncmgr.ModeLongtermSync, KindChunk, 41))
}

func TestPacingDelayPerModeAndKind(t *testing.T) {
	extra := testExtraConfig(t)
	require.True(t, extra.SetLimitShorttermQueueSize(2))
	require.True(t, extra.SetShorttermLowLoadLogInterval(1))
	require.True(t, extra.SetShorttermHighLoadLogInterval(50))
	require.True(t, extra.SetLongtermLowLoadLogInterval(2))
	require.True(t, extra.SetLongtermHighLoadLogInterval(80))

	assert.Equal(t, time.Millisecond,
		PacingDelay(extra, syncmgr.ModeShorttermSync, KindLog, 1))
	assert.Equal(t, 50*time.Millisecond,
		PacingDelay(extra, syncmgr.ModeShorttermSync, KindLog, 3))
	assert.Equal(t, 2*time.Millisecond,
		PacingDelay(extra, syncmgr.ModeLongtermSync, KindLog, 0))
	assert.Equal(t, 80*time.Millisecond,
		PacingDelay(extra, syncmgr.ModeLongtermSync, KindLog, 1000))

	// Control traffic is never delayed, regardless of queue depth.
	assert.Equal(t, time.Duration(0),
		PacingDelay(extra, syncmgr.ModeShorttermSync, KindControl, 1000))
	assert.Equal(t, time.Duration(0),
		PacingDelay(extra, syncmgr.ModeLongtermSync, KindControl, 1000))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		op   syncpb.SyncOp
		mode syncmgr.Mode
		kind PayloadKind
	}{
		{syncpb.SyncOp_SHORTTERM_SYNC_LOG, syncmgr.ModeShorttermSync, KindLog},
		{syncpb.SyncOp_LONGTERM_SYNC_LOG, syncmgr.ModeLongtermSync, KindLog},
		{syncpb.SyncOp_LONGTERM_SYNC_CHUNK, syncmgr.ModeLongtermSync, KindChunk},
		{syncpb.SyncOp_SHORTTERM_SYNC_START, syncmgr.ModeShorttermSync, KindControl},
		{syncpb.SyncOp_SHORTTERM_SYNC_END_ACK, syncmgr.ModeShorttermSync, KindControl},
		{syncpb.SyncOp_LONGTERM_SYNC_CHUNK_ACK, syncmgr.ModeLongtermSync, KindControl},
		{syncpb.SyncOp_DROP_PARTITION, syncmgr.ModeLongtermSync, KindControl},
	}
	for _, tc := range cases {
		mode, kind := classify(tc.op)
		assert.Equal(t, tc.mode, mode, "op=%s", tc.op)
		assert.Equal(t, tc.kind, kind, "op=%s", tc.op)
	}
}

func TestEmitterTracksPending(t *testing.T) {
	extra := testExtraConfig(t)
	e := NewEmitter(extra, nil, zerolog.Nop())

	e.Emit(1, &syncpb.SyncEnvelope{Op: syncpb.SyncOp_LONGTERM_SYNC_CHUNK})
	e.Emit(1, &syncpb.SyncEnvelope{Op: syncpb.SyncOp_LONGTERM_SYNC_CHUNK})
	e.Emit(2, &syncpb.SyncEnvelope{Op: syncpb.SyncOp_SHORTTERM_SYNC_LOG})

	assert.Equal(t, 2, e.PendingCount(syncmgr.ModeLongtermSync))
	assert.Equal(t, 1, e.PendingCount(syncmgr.ModeShorttermSync))
}
