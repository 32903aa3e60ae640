package syncmgr

import (
	"math"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncConfigDefaults(t *testing.T) {
	v := viper.New()
	RegisterParameters(v)

	cfg, err := NewSyncConfig(v)
	require.NoError(t, err)

	assert.Equal(t, int32(defaultSyncTimeoutIntervalSec*1000), cfg.SyncTimeoutInterval())
	assert.Equal(t, int32(2*1024*1024), cfg.MaxMessageSize())
	assert.Equal(t, int32(defaultStoreBlockSize), cfg.BlockSize())
	// sendChunkNum = sendChunkSizeLimit / blockSize + 1
	assert.Equal(t, int32(2*1024*1024/defaultStoreBlockSize+1), cfg.SendChunkNum())
}

func TestSyncConfigRejectsNegative(t *testing.T) {
	v := viper.New()
	RegisterParameters(v)
	v.Set(keySyncTimeoutInterval, -1)

	_, err := NewSyncConfig(v)
	assert.Error(t, err)
}

func TestSyncConfigClampsToInt32(t *testing.T) {
	v := viper.New()
	RegisterParameters(v)
	v.Set(keyLongSyncMaxMessageSize, int64(math.MaxInt32)+100)

	cfg, err := NewSyncConfig(v)
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), cfg.MaxMessageSize())
}

func TestExtraConfigDefaults(t *testing.T) {
	v := viper.New()
	RegisterParameters(v)

	extra, err := NewExtraConfig(v)
	require.NoError(t, err)

	assert.Equal(t, int32(100), extra.ApproximateGapLSN())
	assert.Equal(t, int32(10000), extra.ApproximateWaitInterval())
	assert.Equal(t, int32(30000), extra.LockConflictPendingInterval())
	assert.Equal(t, int32(10000), extra.LimitShorttermQueueSize())
	assert.Equal(t, int32(40), extra.LimitLongtermQueueSize())
	assert.Equal(t, int32(0), extra.LongtermLowLoadChunkInterval())
	assert.Equal(t, int32(100), extra.LongtermHighLoadChunkInterval())
	assert.Equal(t, int32(5000), extra.LongtermDumpChunkInterval())
}

func TestExtraConfigSettersRejectNegative(t *testing.T) {
	v := viper.New()
	RegisterParameters(v)
	extra, err := NewExtraConfig(v)
	require.NoError(t, err)

	assert.False(t, extra.SetApproximateGapLSN(-1))
	assert.Equal(t, int32(100), extra.ApproximateGapLSN())
	assert.True(t, extra.SetApproximateGapLSN(250))
	assert.Equal(t, int32(250), extra.ApproximateGapLSN())

	assert.False(t, extra.SetLimitLongtermQueueSize(-5))
	assert.True(t, extra.SetLimitLongtermQueueSize(80))
	assert.Equal(t, int32(80), extra.LimitLongtermQueueSize())

	assert.False(t, extra.SetLongtermHighLoadChunkInterval(-1))
	assert.True(t, extra.SetLongtermHighLoadChunkInterval(200))
	assert.Equal(t, int32(200), extra.LongtermHighLoadChunkInterval())

	assert.False(t, extra.SetLongtermDumpChunkInterval(-1))
	assert.True(t, extra.SetLongtermDumpChunkInterval(100))
}

func TestSyncConfigChunkResize(t *testing.T) {
	v := viper.New()
	RegisterParameters(v)
	cfg, err := NewSyncConfig(v)
	require.NoError(t, err)

	require.True(t, cfg.SetMaxChunkMessageSize(defaultStoreBlockSize*10))
	assert.Equal(t, int32(11), cfg.SendChunkNum())
	assert.False(t, cfg.SetMaxChunkMessageSize(-1))
	assert.Equal(t, int32(11), cfg.SendChunkNum())
}
