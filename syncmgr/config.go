package syncmgr

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Configuration keys recognised by the sync manager.
const (
	keySyncTimeoutInterval       = "sync.timeout_interval"
	keyLongSyncMaxMessageSize    = "sync.long_sync_max_message_size"
	keyChunkMaxMessageSize       = "sync.chunk_max_message_size"
	keyLogMaxMessageSize         = "sync.log_max_message_size"
	keyStoreBlockSize            = "store.block_size"
	keyApproximateGapLSN         = "sync.approximate_gap_lsn"
	keyApproximateWaitInterval   = "sync.approximate_wait_interval"
	keyLockConflictInterval      = "sync.lockconflict_interval"
	keyShorttermLimitQueueSize   = "sync.shortterm_limit_queue_size"
	keyShorttermLowLoadLogIval   = "sync.shortterm_lowload_log_interval"
	keyShorttermHighLoadLogIval  = "sync.shortterm_highload_log_interval"
	keyLongtermLimitQueueSize    = "sync.longterm_limit_queue_size"
	keyLongtermLowLoadLogIval    = "sync.longterm_lowload_log_interval"
	keyLongtermHighLoadLogIval   = "sync.longterm_highload_log_interval"
	keyLongtermLowLoadChunkIval  = "sync.longterm_lowload_chunk_interval"
	keyLongtermHighLoadChunkIval = "sync.longterm_highload_chunk_interval"
	keyLongtermDumpChunkInterval = "sync.longterm_dump_chunk_interval"
)

// Built-in defaults, matching the cluster-wide shipped configuration.
const (
	defaultSyncTimeoutIntervalSec  = 30
	defaultLogSyncMessageMaxSizeMB = 2
	defaultChunkSyncMessageMaxMB   = 2
	defaultStoreBlockSize          = 1 << 16

	defaultApproximateGapLSN          = 100
	defaultApproximateWaitIntervalSec = 10
	defaultLockConflictIntervalSec    = 30

	defaultShorttermLimitQueueSize  = 10000
	defaultShorttermLowLoadLogIval  = 0
	defaultShorttermHighLoadLogIval = 0

	defaultLongtermLimitQueueSize    = 40
	defaultLongtermLowLoadLogIval    = 0
	defaultLongtermHighLoadLogIval   = 100
	defaultLongtermLowLoadChunkIval  = 0
	defaultLongtermHighLoadChunkIval = 100
	defaultLongtermDumpChunkInterval = 5000
)

// RegisterParameters installs the recognised defaults into v. Call once
// before NewSyncConfig and NewExtraConfig (NewManager calls both), at
// manager construction time.
func RegisterParameters(v *viper.Viper) {
	v.SetDefault(keySyncTimeoutInterval, defaultSyncTimeoutIntervalSec)
	v.SetDefault(keyLongSyncMaxMessageSize, megaBytesToBytes(defaultLogSyncMessageMaxSizeMB))
	v.SetDefault(keyChunkMaxMessageSize, defaultChunkSyncMessageMaxMB)
	v.SetDefault(keyLogMaxMessageSize, defaultLogSyncMessageMaxSizeMB)
	v.SetDefault(keyStoreBlockSize, defaultStoreBlockSize)
	v.SetDefault(keyApproximateGapLSN, defaultApproximateGapLSN)
	v.SetDefault(keyApproximateWaitInterval, defaultApproximateWaitIntervalSec)
	v.SetDefault(keyLockConflictInterval, defaultLockConflictIntervalSec)
	v.SetDefault(keyShorttermLimitQueueSize, defaultShorttermLimitQueueSize)
	v.SetDefault(keyShorttermLowLoadLogIval, defaultShorttermLowLoadLogIval)
	v.SetDefault(keyShorttermHighLoadLogIval, defaultShorttermHighLoadLogIval)
	v.SetDefault(keyLongtermLimitQueueSize, defaultLongtermLimitQueueSize)
	v.SetDefault(keyLongtermLowLoadLogIval, defaultLongtermLowLoadLogIval)
	v.SetDefault(keyLongtermHighLoadLogIval, defaultLongtermHighLoadLogIval)
	v.SetDefault(keyLongtermLowLoadChunkIval, defaultLongtermLowLoadChunkIval)
	v.SetDefault(keyLongtermHighLoadChunkIval, defaultLongtermHighLoadChunkIval)
	v.SetDefault(keyLongtermDumpChunkInterval, defaultLongtermDumpChunkInterval)
}

func megaBytesToBytes(mb int) int {
	return mb * 1024 * 1024
}

func secToMillis(sec int) int {
	return sec * 1000
}

// MillisToDuration converts a millisecond config value to a Duration.
func MillisToDuration(ms int32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// readInt32 rejects negatives and clamps to the positive int32 range.
func readInt32(v *viper.Viper, key string) (int32, error) {
	raw := v.GetInt64(key)
	if raw < 0 {
		return 0, errors.Wrapf(ErrInternal, "config %s: negative value %d", key, raw)
	}
	if raw > math.MaxInt32 {
		raw = math.MaxInt32
	}
	return int32(raw), nil
}

// SyncConfig holds the message-size and timeout parameters of the sync
// protocols.
type SyncConfig struct {
	syncTimeoutInterval int32 // milliseconds
	maxMessageSize      int32 // bytes, long-term log slice cap
	sendChunkNum        int32
	sendChunkSizeLimit  int32 // bytes
	blockSize           int32 // bytes
}

// NewSyncConfig reads the sync.* message-size settings from v.
func NewSyncConfig(v *viper.Viper) (*SyncConfig, error) {
	timeoutSec, err := readInt32(v, keySyncTimeoutInterval)
	if err != nil {
		return nil, err
	}
	longMax, err := readInt32(v, keyLongSyncMaxMessageSize)
	if err != nil {
		return nil, err
	}
	chunkMaxMB, err := readInt32(v, keyChunkMaxMessageSize)
	if err != nil {
		return nil, err
	}
	logMaxMB, err := readInt32(v, keyLogMaxMessageSize)
	if err != nil {
		return nil, err
	}
	blockSize, err := readInt32(v, keyStoreBlockSize)
	if err != nil {
		return nil, err
	}
	if blockSize == 0 {
		return nil, errors.Wrap(ErrInternal, "config store.block_size: zero block size")
	}

	c := &SyncConfig{
		syncTimeoutInterval: int32(secToMillis(int(timeoutSec))),
		maxMessageSize:      longMax,
		sendChunkSizeLimit:  int32(megaBytesToBytes(int(chunkMaxMB))),
		blockSize:           blockSize,
	}
	// When the raw long-sync cap was left at its default, the megabyte
	// scaled short-log cap takes precedence.
	if int(longMax) == megaBytesToBytes(defaultLogSyncMessageMaxSizeMB) {
		c.maxMessageSize = int32(megaBytesToBytes(int(logMaxMB)))
	}
	c.sendChunkNum = c.sendChunkSizeLimit/c.blockSize + 1
	return c, nil
}

func (c *SyncConfig) SyncTimeoutInterval() int32 { return c.syncTimeoutInterval }
func (c *SyncConfig) MaxMessageSize() int32      { return c.maxMessageSize }
func (c *SyncConfig) SendChunkNum() int32        { return c.sendChunkNum }
func (c *SyncConfig) BlockSize() int32           { return c.blockSize }

func (c *SyncConfig) SetMaxMessageSize(size int32) bool {
	if size < 0 {
		return false
	}
	c.maxMessageSize = size
	return true
}

func (c *SyncConfig) SetMaxChunkMessageSize(size int32) bool {
	if size < 0 {
		return false
	}
	c.sendChunkSizeLimit = size
	c.sendChunkNum = c.sendChunkSizeLimit/c.blockSize + 1
	return true
}

// ExtraConfig holds the pacing, backpressure and watchdog tuning knobs.
// Every setter rejects negatives so a live node can be retuned safely.
type ExtraConfig struct {
	longtermNearestLSNGap         int32
	lockConflictPendingInterval   int32 // milliseconds
	longtermNearestInterval       int32 // milliseconds
	shorttermLimitQueueSize       int32
	shorttermLowLoadLogInterval   int32
	shorttermHighLoadLogInterval  int32
	longtermLimitQueueSize        int32
	longtermLowLoadLogInterval    int32
	longtermHighLoadLogInterval   int32
	longtermLowLoadChunkInterval  int32
	longtermHighLoadChunkInterval int32
	longtermDumpChunkInterval     int32
}

// NewExtraConfig reads the pacing and backpressure settings from v.
func NewExtraConfig(v *viper.Viper) (*ExtraConfig, error) {
	e := &ExtraConfig{}
	for _, f := range []struct {
		key  string
		dst  *int32
		inMS bool
	}{
		{keyApproximateGapLSN, &e.longtermNearestLSNGap, false},
		{keyLockConflictInterval, &e.lockConflictPendingInterval, true},
		{keyApproximateWaitInterval, &e.longtermNearestInterval, true},
		{keyShorttermLimitQueueSize, &e.shorttermLimitQueueSize, false},
		{keyShorttermLowLoadLogIval, &e.shorttermLowLoadLogInterval, false},
		{keyShorttermHighLoadLogIval, &e.shorttermHighLoadLogInterval, false},
		{keyLongtermLimitQueueSize, &e.longtermLimitQueueSize, false},
		{keyLongtermLowLoadLogIval, &e.longtermLowLoadLogInterval, false},
		{keyLongtermHighLoadLogIval, &e.longtermHighLoadLogInterval, false},
		{keyLongtermLowLoadChunkIval, &e.longtermLowLoadChunkInterval, false},
		{keyLongtermHighLoadChunkIval, &e.longtermHighLoadChunkInterval, false},
		{keyLongtermDumpChunkInterval, &e.longtermDumpChunkInterval, false},
	} {
		val, err := readInt32(v, f.key)
		if err != nil {
			return nil, err
		}
		if f.inMS {
			val = int32(secToMillis(int(val)))
		}
		*f.dst = val
	}
	return e, nil
}

func (e *ExtraConfig) ApproximateGapLSN() int32            { return e.longtermNearestLSNGap }
func (e *ExtraConfig) ApproximateWaitInterval() int32      { return e.longtermNearestInterval }
func (e *ExtraConfig) LockConflictPendingInterval() int32  { return e.lockConflictPendingInterval }
func (e *ExtraConfig) LimitShorttermQueueSize() int32      { return e.shorttermLimitQueueSize }
func (e *ExtraConfig) LimitLongtermQueueSize() int32       { return e.longtermLimitQueueSize }
func (e *ExtraConfig) ShorttermLowLoadLogInterval() int32  { return e.shorttermLowLoadLogInterval }
func (e *ExtraConfig) ShorttermHighLoadLogInterval() int32 { return e.shorttermHighLoadLogInterval }
func (e *ExtraConfig) LongtermLowLoadLogInterval() int32   { return e.longtermLowLoadLogInterval }
func (e *ExtraConfig) LongtermHighLoadLogInterval() int32  { return e.longtermHighLoadLogInterval }
func (e *ExtraConfig) LongtermLowLoadChunkInterval() int32 { return e.longtermLowLoadChunkInterval }
func (e *ExtraConfig) LongtermHighLoadChunkInterval() int32 {
	return e.longtermHighLoadChunkInterval
}
func (e *ExtraConfig) LongtermDumpChunkInterval() int32 { return e.longtermDumpChunkInterval }

func setNonNegative(dst *int32, val int32) bool {
	if val < 0 {
		return false
	}
	*dst = val
	return true
}

func (e *ExtraConfig) SetApproximateGapLSN(gap int32) bool {
	return setNonNegative(&e.longtermNearestLSNGap, gap)
}

func (e *ExtraConfig) SetApproximateWaitInterval(ival int32) bool {
	return setNonNegative(&e.longtermNearestInterval, ival)
}

func (e *ExtraConfig) SetLockWaitInterval(ival int32) bool {
	return setNonNegative(&e.lockConflictPendingInterval, ival)
}

func (e *ExtraConfig) SetLimitShorttermQueueSize(size int32) bool {
	return setNonNegative(&e.shorttermLimitQueueSize, size)
}

func (e *ExtraConfig) SetLimitLongtermQueueSize(size int32) bool {
	return setNonNegative(&e.longtermLimitQueueSize, size)
}

func (e *ExtraConfig) SetShorttermLowLoadLogInterval(ival int32) bool {
	return setNonNegative(&e.shorttermLowLoadLogInterval, ival)
}

func (e *ExtraConfig) SetShorttermHighLoadLogInterval(ival int32) bool {
	return setNonNegative(&e.shorttermHighLoadLogInterval, ival)
}

func (e *ExtraConfig) SetLongtermLowLoadLogInterval(ival int32) bool {
	return setNonNegative(&e.longtermLowLoadLogInterval, ival)
}

func (e *ExtraConfig) SetLongtermHighLoadLogInterval(ival int32) bool {
	return setNonNegative(&e.longtermHighLoadLogInterval, ival)
}

func (e *ExtraConfig) SetLongtermLowLoadChunkInterval(ival int32) bool {
	return setNonNegative(&e.longtermLowLoadChunkInterval, ival)
}

func (e *ExtraConfig) SetLongtermHighLoadChunkInterval(ival int32) bool {
	return setNonNegative(&e.longtermHighLoadChunkInterval, ival)
}

func (e *ExtraConfig) SetLongtermDumpChunkInterval(n int32) bool {
	return setNonNegative(&e.longtermDumpChunkInterval, n)
}
