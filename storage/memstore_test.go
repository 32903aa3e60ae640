package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendReadApply(t *testing.T) {
	src := NewMemStore(4096)
	dst := NewMemStore(4096)

	src.Append(0, []byte("alpha"))
	src.Append(0, []byte("beta"))
	src.Append(0, []byte("gamma"))
	require.Equal(t, uint64(3), src.TailLSN(0))

	data, start, end, err := src.Read(0, 1, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), start)
	assert.Equal(t, uint64(3), end)

	require.NoError(t, dst.Apply(0, data, end))
	assert.Equal(t, uint64(3), dst.TailLSN(0))

	// A replica at LSN 2 only receives the tail record.
	data, start, end, err = src.Read(0, 3, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), start)
	assert.Equal(t, uint64(3), end)
	assert.NotEmpty(t, data)
}

func TestReadRespectsMaxBytes(t *testing.T) {
	s := NewMemStore(4096)
	payload := make([]byte, 100)
	for i := 0; i < 10; i++ {
		s.Append(0, payload)
	}

	// A cap between one and two 112-byte frames returns exactly one record.
	data, start, end, err := s.Read(0, 1, 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), start)
	assert.Equal(t, uint64(1), end)
	assert.Len(t, data, 112)
}

func TestApplyIsIdempotentPerLSN(t *testing.T) {
	src := NewMemStore(4096)
	dst := NewMemStore(4096)
	src.Append(0, []byte("x"))
	data, _, end, err := src.Read(0, 1, 1<<20)
	require.NoError(t, err)

	require.NoError(t, dst.Apply(0, data, end))
	require.NoError(t, dst.Apply(0, data, end))
	assert.Equal(t, uint64(1), dst.TailLSN(0))
}

func TestApplyRejectsTruncatedFrames(t *testing.T) {
	s := NewMemStore(4096)
	assert.Error(t, s.Apply(0, []byte{1, 2, 3}, 1))
}

func TestCheckpointFreezesChunks(t *testing.T) {
	s := NewMemStore(64)
	s.SetChunks(1, [][]byte{[]byte("c0"), []byte("c1"), []byte("c2")})
	s.Append(1, []byte("rec"))

	s.Checkpoint(1)
	assert.Equal(t, int32(3), s.ChunkCount(1))
	assert.Equal(t, uint64(1), s.SnapshotLSN(1))

	// Later chunk mutation does not affect the frozen snapshot.
	s.SetChunks(1, nil)
	assert.Equal(t, int32(3), s.ChunkCount(1))
}

func TestReadChunkAndInstallRoundTrip(t *testing.T) {
	src := NewMemStore(64)
	dst := NewMemStore(64)
	src.SetChunks(0, [][]byte{[]byte("c0"), []byte("c1"), []byte("c2")})
	src.Checkpoint(0)

	// Assemble a batch through a reused staging block, the way the
	// manager streams chunks.
	stage := make([]byte, 64)
	var batch []byte
	for i := int32(0); i < 3; i++ {
		require.NoError(t, src.ReadChunk(0, i, stage))
		batch = append(batch, stage...)
	}
	assert.Len(t, batch, 192)
	assert.Equal(t, byte('c'), batch[64])

	require.NoError(t, dst.Prepare(0))
	require.NoError(t, dst.Install(0, batch, 64, 3))

	dst.Checkpoint(0)
	assert.Equal(t, int32(3), dst.ChunkCount(0))

	assert.Error(t, src.ReadChunk(0, 5, stage))
	assert.Error(t, src.ReadChunk(0, -1, stage))
}

func TestInstallRejectsMalformedBatch(t *testing.T) {
	s := NewMemStore(64)
	assert.Error(t, s.Install(0, []byte("short"), 64, 2))
	assert.Error(t, s.Install(0, nil, 0, 1))
}
