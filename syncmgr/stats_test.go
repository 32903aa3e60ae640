package syncmgr

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptStatCounters(t *testing.T) {
	s := NewOptStat(3)

	s.StatAllocate(1, 100)
	s.StatAllocate(1, 200)
	s.StatAllocate(2, 50)
	s.SetContext(1)

	assert.Equal(t, uint64(300), s.AllocateSize(1))
	assert.Equal(t, int64(2), s.ReferenceCount(1))
	assert.Equal(t, uint64(50), s.AllocateSize(2))
	assert.Equal(t, int64(1), s.ContextCount(1))

	assert.Equal(t, uint64(350), s.AllAllocateSize())
	assert.Equal(t, uint64(350), s.TotalAllocateSize())
	assert.Equal(t, uint64(3), s.UnfixCount())
	assert.Equal(t, uint64(1), s.AllContextCount())

	s.StatFree(1, 100)
	s.FreeContext(1)
	assert.Equal(t, uint64(200), s.AllocateSize(1))
	assert.Equal(t, int64(1), s.ReferenceCount(1))
	assert.Zero(t, s.ContextCount(1))
	// Cumulative allocation never decreases on free.
	assert.Equal(t, uint64(350), s.TotalAllocateSize())

	s.Clear()
	assert.Zero(t, s.AllAllocateSize())
	assert.Zero(t, s.TotalAllocateSize())
	assert.Zero(t, s.UnfixCount())
}

func TestOptStatDump(t *testing.T) {
	s := NewOptStat(2)
	s.StatAllocate(0, 64)

	dump := s.Dump()
	assert.True(t, strings.HasPrefix(dump, "allocate info:{"))
	assert.Contains(t, dump, "{pId=0, allocate:64, ref:1}")
	assert.Contains(t, dump, "{pId=1, allocate:0, ref:0}")
}

func TestOptStatCollector(t *testing.T) {
	s := NewOptStat(2)
	s.StatAllocate(0, 128)
	s.SetContext(0)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(s))

	families, err := reg.Gather()
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	assert.True(t, found["partsync_allocated_bytes"])
	assert.True(t, found["partsync_outstanding_allocations"])
	assert.True(t, found["partsync_allocated_bytes_total"])
	assert.True(t, found["partsync_live_contexts"])
}
