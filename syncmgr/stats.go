package syncmgr

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// OptStat aggregates allocation, reference and context counters per
// partition. The counters are advisory for operations but exact: tests
// assert them byte for byte. It doubles as a prometheus collector.
type OptStat struct {
	partitionNum uint32

	allocate      []atomic.Int64
	reference     []atomic.Int64
	totalAllocate []atomic.Uint64
	existContext  []atomic.Int64

	allocateDesc  *prometheus.Desc
	referenceDesc *prometheus.Desc
	totalDesc     *prometheus.Desc
	contextDesc   *prometheus.Desc
}

// NewOptStat creates counters for partitionNum partitions.
func NewOptStat(partitionNum uint32) *OptStat {
	labels := []string{"partition"}
	return &OptStat{
		partitionNum:  partitionNum,
		allocate:      make([]atomic.Int64, partitionNum),
		reference:     make([]atomic.Int64, partitionNum),
		totalAllocate: make([]atomic.Uint64, partitionNum),
		existContext:  make([]atomic.Int64, partitionNum),
		allocateDesc: prometheus.NewDesc(
			"partsync_allocated_bytes",
			"Bytes currently allocated for sync buffers.", labels, nil),
		referenceDesc: prometheus.NewDesc(
			"partsync_outstanding_allocations",
			"Number of outstanding sync buffer allocations.", labels, nil),
		totalDesc: prometheus.NewDesc(
			"partsync_allocated_bytes_total",
			"Cumulative bytes allocated for sync buffers.", labels, nil),
		contextDesc: prometheus.NewDesc(
			"partsync_live_contexts",
			"Number of live sync contexts.", labels, nil),
	}
}

// StatAllocate records an allocation of size bytes for pID.
func (s *OptStat) StatAllocate(pID uint32, size uint32) {
	s.allocate[pID].Add(int64(size))
	s.reference[pID].Add(1)
	s.totalAllocate[pID].Add(uint64(size))
}

// StatFree charges back a free of size bytes for pID.
func (s *OptStat) StatFree(pID uint32, size uint32) {
	s.allocate[pID].Add(-int64(size))
	s.reference[pID].Add(-1)
}

// SetContext counts a context creation on pID.
func (s *OptStat) SetContext(pID PartitionID) {
	s.existContext[pID].Add(1)
}

// FreeContext counts a context removal on pID.
func (s *OptStat) FreeContext(pID PartitionID) {
	s.existContext[pID].Add(-1)
}

// Clear resets every counter. Used by tests.
func (s *OptStat) Clear() {
	for p := uint32(0); p < s.partitionNum; p++ {
		s.allocate[p].Store(0)
		s.reference[p].Store(0)
		s.totalAllocate[p].Store(0)
		s.existContext[p].Store(0)
	}
}

// AllocateSize returns outstanding bytes for pID.
func (s *OptStat) AllocateSize(pID PartitionID) uint64 {
	return uint64(s.allocate[pID].Load())
}

// ReferenceCount returns outstanding allocations for pID.
func (s *OptStat) ReferenceCount(pID PartitionID) int64 {
	return s.reference[pID].Load()
}

// ContextCount returns live contexts for pID.
func (s *OptStat) ContextCount(pID PartitionID) int64 {
	return s.existContext[pID].Load()
}

// TotalAllocateSize returns cumulative bytes across all partitions.
func (s *OptStat) TotalAllocateSize() uint64 {
	var total uint64
	for p := uint32(0); p < s.partitionNum; p++ {
		total += s.totalAllocate[p].Load()
	}
	return total
}

// AllAllocateSize returns outstanding bytes across all partitions.
func (s *OptStat) AllAllocateSize() uint64 {
	var total uint64
	for p := uint32(0); p < s.partitionNum; p++ {
		total += uint64(s.allocate[p].Load())
	}
	return total
}

// UnfixCount returns outstanding allocations across all partitions.
func (s *OptStat) UnfixCount() uint64 {
	var total uint64
	for p := uint32(0); p < s.partitionNum; p++ {
		total += uint64(s.reference[p].Load())
	}
	return total
}

// AllContextCount returns live contexts across all partitions.
func (s *OptStat) AllContextCount() uint64 {
	var total uint64
	for p := uint32(0); p < s.partitionNum; p++ {
		total += uint64(s.existContext[p].Load())
	}
	return total
}

// Dump renders the per-partition allocation counters.
func (s *OptStat) Dump() string {
	var b strings.Builder
	b.WriteString("allocate info:{")
	for p := uint32(0); p < s.partitionNum; p++ {
		fmt.Fprintf(&b, " {pId=%d, allocate:%d, ref:%d}",
			p, s.allocate[p].Load(), s.reference[p].Load())
	}
	b.WriteString("}")
	return b.String()
}

// Describe implements prometheus.Collector.
func (s *OptStat) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.allocateDesc
	ch <- s.referenceDesc
	ch <- s.totalDesc
	ch <- s.contextDesc
}

// Collect implements prometheus.Collector.
func (s *OptStat) Collect(ch chan<- prometheus.Metric) {
	for p := uint32(0); p < s.partitionNum; p++ {
		label := strconv.FormatUint(uint64(p), 10)
		ch <- prometheus.MustNewConstMetric(s.allocateDesc,
			prometheus.GaugeValue, float64(s.allocate[p].Load()), label)
		ch <- prometheus.MustNewConstMetric(s.referenceDesc,
			prometheus.GaugeValue, float64(s.reference[p].Load()), label)
		ch <- prometheus.MustNewConstMetric(s.totalDesc,
			prometheus.CounterValue, float64(s.totalAllocate[p].Load()), label)
		ch <- prometheus.MustNewConstMetric(s.contextDesc,
			prometheus.GaugeValue, float64(s.existContext[p].Load()), label)
	}
}

var _ prometheus.Collector = (*OptStat)(nil)
