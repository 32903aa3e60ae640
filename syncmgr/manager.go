package syncmgr

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/chn0318/partsync/bufalloc"
	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/proto/syncpb"
)

// Manager-wide sync modes. Under SyncModeRetryChunk a failed chunk install
// on the catchup restarts chunk streaming from the first chunk; under
// SyncModeNormal it tears the long-term sync down.
const (
	SyncModeNormal     int32 = 0
	SyncModeRetryChunk int32 = 1
)

// slowShorttermDumpThreshold gates detailed dumps of finished short-term
// syncs.
const slowShorttermDumpThreshold = 15 * time.Second

// ClusterManager receives role-change outcomes of finished syncs.
type ClusterManager interface {
	// ReportSyncCompleted tells the membership layer that the replica set
	// of pID is in agreement at rev, allowing promotion.
	ReportSyncCompleted(pID PartitionID, rev Revision)

	// ReportSyncFailed tells the membership layer that the sync for pID
	// at rev was abandoned; the partition rejoins with a fresh revision.
	ReportSyncFailed(pID PartitionID, rev Revision)
}

// CheckpointService starts a storage snapshot for a long-term sync. The
// completion signal arrives asynchronously as a checkpoint-completed
// operation posted back to the sync service.
type CheckpointService interface {
	RequestSyncCheckpoint(pID PartitionID, ssn int64) error
}

// LogStore reads and applies redo log on behalf of the sync protocols.
type LogStore interface {
	TailLSN(pID PartitionID) LSN

	// Read returns up to maxBytes of encoded log starting at from,
	// together with the [start, end] LSN range actually read.
	Read(pID PartitionID, from LSN, maxBytes int32) (data []byte, start, end LSN, err error)

	// Apply replays an encoded log slice ending at end.
	Apply(pID PartitionID, data []byte, end LSN) error
}

// ChunkStore produces and installs snapshot chunks for long-term sync.
type ChunkStore interface {
	ChunkCount(pID PartitionID) int32

	// SnapshotLSN is the log position the finished snapshot covers; log
	// catchup resumes from here.
	SnapshotLSN(pID PartitionID) LSN

	// ReadChunk fills buf (one block) with the chunkNo-th snapshot chunk.
	ReadChunk(pID PartitionID, chunkNo int32, buf []byte) error

	// Prepare clears local partition state ahead of a snapshot install.
	Prepare(pID PartitionID) error

	// Install applies a batch of chunkNum chunks of chunkSize bytes.
	Install(pID PartitionID, data []byte, chunkSize, chunkNum int32) error
}

// Emitter posts outbound operations to the transport. Implementations
// apply the configured backpressure pacing before sending.
type Emitter interface {
	Emit(target NodeID, env *syncpb.SyncEnvelope)
}

// Collaborators is the immutable record of external services the manager
// drives. Injected once at Initialize; never back-patched afterwards.
type Collaborators struct {
	Cluster    ClusterManager
	Checkpoint CheckpointService
	Log        LogStore
	Chunks     ChunkStore
	Emitter    Emitter
}

// Manager owns the per-partition context tables, the sized-buffer
// allocator, the long-term sync registry and the statistics, and applies
// the short-term and long-term state machines to inbound operations.
type Manager struct {
	cfg   *SyncConfig
	extra *ExtraConfig
	stat  *OptStat

	varAlloc *bufalloc.Allocator
	pt       *partition.Table
	registry *longSyncRegistry

	// tableLock serializes reconfiguration (partition add/remove) against
	// per-group operation dispatch.
	tableLock sync.RWMutex
	tables    []*contextTable

	ssnCounter atomic.Int64
	syncMode   atomic.Int32

	numGroups  uint32
	chunkStage []byte // per partition-group staging area, blockSize each

	collab        Collaborators
	initialized   bool
	currentStatus SyncStatus

	log zerolog.Logger
}

// NewManager builds a manager for the partitions of pt, reading its
// configuration from v. numGroups is the partition-group worker count of
// the embedding event service.
func NewManager(v *viper.Viper, pt *partition.Table, numGroups uint32, logger zerolog.Logger) (*Manager, error) {
	cfg, err := NewSyncConfig(v)
	if err != nil {
		return nil, err
	}
	extra, err := NewExtraConfig(v)
	if err != nil {
		return nil, err
	}
	if numGroups == 0 {
		numGroups = 1
	}

	stat := NewOptStat(pt.PartitionNum())
	m := &Manager{
		cfg:        cfg,
		extra:      extra,
		stat:       stat,
		varAlloc:   bufalloc.New(stat, 0),
		pt:         pt,
		registry:   newLongSyncRegistry(pt.PartitionNum()),
		tables:     make([]*contextTable, pt.PartitionNum()),
		numGroups:  numGroups,
		chunkStage: make([]byte, int(numGroups)*int(cfg.BlockSize())),
		log:        logger.With().Str("component", "syncmgr").Logger(),
	}
	for p := PartitionID(0); p < pt.PartitionNum(); p++ {
		m.tables[p] = newContextTable(p, m.varAlloc)
	}
	m.currentStatus.clear()
	return m, nil
}

// Initialize injects the collaborator record. Must be called exactly once
// before the first operation is dispatched.
func (m *Manager) Initialize(c Collaborators) {
	m.collab = c
	m.initialized = true
}

func (m *Manager) Config() *SyncConfig           { return m.cfg }
func (m *Manager) ExtraConfig() *ExtraConfig     { return m.extra }
func (m *Manager) Stat() *OptStat                { return m.stat }
func (m *Manager) PartitionTable() *partition.Table { return m.pt }

func (m *Manager) SetSyncMode(mode int32) { m.syncMode.Store(mode) }
func (m *Manager) SyncMode() int32        { return m.syncMode.Load() }

// ChunkStageBuffer returns the staging block of one partition group. Chunk
// reads land here before being copied into a context's batch buffer; the
// group's single-threaded dispatch makes the block exclusive.
func (m *Manager) ChunkStageBuffer(pgID uint32) []byte {
	bs := int(m.cfg.BlockSize())
	return m.chunkStage[int(pgID)*bs : int(pgID+1)*bs]
}

// GroupOf maps a partition to its worker group.
func (m *Manager) GroupOf(pID PartitionID) uint32 {
	return uint32(pID) % m.numGroups
}

// roleLegalForMode reports whether role may open a context in mode.
func roleLegalForMode(mode Mode, role partition.Role) bool {
	switch mode {
	case ModeShorttermSync:
		return role == partition.RoleOwner || role == partition.RoleBackup
	case ModeLongtermSync:
		return role == partition.RoleOwner || role == partition.RoleCatchup
	}
	return false
}

// CreateSyncContext opens a context for one sync episode. Long-term
// contexts are registered as the unique in-flight long-term sync of their
// side for the partition.
func (m *Manager) CreateSyncContext(pID PartitionID, ptRev Revision, mode Mode, role partition.Role) (*SyncContext, error) {
	if pID >= m.pt.PartitionNum() {
		return nil, errors.Wrapf(ErrInvalidPartition, "pId=%d", pID)
	}
	if !roleLegalForMode(mode, role) {
		return nil, errors.Wrapf(ErrIllegalOperation,
			"role %s cannot open %s context", role, mode)
	}

	m.tableLock.RLock()
	defer m.tableLock.RUnlock()

	table := m.tables[pID]
	if mode == ModeLongtermSync {
		existing := m.registry.entry(pID, role == partition.RoleOwner)
		if existing.SyncID.Valid() {
			return nil, errors.Wrapf(ErrContextLimit,
				"long-term sync already in flight for pId=%d side=%s", pID, role)
		}
	}

	ctx, err := table.createSyncContext(ptRev)
	if err != nil {
		return nil, err
	}
	ctx.setSyncMode(mode, role)
	ctx.setSequentialNumber(m.ssnCounter.Add(1) - 1)
	ctx.StartAll()
	m.stat.SetContext(pID)

	if mode == ModeLongtermSync {
		m.registry.register(pID, ctx)
	}

	m.log.Debug().
		Uint32("pId", pID).
		Str("syncId", ctx.SyncID().String()).
		Str("mode", mode.String()).
		Str("role", role.String()).
		Int64("ssn", ctx.SequentialNumber()).
		Msg("sync context created")
	return ctx, nil
}

// GetSyncContext resolves syncID for pID, or nil when the id is unset,
// out of range, dead, or of a stale version.
func (m *Manager) GetSyncContext(pID PartitionID, syncID SyncID) *SyncContext {
	if pID >= m.pt.PartitionNum() || !syncID.Valid() {
		return nil
	}
	m.tableLock.RLock()
	defer m.tableLock.RUnlock()
	return m.tables[pID].getSyncContext(syncID.ContextID, syncID.ContextVersion)
}

// RemoveSyncContext tears down ctx: buffers freed, long-term registration
// cleared, slot recycled. Idempotent on already-removed contexts. failed
// marks an abnormal end and reports the failure to the cluster.
func (m *Manager) RemoveSyncContext(pID PartitionID, ctx *SyncContext, failed bool) {
	if ctx == nil || !ctx.Used() {
		return
	}

	ctx.EndAll()
	if failed || ctx.CheckTotalTime(slowShorttermDumpThreshold) {
		ev := m.log.Info()
		if failed {
			ev = m.log.Warn()
		}
		ev.Uint32("pId", pID).Bool("failed", failed).
			Str("context", ctx.Dump()).Msg("sync context removed")
	}

	if ctx.Mode() == ModeLongtermSync {
		m.registry.reset(pID, ctx.RoleStatus() == partition.RoleOwner)
	}
	if failed && m.collab.Cluster != nil {
		m.collab.Cluster.ReportSyncFailed(pID, ctx.Revision())
	}

	m.tableLock.RLock()
	table := m.tables[pID]
	m.tableLock.RUnlock()

	table.removeSyncContext(ctx)
	m.stat.FreeContext(pID)
}

// RemovePartition removes every live context of pID and resets its table,
// discarding all slots. Idempotent.
func (m *Manager) RemovePartition(pID PartitionID) {
	if pID >= m.pt.PartitionNum() {
		return
	}

	m.tableLock.Lock()
	table := m.tables[pID]
	m.tables[pID] = newContextTable(pID, m.varAlloc)
	m.tableLock.Unlock()

	table.forEachLive(func(ctx *SyncContext) {
		if ctx.Mode() == ModeLongtermSync {
			m.registry.reset(pID, ctx.RoleStatus() == partition.RoleOwner)
		}
		table.removeSyncContext(ctx)
		m.stat.FreeContext(pID)
	})
}

// CancelPartition cancels every in-flight sync of pID in both roles
// without emitting replies. Contexts are freed; slots survive.
func (m *Manager) CancelPartition(pID PartitionID) {
	if pID >= m.pt.PartitionNum() {
		return
	}

	m.tableLock.RLock()
	table := m.tables[pID]
	m.tableLock.RUnlock()

	table.forEachLive(func(ctx *SyncContext) {
		m.RemoveSyncContext(pID, ctx, true)
	})
}

// SetCurrentSyncID focuses the long-term engine on ctx's partition.
func (m *Manager) SetCurrentSyncID(pID PartitionID, ctx *SyncContext) {
	m.registry.register(pID, ctx)
}

// CurrentSyncID returns the focused long-term sync of one side.
func (m *Manager) CurrentSyncID(isOwner bool) (PartitionID, LongSyncEntry) {
	return m.registry.current(isOwner)
}

// LongSyncEntryOf returns the registered long-term sync of one side for pID.
func (m *Manager) LongSyncEntryOf(pID PartitionID, isOwner bool) LongSyncEntry {
	return m.registry.entry(pID, isOwner)
}

// ContextCount returns live contexts across all partitions.
func (m *Manager) ContextCount() int {
	m.tableLock.RLock()
	defer m.tableLock.RUnlock()
	total := 0
	for _, t := range m.tables {
		total += int(t.usedNum())
	}
	return total
}

// UsedNum returns live contexts of one partition.
func (m *Manager) UsedNum(pID PartitionID) int {
	if pID >= m.pt.PartitionNum() {
		return 0
	}
	m.tableLock.RLock()
	defer m.tableLock.RUnlock()
	return int(m.tables[pID].usedNum())
}

// Dump renders the live contexts of one partition.
func (m *Manager) Dump(pID PartitionID) string {
	if pID >= m.pt.PartitionNum() {
		return ""
	}
	m.tableLock.RLock()
	table := m.tables[pID]
	m.tableLock.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "pId=%d contexts:[", pID)
	table.forEachLive(func(ctx *SyncContext) {
		b.WriteString(ctx.Dump())
	})
	b.WriteString("]")
	return b.String()
}

// DumpAll renders every partition with live contexts plus the statistics.
func (m *Manager) DumpAll() string {
	var b strings.Builder
	for p := PartitionID(0); p < m.pt.PartitionNum(); p++ {
		if m.UsedNum(p) > 0 {
			b.WriteString(m.Dump(p))
			b.WriteString("\n")
		}
	}
	b.WriteString(m.stat.Dump())
	return b.String()
}
