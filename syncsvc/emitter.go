package syncsvc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/proto/syncpb"
	"github.com/chn0318/partsync/syncmgr"
)

// PayloadKind classifies outbound traffic for pacing purposes.
type PayloadKind int8

const (
	KindControl PayloadKind = iota
	KindLog
	KindChunk
)

// classify maps an outbound operation to its sync mode and payload kind.
func classify(op syncpb.SyncOp) (syncmgr.Mode, PayloadKind) {
	switch op {
	case syncpb.SyncOp_SHORTTERM_SYNC_LOG:
		return syncmgr.ModeShorttermSync, KindLog
	case syncpb.SyncOp_LONGTERM_SYNC_LOG:
		return syncmgr.ModeLongtermSync, KindLog
	case syncpb.SyncOp_LONGTERM_SYNC_CHUNK:
		return syncmgr.ModeLongtermSync, KindChunk
	case syncpb.SyncOp_SHORTTERM_SYNC_REQUEST,
		syncpb.SyncOp_SHORTTERM_SYNC_START,
		syncpb.SyncOp_SHORTTERM_SYNC_START_ACK,
		syncpb.SyncOp_SHORTTERM_SYNC_LOG_ACK,
		syncpb.SyncOp_SHORTTERM_SYNC_END,
		syncpb.SyncOp_SHORTTERM_SYNC_END_ACK:
		return syncmgr.ModeShorttermSync, KindControl
	default:
		return syncmgr.ModeLongtermSync, KindControl
	}
}

// PacingDelay selects the per-batch delay for an emission given the
// pending outbound queue depth: beyond the configured limit the high-load
// interval applies, below it the low-load one. Control traffic is never
// delayed.
func PacingDelay(extra *syncmgr.ExtraConfig, mode syncmgr.Mode, kind PayloadKind, pending int) time.Duration {
	if kind == KindControl {
		return 0
	}
	var limit, low, high int32
	switch mode {
	case syncmgr.ModeShorttermSync:
		limit = extra.LimitShorttermQueueSize()
		low = extra.ShorttermLowLoadLogInterval()
		high = extra.ShorttermHighLoadLogInterval()
	case syncmgr.ModeLongtermSync:
		limit = extra.LimitLongtermQueueSize()
		if kind == KindChunk {
			low = extra.LongtermLowLoadChunkInterval()
			high = extra.LongtermHighLoadChunkInterval()
		} else {
			low = extra.LongtermLowLoadLogInterval()
			high = extra.LongtermHighLoadLogInterval()
		}
	}
	if pending > int(limit) {
		return time.Duration(high) * time.Millisecond
	}
	return time.Duration(low) * time.Millisecond
}

// Sender delivers an envelope to a peer node.
type Sender interface {
	Send(target partition.NodeID, env *syncpb.SyncEnvelope) error
}

type outbound struct {
	target partition.NodeID
	env    *syncpb.SyncEnvelope
}

// Emitter is the outbound side of the service. Emissions enqueue on a
// buffered channel of groupQueueCap entries and block only when it is
// full; a drain goroutine applies the configured pacing before handing
// each envelope to the peer pool.
type Emitter struct {
	extra  *syncmgr.ExtraConfig
	sender Sender
	ch     chan outbound

	pendingShortterm atomic.Int64
	pendingLongterm  atomic.Int64

	log zerolog.Logger
}

// NewEmitter creates an emitter draining into sender.
func NewEmitter(extra *syncmgr.ExtraConfig, sender Sender, logger zerolog.Logger) *Emitter {
	return &Emitter{
		extra:  extra,
		sender: sender,
		ch:     make(chan outbound, groupQueueCap),
		log:    logger.With().Str("component", "emitter").Logger(),
	}
}

// Emit implements syncmgr.Emitter.
func (e *Emitter) Emit(target partition.NodeID, env *syncpb.SyncEnvelope) {
	mode, _ := classify(env.Op)
	e.pendingOf(mode).Add(1)
	e.ch <- outbound{target: target, env: env}
}

// PendingCount reports outbound envelopes not yet handed to the transport.
func (e *Emitter) PendingCount(mode syncmgr.Mode) int {
	return int(e.pendingOf(mode).Load())
}

func (e *Emitter) pendingOf(mode syncmgr.Mode) *atomic.Int64 {
	if mode == syncmgr.ModeShorttermSync {
		return &e.pendingShortterm
	}
	return &e.pendingLongterm
}

// Run drains the queue until ctx is cancelled.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-e.ch:
			mode, kind := classify(out.env.Op)
			pending := int(e.pendingOf(mode).Load())
			if delay := PacingDelay(e.extra, mode, kind, pending); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
			e.pendingOf(mode).Add(-1)
			if err := e.sender.Send(out.target, out.env); err != nil {
				e.log.Warn().Err(err).
					Int32("target", out.target).
					Str("op", syncmgr.Operation(out.env.Op).String()).
					Uint32("pId", out.env.PartitionId).
					Msg("outbound send failed")
			}
		}
	}
}
