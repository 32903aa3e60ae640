// Package syncsvc embeds the sync manager in its event service: inbound
// operations are dispatched on per-partition-group workers, outbound
// operations flow through a pacing emitter to peer Transit streams.
package syncsvc

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/proto/syncpb"
	"github.com/chn0318/partsync/syncmgr"
)

// groupQueueCap bounds each partition-group queue. Posting blocks when the
// group is saturated, preserving per-partition arrival order.
const groupQueueCap = 8192

// Service runs one worker goroutine per partition group. All mutations of
// one partition's contexts happen on its group worker, so they are
// sequential; groups run concurrently.
type Service struct {
	syncpb.UnimplementedTransitServer

	mgr       *syncmgr.Manager
	numGroups uint32
	queues    []chan func()
	stopped   chan struct{}
	log       zerolog.Logger
}

// NewService creates the event service over mgr with numGroups workers.
func NewService(mgr *syncmgr.Manager, numGroups uint32, logger zerolog.Logger) *Service {
	if numGroups == 0 {
		numGroups = 1
	}
	s := &Service{
		mgr:       mgr,
		numGroups: numGroups,
		queues:    make([]chan func(), numGroups),
		stopped:   make(chan struct{}),
		log:       logger.With().Str("component", "syncsvc").Logger(),
	}
	for i := range s.queues {
		s.queues[i] = make(chan func(), groupQueueCap)
	}
	return s
}

// Run drives the group workers until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	done := make(chan struct{}, s.numGroups)
	for g := uint32(0); g < s.numGroups; g++ {
		go func(q chan func()) {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case fn := <-q:
					fn()
				case <-ctx.Done():
					return
				}
			}
		}(s.queues[g])
	}
	<-ctx.Done()
	for g := uint32(0); g < s.numGroups; g++ {
		<-done
	}
	close(s.stopped)
	return ctx.Err()
}

// Post routes an inbound operation to its partition's group worker.
func (s *Service) Post(env *syncpb.SyncEnvelope) {
	g := s.mgr.GroupOf(env.PartitionId)
	s.queues[g] <- func() {
		if err := s.mgr.Dispatch(env); err != nil {
			s.logDispatchError(env, err)
		}
	}
}

// PostCheckpointCompleted resumes a long-term sync on its group worker
// once the checkpoint service finished the snapshot.
func (s *Service) PostCheckpointCompleted(pID partition.ID, syncID syncmgr.SyncID) {
	g := s.mgr.GroupOf(pID)
	s.queues[g] <- func() {
		if err := s.mgr.HandleCheckpointCompleted(pID, syncID); err != nil {
			s.log.Error().Err(err).Uint32("pId", pID).
				Msg("checkpoint completion handling failed")
		}
	}
}

func (s *Service) logDispatchError(env *syncpb.SyncEnvelope, err error) {
	op := syncmgr.Operation(env.Op)
	switch {
	case errors.Is(err, syncmgr.ErrStaleMessage):
		s.log.Debug().Uint32("pId", env.PartitionId).
			Str("op", op.String()).Msg("stale message dropped")
	case errors.Is(err, syncmgr.ErrIllegalOperation),
		errors.Is(err, syncmgr.ErrInvalidPartition),
		errors.Is(err, syncmgr.ErrContextLimit):
		s.log.Warn().Err(err).Uint32("pId", env.PartitionId).
			Str("op", op.String()).Msg("operation rejected")
	default:
		s.log.Error().Err(err).Uint32("pId", env.PartitionId).
			Str("op", op.String()).Msg("operation failed")
	}
}

// Sync implements the Transit stream: every received envelope is posted to
// its partition group.
func (s *Service) Sync(stream syncpb.Transit_SyncServer) error {
	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		select {
		case <-s.stopped:
			return errors.New("sync service stopped")
		default:
		}
		s.Post(env)
	}
}

// Dump implements the Transit operator endpoint.
func (s *Service) Dump(ctx context.Context, req *syncpb.DumpRequest) (*syncpb.DumpResponse, error) {
	if req.All {
		return &syncpb.DumpResponse{Dump: s.mgr.DumpAll()}, nil
	}
	return &syncpb.DumpResponse{Dump: s.mgr.Dump(req.PartitionId)}, nil
}
