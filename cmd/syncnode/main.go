package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/proto/syncpb"
	"github.com/chn0318/partsync/storage"
	"github.com/chn0318/partsync/syncmgr"
	"github.com/chn0318/partsync/syncsvc"
)

// clusterReporter is the membership hook of a standalone node: sync
// outcomes are logged for the operator.
type clusterReporter struct {
	log zerolog.Logger
}

func (c *clusterReporter) ReportSyncCompleted(pID partition.ID, rev partition.Revision) {
	c.log.Info().Uint32("pId", pID).Uint64("rev", rev).Msg("sync completed")
}

func (c *clusterReporter) ReportSyncFailed(pID partition.ID, rev partition.Revision) {
	c.log.Warn().Uint32("pId", pID).Uint64("rev", rev).Msg("sync failed")
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	v := viper.New()
	syncmgr.RegisterParameters(v)
	v.SetDefault("node.id", 0)
	v.SetDefault("node.listen", ":50061")
	v.SetDefault("node.partition_num", 128)
	v.SetDefault("node.group_num", 4)
	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			logger.Fatal().Err(err).Msg("read config")
		}
	}

	self := partition.NodeID(v.GetInt32("node.id"))
	pt := partition.NewTable(uint32(v.GetInt("node.partition_num")), self)
	for id, addr := range v.GetStringMapString("node.peers") {
		nodeID, err := strconv.ParseInt(id, 10, 32)
		if err != nil {
			logger.Fatal().Str("peer", id).Msg("bad peer node id")
		}
		pt.SetNodeAddr(partition.NodeID(nodeID), addr)
	}

	numGroups := uint32(v.GetInt("node.group_num"))
	mgr, err := syncmgr.NewManager(v, pt, numGroups, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build sync manager")
	}

	store := storage.NewMemStore(mgr.Config().BlockSize())
	svc := syncsvc.NewService(mgr, numGroups, logger)
	peers := syncsvc.NewPeerPool(pt, logger)
	defer peers.Close()
	emitter := syncsvc.NewEmitter(mgr.ExtraConfig(), peers, logger)

	cpRunner := storage.NewCheckpointRunner(store, func(pID partition.ID, ssn int64) {
		entry := mgr.LongSyncEntryOf(pID, true)
		if entry.SequentialNumber != ssn {
			return
		}
		svc.PostCheckpointCompleted(pID, entry.SyncID)
	})

	mgr.Initialize(syncmgr.Collaborators{
		Cluster:    &clusterReporter{log: logger},
		Checkpoint: cpRunner,
		Log:        store,
		Chunks:     store,
		Emitter:    emitter,
	})

	lis, err := net.Listen("tcp", v.GetString("node.listen"))
	if err != nil {
		logger.Fatal().Err(err).Msg("listen")
	}
	grpcServer := grpc.NewServer()
	syncpb.RegisterTransitServer(grpcServer, svc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchdogInterval := syncmgr.MillisToDuration(mgr.Config().SyncTimeoutInterval())
	wd := syncsvc.NewWatchdog(mgr, watchdogInterval/syncmgr.DefaultDetectSyncErrorCount, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return emitter.Run(ctx) })
	g.Go(func() error { return wd.Run(ctx) })
	g.Go(func() error {
		logger.Info().Str("addr", lis.Addr().String()).Msg("sync node listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("sync node exited")
	}
}
