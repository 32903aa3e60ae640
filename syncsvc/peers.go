package syncsvc

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/proto/syncpb"
)

// PeerPool maintains one Transit stream per peer node, dialling lazily
// from the addresses the partition table knows.
type PeerPool struct {
	pt  *partition.Table
	log zerolog.Logger

	mu    sync.Mutex
	peers map[partition.NodeID]*peerConn
}

type peerConn struct {
	cc     *grpc.ClientConn
	stream syncpb.Transit_SyncClient
	cancel context.CancelFunc
}

// NewPeerPool creates an empty pool resolving addresses through pt.
func NewPeerPool(pt *partition.Table, logger zerolog.Logger) *PeerPool {
	return &PeerPool{
		pt:    pt,
		log:   logger.With().Str("component", "peers").Logger(),
		peers: make(map[partition.NodeID]*peerConn),
	}
}

// Send implements Sender. A broken stream is dropped so the next send
// redials.
func (p *PeerPool) Send(target partition.NodeID, env *syncpb.SyncEnvelope) error {
	conn, err := p.get(target)
	if err != nil {
		return err
	}
	if err := conn.stream.Send(env); err != nil {
		p.drop(target)
		return errors.Wrapf(err, "send to node %d", target)
	}
	return nil
}

func (p *PeerPool) get(target partition.NodeID) (*peerConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.peers[target]; ok {
		return conn, nil
	}
	addr, ok := p.pt.NodeAddr(target)
	if !ok {
		return nil, errors.Newf("no address known for node %d", target)
	}
	cc, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "dial node %d at %s", target, addr)
	}
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := syncpb.NewTransitClient(cc).Sync(ctx)
	if err != nil {
		cancel()
		_ = cc.Close()
		return nil, errors.Wrapf(err, "open sync stream to node %d", target)
	}
	conn := &peerConn{cc: cc, stream: stream, cancel: cancel}
	p.peers[target] = conn
	p.log.Info().Int32("node", target).Str("addr", addr).Msg("peer stream opened")
	return conn, nil
}

func (p *PeerPool) drop(target partition.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.peers[target]; ok {
		conn.cancel()
		_ = conn.cc.Close()
		delete(p.peers, target)
	}
}

// Close tears down every peer stream.
func (p *PeerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, conn := range p.peers {
		conn.cancel()
		_ = conn.cc.Close()
		delete(p.peers, id)
	}
}
