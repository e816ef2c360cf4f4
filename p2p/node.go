// Package p2p implements meshstate's gossip-and-DHT replication fabric
// (§4.5): a libp2p host running gossipsub over the fixed topic set plus
// mDNS peer discovery on the local network, adapted from the teacher's
// core/network.go Node.
package p2p

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"

	"meshstate/core"
)

// Config controls how a Node binds and discovers peers.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string // mDNS service tag; defaults to "meshstate" if empty
	RPCAddr        string // this node's own RPC endpoint, advertised on roots/v1 so peers can pull state from it
}

// peerRootInfo is the most recently advertised root/score/RPC endpoint
// known for a peer, learned from roots/v1 envelopes.
type peerRootInfo struct {
	RPCAddr string
	Root    core.Hash
	Score   uint64
}

// PeerInfo is the locally-tracked record for a known peer.
type PeerInfo struct {
	ID   peer.ID
	Addr string
}

// Node is a meshstate gossip participant: it joins the fixed topic set,
// deduplicates inbound messages by msg_id, applies validated messages to
// the local StateEngine, and tracks per-peer relay scores.
type Node struct {
	host   libp2pHost
	pubsub *pubsub.PubSub

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic
	subLock   sync.Mutex
	subs      map[string]*pubsub.Subscription

	peerLock sync.RWMutex
	peers    map[peer.ID]*PeerInfo

	peerRootLock sync.RWMutex
	peerRoots    map[peer.ID]peerRootInfo

	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	log    *logrus.Logger

	engine      *core.StateEngine
	scores      *ScoreBoard
	dedup       *dedupCache
	rpcAddr     string
	syncSession *SyncSession
}

// libp2pHost narrows the libp2p host.Host interface to what Node uses,
// keeping the rest of this package testable against a fake.
type libp2pHost interface {
	ID() peer.ID
	Connect(ctx context.Context, pi peer.AddrInfo) error
	Close() error
}

// NewNode creates and bootstraps a meshstate P2P node bound to cfg, wired
// to apply validated gossip against engine.
func NewNode(cfg Config, engine *core.StateEngine, log *logrus.Logger) (*Node, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.DiscoveryTag == "" {
		cfg.DiscoveryTag = "meshstate"
	}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("p2p: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: create pubsub: %w", err)
	}

	n := &Node{
		host:      h,
		pubsub:    ps,
		topics:    make(map[string]*pubsub.Topic),
		subs:      make(map[string]*pubsub.Subscription),
		peers:     make(map[peer.ID]*PeerInfo),
		peerRoots: make(map[peer.ID]peerRootInfo),
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		log:       log,
		engine:    engine,
		scores:    NewScoreBoard(),
		dedup:     newDedupCache(dedupCacheSize),
		rpcAddr:   cfg.RPCAddr,
	}

	if err := n.dialSeeds(cfg.BootstrapPeers); err != nil {
		log.Warnf("p2p: dial seeds: %v", err)
	}

	if err := mdns.NewMdnsService(h, cfg.DiscoveryTag, n).Start(); err != nil {
		log.Warnf("p2p: start mdns: %v", err)
	}

	return n, nil
}

var _ mdns.Notifee = (*Node)(nil)

// HandlePeerFound implements mdns.Notifee: dial a peer discovered on the
// local network, ignoring self and already-known peers.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	n.peerLock.RLock()
	_, known := n.peers[info.ID]
	n.peerLock.RUnlock()
	if known {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		n.log.Warnf("p2p: connect to discovered peer %s: %v", info.ID, err)
		return
	}
	n.peerLock.Lock()
	n.peers[info.ID] = &PeerInfo{ID: info.ID, Addr: info.String()}
	n.peerLock.Unlock()
	n.log.Infof("p2p: connected to %s via mDNS", info.ID)
}

func (n *Node) dialSeeds(seeds []string) error {
	var firstErr error
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid addr %s: %w", addr, err)
			}
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("connect %s: %w", addr, err)
			}
			continue
		}
		n.peerLock.Lock()
		n.peers[pi.ID] = &PeerInfo{ID: pi.ID, Addr: addr}
		n.peerLock.Unlock()
		n.log.Infof("p2p: bootstrapped to %s", addr)
	}
	return firstErr
}

// ID returns this node's own libp2p peer identity.
func (n *Node) ID() peer.ID { return n.host.ID() }

// Peers returns the current known-peer list.
func (n *Node) Peers() []*PeerInfo {
	n.peerLock.RLock()
	defer n.peerLock.RUnlock()
	out := make([]*PeerInfo, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// SetSyncSession wires s as the session the node points at a peer's
// advertised (or gossip-implied) root when local state falls behind
// (§4.5). It is set once at node startup, after both the node and the
// session have been constructed, to avoid a construction-order cycle.
func (n *Node) SetSyncSession(s *SyncSession) { n.syncSession = s }

// recordPeerRoot remembers relayer's most recently advertised root/score/
// RPC endpoint and, if it looks like an improvement on local state,
// redirects the sync session at it.
func (n *Node) recordPeerRoot(relayer peer.ID, ad rootAdvertisement) {
	n.peerRootLock.Lock()
	n.peerRoots[relayer] = peerRootInfo{RPCAddr: ad.RPCAddr, Root: ad.Root, Score: ad.Score}
	n.peerRootLock.Unlock()
	n.maybeSync(ad.Root, ad.Score, ad.RPCAddr)
}

// triggerSyncFromMismatch is called when applying a gossiped message fails
// with ErrRootMismatch: it looks up whatever root/score the relaying peer
// last advertised and, if known, points the sync session at it rather than
// just dropping the message (§4.5 delivery rule 4).
func (n *Node) triggerSyncFromMismatch(relayer peer.ID) {
	n.peerRootLock.RLock()
	info, ok := n.peerRoots[relayer]
	n.peerRootLock.RUnlock()
	if !ok {
		return
	}
	n.maybeSync(info.Root, info.Score, info.RPCAddr)
}

// maybeSync points the sync session at (rpcAddr, root) when it differs
// from the local root and its consensus score is at least the local one,
// the same tie-breaker policy §4.4 uses for conflicting roots generally.
func (n *Node) maybeSync(root core.Hash, score uint64, rpcAddr string) {
	if n.syncSession == nil || rpcAddr == "" || root == n.engine.Root() {
		return
	}
	localScore, err := n.engine.ConsensusScore()
	if err != nil {
		n.log.Warnf("p2p: consensus score: %v", err)
		return
	}
	if score < localScore {
		return
	}
	n.syncSession.Target(rpcAddr, root)
}

// Close tears the node down, closing every subscription's consuming host.
func (n *Node) Close() error {
	n.cancel()
	return n.host.Close()
}

func (n *Node) joinTopic(topic string) (*pubsub.Topic, error) {
	n.topicLock.Lock()
	defer n.topicLock.Unlock()
	if t, ok := n.topics[topic]; ok {
		return t, nil
	}
	t, err := n.pubsub.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("p2p: join topic %s: %w", topic, err)
	}
	n.topics[topic] = t
	return t, nil
}
