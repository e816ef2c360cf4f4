package p2p

import (
	"container/list"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ethereum/go-ethereum/rlp"

	"meshstate/core"
)

// The fixed gossip topic set (§4.5 / SPEC_FULL §4.9).
const (
	TopicUpdates = "updates/v1" // Transfer and Burn envelopes
	TopicMints   = "mints/v1"   // Mint envelopes
	TopicTokens  = "tokens/v1"  // IssueToken envelopes
	TopicRoots   = "roots/v1"   // root-advertisement envelopes, for conflict resolution
)

const dedupCacheSize = 8192

// envelopeKind tags which decoder to use for a gossip payload; distinct
// from core.MsgKind since a roots/v1 envelope carries no message at all.
type envelopeKind byte

const (
	envTransfer envelopeKind = iota
	envMint
	envIssueToken
	envBurn
	envRoot
)

// Envelope is the outer framing every gossip publication carries: a kind
// tag plus the message's own canonical payload. The payload's internal
// layout is meshstate's hand-rolled fixed-field encoding (core/message.go);
// RLP is used only for this outer wrapper, giving the dependency a concrete
// home on the wire without displacing the bit-exact canonical codec the
// signing digest is computed over.
type Envelope struct {
	Kind    byte
	Payload []byte
}

// encodeEnvelope wraps a message kind tag and its canonical payload for
// publication.
func encodeEnvelope(kind envelopeKind, payload []byte) []byte {
	out, err := rlp.EncodeToBytes(Envelope{Kind: byte(kind), Payload: payload})
	if err != nil {
		// Envelope has no types rlp cannot encode; a failure here means a
		// caller passed a payload that isn't plain bytes, a programming error.
		panic(fmt.Sprintf("p2p: encode envelope: %v", err))
	}
	return out
}

func decodeEnvelope(raw []byte) (envelopeKind, []byte, error) {
	var env Envelope
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return 0, nil, fmt.Errorf("p2p: decode envelope: %w", err)
	}
	return envelopeKind(env.Kind), env.Payload, nil
}

// rootAdvertisement is the payload of a roots/v1 envelope: a snapshot of a
// peer's committed root plus its consensus score, used by the conflict
// tie-breaker (§4.4), plus the RPC endpoint a receiver can fetch a full
// state snapshot from if it decides this peer's root is worth converging
// on (§4.5 state-sync).
type rootAdvertisement struct {
	Root    core.Hash
	Score   uint64
	RPCAddr string
}

func encodeRootAdvertisement(a rootAdvertisement) []byte {
	addr := []byte(a.RPCAddr)
	out := make([]byte, 32+8+2+len(addr))
	copy(out[0:32], a.Root[:])
	binary.LittleEndian.PutUint64(out[32:40], a.Score)
	binary.LittleEndian.PutUint16(out[40:42], uint16(len(addr)))
	copy(out[42:], addr)
	return out
}

func decodeRootAdvertisement(b []byte) (rootAdvertisement, bool) {
	if len(b) < 42 {
		return rootAdvertisement{}, false
	}
	var a rootAdvertisement
	copy(a.Root[:], b[0:32])
	a.Score = binary.LittleEndian.Uint64(b[32:40])
	addrLen := int(binary.LittleEndian.Uint16(b[40:42]))
	if len(b) != 42+addrLen {
		return rootAdvertisement{}, false
	}
	a.RPCAddr = string(b[42 : 42+addrLen])
	return a, true
}

// dedupCache remembers recently-seen msg_ids (§4.5) with bounded memory: a
// doubly-linked list gives O(1) FIFO eviction once the cache fills, the
// same shape as the teacher's bounded in-memory caches elsewhere in the
// pack (e.g. mempool eviction).
type dedupCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[core.Hash]*list.Element
}

func newDedupCache(capacity int) *dedupCache {
	return &dedupCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[core.Hash]*list.Element),
	}
}

// seen reports whether id has been observed before, recording it if not.
func (c *dedupCache) seen(id core.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[id]; ok {
		return true
	}
	el := c.order.PushBack(id)
	c.index[id] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(core.Hash))
	}
	return false
}

// PublishTransfer gossips t on updates/v1.
func (n *Node) PublishTransfer(t core.Transfer) error {
	topic, err := n.joinTopic(TopicUpdates)
	if err != nil {
		return err
	}
	return topic.Publish(n.ctx, encodeEnvelope(envTransfer, core.EncodeTransferForGossip(t)))
}

// PublishBurn gossips b on updates/v1.
func (n *Node) PublishBurn(b core.Burn) error {
	topic, err := n.joinTopic(TopicUpdates)
	if err != nil {
		return err
	}
	return topic.Publish(n.ctx, encodeEnvelope(envBurn, core.EncodeBurnForGossip(b)))
}

// PublishMint gossips m on mints/v1.
func (n *Node) PublishMint(m core.Mint) error {
	topic, err := n.joinTopic(TopicMints)
	if err != nil {
		return err
	}
	return topic.Publish(n.ctx, encodeEnvelope(envMint, core.EncodeMintForGossip(m)))
}

// PublishIssueToken gossips i on tokens/v1.
func (n *Node) PublishIssueToken(i core.IssueToken) error {
	topic, err := n.joinTopic(TopicTokens)
	if err != nil {
		return err
	}
	return topic.Publish(n.ctx, encodeEnvelope(envIssueToken, core.EncodeIssueTokenForGossip(i)))
}

// PublishRoot advertises the node's current root and consensus score on
// roots/v1, feeding peers' conflict-resolution tie-breaking.
func (n *Node) PublishRoot(score uint64) error {
	topic, err := n.joinTopic(TopicRoots)
	if err != nil {
		return err
	}
	ad := rootAdvertisement{Root: n.engine.Root(), Score: score, RPCAddr: n.rpcAddr}
	return topic.Publish(n.ctx, encodeEnvelope(envRoot, encodeRootAdvertisement(ad)))
}

// Subscribe joins topic and applies every validated inbound envelope to the
// node's StateEngine, deduplicating by msg_id and penalizing the relaying
// peer (not the original signer, per §7) on malformed or invalid payloads.
func (n *Node) Subscribe(topic string) error {
	n.subLock.Lock()
	if _, ok := n.subs[topic]; ok {
		n.subLock.Unlock()
		return nil
	}
	t, err := n.joinTopic(topic)
	if err != nil {
		n.subLock.Unlock()
		return err
	}
	sub, err := t.Subscribe()
	if err != nil {
		n.subLock.Unlock()
		return fmt.Errorf("p2p: subscribe topic %s: %w", topic, err)
	}
	n.subs[topic] = sub
	n.subLock.Unlock()

	go n.readLoop(topic, sub)
	return nil
}

func (n *Node) readLoop(topic string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			n.log.Warnf("p2p: subscription %s ended: %v", topic, err)
			return
		}
		relayer := msg.GetFrom()
		if err := n.handleEnvelope(relayer, msg.Data); err != nil {
			n.log.Debugf("p2p: rejected message from %s on %s: %v", relayer, topic, err)
			n.scores.Penalize(relayer)
			if errors.Is(err, core.ErrRootMismatch) {
				// §4.5 delivery rule (4): a RootMismatch triggers state-sync
				// against the relayer before the message is dropped, rather
				// than silently diverging.
				n.triggerSyncFromMismatch(relayer)
			}
			continue
		}
		n.scores.Reward(relayer)
	}
}

func (n *Node) handleEnvelope(relayer peer.ID, raw []byte) error {
	kind, payload, err := decodeEnvelope(raw)
	if err != nil {
		return err
	}
	switch kind {
	case envTransfer:
		t, ok := core.DecodeTransferFromGossip(payload)
		if !ok {
			return fmt.Errorf("p2p: malformed transfer envelope")
		}
		if n.dedup.seen(t.MsgID()) {
			return nil
		}
		return n.engine.ApplyTransfer(t)
	case envBurn:
		b, ok := core.DecodeBurnFromGossip(payload)
		if !ok {
			return fmt.Errorf("p2p: malformed burn envelope")
		}
		if n.dedup.seen(b.MsgID()) {
			return nil
		}
		return n.engine.ApplyBurn(b)
	case envMint:
		m, ok := core.DecodeMintFromGossip(payload)
		if !ok {
			return fmt.Errorf("p2p: malformed mint envelope")
		}
		if n.dedup.seen(m.MsgID()) {
			return nil
		}
		return n.engine.ApplyMint(m)
	case envIssueToken:
		i, ok := core.DecodeIssueTokenFromGossip(payload)
		if !ok {
			return fmt.Errorf("p2p: malformed issue_token envelope")
		}
		if n.dedup.seen(i.MsgID()) {
			return nil
		}
		_, err := n.engine.ApplyIssueToken(i)
		return err
	case envRoot:
		ad, ok := decodeRootAdvertisement(payload)
		if !ok {
			return fmt.Errorf("p2p: malformed root advertisement")
		}
		n.recordPeerRoot(relayer, ad)
		return nil
	default:
		return fmt.Errorf("p2p: unknown envelope kind %d", kind)
	}
}
