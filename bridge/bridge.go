// Package bridge implements meshstate's cross-chain bridge state machine
// (§4.6): native-side lock/release paired with external-side mint/burn,
// gated by membership-proof verification and two replay-nonce sets
// (used_proofs, used_ext_events). Grounded on the teacher's
// core/cross_chain_bridge.go and core/cross_chain.go, generalized from
// their JSON-record-over-KVStore pattern to meshstate's state machine.
package bridge

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"meshstate/core"
)

// Status is a bridge operation's position in its per-direction state
// machine (§4.6): Pending -> Proven -> Relayed -> Settled, with terminal
// Expired (timeout without relay) and Failed (proof rejected).
type Status string

const (
	StatusPending Status = "pending"
	StatusProven  Status = "proven"
	StatusRelayed Status = "relayed"
	StatusSettled Status = "settled"
	StatusExpired Status = "expired"
	StatusFailed  Status = "failed"
)

// DefaultExpiry is T_exp (§4.6): the time a Pending operation may sit
// unrelayed before the originator may reclaim it.
const DefaultExpiry = 24 * time.Hour

// DefaultConfirmationDepth is the default external-chain confirmation
// count C (§4.6) a watcher waits for before treating a Locked event as
// final.
const DefaultConfirmationDepth = 12

// EscrowAddress is the designated native-side address whose balance
// reflects tokens locked pending external mint (GLOSSARY "Bridge escrow").
// Deriving it deterministically from a fixed label, the same
// ModuleAddress-style convention the teacher uses for its escrow
// addresses, means every node computes the same escrow without a registry.
func EscrowAddress(bridgeID string) core.Address {
	return core.Address(core.SumLabel("meshstate-bridge-escrow:" + bridgeID))
}

// LockReceipt is issued by the native side after a user locks funds into
// the bridge escrow; a relayer carries it to the external contract.
type LockReceipt struct {
	ID        string       `json:"id"`
	BridgeID  string       `json:"bridge_id"`
	SrcRoot   core.Hash    `json:"src_root"`
	Addr      core.Address `json:"addr"`
	TokenID   core.TokenId `json:"token_id"`
	Amount    core.Uint128 `json:"amount"`
	PathProof core.Proof   `json:"path_proof"`
	Time      time.Time    `json:"time"`
	Status    Status       `json:"status"`
}

// ReleaseRequest is constructed by a bridge watcher after observing a
// confirmed Locked event on the external chain, and drives a bridge-signed
// Mint on the native side.
type ReleaseRequest struct {
	ID        string       `json:"id"`
	BridgeID  string       `json:"bridge_id"`
	ExtTxHash string       `json:"ext_tx_hash"`
	Dst       core.Address `json:"dst"`
	TokenID   core.TokenId `json:"token_id"`
	Amount    core.Uint128 `json:"amount"`
	Time      time.Time    `json:"time"`
	Status    Status       `json:"status"`
}

const (
	nsLockReceipts    = "bridge/lock_receipts/"
	nsReleaseRequests = "bridge/release_requests/"
	nsUsedProofs      = "bridge/used_proofs/"
	nsUsedExtEvents   = "bridge/used_ext_events/"
)

// Bridge ties a node's StateEngine to the cross-chain state machine. All
// records are persisted JSON-over-KVStore, the same shape the teacher uses
// for its bridge-transfer records, with two dedicated idempotency sets
// satisfying P7.
type Bridge struct {
	id     string
	store  core.KVStore
	engine *core.StateEngine
}

// NewBridge returns a Bridge identified by id, operating over store and
// engine.
func NewBridge(id string, store core.KVStore, engine *core.StateEngine) *Bridge {
	return &Bridge{id: id, store: store, engine: engine}
}

// Escrow returns this bridge's deterministic escrow address.
func (b *Bridge) Escrow() core.Address { return EscrowAddress(b.id) }

// usedProofKey derives the idempotency key for a lock receipt: H(receipt),
// per §4.6 ("records usedProofs[H(receipt)] = true").
func usedProofKey(r LockReceipt) string {
	raw, _ := json.Marshal(struct {
		BridgeID string
		Addr     core.Address
		TokenID  core.TokenId
		Amount   core.Uint128
		SrcRoot  core.Hash
	}{r.BridgeID, r.Addr, r.TokenID, r.Amount, r.SrcRoot})
	return fmt.Sprintf("%x", core.SumLabel(string(raw)))
}

// StartLock locks amount of tokenID from caller into the bridge escrow via
// a native Transfer (applied by the caller before this is invoked — Bridge
// only records the receipt once the escrow credit is visible in engine's
// committed state) and issues a LockReceipt proving the escrow's new
// balance against the post-transfer root.
func (b *Bridge) StartLock(caller core.Address, tokenID core.TokenId, amount core.Uint128) (LockReceipt, error) {
	if amount.IsZero() {
		return LockReceipt{}, core.ErrAmountZero
	}
	escrow := EscrowAddress(b.id)
	proof, err := b.engine.GetProof(escrow, tokenID)
	if err != nil {
		return LockReceipt{}, err
	}
	lr := LockReceipt{
		ID:        uuid.New().String(),
		BridgeID:  b.id,
		SrcRoot:   b.engine.Root(),
		Addr:      caller,
		TokenID:   tokenID,
		Amount:    amount,
		PathProof: proof,
		Time:      time.Now().UTC(),
		Status:    StatusPending,
	}
	if err := b.putLockReceipt(lr); err != nil {
		return LockReceipt{}, err
	}
	return lr, nil
}

func (b *Bridge) putLockReceipt(lr LockReceipt) error {
	raw, err := json.Marshal(lr)
	if err != nil {
		return err
	}
	return b.store.Set([]byte(nsLockReceipts+lr.ID), raw)
}

// GetLockReceipt fetches a lock receipt by ID.
func (b *Bridge) GetLockReceipt(id string) (LockReceipt, error) {
	raw, err := b.store.Get([]byte(nsLockReceipts + id))
	if err != nil {
		return LockReceipt{}, core.ErrStorageCorruption
	}
	var lr LockReceipt
	if err := json.Unmarshal(raw, &lr); err != nil {
		return LockReceipt{}, err
	}
	return lr, nil
}

// AckExternalMint marks a lock receipt Settled once the relayer reports the
// external contract accepted it; the receipt goes straight to Settled and
// the Relayed status is never recorded. IsReplay reports whether this receipt's
// used_proofs entry already existed — per P7, at most one mint should ever
// result regardless of how many times the receipt is submitted.
func (b *Bridge) AckExternalMint(id string) (isReplay bool, err error) {
	lr, err := b.GetLockReceipt(id)
	if err != nil {
		return false, err
	}
	key := []byte(nsUsedProofs + usedProofKey(lr))
	if has, err := b.store.Has(key); err != nil {
		return false, err
	} else if has {
		return true, nil
	}
	if err := b.store.Set(key, []byte{1}); err != nil {
		return false, err
	}
	lr.Status = StatusSettled
	return false, b.putLockReceipt(lr)
}

// MarkExpired transitions a still-Pending lock receipt to Expired once
// DefaultExpiry has elapsed, allowing the originator to reclaim escrowed
// funds via a normal native Transfer out of the escrow address.
func (b *Bridge) MarkExpired(id string, now time.Time) error {
	lr, err := b.GetLockReceipt(id)
	if err != nil {
		return err
	}
	if lr.Status != StatusPending {
		return fmt.Errorf("bridge: cannot expire receipt in status %s", lr.Status)
	}
	if now.Sub(lr.Time) < DefaultExpiry {
		return fmt.Errorf("bridge: receipt not yet eligible for expiry")
	}
	lr.Status = StatusExpired
	return b.putLockReceipt(lr)
}

// ListLockReceipts returns all lock receipts, oldest first.
func (b *Bridge) ListLockReceipts() ([]LockReceipt, error) {
	it := b.store.Iterator([]byte(nsLockReceipts))
	defer it.Close()
	var out []LockReceipt
	for it.Next() {
		var lr LockReceipt
		if err := json.Unmarshal(it.Value(), &lr); err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// SubmitRelease records a ReleaseRequest constructed by a bridge watcher
// after observing a confirmed external Locked event, enforcing the
// used_ext_events idempotency set (P7): a duplicate ext_tx_hash is rejected
// rather than producing a second release. The caller is responsible for
// issuing the corresponding bridge-signed Mint once this returns nil.
func (b *Bridge) SubmitRelease(extTxHash string, dst core.Address, tokenID core.TokenId, amount core.Uint128) (ReleaseRequest, error) {
	if amount.IsZero() {
		return ReleaseRequest{}, core.ErrAmountZero
	}
	key := []byte(nsUsedExtEvents + extTxHash)
	if has, err := b.store.Has(key); err != nil {
		return ReleaseRequest{}, err
	} else if has {
		return ReleaseRequest{}, core.ErrDuplicateMessage
	}
	if err := b.store.Set(key, []byte{1}); err != nil {
		return ReleaseRequest{}, err
	}
	rr := ReleaseRequest{
		ID:        uuid.New().String(),
		BridgeID:  b.id,
		ExtTxHash: extTxHash,
		Dst:       dst,
		TokenID:   tokenID,
		Amount:    amount,
		Time:      time.Now().UTC(),
		Status:    StatusProven,
	}
	raw, err := json.Marshal(rr)
	if err != nil {
		return ReleaseRequest{}, err
	}
	if err := b.store.Set([]byte(nsReleaseRequests+rr.ID), raw); err != nil {
		return ReleaseRequest{}, err
	}
	return rr, nil
}

// GetReleaseRequest fetches a release request by ID.
func (b *Bridge) GetReleaseRequest(id string) (ReleaseRequest, error) {
	raw, err := b.store.Get([]byte(nsReleaseRequests + id))
	if err != nil {
		return ReleaseRequest{}, core.ErrStorageCorruption
	}
	var rr ReleaseRequest
	if err := json.Unmarshal(raw, &rr); err != nil {
		return ReleaseRequest{}, err
	}
	return rr, nil
}

// SettleRelease marks a release request Settled once the bridge-signed
// Mint it drove has been applied to the native state engine.
func (b *Bridge) SettleRelease(id string) error {
	rr, err := b.GetReleaseRequest(id)
	if err != nil {
		return err
	}
	rr.Status = StatusSettled
	raw, err := json.Marshal(rr)
	if err != nil {
		return err
	}
	return b.store.Set([]byte(nsReleaseRequests+rr.ID), raw)
}

// ListReleaseRequests returns all release requests, oldest first.
func (b *Bridge) ListReleaseRequests() ([]ReleaseRequest, error) {
	it := b.store.Iterator([]byte(nsReleaseRequests))
	defer it.Close()
	var out []ReleaseRequest
	for it.Next() {
		var rr ReleaseRequest
		if err := json.Unmarshal(it.Value(), &rr); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
