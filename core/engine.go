package core

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ConflictWeights are the policy weights for the consensus-score tie-breaker
// of §4.4. They are not specified by the network contract and, per §9 Open
// Question (a), should be treated as local policy rather than a safety
// property — an adversary can pad balances or nonces to bias the score.
// Federated deployments wanting a stronger guarantee should gate root
// adoption on trusted-peer signatures instead of relying on this score.
type ConflictWeights struct {
	W1 uint64 // non-empty account count
	W2 uint64 // sum of nonces
	W3 uint64 // sum of balances, mod ScoreModulus
}

// DefaultConflictWeights is the engine's out-of-the-box policy.
var DefaultConflictWeights = ConflictWeights{W1: 1, W2: 1, W3: 1}

// ScoreModulus bounds the balance term of the consensus score so a single
// very large balance cannot by itself swamp the other terms.
const ScoreModulus = uint64(1) << 32

// Checkpointer is implemented by stores that support explicit
// snapshot-and-truncate checkpointing (DurableStore). The engine calls it
// opportunistically; stores that don't implement it (InMemoryStore) are
// simply never checkpointed.
type Checkpointer interface {
	Checkpoint() error
}

// StateEngine is the single authoritative reference to a node's SMT (§4.4).
// Mutating operations serialize under mu; read operations take the RLock,
// matching §5's "reads hold a snapshot of the committed root and may
// proceed without blocking writers" at the granularity this coarse lock
// allows.
type StateEngine struct {
	mu       sync.RWMutex
	store    KVStore
	tree     *SMT
	accounts *AccountStore
	tokens   *TokenStore
	log      *logrus.Logger
	weights  ConflictWeights
}

// NewStateEngine constructs a StateEngine over store. If log is nil the
// standard logrus logger is used.
func NewStateEngine(store KVStore, log *logrus.Logger) (*StateEngine, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	tree, err := NewSMT(store)
	if err != nil {
		return nil, err
	}
	return &StateEngine{
		store:    store,
		tree:     tree,
		accounts: NewAccountStore(tree),
		tokens:   NewTokenStore(tree),
		log:      log,
		weights:  DefaultConflictWeights,
	}, nil
}

// stagedTree returns an SMT rooted at the currently committed root but
// backed by a fresh overlay of e.store, so a message's leaf writes can be
// computed and validated before any of them reach real storage. Callers
// must call e.commit(overlay) to persist the result, or simply discard the
// overlay to leave e.store untouched.
func (e *StateEngine) stagedTree() (*SMT, *overlayStore) {
	overlay := newOverlayStore(e.store)
	return &SMT{store: overlay, root: e.tree.Root()}, overlay
}

// commit flushes overlay's staged writes into e.store as a single atomic
// batch (§4.4: "writes are grouped per message into a single atomic
// batch") and reloads e.tree's cached root from the committed result.
func (e *StateEngine) commit(overlay *overlayStore) error {
	if err := overlay.commitInto(e.store); err != nil {
		return err
	}
	return e.tree.Reload()
}

// ReloadRoot re-reads the committed root from storage, for use after a
// caller has replaced the backing store's contents directly (e.g. the rpc
// package's set_full_state) rather than through the engine's own Apply*
// methods.
func (e *StateEngine) ReloadRoot() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Reload()
}

// Root returns the current committed root.
func (e *StateEngine) Root() Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.Root()
}

// GetAccount returns the account leaf for (addr, tokenID).
func (e *StateEngine) GetAccount(addr Address, tokenID TokenId) (AccountLeaf, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accounts.GetAccount(addr, tokenID)
}

// GetProof returns a membership/absence proof for (addr, tokenID) against
// the current root.
func (e *StateEngine) GetProof(addr Address, tokenID TokenId) (Proof, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accounts.ProveAccount(addr, tokenID)
}

// GetToken returns the registry record for id.
func (e *StateEngine) GetToken(id TokenId) (TokenInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tokens.GetToken(id)
}

// ListTokens returns every registered token.
func (e *StateEngine) ListTokens() ([]TokenInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tokens.ListTokens()
}

func (e *StateEngine) checkNonce(addr Address, tokenID TokenId, msgNonce Nonce) (AccountLeaf, error) {
	acc, err := e.accounts.GetAccount(addr, tokenID)
	if err != nil {
		return AccountLeaf{}, err
	}
	if msgNonce != acc.Nonce {
		return AccountLeaf{}, fmt.Errorf("%w: have %d want %d", ErrNonceMismatch, msgNonce, acc.Nonce)
	}
	return acc, nil
}

// ApplyTransfer validates and applies t per §4.4's Transfer transition
// rule. On any validation failure no state is mutated.
func (e *StateEngine) ApplyTransfer(t Transfer) error {
	if err := validateAmount(t.Amount); err != nil {
		return err
	}
	if !VerifyTransfer(t) {
		return ErrInvalidSignature
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if t.PreRoot != e.tree.Root() {
		return ErrRootMismatch
	}
	fromAcc, err := e.checkNonce(t.From, t.TokenID, t.Nonce)
	if err != nil {
		return err
	}
	if !Verify(t.ProofFrom, AccountKey(t.From, t.TokenID), EncodeAccountLeaf(fromAcc), t.PreRoot) {
		return ErrProofInvalid
	}
	toAcc, err := e.accounts.GetAccount(t.To, t.TokenID)
	if err != nil {
		return err
	}
	var toValueEncoding []byte
	if !toAcc.Balance.IsZero() || toAcc.Nonce != 0 {
		toValueEncoding = EncodeAccountLeaf(toAcc)
	}
	if !Verify(t.ProofTo, AccountKey(t.To, t.TokenID), toValueEncoding, t.PreRoot) {
		return ErrProofInvalid
	}
	if fromAcc.Balance.Cmp(t.Amount) < 0 {
		return ErrInsufficientBal
	}

	newFromBal, _ := fromAcc.Balance.Sub(t.Amount)
	newToBal, overflow := toAcc.Balance.Add(t.Amount)
	if overflow {
		return ErrOverflow
	}

	stagingTree, overlay := e.stagedTree()
	stagingAccounts := NewAccountStore(stagingTree)
	if _, err := stagingAccounts.ApplyDelta(t.From, t.TokenID, newFromBal, fromAcc.Nonce+1); err != nil {
		return err
	}
	newRoot, err := stagingAccounts.ApplyDelta(t.To, t.TokenID, newToBal, toAcc.Nonce)
	if err != nil {
		return err
	}
	if newRoot != t.PostRoot {
		return fmt.Errorf("%w: computed %s want %s", ErrRootMismatch, newRoot, t.PostRoot)
	}
	return e.commit(overlay)
}

// ApplyMint validates and applies m per §4.4's Mint transition rules
// (native and custom token cases share the same authority check: the
// signer must be the token's registered issuer, and Treasury is by
// definition the issuer of record for token_id 0).
func (e *StateEngine) ApplyMint(m Mint) error {
	if err := validateAmount(m.Amount); err != nil {
		return err
	}
	if !VerifyMint(m) {
		return ErrInvalidSignature
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	issuerAcc, err := e.checkNonce(m.Issuer, m.TokenID, m.Nonce)
	if err != nil {
		return err
	}

	token, err := e.tokens.GetToken(m.TokenID)
	if err == ErrUnknownToken && m.TokenID == NativeTokenID {
		token = TokenInfo{TokenID: NativeTokenID, Issuer: Treasury, Metadata: "native|NATIVE|18", MaxSupply: maxUint128}
	} else if err != nil {
		return err
	}
	if m.Issuer != token.Issuer {
		return ErrUnauthorized
	}

	newSupply, overflow := token.TotalSupply.Add(m.Amount)
	if overflow {
		return ErrOverflow
	}
	if newSupply.Cmp(token.MaxSupply) > 0 {
		return ErrSupplyExceeded
	}

	toAcc, err := e.accounts.GetAccount(m.To, m.TokenID)
	if err != nil {
		return err
	}
	newToBal, overflow := toAcc.Balance.Add(m.Amount)
	if overflow {
		return ErrOverflow
	}

	token.TotalSupply = newSupply

	stagingTree, overlay := e.stagedTree()
	stagingTokens := NewTokenStore(stagingTree)
	stagingAccounts := NewAccountStore(stagingTree)
	if err := stagingTokens.PutToken(token); err != nil {
		return err
	}
	toNonce := toAcc.Nonce
	if m.To == m.Issuer {
		toNonce = issuerAcc.Nonce + 1
	}
	if _, err := stagingAccounts.ApplyDelta(m.To, m.TokenID, newToBal, toNonce); err != nil {
		return err
	}
	if m.To != m.Issuer {
		if _, err := stagingAccounts.ApplyDelta(m.Issuer, m.TokenID, issuerAcc.Balance, issuerAcc.Nonce+1); err != nil {
			return err
		}
	}
	return e.commit(overlay)
}

// ApplyGenesisMint credits amount of the native token to to, incrementing
// Treasury's own nonce, without requiring a Treasury signature. Treasury
// (§3/GLOSSARY) is the constant zero address, which has no corresponding
// ed25519 private key, so the signed-message path (ApplyMint/VerifyMint)
// can never legitimately authorize it: every deployment bootstraps its
// native supply through some out-of-band, operator-trusted mechanism
// instead (a genesis config applied once at first start), which this
// method models. It must never be reachable from gossip or RPC.
func (e *StateEngine) ApplyGenesisMint(to Address, amount Uint128) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	token, err := e.tokens.GetToken(NativeTokenID)
	if err == ErrUnknownToken {
		token = TokenInfo{TokenID: NativeTokenID, Issuer: Treasury, Metadata: "native|NATIVE|18", MaxSupply: maxUint128}
	} else if err != nil {
		return err
	}
	newSupply, overflow := token.TotalSupply.Add(amount)
	if overflow {
		return ErrOverflow
	}
	if newSupply.Cmp(token.MaxSupply) > 0 {
		return ErrSupplyExceeded
	}
	toAcc, err := e.accounts.GetAccount(to, NativeTokenID)
	if err != nil {
		return err
	}
	newToBal, overflow := toAcc.Balance.Add(amount)
	if overflow {
		return ErrOverflow
	}
	treasuryAcc, err := e.accounts.GetAccount(Treasury, NativeTokenID)
	if err != nil {
		return err
	}
	token.TotalSupply = newSupply

	stagingTree, overlay := e.stagedTree()
	stagingTokens := NewTokenStore(stagingTree)
	stagingAccounts := NewAccountStore(stagingTree)
	if err := stagingTokens.PutToken(token); err != nil {
		return err
	}
	toNonce := toAcc.Nonce
	if to == Treasury {
		toNonce = treasuryAcc.Nonce + 1
	}
	if _, err := stagingAccounts.ApplyDelta(to, NativeTokenID, newToBal, toNonce); err != nil {
		return err
	}
	if to != Treasury {
		if _, err := stagingAccounts.ApplyDelta(Treasury, NativeTokenID, treasuryAcc.Balance, treasuryAcc.Nonce+1); err != nil {
			return err
		}
	}
	return e.commit(overlay)
}

// maxUint128 is the ceiling for the native token, which has no configured
// max_supply message; it is effectively unbounded within the u128 domain.
var maxUint128 = Uint128{Lo: ^uint64(0), Hi: ^uint64(0)}

// ApplyIssueToken validates and applies i per §4.4: the engine
// authoritatively assigns token_id = counter+1 and creates no balance.
func (e *StateEngine) ApplyIssueToken(i IssueToken) (TokenId, error) {
	if !VerifyIssueToken(i) {
		return 0, ErrInvalidSignature
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	issuerAcc, err := e.checkNonce(i.Issuer, NativeTokenID, i.Nonce)
	if err != nil {
		return 0, err
	}
	stagingTree, overlay := e.stagedTree()
	stagingTokens := NewTokenStore(stagingTree)
	stagingAccounts := NewAccountStore(stagingTree)
	id, err := stagingTokens.RegisterToken(TokenInfo{
		Issuer:    i.Issuer,
		Metadata:  i.Metadata,
		MaxSupply: i.MaxSupply,
	})
	if err != nil {
		return 0, err
	}
	if _, err := stagingAccounts.ApplyDelta(i.Issuer, NativeTokenID, issuerAcc.Balance, issuerAcc.Nonce+1); err != nil {
		return 0, err
	}
	if err := e.commit(overlay); err != nil {
		return 0, err
	}
	return id, nil
}

// ApplyBurn validates and applies b per §4.4: the holder debits their own
// balance and the token's total_supply is decremented.
func (e *StateEngine) ApplyBurn(b Burn) error {
	if err := validateAmount(b.Amount); err != nil {
		return err
	}
	if !VerifyBurn(b) {
		return ErrInvalidSignature
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	holderAcc, err := e.checkNonce(b.Holder, b.TokenID, b.Nonce)
	if err != nil {
		return err
	}
	if holderAcc.Balance.Cmp(b.Amount) < 0 {
		return ErrInsufficientBal
	}
	token, err := e.tokens.GetToken(b.TokenID)
	if err != nil {
		return err
	}
	newSupply, underflow := token.TotalSupply.Sub(b.Amount)
	if underflow {
		return ErrStorageCorruption
	}
	newBal, _ := holderAcc.Balance.Sub(b.Amount)
	token.TotalSupply = newSupply

	stagingTree, overlay := e.stagedTree()
	stagingTokens := NewTokenStore(stagingTree)
	stagingAccounts := NewAccountStore(stagingTree)
	if err := stagingTokens.PutToken(token); err != nil {
		return err
	}
	if _, err := stagingAccounts.ApplyDelta(b.Holder, b.TokenID, newBal, holderAcc.Nonce+1); err != nil {
		return err
	}
	return e.commit(overlay)
}

// Checkpoint flushes the underlying store if it supports explicit
// checkpointing (see Checkpointer).
func (e *StateEngine) Checkpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cp, ok := e.store.(Checkpointer); ok {
		return cp.Checkpoint()
	}
	return nil
}

// ConsensusScore computes the §4.4 tie-breaker over the engine's current
// committed state: w1*(non-empty accounts) + w2*(sum of nonces) +
// w3*(sum of balances mod ScoreModulus).
func (e *StateEngine) ConsensusScore() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	it := e.store.Iterator([]byte(nsLeafV))
	defer it.Close()

	var count, nonceSum, balSum uint64
	for it.Next() {
		v := it.Value()
		if len(v) != 64 {
			continue // token registry / counter leaves are not accounts
		}
		leaf, ok := DecodeAccountLeaf(v)
		if !ok {
			continue
		}
		count++
		nonceSum += uint64(leaf.Nonce)
		balSum += leaf.Balance.Lo % ScoreModulus
	}
	if err := it.Error(); err != nil {
		return 0, err
	}
	return e.weights.W1*count + e.weights.W2*nonceSum + e.weights.W3*(balSum%ScoreModulus), nil
}
