package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"meshstate/core"
)

// StateFetcher retrieves a full-state snapshot from a remote peer. It is
// implemented by the rpc package's client (get_full_state, §6) and kept as
// an interface here so p2p does not import rpc.
type StateFetcher interface {
	FetchFullState(ctx context.Context, peerAddr string) (entries map[string][]byte, root core.Hash, err error)
}

// SyncSession coordinates catching a lagging node up to a target root
// advertised by a peer, adapted from the teacher's SyncManager
// (core/blockchain_synchronization.go): a background loop that retries
// until the local root matches, each attempt reading whatever root is
// currently targeted. Every attempt fetches the whole state again; no
// partial progress is kept between attempts.
type SyncSession struct {
	fetcher StateFetcher
	engine  *core.StateEngine
	store   core.KVStore
	log     *logrus.Logger

	mu         sync.RWMutex
	active     bool
	quit       chan struct{}
	targetRoot core.Hash
	peerAddr   string
}

// NewSyncSession wires a session that applies fetched snapshots into store
// (the same backing store engine was built over).
func NewSyncSession(fetcher StateFetcher, engine *core.StateEngine, store core.KVStore, log *logrus.Logger) *SyncSession {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SyncSession{fetcher: fetcher, engine: engine, store: store, log: log}
}

// Target sets the peer and root this session should converge on. Calling
// Target again while a session is active re-points the in-flight loop at
// the new goal without requiring a Stop/Start cycle.
func (s *SyncSession) Target(peerAddr string, root core.Hash) {
	s.mu.Lock()
	s.peerAddr = peerAddr
	s.targetRoot = root
	s.mu.Unlock()
}

// Start launches the background convergence loop.
func (s *SyncSession) Start(ctx context.Context) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.quit = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
	s.log.Info("p2p: sync session started")
}

// Stop terminates the background convergence loop.
func (s *SyncSession) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	close(s.quit)
	s.active = false
	s.mu.Unlock()
	s.log.Info("p2p: sync session stopped")
}

// loop polls SyncOnce once a second for as long as the session is active.
// It never returns on convergence: a live node keeps the session running
// so a later Target call (a fresh root advertisement or RootMismatch) can
// redirect it without a Stop/Start cycle, and polling while converged is
// cheap since SyncOnce short-circuits on a matching root.
func (s *SyncSession) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		default:
		}
		if _, err := s.SyncOnce(ctx); err != nil {
			s.log.Warnf("p2p: sync attempt failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case <-time.After(time.Second):
		}
	}
}

// SyncOnce performs a single convergence attempt: if the local root already
// matches the target, it reports done; otherwise it fetches a full
// snapshot from the configured peer and replaces local storage with it,
// re-deriving the root and checking it against the target before
// committing (a remote giving a bad snapshot simply fails the check and is
// retried, rather than corrupting local state).
func (s *SyncSession) SyncOnce(ctx context.Context) (bool, error) {
	s.mu.RLock()
	target, peerAddr := s.targetRoot, s.peerAddr
	s.mu.RUnlock()

	if s.engine.Root() == target {
		return true, nil
	}
	if peerAddr == "" {
		return false, nil
	}

	entries, root, err := s.fetcher.FetchFullState(ctx, peerAddr)
	if err != nil {
		return false, err
	}
	if root != target {
		return false, core.ErrRootMismatch
	}
	derived, err := core.RebuildRoot(entries)
	if err != nil {
		return false, err
	}
	if derived != target {
		return false, fmt.Errorf("%w: fetched leaves hash to %s, peer claimed %s", core.ErrRootMismatch, derived, target)
	}

	for k, v := range entries {
		if err := s.store.Set([]byte(k), v); err != nil {
			return false, err
		}
	}
	if err := s.engine.ReloadRoot(); err != nil {
		return false, err
	}
	return true, nil
}

// Status reports the session's current convergence state, for CLI/RPC use.
func (s *SyncSession) Status() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"active":      s.active,
		"target_root": s.targetRoot.String(),
		"peer":        s.peerAddr,
		"local_root":  s.engine.Root().String(),
	}
}
