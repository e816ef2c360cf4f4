package p2p

import (
	"context"
	"testing"

	"meshstate/core"
)

type fakeFetcher struct {
	entries map[string][]byte
	root    core.Hash
}

func (f fakeFetcher) FetchFullState(ctx context.Context, peerAddr string) (map[string][]byte, core.Hash, error) {
	return f.entries, f.root, nil
}

// TestSyncOnceReloadsEngineRootAfterApplyingSnapshot guards against a sync
// that writes a fetched snapshot into the store but leaves the engine's
// cached SMT root stale, which would make every subsequent local root check
// (and any proof verified against engine.Root()) disagree with the store it
// is backed by.
func TestSyncOnceReloadsEngineRootAfterApplyingSnapshot(t *testing.T) {
	store := core.NewInMemoryStore()
	engine, err := core.NewStateEngine(store, nil)
	if err != nil {
		t.Fatalf("NewStateEngine: %v", err)
	}
	staleRoot := engine.Root()

	// Build the target state on a separate tree sharing no storage with the
	// session's store, then snapshot its entries for the fetcher to return.
	remoteStore := core.NewInMemoryStore()
	remoteTree, err := core.NewSMT(remoteStore)
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	var key core.Hash
	key[0] = 0x01
	targetRoot, err := remoteTree.Put(key, []byte("value"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	snapshot := make(map[string][]byte)
	it := remoteStore.Iterator(nil)
	for it.Next() {
		snapshot[string(it.Key())] = append([]byte(nil), it.Value()...)
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterator: %v", err)
	}

	session := NewSyncSession(fakeFetcher{entries: snapshot, root: targetRoot}, engine, store, nil)
	session.Target("peer-1", targetRoot)

	done, err := session.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if !done {
		t.Fatal("SyncOnce reported not done despite a matching snapshot")
	}
	if engine.Root() == staleRoot {
		t.Fatal("engine root was not reloaded after SyncOnce applied a new snapshot")
	}
	if engine.Root() != targetRoot {
		t.Fatalf("engine.Root() = %s after sync, want %s", engine.Root(), targetRoot)
	}
}
