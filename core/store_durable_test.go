package core

import (
	"testing"

	"meshstate/internal/testutil"
)

func newSandboxStore(t *testing.T) (*DurableStore, *testutil.Sandbox) {
	t.Helper()
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	t.Cleanup(func() { sb.Cleanup() })
	store, err := OpenDurableStore(sb.Path("state"), nil)
	if err != nil {
		t.Fatalf("OpenDurableStore: %v", err)
	}
	return store, sb
}

func TestDurableStoreSetGetPersistsAcrossReopen(t *testing.T) {
	store, sb := newSandboxStore(t)
	if err := store.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenDurableStore(sb.Path("state"), nil)
	if err != nil {
		t.Fatalf("reopen OpenDurableStore: %v", err)
	}
	v, err := reopened.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(v) != "v" {
		t.Fatalf("Get after reopen = %q, want %q", v, "v")
	}
}

func TestDurableStoreReplaysUncheckpointedWAL(t *testing.T) {
	store, sb := newSandboxStore(t)
	if err := store.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Set a: %v", err)
	}
	if err := store.Set([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("Set b: %v", err)
	}
	// No explicit Checkpoint: the wal.log alone must carry both records.
	if err := store.wal.Close(); err != nil {
		t.Fatalf("close wal handle directly: %v", err)
	}

	reopened, err := OpenDurableStore(sb.Path("state"), nil)
	if err != nil {
		t.Fatalf("reopen OpenDurableStore: %v", err)
	}
	for k, want := range map[string]string{"a": "1", "b": "2"} {
		v, err := reopened.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get %s: %v", k, err)
		}
		if string(v) != want {
			t.Fatalf("Get %s = %q, want %q", k, v, want)
		}
	}
}

func TestDurableStoreCheckpointTruncatesWAL(t *testing.T) {
	store, sb := newSandboxStore(t)
	if err := store.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	versionBefore := store.Version
	if err := store.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if _, err := sb.ReadFile("state/wal.log"); err != nil {
		t.Fatalf("wal.log missing after checkpoint: %v", err)
	}
	raw, err := sb.ReadFile("state/wal.log")
	if err != nil {
		t.Fatalf("ReadFile wal.log: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("wal.log has %d bytes after checkpoint, want truncated to 0", len(raw))
	}
	if store.Version != versionBefore {
		t.Fatalf("Version changed across Checkpoint: before=%d after=%d", versionBefore, store.Version)
	}
}

func TestDurableStoreDeleteRemovesKey(t *testing.T) {
	store, _ := newSandboxStore(t)
	if err := store.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, err := store.Has([]byte("k")); err != nil || ok {
		t.Fatalf("Has after Delete = %v, %v; want false, nil", ok, err)
	}
}
