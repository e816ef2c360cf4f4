package p2p

import (
	"testing"

	"meshstate/core"
)

func TestDedupCacheSeenOnce(t *testing.T) {
	c := newDedupCache(4)
	var id core.Hash
	id[0] = 1

	if c.seen(id) {
		t.Fatal("first observation must report unseen")
	}
	if !c.seen(id) {
		t.Fatal("second observation of the same id must report seen")
	}
}

func TestDedupCacheEvictsOldestOnOverflow(t *testing.T) {
	c := newDedupCache(2)
	var a, b, x core.Hash
	a[0], b[0], x[0] = 1, 2, 3

	c.seen(a)
	c.seen(b)
	c.seen(x) // evicts a

	if c.seen(a) {
		t.Fatal("expected a to have been evicted and reported unseen again")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3}
	raw := encodeEnvelope(envMint, payload)
	kind, got, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if kind != envMint {
		t.Fatalf("kind = %d, want %d", kind, envMint)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = %v, want %v", got, payload)
	}
}

func TestRootAdvertisementRoundTrip(t *testing.T) {
	var root core.Hash
	root[0] = 0xAB
	ad := rootAdvertisement{Root: root, Score: 12345}
	raw := encodeRootAdvertisement(ad)
	got, ok := decodeRootAdvertisement(raw)
	if !ok {
		t.Fatal("expected successful decode")
	}
	if got != ad {
		t.Fatalf("got %+v, want %+v", got, ad)
	}
}
