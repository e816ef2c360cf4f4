package bridge

import (
	"testing"
	"time"

	"meshstate/core"
)

func newTestEngine(t *testing.T) (*core.StateEngine, core.KVStore) {
	t.Helper()
	store := core.NewInMemoryStore()
	engine, err := core.NewStateEngine(store, nil)
	if err != nil {
		t.Fatalf("NewStateEngine: %v", err)
	}
	return engine, store
}

func TestStartLockProducesPendingReceipt(t *testing.T) {
	engine, store := newTestEngine(t)
	b := NewBridge("b1", store, engine)

	var alice core.Address
	alice[0] = 0x11

	lr, err := b.StartLock(alice, core.NativeTokenID, core.Uint128FromUint64(100))
	if err != nil {
		t.Fatalf("StartLock: %v", err)
	}
	if lr.Status != StatusPending {
		t.Fatalf("status = %s, want %s", lr.Status, StatusPending)
	}
	got, err := b.GetLockReceipt(lr.ID)
	if err != nil {
		t.Fatalf("GetLockReceipt: %v", err)
	}
	if got.ID != lr.ID {
		t.Fatal("round-tripped receipt ID mismatch")
	}
}

func TestAckExternalMintIsIdempotent(t *testing.T) {
	engine, store := newTestEngine(t)
	b := NewBridge("b1", store, engine)

	var alice core.Address
	alice[0] = 0x11
	lr, err := b.StartLock(alice, core.NativeTokenID, core.Uint128FromUint64(100))
	if err != nil {
		t.Fatalf("StartLock: %v", err)
	}

	replay1, err := b.AckExternalMint(lr.ID)
	if err != nil {
		t.Fatalf("AckExternalMint: %v", err)
	}
	if replay1 {
		t.Fatal("first ack must not be reported as a replay")
	}
	replay2, err := b.AckExternalMint(lr.ID)
	if err != nil {
		t.Fatalf("AckExternalMint (second): %v", err)
	}
	if !replay2 {
		t.Fatal("second ack of the same receipt must be reported as a replay (P7)")
	}
}

func TestSubmitReleaseRejectsDuplicateExtTxHash(t *testing.T) {
	engine, store := newTestEngine(t)
	b := NewBridge("b1", store, engine)
	var bob core.Address
	bob[0] = 0x22

	if _, err := b.SubmitRelease("0xabc", bob, core.NativeTokenID, core.Uint128FromUint64(50)); err != nil {
		t.Fatalf("SubmitRelease: %v", err)
	}
	_, err := b.SubmitRelease("0xabc", bob, core.NativeTokenID, core.Uint128FromUint64(50))
	if err != core.ErrDuplicateMessage {
		t.Fatalf("expected ErrDuplicateMessage for a repeated ext_tx_hash, got %v", err)
	}
}

func TestMarkExpiredRejectsBeforeDeadline(t *testing.T) {
	engine, store := newTestEngine(t)
	b := NewBridge("b1", store, engine)
	var alice core.Address
	alice[0] = 0x11

	lr, err := b.StartLock(alice, core.NativeTokenID, core.Uint128FromUint64(1))
	if err != nil {
		t.Fatalf("StartLock: %v", err)
	}
	if err := b.MarkExpired(lr.ID, lr.Time.Add(time.Minute)); err == nil {
		t.Fatal("expected error when expiring a receipt before T_exp has elapsed")
	}
	if err := b.MarkExpired(lr.ID, lr.Time.Add(DefaultExpiry+time.Minute)); err != nil {
		t.Fatalf("MarkExpired: %v", err)
	}
}

func TestEscrowAddressIsDeterministicPerBridge(t *testing.T) {
	a1 := EscrowAddress("b1")
	a2 := EscrowAddress("b1")
	a3 := EscrowAddress("b2")
	if a1 != a2 {
		t.Fatal("escrow address must be deterministic for a given bridge id")
	}
	if a1 == a3 {
		t.Fatal("different bridge ids must yield different escrow addresses")
	}
}
