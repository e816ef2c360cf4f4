package p2p

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
)

func TestScoreBoardRewardAndPenalize(t *testing.T) {
	sb := NewScoreBoard()
	p := peer.ID("peer-a")

	if sb.Score(p) != 0 {
		t.Fatal("expected zero initial score")
	}
	sb.Reward(p)
	if sb.Score(p) <= 0 {
		t.Fatal("expected reward to raise score above zero")
	}
	for i := 0; i < 20; i++ {
		sb.Penalize(p)
	}
	if !sb.Banned(p) {
		t.Fatal("expected repeated penalties to ban the peer")
	}
}

func TestScoreBoardDoesNotCrossContaminatePeers(t *testing.T) {
	sb := NewScoreBoard()
	a, b := peer.ID("a"), peer.ID("b")
	for i := 0; i < 20; i++ {
		sb.Penalize(a)
	}
	if sb.Banned(b) {
		t.Fatal("penalizing one peer must not affect another")
	}
}
