package p2p

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	scoreRewardStep    = 1.0
	scorePenaltyStep   = 5.0
	scoreDecayFactor   = 0.98
	scoreBanThreshold  = -50.0
	scoreInitialValue  = 0.0
)

// ScoreBoard tracks a decaying relay-quality score per peer (§7): a peer
// that forwards malformed or invalid gossip is penalized, while the
// original signer of a bad message is not, since a relayer cannot be
// expected to re-verify every signature on every hop.
type ScoreBoard struct {
	mu     sync.Mutex
	scores map[peer.ID]float64
}

// NewScoreBoard returns an empty ScoreBoard.
func NewScoreBoard() *ScoreBoard {
	return &ScoreBoard{scores: make(map[peer.ID]float64)}
}

func (s *ScoreBoard) adjust(p peer.ID, delta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.scores[p]
	if !ok {
		cur = scoreInitialValue
	}
	cur = cur*scoreDecayFactor + delta
	s.scores[p] = cur
	return cur
}

// Reward bumps p's score after a successfully-applied relayed message.
func (s *ScoreBoard) Reward(p peer.ID) float64 { return s.adjust(p, scoreRewardStep) }

// Penalize lowers p's score after a malformed or invalid relayed message.
func (s *ScoreBoard) Penalize(p peer.ID) float64 { return s.adjust(p, -scorePenaltyStep) }

// Score returns p's current score (0 if never observed).
func (s *ScoreBoard) Score(p peer.ID) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[p]
}

// Banned reports whether p has fallen below the ban threshold and should be
// disconnected/ignored by the caller.
func (s *ScoreBoard) Banned(p peer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[p] <= scoreBanThreshold
}
