package engine

import (
	"fmt"

	"github.com/stakebot/engine/internal/domain"
)

type stakeKey struct {
	epoch    int64
	streamID int
}

// Ledger is the append-only record of placed stakes. The only mutation
// after append is settlement/claim flag updates on the entries
// themselves. Uniqueness per (epoch, stream) is enforced at Add time.
type Ledger struct {
	stakes []*domain.Stake
	byKey  map[stakeKey]*domain.Stake
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{byKey: make(map[stakeKey]*domain.Stake)}
}

// Add appends a stake. A second stake for the same (epoch, stream)
// is rejected.
func (l *Ledger) Add(s *domain.Stake) error {
	key := stakeKey{epoch: s.Epoch, streamID: s.StreamID}
	if _, ok := l.byKey[key]; ok {
		return fmt.Errorf("ledger.Add: duplicate stake for epoch %d stream %d", s.Epoch, s.StreamID)
	}
	l.stakes = append(l.stakes, s)
	l.byKey[key] = s
	return nil
}

// Has reports whether a stake exists for the (epoch, stream) pair.
func (l *Ledger) Has(epoch int64, streamID int) bool {
	_, ok := l.byKey[stakeKey{epoch: epoch, streamID: streamID}]
	return ok
}

// PendingByEpoch returns the unsettled stakes at the given epoch.
func (l *Ledger) PendingByEpoch(epoch int64) []*domain.Stake {
	var out []*domain.Stake
	for _, s := range l.stakes {
		if s.Epoch == epoch && !s.Settled {
			out = append(out, s)
		}
	}
	return out
}

// UnclaimedWins returns a stream's settled winning stakes that have not
// been claimed yet, oldest first.
func (l *Ledger) UnclaimedWins(streamID int) []*domain.Stake {
	var out []*domain.Stake
	for _, s := range l.stakes {
		if s.StreamID == streamID && s.Settled && s.Won && !s.Claimed {
			out = append(out, s)
		}
	}
	return out
}

// Size returns the number of recorded stakes.
func (l *Ledger) Size() int {
	return len(l.stakes)
}
