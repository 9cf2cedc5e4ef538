package engine

import (
	"math/big"

	"github.com/stakebot/engine/internal/domain"
)

// Registry owns the fixed pool of stake streams. The pool size never
// changes after startup; only stream state does, and only from the
// engine goroutine.
type Registry struct {
	streams []*domain.Stream
	cursor  int
}

// NewRegistry creates n streams in their initial ACTIVE(FLAT) state.
func NewRegistry(n int, baseAmount *big.Int) *Registry {
	streams := make([]*domain.Stream, n)
	for i := range streams {
		streams[i] = domain.NewStream(i+1, baseAmount)
	}
	return &Registry{streams: streams}
}

// SelectForBet returns one active stream with no stake at the epoch and
// not already used for it, or nil when none qualify. Selection is
// round-robin over the eligible set with a monotonic cursor, so no
// stream is structurally favored and rotation stays fair as streams
// enter and leave cooldown.
func (r *Registry) SelectForBet(epoch int64, hasStake func(epoch int64, streamID int) bool) *domain.Stream {
	var eligible []*domain.Stream
	for _, s := range r.streams {
		if s.Active && s.LastEpoch != epoch && !hasStake(epoch, s.ID) {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	picked := eligible[r.cursor%len(eligible)]
	r.cursor++
	return picked
}

// AdvanceCooldowns decrements every armed cooldown by one round and
// reactivates streams that reach exactly zero, resetting them to the
// given base amount. Returns the reactivated streams.
func (r *Registry) AdvanceCooldowns(baseAmount *big.Int) []*domain.Stream {
	var reactivated []*domain.Stream
	for _, s := range r.streams {
		if s.Active || s.CooldownRemaining <= 0 {
			continue
		}
		s.CooldownRemaining--
		if s.CooldownRemaining == 0 {
			s.Reactivate(baseAmount)
			reactivated = append(reactivated, s)
		}
	}
	return reactivated
}

// ResetDailyMaxima zeroes every stream's daily loss-streak maximum.
// Called when the UTC day rolls over.
func (r *Registry) ResetDailyMaxima() {
	for _, s := range r.streams {
		s.DailyMaxConsecutiveLosses = 0
	}
}

// Get returns the stream with the given ID, or nil.
func (r *Registry) Get(id int) *domain.Stream {
	for _, s := range r.streams {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Streams returns the full pool, for settlement passes and reporting.
func (r *Registry) Streams() []*domain.Stream {
	return r.streams
}
