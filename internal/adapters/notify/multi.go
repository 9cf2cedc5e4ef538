package notify

import (
	"context"
	"errors"

	"github.com/stakebot/engine/internal/domain"
	"github.com/stakebot/engine/internal/ports"
)

// Multi fans every notification out to all configured sinks. Errors
// are joined so one failing sink never silences the others.
type Multi struct {
	sinks []ports.Notifier
}

// NewMulti wraps zero or more notifiers as one.
func NewMulti(sinks ...ports.Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) RoundSummary(ctx context.Context, epoch int64, stakes []*domain.Stake, streams []*domain.Stream) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RoundSummary(ctx, epoch, stakes, streams); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
