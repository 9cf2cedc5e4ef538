package storage

import (
	"context"

	"github.com/stakebot/engine/internal/domain"
)

// Noop discards everything. Used when persistence is disabled.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) RecordSession(context.Context, domain.Strategy) error  { return nil }
func (Noop) RecordStake(context.Context, *domain.Stake) error      { return nil }
func (Noop) RecordSettlement(context.Context, *domain.Stake) error { return nil }
func (Noop) RecordClaim(context.Context, []string, string) error   { return nil }
func (Noop) Close() error                                          { return nil }
