package notify

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/stakebot/engine/internal/domain"
)

// Console implements ports.Notifier writing to stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Notify prints one timestamped status line.
func (c *Console) Notify(_ context.Context, message string) error {
	fmt.Fprintf(c.out, "[%s] %s\n", time.Now().Format("15:04:05"), message)
	return nil
}

// RoundSummary prints the round result followed by the stream table.
func (c *Console) RoundSummary(_ context.Context, epoch int64, stakes []*domain.Stake, streams []*domain.Stream) error {
	now := time.Now().Format("15:04:05")

	wins, losses := 0, 0
	for _, st := range stakes {
		if st.Won {
			wins++
		} else {
			losses++
		}
	}
	fmt.Fprintf(c.out, "\n[%s] round %d settled — %d stakes (W:%d L:%d)\n",
		now, epoch, len(stakes), wins, losses)

	for _, st := range stakes {
		outcome := "LOSS"
		if st.Won {
			outcome = "WIN"
		}
		fmt.Fprintf(c.out, "  stream %d: %s %s %s\n",
			st.StreamID, st.Position, formatBNB(st.Amount), outcome)
	}

	c.printStreamTable(streams)
	return nil
}

// printStreamTable prints one row per stream with its staking state.
func (c *Console) printStreamTable(streams []*domain.Stream) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Stream", "State", "Next Stake", "Streak", "Bets", "Wins", "Win%", "Unclaimed")

	for _, s := range streams {
		state := "ACTIVE"
		if !s.Active {
			state = fmt.Sprintf("COOLDOWN(%d)", s.CooldownRemaining)
		}

		streak := fmt.Sprintf("W%d", s.WinCount)
		if s.ConsecutiveLosses > 0 {
			streak = fmt.Sprintf("L%d", s.ConsecutiveLosses)
		}

		table.Append(
			fmt.Sprintf("%d", s.ID),
			state,
			formatBNB(s.CurrentAmount),
			streak,
			fmt.Sprintf("%d", s.TotalBets),
			fmt.Sprintf("%d", s.TotalWins),
			fmt.Sprintf("%.1f%%", s.WinRate()*100),
			fmt.Sprintf("%d", s.UnclaimedStreak),
		)
	}

	table.Render()
}

// formatBNB renders a wei amount as a BNB decimal string.
func formatBNB(wei *big.Int) string {
	if wei == nil {
		return "0 BNB"
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18))
	return fmt.Sprintf("%s BNB", f.Text('f', 6))
}
