package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stakebot/engine/internal/domain"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram implements ports.Notifier via the Telegram Bot API.
type Telegram struct {
	botToken   string
	chatID     string
	client     *http.Client
	apiBase    string
	maxRetries int
}

// NewTelegram creates a Telegram notifier for the given bot and chat.
func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken:   botToken,
		chatID:     chatID,
		client:     &http.Client{Timeout: 30 * time.Second},
		apiBase:    telegramAPIBase,
		maxRetries: 3,
	}
}

// Notify sends one status line to the configured chat.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	return t.sendWithRetry(ctx, message)
}

// RoundSummary sends a compact per-round report. Telegram renders it in
// a monospace block so the stream lines stay aligned.
func (t *Telegram) RoundSummary(ctx context.Context, epoch int64, stakes []*domain.Stake, streams []*domain.Stream) error {
	var sb strings.Builder

	wins := 0
	for _, st := range stakes {
		if st.Won {
			wins++
		}
	}
	fmt.Fprintf(&sb, "Round %d settled — %d stakes, %d won\n", epoch, len(stakes), wins)

	fmt.Fprintf(&sb, "<pre>")
	for _, s := range streams {
		state := "ACTIVE"
		if !s.Active {
			state = fmt.Sprintf("COOL(%d)", s.CooldownRemaining)
		}
		fmt.Fprintf(&sb, "#%d %-8s next=%s L%d bets=%d wins=%d\n",
			s.ID, state, formatBNB(s.CurrentAmount), s.ConsecutiveLosses, s.TotalBets, s.TotalWins)
	}
	fmt.Fprintf(&sb, "</pre>")

	return t.sendWithRetry(ctx, sb.String())
}

// send performs one sendMessage call.
func (t *Telegram) send(ctx context.Context, text string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify.Telegram.send: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify.Telegram.send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify.Telegram.send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify.Telegram.send: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// sendWithRetry retries transient failures with exponential backoff.
func (t *Telegram) sendWithRetry(ctx context.Context, text string) error {
	var lastErr error
	for i := 0; i <= t.maxRetries; i++ {
		if err := t.send(ctx, text); err != nil {
			lastErr = err
			backoff := time.Duration(1<<uint(i)) * time.Second
			slog.Warn("telegram send failed", "attempt", i+1, "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("notify.Telegram.sendWithRetry: %d attempts exhausted: %w", t.maxRetries+1, lastErr)
}
