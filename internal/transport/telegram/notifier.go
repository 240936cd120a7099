// Package telegram delivers notifications to a single Telegram chat.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"statusbot/internal/watch"
)

const defaultSendTimeout = 15 * time.Second

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// RatePerSec paces outgoing messages (default 1, burst 1).
	RatePerSec int
	// APIURL overrides the Bot API base URL.
	APIURL string
	// Client is optional; tests point it at an httptest server.
	Client *http.Client
}

// Notifier sends plain-text messages to one chat. It never logs so it can
// back the log sink without recursion.
type Notifier struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
	limiter  *rate.Limiter
}

func New(cfg Config) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	// Offline skips the getMe round trip; the first send surfaces bad tokens.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	rps := max(1, cfg.RatePerSec)
	return &Notifier{
		bot:      b,
		chat:     &tele.Chat{ID: cfg.ChatID},
		threadID: cfg.ThreadID,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Deliver implements watch.Notifier. Long texts are split into several
// messages; a failure on any chunk fails the delivery.
func (n *Notifier) Deliver(ctx context.Context, text string) error {
	chunks := splitTelegramText(text, telegramTextLimit)
	for i, chunk := range chunks {
		if err := n.limiter.Wait(ctx); err != nil {
			return watch.NewError(watch.DeliveryError, err, "telegram send interrupted")
		}
		_, err := n.bot.Send(n.chat, chunk, &tele.SendOptions{
			DisableWebPagePreview: true,
			ThreadID:              n.threadID,
		})
		if err != nil {
			if len(chunks) > 1 {
				return watch.NewError(watch.DeliveryError, err, "telegram chunk %d/%d", i+1, len(chunks))
			}
			return watch.NewError(watch.DeliveryError, err, "telegram send")
		}
	}
	return nil
}

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries near the end of each window.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		if chunk != "" {
			out = append(out, chunk)
		}

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
