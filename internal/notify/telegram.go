package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	telegramMaxMessageLen = 4096
	telegramQueueSize     = 64
)

// ErrTelegramQueueFull is returned by Deliver when the outbound queue is
// full and the milestone was dropped.
var ErrTelegramQueueFull = errors.New("telegram queue full")

// TelegramChannel posts progress milestones to one Telegram chat, such as a
// classroom group. Drop-level chatter is not forwarded.
//
// Deliver only enqueues; messages are sent by a worker started with Start.
type TelegramChannel struct {
	chatID    string
	baseURL   string
	client    *http.Client
	queueSize int
	queue     chan string

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

// TelegramOption customizes a TelegramChannel.
type TelegramOption func(*TelegramChannel)

// WithTelegramBaseURL points the channel at another Bot API host.
func WithTelegramBaseURL(u string) TelegramOption {
	return func(t *TelegramChannel) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithTelegramQueueSize sets how many messages may wait for the worker.
func WithTelegramQueueSize(n int) TelegramOption {
	return func(t *TelegramChannel) {
		if n > 0 {
			t.queueSize = n
		}
	}
}

// NewTelegramChannel creates a Telegram channel for chatID.
func NewTelegramChannel(token, chatID string, opts ...TelegramOption) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (LEARN_TELEGRAM_BOT_TOKEN)")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram chat id is required (LEARN_TELEGRAM_CHAT_ID)")
	}
	t := &TelegramChannel{
		chatID:    chatID,
		baseURL:   "https://api.telegram.org",
		client:    &http.Client{Timeout: 10 * time.Second},
		queueSize: telegramQueueSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.baseURL += "/bot" + token
	t.queue = make(chan string, t.queueSize)
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t, nil
}

// Start launches the worker that sends queued messages. It is safe to call
// more than once.
func (t *TelegramChannel) Start() {
	t.startOnce.Do(func() {
		t.wg.Add(1)
		go t.run()
	})
}

// Stop aborts any in-flight request and waits for the worker to exit.
// Messages still queued are dropped.
func (t *TelegramChannel) Stop() {
	t.cancel()
	t.wg.Wait()
	if n := len(t.queue); n > 0 {
		slog.Warn("telegram messages dropped on shutdown", "count", n)
	}
}

func (t *TelegramChannel) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case text := <-t.queue:
			if err := t.send(t.ctx, text); err != nil && t.ctx.Err() == nil {
				slog.Warn("failed to send telegram message", "chat_id", t.chatID, "error", err)
			}
		}
	}
}

// Deliver queues n when it marks a milestone and ignores it otherwise. It
// never waits on the Bot API.
func (t *TelegramChannel) Deliver(_ context.Context, n Notification) error {
	text, ok := milestoneText(n)
	if !ok {
		return nil
	}
	for _, part := range SplitMessage(text, telegramMaxMessageLen) {
		select {
		case t.queue <- part:
		default:
			return ErrTelegramQueueFull
		}
	}
	return nil
}

func (t *TelegramChannel) send(ctx context.Context, text string) error {
	params := url.Values{
		"chat_id": {t.chatID},
		"text":    {text},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/sendMessage", strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("building Telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending Telegram message: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error %d", resp.StatusCode)
	}
	return nil
}

func milestoneText(n Notification) (string, bool) {
	switch n.Kind {
	case KindLevelCompleted:
		return fmt.Sprintf("%s completed %s with a score of %d after %d attempts.", n.PlayerID, n.LevelID, n.Score, n.Attempts), true
	case KindProgressReset:
		return fmt.Sprintf("%s reset all progress.", n.PlayerID), true
	default:
		return "", false
	}
}

// SplitMessage splits text into parts of at most maxLen bytes, preferring
// line and word boundaries.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > 0 {
			cutAt = idx + 1
		} else if idx := strings.LastIndex(text[:maxLen], " "); idx > 0 {
			cutAt = idx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}
