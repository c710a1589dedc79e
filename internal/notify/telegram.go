// Package notify delivers lifecycle messages to an operator channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"dex-sniper-bot-go/internal/logger"
)

// Notifier sends best-effort operator messages. Notify never blocks on the
// network and never fails.
type Notifier interface {
	Notify(text string)
}

// Nop drops every message
type Nop struct{}

func (Nop) Notify(string) {}

// TelegramConfig configures the Telegram sink
type TelegramConfig struct {
	BaseURL  string
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// Telegram posts messages through the Bot API
type Telegram struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
	logger     *logger.Logger
	wg         sync.WaitGroup
}

// New returns a Telegram sink, or Nop when credentials are missing
func New(cfg TelegramConfig, log *logger.Logger) Notifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return Nop{}
	}
	return NewTelegram(cfg, log)
}

// NewTelegram creates a Telegram sink
func NewTelegram(cfg TelegramConfig, log *logger.Logger) *Telegram {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Telegram{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.BotToken,
		chatID:     cfg.ChatID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
	}
}

// Send posts text and waits for the API to answer
func (t *Telegram) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Notify sends text in the background. Failures are logged and dropped.
func (t *Telegram) Notify(text string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.Send(context.Background(), text); err != nil {
			t.logger.WithComponent("notify").WithError(err).Warn("⚠️ Telegram notification failed")
		}
	}()
}

// Wait blocks until queued notifications have been attempted
func (t *Telegram) Wait() {
	t.wg.Wait()
}
