package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// FeedConfig configures the streaming front door
type FeedConfig struct {
	URL            string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration
}

// feedMessage is a new-token event. Subscription acknowledgements carry only
// Message.
type feedMessage struct {
	Signature string `json:"signature"`
	Mint      string `json:"mint"`
	TxType    string `json:"txType"`
	Symbol    string `json:"symbol"`
	Message   string `json:"message"`
}

// FeedStats counts feed activity
type FeedStats struct {
	MessagesReceived int       `json:"messages_received"`
	Submitted        int       `json:"submitted"`
	Reconnects       int       `json:"reconnects"`
	LastActivity     time.Time `json:"last_activity"`
	Connected        bool      `json:"connected"`
}

// FeedSource subscribes to a websocket stream of newly created tokens and
// submits each mint to the engine
type FeedSource struct {
	cfg       FeedConfig
	submitter Submitter
	logger    *logger.Logger

	mu    sync.Mutex
	stats FeedStats
}

// NewFeedSource creates a feed source
func NewFeedSource(cfg FeedConfig, submitter Submitter, log *logger.Logger) *FeedSource {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Minute
	}
	if log == nil {
		log = logger.Discard()
	}
	return &FeedSource{cfg: cfg, submitter: submitter, logger: log}
}

// Run keeps a subscription open until ctx is done, reconnecting after the
// configured delay whenever the connection drops
func (f *FeedSource) Run(ctx context.Context) error {
	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		f.mu.Lock()
		f.stats.Connected = false
		f.stats.Reconnects++
		attempt := f.stats.Reconnects
		f.mu.Unlock()

		f.logger.WithFields(logrus.Fields{
			"url":      f.cfg.URL,
			"attempt":  attempt,
			"retry_in": f.cfg.ReconnectDelay.String(),
		}).WithError(err).Warn("⚠️ Feed connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

// Stats returns a copy of the activity counters
func (f *FeedSource) Stats() FeedStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *FeedSource) session(ctx context.Context) error {
	f.logger.WithField("url", f.cfg.URL).Info("🔌 Connecting to token feed...")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, resp, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			f.logger.WithFields(logrus.Fields{
				"status":      resp.Status,
				"status_code": resp.StatusCode,
			}).Error("❌ Feed connection failed")
		}
		return fmt.Errorf("failed to connect to feed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(1024 * 1024)
	conn.SetPongHandler(func(string) error {
		f.mu.Lock()
		f.stats.LastActivity = time.Now()
		f.mu.Unlock()
		return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	})

	// writes are serialized through writeMu; the ping loop and the
	// subscription share the connection
	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(messageType, data)
	}

	if err := write(websocket.TextMessage, []byte(`{"method":"subscribeNewToken"}`)); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	f.mu.Lock()
	f.stats.Connected = true
	f.stats.LastActivity = time.Now()
	f.mu.Unlock()
	f.logger.Info("✅ Subscribed to new token feed")

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		// unblocks ReadMessage on shutdown
		_ = conn.Close()
	}()
	go f.pingLoop(sessionCtx, write)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.WithError(err).Error("❌ Feed read error")
			}
			return err
		}
		f.touch()
		f.handle(data)
	}
}

func (f *FeedSource) handle(data []byte) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.WithError(err).WithField("data", string(data[:min(len(data), 200)])).Warn("⚠️ Failed to decode feed message")
		return
	}
	if msg.Mint == "" {
		if msg.Message != "" {
			f.logger.WithField("message", msg.Message).Debug("📨 Feed notice")
		}
		return
	}
	if !utils.IsValidSolanaAddress(msg.Mint) {
		f.logger.WithField("mint", msg.Mint).Debug("Feed sent an invalid mint")
		return
	}

	f.mu.Lock()
	f.stats.Submitted++
	f.mu.Unlock()
	submit(f.submitter, msg.Mint, "feed", f.logger)
}

func (f *FeedSource) touch() {
	f.mu.Lock()
	f.stats.MessagesReceived++
	f.stats.LastActivity = time.Now()
	f.mu.Unlock()
}

func (f *FeedSource) pingLoop(ctx context.Context, write func(int, []byte) error) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				f.logger.WithError(err).Debug("❌ Failed to send ping")
				return
			}
		}
	}
}
