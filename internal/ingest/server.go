// Package ingest receives candidate token addresses and hands them to the engine.
package ingest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/internal/position"
	"dex-sniper-bot-go/pkg/utils"

	"github.com/sirupsen/logrus"
)

// Submitter starts a lifecycle for an address unless one is already running
type Submitter interface {
	Submit(address, source string) (<-chan position.Result, bool)
}

// StatusSource lists running lifecycles
type StatusSource interface {
	Active() []position.Status
}

// ServerConfig configures the HTTP front door
type ServerConfig struct {
	Port        int
	WebhookPath string
	AuthToken   string // empty disables the Authorization check
}

// enhancedTransaction is the part of a Helius webhook record we read
type enhancedTransaction struct {
	Signature      string `json:"signature"`
	TokenTransfers []struct {
		Mint string `json:"mint"`
	} `json:"tokenTransfers"`
}

// Server is the webhook and status HTTP server
type Server struct {
	httpServer *http.Server
	submitter  Submitter
	status     StatusSource
	authToken  string
	logger     *logger.Logger
}

// NewServer registers the webhook, health and positions routes
func NewServer(cfg ServerConfig, submitter Submitter, status StatusSource, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook"
	}
	s := &Server{
		submitter: submitter,
		status:    status,
		authToken: cfg.AuthToken,
		logger:    log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+cfg.WebhookPath, s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /positions", s.handlePositions)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("🌐 Webhook server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.authToken)) == 1
}

// handleWebhook acknowledges at once; the outcome of processing never
// changes the response.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.logger.WithField("remote", r.RemoteAddr).Warn("⚠️ Webhook rejected: bad authorization")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Webhook received"))
	if err != nil {
		s.logger.WithError(err).Warn("⚠️ Failed to read webhook body")
		return
	}

	mint, err := mintFromWebhook(body)
	if err != nil {
		s.logger.WithError(err).Debug("Webhook carried no usable mint")
		return
	}
	submit(s.submitter, mint, "webhook", s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	active := []position.Status{}
	if s.status != nil {
		active = append(active, s.status.Active()...)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(active); err != nil {
		s.logger.WithError(err).Warn("⚠️ Failed to encode positions")
	}
}

func mintFromWebhook(body []byte) (string, error) {
	var txs []enhancedTransaction
	if err := json.Unmarshal(body, &txs); err != nil {
		return "", fmt.Errorf("decode webhook: %w", err)
	}
	if len(txs) == 0 || len(txs[0].TokenTransfers) == 0 {
		return "", fmt.Errorf("webhook has no token transfers")
	}
	mint := txs[0].TokenTransfers[0].Mint
	if !utils.IsValidSolanaAddress(mint) {
		return "", fmt.Errorf("invalid mint %q", mint)
	}
	return mint, nil
}

// submit hands mint to the engine and logs the outcome when it arrives
func submit(sub Submitter, mint, source string, log *logger.Logger) {
	done, ok := sub.Submit(mint, source)
	if !ok {
		return
	}
	go func() {
		res, ok := <-done
		if !ok {
			return
		}
		entry := log.WithFields(logrus.Fields{
			"mint":   res.Address,
			"source": source,
			"state":  res.State,
		})
		if res.Reason != "" {
			entry = entry.WithField("reason", res.Reason)
		}
		if res.Err != nil {
			entry.WithError(res.Err).Warn("🏁 Candidate finished with error")
			return
		}
		entry.Info("🏁 Candidate finished")
	}()
}
