// Package risk fetches token risk scores from RugCheck.
package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dex-sniper-bot-go/internal/logger"
)

// ErrNoScore is returned when the report omits the score field.
var ErrNoScore = errors.New("risk report has no score")

// ClientConfig configures the risk client
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client reads report summaries over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// Summary is the subset of the report summary the bot uses
type Summary struct {
	Score *float64 `json:"score"`
	Risks []struct {
		Name  string `json:"name"`
		Level string `json:"level"`
		Score int    `json:"score"`
	} `json:"risks"`
}

// NewClient creates a risk client
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
	}
}

// Summary fetches the report summary for a token
func (c *Client) Summary(ctx context.Context, address string) (*Summary, error) {
	url := fmt.Sprintf("%s/v1/tokens/%s/report/summary", c.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("risk request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("risk request failed with status %d", resp.StatusCode)
	}

	var out Summary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode risk response: %w", err)
	}
	return &out, nil
}

// Score returns the numeric risk score. Lower is safer. It makes a single
// attempt; the validator rejects on any failure.
func (c *Client) Score(ctx context.Context, address string) (float64, error) {
	s, err := c.Summary(ctx, address)
	if err != nil {
		return 0, err
	}
	if s.Score == nil {
		return 0, fmt.Errorf("%s: %w", address, ErrNoScore)
	}

	c.logger.WithFields(map[string]interface{}{
		"mint":  address,
		"score": *s.Score,
		"risks": len(s.Risks),
	}).Debug("🛡️ Risk score")
	return *s.Score, nil
}
