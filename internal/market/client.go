// Package market reads pair data for a token from the DexScreener API.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/internal/retry"
)

var (
	// ErrPairNotFound is returned when the source lists no pairs for a token.
	ErrPairNotFound = errors.New("pair not found")
	// ErrNoPrice is returned when the primary pair carries no usable USD price.
	ErrNoPrice = errors.New("no price")
)

// ClientConfig configures the market data client
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Retry   retry.Policy
}

// Client fetches market snapshots over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Policy
	logger     *logger.Logger
}

// NewClient creates a market data client
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
		retry:      cfg.Retry,
		logger:     log,
	}
}

// Snapshot returns the primary pair for address. ErrPairNotFound means the
// token is not listed yet and is never retried here. Transport failures are
// retried under the client's policy; exhaustion wraps retry.ErrTransport.
func (c *Client) Snapshot(ctx context.Context, address string) (*Snapshot, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, address)

	var out tokenPairsResponse
	err := c.retry.Transport(ctx, "market snapshot", func(ctx context.Context) error {
		return c.fetch(ctx, url, &out)
	}, func(attempt int, err error, next time.Duration) {
		c.logger.WithFields(map[string]interface{}{
			"mint":     address,
			"attempt":  attempt,
			"retry_in": next.String(),
		}).WithError(err).Warn("⚠️ Market request failed")
	})
	if err != nil {
		return nil, err
	}
	if len(out.Pairs) == 0 {
		return nil, fmt.Errorf("%s: %w", address, ErrPairNotFound)
	}

	snap := out.Pairs[0].snapshot(address)
	c.logger.WithFields(map[string]interface{}{
		"mint":      address,
		"pair":      snap.PairAddress,
		"price_usd": snap.PriceUSD,
		"pairs":     len(out.Pairs),
	}).Debug("📈 Market snapshot")
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, url string, out *tokenPairsResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("market request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}

	*out = tokenPairsResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode market response: %w", err))
	}
	return nil
}

// Price returns the USD price of the primary pair. A missing or zero price is
// ErrNoPrice so callers can skip the observation rather than act on it.
func (c *Client) Price(ctx context.Context, address string) (float64, error) {
	snap, err := c.Snapshot(ctx, address)
	if err != nil {
		return 0, err
	}
	if snap.PriceUSD <= 0 {
		return 0, fmt.Errorf("%s: %w", address, ErrNoPrice)
	}
	return snap.PriceUSD, nil
}
