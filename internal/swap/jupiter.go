// Package swap quotes, builds, signs, submits and confirms Jupiter swaps.
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/internal/retry"
)

// ClientConfig configures the Jupiter client
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Retry   retry.Policy
}

// Client talks to the Jupiter quote and swap endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Policy
	logger     *logger.Logger
}

// QuoteRequest describes an exact-in swap to price
type QuoteRequest struct {
	InputMint        string
	OutputMint       string
	Amount           uint64 // base units of InputMint
	SlippageBps      int
	OnlyDirectRoutes bool
}

// Quote is a priced route. Raw is passed back verbatim when building the swap.
type Quote struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	Raw                  json.RawMessage `json:"-"`
}

// InAmountUint parses InAmount, returning 0 when it is malformed
func (q *Quote) InAmountUint() uint64 {
	v, _ := strconv.ParseUint(q.InAmount, 10, 64)
	return v
}

// OutAmountUint parses OutAmount, returning 0 when it is malformed
func (q *Quote) OutAmountUint() uint64 {
	v, _ := strconv.ParseUint(q.OutAmount, 10, 64)
	return v
}

// SwapTransaction is an unsigned transaction built for a quote
type SwapTransaction struct {
	SwapTransaction      string `json:"swapTransaction"` // base64
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// NewClient creates a Jupiter client
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

// Quote prices a swap, retrying transport and HTTP failures under the
// configured policy. Exhaustion yields an error wrapping retry.ErrTransport.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	if req.OnlyDirectRoutes {
		params.Set("onlyDirectRoutes", "true")
	}
	endpoint := c.baseURL + "/quote?" + params.Encode()

	var quote *Quote
	err := c.retry.Transport(ctx, "quote", func(ctx context.Context) error {
		body, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		q := &Quote{}
		if err := json.Unmarshal(body, q); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode quote: %w", err))
		}
		q.Raw = body
		quote = q
		return nil
	}, func(attempt int, err error, next time.Duration) {
		c.logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"input_mint":  req.InputMint,
			"output_mint": req.OutputMint,
			"retry_in":    next.String(),
		}).WithError(err).Warn("⚠️ Quote attempt failed")
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"input_mint":   quote.InputMint,
		"output_mint":  quote.OutputMint,
		"in_amount":    quote.InAmount,
		"out_amount":   quote.OutAmount,
		"price_impact": quote.PriceImpactPct,
	}).Debug("💱 Quote received")
	return quote, nil
}

// BuildSwap asks Jupiter for an unsigned transaction executing quote for user.
// It is not retried here.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string) (*SwapTransaction, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"quoteResponse":           json.RawMessage(quote.Raw),
		"userPublicKey":           userPublicKey,
		"wrapAndUnwrapSol":        true,
		"dynamicComputeUnitLimit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/swap", payload)
	if err != nil {
		return nil, err
	}

	var out SwapTransaction
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode swap response: %w", err)
	}
	if out.SwapTransaction == "" {
		return nil, fmt.Errorf("swap response has no transaction")
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
