package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// Client represents a Solana RPC client wrapper
type Client struct {
	client  *rpc.Client
	timeout time.Duration
	logger  *logrus.Logger
}

// ClientConfig contains configuration for Solana client
type ClientConfig struct {
	RPCEndpoint string
	APIKey      string
	Timeout     time.Duration
}

// NewClient creates a new Solana RPC client
func NewClient(config ClientConfig, logger *logrus.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	var rpcClient *rpc.Client
	if config.APIKey != "" {
		rpcClient = rpc.NewWithHeaders(config.RPCEndpoint, map[string]string{
			"Authorization": "Bearer " + config.APIKey,
		})
	} else {
		rpcClient = rpc.New(config.RPCEndpoint)
	}

	return &Client{
		client:  rpcClient,
		timeout: config.Timeout,
		logger:  logger,
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// SendRawTransaction broadcasts a signed, serialized transaction. Preflight is
// skipped so a freshly quoted route is not rejected by a stale simulation.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	maxRetries := uint(2)
	sig, err := c.client.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sendTransaction failed: %w", err)
	}

	c.logger.WithField("signature", sig.String()).Debug("📤 Transaction submitted")
	return sig, nil
}

// GetSignatureStatus returns the status of one signature, or nil when the
// cluster has not seen it.
func (c *Client) GetSignatureStatus(ctx context.Context, signature solana.Signature) (*rpc.SignatureStatusesResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.client.GetSignatureStatuses(ctx, true, signature)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses failed: %w", err)
	}
	if result == nil || len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// GetBlockHeight returns the current confirmed block height
func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	height, err := c.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("getBlockHeight failed: %w", err)
	}
	return height, nil
}

// GetBalance gets account balance in lamports
func (c *Client) GetBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.client.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("getBalance failed: %w", err)
	}
	return result.Value, nil
}

// GetTokenBalance sums the raw balance of every token account owner holds
// for mint. An owner with no token account has a balance of zero.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	accounts, err := c.client.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{Mint: &mint},
		&rpc.GetTokenAccountsOpts{Commitment: rpc.CommitmentConfirmed, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return 0, fmt.Errorf("getTokenAccountsByOwner failed: %w", err)
	}

	var total uint64
	for _, acc := range accounts.Value {
		if acc == nil || acc.Account.Data == nil {
			continue
		}
		data := acc.Account.Data.GetBinary()
		// SPL token account layout: mint(32) owner(32) amount(u64 LE)
		if len(data) < 72 {
			continue
		}
		total += binary.LittleEndian.Uint64(data[64:72])
	}
	return total, nil
}

// GetSlot gets current slot
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.client.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("getSlot failed: %w", err)
	}
	return result, nil
}
