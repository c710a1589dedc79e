package swap

import (
	"context"
	"errors"
	"fmt"

	"dex-sniper-bot-go/internal/logger"
)

// Quoter prices swaps
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// TraderConfig fixes the native side and sizing of trades
type TraderConfig struct {
	NativeMint       string
	BuyLamports      uint64
	SlippageBps      int
	OnlyDirectRoutes bool
}

// Trader buys tokens with the native asset and sells them back
type Trader struct {
	quoter   Quoter
	executor *Executor
	cfg      TraderConfig
	logger   *logger.Logger
}

// NewTrader creates a trader
func NewTrader(quoter Quoter, executor *Executor, cfg TraderConfig, log *logger.Logger) *Trader {
	if log == nil {
		log = logger.Discard()
	}
	return &Trader{quoter: quoter, executor: executor, cfg: cfg, logger: log}
}

// Buy swaps the configured native amount into mint
func (t *Trader) Buy(ctx context.Context, mint string) (*Result, error) {
	return t.trade(ctx, "buy", mint, QuoteRequest{
		InputMint:        t.cfg.NativeMint,
		OutputMint:       mint,
		Amount:           t.cfg.BuyLamports,
		SlippageBps:      t.cfg.SlippageBps,
		OnlyDirectRoutes: t.cfg.OnlyDirectRoutes,
	})
}

// Sell swaps amount base units of mint back into the native asset
func (t *Trader) Sell(ctx context.Context, mint string, amount uint64) (*Result, error) {
	return t.trade(ctx, "sell", mint, QuoteRequest{
		InputMint:        mint,
		OutputMint:       t.cfg.NativeMint,
		Amount:           amount,
		SlippageBps:      t.cfg.SlippageBps,
		OnlyDirectRoutes: t.cfg.OnlyDirectRoutes,
	})
}

func (t *Trader) trade(ctx context.Context, side, mint string, req QuoteRequest) (*Result, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: %s amount is zero", ErrBuildFailed, side)
	}
	t.logger.LogTradeAttempt(side, mint, req.Amount)

	quote, err := t.quoter.Quote(ctx, req)
	if err != nil {
		err = fmt.Errorf("%w: quote: %w", ErrBuildFailed, err)
		t.logger.LogTradeError(side, mint, req.Amount, err)
		return nil, err
	}
	if quote.OutAmountUint() == 0 {
		err := fmt.Errorf("%w: quote returned no output", ErrBuildFailed)
		t.logger.LogTradeError(side, mint, req.Amount, err)
		return nil, err
	}

	res, err := t.executor.Execute(ctx, quote)
	if err != nil {
		t.logger.LogTradeError(side, mint, req.Amount, err)
		return nil, err
	}

	t.logger.LogTradeSuccess(side, mint, req.Amount, res.Signature.String())
	return res, nil
}

// IsAmbiguous reports whether err leaves the trade outcome unknown
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrTradeAmbiguous)
}
