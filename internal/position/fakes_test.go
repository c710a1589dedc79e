package position

import (
	"context"
	"errors"
	"sync"

	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/internal/swap"

	"github.com/gagliardetto/solana-go"
)

type tick struct {
	price float64
	err   error
}

type fakePrices struct {
	mu    sync.Mutex
	ticks []tick
	calls int
}

func prices(values ...float64) *fakePrices {
	p := &fakePrices{}
	for _, v := range values {
		p.ticks = append(p.ticks, tick{price: v})
	}
	return p
}

func (p *fakePrices) Price(ctx context.Context, address string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.ticks) == 0 {
		return 0, errors.New("no prices scripted")
	}
	t := p.ticks[0]
	if len(p.ticks) > 1 {
		p.ticks = p.ticks[1:]
	}
	return t.price, t.err
}

type fakeTrader struct {
	mu       sync.Mutex
	buyErr   error
	sellErrs []error
	buys     int
	sells    []uint64
}

func (t *fakeTrader) Buy(ctx context.Context, mint string) (*swap.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buys++
	if t.buyErr != nil {
		return nil, t.buyErr
	}
	return &swap.Result{Signature: solana.Signature{1}, InAmount: 100_000_000, OutAmount: 5_000}, nil
}

func (t *fakeTrader) Sell(ctx context.Context, mint string, amount uint64) (*swap.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sells = append(t.sells, amount)
	if len(t.sellErrs) > 0 {
		err := t.sellErrs[0]
		t.sellErrs = t.sellErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &swap.Result{Signature: solana.Signature{2}, InAmount: amount, OutAmount: 120_000_000}, nil
}

type fakeHoldings struct {
	native uint64
	tokens uint64
	err    error
}

func (h *fakeHoldings) NativeBalance(ctx context.Context) (uint64, error) {
	return h.native, h.err
}

func (h *fakeHoldings) TokenBalance(ctx context.Context, mint string) (uint64, error) {
	return h.tokens, h.err
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Notify(text string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, text)
	r.mu.Unlock()
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

type memJournal struct {
	mu        sync.Mutex
	trades    []logger.TradeLog
	positions []logger.PositionLog
}

func (j *memJournal) LogTrade(t logger.TradeLog) error {
	j.mu.Lock()
	j.trades = append(j.trades, t)
	j.mu.Unlock()
	return nil
}

func (j *memJournal) LogPosition(p logger.PositionLog) error {
	j.mu.Lock()
	j.positions = append(j.positions, p)
	j.mu.Unlock()
	return nil
}
