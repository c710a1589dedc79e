package position

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"dex-sniper-bot-go/internal/market"
	"dex-sniper-bot-go/internal/swap"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mint = "MintAAA"

func defaultPolicy() PercentExit {
	return PercentExit{TakeProfitPct: 20, StopLossPct: -10, MaxHold: 5 * time.Minute}
}

type harness struct {
	clock    *clock.Mock
	prices   *fakePrices
	trader   *fakeTrader
	holdings *fakeHoldings
	notes    *recorder
	journal  *memJournal
}

func newHarness(p *fakePrices) *harness {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return &harness{
		clock:    clk,
		prices:   p,
		trader:   &fakeTrader{},
		holdings: &fakeHoldings{native: 1_000_000_000, tokens: 5_000},
		notes:    &recorder{},
		journal:  &memJournal{},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Prices:   h.prices,
		Trader:   h.trader,
		Holdings: h.holdings,
		Notifier: h.notes,
		Journal:  h.journal,
		Clock:    h.clock,
	}
}

func (h *harness) holding(entry float64, cfg Config) *Lifecycle {
	if cfg.Policy == nil {
		cfg.Policy = defaultPolicy()
	}
	return NewHolding(mint, entry, h.clock.Now(), cfg, h.deps())
}

func TestPercentExitPolicy(t *testing.T) {
	pos := &Position{EntryPrice: 100}
	p := defaultPolicy()

	tests := []struct {
		price   float64
		elapsed time.Duration
		reason  ExitReason
		exit    bool
	}{
		{105, time.Minute, "", false},
		{120, time.Minute, ExitTakeProfit, true},
		{130, time.Minute, ExitTakeProfit, true},
		{91, time.Minute, "", false},
		{90, time.Minute, ExitStopLoss, true},
		{89, time.Minute, ExitStopLoss, true},
		{102, 5*time.Minute - time.Second, "", false},
		{102, 5 * time.Minute, ExitMaxHold, true},
		{130, 6 * time.Minute, ExitMaxHold, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v@%s", tt.price, tt.elapsed), func(t *testing.T) {
			reason, exit := p.Evaluate(pos, tt.price, tt.elapsed)
			assert.Equal(t, tt.exit, exit)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestAbsoluteExitPolicy(t *testing.T) {
	a := AbsoluteExit{TargetUSD: 0.05, StopUSD: 0.01}

	_, exit := a.Evaluate(nil, 0.03, 24*time.Hour)
	assert.False(t, exit, "zero max hold disables the time exit")

	reason, exit := a.Evaluate(nil, 0.05, 0)
	assert.True(t, exit)
	assert.Equal(t, ExitTargetPrice, reason)

	reason, exit = a.Evaluate(nil, 0.009, 0)
	assert.True(t, exit)
	assert.Equal(t, ExitStopPrice, reason)

	reason, exit = AbsoluteExit{TargetUSD: 1, MaxHold: time.Hour}.Evaluate(nil, 0.5, time.Hour)
	assert.True(t, exit)
	assert.Equal(t, ExitMaxHold, reason)

	_, exit = AbsoluteExit{TargetUSD: 0.05}.Evaluate(nil, 0.000001, 0)
	assert.False(t, exit, "zero stop never fires")
}

func TestHighestPriceNeverDecreases(t *testing.T) {
	seq := []float64{105, 103, 110, 95, 108, 111, 92}
	h := newHarness(prices(seq...))
	lc := h.holding(100, Config{Policy: PercentExit{TakeProfitPct: 1000, StopLossPct: -1000}})

	prev := lc.Position().HighestPriceSeen
	for range seq {
		lc.Step(context.Background())
		high := lc.Position().HighestPriceSeen
		assert.GreaterOrEqual(t, high, prev)
		prev = high
	}
	assert.Equal(t, 111.0, prev)
	assert.Equal(t, StateHolding, lc.State())
}

func TestTakeProfitFiresAtPeak(t *testing.T) {
	h := newHarness(prices(105, 130, 90))
	lc := h.holding(100, Config{})
	ctx := context.Background()

	lc.Step(ctx)
	assert.Equal(t, StateHolding, lc.State())

	lc.Step(ctx)
	assert.Equal(t, StateExiting, lc.State())
	assert.Equal(t, ExitTakeProfit, lc.Reason())
	assert.Equal(t, 130.0, lc.Position().LastPrice)
	assert.Equal(t, 2, h.prices.calls)
}

func TestStopLossBoundary(t *testing.T) {
	h := newHarness(prices(91, 89))
	lc := h.holding(100, Config{})
	ctx := context.Background()

	lc.Step(ctx)
	assert.Equal(t, StateHolding, lc.State())

	lc.Step(ctx)
	assert.Equal(t, StateExiting, lc.State())
	assert.Equal(t, ExitStopLoss, lc.Reason())
}

func TestMaxHoldAtExactlyFiveMinutes(t *testing.T) {
	h := newHarness(prices(102, 102))
	lc := h.holding(100, Config{})
	ctx := context.Background()

	h.clock.Add(5*time.Minute - time.Millisecond)
	lc.Step(ctx)
	assert.Equal(t, StateHolding, lc.State())

	h.clock.Add(time.Millisecond)
	lc.Step(ctx)
	assert.Equal(t, StateExiting, lc.State())
	assert.Equal(t, ExitMaxHold, lc.Reason())
}

func TestMissingPriceSkipsTick(t *testing.T) {
	p := &fakePrices{ticks: []tick{
		{err: fmt.Errorf("x: %w", market.ErrPairNotFound)},
		{err: fmt.Errorf("x: %w", market.ErrNoPrice)},
		{err: errors.New("connection refused")},
		{price: 104},
	}}
	h := newHarness(p)
	lc := h.holding(100, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		lc.Step(ctx)
		assert.Equal(t, StateHolding, lc.State())
		assert.Equal(t, 100.0, lc.Position().HighestPriceSeen)
	}
	lc.Step(ctx)
	assert.Equal(t, 104.0, lc.Position().HighestPriceSeen)
}

func TestEnterBuysThenHolds(t *testing.T) {
	h := newHarness(prices(100))
	lc := NewLifecycle(mint, Config{Policy: defaultPolicy(), BuyLamports: 100_000_000, CheckBalance: true}, h.deps())
	require.Equal(t, StateEntering, lc.State())

	lc.Step(context.Background())

	assert.Equal(t, StateHolding, lc.State())
	assert.Equal(t, 1, h.trader.buys)
	pos := lc.Position()
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, 100.0, pos.HighestPriceSeen)
	assert.Equal(t, h.clock.Now(), pos.StartedAt)
	assert.Equal(t, uint64(5_000), pos.TokenAmount)

	require.Len(t, h.journal.trades, 1)
	assert.Equal(t, "buy", h.journal.trades[0].TradeType)
	assert.Equal(t, "success", h.journal.trades[0].Status)
	require.Len(t, h.notes.messages(), 1)
	assert.Contains(t, h.notes.messages()[0], "Bought")
}

func TestEntryPriceTakenLazily(t *testing.T) {
	p := &fakePrices{ticks: []tick{{err: market.ErrPairNotFound}, {price: 50}, {price: 61}}}
	h := newHarness(p)
	lc := NewLifecycle(mint, Config{Policy: defaultPolicy()}, h.deps())
	ctx := context.Background()

	lc.Step(ctx)
	require.Equal(t, StateHolding, lc.State())
	assert.Zero(t, lc.Position().EntryPrice)

	lc.Step(ctx)
	assert.Equal(t, 50.0, lc.Position().EntryPrice)
	assert.Equal(t, StateHolding, lc.State())

	lc.Step(ctx)
	assert.Equal(t, StateExiting, lc.State())
	assert.Equal(t, ExitTakeProfit, lc.Reason())
}

func TestBuyFailureAborts(t *testing.T) {
	h := newHarness(prices(100))
	h.trader.buyErr = fmt.Errorf("%w: quote failed", swap.ErrBuildFailed)
	lc := NewLifecycle(mint, Config{Policy: defaultPolicy()}, h.deps())

	lc.Step(context.Background())

	assert.Equal(t, StateAborted, lc.State())
	assert.ErrorIs(t, lc.Err(), swap.ErrBuildFailed)
	assert.Empty(t, h.notes.messages())
	require.Len(t, h.journal.trades, 1)
	assert.Equal(t, "failed", h.journal.trades[0].Status)
}

func TestAmbiguousBuyAbortsWithAlert(t *testing.T) {
	h := newHarness(prices(100))
	h.trader.buyErr = fmt.Errorf("%w: timeout", swap.ErrTradeAmbiguous)
	lc := NewLifecycle(mint, Config{Policy: defaultPolicy()}, h.deps())

	lc.Step(context.Background())

	assert.Equal(t, StateAborted, lc.State())
	require.Len(t, h.notes.messages(), 1)
	assert.Contains(t, h.notes.messages()[0], "Buy outcome unknown")
	assert.Equal(t, "ambiguous", h.journal.trades[0].Status)
}

func TestInsufficientBalanceAborts(t *testing.T) {
	h := newHarness(prices(100))
	h.holdings.native = 1_000
	lc := NewLifecycle(mint, Config{Policy: defaultPolicy(), BuyLamports: 100_000_000, CheckBalance: true}, h.deps())

	lc.Step(context.Background())

	assert.Equal(t, StateAborted, lc.State())
	assert.ErrorIs(t, lc.Err(), ErrInsufficientBalance)
	assert.Zero(t, h.trader.buys)
}

func TestExitSellsFullBalance(t *testing.T) {
	h := newHarness(prices(130))
	h.holdings.tokens = 7_777
	lc := h.holding(100, Config{})
	ctx := context.Background()

	lc.Step(ctx)
	require.Equal(t, StateExiting, lc.State())
	lc.Step(ctx)

	assert.Equal(t, StateClosed, lc.State())
	assert.Equal(t, []uint64{7_777}, h.trader.sells)
	require.Len(t, h.journal.positions, 1)
	assert.Equal(t, "CLOSED", h.journal.positions[0].State)
	assert.Equal(t, "take_profit", h.journal.positions[0].ExitReason)
	assert.InDelta(t, 30.0, h.journal.positions[0].RealizedPct, 1e-9)

	msgs := h.notes.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Sold")
	assert.Contains(t, msgs[0], "+30.00%")
}

func TestExitWithNoBalanceCloses(t *testing.T) {
	h := newHarness(prices(80))
	h.holdings.tokens = 0
	lc := h.holding(100, Config{})
	ctx := context.Background()

	lc.Step(ctx)
	lc.Step(ctx)

	assert.Equal(t, StateClosed, lc.State())
	assert.Equal(t, ExitNoBalance, lc.Reason())
	assert.Empty(t, h.trader.sells)
}

func TestFailedExitRetriesAndAlertsOnce(t *testing.T) {
	h := newHarness(prices(130, 100, 100, 100))
	boom := fmt.Errorf("%w: route gone", swap.ErrBuildFailed)
	h.trader.sellErrs = []error{boom, boom, boom, nil}
	lc := h.holding(100, Config{ExitAlertAfter: 2})
	ctx := context.Background()

	// trigger, then three failed exits each followed by a holding tick
	lc.Step(ctx)
	for i := 0; i < 3; i++ {
		require.Equal(t, StateExiting, lc.State())
		lc.Step(ctx)
		require.Equal(t, StateHolding, lc.State(), "failed exit returns to holding")
		lc.Step(ctx) // price back in range, exit still pending
	}
	require.Equal(t, StateExiting, lc.State())
	lc.Step(ctx)

	assert.Equal(t, StateClosed, lc.State())
	assert.Len(t, h.trader.sells, 4)
	assert.Equal(t, ExitTakeProfit, lc.Reason())

	var alerts int
	for _, m := range h.notes.messages() {
		if strings.Contains(m, "Exit failing") {
			alerts++
		}
	}
	assert.Equal(t, 1, alerts)
}

func TestAmbiguousSellHalts(t *testing.T) {
	h := newHarness(prices(130))
	h.trader.sellErrs = []error{fmt.Errorf("%w: no status", swap.ErrTradeAmbiguous)}
	lc := h.holding(100, Config{})
	ctx := context.Background()

	lc.Step(ctx)
	lc.Step(ctx)

	assert.Equal(t, StateAborted, lc.State())
	assert.ErrorIs(t, lc.Err(), swap.ErrTradeAmbiguous)
	msgs := h.notes.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Sell outcome unknown")

	lc.Step(ctx)
	assert.Len(t, h.trader.sells, 1, "no automated action after an ambiguous sell")
}

func TestRunEntersAndCloses(t *testing.T) {
	h := newHarness(prices(100, 110, 125))
	deps := h.deps()
	deps.Clock = clock.New()
	lc := NewLifecycle(mint, Config{Policy: defaultPolicy(), PollInterval: time.Millisecond}, deps)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := lc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
	assert.Equal(t, ExitTakeProfit, lc.Reason())
	assert.Equal(t, 125.0, lc.Position().HighestPriceSeen)
}

func TestRunStopsOnCancelWhileHolding(t *testing.T) {
	h := newHarness(prices(100))
	deps := h.deps()
	deps.Clock = clock.New()
	lc := NewHolding(mint, 100, time.Now(), Config{Policy: defaultPolicy(), PollInterval: time.Millisecond}, deps)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	state, err := lc.Run(ctx)
	assert.Equal(t, StateHolding, state)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.trader.sells)
}

func TestRunCancelledBeforeEntryDoesNotBuy(t *testing.T) {
	h := newHarness(prices(100))
	lc := NewLifecycle(mint, Config{Policy: defaultPolicy(), PollInterval: time.Millisecond, CheckBalance: true}, h.deps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := lc.Run(ctx)
	assert.Equal(t, StateAborted, state)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.trader.buys)
	assert.Empty(t, h.trader.sells)
}

func TestWatcherStatusAndAbsoluteExit(t *testing.T) {
	p := &fakePrices{}
	for i := 0; i < 10; i++ {
		p.ticks = append(p.ticks, tick{price: 0.03})
	}
	p.ticks = append(p.ticks, tick{price: 0.06})
	h := newHarness(p)
	deps := h.deps()
	deps.Clock = clock.New()

	lc := NewHolding(mint, 0.02, time.Now(), Config{
		Policy:         AbsoluteExit{TargetUSD: 0.05, StopUSD: 0.01},
		PollInterval:   5 * time.Millisecond,
		StatusInterval: time.Millisecond,
	}, deps)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := lc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
	assert.Equal(t, ExitTargetPrice, lc.Reason())

	var status int
	for _, m := range h.notes.messages() {
		if strings.Contains(m, "Status") {
			status++
		}
	}
	assert.Greater(t, status, 0)
}
