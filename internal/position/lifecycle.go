package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/internal/market"
	"dex-sniper-bot-go/internal/notify"
	"dex-sniper-bot-go/internal/swap"
	"dex-sniper-bot-go/pkg/utils"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// ErrInsufficientBalance aborts an entry the wallet cannot pay for
var ErrInsufficientBalance = errors.New("insufficient native balance")

// PriceSource reads the current USD price of a token
type PriceSource interface {
	Price(ctx context.Context, address string) (float64, error)
}

// Trader executes swaps against the native asset
type Trader interface {
	Buy(ctx context.Context, mint string) (*swap.Result, error)
	Sell(ctx context.Context, mint string, amount uint64) (*swap.Result, error)
}

// Holdings reads wallet balances
type Holdings interface {
	NativeBalance(ctx context.Context) (uint64, error)
	TokenBalance(ctx context.Context, mint string) (uint64, error)
}

// Journal records trades and positions
type Journal interface {
	LogTrade(trade logger.TradeLog) error
	LogPosition(position logger.PositionLog) error
}

// Deps are the collaborators a lifecycle calls
type Deps struct {
	Prices   PriceSource
	Trader   Trader
	Holdings Holdings
	Notifier notify.Notifier
	Journal  Journal // optional
	Clock    clock.Clock
	Logger   *logger.Logger
}

// Config tunes one lifecycle
type Config struct {
	Policy         ExitPolicy
	PollInterval   time.Duration
	StatusInterval time.Duration // 0 disables status notifications
	BuyLamports    uint64
	SlippageBps    int
	CheckBalance   bool
	ExitAlertAfter int // consecutive failed exits before alerting, 0 disables
}

// Lifecycle drives one token through ENTERING, HOLDING and EXITING. Only its
// own goroutine calls Step or Run; Status is safe from any goroutine.
type Lifecycle struct {
	cfg  Config
	deps Deps
	log  *logrus.Entry

	mu     sync.RWMutex
	state  State
	pos    Position
	reason ExitReason
	err    error

	pendingExit  ExitReason
	exitFailures int
}

// NewLifecycle creates a lifecycle that will buy address
func NewLifecycle(address string, cfg Config, deps Deps) *Lifecycle {
	return newLifecycle(address, StateEntering, cfg, deps)
}

// NewHolding creates a lifecycle for a position already held, as the
// sell-only watcher does. A zero entryPrice is taken from the first tick.
func NewHolding(address string, entryPrice float64, startedAt time.Time, cfg Config, deps Deps) *Lifecycle {
	l := newLifecycle(address, StateHolding, cfg, deps)
	l.pos.EntryPrice = entryPrice
	l.pos.HighestPriceSeen = entryPrice
	l.pos.StartedAt = startedAt
	return l
}

func newLifecycle(address string, state State, cfg Config, deps Deps) *Lifecycle {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Lifecycle{
		cfg:   cfg,
		deps:  deps,
		log:   deps.Logger.WithToken(address),
		state: state,
		pos:   Position{TokenAddress: address},
	}
}

// State returns the current stage
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns why the lifecycle aborted, if it did
func (l *Lifecycle) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Reason returns the exit reason once one fired
func (l *Lifecycle) Reason() ExitReason {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reason
}

// Position returns a copy of the tracked position
func (l *Lifecycle) Position() Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pos
}

// Status returns a point-in-time view for reporting
func (l *Lifecycle) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Status{
		Address:      l.pos.TokenAddress,
		State:        l.state,
		EntryPrice:   l.pos.EntryPrice,
		HighestPrice: l.pos.HighestPriceSeen,
		LastPrice:    l.pos.LastPrice,
		StartedAt:    l.pos.StartedAt,
		ExitReason:   l.reason,
	}
	if l.pos.LastPrice > 0 {
		s.ChangePct = l.pos.ChangePct(l.pos.LastPrice)
	}
	if !l.pos.StartedAt.IsZero() {
		s.Held = l.deps.Clock.Since(l.pos.StartedAt).Truncate(time.Second).String()
	}
	return s
}

// Run steps the lifecycle on the poll interval until it reaches a terminal
// state or ctx is done. Entry and exit run without waiting for a tick.
// Trades already submitted are seen through even if ctx is cancelled.
func (l *Lifecycle) Run(ctx context.Context) (State, error) {
	ticker := l.deps.Clock.Ticker(l.cfg.PollInterval)
	defer ticker.Stop()

	var statusC <-chan time.Time
	if l.cfg.StatusInterval > 0 {
		status := l.deps.Clock.Ticker(l.cfg.StatusInterval)
		defer status.Stop()
		statusC = status.C
	}

	for {
		state := l.State()
		if state.Terminal() {
			return state, l.Err()
		}
		if state == StateEntering || state == StateExiting {
			l.Step(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			l.log.WithField("state", state).Warn("⚠️ Lifecycle stopped with position still open")
			return state, ctx.Err()
		case <-ticker.C:
			l.Step(ctx)
		case <-statusC:
			l.notifyStatus()
		}
	}
}

// Step performs the work of the current state once
func (l *Lifecycle) Step(ctx context.Context) {
	switch l.State() {
	case StateEntering:
		l.enter(ctx)
	case StateHolding:
		l.tick(ctx)
	case StateExiting:
		l.exit(ctx)
	}
}

func (l *Lifecycle) transition(to State) {
	l.mu.Lock()
	from := l.state
	l.state = to
	l.mu.Unlock()
	if from != to {
		l.deps.Logger.LogStateChange(l.pos.TokenAddress, string(from), string(to))
	}
}

func (l *Lifecycle) abort(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	l.transition(StateAborted)
	l.journalPosition()
}

func (l *Lifecycle) enter(ctx context.Context) {
	mint := l.pos.TokenAddress
	// nothing is in flight yet, so cancellation still stops the entry
	if err := ctx.Err(); err != nil {
		l.abort(fmt.Errorf("cancelled before entry: %w", err))
		return
	}
	tradeCtx := context.WithoutCancel(ctx)

	if l.cfg.CheckBalance && l.deps.Holdings != nil {
		balance, err := l.deps.Holdings.NativeBalance(tradeCtx)
		if err != nil {
			l.abort(fmt.Errorf("balance check: %w", err))
			return
		}
		if balance < l.cfg.BuyLamports {
			l.log.WithFields(logrus.Fields{
				"balance_sol":  utils.ConvertLamportsToSOL(balance),
				"required_sol": utils.ConvertLamportsToSOL(l.cfg.BuyLamports),
			}).Warn("⚠️ Not enough SOL to enter")
			l.abort(fmt.Errorf("%w: have %d lamports, need %d", ErrInsufficientBalance, balance, l.cfg.BuyLamports))
			return
		}
	}

	res, err := l.deps.Trader.Buy(tradeCtx, mint)
	if err != nil {
		l.journalTrade("buy", nil, err, "", 0)
		if swap.IsAmbiguous(err) {
			l.deps.Notifier.Notify(fmt.Sprintf("🚨 *Buy outcome unknown* for `%s`\n%v\nCheck the wallet manually.", mint, err))
		}
		l.abort(err)
		return
	}

	now := l.deps.Clock.Now()
	l.mu.Lock()
	l.pos.StartedAt = now
	l.pos.TokenAmount = res.OutAmount
	l.mu.Unlock()

	// entry price is the first read after the buy lands; when the source has
	// nothing yet the first holding tick sets it
	if price, err := l.deps.Prices.Price(ctx, mint); err == nil {
		l.mu.Lock()
		l.pos.Observe(price)
		l.mu.Unlock()
	} else {
		l.log.WithError(err).Debug("Entry price not available yet")
	}

	l.journalTrade("buy", res, nil, "", 0)
	l.deps.Notifier.Notify(fmt.Sprintf("🟢 *Bought* `%s`\nSpent: %.4f SOL\nEntry: $%g\nhttps://solscan.io/tx/%s",
		mint, utils.ConvertLamportsToSOL(res.InAmount), l.pos.EntryPrice, res.Signature))
	l.transition(StateHolding)
}

func (l *Lifecycle) tick(ctx context.Context) {
	mint := l.pos.TokenAddress

	price, err := l.deps.Prices.Price(ctx, mint)
	if err != nil {
		if errors.Is(err, market.ErrPairNotFound) || errors.Is(err, market.ErrNoPrice) {
			l.log.WithError(err).Debug("No price this tick")
		} else {
			l.log.WithError(err).Warn("⚠️ Price read failed, skipping tick")
		}
		if l.pendingExit != "" {
			l.beginExit(l.pendingExit, l.pos.LastPrice)
		}
		return
	}

	l.mu.Lock()
	l.pos.Observe(price)
	l.mu.Unlock()

	elapsed := l.deps.Clock.Since(l.pos.StartedAt)
	reason, exit := l.cfg.Policy.Evaluate(&l.pos, price, elapsed)
	if !exit && l.pendingExit != "" {
		reason, exit = l.pendingExit, true
	}

	l.log.WithFields(logrus.Fields{
		"price":      price,
		"change_pct": l.pos.ChangePct(price),
		"high":       l.pos.HighestPriceSeen,
		"elapsed":    elapsed.Truncate(time.Second).String(),
	}).Debug("📈 Price tick")

	if exit {
		l.beginExit(reason, price)
	}
}

func (l *Lifecycle) beginExit(reason ExitReason, price float64) {
	l.mu.Lock()
	l.reason = reason
	l.mu.Unlock()
	l.deps.Logger.LogExitTriggered(l.pos.TokenAddress, string(reason), price, l.pos.ChangePct(price))
	l.transition(StateExiting)
}

func (l *Lifecycle) exit(ctx context.Context) {
	mint := l.pos.TokenAddress
	tradeCtx := context.WithoutCancel(ctx)

	amount, err := l.deps.Holdings.TokenBalance(tradeCtx, mint)
	if err != nil {
		l.exitFailed(fmt.Errorf("token balance: %w", err))
		return
	}
	if amount == 0 {
		l.log.Warn("⚠️ No token balance left to sell")
		l.mu.Lock()
		l.reason = ExitNoBalance
		l.mu.Unlock()
		l.close()
		return
	}

	res, err := l.deps.Trader.Sell(tradeCtx, mint, amount)
	if err != nil {
		l.journalTrade("sell", nil, err, l.reason, amount)
		if swap.IsAmbiguous(err) {
			l.deps.Notifier.Notify(fmt.Sprintf("🚨 *Sell outcome unknown* for `%s`\n%v\nAutomated exits halted, check the wallet.", mint, err))
			l.abort(err)
			return
		}
		l.exitFailed(err)
		return
	}

	l.journalTrade("sell", res, nil, l.reason, amount)
	change := l.pos.ChangePct(l.pos.LastPrice)
	l.deps.Notifier.Notify(fmt.Sprintf("🔴 *Sold* `%s` (%s)\nReceived: %.4f SOL\nChange: %+.2f%% | Peak: %+.2f%% | Drawdown: %.2f%%\nhttps://solscan.io/tx/%s",
		mint, l.reason, utils.ConvertLamportsToSOL(res.OutAmount), change, l.pos.PeakPct(), l.pos.DrawdownPct(), res.Signature))
	l.close()
}

// exitFailed returns to HOLDING so the exit is retried on the next tick
func (l *Lifecycle) exitFailed(err error) {
	l.exitFailures++
	l.pendingExit = l.reason
	l.log.WithError(err).WithField("failures", l.exitFailures).Error("❌ Exit failed, retrying next tick")

	if l.cfg.ExitAlertAfter > 0 && l.exitFailures == l.cfg.ExitAlertAfter {
		l.deps.Notifier.Notify(fmt.Sprintf("🚨 *Exit failing* for `%s`\n%d consecutive attempts failed\nLast error: %v",
			l.pos.TokenAddress, l.exitFailures, err))
	}
	l.transition(StateHolding)
}

func (l *Lifecycle) close() {
	l.pendingExit = ""
	l.exitFailures = 0
	l.transition(StateClosed)
	l.journalPosition()
}

func (l *Lifecycle) notifyStatus() {
	s := l.Status()
	l.deps.Notifier.Notify(fmt.Sprintf("📊 *Status* `%s`\nPrice: $%g | Entry: $%g\nChange: %+.2f%% | High: $%g\nHeld: %s",
		s.Address, s.LastPrice, s.EntryPrice, s.ChangePct, s.HighestPrice, s.Held))
}

func (l *Lifecycle) journalTrade(side string, res *swap.Result, err error, reason ExitReason, amount uint64) {
	if l.deps.Journal == nil {
		return
	}
	trade := logger.TradeLog{
		Timestamp:   l.deps.Clock.Now(),
		TradeType:   side,
		Mint:        l.pos.TokenAddress,
		AmountIn:    amount,
		PriceUSD:    l.pos.LastPrice,
		Status:      "success",
		SlippageBps: l.cfg.SlippageBps,
		Reason:      string(reason),
	}
	if side == "buy" {
		trade.AmountIn = l.cfg.BuyLamports
	} else if l.pos.EntryPrice > 0 {
		trade.ChangePct = l.pos.ChangePct(l.pos.LastPrice)
	}
	switch {
	case err != nil && swap.IsAmbiguous(err):
		trade.Status = "ambiguous"
		trade.ErrorMessage = err.Error()
	case err != nil:
		trade.Status = "failed"
		trade.ErrorMessage = err.Error()
	default:
		trade.AmountIn = res.InAmount
		trade.AmountOut = res.OutAmount
		trade.Signature = res.Signature.String()
	}
	if jerr := l.deps.Journal.LogTrade(trade); jerr != nil {
		l.log.WithError(jerr).Warn("⚠️ Failed to journal trade")
	}
}

func (l *Lifecycle) journalPosition() {
	if l.deps.Journal == nil {
		return
	}
	l.mu.RLock()
	p := logger.PositionLog{
		Mint:            l.pos.TokenAddress,
		State:           string(l.state),
		OpenedAt:        l.pos.StartedAt,
		ClosedAt:        l.deps.Clock.Now(),
		EntryPriceUSD:   l.pos.EntryPrice,
		ExitPriceUSD:    l.pos.LastPrice,
		HighestPriceUSD: l.pos.HighestPriceSeen,
		PeakPct:         l.pos.PeakPct(),
		DrawdownPct:     l.pos.DrawdownPct(),
		ExitReason:      string(l.reason),
	}
	if l.pos.EntryPrice > 0 {
		p.RealizedPct = l.pos.ChangePct(l.pos.LastPrice)
	}
	l.mu.RUnlock()

	if err := l.deps.Journal.LogPosition(p); err != nil {
		l.log.WithError(err).Warn("⚠️ Failed to journal position")
	}
}
