// Package validator decides whether a freshly listed token is worth buying.
package validator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/internal/market"
	"dex-sniper-bot-go/internal/retry"

	"github.com/benbjohnson/clock"
)

// Rule names the check that rejected a candidate
type Rule string

const (
	RulePair      Rule = "pair"
	RuleAge       Rule = "age"
	RuleLiquidity Rule = "liquidity"
	RuleMarketCap Rule = "market_cap"
	RuleActivity  Rule = "activity"
	RuleRisk      Rule = "risk"
)

// MarketData returns the primary pair for a token
type MarketData interface {
	Snapshot(ctx context.Context, address string) (*market.Snapshot, error)
}

// RiskSource returns a token's risk score
type RiskSource interface {
	Score(ctx context.Context, address string) (float64, error)
}

// Candidate is a token address waiting for a decision
type Candidate struct {
	Address      string
	Source       string
	DiscoveredAt time.Time
}

// Rules holds the thresholds
type Rules struct {
	MaxAge          time.Duration
	MinLiquidityUSD float64
	MinMarketCapUSD float64
	MinMCToFDVRatio float64
	MinVolume5m     float64
	MinTxns5m       int
	MaxRiskScore    float64
}

// Config configures a Validator. PairRetry bounds how long a token may go
// without a listed pair before it is rejected.
type Config struct {
	Rules
	PairRetry retry.Policy
}

// Verdict is the outcome of Validate. Rule and Reason are set on rejection.
type Verdict struct {
	Passed    bool
	Rule      Rule
	Reason    string
	Snapshot  *market.Snapshot
	RiskScore *float64
}

// Validator applies the buy rules in order, stopping at the first failure
type Validator struct {
	market MarketData
	risk   RiskSource
	cfg    Config
	clock  clock.Clock
	logger *logger.Logger
}

// New creates a validator
func New(md MarketData, rs RiskSource, cfg Config, clk clock.Clock, log *logger.Logger) *Validator {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Validator{market: md, risk: rs, cfg: cfg, clock: clk, logger: log}
}

// Validate runs every rule against c. Rejections are not errors.
func (v *Validator) Validate(ctx context.Context, c Candidate) Verdict {
	verdict := v.evaluate(ctx, c.Address)

	ev := logger.CandidateEvent{
		Mint:       c.Address,
		Source:     c.Source,
		ReceivedAt: c.DiscoveredAt,
		DecidedAt:  v.clock.Now(),
		Passed:     verdict.Passed,
		Rule:       string(verdict.Rule),
		Reason:     verdict.Reason,
		RiskScore:  verdict.RiskScore,
	}
	if s := verdict.Snapshot; s != nil {
		ev.PairAge = s.PairAge(ev.DecidedAt)
		ev.PriceUSD = s.PriceUSD
		ev.LiquidityUSD = s.LiquidityUSD
		ev.MarketCapUSD = s.MarketCapUSD
		ev.FDVUSD = s.FDVUSD
		ev.Volume5m = s.Volume5m
		ev.Txns5m = s.Txns5m
	}
	v.logger.LogCandidateEvent(ev)

	return verdict
}

func (v *Validator) evaluate(ctx context.Context, address string) Verdict {
	snap, err := v.lookupPair(ctx, address)
	if err != nil {
		if errors.Is(err, market.ErrPairNotFound) {
			return reject(RulePair, nil, "no trading pair after %d attempts", max(v.cfg.PairRetry.Attempts, 1))
		}
		return reject(RulePair, nil, "pair lookup failed: %v", err)
	}

	r := v.cfg.Rules

	if snap.PairCreatedAt.IsZero() {
		return reject(RuleAge, snap, "pair creation time unknown")
	}
	age := snap.PairAge(v.clock.Now())
	if age < 0 {
		return reject(RuleAge, snap, "pair created in the future (%s)", age)
	}
	if age > r.MaxAge {
		return reject(RuleAge, snap, "pair age %s exceeds %s", age.Truncate(time.Second), r.MaxAge)
	}

	if snap.LiquidityUSD < r.MinLiquidityUSD {
		return reject(RuleLiquidity, snap, "liquidity $%.2f below $%.2f", snap.LiquidityUSD, r.MinLiquidityUSD)
	}

	if snap.MarketCapUSD < r.MinMarketCapUSD {
		return reject(RuleMarketCap, snap, "market cap $%.2f below $%.2f", snap.MarketCapUSD, r.MinMarketCapUSD)
	}
	if snap.FDVUSD <= 0 {
		return reject(RuleMarketCap, snap, "fdv is zero")
	}
	if ratio := snap.MarketCapUSD / snap.FDVUSD; ratio < r.MinMCToFDVRatio {
		return reject(RuleMarketCap, snap, "market cap/fdv %.3f below %.3f", ratio, r.MinMCToFDVRatio)
	}

	if snap.Txns5m < r.MinTxns5m {
		return reject(RuleActivity, snap, "%d txns in 5m below %d", snap.Txns5m, r.MinTxns5m)
	}
	if snap.Volume5m < r.MinVolume5m {
		return reject(RuleActivity, snap, "5m volume $%.2f below $%.2f", snap.Volume5m, r.MinVolume5m)
	}

	score, err := v.risk.Score(ctx, address)
	if err != nil {
		return reject(RuleRisk, snap, "risk score unavailable: %v", err)
	}
	if score > r.MaxRiskScore {
		verdict := reject(RuleRisk, snap, "risk score %.0f above %.0f", score, r.MaxRiskScore)
		verdict.RiskScore = &score
		return verdict
	}

	return Verdict{Passed: true, Snapshot: snap, RiskScore: &score}
}

// lookupPair fetches the pair, retrying while it is not listed yet or the
// source is unreachable. The snapshot from the successful attempt is used.
func (v *Validator) lookupPair(ctx context.Context, address string) (*market.Snapshot, error) {
	var snap *market.Snapshot
	err := v.cfg.PairRetry.Do(ctx, func(ctx context.Context) error {
		s, err := v.market.Snapshot(ctx, address)
		if err != nil {
			return err
		}
		snap = s
		return nil
	}, func(attempt int, err error, next time.Duration) {
		v.logger.WithToken(address).WithFields(map[string]interface{}{
			"attempt":  attempt,
			"retry_in": next.String(),
		}).WithError(err).Debug("⏳ Pair not available yet")
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func reject(rule Rule, snap *market.Snapshot, format string, args ...interface{}) Verdict {
	return Verdict{Rule: rule, Reason: fmt.Sprintf(format, args...), Snapshot: snap}
}
