package logger

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// CandidateEvent captures everything known about a validation decision
type CandidateEvent struct {
	Mint       string
	Source     string
	ReceivedAt time.Time
	DecidedAt  time.Time

	Passed bool
	Rule   string
	Reason string

	PairAge      time.Duration
	PriceUSD     float64
	LiquidityUSD float64
	MarketCapUSD float64
	FDVUSD       float64
	Volume5m     float64
	Txns5m       int
	RiskScore    *float64
}

// ProcessingDelay is the time spent between receipt and the decision
func (e CandidateEvent) ProcessingDelay() time.Duration {
	if e.ReceivedAt.IsZero() || e.DecidedAt.IsZero() {
		return 0
	}
	return e.DecidedAt.Sub(e.ReceivedAt)
}

// LogCandidateEvent logs the outcome of validating a token candidate
func (l *Logger) LogCandidateEvent(ev CandidateEvent) {
	fields := logrus.Fields{
		"event":               "candidate_validated",
		"mint":                ev.Mint,
		"source":              ev.Source,
		"passed":              ev.Passed,
		"processing_delay_ms": ev.ProcessingDelay().Milliseconds(),
	}
	if ev.Rule != "" {
		fields["rule"] = ev.Rule
		fields["reason"] = ev.Reason
	}
	if ev.PairAge > 0 {
		fields["pair_age_s"] = int64(ev.PairAge.Seconds())
	}
	if ev.LiquidityUSD > 0 || ev.MarketCapUSD > 0 {
		fields["price_usd"] = ev.PriceUSD
		fields["liquidity_usd"] = ev.LiquidityUSD
		fields["market_cap"] = ev.MarketCapUSD
		fields["fdv"] = ev.FDVUSD
		fields["volume_5m"] = ev.Volume5m
		fields["txns_5m"] = ev.Txns5m
	}
	if ev.RiskScore != nil {
		fields["risk_score"] = *ev.RiskScore
	}

	entry := l.WithFields(fields)
	if ev.Passed {
		entry.Info(fmt.Sprintf("✓ Token accepted: %s", ev.Mint))
		return
	}
	entry.Info(fmt.Sprintf("✗ Token rejected by %s: %s", ev.Rule, ev.Reason))
}
