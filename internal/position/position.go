// Package position owns a token from entry to exit.
package position

import (
	"time"

	"dex-sniper-bot-go/pkg/utils"
)

// State is a lifecycle stage
type State string

const (
	StateEntering State = "ENTERING"
	StateHolding  State = "HOLDING"
	StateExiting  State = "EXITING"
	StateClosed   State = "CLOSED"
	StateAborted  State = "ABORTED"
)

// Terminal reports whether no further transitions happen from s
func (s State) Terminal() bool {
	return s == StateClosed || s == StateAborted
}

// ExitReason names the trigger that ended a holding period
type ExitReason string

const (
	ExitMaxHold     ExitReason = "max_hold"
	ExitTakeProfit  ExitReason = "take_profit"
	ExitStopLoss    ExitReason = "stop_loss"
	ExitTargetPrice ExitReason = "target_price"
	ExitStopPrice   ExitReason = "stop_price"
	ExitNoBalance   ExitReason = "no_balance"
)

// Position is an entered token. HighestPriceSeen never decreases.
type Position struct {
	TokenAddress     string
	EntryPrice       float64
	HighestPriceSeen float64
	LastPrice        float64
	StartedAt        time.Time
	TokenAmount      uint64
}

// Observe records a valid price tick
func (p *Position) Observe(price float64) {
	if p.EntryPrice <= 0 {
		p.EntryPrice = price
	}
	if price > p.HighestPriceSeen {
		p.HighestPriceSeen = price
	}
	p.LastPrice = price
}

// ChangePct is the percentage move of price against the entry
func (p *Position) ChangePct(price float64) float64 {
	return utils.CalculatePercentageChange(p.EntryPrice, price)
}

// PeakPct is the best move seen since entry
func (p *Position) PeakPct() float64 {
	return utils.CalculatePercentageChange(p.EntryPrice, p.HighestPriceSeen)
}

// DrawdownPct is how far the last price sits below the high
func (p *Position) DrawdownPct() float64 {
	return utils.DrawdownPct(p.HighestPriceSeen, p.LastPrice)
}

// Status is a point-in-time view of a lifecycle
type Status struct {
	Address      string     `json:"address"`
	State        State      `json:"state"`
	EntryPrice   float64    `json:"entry_price_usd"`
	HighestPrice float64    `json:"highest_price_usd"`
	LastPrice    float64    `json:"last_price_usd"`
	ChangePct    float64    `json:"change_pct"`
	StartedAt    time.Time  `json:"started_at,omitempty"`
	Held         string     `json:"held,omitempty"`
	ExitReason   ExitReason `json:"exit_reason,omitempty"`
}
