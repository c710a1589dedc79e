package position

import "time"

// ExitPolicy decides whether a holding period should end at price after
// elapsed time in the position.
type ExitPolicy interface {
	Evaluate(pos *Position, price float64, elapsed time.Duration) (ExitReason, bool)
}

// PercentExit exits on a relative move from entry or after MaxHold.
// Checks run in order: hold time, take-profit, stop-loss.
type PercentExit struct {
	TakeProfitPct float64 // e.g. 20 for +20%
	StopLossPct   float64 // e.g. -10 for -10%
	MaxHold       time.Duration
}

func (p PercentExit) Evaluate(pos *Position, price float64, elapsed time.Duration) (ExitReason, bool) {
	if p.MaxHold > 0 && elapsed >= p.MaxHold {
		return ExitMaxHold, true
	}
	change := pos.ChangePct(price)
	if change >= p.TakeProfitPct {
		return ExitTakeProfit, true
	}
	if change <= p.StopLossPct {
		return ExitStopLoss, true
	}
	return "", false
}

// AbsoluteExit exits when price crosses fixed USD levels. A zero MaxHold
// disables the time exit.
type AbsoluteExit struct {
	TargetUSD float64
	StopUSD   float64
	MaxHold   time.Duration
}

func (a AbsoluteExit) Evaluate(_ *Position, price float64, elapsed time.Duration) (ExitReason, bool) {
	if a.MaxHold > 0 && elapsed >= a.MaxHold {
		return ExitMaxHold, true
	}
	if a.TargetUSD > 0 && price >= a.TargetUSD {
		return ExitTargetPrice, true
	}
	if a.StopUSD > 0 && price <= a.StopUSD {
		return ExitStopPrice, true
	}
	return "", false
}
