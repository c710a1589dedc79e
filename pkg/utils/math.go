package utils

import (
	"github.com/shopspring/decimal"
)

const lamportsPerSol = 1_000_000_000

// ConvertLamportsToSOL converts lamports to SOL
func ConvertLamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / lamportsPerSol
}

// CalculatePercentageChange calculates percentage change between two values
func CalculatePercentageChange(oldValue, newValue float64) float64 {
	if oldValue == 0 {
		return 0
	}
	return ((newValue - oldValue) / oldValue) * 100
}

// DrawdownPct is how far value sits below peak, as a non-negative percentage
func DrawdownPct(peak, value float64) float64 {
	if peak <= 0 || value >= peak {
		return 0
	}
	return (peak - value) / peak * 100
}

// MaxDrawdown calculates maximum drawdown from peak
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	peak := values[0]
	maxDrawdown := 0.0
	for _, value := range values {
		if value > peak {
			peak = value
		}
		if dd := DrawdownPct(peak, value); dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// ToUIAmount converts raw token base units to a human amount
func ToUIAmount(raw uint64, decimals int) decimal.Decimal {
	return decimal.NewFromUint64(raw).Shift(int32(-decimals))
}
