package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"dex-sniper-bot-go/pkg/utils"
)

// TradeLog represents a trade journal entry
type TradeLog struct {
	Timestamp    time.Time `json:"timestamp"`
	TradeType    string    `json:"trade_type"` // "buy" or "sell"
	Mint         string    `json:"mint"`
	AmountIn     uint64    `json:"amount_in"`  // base units of the input mint
	AmountOut    uint64    `json:"amount_out"` // quoted base units of the output mint
	PriceUSD     float64   `json:"price_usd,omitempty"`
	Signature    string    `json:"signature,omitempty"`
	Status       string    `json:"status"` // "success", "failed", "ambiguous"
	ErrorMessage string    `json:"error_message,omitempty"`
	SlippageBps  int       `json:"slippage_bps"`
	Reason       string    `json:"reason,omitempty"` // exit reason for sells
	ChangePct    float64   `json:"change_pct,omitempty"`
}

// PositionLog is the journal view of one position lifecycle
type PositionLog struct {
	Mint            string    `json:"mint"`
	State           string    `json:"state"`
	OpenedAt        time.Time `json:"opened_at"`
	ClosedAt        time.Time `json:"closed_at,omitempty"`
	EntryPriceUSD   float64   `json:"entry_price_usd"`
	ExitPriceUSD    float64   `json:"exit_price_usd,omitempty"`
	HighestPriceUSD float64   `json:"highest_price_usd"`
	RealizedPct     float64   `json:"realized_pct"`
	PeakPct         float64   `json:"peak_pct"`
	DrawdownPct     float64   `json:"drawdown_pct"`
	ExitReason      string    `json:"exit_reason,omitempty"`
}

// TradeLogger appends trades and closed positions to daily jsonl files
type TradeLogger struct {
	baseDir   string
	logger    *Logger
	mu        sync.Mutex
	positions map[string]*PositionLog // mint -> latest position
}

// NewTradeLogger creates a new trade logger
func NewTradeLogger(baseDir string, logger *Logger) (*TradeLogger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trade log directory: %w", err)
	}

	return &TradeLogger{
		baseDir:   baseDir,
		logger:    logger,
		positions: make(map[string]*PositionLog),
	}, nil
}

// LogTrade appends a trade to trades_YYYY-MM-DD.jsonl
func (tl *TradeLogger) LogTrade(trade TradeLog) error {
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now()
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if err := tl.appendJSON(dailyName("trades", trade.Timestamp), trade); err != nil {
		return err
	}

	tl.logger.WithFields(map[string]interface{}{
		"event":     "trade_logged",
		"type":      trade.TradeType,
		"mint":      trade.Mint,
		"status":    trade.Status,
		"signature": trade.Signature,
	}).Debug("📝 Trade journaled")
	return nil
}

// LogPosition records the latest view of a position and appends it to
// positions_YYYY-MM-DD.jsonl once it is terminal.
func (tl *TradeLogger) LogPosition(position PositionLog) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	p := position
	tl.positions[position.Mint] = &p
	if position.ClosedAt.IsZero() {
		return nil
	}
	return tl.appendJSON(dailyName("positions", position.ClosedAt), position)
}

// GetPosition returns the last recorded position for a token
func (tl *TradeLogger) GetPosition(mint string) (PositionLog, bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	p, ok := tl.positions[mint]
	if !ok {
		return PositionLog{}, false
	}
	return *p, true
}

// LogDailySummary writes summary_YYYY-MM-DD.json over positions closed so far
func (tl *TradeLogger) LogDailySummary() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	now := time.Now()
	summary := struct {
		Date           string                  `json:"date"`
		Timestamp      time.Time               `json:"timestamp"`
		Closed         int                     `json:"closed"`
		Wins           int                     `json:"wins"`
		Losses         int                     `json:"losses"`
		AvgRealizedPct float64                 `json:"avg_realized_pct"`
		WorstDrawdown  float64                 `json:"worst_drawdown_pct"`
		EquityDrawdown float64                 `json:"equity_drawdown_pct"`
		Positions      map[string]*PositionLog `json:"positions"`
	}{
		Date:      now.Format("2006-01-02"),
		Timestamp: now,
		Positions: tl.positions,
	}

	total := 0.0
	var closed []*PositionLog
	for _, p := range tl.positions {
		if p.ClosedAt.IsZero() {
			continue
		}
		closed = append(closed, p)
		summary.Closed++
		total += p.RealizedPct
		if p.RealizedPct > 0 {
			summary.Wins++
		} else {
			summary.Losses++
		}
		if p.DrawdownPct > summary.WorstDrawdown {
			summary.WorstDrawdown = p.DrawdownPct
		}
	}
	if summary.Closed > 0 {
		summary.AvgRealizedPct = total / float64(summary.Closed)
	}
	summary.EquityDrawdown = utils.MaxDrawdown(equityCurve(closed))

	path := filepath.Join(tl.baseDir, fmt.Sprintf("summary_%s.json", summary.Date))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	tl.logger.WithFields(map[string]interface{}{
		"event":  "daily_summary",
		"closed": summary.Closed,
		"wins":   summary.Wins,
		"avg":    summary.AvgRealizedPct,
	}).Info("Daily summary logged")
	return nil
}

// equityCurve compounds realized returns in close order, starting from 100.
func equityCurve(closed []*PositionLog) []float64 {
	sort.Slice(closed, func(i, j int) bool { return closed[i].ClosedAt.Before(closed[j].ClosedAt) })

	curve := make([]float64, 0, len(closed)+1)
	equity := 100.0
	curve = append(curve, equity)
	for _, p := range closed {
		equity *= 1 + p.RealizedPct/100
		curve = append(curve, equity)
	}
	return curve
}

func dailyName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.jsonl", prefix, t.Format("2006-01-02"))
}

func (tl *TradeLogger) appendJSON(name string, v interface{}) error {
	file, err := os.OpenFile(filepath.Join(tl.baseDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer file.Close()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
