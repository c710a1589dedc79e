package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// tokenPairsResponse is the body of GET /latest/dex/tokens/{address}
type tokenPairsResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair is one DEX pair as reported by the market data source
type Pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  decimal.Decimal `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap     float64 `json:"marketCap"`
	FDV           float64 `json:"fdv"`
	PairCreatedAt int64   `json:"pairCreatedAt"` // unix ms
	Txns          struct {
		M5 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"m5"`
	} `json:"txns"`
	Volume struct {
		M5 float64 `json:"m5"`
	} `json:"volume"`
}

// Snapshot is the flattened view of the primary pair the rest of the bot reads
type Snapshot struct {
	TokenAddress  string
	PairAddress   string
	DexID         string
	Symbol        string
	PriceUSD      float64
	LiquidityUSD  float64
	MarketCapUSD  float64
	FDVUSD        float64
	PairCreatedAt time.Time // zero when the source omits it
	Txns5m        int       // buys + sells over the last five minutes
	Volume5m      float64
}

// PairAge is how long ago the pair was created, relative to now
func (s *Snapshot) PairAge(now time.Time) time.Duration {
	if s.PairCreatedAt.IsZero() {
		return 0
	}
	return now.Sub(s.PairCreatedAt)
}

func (p Pair) snapshot(address string) *Snapshot {
	s := &Snapshot{
		TokenAddress: address,
		PairAddress:  p.PairAddress,
		DexID:        p.DexID,
		Symbol:       p.BaseToken.Symbol,
		PriceUSD:     p.PriceUSD.InexactFloat64(),
		LiquidityUSD: p.Liquidity.USD,
		MarketCapUSD: p.MarketCap,
		FDVUSD:       p.FDV,
		Txns5m:       p.Txns.M5.Buys + p.Txns.M5.Sells,
		Volume5m:     p.Volume.M5,
	}
	if p.PairCreatedAt > 0 {
		s.PairCreatedAt = time.UnixMilli(p.PairCreatedAt)
	}
	return s
}
