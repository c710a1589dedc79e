package config

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Solana network constants
const (
	SolanaMainnetRPC = "https://api.mainnet-beta.solana.com"
	SolanaDevnetRPC  = "https://api.devnet.solana.com"

	// Jito block engine transaction endpoints
	JitoMainnetRPC = "https://mainnet.block-engine.jito.wtf/api/v1/transactions"
	JitoDevnetRPC  = "https://devnet.block-engine.jito.wtf/api/v1/transactions"

	LamportsPerSol = 1_000_000_000
)

// Third-party HTTP gateways
const (
	DexScreenerAPI = "https://api.dexscreener.com"
	RugCheckAPI    = "https://api.rugcheck.xyz"
	JupiterAPI     = "https://quote-api.jup.ag/v6"
	TelegramAPI    = "https://api.telegram.org"
	PumpPortalWS   = "wss://pumpportal.fun/api/data"
)

// NativeSOLMint is the wrapped SOL mint used as the quote side of every swap.
var NativeSOLMint = solana.SolMint

// Trading defaults
const (
	DefaultSlippageBps   = 100 // 1%
	DefaultAmountSOL     = 0.1
	DefaultTakeProfitPct = 20.0
	DefaultStopLossPct   = -10.0

	MinTradeAmountSOL = 0.001
	MaxTradeAmountSOL = 100.0

	DefaultPriceCheckIntervalMs = 5_000
	DefaultMaxHoldMs            = 300_000
	DefaultConfirmTimeoutSec    = 60
)

// Validation defaults
const (
	DefaultMaxAgeMinutes       = 2
	DefaultMinLiquidityUSD     = 5_000_000
	DefaultMinMarketCapUSD     = 100_000
	DefaultMinMCToFDVRatio     = 0.9
	DefaultMaxRiskScore        = 1
	DefaultMinVolume5m         = 500
	DefaultMinTxns5m           = 10
	DefaultPairRetryAttempts   = 5
	DefaultPairRetryIntervalMs = 60_000
)

// Gateway retry defaults
const (
	MaxRetries     = 3
	RetryDelayMs   = 2_000
	GatewayTimeout = 10_000
)

// GetRPCEndpoint returns the appropriate RPC endpoint for the network
func GetRPCEndpoint(network string) string {
	switch network {
	case "devnet":
		return SolanaDevnetRPC
	default:
		return SolanaMainnetRPC
	}
}

// GetJitoEndpoint returns the block engine transaction endpoint for the network
func GetJitoEndpoint(network string) string {
	switch network {
	case "devnet":
		return JitoDevnetRPC
	default:
		return JitoMainnetRPC
	}
}

// ConvertSOLToLamports converts SOL amount to lamports
func ConvertSOLToLamports(sol float64) uint64 {
	return uint64(decimal.NewFromFloat(sol).Shift(9).Round(0).IntPart())
}
