package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SNIPER_PRIVATE_KEY", "key")
	path := writeFile(t, "sniper.yaml", "network: mainnet\n")

	cfg, err := LoadConfig(path, "")
	require.NoError(t, err)

	assert.Equal(t, SolanaMainnetRPC, cfg.RPCUrl)
	assert.Equal(t, 100, cfg.Trading.SlippageBps)
	assert.Equal(t, 5*time.Second, cfg.Trading.PriceCheckInterval())
	assert.Equal(t, 5*time.Minute, cfg.Trading.MaxHold())
	assert.Equal(t, 20.0, cfg.Trading.TakeProfitPct)
	assert.Equal(t, -10.0, cfg.Trading.StopLossPct)
	assert.Equal(t, 2*time.Minute, cfg.Validation.MaxAge())
	assert.Equal(t, 5_000_000.0, cfg.Validation.MinLiquidityUSD)
	assert.Equal(t, 5, cfg.Validation.PairRetryAttempts)
	assert.Equal(t, time.Minute, cfg.Validation.PairRetryInterval())
	assert.Equal(t, 3, cfg.Gateway.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Gateway.RetryDelay())
	assert.Equal(t, "memory", cfg.Dedup.Backend)
	assert.Equal(t, uint64(100_000_000), cfg.Trading.AmountLamports())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("WALLET_PRIVATE_KEY", "legacy")
	t.Setenv("SNIPER_TRADING_SLIPPAGE_BPS", "250")
	t.Setenv("SNIPER_VALIDATION_MIN_TXNS_5M", "42")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")
	t.Setenv("PORT", "8081")
	path := writeFile(t, "sniper.yaml", "trading:\n  amount_sol: 0.5\n")

	cfg, err := LoadConfig(path, "")
	require.NoError(t, err)

	assert.Equal(t, "legacy", cfg.PrivateKey)
	assert.Equal(t, 250, cfg.Trading.SlippageBps)
	assert.Equal(t, 0.5, cfg.Trading.AmountSOL)
	assert.Equal(t, 42, cfg.Validation.MinTxns5m)
	assert.Equal(t, "12345", cfg.Notify.TelegramChatID)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestLoadConfigEnvFile(t *testing.T) {
	envPath := writeFile(t, ".env", "SNIPER_MNEMONIC=\"abandon ability\"\n")
	path := writeFile(t, "sniper.yaml", "network: devnet\n")
	t.Cleanup(func() { os.Unsetenv("SNIPER_MNEMONIC") })

	cfg, err := LoadConfig(path, envPath)
	require.NoError(t, err)
	assert.Equal(t, "abandon ability", cfg.Mnemonic)
	assert.Equal(t, SolanaDevnetRPC, cfg.RPCUrl)
}

func TestLoadConfigSubstitution(t *testing.T) {
	t.Setenv("SNIPER_PRIVATE_KEY", "key")
	t.Setenv("MY_RPC", "https://rpc.example")
	path := writeFile(t, "sniper.yaml", "rpc_url: ${MY_RPC}\njito:\n  enabled: true\n  endpoint: ${UNSET_JITO:-https://jito.example}\n")

	cfg, err := LoadConfig(path, "")
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example", cfg.RPCUrl)
	assert.Equal(t, "https://jito.example", cfg.JITO.Endpoint)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "missing wallet", yaml: "network: mainnet\n"},
		{name: "positive stop loss", yaml: "trading:\n  stop_loss_pct: 5\n", env: map[string]string{"SNIPER_PRIVATE_KEY": "k"}},
		{name: "slippage too high", yaml: "trading:\n  slippage_bps: 9000\n", env: map[string]string{"SNIPER_PRIVATE_KEY": "k"}},
		{name: "unknown dedup backend", yaml: "dedup:\n  backend: etcd\n", env: map[string]string{"SNIPER_PRIVATE_KEY": "k"}},
		{name: "ratio above one", yaml: "validation:\n  min_mc_fdv_ratio: 1.5\n", env: map[string]string{"SNIPER_PRIVATE_KEY": "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeFile(t, "sniper.yaml", tt.yaml), "")
			assert.Error(t, err)
		})
	}
}

func TestValidateWatcher(t *testing.T) {
	cfg := &Config{Watcher: WatcherConfig{Mint: "mint", TargetUSD: 0.002, StopUSD: 0.001, CheckIntervalMs: 1000, Decimals: 6}}
	assert.NoError(t, cfg.ValidateWatcher())

	cfg.Watcher.StopUSD = 0.003
	assert.Error(t, cfg.ValidateWatcher())

	cfg.Watcher = WatcherConfig{TargetUSD: 1, StopUSD: 0.5, CheckIntervalMs: 1}
	assert.Error(t, cfg.ValidateWatcher())
}

func TestValidateWatcherTargetOnly(t *testing.T) {
	cfg := &Config{Watcher: WatcherConfig{Mint: "mint", TargetUSD: 0.002, CheckIntervalMs: 1000, Decimals: 6}}
	assert.NoError(t, cfg.ValidateWatcher())

	cfg.Watcher.StopUSD = -0.001
	assert.Error(t, cfg.ValidateWatcher())

	cfg.Watcher.StopUSD = 0
	cfg.Watcher.TargetUSD = 0
	assert.Error(t, cfg.ValidateWatcher())
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SET_VAR", "value")
	assert.Equal(t, "value", expandEnvVars("${SET_VAR}"))
	assert.Equal(t, "fallback", expandEnvVars("${NOT_SET_VAR:-fallback}"))
	assert.Equal(t, "a-value-b", expandEnvVars("a-${SET_VAR}-b"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
	assert.Equal(t, "${broken", expandEnvVars("${broken"))
}

func TestConvertSOLToLamports(t *testing.T) {
	assert.Equal(t, uint64(300_000_000), ConvertSOLToLamports(0.3))
	assert.Equal(t, uint64(1_000), ConvertSOLToLamports(0.000001))
	assert.Equal(t, uint64(2_500_000_000), ConvertSOLToLamports(2.5))
}
