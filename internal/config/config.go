package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable viper resolves.
const EnvPrefix = "SNIPER"

// Config represents the application configuration
type Config struct {
	// Network settings
	Network   string `mapstructure:"network" yaml:"network"`
	RPCUrl    string `mapstructure:"rpc_url" yaml:"rpc_url"`
	RPCAPIKey string `mapstructure:"rpc_api_key" yaml:"rpc_api_key"`

	// Wallet settings. One of the two must be set.
	PrivateKey string `mapstructure:"private_key" yaml:"private_key"`
	Mnemonic   string `mapstructure:"mnemonic" yaml:"mnemonic"`

	JITO       JitoConfig       `mapstructure:"jito" yaml:"jito"`
	Trading    TradingConfig    `mapstructure:"trading" yaml:"trading"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation"`
	Gateway    GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Feed       FeedConfig       `mapstructure:"feed" yaml:"feed"`
	Dedup      DedupConfig      `mapstructure:"dedup" yaml:"dedup"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	Watcher    WatcherConfig    `mapstructure:"watcher" yaml:"watcher"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// TradingConfig contains entry and exit settings for the sniper
type TradingConfig struct {
	AmountSOL              float64 `mapstructure:"amount_sol" yaml:"amount_sol"`
	SlippageBps            int     `mapstructure:"slippage_bps" yaml:"slippage_bps"`
	PriceCheckIntervalMs   int64   `mapstructure:"price_check_interval_ms" yaml:"price_check_interval_ms"`
	MaxHoldMs              int64   `mapstructure:"max_hold_ms" yaml:"max_hold_ms"` // 0 disables the time exit
	TakeProfitPct          float64 `mapstructure:"take_profit_pct" yaml:"take_profit_pct"`
	StopLossPct            float64 `mapstructure:"stop_loss_pct" yaml:"stop_loss_pct"`
	ExitAlertAfterFailures int     `mapstructure:"exit_alert_after_failures" yaml:"exit_alert_after_failures"`
	ConfirmTimeoutSec      int     `mapstructure:"confirm_timeout_sec" yaml:"confirm_timeout_sec"`
	ConfirmPollMs          int64   `mapstructure:"confirm_poll_ms" yaml:"confirm_poll_ms"`
	CheckBalance           bool    `mapstructure:"check_balance" yaml:"check_balance"`
}

// ValidationConfig holds the token acceptance thresholds
type ValidationConfig struct {
	MaxAgeMinutes       float64 `mapstructure:"max_age_minutes" yaml:"max_age_minutes"`
	MinLiquidityUSD     float64 `mapstructure:"min_liquidity_usd" yaml:"min_liquidity_usd"`
	MinMarketCapUSD     float64 `mapstructure:"min_market_cap" yaml:"min_market_cap"`
	MinMCToFDVRatio     float64 `mapstructure:"min_mc_fdv_ratio" yaml:"min_mc_fdv_ratio"`
	MaxRiskScore        float64 `mapstructure:"max_risk_score" yaml:"max_risk_score"`
	MinVolume5m         float64 `mapstructure:"min_volume_5m" yaml:"min_volume_5m"`
	MinTxns5m           int     `mapstructure:"min_txns_5m" yaml:"min_txns_5m"`
	PairRetryAttempts   int     `mapstructure:"pair_retry_attempts" yaml:"pair_retry_attempts"`
	PairRetryIntervalMs int64   `mapstructure:"pair_retry_interval_ms" yaml:"pair_retry_interval_ms"`
}

// GatewayConfig contains HTTP gateway endpoints and the transport retry policy
type GatewayConfig struct {
	MarketDataURL string `mapstructure:"market_data_url" yaml:"market_data_url"`
	RiskURL       string `mapstructure:"risk_url" yaml:"risk_url"`
	SwapURL       string `mapstructure:"swap_url" yaml:"swap_url"`
	TimeoutMs     int64  `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	RetryAttempts int    `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelayMs  int64  `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
}

// JitoConfig contains JITO-related settings
type JitoConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
}

// ServerConfig configures the webhook listener
type ServerConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Port        int    `mapstructure:"port" yaml:"port"`
	WebhookPath string `mapstructure:"webhook_path" yaml:"webhook_path"`
	AuthToken   string `mapstructure:"auth_token" yaml:"auth_token"`
}

// FeedConfig configures the streaming new-token source
type FeedConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	URL              string `mapstructure:"url" yaml:"url"`
	ReconnectDelayMs int64  `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
}

// DedupConfig selects the in-flight address store
type DedupConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"` // "memory" or "redis"
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	TTLSeconds    int    `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
}

// NotifyConfig holds the Telegram sink credentials
type NotifyConfig struct {
	TelegramBotToken string `mapstructure:"telegram_bot_token" yaml:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id" yaml:"telegram_chat_id"`
	TelegramURL      string `mapstructure:"telegram_url" yaml:"telegram_url"`
	TimeoutMs        int64  `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// WatcherConfig configures the sell-only watcher for a single pre-held token
type WatcherConfig struct {
	Mint             string  `mapstructure:"mint" yaml:"mint"`
	Decimals         int     `mapstructure:"decimals" yaml:"decimals"`
	TargetUSD        float64 `mapstructure:"target_usd" yaml:"target_usd"`
	StopUSD          float64 `mapstructure:"stop_usd" yaml:"stop_usd"`
	MaxHoldMs        int64   `mapstructure:"max_hold_ms" yaml:"max_hold_ms"`
	CheckIntervalMs  int64   `mapstructure:"check_interval_ms" yaml:"check_interval_ms"`
	StatusIntervalMs int64   `mapstructure:"status_interval_ms" yaml:"status_interval_ms"`
	SlippageBps      int     `mapstructure:"slippage_bps" yaml:"slippage_bps"`
	OnlyDirectRoutes bool    `mapstructure:"only_direct_routes" yaml:"only_direct_routes"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	LogToFile   bool   `mapstructure:"log_to_file" yaml:"log_to_file"`
	LogFilePath string `mapstructure:"log_file_path" yaml:"log_file_path"`
	TradeLogDir string `mapstructure:"trade_log_dir" yaml:"trade_log_dir"`
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	SentryLevel string `mapstructure:"sentry_level" yaml:"sentry_level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string, envPath string) (*Config, error) {
	config := &Config{}
	v := viper.New()

	if err := loadEnvFile(envPath); err != nil {
		fmt.Printf("Warning: Failed to load .env file: %v\n", err)
	}

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sniper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.dex-sniper")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file, continue with defaults and env vars
	}

	processEnvSubstitution(v)

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// loadEnvFile loads the first .env file found. Variables already present in
// the process environment win over file values.
func loadEnvFile(envPath string) error {
	var envFiles []string
	if envPath != "" {
		envFiles = append(envFiles, envPath)
	}
	envFiles = append(envFiles, ".env", "configs/.env")

	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
		return nil
	}

	if envPath != "" {
		return fmt.Errorf("specified .env file not found: %s", envPath)
	}
	return nil
}

// bindEnvVariables binds nested keys and the legacy unprefixed names
func bindEnvVariables(v *viper.Viper) {
	env := func(key string) string {
		return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	}
	bind := func(key string, aliases ...string) {
		_ = v.BindEnv(append([]string{key, env(key)}, aliases...)...)
	}

	bind("network")
	bind("rpc_url", "RPC_URL")
	bind("rpc_api_key")
	bind("private_key", "WALLET_PRIVATE_KEY")
	bind("mnemonic", "WALLET_MNEMONIC")

	bind("notify.telegram_bot_token", "TELEGRAM_BOT_TOKEN")
	bind("notify.telegram_chat_id", "TELEGRAM_CHAT_ID")
	bind("server.port", "PORT")
	bind("server.auth_token", "WEBHOOK_AUTH_TOKEN")
	bind("dedup.redis_addr", "REDIS_ADDR")
	bind("dedup.redis_password", "REDIS_PASSWORD")
	bind("logging.sentry_dsn", "SENTRY_DSN")

	for _, key := range v.AllKeys() {
		bind(key)
	}
}

// processEnvSubstitution processes ${VAR:-default} substitution in string values
func processEnvSubstitution(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		raw, ok := v.Get(key).(string)
		if !ok || !strings.Contains(raw, "${") {
			continue
		}
		v.Set(key, expandEnvVars(raw))
	}
}

// expandEnvVars expands environment variables in the format ${VAR:-default}
func expandEnvVars(value string) string {
	result := value
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		varName, defaultValue, _ := strings.Cut(expr, ":-")

		envValue := os.Getenv(varName)
		if envValue == "" {
			envValue = defaultValue
		}
		result = result[:start] + envValue + result[end+1:]
	}
	return result
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("network", "mainnet")
	v.SetDefault("rpc_url", "")
	v.SetDefault("rpc_api_key", "")
	v.SetDefault("private_key", "")
	v.SetDefault("mnemonic", "")

	v.SetDefault("trading.amount_sol", DefaultAmountSOL)
	v.SetDefault("trading.slippage_bps", DefaultSlippageBps)
	v.SetDefault("trading.price_check_interval_ms", DefaultPriceCheckIntervalMs)
	v.SetDefault("trading.max_hold_ms", DefaultMaxHoldMs)
	v.SetDefault("trading.take_profit_pct", DefaultTakeProfitPct)
	v.SetDefault("trading.stop_loss_pct", DefaultStopLossPct)
	v.SetDefault("trading.exit_alert_after_failures", 3)
	v.SetDefault("trading.confirm_timeout_sec", DefaultConfirmTimeoutSec)
	v.SetDefault("trading.confirm_poll_ms", 2_000)
	v.SetDefault("trading.check_balance", true)

	v.SetDefault("validation.max_age_minutes", DefaultMaxAgeMinutes)
	v.SetDefault("validation.min_liquidity_usd", DefaultMinLiquidityUSD)
	v.SetDefault("validation.min_market_cap", DefaultMinMarketCapUSD)
	v.SetDefault("validation.min_mc_fdv_ratio", DefaultMinMCToFDVRatio)
	v.SetDefault("validation.max_risk_score", DefaultMaxRiskScore)
	v.SetDefault("validation.min_volume_5m", DefaultMinVolume5m)
	v.SetDefault("validation.min_txns_5m", DefaultMinTxns5m)
	v.SetDefault("validation.pair_retry_attempts", DefaultPairRetryAttempts)
	v.SetDefault("validation.pair_retry_interval_ms", DefaultPairRetryIntervalMs)

	v.SetDefault("gateway.market_data_url", DexScreenerAPI)
	v.SetDefault("gateway.risk_url", RugCheckAPI)
	v.SetDefault("gateway.swap_url", JupiterAPI)
	v.SetDefault("gateway.timeout_ms", GatewayTimeout)
	v.SetDefault("gateway.retry_attempts", MaxRetries)
	v.SetDefault("gateway.retry_delay_ms", RetryDelayMs)

	v.SetDefault("jito.enabled", false)
	v.SetDefault("jito.endpoint", "")
	v.SetDefault("jito.api_key", "")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.webhook_path", "/webhook")
	v.SetDefault("server.auth_token", "")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.url", PumpPortalWS)
	v.SetDefault("feed.reconnect_delay_ms", 5_000)

	v.SetDefault("dedup.backend", "memory")
	v.SetDefault("dedup.redis_addr", "localhost:6379")
	v.SetDefault("dedup.redis_password", "")
	v.SetDefault("dedup.redis_db", 0)
	v.SetDefault("dedup.ttl_seconds", 3600)

	v.SetDefault("notify.telegram_bot_token", "")
	v.SetDefault("notify.telegram_chat_id", "")
	v.SetDefault("notify.telegram_url", TelegramAPI)
	v.SetDefault("notify.timeout_ms", 10_000)

	v.SetDefault("watcher.mint", "")
	v.SetDefault("watcher.decimals", 6)
	v.SetDefault("watcher.target_usd", 0.0)
	v.SetDefault("watcher.stop_usd", 0.0)
	v.SetDefault("watcher.max_hold_ms", 0)
	v.SetDefault("watcher.check_interval_ms", 20_000)
	v.SetDefault("watcher.status_interval_ms", 120_000)
	v.SetDefault("watcher.slippage_bps", 200)
	v.SetDefault("watcher.only_direct_routes", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "custom")
	v.SetDefault("logging.log_to_file", false)
	v.SetDefault("logging.log_file_path", "logs/sniper.log")
	v.SetDefault("logging.trade_log_dir", "trades")
	v.SetDefault("logging.sentry_dsn", "")
	v.SetDefault("logging.sentry_level", "error")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.RPCUrl == "" {
		config.RPCUrl = GetRPCEndpoint(config.Network)
	}
	if config.JITO.Enabled && config.JITO.Endpoint == "" {
		config.JITO.Endpoint = GetJitoEndpoint(config.Network)
	}

	if config.PrivateKey == "" && config.Mnemonic == "" {
		return fmt.Errorf("private_key or mnemonic is required")
	}

	if config.Trading.AmountSOL < MinTradeAmountSOL {
		return fmt.Errorf("trading.amount_sol must be at least %f", MinTradeAmountSOL)
	}
	if config.Trading.AmountSOL > MaxTradeAmountSOL {
		return fmt.Errorf("trading.amount_sol must not exceed %f", MaxTradeAmountSOL)
	}
	if config.Trading.SlippageBps < 1 || config.Trading.SlippageBps > 5000 {
		return fmt.Errorf("trading.slippage_bps must be between 1 and 5000 (0.01%% to 50%%)")
	}
	if config.Trading.TakeProfitPct <= 0 {
		return fmt.Errorf("trading.take_profit_pct must be positive")
	}
	if config.Trading.StopLossPct >= 0 {
		return fmt.Errorf("trading.stop_loss_pct must be negative")
	}
	if config.Trading.PriceCheckIntervalMs <= 0 {
		return fmt.Errorf("trading.price_check_interval_ms must be positive")
	}
	if config.Trading.MaxHoldMs < 0 {
		return fmt.Errorf("trading.max_hold_ms must be non-negative")
	}

	if config.Validation.MinMCToFDVRatio <= 0 || config.Validation.MinMCToFDVRatio > 1 {
		return fmt.Errorf("validation.min_mc_fdv_ratio must be in (0, 1]")
	}
	if config.Validation.PairRetryAttempts < 1 {
		return fmt.Errorf("validation.pair_retry_attempts must be at least 1")
	}
	if config.Gateway.RetryAttempts < 1 {
		return fmt.Errorf("gateway.retry_attempts must be at least 1")
	}

	switch config.Dedup.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("dedup.backend must be 'memory' or 'redis'")
	}

	if config.Logging.LogToFile {
		if err := os.MkdirAll(dirOf(config.Logging.LogFilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// ValidateWatcher checks the settings only the watcher binary needs
func (c *Config) ValidateWatcher() error {
	w := c.Watcher
	if w.Mint == "" {
		return fmt.Errorf("watcher.mint is required")
	}
	if w.TargetUSD <= 0 {
		return fmt.Errorf("watcher.target_usd must be positive")
	}
	// a zero stop disables the stop exit
	if w.StopUSD < 0 {
		return fmt.Errorf("watcher.stop_usd must not be negative")
	}
	if w.StopUSD > 0 && w.StopUSD >= w.TargetUSD {
		return fmt.Errorf("watcher.stop_usd (%g) must be below watcher.target_usd (%g)", w.StopUSD, w.TargetUSD)
	}
	if w.CheckIntervalMs <= 0 {
		return fmt.Errorf("watcher.check_interval_ms must be positive")
	}
	if w.Decimals < 0 || w.Decimals > 18 {
		return fmt.Errorf("watcher.decimals must be between 0 and 18")
	}
	return nil
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i > 0 {
		return path[:i]
	}
	return "."
}

func ms(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

// PriceCheckInterval is the cadence of the position monitor
func (t TradingConfig) PriceCheckInterval() time.Duration { return ms(t.PriceCheckIntervalMs) }

// MaxHold is the time exit threshold, zero when disabled
func (t TradingConfig) MaxHold() time.Duration { return ms(t.MaxHoldMs) }

// ConfirmTimeout bounds how long a submitted swap is polled for confirmation
func (t TradingConfig) ConfirmTimeout() time.Duration {
	return time.Duration(t.ConfirmTimeoutSec) * time.Second
}

// ConfirmPoll is the signature status polling interval
func (t TradingConfig) ConfirmPoll() time.Duration { return ms(t.ConfirmPollMs) }

// AmountLamports is the buy size in lamports
func (t TradingConfig) AmountLamports() uint64 { return ConvertSOLToLamports(t.AmountSOL) }

func (v ValidationConfig) PairRetryInterval() time.Duration { return ms(v.PairRetryIntervalMs) }

func (v ValidationConfig) MaxAge() time.Duration {
	return time.Duration(v.MaxAgeMinutes * float64(time.Minute))
}

func (g GatewayConfig) Timeout() time.Duration    { return ms(g.TimeoutMs) }
func (g GatewayConfig) RetryDelay() time.Duration { return ms(g.RetryDelayMs) }

func (f FeedConfig) ReconnectDelay() time.Duration { return ms(f.ReconnectDelayMs) }

func (d DedupConfig) TTL() time.Duration { return time.Duration(d.TTLSeconds) * time.Second }

func (n NotifyConfig) Timeout() time.Duration { return ms(n.TimeoutMs) }

func (w WatcherConfig) CheckInterval() time.Duration  { return ms(w.CheckIntervalMs) }
func (w WatcherConfig) StatusInterval() time.Duration { return ms(w.StatusIntervalMs) }
func (w WatcherConfig) MaxHold() time.Duration        { return ms(w.MaxHoldMs) }
