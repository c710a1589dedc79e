package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dex-sniper-bot-go/internal/client"
	"dex-sniper-bot-go/internal/config"
	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/internal/market"
	"dex-sniper-bot-go/internal/notify"
	"dex-sniper-bot-go/internal/position"
	"dex-sniper-bot-go/internal/retry"
	"dex-sniper-bot-go/internal/swap"
	"dex-sniper-bot-go/internal/wallet"
	"dex-sniper-bot-go/pkg/utils"

	"github.com/benbjohnson/clock"
	"github.com/getsentry/sentry-go"
)

// CLI flags
var (
	configFile = flag.String("config", "", "Path to config file")
	envFile    = flag.String("env", "", "Path to .env file")
	mintFlag   = flag.String("mint", "", "Token mint to watch")
	targetUSD  = flag.Float64("target", 0, "Sell when the price reaches this USD value")
	stopUSD    = flag.Float64("stop", 0, "Sell when the price falls to this USD value")
	entryUSD   = flag.Float64("entry", 0, "Entry price in USD (default: first observed price)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *mintFlag != "" {
		cfg.Watcher.Mint = *mintFlag
	}
	if *targetUSD > 0 {
		cfg.Watcher.TargetUSD = *targetUSD
	}
	if *stopUSD > 0 {
		cfg.Watcher.StopUSD = *stopUSD
	}
	if err := cfg.ValidateWatcher(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid watcher config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		LogToFile:   cfg.Logging.LogToFile,
		LogFilePath: cfg.Logging.LogFilePath,
		TradeLogDir: cfg.Logging.TradeLogDir,
		SentryDSN:   cfg.Logging.SentryDSN,
		SentryLevel: cfg.Logging.SentryLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer sentry.Flush(2 * time.Second)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Watcher stopped with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.LogShutdown(sig.String())
		cancel()
	}()

	wc := cfg.Watcher
	tradeLogger, err := logger.NewTradeLogger(cfg.Logging.TradeLogDir, log)
	if err != nil {
		return fmt.Errorf("failed to create trade logger: %w", err)
	}

	rpcClient := client.NewClient(client.ClientConfig{
		RPCEndpoint: cfg.RPCUrl,
		APIKey:      cfg.RPCAPIKey,
		Timeout:     cfg.Gateway.Timeout(),
	}, log.Logger)

	w, err := wallet.NewWallet(wallet.WalletConfig{
		PrivateKey: cfg.PrivateKey,
		Mnemonic:   cfg.Mnemonic,
		Network:    cfg.Network,
	}, rpcClient, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	notifier := notify.New(notify.TelegramConfig{
		BaseURL:  cfg.Notify.TelegramURL,
		BotToken: cfg.Notify.TelegramBotToken,
		ChatID:   cfg.Notify.TelegramChatID,
		Timeout:  cfg.Notify.Timeout(),
	}, log)
	defer func() {
		if tg, ok := notifier.(*notify.Telegram); ok {
			tg.Wait()
		}
	}()

	gatewayRetry := retry.Policy{Attempts: cfg.Gateway.RetryAttempts, Delay: cfg.Gateway.RetryDelay()}
	marketClient := market.NewClient(market.ClientConfig{
		BaseURL: cfg.Gateway.MarketDataURL,
		Timeout: cfg.Gateway.Timeout(),
		Retry:   gatewayRetry,
	}, log)
	jupiter := swap.NewClient(swap.ClientConfig{
		BaseURL: cfg.Gateway.SwapURL,
		Timeout: cfg.Gateway.Timeout(),
		Retry:   gatewayRetry,
	}, log)
	executor := swap.NewExecutor(jupiter, w, rpcClient, rpcClient, swap.ExecutorConfig{
		ConfirmTimeout: cfg.Trading.ConfirmTimeout(),
		PollInterval:   cfg.Trading.ConfirmPoll(),
	}, log)
	trader := swap.NewTrader(jupiter, executor, swap.TraderConfig{
		NativeMint:       config.NativeSOLMint.String(),
		SlippageBps:      wc.SlippageBps,
		OnlyDirectRoutes: wc.OnlyDirectRoutes,
	}, log)

	log.LogStartup("watcher", cfg.Network, cfg.RPCUrl, w.Address())

	held, err := w.TokenBalance(ctx, wc.Mint)
	if err != nil {
		return fmt.Errorf("failed to read token balance: %w", err)
	}
	if held == 0 {
		return fmt.Errorf("wallet holds no %s", wc.Mint)
	}
	ui := utils.ToUIAmount(held, wc.Decimals)

	log.WithFields(map[string]interface{}{
		"mint":       wc.Mint,
		"balance":    ui.String(),
		"target_usd": wc.TargetUSD,
		"stop_usd":   wc.StopUSD,
		"interval":   wc.CheckInterval().String(),
	}).Info("👀 Watching position")

	notifier.Notify(fmt.Sprintf("👀 *Watcher started* `%s`\nBalance: %s\nTarget: $%g | Stop: $%g",
		utils.ShortAddress(wc.Mint), ui.String(), wc.TargetUSD, wc.StopUSD))

	clk := clock.New()
	lc := position.NewHolding(wc.Mint, *entryUSD, clk.Now(), position.Config{
		Policy: position.AbsoluteExit{
			TargetUSD: wc.TargetUSD,
			StopUSD:   wc.StopUSD,
			MaxHold:   wc.MaxHold(),
		},
		PollInterval:   wc.CheckInterval(),
		StatusInterval: wc.StatusInterval(),
		SlippageBps:    wc.SlippageBps,
		ExitAlertAfter: cfg.Trading.ExitAlertAfterFailures,
	}, position.Deps{
		Prices:   marketClient,
		Trader:   trader,
		Holdings: w,
		Notifier: notifier,
		Journal:  tradeLogger,
		Clock:    clk,
		Logger:   log,
	})

	state, err := lc.Run(ctx)
	if err != nil && ctx.Err() != nil {
		notifier.Notify(fmt.Sprintf("🛑 *Watcher stopped* `%s` still %s", utils.ShortAddress(wc.Mint), state))
		return nil
	}
	if err != nil {
		notifier.Notify(fmt.Sprintf("🚨 *Watcher error* `%s`\n%v", utils.ShortAddress(wc.Mint), err))
		return err
	}

	log.WithFields(map[string]interface{}{
		"mint":   wc.Mint,
		"state":  state,
		"reason": lc.Reason(),
	}).Info("🏁 Watcher finished")

	if err := tradeLogger.LogDailySummary(); err != nil {
		log.WithError(err).Warn("⚠️ Failed to write daily summary")
	}
	return nil
}
