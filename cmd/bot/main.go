package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dex-sniper-bot-go/internal/client"
	"dex-sniper-bot-go/internal/config"
	"dex-sniper-bot-go/internal/inflight"
	"dex-sniper-bot-go/internal/ingest"
	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/internal/market"
	"dex-sniper-bot-go/internal/notify"
	"dex-sniper-bot-go/internal/position"
	"dex-sniper-bot-go/internal/retry"
	"dex-sniper-bot-go/internal/risk"
	"dex-sniper-bot-go/internal/swap"
	"dex-sniper-bot-go/internal/validator"
	"dex-sniper-bot-go/internal/wallet"
	"dex-sniper-bot-go/pkg/utils"

	"github.com/benbjohnson/clock"
	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"
)

const Version = "1.0.0"

// CLI flags
var (
	configFile = flag.String("config", "", "Path to config file")
	envFile    = flag.String("env", "", "Path to .env file")
	network    = flag.String("network", "", "Network to use (mainnet/devnet)")
	logLevel   = flag.String("log-level", "", "Log level (debug/info/warn/error)")
	enableJito = flag.Bool("jito", false, "Submit swaps through the Jito block engine")
	port       = flag.Int("port", 0, "Webhook server port")
	noServer   = flag.Bool("no-server", false, "Disable the webhook server")
	enableFeed = flag.Bool("feed", false, "Subscribe to the websocket new-token feed")
	amountSOL  = flag.Float64("amount", 0, "SOL to spend per buy")
)

type App struct {
	config      *config.Config
	logger      *logger.Logger
	tradeLogger *logger.TradeLogger
	rpcClient   *client.Client
	wallet      *wallet.Wallet
	store       inflight.Store
	engine      *position.Engine
	server      *ingest.Server
	feed        *ingest.FeedSource
	notifier    notify.Notifier
	ctx         context.Context
	cancel      context.CancelFunc
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyCliOverrides(cfg)

	log := initializeLogger(cfg)
	defer sentry.Flush(2 * time.Second)

	app, err := NewApp(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create application")
	}

	if err := app.Start(); err != nil {
		log.WithError(err).Fatal("Application stopped with error")
	}
}

func applyCliOverrides(cfg *config.Config) {
	if *network != "" {
		cfg.Network = *network
		cfg.RPCUrl = config.GetRPCEndpoint(*network)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *enableJito {
		cfg.JITO.Enabled = true
		if cfg.JITO.Endpoint == "" {
			cfg.JITO.Endpoint = config.GetJitoEndpoint(cfg.Network)
		}
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *noServer {
		cfg.Server.Enabled = false
	}
	if *enableFeed {
		cfg.Feed.Enabled = true
	}
	if *amountSOL > 0 {
		cfg.Trading.AmountSOL = *amountSOL
	}
}

func initializeLogger(cfg *config.Config) *logger.Logger {
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
	return log
}

func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	tradeLogger, err := logger.NewTradeLogger(cfg.Logging.TradeLogDir, log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create trade logger: %w", err)
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
		cancel()
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	notifier := notify.New(notify.TelegramConfig{
		BaseURL:  cfg.Notify.TelegramURL,
		BotToken: cfg.Notify.TelegramBotToken,
		ChatID:   cfg.Notify.TelegramChatID,
		Timeout:  cfg.Notify.Timeout(),
	}, log)

	gatewayRetry := retry.Policy{Attempts: cfg.Gateway.RetryAttempts, Delay: cfg.Gateway.RetryDelay()}
	marketClient := market.NewClient(market.ClientConfig{
		BaseURL: cfg.Gateway.MarketDataURL,
		Timeout: cfg.Gateway.Timeout(),
		Retry:   gatewayRetry,
	}, log)
	riskClient := risk.NewClient(risk.ClientConfig{
		BaseURL: cfg.Gateway.RiskURL,
		Timeout: cfg.Gateway.Timeout(),
	}, log)
	jupiter := swap.NewClient(swap.ClientConfig{
		BaseURL: cfg.Gateway.SwapURL,
		Timeout: cfg.Gateway.Timeout(),
		Retry:   gatewayRetry,
	}, log)

	var submitter swap.Submitter = rpcClient
	if cfg.JITO.Enabled {
		log.Info("🛡️ Submitting swaps through Jito")
		submitter = client.NewJitoClient(client.JitoClientConfig{
			Endpoint: cfg.JITO.Endpoint,
			APIKey:   cfg.JITO.APIKey,
			Timeout:  cfg.Gateway.Timeout(),
		}, log.Logger)
	}

	executor := swap.NewExecutor(jupiter, w, submitter, rpcClient, swap.ExecutorConfig{
		ConfirmTimeout: cfg.Trading.ConfirmTimeout(),
		PollInterval:   cfg.Trading.ConfirmPoll(),
	}, log)
	trader := swap.NewTrader(jupiter, executor, swap.TraderConfig{
		NativeMint:  config.NativeSOLMint.String(),
		BuyLamports: cfg.Trading.AmountLamports(),
		SlippageBps: cfg.Trading.SlippageBps,
	}, log)

	clk := clock.New()
	v := validator.New(marketClient, riskClient, validator.Config{
		Rules: validator.Rules{
			MaxAge:          cfg.Validation.MaxAge(),
			MinLiquidityUSD: cfg.Validation.MinLiquidityUSD,
			MinMarketCapUSD: cfg.Validation.MinMarketCapUSD,
			MinMCToFDVRatio: cfg.Validation.MinMCToFDVRatio,
			MinVolume5m:     cfg.Validation.MinVolume5m,
			MinTxns5m:       cfg.Validation.MinTxns5m,
			MaxRiskScore:    cfg.Validation.MaxRiskScore,
		},
		PairRetry: retry.Policy{
			Attempts: cfg.Validation.PairRetryAttempts,
			Delay:    cfg.Validation.PairRetryInterval(),
		},
	}, clk, log)

	engine := position.NewEngine(ctx, store, v, position.Config{
		Policy: position.PercentExit{
			TakeProfitPct: cfg.Trading.TakeProfitPct,
			StopLossPct:   cfg.Trading.StopLossPct,
			MaxHold:       cfg.Trading.MaxHold(),
		},
		PollInterval:   cfg.Trading.PriceCheckInterval(),
		BuyLamports:    cfg.Trading.AmountLamports(),
		SlippageBps:    cfg.Trading.SlippageBps,
		CheckBalance:   cfg.Trading.CheckBalance,
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

	app := &App{
		config:      cfg,
		logger:      log,
		tradeLogger: tradeLogger,
		rpcClient:   rpcClient,
		wallet:      w,
		store:       store,
		engine:      engine,
		notifier:    notifier,
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.Server.Enabled {
		app.server = ingest.NewServer(ingest.ServerConfig{
			Port:        cfg.Server.Port,
			WebhookPath: cfg.Server.WebhookPath,
			AuthToken:   cfg.Server.AuthToken,
		}, engine, engine, log)
	}
	if cfg.Feed.Enabled {
		app.feed = ingest.NewFeedSource(ingest.FeedConfig{
			URL:            cfg.Feed.URL,
			ReconnectDelay: cfg.Feed.ReconnectDelay(),
		}, engine, log)
	}
	if app.server == nil && app.feed == nil {
		cancel()
		return nil, errors.New("no candidate source enabled: enable server or feed")
	}

	return app, nil
}

func newStore(ctx context.Context, cfg *config.Config) (inflight.Store, error) {
	if cfg.Dedup.Backend != "redis" {
		return inflight.NewMemoryStore(), nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := inflight.NewRedisStore(pingCtx, inflight.RedisConfig{
		Addr:     cfg.Dedup.RedisAddr,
		Password: cfg.Dedup.RedisPassword,
		DB:       cfg.Dedup.RedisDB,
		TTL:      cfg.Dedup.TTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect dedup store: %w", err)
	}
	return store, nil
}

func (a *App) Start() error {
	a.logger.LogStartup("sniper v"+Version, a.config.Network, a.config.RPCUrl, a.wallet.Address())

	if err := a.testConnections(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	balance, err := a.wallet.NativeBalance(a.ctx)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	a.logger.LogBalance(utils.ConvertLamportsToSOL(balance), balance)

	a.logger.WithFields(map[string]interface{}{
		"amount_sol":      a.config.Trading.AmountSOL,
		"slippage_bps":    a.config.Trading.SlippageBps,
		"take_profit_pct": a.config.Trading.TakeProfitPct,
		"stop_loss_pct":   a.config.Trading.StopLossPct,
		"max_hold":        a.config.Trading.MaxHold().String(),
		"dedup":           a.config.Dedup.Backend,
	}).Info("⚙️ Trading configuration")

	a.notifier.Notify(fmt.Sprintf("🚀 *Sniper started*\nWallet: `%s`\nBalance: %.4f SOL\nSize: %.4f SOL",
		utils.ShortAddress(a.wallet.Address()), utils.ConvertLamportsToSOL(balance), a.config.Trading.AmountSOL))

	g, gctx := errgroup.WithContext(a.ctx)
	if a.server != nil {
		g.Go(func() error { return a.server.Run(gctx) })
	}
	if a.feed != nil {
		g.Go(func() error { return a.feed.Run(gctx) })
	}
	g.Go(func() error {
		a.statsLoop(gctx)
		return nil
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- g.Wait()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	a.logger.Info("🎯 Sniper started - waiting for new tokens!")

	select {
	case sig := <-sigChan:
		a.logger.LogShutdown(sig.String())
		a.shutdown()
		<-errChan
		return nil
	case err := <-errChan:
		a.shutdown()
		return err
	}
}

func (a *App) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fields := map[string]interface{}{
				"active_positions": len(a.engine.Active()),
			}
			if a.feed != nil {
				stats := a.feed.Stats()
				fields["feed_connected"] = stats.Connected
				fields["feed_submitted"] = stats.Submitted
				fields["feed_reconnects"] = stats.Reconnects
			}
			a.logger.WithFields(fields).Info("📊 Sniper statistics")
		}
	}
}

// testConnections tests network connectivity
func (a *App) testConnections() error {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	if _, err := a.rpcClient.GetSlot(ctx); err != nil {
		return fmt.Errorf("RPC connection test failed: %w", err)
	}
	a.logger.LogConnection("rpc", "ok", a.config.RPCUrl)
	return nil
}

func (a *App) shutdown() {
	a.cancel()

	open := a.engine.Active()
	a.engine.Wait()
	for _, s := range open {
		if s.State == position.StateHolding || s.State == position.StateExiting {
			a.logger.WithField("mint", s.Address).Warn("⚠️ Position left open at shutdown")
		}
	}

	if err := a.tradeLogger.LogDailySummary(); err != nil {
		a.logger.WithError(err).Warn("⚠️ Failed to write daily summary")
	}
	if closer, ok := a.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	a.notifier.Notify("🛑 *Sniper stopped*")
	if tg, ok := a.notifier.(*notify.Telegram); ok {
		tg.Wait()
	}

	a.logger.Info("✅ Shutdown complete")
}
