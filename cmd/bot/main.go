// Perp DEX grid trading bot — posts post-only open orders on a perpetual
// futures venue and rests take-profit closes against every fill.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires the venue, runs the engine
//	engine/engine.go           — trading loop: gates, pacing, open cycle, close hedging
//	exchange/exchange.go       — venue adapter contract + registry, shared error kinds
//	exchange/lighter/          — Lighter adapter: signed tx submission, book + order streams
//	exchange/grvt/             — GRVT adapter: cookie session, EIP-712 orders, order feed
//	market/book.go             — local order book mirror fed by snapshot + offset deltas
//	notify/notify.go           — Telegram / Lark alert sinks
//	metrics/metrics.go         — Prometheus instrumentation and optional /metrics listener
//
// How it makes money:
//
//	The bot builds a ladder of maker fills. Each open order rests one tick
//	inside the spread; when it fills, a take-profit close rests take_profit
//	percent away. Closes filling realizes the spread between the two prices.
//	Pacing and the grid-step gate keep the ladder from bunching up at one
//	price level.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhanghongchuang/perp-dex-tools/internal/config"
	"github.com/zhanghongchuang/perp-dex-tools/internal/engine"
	"github.com/zhanghongchuang/perp-dex-tools/internal/exchange"
	"github.com/zhanghongchuang/perp-dex-tools/internal/metrics"
	"github.com/zhanghongchuang/perp-dex-tools/internal/notify"

	// Venue adapters register themselves with the exchange registry.
	_ "github.com/zhanghongchuang/perp-dex-tools/internal/exchange/grvt"
	_ "github.com/zhanghongchuang/perp-dex-tools/internal/exchange/lighter"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("PERP_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	client, err := exchange.Create(cfg.Trading.Exchange, cfg, logger)
	if err != nil {
		logger.Error("failed to create exchange client", "error", err, "registered", exchange.Venues())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attrs, err := client.GetContractAttributes(ctx)
	if err != nil {
		logger.Error("failed to resolve contract", "error", err, "ticker", cfg.Trading.Ticker)
		os.Exit(1)
	}

	notifier := notify.NewNotifier(logger,
		notify.NewTelegramSink(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID),
		notify.NewLarkSink(cfg.Notify.LarkWebhookURL),
	)

	// The engine registers its order update handler here, before Connect,
	// so the stream never drops an event.
	eng := engine.New(cfg, client, notifier, attrs, logger)

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect to exchange", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Disconnect(); err != nil {
			logger.Error("disconnect failed", "error", err)
		}
	}()

	metricsSrv := metrics.NewServer(cfg.Metrics.Port, logger)
	metricsSrv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown failed", "error", err)
		}
	}()

	logger.Info("grid trading bot started",
		"exchange", cfg.Trading.Exchange,
		"ticker", cfg.Trading.Ticker,
		"contract_id", attrs.ContractID,
		"direction", cfg.Trading.Direction,
	)

	// Shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("engine exited", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
