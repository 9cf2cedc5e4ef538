package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stakebot/engine/config"
	"github.com/stakebot/engine/internal/adapters/chain"
	"github.com/stakebot/engine/internal/adapters/notify"
	"github.com/stakebot/engine/internal/adapters/paper"
	"github.com/stakebot/engine/internal/adapters/storage"
	"github.com/stakebot/engine/internal/engine"
	"github.com/stakebot/engine/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	paperMode := flag.Bool("paper", false, "simulate bets against live rounds (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *paperMode {
		cfg.Engine.Paper = true
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("stakebot starting",
		"config", *configPath,
		"contract", cfg.Chain.Contract,
		"paper", cfg.Engine.Paper,
		"strategy", cfg.Strategy.Kind,
		"streams", cfg.Strategy.MaxStreams,
	)

	client, executor, err := buildChain(cfg)
	if err != nil {
		slog.Error("failed to connect to chain", "err", err)
		os.Exit(1)
	}

	recorder, err := buildRecorder(cfg)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer recorder.Close()

	eng := engine.New(
		engine.Config{
			TickInterval:        cfg.TickInterval(),
			RiskRefreshSchedule: cfg.Engine.RiskRefreshCron,
			Strategy:            cfg.DomainStrategy(),
		},
		client,
		executor,
		client,
		buildNotifier(cfg),
		recorder,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("stakebot stopped cleanly")
}

// buildChain returns the round/event provider and the bet executor.
// Live mode signs real transactions; paper mode reads real rounds but
// simulates the wallet.
func buildChain(cfg *config.Config) (*chain.Client, ports.BetExecutor, error) {
	if cfg.Engine.Paper {
		client, err := chain.NewReadOnlyClient(
			cfg.Chain.RPCURL, cfg.Chain.WSURL, cfg.Chain.Contract, cfg.Chain.ChainID)
		if err != nil {
			return nil, nil, err
		}
		executor := paper.NewExecutor(client, config.BNBToWei(cfg.Engine.PaperBalanceBNB))
		return client, executor, nil
	}

	client, err := chain.NewClient(
		cfg.Chain.RPCURL, cfg.Chain.WSURL, cfg.Chain.Contract,
		cfg.Chain.PrivateKey, cfg.Chain.ChainID)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("wallet ready", "address", client.Address())
	return client, client, nil
}

func buildRecorder(cfg *config.Config) (ports.Recorder, error) {
	if cfg.Storage.DSN == "" {
		return storage.NewNoop(), nil
	}
	return storage.NewSQLiteRecorder(cfg.Storage.DSN)
}

func buildNotifier(cfg *config.Config) ports.Notifier {
	sinks := []ports.Notifier{notify.NewConsole()}
	if cfg.TelegramEnabled() {
		sinks = append(sinks, notify.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
		slog.Info("telegram notifications enabled")
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return notify.NewMulti(sinks...)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
