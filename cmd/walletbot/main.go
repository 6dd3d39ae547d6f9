package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/joho/godotenv"

	"github.com/m3rciful/walletbot/core/config"
	coredatabase "github.com/m3rciful/walletbot/core/database"
	"github.com/m3rciful/walletbot/core/logger"
	tg "github.com/m3rciful/walletbot/core/telegram"
	"github.com/m3rciful/walletbot/core/telegram/middleware"
	"github.com/m3rciful/walletbot/internal/bot"
	"github.com/m3rciful/walletbot/internal/chain"
	"github.com/m3rciful/walletbot/internal/custody"
	"github.com/m3rciful/walletbot/internal/events"
	"github.com/m3rciful/walletbot/internal/rpc"
	"github.com/m3rciful/walletbot/internal/store"
	"github.com/m3rciful/walletbot/internal/transfer"
	"github.com/m3rciful/walletbot/internal/wallet"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	if err := run(cfg); err != nil {
		logger.L.Error("fatal", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := coredatabase.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := coredatabase.RunMigrations(cfg.Database); err != nil {
		return err
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	evmReader, err := rpc.DialEVM(dialCtx, cfg.Chains.EVM.RPCURL)
	dialCancel()
	if err != nil {
		return err
	}
	defer evmReader.Close()
	solReader := rpc.NewSolana(cfg.Chains.Solana.RPCURL)

	custodyClient := custody.NewClient(custody.Config{
		BaseURL:        cfg.Custody.BaseURL,
		APIKey:         cfg.Custody.APIKey,
		Timeout:        cfg.Custody.Timeout,
		CreateAttempts: cfg.Custody.CreateAttempts,
	})

	emitter := events.NewEmitter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer func() { _ = emitter.Close() }()

	accounts := store.NewPostgres(db)
	walletSvc := wallet.NewService(accounts, custodyClient, map[chain.Tag]wallet.BalanceReader{
		chain.EVM:    evmReader,
		chain.Solana: solReader,
	}, cfg.Wallet.Namespace)

	executor := transfer.NewExecutor(custodyClient, emitter)
	machine := transfer.NewMachine(accounts, executor)
	handlers := bot.New(walletSvc, machine)

	reg := tg.NewRegistry()
	routes := handlers.Register(reg)

	appLog := logger.Component("app")
	startedAt := time.Now()
	return tg.Run(ctx, tg.RunOptions{
		Token:                  cfg.Telegram.Token,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Registry:               reg,
		Middlewares: []tg.Middleware{
			{Name: "recover", Use: middleware.RecoverMiddleware},
			{Name: "logging", Use: middleware.LoggerMiddleware},
		},
		Routes: routes,
		OnStart: func(ctx context.Context, _ *tele.Bot) error {
			appLog.Info("app ready",
				slog.String("event", "ready"),
				slog.Duration("startup_duration", logger.Took(startedAt)),
			)
			return nil
		},
		OnStop: func(ctx context.Context, _ *tele.Bot) error {
			appLog.Info("shutting down...",
				slog.String("event", "shutdown"),
			)
			return nil
		},
	})
}
