package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/PublicaIO/exchange-core/params"
	"github.com/PublicaIO/exchange-core/pkg/api"
	"github.com/PublicaIO/exchange-core/pkg/exchange"
	"github.com/PublicaIO/exchange-core/pkg/token"
	"github.com/PublicaIO/exchange-core/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLogger(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Token contracts ----
	// Standalone deployments run against in-memory token contracts.
	// Swap the resolver for on-chain bindings to settle real assets.
	tokens := token.NewRegistry()
	quote := token.NewInMemory()
	tokens.Add(cfg.Exchange.QuoteToken, quote)

	// ---- Persistence ----
	var store *exchange.Store
	if cfg.Node.DBPath != "" {
		store, err = exchange.NewStore(cfg.Node.DBPath)
		if err != nil {
			sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
		}
		defer store.Close()
		sugar.Infow("store_opened", "path", cfg.Node.DBPath)
	} else {
		sugar.Info("no DB_PATH set - running memory-only")
	}

	// ---- API Server ----
	// Built before the engine so its event hub can be wired in.
	var server *api.Server

	engine, err := exchange.NewEngine(exchange.Config{
		Owner:   cfg.Exchange.Owner,
		Custody: cfg.Exchange.Custody,
		Quote:   cfg.Exchange.QuoteToken,
		Tokens:  tokens,
		Store:   store,
		Emitter: exchange.EmitterFunc(func(event any) {
			if server != nil {
				server.Emitter().Emit(event)
			}
		}),
		Logger: logger,
	})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}
	server = api.NewServer(engine, logger)

	sugar.Infow("exchange_starting",
		"quote_token", cfg.Exchange.QuoteToken.Hex(),
		"owner", cfg.Exchange.Owner.Hex(),
		"custody", cfg.Exchange.Custody.Hex(),
		"listen", cfg.Node.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(cfg.Node.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")
}
