package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tokenswap/swapd/params"
	"github.com/tokenswap/swapd/pkg/api"
	"github.com/tokenswap/swapd/pkg/bridge"
	"github.com/tokenswap/swapd/pkg/p2p"
	"github.com/tokenswap/swapd/pkg/storage"
	"github.com/tokenswap/swapd/pkg/swap"
	"github.com/tokenswap/swapd/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Storage ----
	store, err := storage.Open(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()
	sugar.Infow("storage_open", "path", cfg.Node.DBPath)

	// ---- Gateway ----
	// In-process vault for devnets. Swap in a chain bridge for production.
	vault := bridge.NewVault()

	// ---- Owner ----
	var owner common.Address
	if cfg.Node.Owner != "" {
		if !common.IsHexAddress(cfg.Node.Owner) {
			sugar.Fatalw("invalid_owner_address", "owner", cfg.Node.Owner)
		}
		owner = common.HexToAddress(cfg.Node.Owner)
	} else {
		sugar.Warn("no owner configured, emergency sweep disabled")
	}

	// ---- Engine ----
	engine, err := swap.NewEngine(store, vault, owner, swap.NewFeed(), sugar)
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Event gossip (optional) ----
	if cfg.Gossip.Enabled {
		gossip, err := p2p.NewGossip(ctx, p2p.Config{
			ListenAddr: cfg.Gossip.ListenAddr,
			Bootstrap:  cfg.Gossip.Bootstrap,
			Logger:     sugar,
		})
		if err != nil {
			sugar.Fatalw("gossip_init_failed", "err", err)
		}
		defer gossip.Close()
		go gossip.Run(ctx, engine.Feed())
	}

	// ---- API server ----
	server := api.NewServer(engine, sugar)
	go func() {
		if err := server.Start(cfg.API.Addr, cfg.API.AllowedOrigins); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started",
		"api", cfg.API.Addr,
		"gossip", cfg.Gossip.Enabled,
		"owner", owner.Hex())

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_error", "err", err)
	}
}
