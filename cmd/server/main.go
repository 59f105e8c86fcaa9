package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"rnftgateway/internal/chain"
	"rnftgateway/internal/config"
	"rnftgateway/internal/log"
	"rnftgateway/internal/notify"
	"rnftgateway/internal/rnft"
	"rnftgateway/internal/server"
	"rnftgateway/internal/txlog"
)

func main() {
	cfg, err := config.Load(config.PathFromEnv(""))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	log.SetLevel(cfg.Log.Level)
	if err := cfg.ServerCredentials(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("tx log store error: %v", err)
	}
	defer closeStore()

	var preparer rnft.Preparer = &rnft.FakePreparer{}
	if cfg.Contract.Address != "" {
		abiPreparer, err := rnft.NewABIPreparer(ctx, rnft.ABIConfig{
			ContractAddress: cfg.Contract.Address,
			MintPriceWei:    cfg.Contract.MintPriceWei,
			RPCURL:          cfg.Chain.RPCURL,
		})
		if err != nil {
			log.Fatalf("contract preparer error: %v", err)
		}
		defer abiPreparer.Close()
		preparer = abiPreparer
	} else {
		log.Warnf("contract address not configured, serving placeholder calldata")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.NotifyOnLog {
		network, _ := chain.Lookup(cfg.Chain.SupportedChainID)
		tn, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, network)
		if err != nil {
			log.Fatalf("telegram notifier error: %v", err)
		}
		notifier = tn
	}

	apiServer := server.NewServer(cfg, preparer, store, notifier, log.Logger())

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownGrace)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (txlog.Store, func(), error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		s, err := txlog.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StorePostgres:
		s, err := txlog.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreMemory, "":
		return txlog.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, errors.New("unknown tx log driver " + cfg.Driver)
	}
}
