package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"rnftgateway/internal/app"
	"rnftgateway/internal/backend"
	"rnftgateway/internal/config"
	"rnftgateway/internal/console"
	"rnftgateway/internal/log"
	"rnftgateway/internal/telegram"
	"rnftgateway/internal/wallet"
	"rnftgateway/internal/walletconnect"
)

const help = "commands: connect, run, disconnect, status, quit"

func main() {
	configPath := flag.String("config", config.PathFromEnv(""), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	log.SetLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	view := console.NewPresenter(os.Stdout, log.Logger())
	host := telegram.NewConsoleHost(cfg.Telegram.InitData, telegram.ThemeParams{}, stop, log.Logger())
	client := backend.NewClient(cfg.Backend.BaseURL, backend.Endpoints{
		ValidateAuth: cfg.Backend.ValidateAuthPath,
		PrepareMint:  cfg.Backend.PrepareMintPath,
		PrepareClaim: cfg.Backend.PrepareClaimPath,
		LogTxn:       cfg.Backend.LogTxnPath,
	}, cfg.Backend.Timeout)

	miniApp := app.New(app.Options{
		SupportedChainID: cfg.Chain.SupportedChainID,
		CloseDelay:       cfg.Service.CloseDelay,
		Language:         cfg.Service.Language,
	}, host, client, providerFactory(cfg), view, log.Logger())
	defer miniApp.Close()

	if err := miniApp.Start(ctx); err != nil {
		log.Warnf("wallet provider unavailable until configured: %v", err)
	}

	fmt.Println(help)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.ToLower(line) {
			case "":
			case "connect":
				_ = miniApp.Connect(ctx)
			case "run", "execute":
				if out, err := miniApp.Execute(ctx); err == nil && out.SessionChanged {
					log.Warnf("wallet session changed while %s %s was confirming", out.Kind, out.TxHash)
				}
			case "disconnect":
				miniApp.Disconnect(ctx)
			case "status":
				view.Status()
			case "quit", "exit":
				return
			default:
				fmt.Println(help)
			}
		}
	}
}

// providerFactory selects the wallet protocol from configuration. Credentials are checked on
// every call so a fixed environment is picked up by the next Connect.
func providerFactory(cfg *config.AppConfig) app.ProviderFactory {
	return func(ctx context.Context) (wallet.Provider, error) {
		if err := cfg.WalletCredentials(); err != nil {
			return nil, err
		}
		switch cfg.Wallet.Provider {
		case config.ProviderWalletConnect:
			chainID, _ := strconv.ParseInt(cfg.Chain.SupportedChainID, 10, 64)
			return walletconnect.New(walletconnect.Config{
				BridgeURL: cfg.Wallet.BridgeURL,
				ProjectID: cfg.Wallet.ProjectID,
				Meta: walletconnect.ClientMeta{
					Name:        cfg.Wallet.AppName,
					Description: cfg.Wallet.AppDescription,
					URL:         cfg.Wallet.AppURL,
					Icons:       []string{cfg.Wallet.IconURL},
				},
				ChainID:     chainID,
				RPCURL:      cfg.Chain.RPCURL,
				ReceiptPoll: cfg.Chain.ReceiptPollInterval,
				Display:     console.QRDisplay(os.Stdout, cfg.Wallet.QRCodePath),
			}, log.Logger()), nil
		case config.ProviderKeyed:
			p, err := wallet.NewKeyedProvider(wallet.KeyedConfig{
				RPCURL:        cfg.Chain.RPCURL,
				PrivateKeyHex: cfg.Chain.PrivateKey,
				PollInterval:  cfg.Chain.ReceiptPollInterval,
			})
			if err != nil {
				return nil, err
			}
			return p, nil
		default:
			return wallet.NewFakeProvider([]string{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"}, cfg.Chain.SupportedChainID), nil
		}
	}
}
