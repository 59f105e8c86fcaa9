package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"rnftgateway/internal/apperr"
	"rnftgateway/internal/chain"
)

// AppConfig is shared by the mini app runner and the reference backend.
type AppConfig struct {
	Chain    ChainConfig    `yaml:"chain"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Backend  BackendConfig  `yaml:"backend"`
	Telegram TelegramConfig `yaml:"telegram"`
	Service  ServiceConfig  `yaml:"service"`
	Contract ContractConfig `yaml:"contract"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

type ChainConfig struct {
	SupportedChainID    string        `yaml:"supportedChainId" env:"CHAIN_SUPPORTED_ID"`
	RPCURL              string        `yaml:"rpcUrl" env:"CHAIN_RPC_URL"`
	PrivateKey          string        `yaml:"-" env:"CHAIN_PRIVATE_KEY"`
	ReceiptPollInterval time.Duration `yaml:"receiptPollInterval" env:"CHAIN_RECEIPT_POLL_INTERVAL"`
}

const (
	ProviderWalletConnect = "walletconnect"
	ProviderKeyed         = "keyed"
	ProviderFake          = "fake"
)

type WalletConfig struct {
	Provider       string `yaml:"provider" env:"WALLET_PROVIDER"`
	ProjectID      string `yaml:"projectId" env:"WALLETCONNECT_PROJECT_ID"`
	BridgeURL      string `yaml:"bridgeUrl" env:"WALLETCONNECT_BRIDGE_URL"`
	AppName        string `yaml:"appName"`
	AppDescription string `yaml:"appDescription"`
	AppURL         string `yaml:"appUrl" env:"WALLETCONNECT_APP_URL"`
	IconURL        string `yaml:"iconUrl"`
	QRCodePath     string `yaml:"qrCodePath" env:"WALLETCONNECT_QR_PATH"`
}

type BackendConfig struct {
	BaseURL          string        `yaml:"baseUrl" env:"BACKEND_BASE_URL"`
	ValidateAuthPath string        `yaml:"validateAuthPath"`
	PrepareMintPath  string        `yaml:"prepareMintPath"`
	PrepareClaimPath string        `yaml:"prepareClaimPath"`
	LogTxnPath       string        `yaml:"logTxnPath"`
	Timeout          time.Duration `yaml:"timeout" env:"BACKEND_TIMEOUT"`
}

type TelegramConfig struct {
	BotToken       string        `yaml:"-" env:"TELEGRAM_BOT_TOKEN"`
	InitData       string        `yaml:"-" env:"TELEGRAM_INIT_DATA"`
	InitDataMaxAge time.Duration `yaml:"initDataMaxAge" env:"TELEGRAM_INIT_DATA_MAX_AGE"`
	NotifyOnLog    bool          `yaml:"notifyOnLog" env:"TELEGRAM_NOTIFY_ON_LOG"`
}

type ServiceConfig struct {
	HTTPPort       int           `yaml:"httpPort" env:"API_HTTP_PORT"`
	CloseDelay     time.Duration `yaml:"closeDelay" env:"APP_CLOSE_DELAY"`
	Language       string        `yaml:"language" env:"APP_LANGUAGE"`
	RateLimitRPS   float64       `yaml:"rateLimitRps" env:"API_RATE_LIMIT_RPS"`
	RateLimitBurst int           `yaml:"rateLimitBurst" env:"API_RATE_LIMIT_BURST"`
	ShutdownGrace  time.Duration `yaml:"shutdownGrace"`
}

type ContractConfig struct {
	Address      string `yaml:"address" env:"CONTRACT_ADDRESS"`
	MintPriceWei string `yaml:"mintPriceWei" env:"CONTRACT_MINT_PRICE_WEI"`
}

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type StoreConfig struct {
	Driver      string `yaml:"driver" env:"TXLOG_DRIVER"`
	SQLitePath  string `yaml:"sqlitePath" env:"TXLOG_SQLITE_PATH"`
	PostgresDSN string `yaml:"-" env:"TXLOG_POSTGRES_DSN"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// placeholderProjectID is what the sample config ships with.
const placeholderProjectID = "YOUR_WALLETCONNECT_PROJECT_ID"

var (
	ErrMissingProjectID  = errors.New("walletconnect project id is not configured")
	ErrMissingPrivateKey = errors.New("keyed wallet needs CHAIN_PRIVATE_KEY")
	ErrMissingRPCURL     = errors.New("chain rpc url is not configured")
	ErrMissingBotToken   = errors.New("telegram bot token is not configured")
)

// Defaults returns the built-in configuration before any file or environment is applied.
func Defaults() *AppConfig {
	return &AppConfig{
		Chain: ChainConfig{
			SupportedChainID:    chain.Polygon.ID,
			RPCURL:              "https://polygon-rpc.com",
			ReceiptPollInterval: 2 * time.Second,
		},
		Wallet: WalletConfig{
			Provider:       ProviderWalletConnect,
			BridgeURL:      "https://bridge.walletconnect.org",
			AppName:        "rNFT Gateway",
			AppDescription: "Mint and claim rNFTs from Telegram",
			AppURL:         "https://t.me",
			IconURL:        "https://walletconnect.com/walletconnect-logo.png",
			QRCodePath:     "wallet_connect_qr.png",
		},
		Backend: BackendConfig{
			BaseURL:          "http://localhost:3000",
			ValidateAuthPath: "/validate_auth",
			PrepareMintPath:  "/api/prepare_mint",
			PrepareClaimPath: "/api/prepare_claim",
			LogTxnPath:       "/api/log_txn",
			Timeout:          15 * time.Second,
		},
		Telegram: TelegramConfig{
			InitDataMaxAge: 24 * time.Hour,
		},
		Service: ServiceConfig{
			HTTPPort:       3000,
			CloseDelay:     3 * time.Second,
			Language:       "en",
			RateLimitRPS:   5,
			RateLimitBurst: 10,
			ShutdownGrace:  10 * time.Second,
		},
		Contract: ContractConfig{
			MintPriceWei: "0",
		},
		Store: StoreConfig{
			Driver: StoreMemory,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load applies, in order: defaults, the YAML file at path (skipped when path is empty),
// then environment variables.
func Load(path string) (*AppConfig, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	supported, err := chain.NormalizeID(cfg.Chain.SupportedChainID)
	if err != nil {
		return nil, fmt.Errorf("supported chain id: %w", err)
	}
	cfg.Chain.SupportedChainID = supported
	cfg.Wallet.Provider = strings.ToLower(strings.TrimSpace(cfg.Wallet.Provider))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	return cfg, nil
}

// PathFromEnv returns CONFIG_PATH when set.
func PathFromEnv(fallback string) string {
	return envOr("CONFIG_PATH", fallback)
}

// WalletCredentials reports a configuration error when the selected wallet provider
// cannot be set up.
func (c *AppConfig) WalletCredentials() error {
	switch c.Wallet.Provider {
	case ProviderWalletConnect:
		id := strings.TrimSpace(c.Wallet.ProjectID)
		if id == "" || id == placeholderProjectID {
			return apperr.Wrap(apperr.KindConfiguration, "wallet setup", ErrMissingProjectID)
		}
	case ProviderKeyed:
		if c.Chain.PrivateKey == "" {
			return apperr.Wrap(apperr.KindConfiguration, "wallet setup", ErrMissingPrivateKey)
		}
		if c.Chain.RPCURL == "" {
			return apperr.Wrap(apperr.KindConfiguration, "wallet setup", ErrMissingRPCURL)
		}
	case ProviderFake:
	default:
		return apperr.New(apperr.KindConfiguration, "wallet setup", "unknown wallet provider "+c.Wallet.Provider)
	}
	return nil
}

// ServerCredentials checks what the backend needs to validate init data.
func (c *AppConfig) ServerCredentials() error {
	if c.Telegram.BotToken == "" {
		return apperr.Wrap(apperr.KindConfiguration, "server setup", ErrMissingBotToken)
	}
	return nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
