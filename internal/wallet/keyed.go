package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"rnftgateway/internal/chain"
)

const defaultPollInterval = 2 * time.Second

type KeyedConfig struct {
	RPCURL        string
	PrivateKeyHex string
	PollInterval  time.Duration
}

// KeyedProvider signs with a local private key and broadcasts over JSON-RPC. It never changes
// accounts or chains on its own, so its event channel stays silent.
type KeyedProvider struct {
	rpcURL  string
	key     *ecdsa.PrivateKey
	address common.Address
	poll    time.Duration
	events  chan Event

	mu      sync.RWMutex
	client  *ethclient.Client
	chainID *big.Int
}

func NewKeyedProvider(cfg KeyedConfig) (*KeyedProvider, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &KeyedProvider{
		rpcURL:  cfg.RPCURL,
		key:     pk,
		address: crypto.PubkeyToAddress(pk.PublicKey),
		poll:    poll,
		events:  make(chan Event),
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (p *KeyedProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}

	cli, err := ethclient.DialContext(ctx, p.rpcURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	chainID, err := cli.ChainID(ctx)
	if err != nil {
		cli.Close()
		return fmt.Errorf("fetch chain id: %w", err)
	}
	p.client = cli
	p.chainID = chainID
	return nil
}

func (p *KeyedProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	p.chainID = nil
	return nil
}

func (p *KeyedProvider) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}

func (p *KeyedProvider) Accounts() []string {
	if !p.Connected() {
		return nil
	}
	return []string{p.address.Hex()}
}

func (p *KeyedProvider) ChainID() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.chainID == nil {
		return nil
	}
	return new(big.Int).Set(p.chainID)
}

func (p *KeyedProvider) Events() <-chan Event {
	return p.events
}

func (p *KeyedProvider) Signer(_ context.Context, address string) (Signer, error) {
	p.mu.RLock()
	cli, chainID := p.client, p.chainID
	p.mu.RUnlock()
	if cli == nil {
		return nil, ErrNotConnected
	}
	if !chain.SameAddress(address, p.address.Hex()) {
		return nil, fmt.Errorf("key does not control %s", address)
	}
	return &keyedSigner{client: cli, key: p.key, address: p.address, chainID: chainID, poll: p.poll}, nil
}

type keyedSigner struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	poll    time.Duration
}

func (s *keyedSigner) Address() string {
	return s.address.Hex()
}

// SendTransaction lets bind fill in nonce, gas limit and fees from the node.
func (s *keyedSigner) SendTransaction(ctx context.Context, req TxRequest) (PendingTx, error) {
	data, err := hexutil.Decode(req.Data)
	if err != nil {
		return nil, fmt.Errorf("decode calldata: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = req.Value

	contract := bind.NewBoundContract(common.HexToAddress(req.To), abi.ABI{}, s.client, s.client, s.client)
	tx, err := contract.RawTransact(opts, data)
	if err != nil {
		return nil, Classify(fmt.Errorf("send transaction: %w", err))
	}
	return NewRPCPendingTx(s.client, tx.Hash(), s.poll), nil
}

// ReceiptReader is the slice of an RPC client needed to wait for confirmations.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// NewRPCPendingTx tracks a broadcast transaction by polling reader for its receipt.
func NewRPCPendingTx(reader ReceiptReader, hash common.Hash, poll time.Duration) PendingTx {
	return &rpcPendingTx{reader: reader, hash: hash, poll: poll}
}

type rpcPendingTx struct {
	reader ReceiptReader
	hash   common.Hash
	poll   time.Duration
}

func (t *rpcPendingTx) Hash() string {
	return t.hash.Hex()
}

func (t *rpcPendingTx) Wait(ctx context.Context) (*Receipt, error) {
	receipt, err := WaitForReceipt(ctx, t.reader, t.hash, t.poll)
	if err != nil {
		return nil, err
	}
	return receiptFrom(receipt), nil
}

// WaitForReceipt polls until the transaction is mined or context cancelled.
func WaitForReceipt(ctx context.Context, reader ReceiptReader, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := reader.TransactionReceipt(ctx, hash)
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
