// Package rnft builds the rNFT contract calls the mini app hands to the user's wallet.
package rnft

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"rnftgateway/internal/chain"
)

//go:embed rnft.abi.json
var contractABI string

var (
	ErrInvalidWallet   = errors.New("invalid wallet address")
	ErrInvalidReferrer = errors.New("invalid referrer address")
	ErrSelfReferral    = errors.New("wallet cannot refer itself")
	ErrNothingToClaim  = errors.New("no rewards to claim")
)

// Preparer abstracts building the mint and claim calls.
type Preparer interface {
	PrepareMint(ctx context.Context, req MintRequest) (Call, error)
	PrepareClaim(ctx context.Context, req ClaimRequest) (Call, error)
}

// HealthChecker is implemented by preparers backed by an RPC node.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type MintRequest struct {
	Wallet   string
	Referrer string
}

type ClaimRequest struct {
	Wallet string
}

// Call is an unsigned contract call. Value is wei in decimal and may be "0".
type Call struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

type ABIConfig struct {
	ContractAddress string
	MintPriceWei    string
	// RPCURL is optional. With it, claims are checked against pendingRewards and Ping reports
	// node health.
	RPCURL string
}

// ABIPreparer packs calldata against the rNFT contract ABI.
type ABIPreparer struct {
	abi       abi.ABI
	address   common.Address
	mintPrice *big.Int
	client    *ethclient.Client
	contract  *bind.BoundContract
}

func NewABIPreparer(ctx context.Context, cfg ABIConfig) (*ABIPreparer, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("contract address is required")
	}
	parsedABI, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	price := new(big.Int)
	if s := strings.TrimSpace(cfg.MintPriceWei); s != "" {
		if _, ok := price.SetString(s, 10); !ok || price.Sign() < 0 {
			return nil, fmt.Errorf("invalid mint price: %s", cfg.MintPriceWei)
		}
	}

	p := &ABIPreparer{
		abi:       parsedABI,
		address:   common.HexToAddress(cfg.ContractAddress),
		mintPrice: price,
	}
	if cfg.RPCURL != "" {
		cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc: %w", err)
		}
		p.client = cli
		p.contract = bind.NewBoundContract(p.address, parsedABI, cli, cli, cli)
	}
	return p, nil
}

func (p *ABIPreparer) PrepareMint(_ context.Context, req MintRequest) (Call, error) {
	wallet, err := parseAddress(req.Wallet, ErrInvalidWallet)
	if err != nil {
		return Call{}, err
	}
	referrer, err := parseAddress(req.Referrer, ErrInvalidReferrer)
	if err != nil {
		return Call{}, err
	}
	if wallet == referrer {
		return Call{}, ErrSelfReferral
	}

	data, err := p.abi.Pack("mint", referrer)
	if err != nil {
		return Call{}, fmt.Errorf("pack mint: %w", err)
	}
	return Call{To: p.address.Hex(), Data: hexutil.Encode(data), Value: p.mintPrice.String()}, nil
}

func (p *ABIPreparer) PrepareClaim(ctx context.Context, req ClaimRequest) (Call, error) {
	wallet, err := parseAddress(req.Wallet, ErrInvalidWallet)
	if err != nil {
		return Call{}, err
	}
	if p.contract != nil {
		pending, err := p.PendingRewards(ctx, wallet)
		if err != nil {
			return Call{}, err
		}
		if pending.Sign() == 0 {
			return Call{}, ErrNothingToClaim
		}
	}

	data, err := p.abi.Pack("claimRewards")
	if err != nil {
		return Call{}, fmt.Errorf("pack claimRewards: %w", err)
	}
	return Call{To: p.address.Hex(), Data: hexutil.Encode(data), Value: "0"}, nil
}

// PendingRewards reads the claimable amount for account.
func (p *ABIPreparer) PendingRewards(ctx context.Context, account common.Address) (*big.Int, error) {
	if p.contract == nil {
		return nil, fmt.Errorf("rpc client not configured")
	}
	var out []any
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "pendingRewards", account); err != nil {
		return nil, fmt.Errorf("call pendingRewards: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("pendingRewards returned %d values", len(out))
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("pendingRewards returned %T", out[0])
	}
	return amount, nil
}

func (p *ABIPreparer) Ping(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := p.client.BlockNumber(ctx)
	return err
}

func (p *ABIPreparer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func parseAddress(s string, invalid error) (common.Address, error) {
	if !chain.ValidAddress(strings.TrimSpace(s)) {
		return common.Address{}, fmt.Errorf("%w: %q", invalid, s)
	}
	return common.HexToAddress(strings.TrimSpace(s)), nil
}
