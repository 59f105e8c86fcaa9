// Package wallet drives the wallet session lifecycle over a pluggable connection provider.
package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

type EventType int

const (
	EventConnect EventType = iota + 1
	EventAccountsChanged
	EventChainChanged
	EventDisconnect
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventAccountsChanged:
		return "accountsChanged"
	case EventChainChanged:
		return "chainChanged"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is a provider notification. ChainID is left raw; the session normalizes it.
type Event struct {
	Type     EventType
	Accounts []string
	ChainID  any
}

// Provider is a wallet connection protocol.
type Provider interface {
	// Connect runs the handshake; it may block until the user approves in their wallet.
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool
	Accounts() []string
	// ChainID returns the chain in whatever representation the wallet reported.
	ChainID() any
	Events() <-chan Event
	// Signer returns a signing handle bound to address.
	Signer(ctx context.Context, address string) (Signer, error)
}

// TxRequest is forwarded to the wallet unchanged. Gas, fees and nonce are left to the wallet.
type TxRequest struct {
	To    string
	Data  string
	Value *big.Int
}

type Signer interface {
	Address() string
	// SendTransaction asks the wallet to sign and broadcast tx.
	SendTransaction(ctx context.Context, tx TxRequest) (PendingTx, error)
}

type PendingTx interface {
	Hash() string
	// Wait blocks until the transaction has one confirmation.
	Wait(ctx context.Context) (*Receipt, error)
}

type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      uint64
}

func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == types.ReceiptStatusSuccessful
}

func receiptFrom(r *types.Receipt) *Receipt {
	out := &Receipt{TxHash: r.TxHash.Hex(), Status: r.Status}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}
