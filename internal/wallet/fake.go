package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"rnftgateway/internal/chain"
)

// FakeProvider is an in-memory wallet for tests and dry runs. Transaction hashes are derived
// from the request so they are deterministic.
type FakeProvider struct {
	mu        sync.Mutex
	accounts  []string
	chainID   any
	connected bool
	events    chan Event

	connectErr    error
	signerErr     error
	sendErr       error
	disconnectErr error
	receiptStatus uint64
	gate          chan struct{}
	sent          []TxRequest
}

func NewFakeProvider(accounts []string, chainID any) *FakeProvider {
	return &FakeProvider{
		accounts:      append([]string(nil), accounts...),
		chainID:       chainID,
		events:        make(chan Event, 32),
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (p *FakeProvider) FailConnect(err error) {
	p.mu.Lock()
	p.connectErr = err
	p.mu.Unlock()
}

func (p *FakeProvider) FailSigner(err error) {
	p.mu.Lock()
	p.signerErr = err
	p.mu.Unlock()
}

func (p *FakeProvider) FailSend(err error) {
	p.mu.Lock()
	p.sendErr = err
	p.mu.Unlock()
}

func (p *FakeProvider) FailDisconnect(err error) {
	p.mu.Lock()
	p.disconnectErr = err
	p.mu.Unlock()
}

func (p *FakeProvider) SetReceiptStatus(status uint64) {
	p.mu.Lock()
	p.receiptStatus = status
	p.mu.Unlock()
}

// HoldReceipts makes Wait block until ReleaseReceipts is called.
func (p *FakeProvider) HoldReceipts() {
	p.mu.Lock()
	p.gate = make(chan struct{})
	p.mu.Unlock()
}

func (p *FakeProvider) ReleaseReceipts() {
	p.mu.Lock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
	p.mu.Unlock()
}

// MarkConnected simulates a session the wallet kept from an earlier launch.
func (p *FakeProvider) MarkConnected() {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
}

// Sent returns every request handed to a signer, in order.
func (p *FakeProvider) Sent() []TxRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TxRequest(nil), p.sent...)
}

// Emit updates the fake's own view and queues ev for the session loop.
func (p *FakeProvider) Emit(ev Event) {
	p.mu.Lock()
	switch ev.Type {
	case EventConnect:
		p.connected = true
		if len(ev.Accounts) > 0 {
			p.accounts = append([]string(nil), ev.Accounts...)
		}
		if ev.ChainID != nil {
			p.chainID = ev.ChainID
		}
	case EventAccountsChanged:
		p.accounts = append([]string(nil), ev.Accounts...)
	case EventChainChanged:
		p.chainID = ev.ChainID
	case EventDisconnect:
		p.connected = false
	}
	p.mu.Unlock()
	p.events <- ev
}

func (p *FakeProvider) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = true
	return nil
}

func (p *FakeProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return p.disconnectErr
}

func (p *FakeProvider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *FakeProvider) Accounts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil
	}
	return append([]string(nil), p.accounts...)
}

func (p *FakeProvider) ChainID() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

func (p *FakeProvider) Events() <-chan Event {
	return p.events
}

func (p *FakeProvider) Signer(_ context.Context, address string) (Signer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signerErr != nil {
		return nil, p.signerErr
	}
	for _, a := range p.accounts {
		if chain.SameAddress(a, address) {
			return &fakeSigner{provider: p, address: address}, nil
		}
	}
	return nil, fmt.Errorf("fake wallet does not hold %s", address)
}

type fakeSigner struct {
	provider *FakeProvider
	address  string
}

func (s *fakeSigner) Address() string {
	return s.address
}

func (s *fakeSigner) SendTransaction(_ context.Context, tx TxRequest) (PendingTx, error) {
	p := s.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return nil, Classify(p.sendErr)
	}
	p.sent = append(p.sent, tx)
	value := "0"
	if tx.Value != nil {
		value = tx.Value.String()
	}
	hash := fakeHash(fmt.Sprintf("%s|%s|%s|%s|%d", s.address, tx.To, tx.Data, value, len(p.sent)))
	return &fakePending{provider: p, hash: hash}, nil
}

type fakePending struct {
	provider *FakeProvider
	hash     string
}

func (t *fakePending) Hash() string {
	return t.hash
}

func (t *fakePending) Wait(ctx context.Context) (*Receipt, error) {
	t.provider.mu.Lock()
	gate := t.provider.gate
	t.provider.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.provider.mu.Lock()
	defer t.provider.mu.Unlock()
	return &Receipt{TxHash: t.hash, BlockNumber: 1, Status: t.provider.receiptStatus}, nil
}

func fakeHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "0x" + hex.EncodeToString(sum[:])
}
