package rnft

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// FakePreparer returns calldata derived from the request so tests can tell calls apart.
type FakePreparer struct {
	Contract string
	Err      error

	mu     sync.Mutex
	mints  []MintRequest
	claims []ClaimRequest
}

func (f *FakePreparer) PrepareMint(_ context.Context, req MintRequest) (Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mints = append(f.mints, req)
	if f.Err != nil {
		return Call{}, f.Err
	}
	return Call{To: f.Contract, Data: fakeCalldata("mint|" + req.Wallet + "|" + req.Referrer), Value: "0"}, nil
}

func (f *FakePreparer) PrepareClaim(_ context.Context, req ClaimRequest) (Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, req)
	if f.Err != nil {
		return Call{}, f.Err
	}
	return Call{To: f.Contract, Data: fakeCalldata("claim|" + req.Wallet), Value: "0"}, nil
}

func (f *FakePreparer) Mints() []MintRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MintRequest(nil), f.mints...)
}

func (f *FakePreparer) Claims() []ClaimRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ClaimRequest(nil), f.claims...)
}

func fakeCalldata(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "0x" + hex.EncodeToString(sum[:4])
}
