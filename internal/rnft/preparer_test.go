package rnft

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contract = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
	wallet   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	referrer = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
)

func newPreparer(t *testing.T, price string) *ABIPreparer {
	t.Helper()
	p, err := NewABIPreparer(context.Background(), ABIConfig{ContractAddress: contract, MintPriceWei: price})
	require.NoError(t, err)
	return p
}

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func TestPrepareMint(t *testing.T) {
	p := newPreparer(t, "10000000000000000")

	call, err := p.PrepareMint(context.Background(), MintRequest{Wallet: wallet, Referrer: referrer})
	require.NoError(t, err)
	assert.Equal(t, contract, call.To)
	assert.Equal(t, "10000000000000000", call.Value)

	data, err := hexutil.Decode(call.Data)
	require.NoError(t, err)
	require.Len(t, data, 4+32)
	assert.Equal(t, selector("mint(address)"), data[:4])
	assert.Equal(t, common.HexToAddress(referrer), common.BytesToAddress(data[4:]))
}

func TestPrepareMintValidation(t *testing.T) {
	p := newPreparer(t, "")

	_, err := p.PrepareMint(context.Background(), MintRequest{Wallet: "0x123", Referrer: referrer})
	assert.ErrorIs(t, err, ErrInvalidWallet)

	_, err = p.PrepareMint(context.Background(), MintRequest{Wallet: wallet, Referrer: "nope"})
	assert.ErrorIs(t, err, ErrInvalidReferrer)

	_, err = p.PrepareMint(context.Background(), MintRequest{Wallet: wallet, Referrer: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"})
	assert.ErrorIs(t, err, ErrSelfReferral)
}

func TestPrepareClaimOffline(t *testing.T) {
	p := newPreparer(t, "")

	call, err := p.PrepareClaim(context.Background(), ClaimRequest{Wallet: wallet})
	require.NoError(t, err)
	assert.Equal(t, contract, call.To)
	assert.Equal(t, "0", call.Value)
	assert.Equal(t, hexutil.Encode(selector("claimRewards()")), call.Data)

	_, err = p.PendingRewards(context.Background(), common.HexToAddress(wallet))
	assert.Error(t, err)
	assert.Error(t, p.Ping(context.Background()))
}

func TestNewABIPreparerRejectsBadConfig(t *testing.T) {
	_, err := NewABIPreparer(context.Background(), ABIConfig{})
	assert.Error(t, err)

	_, err = NewABIPreparer(context.Background(), ABIConfig{ContractAddress: contract, MintPriceWei: "-5"})
	assert.Error(t, err)
}

func TestMintPriceDefaultsToZero(t *testing.T) {
	p := newPreparer(t, "")
	assert.Equal(t, 0, p.mintPrice.Cmp(big.NewInt(0)))
}

func TestFakePreparer(t *testing.T) {
	f := &FakePreparer{Contract: contract}
	a, err := f.PrepareMint(context.Background(), MintRequest{Wallet: wallet, Referrer: referrer})
	require.NoError(t, err)
	b, err := f.PrepareClaim(context.Background(), ClaimRequest{Wallet: wallet})
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, b.Data)
	assert.Len(t, f.Mints(), 1)
	assert.Len(t, f.Claims(), 1)
}
