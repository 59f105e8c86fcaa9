package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewKeyedProvider(t *testing.T) {
	p, err := NewKeyedProvider(KeyedConfig{RPCURL: "http://127.0.0.1:8545", PrivateKeyHex: testKey})
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(testKey[2:])
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), p.address)

	assert.False(t, p.Connected())
	assert.Empty(t, p.Accounts())
	assert.Nil(t, p.ChainID())

	_, err = p.Signer(context.Background(), p.address.Hex())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestNewKeyedProviderRejectsBadInput(t *testing.T) {
	_, err := NewKeyedProvider(KeyedConfig{PrivateKeyHex: testKey})
	assert.Error(t, err)

	_, err = NewKeyedProvider(KeyedConfig{RPCURL: "http://127.0.0.1:8545", PrivateKeyHex: "0xnothex"})
	assert.Error(t, err)
}

type stubReceipts struct {
	misses  int
	calls   int
	status  uint64
	failErr error
}

func (s *stubReceipts) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	s.calls++
	if s.failErr != nil {
		return nil, s.failErr
	}
	if s.calls <= s.misses {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{TxHash: hash, Status: s.status, BlockNumber: big.NewInt(7)}, nil
}

func TestWaitForReceiptPollsUntilMined(t *testing.T) {
	reader := &stubReceipts{misses: 2, status: types.ReceiptStatusFailed}
	pending := &rpcPendingTx{reader: reader, hash: common.HexToHash("0x01"), poll: time.Millisecond}

	receipt, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, reader.calls)
	assert.False(t, receipt.Succeeded())
	assert.Equal(t, uint64(7), receipt.BlockNumber)
}

func TestWaitForReceiptStopsOnError(t *testing.T) {
	reader := &stubReceipts{failErr: errors.New("rpc down")}
	_, err := WaitForReceipt(context.Background(), reader, common.HexToHash("0x01"), time.Millisecond)
	assert.EqualError(t, err, "rpc down")
}

func TestWaitForReceiptHonoursContext(t *testing.T) {
	reader := &stubReceipts{misses: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WaitForReceipt(ctx, reader, common.HexToHash("0x01"), 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
