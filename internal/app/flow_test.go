package app

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnftgateway/internal/apperr"
	"rnftgateway/internal/backend"
	"rnftgateway/internal/session"
	"rnftgateway/internal/telegram"
	"rnftgateway/internal/wallet"
)

type flowResult struct {
	out Outcome
	err error
}

func TestExecuteMintSucceeds(t *testing.T) {
	f := started(t, "ref="+referrerAddr)
	f.backend.tx.Value = "1000"

	out, err := f.app.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, session.ActionMint, out.Kind)
	assert.False(t, out.SessionChanged)
	require.Len(t, f.backend.mintCalls, 1)
	assert.Equal(t, prepareCall{initData: initDataBlob, wallet: walletAddr, referrer: referrerAddr}, f.backend.mintCalls[0])

	sent := f.provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, contractAddr, sent[0].To)
	assert.Equal(t, "0x6a627842", sent[0].Data)
	assert.Equal(t, big.NewInt(1000), sent[0].Value)

	select {
	case logged := <-f.backend.logged:
		assert.Equal(t, backend.LogTxnRequest{
			TxHash:         out.TxHash,
			TxType:         "mint",
			WalletAddress:  walletAddr,
			TelegramUserID: "279058397",
		}, logged)
	case <-time.After(time.Second):
		t.Fatal("transaction was not logged")
	}

	assert.Contains(t, f.view.Statuses(), "Mint successful!")
	assert.Contains(t, f.view.Statuses(), "View on explorer: https://polygonscan.com/tx/"+out.TxHash)
	assert.Contains(t, f.host.Haptics(), telegram.HapticSuccess)
	select {
	case <-f.host.closed:
	case <-time.After(time.Second):
		t.Fatal("host was not closed after success")
	}
}

func TestExecuteClaimDefaultsValueToZero(t *testing.T) {
	f := started(t, "action=claim")
	f.backend.tx.Value = ""

	_, err := f.app.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, f.backend.claimCalls, 1)
	assert.Equal(t, walletAddr, f.backend.claimCalls[0].wallet)
	sent := f.provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 0, sent[0].Value.Sign())
}

func TestExecutePrepareWithoutDestination(t *testing.T) {
	f := started(t, "action=claim")
	f.backend.tx = backend.Transaction{Data: "0x4e71d92d"}

	_, err := f.app.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPrepare))
	assert.ErrorIs(t, err, ErrMissingDestination)

	assert.Empty(t, f.provider.Sent())
	assert.True(t, f.view.ActionEnabled())
	assert.False(t, f.view.loading)
	assert.Contains(t, f.host.Haptics(), telegram.HapticError)
	errs := f.view.Errors()
	require.NotEmpty(t, errs)
	assert.Equal(t, "Could not prepare the transaction: prepared transaction has no destination", errs[len(errs)-1])
}

func TestExecutePrepareRejectsMalformedFields(t *testing.T) {
	cases := map[string]struct {
		tx   backend.Transaction
		want error
	}{
		"bad to":      {backend.Transaction{To: "0x1234", Data: "0x00"}, ErrInvalidDestination},
		"no data":     {backend.Transaction{To: contractAddr}, ErrMissingCalldata},
		"bad data":    {backend.Transaction{To: contractAddr, Data: "zz"}, ErrInvalidCalldata},
		"bad value":   {backend.Transaction{To: contractAddr, Data: "0x00", Value: "ten"}, ErrInvalidValue},
		"minus value": {backend.Transaction{To: contractAddr, Data: "0x00", Value: "-1"}, ErrInvalidValue},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := txRequest(tc.tx)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	req, err := txRequest(backend.Transaction{To: contractAddr, Data: "0x00", Value: "0x3e8"})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), req.Value)

	req, err = txRequest(backend.Transaction{To: strings.ToLower(contractAddr[2:]), Data: "0x00"})
	require.NoError(t, err)
	assert.Equal(t, contractAddr, req.To)
}

func TestExecuteBackendError(t *testing.T) {
	f := started(t, "action=claim")
	f.backend.prepareErr = &backend.Error{Status: 403, Message: "nothing to claim"}

	_, err := f.app.Execute(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindPrepare))
	assert.Empty(t, f.provider.Sent())
	errs := f.view.Errors()
	assert.Equal(t, "Could not prepare the transaction: nothing to claim", errs[len(errs)-1])
}

func TestExecuteRevertedReceipt(t *testing.T) {
	f := started(t, "action=claim")
	f.provider.SetReceiptStatus(types.ReceiptStatusFailed)

	out, err := f.app.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindOnChainRevert))
	assert.NotEmpty(t, out.TxHash)

	assert.NotContains(t, f.host.Haptics(), telegram.HapticSuccess)
	assert.Contains(t, f.host.Haptics(), telegram.HapticError)
	errs := f.view.Errors()
	assert.Equal(t, "The transaction was reverted on-chain. You may not be eligible for this action.", errs[len(errs)-1])

	time.Sleep(60 * time.Millisecond)
	assert.False(t, f.host.isClosed())
	assert.True(t, f.view.ActionEnabled())
}

func TestExecuteSigningErrors(t *testing.T) {
	cases := map[string]struct {
		sendErr error
		want    string
	}{
		"rejected":     {errors.New("user rejected transaction"), "Transaction rejected by user."},
		"insufficient": {errors.New("insufficient funds for gas * price + value"), "Insufficient MATIC balance to cover the transaction and gas."},
		"other":        {errors.New("nonce too low"), "Transaction failed: nonce too low"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := started(t, "action=claim")
			f.provider.FailSend(tc.sendErr)

			_, err := f.app.Execute(context.Background())
			assert.True(t, apperr.Is(err, apperr.KindSigning))
			errs := f.view.Errors()
			require.NotEmpty(t, errs)
			assert.Equal(t, tc.want, errs[len(errs)-1])
			select {
			case <-f.backend.logged:
				t.Fatal("failed send must not be logged")
			default:
			}
		})
	}
}

func TestExecuteNotReady(t *testing.T) {
	f := newFixture(t, "action=claim")
	require.NoError(t, f.app.Start(context.Background()))

	_, err := f.app.Execute(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindConnection))
	assert.ErrorIs(t, err, wallet.ErrNotConnected)
	assert.Zero(t, f.backend.prepareCount())

	g := started(t, "action=claim")
	g.app.State().SetChainID("1")
	_, err = g.app.Execute(context.Background())
	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "137", mismatch.Expected)
	assert.Equal(t, "1", mismatch.Actual)
	assert.Zero(t, g.backend.prepareCount())

	h := started(t, "")
	_, err = h.app.Execute(context.Background())
	assert.ErrorIs(t, err, ErrNoAction)
	assert.Zero(t, h.backend.prepareCount())
}

func TestExecuteWrongNetworkShowsOneBanner(t *testing.T) {
	f := started(t, "action=claim")
	f.app.State().SetChainID("1")
	before := len(f.view.Errors())

	_, err := f.app.Execute(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindNetworkMismatch))

	errs := f.view.Errors()
	require.Len(t, errs, before+1)
	assert.Equal(t, "Please switch your wallet to Polygon (137). Currently connected to 1.", errs[len(errs)-1])
	assert.False(t, f.view.ActionEnabled())

	clears := f.view.clearCount()
	f.app.State().SetChainID("137")
	assert.True(t, f.app.CheckReadiness(false))
	assert.Greater(t, f.view.clearCount(), clears)
}

func TestExecuteIgnoresLogFailure(t *testing.T) {
	f := started(t, "action=claim")
	f.backend.logErr = context.DeadlineExceeded
	before := len(f.view.Errors())

	out, err := f.app.Execute(context.Background())
	require.NoError(t, err)

	select {
	case logged := <-f.backend.logged:
		assert.Equal(t, out.TxHash, logged.TxHash)
	case <-time.After(time.Second):
		t.Fatal("transaction was not logged")
	}
	assert.Len(t, f.view.Errors(), before)
	assert.NotContains(t, f.host.Haptics(), telegram.HapticError)
	select {
	case <-f.host.closed:
	case <-time.After(time.Second):
		t.Fatal("host was not closed after success")
	}

	closed := make(chan struct{})
	go func() {
		f.app.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}

func TestExecuteRejectsConcurrentFlow(t *testing.T) {
	f := started(t, "action=claim")
	f.provider.HoldReceipts()

	done := make(chan flowResult, 1)
	go func() {
		out, err := f.app.Execute(context.Background())
		done <- flowResult{out, err}
	}()
	require.Eventually(t, func() bool { return len(f.provider.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, f.view.ActionEnabled())

	_, err := f.app.Execute(context.Background())
	assert.ErrorIs(t, err, ErrFlowInProgress)
	assert.False(t, f.view.ActionEnabled())

	f.provider.ReleaseReceipts()
	res := <-done
	require.NoError(t, res.err)
	assert.Len(t, f.provider.Sent(), 1)
}

func TestExecuteSurvivesDisconnectMidFlight(t *testing.T) {
	f := started(t, "action=claim")
	f.provider.HoldReceipts()

	done := make(chan flowResult, 1)
	go func() {
		out, err := f.app.Execute(context.Background())
		done <- flowResult{out, err}
	}()
	require.Eventually(t, func() bool { return len(f.provider.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	f.provider.Emit(wallet.Event{Type: wallet.EventAccountsChanged, Accounts: nil})
	require.Eventually(t, func() bool {
		return !f.app.State().Snapshot().Wallet.Connected()
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.view.ActionEnabled())

	f.provider.ReleaseReceipts()
	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.out.SessionChanged)
	assert.Contains(t, f.host.Haptics(), telegram.HapticSuccess)

	assert.Equal(t, session.ReasonWalletNotConnected, f.app.Readiness().Reason)
	assert.False(t, f.view.ActionEnabled())
	time.Sleep(60 * time.Millisecond)
	assert.False(t, f.host.isClosed())
}

func TestExecuteReceiptWaitCancelled(t *testing.T) {
	f := started(t, "action=claim")
	f.provider.HoldReceipts()
	defer f.provider.ReleaseReceipts()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan flowResult, 1)
	go func() {
		out, err := f.app.Execute(ctx)
		done <- flowResult{out, err}
	}()
	require.Eventually(t, func() bool { return len(f.provider.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	res := <-done
	assert.True(t, apperr.Is(res.err, apperr.KindConnection))
	assert.ErrorIs(t, res.err, ErrReceiptUnavailable)
	assert.ErrorIs(t, res.err, context.Canceled)
	assert.NotEmpty(t, res.out.TxHash)

	select {
	case <-f.backend.logged:
	case <-time.After(time.Second):
		t.Fatal("submitted transaction was not logged")
	}
}
