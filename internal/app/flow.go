package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"rnftgateway/internal/apperr"
	"rnftgateway/internal/backend"
	"rnftgateway/internal/chain"
	"rnftgateway/internal/i18n"
	"rnftgateway/internal/session"
	"rnftgateway/internal/telegram"
	"rnftgateway/internal/wallet"
)

var (
	ErrFlowInProgress = errors.New("transaction flow already in progress")
	ErrNoAction       = errors.New("no executable action")

	ErrMissingDestination = errors.New("prepared transaction has no destination")
	ErrInvalidDestination = errors.New("prepared transaction has a malformed destination")
	ErrMissingCalldata    = errors.New("prepared transaction has no calldata")
	ErrInvalidCalldata    = errors.New("prepared transaction has malformed calldata")
	ErrInvalidValue       = errors.New("prepared transaction has a malformed value")

	ErrReceiptUnavailable = errors.New("transaction confirmation unavailable")
)

// MismatchError reports the wallet's chain when it is not the supported one.
type MismatchError struct {
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("wallet is on chain %q, expected %q", e.Actual, e.Expected)
}

func mismatchError(r session.Readiness) error {
	return apperr.Wrap(apperr.KindNetworkMismatch, "check readiness", &MismatchError{Expected: r.Expected, Actual: r.Actual})
}

// Outcome describes a flow that reached a confirmed transaction.
type Outcome struct {
	Kind   session.ActionKind
	TxHash string
	// SessionChanged is set when the wallet switched or disconnected while the flow was running.
	// The transaction still succeeded but the app is not closed.
	SessionChanged bool
}

// Execute runs prepare, sign, log and confirm for the launch action. Only one flow runs at a
// time and nothing is retried. Every failure is shown to the user once.
func (a *App) Execute(ctx context.Context) (Outcome, error) {
	if !a.inFlight.CompareAndSwap(false, true) {
		a.view.ShowError(a.describe(ErrFlowInProgress))
		return Outcome{}, ErrFlowInProgress
	}
	a.view.SetActionEnabled(false)
	a.view.SetLoading(true)
	// The re-check stays quiet when this flow already reported the wrong network.
	suppress := false
	defer func() {
		a.view.SetLoading(false)
		a.inFlight.Store(false)
		a.CheckReadiness(suppress)
	}()

	out, err := a.execute(ctx)
	if err != nil {
		a.log.WithField("kind", apperr.KindOf(err).String()).Warnf("transaction flow failed: %v", err)
		a.view.ShowError(a.describe(err))
		a.host.NotifyHaptic(telegram.HapticError)
		if apperr.Is(err, apperr.KindNetworkMismatch) {
			suppress = true
			a.networkErrShown.Store(true)
		}
	}
	return out, err
}

func (a *App) execute(ctx context.Context) (Outcome, error) {
	if !a.CheckReadiness(true) {
		return Outcome{}, notReady(a.Readiness())
	}
	snap := a.state.Snapshot()
	w := a.walletSession()
	if w == nil || w.Signer() == nil {
		return Outcome{}, apperr.Wrap(apperr.KindConnection, "execute", wallet.ErrNotConnected)
	}
	signer := w.Signer()

	a.view.ClearMessages()
	a.view.ShowStatus(i18n.T(a.loc, "flow.preparing"))
	tx, err := a.prepare(ctx, snap)
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.KindPrepare, "prepare transaction", err)
	}
	req, err := txRequest(tx)
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.KindPrepare, "prepare transaction", err)
	}

	a.view.ShowStatus(i18n.T(a.loc, "flow.confirm"))
	pending, err := signer.SendTransaction(ctx, req)
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.KindSigning, "send transaction", wallet.Classify(err))
	}
	out := Outcome{Kind: snap.Action.Kind, TxHash: pending.Hash()}
	a.log.Infof("%s transaction sent: %s", out.Kind, out.TxHash)
	a.view.ShowStatus(i18n.TWithData(a.loc, "flow.submitted", map[string]any{"Hash": out.TxHash}))

	a.logWG.Add(1)
	go a.logTxn(context.WithoutCancel(ctx), backend.LogTxnRequest{
		TxHash:         out.TxHash,
		TxType:         string(snap.Action.Kind),
		WalletAddress:  snap.Wallet.Address,
		TelegramUserID: snap.Auth.TelegramUserID,
	})

	receipt, err := pending.Wait(ctx)
	if err != nil {
		return out, apperr.Wrap(apperr.KindConnection, "wait for receipt", fmt.Errorf("%w: %w", ErrReceiptUnavailable, err))
	}
	if !receipt.Succeeded() {
		return out, apperr.Wrap(apperr.KindOnChainRevert, "wait for receipt", fmt.Errorf("%w: %s", wallet.ErrExecutionReverted, out.TxHash))
	}

	after := a.state.Snapshot().Wallet
	out.SessionChanged = !after.Connected() || !chain.SameAddress(after.Address, snap.Wallet.Address)
	a.succeeded(out)
	return out, nil
}

func (a *App) prepare(ctx context.Context, snap session.Snapshot) (backend.Transaction, error) {
	switch snap.Action.Kind {
	case session.ActionMint:
		return a.backend.PrepareMint(ctx, snap.Auth.RawInitData, snap.Wallet.Address, snap.Action.Referrer)
	case session.ActionClaim:
		return a.backend.PrepareClaim(ctx, snap.Auth.RawInitData, snap.Wallet.Address)
	default:
		return backend.Transaction{}, ErrNoAction
	}
}

// txRequest validates the prepared call. An empty value means zero.
func txRequest(tx backend.Transaction) (wallet.TxRequest, error) {
	to := strings.TrimSpace(tx.To)
	if to == "" {
		return wallet.TxRequest{}, ErrMissingDestination
	}
	to, err := chain.ChecksumAddress(to)
	if err != nil {
		return wallet.TxRequest{}, fmt.Errorf("%w: %q", ErrInvalidDestination, tx.To)
	}
	data := strings.TrimSpace(tx.Data)
	if data == "" {
		return wallet.TxRequest{}, ErrMissingCalldata
	}
	if _, err := hexutil.Decode(data); err != nil {
		return wallet.TxRequest{}, fmt.Errorf("%w: %v", ErrInvalidCalldata, err)
	}
	value, err := parseValue(tx.Value)
	if err != nil {
		return wallet.TxRequest{}, err
	}
	return wallet.TxRequest{To: to, Data: data, Value: value}, nil
}

// parseValue accepts wei as a decimal or 0x-prefixed hex string.
func parseValue(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(big.Int), nil
	}
	var (
		v  *big.Int
		ok bool
	)
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, ok = new(big.Int).SetString(raw[2:], 16)
	} else {
		v, ok = new(big.Int).SetString(raw, 10)
	}
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	return v, nil
}

func (a *App) logTxn(ctx context.Context, req backend.LogTxnRequest) {
	defer a.logWG.Done()
	if err := a.backend.LogTxn(ctx, req); err != nil {
		a.log.Warnf("log transaction %s: %v", req.TxHash, err)
	}
}

func (a *App) succeeded(out Outcome) {
	label := i18n.T(a.loc, "label."+string(out.Kind))
	a.view.ShowStatus(i18n.TWithData(a.loc, "flow.success", map[string]any{"Action": label}))
	if network, ok := chain.Lookup(a.opts.SupportedChainID); ok && network.ExplorerURL != "" {
		a.view.ShowStatus(i18n.TWithData(a.loc, "flow.explorer", map[string]any{"URL": network.TxURL(out.TxHash)}))
	}
	a.host.NotifyHaptic(telegram.HapticSuccess)

	if out.SessionChanged {
		a.log.Warnf("wallet session changed while %s was in flight, keeping the app open", out.TxHash)
		return
	}
	a.scheduleClose()
}

func (a *App) scheduleClose() {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	if a.closeTimer != nil {
		a.closeTimer.Stop()
	}
	a.closeTimer = time.AfterFunc(a.opts.CloseDelay, a.host.Close)
	a.view.ShowStatus(i18n.TWithData(a.loc, "flow.closing", map[string]any{"Seconds": int(a.opts.CloseDelay.Seconds())}))
}

func notReady(r session.Readiness) error {
	switch r.Reason {
	case session.ReasonNotAuthenticated:
		return apperr.New(apperr.KindAuthentication, "check readiness", "not authenticated")
	case session.ReasonWalletNotConnected:
		return apperr.Wrap(apperr.KindConnection, "check readiness", wallet.ErrNotConnected)
	case session.ReasonWrongNetwork:
		return mismatchError(r)
	default:
		return apperr.Wrap(apperr.KindValidation, "check readiness", ErrNoAction)
	}
}
