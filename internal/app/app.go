// Package app orchestrates the mini app: authentication, the wallet session, the readiness gate
// and the transaction flow.
package app

import (
	"context"
	"sync"
	"time"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"rnftgateway/internal/apperr"
	"rnftgateway/internal/backend"
	"rnftgateway/internal/chain"
	"rnftgateway/internal/i18n"
	"rnftgateway/internal/session"
	"rnftgateway/internal/telegram"
	"rnftgateway/internal/wallet"
)

const unknownUserID = "Unknown"

// Presenter renders state. Implementations must be safe for use from the wallet event loop.
type Presenter interface {
	ShowStatus(msg string)
	ShowError(msg string)
	ClearMessages()
	SetLoading(loading bool)
	SetActionEnabled(enabled bool)
	SetConnectEnabled(enabled bool)
	// ShowAuth receives "" until authentication succeeds.
	ShowAuth(userID string)
	// ShowWallet receives empty strings while disconnected.
	ShowWallet(address, network string)
	ShowAction(label string, visible bool)
}

// Backend is the slice of backend.Client the app calls.
type Backend interface {
	ValidateAuth(ctx context.Context, initData string) (string, error)
	PrepareMint(ctx context.Context, initData, wallet, referrer string) (backend.Transaction, error)
	PrepareClaim(ctx context.Context, initData, wallet string) (backend.Transaction, error)
	LogTxn(ctx context.Context, req backend.LogTxnRequest) error
}

// ProviderFactory builds the wallet provider. It is retried on Connect when it failed at Start.
type ProviderFactory func(ctx context.Context) (wallet.Provider, error)

type Options struct {
	SupportedChainID string
	CloseDelay       time.Duration
	// Language overrides the host's language code when set.
	Language string
}

type App struct {
	opts        Options
	state       *session.State
	host        telegram.Host
	backend     Backend
	newProvider ProviderFactory
	view        Presenter
	loc         *goi18n.Localizer
	log         *logrus.Entry

	walletMu  sync.Mutex
	wallet    *wallet.Session
	runCancel context.CancelFunc
	runDone   chan struct{}

	inFlight        atomic.Bool
	networkErrShown atomic.Bool
	logWG           sync.WaitGroup

	closeMu    sync.Mutex
	closeTimer *time.Timer
}

func New(opts Options, host telegram.Host, be Backend, newProvider ProviderFactory, view Presenter, logger *logrus.Logger) *App {
	lang := opts.Language
	if lang == "" {
		lang = host.LanguageCode()
	}
	return &App{
		opts:        opts,
		state:       session.NewState(),
		host:        host,
		backend:     be,
		newProvider: newProvider,
		view:        view,
		loc:         i18n.Localizer(lang),
		log:         logger.WithField("component", "app"),
	}
}

func (a *App) State() *session.State {
	return a.state
}

// Start derives the launch action, authenticates, sets up the wallet provider and applies the
// first readiness check. Failures are shown to the user; only a missing wallet configuration
// is returned, and the app stays usable so Connect can retry.
func (a *App) Start(ctx context.Context) error {
	a.view.SetConnectEnabled(false)
	a.view.SetActionEnabled(false)

	a.deriveAction()
	a.authenticate(ctx)

	err := a.setupWallet(ctx)
	if err != nil {
		a.log.Errorf("wallet setup: %v", err)
		a.view.ShowError(a.describe(err))
	}
	a.CheckReadiness(false)
	return err
}

func (a *App) deriveAction() {
	req, err := session.DeriveAction(a.host.StartParam())
	if !a.state.SetAction(req) {
		return
	}
	if err != nil {
		a.log.Warnf("launch action: %v", err)
		a.view.ShowError(a.describe(err))
	}
	a.view.ShowAction(a.actionLabel(req), req.Visible())
}

func (a *App) authenticate(ctx context.Context) {
	raw := a.host.InitData()
	if raw == "" {
		a.log.Warn("no init data, app was not opened from telegram")
		a.view.ShowError(i18n.T(a.loc, "auth.missing"))
		a.view.ShowAuth("")
		return
	}

	a.view.ShowStatus(i18n.T(a.loc, "auth.pending"))
	userID, err := a.backend.ValidateAuth(ctx, raw)
	if err != nil {
		a.log.Errorf("validate auth: %v", err)
		a.view.ShowError(a.describe(apperr.Wrap(apperr.KindAuthentication, "validate auth", err)))
		a.view.ShowAuth("")
		a.host.NotifyHaptic(telegram.HapticError)
		return
	}
	if userID == "" {
		if parsed, err := telegram.ParseInitData(raw); err == nil {
			userID = parsed.UserID()
		}
	}
	if userID == "" {
		userID = unknownUserID
	}

	a.state.Authenticate(userID, raw)
	a.log.Infof("authenticated telegram user %s", userID)
	a.view.ShowStatus(i18n.TWithData(a.loc, "auth.success", map[string]any{"UserID": userID}))
	a.view.ShowAuth(userID)
	a.view.SetConnectEnabled(true)
}

// setupWallet builds the provider once, adopts any session it already holds and starts the
// event loop.
func (a *App) setupWallet(ctx context.Context) error {
	a.walletMu.Lock()
	defer a.walletMu.Unlock()
	if a.wallet != nil {
		return nil
	}

	p, err := a.newProvider(ctx)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Wrap(apperr.KindConfiguration, "set up wallet provider", err)
		}
		return err
	}

	w := wallet.NewSession(p, a.state, a.log.Logger)
	w.OnChange(a.walletChanged)
	if w.Restore(ctx) {
		a.log.Info("wallet session restored")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.runCancel = cancel
	a.runDone = make(chan struct{})
	go func() {
		defer close(a.runDone)
		w.Run(runCtx)
	}()
	a.wallet = w
	return nil
}

func (a *App) walletSession() *wallet.Session {
	a.walletMu.Lock()
	defer a.walletMu.Unlock()
	return a.wallet
}

// Connect asks the wallet to pair. It needs an authenticated session.
func (a *App) Connect(ctx context.Context) error {
	if !a.state.Snapshot().Auth.Authenticated {
		err := apperr.New(apperr.KindAuthentication, "connect wallet", "not authenticated")
		a.view.ShowError(a.describe(err))
		return err
	}
	if err := a.setupWallet(ctx); err != nil {
		a.log.Errorf("wallet setup: %v", err)
		a.view.ShowError(a.describe(err))
		return err
	}

	a.view.ClearMessages()
	a.view.ShowStatus(i18n.T(a.loc, "wallet.connecting"))
	a.view.SetConnectEnabled(false)
	err := a.walletSession().Connect(ctx)
	a.view.SetConnectEnabled(true)
	if err != nil {
		a.log.Warnf("connect wallet: %v", err)
		a.view.ShowError(a.describe(err))
		a.host.NotifyHaptic(telegram.HapticError)
		return err
	}

	w := a.state.Snapshot().Wallet
	a.view.ShowStatus(i18n.TWithData(a.loc, "wallet.connected", map[string]any{
		"Address": w.Address,
		"Network": chain.DisplayName(w.ChainID),
	}))
	return nil
}

func (a *App) Disconnect(ctx context.Context) {
	w := a.walletSession()
	if w == nil {
		return
	}
	w.Disconnect(ctx)
	a.view.ShowStatus(i18n.T(a.loc, "wallet.disconnected"))
}

// Readiness evaluates a fresh snapshot.
func (a *App) Readiness() session.Readiness {
	return session.Evaluate(a.state.Snapshot(), a.opts.SupportedChainID)
}

// CheckReadiness applies the gate to the action control. The control stays disabled while a
// flow is running. suppress hides the wrong-network message.
func (a *App) CheckReadiness(suppress bool) bool {
	r := a.Readiness()
	a.view.SetActionEnabled(r.Ready && !a.inFlight.Load())

	switch {
	case r.Reason == session.ReasonWrongNetwork && !suppress:
		a.view.ShowError(a.describe(mismatchError(r)))
		a.networkErrShown.Store(true)
	case r.Ready && a.networkErrShown.CompareAndSwap(true, false):
		a.view.ClearMessages()
	}

	a.log.WithFields(logrus.Fields{
		"reason":   r.Reason,
		"expected": r.Expected,
		"actual":   r.Actual,
	}).Debug("readiness checked")
	return r.Ready
}

func (a *App) walletChanged() {
	w := a.state.Snapshot().Wallet
	if w.Connected() {
		a.view.ShowWallet(w.Address, chain.DisplayName(w.ChainID))
	} else {
		a.view.ShowWallet("", "")
	}
	a.CheckReadiness(false)
}

// Close stops the event loop and a pending close timer, and waits for transaction log calls.
func (a *App) Close() {
	a.closeMu.Lock()
	if a.closeTimer != nil {
		a.closeTimer.Stop()
	}
	a.closeMu.Unlock()

	a.walletMu.Lock()
	cancel, done := a.runCancel, a.runDone
	a.walletMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	a.logWG.Wait()
}

func (a *App) actionLabel(req session.ActionRequest) string {
	switch req.Kind {
	case session.ActionMint:
		return i18n.TWithData(a.loc, "action.mint", map[string]any{"Referrer": req.Referrer})
	case session.ActionClaim:
		return i18n.T(a.loc, "action.claim")
	default:
		return ""
	}
}
