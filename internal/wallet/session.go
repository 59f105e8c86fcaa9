package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"rnftgateway/internal/apperr"
	"rnftgateway/internal/chain"
	"rnftgateway/internal/session"
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session owns the wallet half of the session state. Connect, Disconnect and provider events
// are applied one at a time; every applied change fires the change hook.
type Session struct {
	provider Provider
	state    *session.State
	log      *logrus.Entry

	opMu sync.Mutex

	mu       sync.RWMutex
	status   Status
	signer   Signer
	onChange func()
}

func NewSession(p Provider, st *session.State, logger *logrus.Logger) *Session {
	return &Session{
		provider: p,
		state:    st,
		log:      logger.WithField("component", "wallet"),
	}
}

// OnChange registers the hook fired after every applied transition.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Signer is nil unless the session is connected.
func (s *Session) Signer() Signer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signer
}

func (s *Session) Provider() Provider {
	return s.provider
}

// Connect runs the provider handshake and acquires a signer for the first account.
// Calling it on a connected session re-syncs accounts and chain from the provider.
func (s *Session) Connect(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer s.notify()

	if s.Status() == StatusConnected {
		return s.syncLocked(ctx)
	}

	s.setStatus(StatusConnecting)
	s.log.Info("connecting wallet")
	if err := s.provider.Connect(ctx); err != nil {
		s.resetLocked()
		return apperr.Wrap(apperr.KindConnection, "connect wallet", Classify(err))
	}
	if err := s.syncLocked(ctx); err != nil {
		s.teardownLocked(ctx)
		return err
	}
	s.log.Infof("wallet connected: %s", s.state.Snapshot().Wallet.Address)
	return nil
}

// Restore adopts a session the provider already holds, e.g. one persisted by the wallet from
// an earlier launch. It reports whether a session was adopted.
func (s *Session) Restore(ctx context.Context) bool {
	if !s.provider.Connected() || len(s.provider.Accounts()) == 0 {
		return false
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer s.notify()

	if err := s.syncLocked(ctx); err != nil {
		s.log.Warnf("restore wallet session: %v", err)
		return false
	}
	s.log.Infof("restored wallet session for %s", s.state.Snapshot().Wallet.Address)
	return true
}

// Disconnect clears local state first, then tears the provider down best effort.
func (s *Session) Disconnect(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer s.notify()
	s.teardownLocked(ctx)
}

// Run applies provider events until ctx is done or the provider closes its channel.
func (s *Session) Run(ctx context.Context) {
	events := s.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent applies one provider event. Last writer wins.
func (s *Session) HandleEvent(ctx context.Context, ev Event) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer s.notify()

	s.log.Debugf("wallet event %s accounts=%v chain=%v", ev.Type, ev.Accounts, ev.ChainID)
	switch ev.Type {
	case EventConnect:
		if ev.ChainID != nil {
			s.applyChainLocked(ev.ChainID)
		}
		if len(ev.Accounts) > 0 {
			if err := s.adoptLocked(ctx, ev.Accounts[0]); err != nil {
				s.log.Warnf("adopt connected account: %v", err)
				s.teardownLocked(ctx)
			}
		}
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			s.log.Info("wallet reported no accounts, disconnecting")
			s.teardownLocked(ctx)
			return
		}
		if err := s.adoptLocked(ctx, ev.Accounts[0]); err != nil {
			s.log.Warnf("switch account: %v", err)
			s.teardownLocked(ctx)
		}
	case EventChainChanged:
		s.applyChainLocked(ev.ChainID)
	case EventDisconnect:
		s.log.Info("wallet disconnected by provider")
		s.teardownLocked(ctx)
	}
}

func (s *Session) syncLocked(ctx context.Context) error {
	accounts := s.provider.Accounts()
	if len(accounts) == 0 {
		s.resetLocked()
		return apperr.Wrap(apperr.KindConnection, "connect wallet", ErrNoAccounts)
	}
	s.applyChainLocked(s.provider.ChainID())
	return s.adoptLocked(ctx, accounts[0])
}

// adoptLocked binds the session to account, re-acquiring the signer when the address changed.
func (s *Session) adoptLocked(ctx context.Context, account string) error {
	address, err := chain.ChecksumAddress(strings.TrimSpace(account))
	if err != nil {
		s.resetLocked()
		return apperr.Wrap(apperr.KindConnection, "adopt account", fmt.Errorf("%w: %q", err, account))
	}

	current := s.state.Snapshot().Wallet
	if s.Status() == StatusConnected && s.Signer() != nil && chain.SameAddress(current.Address, address) {
		return nil
	}

	signer, err := s.provider.Signer(ctx, address)
	if err != nil {
		s.resetLocked()
		return apperr.Wrap(apperr.KindConnection, "acquire signer", Classify(err))
	}

	s.mu.Lock()
	s.signer = signer
	s.status = StatusConnected
	s.mu.Unlock()
	s.state.SetWallet(session.WalletSession{Address: address, ChainID: current.ChainID, HasSigner: true})
	return nil
}

// applyChainLocked stores the normalized id. An id that cannot be normalized is kept as raw
// text so readiness reports it as a wrong network.
func (s *Session) applyChainLocked(raw any) {
	id, err := chain.NormalizeID(raw)
	if err != nil {
		s.log.Warnf("unrecognized chain id %v: %v", raw, err)
		id = ""
		if raw != nil {
			id = strings.TrimSpace(fmt.Sprint(raw))
		}
	}
	s.state.SetChainID(id)
}

func (s *Session) teardownLocked(ctx context.Context) {
	s.resetLocked()
	if !s.provider.Connected() {
		return
	}
	if err := s.provider.Disconnect(ctx); err != nil {
		s.log.Warnf("provider teardown: %v", err)
	}
}

func (s *Session) resetLocked() {
	s.mu.Lock()
	s.status = StatusDisconnected
	s.signer = nil
	s.mu.Unlock()
	s.state.ResetWallet()
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
