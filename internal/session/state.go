// Package session holds the mini app's session state and the pure rules evaluated over it:
// the readiness gate and the launch-parameter action derivation.
package session

import "sync"

// AuthState is written once by the authentication exchange and never reset.
type AuthState struct {
	Authenticated  bool
	TelegramUserID string
	RawInitData    string
}

// WalletSession is empty while no wallet is connected.
type WalletSession struct {
	Address   string
	ChainID   string
	HasSigner bool
}

func (w WalletSession) Connected() bool {
	return w.Address != "" && w.HasSigner
}

// Snapshot is a consistent copy of the state, safe to evaluate without locks.
type Snapshot struct {
	Auth   AuthState
	Wallet WalletSession
	Action ActionRequest
}

// State is the single owned session-state value shared by every handler.
type State struct {
	mu            sync.RWMutex
	auth          AuthState
	wallet        WalletSession
	action        ActionRequest
	actionDerived bool
}

func NewState() *State {
	return &State{}
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Auth: s.auth, Wallet: s.wallet, Action: s.action}
}

// Authenticate records a successful exchange. Later calls are ignored.
func (s *State) Authenticate(userID, rawInitData string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auth.Authenticated {
		return false
	}
	s.auth = AuthState{Authenticated: true, TelegramUserID: userID, RawInitData: rawInitData}
	return true
}

// SetAction stores the derived request. Derivation is one-shot, so only the first call sticks.
func (s *State) SetAction(req ActionRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actionDerived {
		return false
	}
	s.actionDerived = true
	s.action = req
	return true
}

func (s *State) SetWallet(w WalletSession) {
	s.mu.Lock()
	s.wallet = w
	s.mu.Unlock()
}

func (s *State) SetChainID(id string) {
	s.mu.Lock()
	s.wallet.ChainID = id
	s.mu.Unlock()
}

func (s *State) ResetWallet() {
	s.SetWallet(WalletSession{})
}
