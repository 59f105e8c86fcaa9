package session

// Reason names the first gating condition that failed, or ReasonReady.
type Reason string

const (
	ReasonReady              Reason = "ready"
	ReasonNotAuthenticated   Reason = "not_authenticated"
	ReasonWalletNotConnected Reason = "wallet_not_connected"
	ReasonWrongNetwork       Reason = "wrong_network"
	ReasonInvalidAction      Reason = "invalid_action"
)

// Readiness is derived on every check and never stored.
type Readiness struct {
	Ready  bool
	Reason Reason
	// Expected and Actual are set for ReasonWrongNetwork.
	Expected string
	Actual   string
}

// Evaluate checks, in order: authentication, wallet connection with a signer, network, and
// action validity. The first failure wins.
func Evaluate(s Snapshot, supportedChainID string) Readiness {
	if !s.Auth.Authenticated {
		return Readiness{Reason: ReasonNotAuthenticated}
	}
	if !s.Wallet.Connected() {
		return Readiness{Reason: ReasonWalletNotConnected}
	}
	if s.Wallet.ChainID != supportedChainID {
		return Readiness{
			Reason:   ReasonWrongNetwork,
			Expected: supportedChainID,
			Actual:   s.Wallet.ChainID,
		}
	}
	if !s.Action.Executable() {
		return Readiness{Reason: ReasonInvalidAction}
	}
	return Readiness{Ready: true, Reason: ReasonReady}
}
