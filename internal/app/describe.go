package app

import (
	"errors"

	"rnftgateway/internal/apperr"
	"rnftgateway/internal/backend"
	"rnftgateway/internal/chain"
	"rnftgateway/internal/i18n"
	"rnftgateway/internal/session"
	"rnftgateway/internal/wallet"
)

// describe turns err into the one localized line shown to the user.
func (a *App) describe(err error) string {
	switch {
	case errors.Is(err, ErrFlowInProgress):
		return i18n.T(a.loc, "error.busy")
	case errors.Is(err, wallet.ErrUserRejected):
		return i18n.T(a.loc, "error.user_rejected")
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return i18n.TWithData(a.loc, "error.insufficient_funds", map[string]any{"Currency": a.currency()})
	case errors.Is(err, session.ErrInvalidReferrer):
		return i18n.T(a.loc, "error.invalid_referrer")
	case errors.Is(err, session.ErrMissingReferrer):
		return i18n.T(a.loc, "error.missing_referrer")
	case errors.Is(err, session.ErrUnrecognizedAction):
		return i18n.T(a.loc, "error.unknown_action")
	case errors.Is(err, ErrReceiptUnavailable):
		return i18n.TWithData(a.loc, "error.confirmation", map[string]any{"Detail": detail(err)})
	}

	var mismatch *MismatchError
	if errors.As(err, &mismatch) {
		return i18n.TWithData(a.loc, "error.wrong_network", map[string]any{
			"Network":  chain.DisplayName(mismatch.Expected),
			"Expected": mismatch.Expected,
			"Actual":   mismatch.Actual,
		})
	}

	switch apperr.KindOf(err) {
	case apperr.KindConfiguration:
		return i18n.T(a.loc, "error.config")
	case apperr.KindAuthentication:
		return i18n.T(a.loc, "auth.failed")
	case apperr.KindConnection:
		return i18n.TWithData(a.loc, "error.connection", map[string]any{"Detail": detail(err)})
	case apperr.KindPrepare:
		return i18n.TWithData(a.loc, "error.prepare", map[string]any{"Detail": detail(err)})
	case apperr.KindOnChainRevert:
		return i18n.T(a.loc, "error.reverted")
	case apperr.KindSigning:
		return i18n.TWithData(a.loc, "error.signing", map[string]any{"Detail": detail(err)})
	default:
		return i18n.T(a.loc, "error.not_ready")
	}
}

// detail prefers the backend's own message over our wrapping.
func detail(err error) string {
	var be *backend.Error
	if errors.As(err, &be) {
		return be.Message
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Err != nil {
		return ae.Err.Error()
	}
	return err.Error()
}

func (a *App) currency() string {
	if n, ok := chain.Lookup(a.opts.SupportedChainID); ok {
		return n.Currency
	}
	return "ETH"
}
