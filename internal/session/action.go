package session

import (
	"errors"
	"net/url"
	"strings"

	"rnftgateway/internal/apperr"
	"rnftgateway/internal/chain"
)

type ActionKind string

const (
	ActionNone  ActionKind = ""
	ActionMint  ActionKind = "mint"
	ActionClaim ActionKind = "claim"
)

// ActionRequest is what the launch link asked for. Mint always carries a valid referrer.
type ActionRequest struct {
	Kind     ActionKind
	Referrer string
}

// Executable reports whether the request can gate an execution: a mint with a referrer, or a claim.
func (a ActionRequest) Executable() bool {
	switch a.Kind {
	case ActionMint:
		return a.Referrer != ""
	case ActionClaim:
		return true
	default:
		return false
	}
}

// Visible reports whether the action area should be shown at all.
func (a ActionRequest) Visible() bool {
	return a.Kind != ActionNone
}

const (
	paramAction   = "action"
	paramReferrer = "ref"
)

var (
	ErrInvalidReferrer    = errors.New("invalid referrer address")
	ErrMissingReferrer    = errors.New("mint requires a referrer")
	ErrUnrecognizedAction = errors.New("unrecognized action")
)

// DeriveAction parses the launch start_param. A returned error is a diagnostic to show the user;
// the request is ActionNone whenever an error is returned. An empty blob is ActionNone with no error.
func DeriveAction(startParam string) (ActionRequest, error) {
	// Partial results are kept when some pairs are malformed.
	values, _ := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(startParam), "?"))
	action := values.Get(paramAction)
	ref := values.Get(paramReferrer)

	if ref != "" {
		checksummed, err := chain.ChecksumAddress(ref)
		if err != nil {
			return ActionRequest{}, apperr.Wrap(apperr.KindValidation, "derive action", ErrInvalidReferrer)
		}
		ref = checksummed
	}

	switch action {
	case "":
		if ref == "" {
			return ActionRequest{}, nil
		}
		return ActionRequest{Kind: ActionMint, Referrer: ref}, nil
	case string(ActionMint):
		if ref == "" {
			return ActionRequest{}, apperr.Wrap(apperr.KindValidation, "derive action", ErrMissingReferrer)
		}
		return ActionRequest{Kind: ActionMint, Referrer: ref}, nil
	case string(ActionClaim):
		return ActionRequest{Kind: ActionClaim}, nil
	default:
		return ActionRequest{}, apperr.Wrap(apperr.KindValidation, "derive action", ErrUnrecognizedAction)
	}
}
