// Package apperr holds the error taxonomy surfaced by the mini app.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration is fatal: a required integration credential is missing.
	KindConfiguration
	KindAuthentication
	KindConnection
	KindNetworkMismatch
	KindValidation
	KindPrepare
	KindSigning
	KindOnChainRevert
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindConfiguration:   "configuration",
	KindAuthentication:  "authentication",
	KindConnection:      "connection",
	KindNetworkMismatch: "network_mismatch",
	KindValidation:      "validation",
	KindPrepare:         "prepare",
	KindSigning:         "signing",
	KindOnChainRevert:   "onchain_revert",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error tags an underlying cause with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error of the given kind with a plain message.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Recoverable reports whether the user can fix the condition from inside the app.
// Configuration and authentication failures need a relaunch.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindAuthentication:
		return false
	default:
		return true
	}
}
