package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrUserRejected      = errors.New("user rejected the request")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExecutionReverted = errors.New("execution reverted")
	ErrNoAccounts        = errors.New("wallet returned no accounts")
	ErrNotConnected      = errors.New("wallet not connected")
)

// EIP-1193 code for a request the user declined.
const codeUserRejected = 4001

// Classify maps provider and node errors onto the package sentinels, keeping the original
// error in the chain. Errors it does not recognize are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrUserRejected, ErrInsufficientFunds, ErrExecutionReverted} {
		if errors.Is(err, known) {
			return err
		}
	}

	var coded rpc.Error
	if errors.As(err, &coded) && coded.ErrorCode() == codeUserRejected {
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "user denied"),
		strings.Contains(msg, "action_rejected"),
		strings.Contains(msg, "rejected by user"):
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case strings.Contains(msg, "execution reverted"),
		strings.Contains(msg, "call_exception"):
		return fmt.Errorf("%w: %w", ErrExecutionReverted, err)
	}
	return err
}
