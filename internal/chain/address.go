package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidAddress = errors.New("invalid address")

// ValidAddress accepts 20-byte hex addresses with or without the 0x prefix. All-lower and
// all-upper hex are taken as is; mixed case must carry a correct EIP-55 checksum.
func ValidAddress(s string) bool {
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(body) != 2*common.AddressLength || !common.IsHexAddress(body) {
		return false
	}
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(body).Hex() == "0x"+body
}

// ChecksumAddress validates s and returns its 0x-prefixed EIP-55 form.
func ChecksumAddress(s string) (string, error) {
	if !ValidAddress(s) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(s).Hex(), nil
}

// SameAddress compares two addresses case-insensitively; empty never matches.
func SameAddress(a, b string) bool {
	return a != "" && b != "" && strings.EqualFold(a, b)
}
