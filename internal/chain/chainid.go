package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

var (
	ErrEmptyChainID   = errors.New("chain id is empty")
	ErrInvalidChainID = errors.New("invalid chain id")
)

const caip2Prefix = "eip155:"

// NormalizeID turns any chain id representation a wallet may report ("0x89", 137, "137",
// "eip155:137") into its canonical decimal string. Applying it to its own output is a no-op.
func NormalizeID(v any) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", ErrEmptyChainID
	case string:
		return normalizeString(id)
	case json.Number:
		return normalizeString(id.String())
	case int:
		return fromInt64(int64(id))
	case int32:
		return fromInt64(int64(id))
	case int64:
		return fromInt64(id)
	case uint:
		return strconv.FormatUint(uint64(id), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(id), 10), nil
	case uint64:
		return strconv.FormatUint(id, 10), nil
	case float64:
		if math.IsNaN(id) || math.IsInf(id, 0) || id < 0 || id != math.Trunc(id) {
			return "", fmt.Errorf("%w: %v", ErrInvalidChainID, id)
		}
		return strconv.FormatFloat(id, 'f', 0, 64), nil
	case *big.Int:
		if id == nil {
			return "", ErrEmptyChainID
		}
		if id.Sign() < 0 {
			return "", fmt.Errorf("%w: %s", ErrInvalidChainID, id)
		}
		return id.String(), nil
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidChainID, v)
	}
}

func fromInt64(n int64) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidChainID, n)
	}
	return strconv.FormatInt(n, 10), nil
}

func normalizeString(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyChainID
	}
	s = strings.TrimPrefix(s, caip2Prefix)

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	if s == "" || strings.ContainsAny(s, "+-") {
		return "", fmt.Errorf("%w: %q", ErrInvalidChainID, raw)
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidChainID, raw)
	}
	return n.String(), nil
}

// HexID renders a canonical decimal id the way wallets expect it in wallet_switchEthereumChain.
func HexID(id string) (string, error) {
	canonical, err := NormalizeID(id)
	if err != nil {
		return "", err
	}
	n, _ := new(big.Int).SetString(canonical, 10)
	return "0x" + n.Text(16), nil
}
