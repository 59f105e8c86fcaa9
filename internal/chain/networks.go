// Package chain holds chain-id normalization, address checks and the table of known networks.
package chain

import "strings"

type Network struct {
	ID          string
	IDHex       string
	Name        string
	Currency    string
	ExplorerURL string
}

var (
	Ethereum = Network{ID: "1", IDHex: "0x1", Name: "Ethereum", Currency: "ETH", ExplorerURL: "https://etherscan.io"}
	Polygon  = Network{ID: "137", IDHex: "0x89", Name: "Polygon", Currency: "MATIC", ExplorerURL: "https://polygonscan.com"}
	Amoy     = Network{ID: "80002", IDHex: "0x13882", Name: "Polygon Amoy", Currency: "MATIC", ExplorerURL: "https://amoy.polygonscan.com"}
)

var networks = map[string]Network{
	Ethereum.ID: Ethereum,
	Polygon.ID:  Polygon,
	Amoy.ID:     Amoy,
}

// Lookup accepts any representation NormalizeID understands.
func Lookup(id any) (Network, bool) {
	canonical, err := NormalizeID(id)
	if err != nil {
		return Network{}, false
	}
	n, ok := networks[canonical]
	return n, ok
}

// DisplayName falls back to "chain <id>" for networks outside the table.
func DisplayName(id string) string {
	if n, ok := Lookup(id); ok {
		return n.Name
	}
	if id == "" {
		return "unknown"
	}
	return "chain " + id
}

// TxURL links a transaction hash on the network's explorer.
func (n Network) TxURL(hash string) string {
	if n.ExplorerURL == "" || hash == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/tx/" + hash
}
