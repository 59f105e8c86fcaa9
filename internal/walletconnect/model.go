package walletconnect

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ClientMeta describes the dapp to the wallet.
type ClientMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

// bridge frame
type wcMessage struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func (m wcMessage) marshal() []byte {
	b, _ := json.Marshal(m)
	return b
}

type rpcRequest struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func newRPCRequest(id int64, method string, params ...any) rpcRequest {
	if params == nil {
		params = []any{}
	}
	return rpcRequest{ID: id, JSONRPC: "2.0", Method: method, Params: params}
}

// silent requests are not pushed as notifications to the wallet app.
func (r rpcRequest) silent() bool {
	return strings.HasPrefix(r.Method, "wc_")
}

type sessionRequestParams struct {
	PeerID   string     `json:"peerId"`
	PeerMeta ClientMeta `json:"peerMeta"`
	ChainID  *int64     `json:"chainId,omitempty"`
}

type sessionUpdateParams struct {
	Approved bool     `json:"approved"`
	ChainID  *int64   `json:"chainId"`
	Accounts []string `json:"accounts"`
}

type sendTxParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// rpcError carries the wallet's JSON-RPC error code so callers can recognize rejections.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

func (e *rpcError) ErrorCode() int {
	return e.Code
}

// websocketURL turns the bridge's https URL into the socket endpoint.
func websocketURL(bridge, projectID string) string {
	u := bridge
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	q := url.Values{}
	q.Set("protocol", "wc")
	q.Set("version", "1")
	q.Set("env", "go")
	if projectID != "" {
		q.Set("projectId", projectID)
	}
	return strings.TrimRight(u, "/") + "/?" + q.Encode()
}
