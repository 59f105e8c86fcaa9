package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"rnftgateway/internal/wallet"
)

const (
	walletAccount = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	otherAccount  = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	txHash        = "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b"
)

// fakeBridge relays dapp frames to the test, which answers as the wallet.
type fakeBridge struct {
	srv    *httptest.Server
	frames chan wcMessage

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	b := &fakeBridge{frames: make(chan wcMessage, 16)}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wc", r.URL.Query().Get("protocol"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg wcMessage
			if json.Unmarshal(data, &msg) == nil && msg.Type == "pub" {
				b.frames <- msg
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBridge) next(t *testing.T, key []byte) (wcMessage, string) {
	t.Helper()
	select {
	case msg := <-b.frames:
		plain, err := decrypt(msg.Payload, key)
		require.NoError(t, err)
		return msg, string(plain)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame from dapp")
		return wcMessage{}, ""
	}
}

func (b *fakeBridge) publish(t *testing.T, topic string, key []byte, body any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	payload, err := encrypt(raw, key)
	require.NoError(t, err)
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotNil(t, b.conn)
	require.NoError(t, b.conn.WriteMessage(websocket.TextMessage, wcMessage{Topic: topic, Type: "pub", Payload: payload}.marshal()))
}

func (b *fakeBridge) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type paired struct {
	provider *Provider
	bridge   *fakeBridge
	key      []byte
	clientID string
}

func keyFromURI(t *testing.T, uri string) []byte {
	t.Helper()
	idx := strings.Index(uri, "key=")
	require.NotEqual(t, -1, idx, uri)
	key, err := hex.DecodeString(uri[idx+len("key="):])
	require.NoError(t, err)
	return key
}

// pair runs the handshake with the wallet approving walletAccount on chain 137.
func pair(t *testing.T) paired {
	t.Helper()
	bridge := newFakeBridge(t)
	uris := make(chan string, 1)
	p := New(Config{
		BridgeURL:   bridge.srv.URL,
		ChainID:     137,
		Meta:        ClientMeta{Name: "rNFT Gateway"},
		RPCURL:      "http://127.0.0.1:1",
		ReceiptPoll: 10 * time.Millisecond,
		Display: func(uri string, png []byte) error {
			assert.NotEmpty(t, png)
			uris <- uri
			return nil
		},
	}, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Connect(ctx) }()

	uri := <-uris
	assert.True(t, strings.HasPrefix(uri, "wc:"))
	key := keyFromURI(t, uri)

	msg, req := bridge.next(t, key)
	assert.True(t, strings.HasPrefix(uri, "wc:"+msg.Topic+"@1"))
	assert.Equal(t, "wc_sessionRequest", gjson.Get(req, "method").String())
	assert.Equal(t, int64(137), gjson.Get(req, "params.0.chainId").Int())
	assert.True(t, msg.Silent)
	clientID := gjson.Get(req, "params.0.peerId").String()

	bridge.publish(t, clientID, key, map[string]any{
		"id":      gjson.Get(req, "id").Int(),
		"jsonrpc": "2.0",
		"result": map[string]any{
			"approved": true,
			"chainId":  137,
			"accounts": []string{walletAccount},
			"peerId":   "wallet-peer",
			"peerMeta": map[string]any{"name": "Test Wallet"},
		},
	})
	require.NoError(t, <-done)
	return paired{provider: p, bridge: bridge, key: key, clientID: clientID}
}

func TestConnectApproved(t *testing.T) {
	s := pair(t)

	assert.True(t, s.provider.Connected())
	assert.Equal(t, []string{walletAccount}, s.provider.Accounts())
	assert.Equal(t, int64(137), s.provider.ChainID())
}

func TestConnectRejected(t *testing.T) {
	bridge := newFakeBridge(t)
	uris := make(chan string, 1)
	p := New(Config{BridgeURL: bridge.srv.URL, Display: func(uri string, _ []byte) error {
		uris <- uri
		return nil
	}}, quietLogger())

	done := make(chan error, 1)
	go func() { done <- p.Connect(context.Background()) }()

	key := keyFromURI(t, <-uris)
	_, req := bridge.next(t, key)
	bridge.publish(t, gjson.Get(req, "params.0.peerId").String(), key, map[string]any{
		"id":      gjson.Get(req, "id").Int(),
		"jsonrpc": "2.0",
		"result":  map[string]any{"approved": false},
	})

	err := <-done
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
	assert.False(t, p.Connected())
	assert.Nil(t, p.Accounts())
}

func TestConnectCancelled(t *testing.T) {
	bridge := newFakeBridge(t)
	p := New(Config{BridgeURL: bridge.srv.URL}, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := p.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.Connected())
}

func TestSessionUpdateEmitsEvents(t *testing.T) {
	s := pair(t)

	s.bridge.publish(t, s.clientID, s.key, map[string]any{
		"id":      1,
		"jsonrpc": "2.0",
		"method":  "wc_sessionUpdate",
		"params":  []any{map[string]any{"approved": true, "chainId": 1, "accounts": []string{otherAccount}}},
	})

	ev := nextEvent(t, s.provider)
	assert.Equal(t, wallet.EventAccountsChanged, ev.Type)
	assert.Equal(t, []string{otherAccount}, ev.Accounts)
	ev = nextEvent(t, s.provider)
	assert.Equal(t, wallet.EventChainChanged, ev.Type)
	assert.Equal(t, int64(1), ev.ChainID)
	assert.Equal(t, int64(1), s.provider.ChainID())
}

func TestSessionUpdateNotApprovedDisconnects(t *testing.T) {
	s := pair(t)

	s.bridge.publish(t, s.clientID, s.key, map[string]any{
		"id":      2,
		"jsonrpc": "2.0",
		"method":  "wc_sessionUpdate",
		"params":  []any{map[string]any{"approved": false}},
	})

	ev := nextEvent(t, s.provider)
	assert.Equal(t, wallet.EventDisconnect, ev.Type)
	assert.False(t, s.provider.Connected())
}

func TestBridgeLossEmitsDisconnect(t *testing.T) {
	s := pair(t)
	s.bridge.drop()

	ev := nextEvent(t, s.provider)
	assert.Equal(t, wallet.EventDisconnect, ev.Type)
	assert.False(t, s.provider.Connected())
}

func TestSendTransaction(t *testing.T) {
	s := pair(t)
	signer, err := s.provider.Signer(context.Background(), walletAccount)
	require.NoError(t, err)

	type result struct {
		pending wallet.PendingTx
		err     error
	}
	done := make(chan result, 1)
	go func() {
		pending, err := signer.SendTransaction(context.Background(), wallet.TxRequest{
			To:    otherAccount,
			Data:  "0x6a627842",
			Value: big.NewInt(1000),
		})
		done <- result{pending, err}
	}()

	msg, req := s.bridge.next(t, s.key)
	assert.Equal(t, "wallet-peer", msg.Topic)
	assert.False(t, msg.Silent)
	assert.Equal(t, "eth_sendTransaction", gjson.Get(req, "method").String())
	assert.Equal(t, walletAccount, gjson.Get(req, "params.0.from").String())
	assert.Equal(t, "0x3e8", gjson.Get(req, "params.0.value").String())
	assert.Equal(t, "0x6a627842", gjson.Get(req, "params.0.data").String())

	s.bridge.publish(t, s.clientID, s.key, map[string]any{
		"id":      gjson.Get(req, "id").Int(),
		"jsonrpc": "2.0",
		"result":  txHash,
	})

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, txHash, res.pending.Hash())
}

func TestSendTransactionRejected(t *testing.T) {
	s := pair(t)
	signer, err := s.provider.Signer(context.Background(), walletAccount)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := signer.SendTransaction(context.Background(), wallet.TxRequest{To: otherAccount, Data: "0x"})
		done <- err
	}()

	_, req := s.bridge.next(t, s.key)
	s.bridge.publish(t, s.clientID, s.key, map[string]any{
		"id":      gjson.Get(req, "id").Int(),
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": 4001, "message": "User rejected the request."},
	})

	err = <-done
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
	var coded *rpcError
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, 4001, coded.Code)
}

func TestSignerRequiresSessionAccount(t *testing.T) {
	s := pair(t)
	_, err := s.provider.Signer(context.Background(), otherAccount)
	assert.Error(t, err)

	require.NoError(t, s.provider.Disconnect(context.Background()))
	_, err = s.provider.Signer(context.Background(), walletAccount)
	assert.ErrorIs(t, err, wallet.ErrNotConnected)
}

func TestDisconnectNotifiesWallet(t *testing.T) {
	s := pair(t)
	require.NoError(t, s.provider.Disconnect(context.Background()))

	msg, req := s.bridge.next(t, s.key)
	assert.Equal(t, "wallet-peer", msg.Topic)
	assert.Equal(t, "wc_sessionUpdate", gjson.Get(req, "method").String())
	assert.False(t, gjson.Get(req, "params.0.approved").Bool())
	assert.False(t, s.provider.Connected())

	select {
	case ev := <-s.provider.Events():
		t.Fatalf("unexpected event after local disconnect: %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPairingURI(t *testing.T) {
	uri := PairingURI("topic-1", "https://bridge.walletconnect.org", []byte{0xab, 0xcd})
	assert.Equal(t, "wc:topic-1@1?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=abcd", uri)
}

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "wss://bridge.walletconnect.org/?env=go&projectId=abc&protocol=wc&version=1",
		websocketURL("https://bridge.walletconnect.org", "abc"))
	assert.Equal(t, "ws://127.0.0.1:8080/?env=go&protocol=wc&version=1",
		websocketURL("http://127.0.0.1:8080/", ""))
}

func nextEvent(t *testing.T, p *Provider) wallet.Event {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no wallet event")
		return wallet.Event{}
	}
}
