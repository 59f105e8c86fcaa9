// Package walletconnect is a WalletConnect v1 bridge client that plugs into the wallet session
// as a wallet.Provider.
package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"

	"rnftgateway/internal/chain"
	"rnftgateway/internal/wallet"
)

var (
	ErrSessionClosed      = errors.New("walletconnect session closed")
	ErrConnectInProgress  = errors.New("walletconnect handshake already running")
	ErrUnexpectedResponse = errors.New("unexpected walletconnect response")
)

// DisplayFunc shows the pairing URI to the user, usually as the QR code png.
type DisplayFunc func(uri string, png []byte) error

type Config struct {
	BridgeURL string
	ProjectID string
	Meta      ClientMeta
	// ChainID is requested from the wallet at pairing time; the wallet may answer with another.
	ChainID int64
	// RPCURL serves receipts for transactions the wallet broadcast.
	RPCURL      string
	ReceiptPoll time.Duration
	Display     DisplayFunc
}

// Provider keeps one bridge socket per session. Wallet-initiated session updates arrive on
// Events.
type Provider struct {
	cfg    Config
	log    *logrus.Entry
	dialer websocket.Dialer
	events chan wallet.Event

	handshaking atomic.Bool
	nextID      *atomic.Int64
	writeMu     sync.Mutex

	mu        sync.RWMutex
	conn      *websocket.Conn
	key       []byte
	clientID  string
	peerID    string
	accounts  []string
	chainID   int64
	connected bool
	closing   bool
	pending   map[int64]chan string

	receiptMu sync.Mutex
	receipts  *ethclient.Client
}

func New(cfg Config, logger *logrus.Logger) *Provider {
	return &Provider{
		cfg:     cfg,
		log:     logger.WithField("component", "walletconnect"),
		events:  make(chan wallet.Event, 64),
		nextID:  atomic.NewInt64(time.Now().UnixMilli() * 1000),
		pending: make(map[int64]chan string),
	}
}

// PairingURI renders the wc: URI the wallet scans.
func PairingURI(topic, bridge string, key []byte) string {
	return fmt.Sprintf("wc:%s@1?bridge=%s&key=%s", topic, url.QueryEscape(bridge), hex.EncodeToString(key))
}

// PairingQR encodes uri as a 256px png.
func PairingQR(uri string) ([]byte, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode pairing qr: %w", err)
	}
	return png, nil
}

// Connect pairs with a wallet over the bridge and blocks until the user approves or rejects.
func (p *Provider) Connect(ctx context.Context) error {
	if p.Connected() {
		return nil
	}
	if !p.handshaking.CompareAndSwap(false, true) {
		return ErrConnectInProgress
	}
	defer p.handshaking.Store(false)

	key, err := randomBytes(32)
	if err != nil {
		return fmt.Errorf("generate session key: %w", err)
	}
	clientID := uuid.NewString()
	handshakeTopic := uuid.NewString()

	conn, _, err := p.dialer.DialContext(ctx, websocketURL(p.cfg.BridgeURL, p.cfg.ProjectID), nil)
	if err != nil {
		return fmt.Errorf("dial walletconnect bridge: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.key = key
	p.clientID = clientID
	p.peerID = ""
	p.closing = false
	p.mu.Unlock()

	go p.readLoop(conn)

	if err := p.write(wcMessage{Topic: clientID, Type: "sub", Silent: true}); err != nil {
		p.closeConn()
		return err
	}

	params := sessionRequestParams{PeerID: clientID, PeerMeta: p.cfg.Meta}
	if p.cfg.ChainID != 0 {
		id := p.cfg.ChainID
		params.ChainID = &id
	}
	req := newRPCRequest(p.nextID.Inc(), "wc_sessionRequest", params)
	respCh, err := p.send(handshakeTopic, req)
	if err != nil {
		p.closeConn()
		return err
	}
	defer p.forget(req.ID)

	uri := PairingURI(handshakeTopic, p.cfg.BridgeURL, key)
	p.log.Debugf("pairing uri: %s", uri)
	if p.cfg.Display != nil {
		png, err := PairingQR(uri)
		if err != nil {
			p.closeConn()
			return err
		}
		if err := p.cfg.Display(uri, png); err != nil {
			p.closeConn()
			return fmt.Errorf("display pairing uri: %w", err)
		}
	}

	resp, err := p.await(ctx, respCh)
	if err != nil {
		p.closeConn()
		return err
	}
	if err := responseError(resp); err != nil {
		p.closeConn()
		return err
	}

	result := gjson.Get(resp, "result")
	if !result.Get("approved").Bool() {
		p.closeConn()
		return wallet.ErrUserRejected
	}
	accounts := stringArray(result.Get("accounts"))
	if len(accounts) == 0 {
		p.closeConn()
		return wallet.ErrNoAccounts
	}

	p.mu.Lock()
	p.peerID = result.Get("peerId").String()
	p.accounts = accounts
	p.chainID = result.Get("chainId").Int()
	p.connected = true
	p.mu.Unlock()
	p.log.Infof("session approved by %s", result.Get("peerMeta.name").String())
	return nil
}

// Disconnect tells the wallet the session is over and closes the socket.
func (p *Provider) Disconnect(context.Context) error {
	p.mu.Lock()
	peer, connected := p.peerID, p.connected
	p.connected = false
	p.closing = true
	p.mu.Unlock()

	var err error
	if connected && peer != "" {
		req := newRPCRequest(p.nextID.Inc(), "wc_sessionUpdate", sessionUpdateParams{Approved: false})
		_, err = p.send(peer, req)
		p.forget(req.ID)
	}
	p.closeConn()
	return err
}

func (p *Provider) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Provider) Accounts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected {
		return nil
	}
	return append([]string(nil), p.accounts...)
}

func (p *Provider) ChainID() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.chainID == 0 {
		return nil
	}
	return p.chainID
}

func (p *Provider) Events() <-chan wallet.Event {
	return p.events
}

func (p *Provider) Signer(_ context.Context, address string) (wallet.Signer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected {
		return nil, wallet.ErrNotConnected
	}
	for _, a := range p.accounts {
		if chain.SameAddress(a, address) {
			return &signer{provider: p, address: address}, nil
		}
	}
	return nil, fmt.Errorf("account %s is not part of the session", address)
}

type signer struct {
	provider *Provider
	address  string
}

func (s *signer) Address() string {
	return s.address
}

// SendTransaction forwards the call as eth_sendTransaction; the wallet picks gas and nonce.
func (s *signer) SendTransaction(ctx context.Context, tx wallet.TxRequest) (wallet.PendingTx, error) {
	p := s.provider
	p.mu.RLock()
	peer, connected := p.peerID, p.connected
	p.mu.RUnlock()
	if !connected {
		return nil, wallet.ErrNotConnected
	}

	value := "0x0"
	if tx.Value != nil {
		value = hexutil.EncodeBig(tx.Value)
	}
	req := newRPCRequest(p.nextID.Inc(), "eth_sendTransaction", sendTxParams{
		From:  s.address,
		To:    tx.To,
		Data:  tx.Data,
		Value: value,
	})
	respCh, err := p.send(peer, req)
	if err != nil {
		return nil, err
	}
	defer p.forget(req.ID)

	resp, err := p.await(ctx, respCh)
	if err != nil {
		return nil, err
	}
	if err := responseError(resp); err != nil {
		return nil, wallet.Classify(err)
	}
	hash := gjson.Get(resp, "result").String()
	if len(hash) != 2+2*common.HashLength {
		return nil, fmt.Errorf("%w: tx hash %q", ErrUnexpectedResponse, hash)
	}

	reader, err := p.receiptReader(ctx)
	if err != nil {
		return nil, err
	}
	return wallet.NewRPCPendingTx(reader, common.HexToHash(hash), p.cfg.ReceiptPoll), nil
}

func (p *Provider) receiptReader(ctx context.Context) (wallet.ReceiptReader, error) {
	p.receiptMu.Lock()
	defer p.receiptMu.Unlock()
	if p.receipts != nil {
		return p.receipts, nil
	}
	if p.cfg.RPCURL == "" {
		return nil, errors.New("no rpc url configured for receipts")
	}
	cli, err := ethclient.DialContext(ctx, p.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	p.receipts = cli
	return cli, nil
}

func (p *Provider) send(topic string, req rpcRequest) (chan string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", req.Method, err)
	}
	p.mu.Lock()
	key := p.key
	ch := make(chan string, 1)
	p.pending[req.ID] = ch
	p.mu.Unlock()

	payload, err := encrypt(body, key)
	if err != nil {
		p.forget(req.ID)
		return nil, err
	}
	if err := p.write(wcMessage{Topic: topic, Type: "pub", Payload: payload, Silent: req.silent()}); err != nil {
		p.forget(req.ID)
		return nil, err
	}
	return ch, nil
}

func (p *Provider) await(ctx context.Context, ch chan string) (string, error) {
	select {
	case resp, ok := <-ch:
		if !ok {
			return "", ErrSessionClosed
		}
		return resp, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Provider) forget(id int64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *Provider) write(msg wcMessage) error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return ErrSessionClosed
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, msg.marshal()); err != nil {
		return fmt.Errorf("write bridge message: %w", err)
	}
	return nil
}

func (p *Provider) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			p.transportClosed(conn, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var msg wcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.log.Warnf("unmarshal bridge message: %v", err)
			continue
		}
		if msg.Type != "pub" {
			continue
		}
		if err := p.write(wcMessage{Topic: msg.Topic, Type: "ack", Silent: true}); err != nil {
			p.log.Debugf("ack: %v", err)
		}

		p.mu.RLock()
		key := p.key
		p.mu.RUnlock()
		plain, err := decrypt(msg.Payload, key)
		if err != nil {
			p.log.Warnf("decrypt bridge payload: %v", err)
			continue
		}
		payload := string(plain)
		if gjson.Get(payload, "method").Exists() {
			p.handleRequest(payload)
			continue
		}
		p.resolve(gjson.Get(payload, "id").Int(), payload)
	}
}

func (p *Provider) resolve(id int64, payload string) {
	p.mu.Lock()
	ch, ok := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()
	if !ok {
		p.log.Debugf("response for unknown request %d", id)
		return
	}
	ch <- payload
}

// handleRequest applies wallet-initiated calls. Only wc_sessionUpdate is meaningful to a dapp.
func (p *Provider) handleRequest(payload string) {
	method := gjson.Get(payload, "method").String()
	if method != "wc_sessionUpdate" {
		p.log.Debugf("ignoring wallet request %s", method)
		return
	}
	update := gjson.Get(payload, "params.0")
	if !update.Get("approved").Bool() {
		p.log.Warnf("session closed by wallet")
		p.mu.Lock()
		p.connected = false
		p.closing = true
		p.mu.Unlock()
		p.emit(wallet.Event{Type: wallet.EventDisconnect})
		p.closeConn()
		return
	}

	accounts := stringArray(update.Get("accounts"))
	chainID := update.Get("chainId").Int()

	p.mu.Lock()
	accountsChanged := update.Get("accounts").Exists() && !sameAccounts(p.accounts, accounts)
	chainChanged := chainID != 0 && chainID != p.chainID
	if accountsChanged {
		p.accounts = accounts
	}
	if chainChanged {
		p.chainID = chainID
	}
	p.mu.Unlock()

	if accountsChanged {
		p.emit(wallet.Event{Type: wallet.EventAccountsChanged, Accounts: accounts})
	}
	if chainChanged {
		p.emit(wallet.Event{Type: wallet.EventChainChanged, ChainID: chainID})
	}
}

func (p *Provider) transportClosed(conn *websocket.Conn, err error) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	wasConnected := p.connected && !p.closing
	p.connected = false
	p.conn = nil
	pending := p.pending
	p.pending = make(map[int64]chan string)
	p.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if wasConnected {
		p.log.Warnf("bridge connection lost: %v", err)
		p.emit(wallet.Event{Type: wallet.EventDisconnect})
	}
}

func (p *Provider) closeConn() {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (p *Provider) emit(ev wallet.Event) {
	p.events <- ev
}

func stringArray(r gjson.Result) []string {
	var out []string
	for _, item := range r.Array() {
		out = append(out, item.String())
	}
	return out
}

func sameAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !chain.SameAddress(a[i], b[i]) {
			return false
		}
	}
	return true
}

func responseError(payload string) error {
	errField := gjson.Get(payload, "error")
	if !errField.Exists() {
		return nil
	}
	return &rpcError{Code: int(errField.Get("code").Int()), Message: errField.Get("message").String()}
}
