// Package backend talks to the transaction-preparation API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"rnftgateway/internal/telegram"
)

type Endpoints struct {
	ValidateAuth string
	PrepareMint  string
	PrepareClaim string
	LogTxn       string
}

// DefaultEndpoints are the paths the production backend serves.
var DefaultEndpoints = Endpoints{
	ValidateAuth: "/validate_auth",
	PrepareMint:  "/api/prepare_mint",
	PrepareClaim: "/api/prepare_claim",
	LogTxn:       "/api/log_txn",
}

// Client handles HTTP requests to the backend. It never retries.
type Client struct {
	http      *http.Client
	baseURL   string
	endpoints Endpoints
}

func NewClient(baseURL string, endpoints Endpoints, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints.withDefaults(),
	}
}

func (e Endpoints) withDefaults() Endpoints {
	if e.ValidateAuth == "" {
		e.ValidateAuth = DefaultEndpoints.ValidateAuth
	}
	if e.PrepareMint == "" {
		e.PrepareMint = DefaultEndpoints.PrepareMint
	}
	if e.PrepareClaim == "" {
		e.PrepareClaim = DefaultEndpoints.PrepareClaim
	}
	if e.LogTxn == "" {
		e.LogTxn = DefaultEndpoints.LogTxn
	}
	return e
}

// Error is a non-2xx answer. Message comes from the JSON "error" field when present.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

var ErrMalformedResponse = errors.New("malformed backend response")

// Transaction is the prepared call the wallet is asked to send. Value may be empty.
type Transaction struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

type validateAuthRequest struct {
	InitData string `json:"initData"`
}

type prepareMintRequest struct {
	WalletAddress   string `json:"walletAddress"`
	ReferrerAddress string `json:"referrerAddress"`
}

type prepareClaimRequest struct {
	WalletAddress string `json:"walletAddress"`
}

type prepareResponse struct {
	Transaction *Transaction `json:"transaction"`
}

// LogTxnRequest records a submitted transaction.
type LogTxnRequest struct {
	TxHash         string `json:"txHash"`
	TxType         string `json:"txType"`
	WalletAddress  string `json:"walletAddress"`
	TelegramUserID string `json:"telegramUserId"`
}

// ValidateAuth exchanges the raw init data for the user id. user_id is accepted as a number or
// a string. The id is empty when the backend sent none, null, false or zero.
func (c *Client) ValidateAuth(ctx context.Context, initData string) (string, error) {
	body, err := c.post(ctx, c.endpoints.ValidateAuth, validateAuthRequest{InitData: initData}, "")
	if err != nil {
		return "", err
	}
	return userID(gjson.GetBytes(body, "user_id")), nil
}

func userID(v gjson.Result) string {
	switch v.Type {
	case gjson.Null, gjson.False:
		return ""
	case gjson.Number:
		if v.Num == 0 {
			return ""
		}
	}
	id := strings.TrimSpace(v.String())
	if id == "0" {
		return ""
	}
	return id
}

func (c *Client) PrepareMint(ctx context.Context, initData, wallet, referrer string) (Transaction, error) {
	return c.prepare(ctx, c.endpoints.PrepareMint, prepareMintRequest{WalletAddress: wallet, ReferrerAddress: referrer}, initData)
}

func (c *Client) PrepareClaim(ctx context.Context, initData, wallet string) (Transaction, error) {
	return c.prepare(ctx, c.endpoints.PrepareClaim, prepareClaimRequest{WalletAddress: wallet}, initData)
}

func (c *Client) LogTxn(ctx context.Context, req LogTxnRequest) error {
	_, err := c.post(ctx, c.endpoints.LogTxn, req, "")
	return err
}

func (c *Client) prepare(ctx context.Context, path string, payload any, initData string) (Transaction, error) {
	body, err := c.post(ctx, path, payload, initData)
	if err != nil {
		return Transaction{}, err
	}
	var resp prepareResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Transaction == nil {
		return Transaction{}, fmt.Errorf("%w: no transaction", ErrMalformedResponse)
	}
	return *resp.Transaction, nil
}

// post sends a JSON body and returns the raw response body of a 2xx answer.
func (c *Client) post(ctx context.Context, path string, payload any, initData string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if initData != "" {
		req.Header.Set(telegram.HeaderInitData, initData)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}
	return body, nil
}
