// Package server is the reference transaction-preparation backend the mini app talks to.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rnftgateway/internal/chain"
	"rnftgateway/internal/config"
	"rnftgateway/internal/initdata"
	"rnftgateway/internal/notify"
	"rnftgateway/internal/rnft"
	"rnftgateway/internal/telegram"
	"rnftgateway/internal/txlog"
)

const headerRequestID = "X-Request-Id"

type Server struct {
	cfg         *config.AppConfig
	preparer    rnft.Preparer
	store       txlog.Store
	notifier    notify.Notifier
	auth        *initdata.Verifier
	limiter     *ipLimiter
	httpServer  *http.Server
	metrics     *metricsRegistry
	log         *logrus.Entry
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, prep rnft.Preparer, store txlog.Store, notifier notify.Notifier, logger *logrus.Logger) *Server {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	metrics := newMetricsRegistry()

	s := &Server{
		cfg:      cfg,
		preparer: prep,
		store:    store,
		notifier: notifier,
		auth: &initdata.Verifier{
			BotToken: cfg.Telegram.BotToken,
			MaxAge:   cfg.Telegram.InitDataMaxAge,
		},
		limiter: newIPLimiter(cfg.Service.RateLimitRPS, cfg.Service.RateLimitBurst),
		metrics: metrics,
		log:     logger.WithField("component", "server"),
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := prep.(rnft.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/validate_auth", s.handleValidateAuth)
	mux.Handle("/api/prepare_mint", s.auth.Middleware(http.HandlerFunc(s.handlePrepareMint)))
	mux.Handle("/api/prepare_claim", s.auth.Middleware(http.HandlerFunc(s.handlePrepareClaim)))
	mux.HandleFunc("/api/log_txn", s.handleLogTxn)
	mux.Handle("/api/v1/metrics", metrics.handler())
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.Handler(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler wraps routes with request ids, CORS for the web app and the per-client rate limit.
func (s *Server) Handler(routes http.Handler) http.Handler {
	return requestIDMiddleware(corsMiddleware(s.rateLimitMiddleware(routes)))
}

func (s *Server) Start() error {
	s.log.Infof("API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type validateAuthRequest struct {
	InitData string `json:"initData"`
}

type validateAuthResponse struct {
	UserID int64 `json:"user_id"`
}

type prepareMintRequest struct {
	WalletAddress   string `json:"walletAddress"`
	ReferrerAddress string `json:"referrerAddress"`
}

type prepareClaimRequest struct {
	WalletAddress string `json:"walletAddress"`
}

type prepareResponse struct {
	Transaction rnft.Call `json:"transaction"`
}

type logTxnRequest struct {
	TxHash         string `json:"txHash"`
	TxType         string `json:"txType"`
	WalletAddress  string `json:"walletAddress"`
	TelegramUserID string `json:"telegramUserId"`
}

type logTxnResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleValidateAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload validateAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}

	data, err := s.auth.Validate(payload.InitData)
	if err != nil {
		s.metrics.incAuth("rejected")
		s.log.Warnf("validate auth rejected: %v", err)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var userID int64
	if data.User != nil {
		userID = data.User.ID
	}
	s.metrics.incAuth("ok")
	writeJSON(w, http.StatusOK, validateAuthResponse{UserID: userID})
}

func (s *Server) handlePrepareMint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload prepareMintRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if payload.WalletAddress == "" || payload.ReferrerAddress == "" {
		writeError(w, http.StatusBadRequest, "walletAddress and referrerAddress are required")
		return
	}

	call, err := s.preparer.PrepareMint(r.Context(), rnft.MintRequest{
		Wallet:   payload.WalletAddress,
		Referrer: payload.ReferrerAddress,
	})
	s.writePrepared(w, r, "mint", call, err)
}

func (s *Server) handlePrepareClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload prepareClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if payload.WalletAddress == "" {
		writeError(w, http.StatusBadRequest, "walletAddress is required")
		return
	}

	call, err := s.preparer.PrepareClaim(r.Context(), rnft.ClaimRequest{Wallet: payload.WalletAddress})
	s.writePrepared(w, r, "claim", call, err)
}

func (s *Server) writePrepared(w http.ResponseWriter, r *http.Request, action string, call rnft.Call, err error) {
	if err != nil {
		status := prepareStatus(err)
		s.metrics.incPrepare(action, "failed")
		s.log.Warnf("[%s] prepare %s for user %s: %v", r.Header.Get(headerRequestID), action, userFromContext(r.Context()), err)
		writeError(w, status, err.Error())
		return
	}
	s.metrics.incPrepare(action, "ok")
	s.log.Infof("[%s] prepared %s for user %s", r.Header.Get(headerRequestID), action, userFromContext(r.Context()))
	writeJSON(w, http.StatusOK, prepareResponse{Transaction: call})
}

func prepareStatus(err error) int {
	switch {
	case errors.Is(err, rnft.ErrInvalidWallet),
		errors.Is(err, rnft.ErrInvalidReferrer),
		errors.Is(err, rnft.ErrSelfReferral):
		return http.StatusBadRequest
	case errors.Is(err, rnft.ErrNothingToClaim):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func userFromContext(ctx context.Context) string {
	data, ok := initdata.FromContext(ctx)
	if !ok || data.UserID() == "" {
		return "unknown"
	}
	return data.UserID()
}

// handleLogTxn records a submitted transaction once per hash. Repeats answer 200 without
// notifying again.
func (s *Server) handleLogTxn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload logTxnRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := validateLogTxnRequest(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	rec := txlog.Record{
		TxHash:         payload.TxHash,
		TxType:         payload.TxType,
		WalletAddress:  payload.WalletAddress,
		TelegramUserID: payload.TelegramUserID,
		CreatedAt:      time.Now().UTC(),
	}
	inserted, err := s.store.Save(ctx, rec)
	if err != nil {
		s.metrics.incTxLog("failed")
		s.log.Errorf("save tx log %s: %v", payload.TxHash, err)
		writeError(w, http.StatusInternalServerError, "failed to record transaction")
		return
	}
	if !inserted {
		s.metrics.incTxLog("duplicate")
		writeJSON(w, http.StatusOK, logTxnResponse{Status: "duplicate"})
		return
	}

	s.metrics.incTxLog("logged")
	s.log.Infof("%s transaction %s logged for user %s", rec.TxType, rec.TxHash, rec.TelegramUserID)
	if s.cfg.Telegram.NotifyOnLog {
		if err := s.notifier.TxLogged(ctx, rec); err != nil {
			s.log.Warnf("notify user %s: %v", rec.TelegramUserID, err)
		}
	}
	writeJSON(w, http.StatusCreated, logTxnResponse{Status: "logged"})
}

func validateLogTxnRequest(req logTxnRequest) error {
	hash := strings.TrimPrefix(req.TxHash, "0x")
	if len(req.TxHash) != 66 || !strings.HasPrefix(req.TxHash, "0x") || !isHex(hash) {
		return errors.New("txHash must be a 32-byte hex string")
	}
	if req.TxType != "mint" && req.TxType != "claim" {
		return errors.New("txType must be mint or claim")
	}
	if !chain.ValidAddress(req.WalletAddress) {
		return errors.New("walletAddress is invalid")
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status   string `json:"status"`
		ChainID  string `json:"chain_id"`
		RPC      any    `json:"rpc"`
		Database any    `json:"database"`
	}{
		Status:   status,
		ChainID:  s.cfg.Chain.SupportedChainID,
		RPC:      rpcInfo,
		Database: dbInfo,
	}

	code := http.StatusOK
	if !overallHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError answers with {"error": msg}, the shape the mini app reads.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(headerRequestID, id)
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware lets the web app, served from another origin, call the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+telegram.HeaderInitData)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
