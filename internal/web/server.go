// Package web exposes the ledger as a JSON API with a server-sent-event
// stream of committed account snapshots.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/ledger"
	"github.com/vadiminshakov/papertrade/internal/market"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

const (
	heartbeatInterval = 30 * time.Second
	maxBodyBytes      = 1 << 16
)

type accountLedger interface {
	Buy(ctx context.Context, assetID string, amount, price decimal.Decimal) (domain.Transaction, error)
	Sell(ctx context.Context, assetID string, amount, price decimal.Decimal) (domain.Transaction, error)
	AddFunds(ctx context.Context, amount decimal.Decimal) (domain.Transaction, error)
	WithdrawFunds(ctx context.Context, amount decimal.Decimal) (domain.Transaction, error)
	Quote(ctx context.Context, assetID string) (decimal.Decimal, error)
	ValuateAccount(ctx context.Context, account *domain.Account) domain.Valuation
	Account() *domain.Account
	Pending() (ledger.PendingChange, bool)
	Retry(ctx context.Context) (domain.Transaction, error)
	Discard() (domain.Transaction, bool)
	Transactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
}

type snapshotSource interface {
	Subscribe() chan domain.AccountSnapshot
	Unsubscribe(ch chan domain.AccountSnapshot)
}

// Server exposes HTTP endpoints over one account ledger.
type Server struct {
	Addr      string
	Ledger    accountLedger
	Snapshots snapshotSource
	Catalogue *market.Catalogue
	Logger    *zap.Logger
}

// NewServer creates a new web server instance. snapshots may be nil, in
// which case the stream endpoint is unavailable.
func NewServer(addr string, l accountLedger, snapshots snapshotSource, catalogue *market.Catalogue, logger *zap.Logger) *Server {
	if catalogue == nil {
		catalogue = market.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Ledger: l, Snapshots: snapshots, Catalogue: catalogue, Logger: logger}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /account", s.handleAccount)
	mux.HandleFunc("GET /account/stream", s.handleAccountStream)
	mux.HandleFunc("GET /assets", s.handleAssets)
	mux.HandleFunc("GET /transactions", s.handleTransactions)
	mux.HandleFunc("POST /trades", s.handleTrade)
	mux.HandleFunc("POST /funds", s.handleFunds)
	mux.HandleFunc("POST /pending/retry", s.handleRetry)
	mux.HandleFunc("DELETE /pending", s.handleDiscard)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.Logger.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS serves HTTPS on s.Addr with ACME certificates for
// domains, plus plain HTTP on :80 for HTTP-01 challenges and redirects.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.Logger.Warn("acme http server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.Logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("acme http server", zap.Error(err))
		}
	}()

	s.Logger.Info("https server listening", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type accountResponse struct {
	AccountID      string              `json:"account_id"`
	Balance        decimal.Decimal     `json:"balance"`
	BalanceDisplay string              `json:"balance_display"`
	Holdings       []domain.Holding    `json:"holdings"`
	Valuation      domain.Valuation    `json:"valuation"`
	TotalDisplay   string              `json:"total_display"`
	Pending        *domain.Transaction `json:"pending,omitempty"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account := s.Ledger.Account()
	valuation := s.Ledger.ValuateAccount(r.Context(), account)

	resp := accountResponse{
		AccountID:      account.ID,
		Balance:        account.Balance,
		BalanceDisplay: domain.FormatUSD(account.Balance),
		Holdings:       account.SortedHoldings(),
		Valuation:      valuation,
		TotalDisplay:   domain.FormatUSD(valuation.Total),
	}
	if p, ok := s.Ledger.Pending(); ok {
		tx := p.Transaction
		resp.Pending = &tx
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"assets": s.Catalogue.Assets()})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TransactionFilter{Query: q.Get("q")}

	if raw := q.Get("type"); raw != "" && raw != "all" {
		t, ok := domain.ParseTransactionType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown transaction type %q", raw))
			return
		}
		filter.Type = t
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}

	txs, err := s.Ledger.Transactions(r.Context(), filter)
	if err != nil {
		s.Logger.Error("load transactions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type tradeRequest struct {
	Side    string      `json:"side"`
	AssetID string      `json:"asset_id"`
	Amount  amountField `json:"amount"`
	Price   amountField `json:"price,omitempty"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	side, ok := domain.ParseTransactionType(req.Side)
	if !ok || (side != domain.TransactionBuy && side != domain.TransactionSell) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("side must be buy or sell, got %q", req.Side))
		return
	}
	if req.AssetID == "" {
		s.writeLedgerError(w, errors.Wrap(domain.ErrInvalidAmount, "asset_id is required"))
		return
	}
	assetID := s.Catalogue.Canonical(req.AssetID)

	amount, err := domain.ParseAmount(string(req.Amount))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	var price decimal.Decimal
	if req.Price == "" {
		price, err = s.Ledger.Quote(r.Context(), assetID)
		if err != nil {
			s.Logger.Warn("quote for trade failed", zap.String("asset", assetID), zap.Error(err))
			status := http.StatusBadGateway
			if errors.Is(err, ledger.ErrNoPricer) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
	} else if price, err = domain.ParseAmount(string(req.Price)); err != nil {
		s.writeLedgerError(w, err)
		return
	}

	var tx domain.Transaction
	if side == domain.TransactionBuy {
		tx, err = s.Ledger.Buy(r.Context(), assetID, amount, price)
	} else {
		tx, err = s.Ledger.Sell(r.Context(), assetID, amount, price)
	}
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

type fundsRequest struct {
	Direction string      `json:"direction"`
	Amount    amountField `json:"amount"`
}

func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request) {
	var req fundsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	direction, ok := domain.ParseTransactionType(req.Direction)
	if !ok || (direction != domain.TransactionDeposit && direction != domain.TransactionWithdraw) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("direction must be deposit or withdraw, got %q", req.Direction))
		return
	}

	amount, err := domain.ParseAmount(string(req.Amount))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	var tx domain.Transaction
	if direction == domain.TransactionDeposit {
		tx, err = s.Ledger.AddFunds(r.Context(), amount)
	} else {
		tx, err = s.Ledger.WithdrawFunds(r.Context(), amount)
	}
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.Ledger.Pending(); !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	tx, err := s.Ledger.Retry(r.Context())
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDiscard(w http.ResponseWriter, _ *http.Request) {
	tx, ok := s.Ledger.Discard()
	if !ok {
		writeError(w, http.StatusNotFound, "no pending change")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleAccountStream(w http.ResponseWriter, r *http.Request) {
	if s.Snapshots == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "snapshot stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.Snapshots.Subscribe()
	defer s.Snapshots.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(snapshot domain.AccountSnapshot) error {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "event: account\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return nil
	}

	// the current state first, so readers need no separate GET
	account := s.Ledger.Account()
	if err := send(account.Snapshot(time.Now(), "")); err != nil {
		s.Logger.Error("account stream initial snapshot", zap.Error(err))
		return
	}

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case snapshot, open := <-ch:
			if !open {
				return
			}
			if err := send(snapshot); err != nil {
				s.Logger.Warn("account stream send", zap.Error(err))
			}
		}
	}
}

// writeLedgerError maps ledger error kinds to HTTP statuses.
func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}

	var perr *domain.PersistenceError
	if errors.As(err, &perr) {
		writeJSON(w, status, map[string]any{"error": err.Error(), "transaction": perr.Transaction})
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPendingCommit), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// amountField accepts a decimal either as a JSON string or a bare number
// and keeps its text unchanged.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(domain.ErrInvalidAmount, "amount must be a decimal string or number")
	}
	*a = amountField(n.String())
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
