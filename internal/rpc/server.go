// Package rpc provides a JSON-RPC 2.0 server for the hashield daemon.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/internal/bridge"
	"github.com/madschristensen99/hashield/internal/escrow"
	"github.com/madschristensen99/hashield/internal/funding"
	"github.com/madschristensen99/hashield/internal/keyring"
	"github.com/madschristensen99/hashield/internal/storage"
	"github.com/madschristensen99/hashield/internal/txqueue"
	"github.com/madschristensen99/hashield/pkg/logging"
)

// Deps collects everything the RPC surface exposes. Pool, escrow and
// bridge may be nil when the corresponding subsystem is not configured.
type Deps struct {
	Store   *storage.Storage
	Keys    *keyring.Keyring
	Queue   *txqueue.Queue
	Tracker *txqueue.Tracker
	Pool    *funding.PoolClient
	Escrow  *escrow.Client
	Bridge  *bridge.Client

	ChainID uint64

	// SeedFile is where wallet_import persists the encrypted seed when
	// the caller supplies a password. Empty disables persistence.
	SeedFile string

	// Placeholder is the address handed to dApps when substitution is
	// enabled; the real session address never leaves the daemon.
	Placeholder  common.Address
	Substitution bool
}

// Server is a JSON-RPC 2.0 server.
type Server struct {
	store   *storage.Storage
	keys    *keyring.Keyring
	queue   *txqueue.Queue
	tracker *txqueue.Tracker
	pool    *funding.PoolClient
	escrow  *escrow.Client
	bridge  *bridge.Client

	chainID      uint64
	seedFile     string
	placeholder  common.Address
	substitution bool

	log   *logging.Logger
	wsHub *WSHub

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewServer creates a new JSON-RPC server.
func NewServer(deps *Deps) *Server {
	s := &Server{
		store:        deps.Store,
		keys:         deps.Keys,
		queue:        deps.Queue,
		tracker:      deps.Tracker,
		pool:         deps.Pool,
		escrow:       deps.Escrow,
		bridge:       deps.Bridge,
		chainID:      deps.ChainID,
		seedFile:     deps.SeedFile,
		placeholder:  deps.Placeholder,
		substitution: deps.Substitution,
		log:          logging.GetDefault().Component("rpc"),
		handlers:     make(map[string]Handler),
	}

	s.registerHandlers()

	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	// dApp provider methods
	s.handlers["provider_connect"] = s.providerConnect
	s.handlers["provider_accounts"] = s.providerAccounts
	s.handlers["provider_chainId"] = s.providerChainID
	s.handlers["provider_sendTransaction"] = s.providerSendTransaction
	s.handlers["provider_personalSign"] = s.providerPersonalSign

	// Transaction queue methods
	s.handlers["tx_list"] = s.txList
	s.handlers["tx_approve"] = s.txApprove
	s.handlers["tx_reject"] = s.txReject
	s.handlers["tx_progress"] = s.txProgress

	// Wallet methods
	s.handlers["wallet_generate"] = s.walletGenerate
	s.handlers["wallet_import"] = s.walletImport
	s.handlers["wallet_validateMnemonic"] = s.walletValidateMnemonic
	s.handlers["wallet_info"] = s.walletInfo
	s.handlers["wallet_clear"] = s.walletClear

	// Session methods
	s.handlers["session_list"] = s.sessionList
	s.handlers["session_restore"] = s.sessionRestore

	// Liquidity pool methods
	s.handlers["pool_balance"] = s.poolBalance
	s.handlers["pool_deposit"] = s.poolDeposit
	s.handlers["pool_withdraw"] = s.poolWithdraw

	// Escrow settlement methods
	s.handlers["escrow_create"] = s.escrowCreate
	s.handlers["escrow_withdrawViaRelayer"] = s.escrowWithdrawViaRelayer
	s.handlers["escrow_cancel"] = s.escrowCancel

	// Order and bridge methods
	s.handlers["orders_list"] = s.ordersList
	s.handlers["orders_get"] = s.ordersGet
	s.handlers["bridge_rate"] = s.bridgeRate
	s.handlers["bridge_discover"] = s.bridgeDiscover
	s.handlers["bridge_offers"] = s.bridgeOffers
	s.handlers["bridge_take"] = s.bridgeTake
	s.handlers["bridge_ongoing"] = s.bridgeOngoing
	s.handlers["bridge_past"] = s.bridgePast
	s.handlers["bridge_balances"] = s.bridgeBalances
}

// Start starts the RPC server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	// Initialize WebSocket hub
	s.wsHub = NewWSHub()
	go s.wsHub.Run()

	// Forward queue and progress events to WebSocket subscribers.
	s.queue.OnEvent(func(ev txqueue.Event) {
		s.wsHub.Broadcast(EventType(ev.Type), ev)
	})
	if s.tracker != nil {
		s.tracker.OnUpdate(func(p *txqueue.Progress) {
			s.wsHub.Broadcast(EventTxProgress, p)
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("OPTIONS /{$}", s.handleCORS)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/", s.handleWS)

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeError(w, req.ID, InternalError, err.Error(), nil)
		return
	}

	s.writeResult(w, req.ID, result)
}

// writeResult writes a successful response.
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// handleCORS handles CORS preflight requests.
func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers to all responses. The extension's
// content scripts call from arbitrary page origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
