package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/tokenswap/swapd/pkg/crypto"
	"github.com/tokenswap/swapd/pkg/swap"
)

// Server exposes the engine over REST and WebSocket. Mutating endpoints
// accept signed commands only: the caller identity passed to the engine is
// always the recovered signer, never a field the client can forge.
type Server struct {
	engine *swap.Engine
	hub    *Hub
	log    *zap.SugaredLogger
	srv    *http.Server
}

func NewServer(engine *swap.Engine, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		engine: engine,
		hub:    NewHub(log),
		log:    log,
	}
}

// Handler builds the full route table. Also used directly by tests.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/balances/{address}/{asset}", s.handleGetBalance).Methods("GET")
	v1.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	v1.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	v1.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	v1.HandleFunc("/orders/execute", s.handleExecuteOrder).Methods("POST")
	v1.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	v1.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	v1.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")
	v1.HandleFunc("/admin/sweep", s.handleSweep).Methods("POST")
	v1.HandleFunc("/admin/owner", s.handleTransferOwnership).Methods("POST")

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/ws", s.handleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string, allowedOrigins []string) error {
	go s.hub.Run()
	go s.pumpEvents()

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(allowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.log.Infow("api_listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// pumpEvents bridges the engine feed onto WebSocket channels. Every event
// lands on "events"; order events also land on "orders"; transfer and order
// events land on the affected account's channel.
func (s *Server) pumpEvents() {
	for ev := range s.engine.Feed().Subscribe(512) {
		s.hub.BroadcastToChannel("events", ev)

		switch ev.Type {
		case swap.EvOrderCreated:
			s.hub.BroadcastToChannel("orders", ev)
			s.hub.BroadcastToChannel(accountChannel(ev.OrderCreated.Seller), ev)
		case swap.EvOrderCancelled, swap.EvOrderExecuted:
			s.hub.BroadcastToChannel("orders", ev)
			if ev.OrderExecuted != nil {
				s.hub.BroadcastToChannel(accountChannel(ev.OrderExecuted.Buyer), ev)
			}
		case swap.EvTokensDeposited:
			s.hub.BroadcastToChannel(accountChannel(ev.TokensDeposited.User), ev)
		case swap.EvTokensWithdrawn:
			s.hub.BroadcastToChannel(accountChannel(ev.TokensWithdrawn.User), ev)
		case swap.EvEmergencySweep:
			s.hub.BroadcastToChannel(accountChannel(ev.EmergencySweep.Owner), ev)
		}
	}
}

func accountChannel(addr common.Address) string {
	return "account:" + strings.ToLower(addr.Hex())
}

// ==============================
// Query handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !common.IsHexAddress(vars["address"]) {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_identity", "not a hex address: "+vars["address"])
		return
	}
	owner := common.HexToAddress(vars["address"])
	asset := swap.Asset(vars["asset"])

	writeJSON(w, http.StatusOK, BalanceInfo{
		Owner:   owner.Hex(),
		Asset:   string(asset),
		Balance: s.engine.BalanceOf(owner, asset),
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		return
	}
	order, err := s.engine.GetOrder(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderInfo(&order))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var seller *common.Address
	if v := q.Get("seller"); v != "" {
		if !common.IsHexAddress(v) {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_identity", "not a hex address: "+v)
			return
		}
		addr := common.HexToAddress(v)
		seller = &addr
	}
	activeOnly := q.Get("active") == "true"

	orders := s.engine.ListOrders(func(o *swap.Order) bool {
		if seller != nil && o.Seller != *seller {
			return false
		}
		if activeOnly && !o.Active() {
			return false
		}
		return true
	})

	out := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderInfo(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// ==============================
// Signed command handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	seller, ok := s.authenticate(w, crypto.ActionCreateOrder, req.CreateOrderPayload, req.Seller, req.Signature)
	if !ok {
		return
	}

	id, err := s.engine.CreateOrder(seller,
		swap.Asset(req.AssetForSale), req.AmountForSale,
		swap.Asset(req.AssetWanted), req.AmountWanted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateOrderResponse{Status: "created", OrderID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, crypto.ActionCancelOrder, s.engine.CancelOrder)
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, crypto.ActionExecuteOrder, s.engine.ExecuteOrder)
}

func (s *Server) handleOrderAction(w http.ResponseWriter, r *http.Request, action string, op func(common.Address, uint64) error) {
	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	caller, ok := s.authenticate(w, action, req.OrderActionPayload, req.Caller, req.Signature)
	if !ok {
		return
	}
	if err := op(caller, req.OrderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Status: "ok"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, crypto.ActionDeposit, s.engine.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, crypto.ActionWithdraw, s.engine.Withdraw)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, action string, op func(common.Address, swap.Asset, int64) error) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	user, ok := s.authenticate(w, action, req.TransferPayload, req.User, req.Signature)
	if !ok {
		return
	}
	if err := op(user, swap.Asset(req.Asset), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Status: "ok"})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	caller, ok := s.authenticate(w, crypto.ActionSweep, req.SweepPayload, req.Caller, req.Signature)
	if !ok {
		return
	}
	amount, err := s.engine.EmergencySweep(caller, swap.Asset(req.Asset))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Status: "ok", Asset: req.Asset, Amount: amount})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req OwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	caller, ok := s.authenticate(w, crypto.ActionSetOwner, req.OwnershipPayload, req.Caller, req.Signature)
	if !ok {
		return
	}
	if !common.IsHexAddress(req.NewOwner) {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_identity", "not a hex address: "+req.NewOwner)
		return
	}
	if err := s.engine.TransferOwnership(caller, common.HexToAddress(req.NewOwner)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Status: "ok"})
}

// authenticate recovers the signer of a command and checks it matches the
// declared caller. Writes the error response itself on failure.
func (s *Server) authenticate(w http.ResponseWriter, action string, payload interface{}, declared, signature string) (common.Address, bool) {
	if !common.IsHexAddress(declared) {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_identity", "not a hex address: "+declared)
		return common.Address{}, false
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_signature", "signature must be 65 hex-encoded bytes")
		return common.Address{}, false
	}

	// Canonical signing bytes are the JSON of the payload struct alone
	canonical, err := json.Marshal(payload)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_body", err.Error())
		return common.Address{}, false
	}

	recovered, err := crypto.RecoverAddress(crypto.CommandHash(action, canonical), sig)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_signature", err.Error())
		return common.Address{}, false
	}
	if recovered != common.HexToAddress(declared) {
		s.log.Warnw("signature_mismatch", "action", action, "declared", declared, "recovered", recovered.Hex())
		writeErrorMessage(w, http.StatusForbidden, "unauthorized", "signature does not match declared caller")
		return common.Address{}, false
	}
	return recovered, true
}

// ==============================
// Encoding helpers
// ==============================

func orderInfo(o *swap.Order) OrderInfo {
	return OrderInfo{
		ID:            o.ID,
		Seller:        o.Seller.Hex(),
		AssetForSale:  string(o.AssetForSale),
		AmountForSale: o.AmountForSale,
		AssetWanted:   string(o.AssetWanted),
		AmountWanted:  o.AmountWanted,
		Status:        o.Status.String(),
		CreatedAt:     o.CreatedAt,
		ClosedAt:      o.ClosedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeError maps engine errors onto HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, swap.ErrInvalidIdentity):
		status, code = http.StatusBadRequest, "invalid_identity"
	case errors.Is(err, swap.ErrInvalidAsset):
		status, code = http.StatusBadRequest, "invalid_asset"
	case errors.Is(err, swap.ErrSelfSwapNotAllowed):
		status, code = http.StatusBadRequest, "self_swap_not_allowed"
	case errors.Is(err, swap.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, swap.ErrOrderNotFound):
		status, code = http.StatusNotFound, "order_not_found"
	case errors.Is(err, swap.ErrUnauthorized):
		status, code = http.StatusForbidden, "unauthorized"
	case errors.Is(err, swap.ErrInsufficientBalance):
		status, code = http.StatusConflict, "insufficient_balance"
	case errors.Is(err, swap.ErrOrderInactive):
		status, code = http.StatusConflict, "order_inactive"
	case errors.Is(err, swap.ErrOverflow):
		status, code = http.StatusConflict, "overflow"
	case errors.Is(err, swap.ErrGatewayFailure):
		status, code = http.StatusBadGateway, "gateway_failure"
	}

	writeJSON(w, status, ErrorResponse{Error: code, Message: err.Error()})
}
