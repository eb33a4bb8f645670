package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"sikabot/internal/gateway"
	"sikabot/internal/model"
	"sikabot/internal/repository"
	"sikabot/internal/service"
)

// SignatureHeader is where the gateway puts the HMAC of the raw
// webhook body.
const SignatureHeader = "X-Paystack-Signature"

type Handler struct {
	flows  *service.FlowService
	engine *service.Engine
}

func NewHandler(flows *service.FlowService, engine *service.Engine) *Handler {
	return &Handler{flows: flows, engine: engine}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /flows/purchase", h.StartPurchase)
	mux.HandleFunc("POST /flows/purchase/destination", h.SetDestination)
	mux.HandleFunc("POST /flows/purchase/pay", h.Pay)
	mux.HandleFunc("POST /flows/deposit", h.StartDeposit)
	mux.HandleFunc("POST /flows/deposit/amount", h.SetDepositAmount)

	mux.HandleFunc("POST /payments/verify", h.VerifyPayment)
	mux.HandleFunc("POST /webhooks/paystack", h.Webhook)

	mux.HandleFunc("GET /wallet/balance", h.Balance)
	mux.HandleFunc("GET /wallet/history", h.History)
	mux.HandleFunc("GET /orders", h.ListOrders)
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /catalog/bundles", h.Bundles)
	mux.HandleFunc("GET /catalog/smm", h.SMMServices)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) StartPurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		ItemCode string `json:"item_code"`
	}
	if !h.decode(w, r, &req) || !require(w, req.UserID != "", "user_id is required") {
		return
	}
	sess, err := h.flows.StartPurchase(r.Context(), req.UserID, req.ItemCode)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) SetDestination(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		Destination string `json:"destination"`
	}
	if !h.decode(w, r, &req) || !require(w, req.UserID != "", "user_id is required") {
		return
	}
	sess, err := h.flows.SetDestination(r.Context(), req.UserID, req.Destination)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Method string `json:"method"`
	}
	if !h.decode(w, r, &req) || !require(w, req.UserID != "", "user_id is required") {
		return
	}
	res, err := h.flows.ChoosePaymentMethod(r.Context(), req.UserID, model.PaymentMethod(req.Method))
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) StartDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !h.decode(w, r, &req) || !require(w, req.UserID != "", "user_id is required") {
		return
	}
	sess, err := h.flows.StartDeposit(r.Context(), req.UserID)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) SetDepositAmount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Amount int64  `json:"amount"` // pesewas
	}
	if !h.decode(w, r, &req) || !require(w, req.UserID != "", "user_id is required") {
		return
	}
	res, err := h.flows.SetDepositAmount(r.Context(), req.UserID, model.Pesewas(req.Amount))
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

// VerifyPayment is the manual "I PAID" entry point.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		Reference string `json:"reference"`
	}
	if !h.decode(w, r, &req) || !require(w, req.UserID != "" && req.Reference != "", "user_id and reference are required") {
		return
	}
	err := h.engine.VerifyPayment(r.Context(), req.UserID, req.Reference)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// Webhook always answers 200. A non-2xx would make the gateway retry
// an event we have already decided to drop or have fully processed.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.engine.HandleWebhook(r.Context(), rawBody, r.Header.Get(SignatureHeader)); err != nil {
		slog.Warn("webhook processing ended with error", "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !require(w, userID != "", "user_id is required") {
		return
	}
	balance, err := h.flows.Balance(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"balance":   balance,
		"formatted": balance.Cedis(),
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !require(w, userID != "", "user_id is required") {
		return
	}
	txns, err := h.flows.History(r.Context(), userID, 20)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, txns)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !require(w, userID != "", "user_id is required") {
		return
	}
	orders, err := h.flows.ListOrders(r.Context(), userID, 20)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.flows.FindOrder(r.Context(), r.PathValue("id"))
	if errors.Is(err, repository.ErrOrderNotFound) {
		h.respondError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

func (h *Handler) Bundles(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, model.Bundles)
}

func (h *Handler) SMMServices(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, model.SMMServices)
}

// respondFlowError maps the error taxonomy to a status plus a
// next-action message; a flow never ends in a bare fault.
func (h *Handler) respondFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity,
			"insufficient wallet balance: top up your wallet or pay via the payment link")
	case errors.Is(err, service.ErrSessionExpired):
		h.respondError(w, http.StatusUnprocessableEntity,
			"session expired: start the flow again")
	case errors.Is(err, service.ErrReferenceMismatch):
		h.respondError(w, http.StatusUnprocessableEntity,
			"reference mismatch: check the reference or start the flow again")
	case errors.Is(err, service.ErrAlreadyProcessed):
		h.respondError(w, http.StatusConflict,
			"this payment has already been processed")
	case errors.Is(err, service.ErrWrongStep),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnknownItem),
		errors.Is(err, service.ErrBadPayMethod):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrVerifyFailed):
		h.respondError(w, http.StatusUnprocessableEntity,
			"payment not confirmed yet: complete the payment and try again")
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		h.respondError(w, http.StatusBadGateway,
			"payment provider is unavailable: try again shortly or contact support")
	default:
		h.respondError(w, http.StatusInternalServerError,
			"something went wrong: contact support if money has left your account")
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func require(w http.ResponseWriter, ok bool, message string) bool {
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
	}
	return ok
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
