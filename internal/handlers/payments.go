package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/food-hunger/api/internal/platform/auth"
	"github.com/food-hunger/api/internal/platform/httpx"
	"github.com/food-hunger/api/internal/services"
)

const maxPaymentBodyBytes = 64 << 10

// PaymentHandlers exposes the payment intent lifecycle endpoints.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs the payment handler group.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: payments}
}

// Routes mounts the payment endpoints. Every route requires an authenticated caller.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/create-payment-intent", h.createIntent)
	r.Post("/confirm-payment", h.confirm)
	r.Get("/status/{orderID}", h.status)
	r.Post("/refund/{orderID}", h.refund)
}

type createPaymentIntentRequest struct {
	OrderID string `json:"orderId"`
}

type confirmPaymentRequest struct {
	OrderID         string `json:"orderId"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
}

type paymentIntentPayload struct {
	OrderID         string `json:"orderId"`
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type paymentStatusPayload struct {
	OrderID         string `json:"orderId"`
	OrderStatus     string `json:"orderStatus"`
	PaymentStatus   string `json:"paymentStatus"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(w, r)
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodyBytes)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req createPaymentIntentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}

	result, err := h.payments.CreateIntent(r.Context(), orderID, actor)
	if err != nil {
		writePaymentError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentIntentPayload{
		OrderID:         result.OrderID,
		PaymentIntentID: result.PaymentIntentID,
		ClientSecret:    result.ClientSecret,
		Amount:          result.Amount,
		Currency:        result.Currency,
	})
}

func (h *PaymentHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(w, r)
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodyBytes)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req confirmPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}

	order, err := h.payments.ConfirmPayment(r.Context(), services.ConfirmPaymentCommand{
		Actor:           actor,
		OrderID:         orderID,
		PaymentIntentID: strings.TrimSpace(req.PaymentIntentID),
	})
	if err != nil {
		writePaymentError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

func (h *PaymentHandlers) status(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(w, r)
		return
	}

	result, err := h.payments.PaymentStatus(r.Context(), chi.URLParam(r, "orderID"), actor)
	if err != nil {
		writePaymentError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentStatusPayload{
		OrderID:         result.OrderID,
		OrderStatus:     string(result.OrderStatus),
		PaymentStatus:   string(result.PaymentStatus),
		PaymentIntentID: result.PaymentIntentID,
		Amount:          result.Amount,
		Currency:        result.Currency,
	})
}

func (h *PaymentHandlers) refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(w, r)
		return
	}

	order, err := h.payments.Refund(r.Context(), chi.URLParam(r, "orderID"), actor)
	if err != nil {
		writePaymentError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

func writePaymentError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "you do not have access to this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("already_paid", "order is already paid", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotSucceeded):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_succeeded", "payment has not succeeded yet", http.StatusBadRequest))
	case errors.Is(err, services.ErrNotPaid):
		httpx.WriteError(ctx, w, httpx.NewError("not_paid", "order has no successful payment to refund", http.StatusBadRequest))
	case errors.Is(err, services.ErrNoPaymentIntent):
		httpx.WriteError(ctx, w, httpx.NewError("no_payment_intent", "no payment intent exists for this order", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment provider is temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order was modified concurrently", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
