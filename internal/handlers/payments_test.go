package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/food-hunger/api/internal/domain"
	"github.com/food-hunger/api/internal/platform/auth"
	"github.com/food-hunger/api/internal/services"
)

type stubPaymentService struct {
	createFn  func(context.Context, string, services.Actor) (services.PaymentIntentResult, error)
	confirmFn func(context.Context, services.ConfirmPaymentCommand) (services.Order, error)
	statusFn  func(context.Context, string, services.Actor) (services.PaymentStatusResult, error)
	refundFn  func(context.Context, string, services.Actor) (services.Order, error)
}

func (s *stubPaymentService) CreateIntent(ctx context.Context, orderID string, actor services.Actor) (services.PaymentIntentResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, orderID, actor)
	}
	return services.PaymentIntentResult{}, errors.New("not implemented")
}

func (s *stubPaymentService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubPaymentService) PaymentStatus(ctx context.Context, orderID string, actor services.Actor) (services.PaymentStatusResult, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, orderID, actor)
	}
	return services.PaymentStatusResult{}, errors.New("not implemented")
}

func (s *stubPaymentService) Refund(ctx context.Context, orderID string, actor services.Actor) (services.Order, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, orderID, actor)
	}
	return services.Order{}, errors.New("not implemented")
}

func newPaymentRouter(service services.PaymentService) chi.Router {
	handler := NewPaymentHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)
	return router
}

func TestPaymentHandlersCreateIntentSuccess(t *testing.T) {
	service := &stubPaymentService{
		createFn: func(ctx context.Context, orderID string, actor services.Actor) (services.PaymentIntentResult, error) {
			if orderID != "ord_123" {
				t.Fatalf("expected order id ord_123, got %q", orderID)
			}
			if actor.UID != "user-1" {
				t.Fatalf("expected actor user-1, got %q", actor.UID)
			}
			return services.PaymentIntentResult{
				OrderID:         "ord_123",
				PaymentIntentID: "pi_1",
				ClientSecret:    "pi_1_secret",
				Amount:          3456,
				Currency:        "usd",
			}, nil
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/create-payment-intent", strings.NewReader(`{"orderId":"ord_123"}`))
	req = authedRequest(req, &auth.Identity{UID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp paymentIntentPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.PaymentIntentID != "pi_1" || resp.ClientSecret != "pi_1_secret" || resp.Amount != 3456 {
		t.Fatalf("unexpected intent payload: %#v", resp)
	}
}

func TestPaymentHandlersCreateIntentRequiresOrderID(t *testing.T) {
	router := newPaymentRouter(&stubPaymentService{})

	req := httptest.NewRequest(http.MethodPost, "/payments/create-payment-intent", strings.NewReader(`{"orderId":""}`))
	req = authedRequest(req, &auth.Identity{UID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPaymentHandlersCreateIntentAlreadyPaid(t *testing.T) {
	service := &stubPaymentService{
		createFn: func(ctx context.Context, orderID string, actor services.Actor) (services.PaymentIntentResult, error) {
			return services.PaymentIntentResult{}, services.ErrAlreadyPaid
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/create-payment-intent", strings.NewReader(`{"orderId":"ord_123"}`))
	req = authedRequest(req, &auth.Identity{UID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body: %v", err)
	}
	if resp["error"] != "already_paid" {
		t.Fatalf("expected already_paid, got %v", resp["error"])
	}
}

func TestPaymentHandlersCreateIntentGatewayUnavailable(t *testing.T) {
	service := &stubPaymentService{
		createFn: func(ctx context.Context, orderID string, actor services.Actor) (services.PaymentIntentResult, error) {
			return services.PaymentIntentResult{}, services.ErrGatewayUnavailable
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/create-payment-intent", strings.NewReader(`{"orderId":"ord_123"}`))
	req = authedRequest(req, &auth.Identity{UID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestPaymentHandlersConfirmSuccess(t *testing.T) {
	var captured services.ConfirmPaymentCommand
	service := &stubPaymentService{
		confirmFn: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusConfirmed
			order.PaymentStatus = domain.PaymentStatusPaid
			order.PaymentIntentID = "pi_1"
			return order, nil
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/confirm-payment", strings.NewReader(`{"orderId":"ord_123","paymentIntentId":"pi_1"}`))
	req = authedRequest(req, &auth.Identity{UID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.PaymentIntentID != "pi_1" {
		t.Fatalf("unexpected command: %#v", captured)
	}

	var resp orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "confirmed" || resp.PaymentStatus != "paid" {
		t.Fatalf("unexpected order payload: %#v", resp)
	}
}

func TestPaymentHandlersConfirmNotSucceeded(t *testing.T) {
	service := &stubPaymentService{
		confirmFn: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrPaymentNotSucceeded
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/confirm-payment", strings.NewReader(`{"orderId":"ord_123"}`))
	req = authedRequest(req, &auth.Identity{UID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body: %v", err)
	}
	if resp["error"] != "payment_not_succeeded" {
		t.Fatalf("expected payment_not_succeeded, got %v", resp["error"])
	}
}

func TestPaymentHandlersStatusSuccess(t *testing.T) {
	service := &stubPaymentService{
		statusFn: func(ctx context.Context, orderID string, actor services.Actor) (services.PaymentStatusResult, error) {
			return services.PaymentStatusResult{
				OrderID:         orderID,
				OrderStatus:     domain.OrderStatusConfirmed,
				PaymentStatus:   domain.PaymentStatusPaid,
				PaymentIntentID: "pi_1",
				Amount:          3456,
				Currency:        "usd",
			}, nil
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/payments/status/ord_123", nil)
	req = authedRequest(req, &auth.Identity{UID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp paymentStatusPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.OrderID != "ord_123" || resp.PaymentStatus != "paid" || resp.Amount != 3456 {
		t.Fatalf("unexpected status payload: %#v", resp)
	}
}

func TestPaymentHandlersRefundSuccess(t *testing.T) {
	service := &stubPaymentService{
		refundFn: func(ctx context.Context, orderID string, actor services.Actor) (services.Order, error) {
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			order.PaymentStatus = domain.PaymentStatusRefunded
			return order, nil
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/refund/ord_123", nil)
	req = authedRequest(req, &auth.Identity{UID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.PaymentStatus != "refunded" || resp.Status != "cancelled" {
		t.Fatalf("unexpected order payload: %#v", resp)
	}
}

func TestPaymentHandlersRefundNotPaid(t *testing.T) {
	service := &stubPaymentService{
		refundFn: func(ctx context.Context, orderID string, actor services.Actor) (services.Order, error) {
			return services.Order{}, services.ErrNotPaid
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/refund/ord_123", nil)
	req = authedRequest(req, &auth.Identity{UID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body: %v", err)
	}
	if resp["error"] != "not_paid" {
		t.Fatalf("expected not_paid, got %v", resp["error"])
	}
}

func TestPaymentHandlersUnauthenticated(t *testing.T) {
	router := newPaymentRouter(&stubPaymentService{})

	req := httptest.NewRequest(http.MethodGet, "/payments/status/ord_123", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
