package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/food-hunger/api/internal/domain"
	"github.com/food-hunger/api/internal/payments"
	"github.com/food-hunger/api/internal/repositories"
)

const paymentEventRefunded = "payment.refunded"

// defaultPrepWindow is the delivery estimate applied when no preparation
// window is configured.
const defaultPrepWindow = 45 * time.Minute

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrAlreadyPaid indicates the order already carries a successful charge.
	ErrAlreadyPaid = errors.New("payment: order already paid")
	// ErrPaymentNotSucceeded indicates the gateway does not report a successful charge.
	ErrPaymentNotSucceeded = errors.New("payment: not succeeded")
	// ErrNotPaid indicates the operation requires a paid order.
	ErrNotPaid = errors.New("payment: order not paid")
	// ErrNoPaymentIntent indicates no payment intent exists for the order.
	ErrNoPaymentIntent = errors.New("payment: no payment intent")
	// ErrGatewayUnavailable marks transport-level gateway failures distinct from
	// business-rule rejections.
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders         repositories.OrderRepository
	Gateway        payments.Gateway
	Guard          *AccessGuard
	Clock          func() time.Time
	Events         OrderEventPublisher
	Logger         func(ctx context.Context, event string, fields map[string]any)
	GatewayTimeout time.Duration
	PrepWindow     time.Duration
}

type paymentService struct {
	orders         repositories.OrderRepository
	gateway        payments.Gateway
	guard          *AccessGuard
	clock          func() time.Time
	events         OrderEventPublisher
	logger         func(context.Context, string, map[string]any)
	gatewayTimeout time.Duration
	prepWindow     time.Duration
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}

	guard := deps.Guard
	if guard == nil {
		guard = NewAccessGuard()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	prepWindow := deps.PrepWindow
	if prepWindow <= 0 {
		prepWindow = defaultPrepWindow
	}

	return &paymentService{
		orders:  deps.Orders,
		gateway: deps.Gateway,
		guard:   guard,
		clock: func() time.Time {
			return clock().UTC()
		},
		events:         deps.Events,
		logger:         logger,
		gatewayTimeout: deps.GatewayTimeout,
		prepWindow:     prepWindow,
	}, nil
}

// CreateIntent opens a payment intent for the order total, reusing the stored
// intent when one exists so an order never accumulates multiple intents.
func (s *paymentService) CreateIntent(ctx context.Context, orderID string, actor Actor) (PaymentIntentResult, error) {
	order, err := s.loadGuardedOrder(ctx, orderID, actor)
	if err != nil {
		return PaymentIntentResult{}, err
	}

	if order.PaymentStatus == domain.PaymentStatusPaid {
		return PaymentIntentResult{}, fmt.Errorf("%w: order %s", ErrAlreadyPaid, order.ID)
	}

	if order.PaymentIntentID != "" {
		intent, err := s.getIntent(ctx, order.PaymentIntentID)
		if err != nil {
			return PaymentIntentResult{}, err
		}
		return intentResult(order.ID, intent), nil
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	defer cancel()

	intent, err := s.gateway.CreateIntent(gwCtx, payments.CreateIntentRequest{
		OrderID:        order.ID,
		Amount:         order.Total,
		Currency:       order.Currency,
		CustomerEmail:  order.CustomerEmail,
		IdempotencyKey: order.ID + "-intent",
		Metadata: map[string]string{
			"orderId":      order.ID,
			"restaurantId": order.RestaurantID,
			"userId":       order.UserID,
		},
	})
	if err != nil {
		return PaymentIntentResult{}, s.mapGatewayError("create intent", err)
	}

	now := s.now()
	updated, err := s.orders.Mutate(ctx, order.ID, func(current domain.Order) (domain.Order, error) {
		if current.PaymentIntentID != "" {
			return current, nil
		}
		current.PaymentIntentID = intent.ID
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		return PaymentIntentResult{}, s.mapRepositoryError(err)
	}

	// A concurrent request may have won the race; surface the stored intent.
	if updated.PaymentIntentID != intent.ID {
		stored, err := s.getIntent(ctx, updated.PaymentIntentID)
		if err != nil {
			return PaymentIntentResult{}, err
		}
		return intentResult(updated.ID, stored), nil
	}

	return intentResult(updated.ID, intent), nil
}

// ConfirmPayment re-queries the gateway for the authoritative status and, on
// success, marks the order paid and confirmed in a single mutation. Confirming
// an already paid order is a no-op success.
func (s *paymentService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error) {
	order, err := s.loadGuardedOrder(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return Order{}, err
	}

	if order.PaymentStatus == domain.PaymentStatusPaid {
		return order, nil
	}
	if order.PaymentIntentID == "" {
		return Order{}, fmt.Errorf("%w: order %s", ErrNoPaymentIntent, order.ID)
	}
	if intentID := strings.TrimSpace(cmd.PaymentIntentID); intentID != "" && intentID != order.PaymentIntentID {
		return Order{}, fmt.Errorf("%w: payment intent mismatch", ErrPaymentInvalidInput)
	}

	intent, err := s.getIntent(ctx, order.PaymentIntentID)
	if err != nil {
		return Order{}, err
	}
	if intent.Status != payments.StatusSucceeded {
		return Order{}, fmt.Errorf("%w: gateway status %q", ErrPaymentNotSucceeded, intent.Status)
	}

	now := s.now()
	var prevStatus domain.OrderStatus
	statusChanged := false

	updated, err := s.orders.Mutate(ctx, order.ID, func(current domain.Order) (domain.Order, error) {
		if current.PaymentStatus == domain.PaymentStatusPaid {
			return current, nil
		}
		prevStatus = current.Status
		current.PaymentStatus = domain.PaymentStatusPaid
		if current.Status == domain.OrderStatusPending {
			current.Status = domain.OrderStatusConfirmed
			eta := now.Add(s.prepWindow)
			current.EstimatedDeliveryTime = &eta
			statusChanged = true
		}
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if statusChanged {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        updated.ID,
			UserID:         updated.UserID,
			RestaurantID:   updated.RestaurantID,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(updated.Status),
			ActorID:        cmd.Actor.UID,
			OccurredAt:     now,
			Metadata: map[string]any{
				"paymentIntentId": updated.PaymentIntentID,
			},
		})
	}

	return updated, nil
}

// PaymentStatus reports the live gateway status when an intent exists,
// otherwise the stored payment status.
func (s *paymentService) PaymentStatus(ctx context.Context, orderID string, actor Actor) (PaymentStatusResult, error) {
	order, err := s.loadGuardedOrder(ctx, orderID, actor)
	if err != nil {
		return PaymentStatusResult{}, err
	}

	result := PaymentStatusResult{
		OrderID:       order.ID,
		OrderStatus:   order.Status,
		PaymentStatus: order.PaymentStatus,
		Amount:        order.Total,
		Currency:      order.Currency,
	}

	if order.PaymentIntentID == "" {
		return result, nil
	}

	intent, err := s.getIntent(ctx, order.PaymentIntentID)
	if err != nil {
		return PaymentStatusResult{}, err
	}

	result.PaymentIntentID = intent.ID
	result.PaymentStatus = paymentStatusFromGateway(intent.Status)
	result.Amount = intent.Amount
	if intent.Currency != "" {
		result.Currency = strings.ToLower(intent.Currency)
	}
	return result, nil
}

// Refund refunds the stored intent and cancels the order.
func (s *paymentService) Refund(ctx context.Context, orderID string, actor Actor) (Order, error) {
	order, err := s.loadGuardedOrder(ctx, orderID, actor)
	if err != nil {
		return Order{}, err
	}

	if order.PaymentStatus != domain.PaymentStatusPaid {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotPaid, order.ID)
	}
	if order.PaymentIntentID == "" {
		return Order{}, fmt.Errorf("%w: order %s", ErrNoPaymentIntent, order.ID)
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	defer cancel()

	if _, err := s.gateway.Refund(gwCtx, payments.RefundRequest{
		IntentID:       order.PaymentIntentID,
		Reason:         "requested_by_customer",
		IdempotencyKey: order.ID + "-refund",
		Metadata: map[string]string{
			"orderId": order.ID,
		},
	}); err != nil {
		return Order{}, s.mapGatewayError("refund", err)
	}

	now := s.now()
	var prevStatus domain.OrderStatus

	updated, err := s.orders.Mutate(ctx, order.ID, func(current domain.Order) (domain.Order, error) {
		prevStatus = current.Status
		current.PaymentStatus = domain.PaymentStatusRefunded
		current.Status = domain.OrderStatusCancelled
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           paymentEventRefunded,
		OrderID:        updated.ID,
		UserID:         updated.UserID,
		RestaurantID:   updated.RestaurantID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		ActorID:        actor.UID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"paymentIntentId": updated.PaymentIntentID,
			"amount":          updated.Total,
		},
	})

	return updated, nil
}

func (s *paymentService) loadGuardedOrder(ctx context.Context, orderID string, actor Actor) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if err := s.guard.RequireOwner(actor, order); err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (s *paymentService) getIntent(ctx context.Context, intentID string) (payments.Intent, error) {
	gwCtx, cancel := s.gatewayContext(ctx)
	defer cancel()

	intent, err := s.gateway.GetIntent(gwCtx, intentID)
	if err != nil {
		return payments.Intent{}, s.mapGatewayError("lookup intent", err)
	}
	return intent, nil
}

func (s *paymentService) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.gatewayTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.gatewayTimeout)
}

func (s *paymentService) mapGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, payments.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
	}
	return fmt.Errorf("payment: %s: %w", op, err)
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *paymentService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *paymentService) now() time.Time {
	return s.clock()
}

func intentResult(orderID string, intent payments.Intent) PaymentIntentResult {
	return PaymentIntentResult{
		OrderID:         orderID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        strings.ToLower(intent.Currency),
	}
}

func paymentStatusFromGateway(status payments.Status) domain.PaymentStatus {
	switch status {
	case payments.StatusSucceeded:
		return domain.PaymentStatusPaid
	case payments.StatusFailed:
		return domain.PaymentStatusFailed
	case payments.StatusRefunded:
		return domain.PaymentStatusRefunded
	default:
		return domain.PaymentStatusPending
	}
}
