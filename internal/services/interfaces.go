package services

import (
	"context"
	"time"

	domain "github.com/food-hunger/api/internal/domain"
	"github.com/food-hunger/api/internal/repositories"
)

// Aliases keep handlers decoupled from the persistence-facing domain package.
type (
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	DeliveryAddress    = domain.DeliveryAddress
	MenuItem           = domain.MenuItem
	Pagination         = domain.Pagination
	SystemHealthReport = domain.SystemHealthReport
)

// OrderListFilter mirrors the repository filter used for order queries.
type OrderListFilter = repositories.OrderListFilter

// Actor identifies the authenticated caller for ownership and capability checks.
type Actor struct {
	UID   string
	Email string
	Staff bool
}

// OrderItemInput is the caller-supplied line item before catalog resolution.
type OrderItemInput struct {
	MenuItemID          string
	Quantity            int
	SpecialInstructions string
}

// CreateOrderCommand carries everything required to place a new order.
type CreateOrderCommand struct {
	Actor               Actor
	RestaurantID        string
	Items               []OrderItemInput
	DeliveryAddress     DeliveryAddress
	PaymentMethod       string
	DeliveryTime        *time.Time
	SpecialInstructions string
	CustomerPhone       string
	CustomerEmail       string
}

// OrderStatusTransitionCommand requests a staff-driven status change.
type OrderStatusTransitionCommand struct {
	Actor        Actor
	OrderID      string
	TargetStatus string
}

// CancelOrderCommand requests cancellation by the owner or staff.
type CancelOrderCommand struct {
	Actor   Actor
	OrderID string
	Reason  string
}

// ListUserOrdersCommand narrows the caller's own order history.
type ListUserOrdersCommand struct {
	Actor      Actor
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

// OrderService encapsulates the order lifecycle from creation to cancellation.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error)
	ListUserOrders(ctx context.Context, cmd ListUserOrdersCommand) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// ConfirmPaymentCommand finalises a payment after the client completed the PSP flow.
type ConfirmPaymentCommand struct {
	Actor           Actor
	OrderID         string
	PaymentIntentID string
}

// PaymentIntentResult is returned to the client to drive the PSP checkout.
type PaymentIntentResult struct {
	OrderID         string
	PaymentIntentID string
	ClientSecret    string
	Amount          int64
	Currency        string
}

// PaymentStatusResult reports the authoritative payment state for an order.
type PaymentStatusResult struct {
	OrderID         string
	OrderStatus     domain.OrderStatus
	PaymentStatus   domain.PaymentStatus
	PaymentIntentID string
	Amount          int64
	Currency        string
}

// PaymentService coordinates the PSP intent lifecycle against stored orders.
type PaymentService interface {
	CreateIntent(ctx context.Context, orderID string, actor Actor) (PaymentIntentResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error)
	PaymentStatus(ctx context.Context, orderID string, actor Actor) (PaymentStatusResult, error)
	Refund(ctx context.Context, orderID string, actor Actor) (Order, error)
}

// SystemService exposes operational health surfaces.
type SystemService interface {
	Healthcheck(ctx context.Context) (SystemHealthReport, error)
}
