package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus enumerates the fulfillment stages of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order is created but not yet paid.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment succeeded and the restaurant accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the kitchen is working on the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady indicates the order is packed and waiting for a courier.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusOutForDelivery indicates a courier picked up the order.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further fulfillment transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus enumerates the payment states tracked on an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no successful charge exists yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway reported a successful charge.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the last charge attempt failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the charge was refunded in full.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod enumerates how the customer intends to pay.
type PaymentMethod string

const (
	// PaymentMethodCard is a card charge through the payment gateway.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCash is settled on delivery.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodDigitalWallet is a wallet charge through the payment gateway.
	PaymentMethodDigitalWallet PaymentMethod = "digital_wallet"
)

// OrderItem is a single menu item line within an order. UnitPrice is the
// catalog price snapshotted at creation time, in minor currency units, and is
// never re-read afterwards.
type OrderItem struct {
	MenuItemID          string
	Name                string
	Quantity            int
	UnitPrice           int64
	SpecialInstructions string
}

// Total returns the line total in minor units.
func (i OrderItem) Total() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// DeliveryAddress captures where the order should be delivered.
type DeliveryAddress struct {
	Street       string
	City         string
	State        string
	ZipCode      string
	Instructions string
}

// Order is the unit of a customer's purchase from one restaurant. Monetary
// amounts are integer minor units; Total == Subtotal + Tax + DeliveryFee holds
// at all times after creation. Orders are never physically deleted; cancellation
// is a state.
type Order struct {
	ID           string
	UserID       string
	RestaurantID string
	Items        []OrderItem

	Subtotal    int64
	Tax         int64
	DeliveryFee int64
	Total       int64
	Currency    string

	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	PaymentIntentID string

	DeliveryAddress       DeliveryAddress
	DeliveryTime          *time.Time
	EstimatedDeliveryTime *time.Time
	SpecialInstructions   string
	CustomerPhone         string
	CustomerEmail         string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MenuItem is the catalog read model resolved when snapshotting prices.
type MenuItem struct {
	ID           string
	RestaurantID string
	Name         string
	Price        int64
	Available    bool
}

// Restaurant is the catalog read model used to validate order targets.
type Restaurant struct {
	ID       string
	Name     string
	IsActive bool
}
