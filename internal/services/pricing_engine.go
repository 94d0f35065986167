package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrPricingInvalidInput signals bad request data such as missing items or negative prices.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

// PricingPolicy holds the static pricing rules applied to every order.
// All monetary values are integer minor units; TaxRateBps is basis points.
type PricingPolicy struct {
	TaxRateBps            int64
	DeliveryFee           int64
	FreeDeliveryThreshold int64
	Currency              string
}

// PriceBreakdown is the computed charge for a set of order items.
type PriceBreakdown struct {
	Currency    string
	Subtotal    int64
	Tax         int64
	DeliveryFee int64
	Total       int64
}

// PricingEngine computes order totals from snapshotted item prices.
type PricingEngine struct {
	policy PricingPolicy
	logger func(context.Context, string, map[string]any)
}

// PricingEngineDeps bundles collaborators required to construct the engine.
type PricingEngineDeps struct {
	Policy PricingPolicy
	Logger func(context.Context, string, map[string]any)
}

// NewPricingEngine validates the policy and returns a ready engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	policy := deps.Policy
	if policy.TaxRateBps < 0 {
		return nil, errors.New("pricing engine: tax rate cannot be negative")
	}
	if policy.DeliveryFee < 0 {
		return nil, errors.New("pricing engine: delivery fee cannot be negative")
	}
	if policy.FreeDeliveryThreshold < 0 {
		return nil, errors.New("pricing engine: free delivery threshold cannot be negative")
	}
	policy.Currency = strings.ToLower(strings.TrimSpace(policy.Currency))
	if policy.Currency == "" {
		return nil, errors.New("pricing engine: currency is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PricingEngine{policy: policy, logger: logger}, nil
}

// Policy returns the configured pricing rules.
func (e *PricingEngine) Policy() PricingPolicy {
	return e.policy
}

// Quote computes the breakdown for the supplied items. Unit prices must be
// positive and quantities at least one; the delivery fee is waived only when
// the subtotal strictly exceeds the free delivery threshold.
func (e *PricingEngine) Quote(ctx context.Context, items []OrderItem) (PriceBreakdown, error) {
	if len(items) == 0 {
		return PriceBreakdown{}, fmt.Errorf("%w: at least one item is required", ErrPricingInvalidInput)
	}

	var subtotal int64
	for _, item := range items {
		if item.Quantity < 1 {
			return PriceBreakdown{}, fmt.Errorf("%w: item %s quantity must be at least 1", ErrPricingInvalidInput, item.MenuItemID)
		}
		if item.UnitPrice <= 0 {
			return PriceBreakdown{}, fmt.Errorf("%w: item %s unit price must be positive", ErrPricingInvalidInput, item.MenuItemID)
		}

		quantity := int64(item.Quantity)
		if item.UnitPrice > math.MaxInt64/quantity {
			return PriceBreakdown{}, fmt.Errorf("%w: item %s subtotal overflow", ErrPricingInvalidInput, item.MenuItemID)
		}
		lineTotal := item.UnitPrice * quantity
		if subtotal > math.MaxInt64-lineTotal {
			return PriceBreakdown{}, fmt.Errorf("%w: order subtotal overflow", ErrPricingInvalidInput)
		}
		subtotal += lineTotal
	}

	tax := roundHalfUpBps(subtotal, e.policy.TaxRateBps)

	deliveryFee := e.policy.DeliveryFee
	if subtotal > e.policy.FreeDeliveryThreshold {
		deliveryFee = 0
	}

	total := subtotal + tax + deliveryFee

	e.logger(ctx, "pricing.quote", map[string]any{
		"subtotal":    subtotal,
		"tax":         tax,
		"deliveryFee": deliveryFee,
		"total":       total,
	})

	return PriceBreakdown{
		Currency:    e.policy.Currency,
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: deliveryFee,
		Total:       total,
	}, nil
}

// roundHalfUpBps applies a basis-point rate with half-up rounding on the
// fractional minor unit.
func roundHalfUpBps(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
