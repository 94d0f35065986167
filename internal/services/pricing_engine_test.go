package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/food-hunger/api/internal/domain"
)

func newTestPricingEngine(t *testing.T) *PricingEngine {
	t.Helper()
	engine, err := NewPricingEngine(PricingEngineDeps{
		Policy: PricingPolicy{
			TaxRateBps:            800,
			DeliveryFee:           500,
			FreeDeliveryThreshold: 3000,
			Currency:              "usd",
		},
	})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}
	return engine
}

func TestPricingEngineQuoteWaivesDeliveryFee(t *testing.T) {
	engine := newTestPricingEngine(t)

	breakdown, err := engine.Quote(context.Background(), []domain.OrderItem{
		{MenuItemID: "item-1", Quantity: 2, UnitPrice: 1200},
		{MenuItemID: "item-2", Quantity: 1, UnitPrice: 800},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	if breakdown.Subtotal != 3200 {
		t.Fatalf("expected subtotal 3200, got %d", breakdown.Subtotal)
	}
	if breakdown.Tax != 256 {
		t.Fatalf("expected tax 256, got %d", breakdown.Tax)
	}
	if breakdown.DeliveryFee != 0 {
		t.Fatalf("expected waived delivery fee, got %d", breakdown.DeliveryFee)
	}
	if breakdown.Total != 3456 {
		t.Fatalf("expected total 3456, got %d", breakdown.Total)
	}
	if breakdown.Currency != "usd" {
		t.Fatalf("expected currency usd, got %q", breakdown.Currency)
	}
}

func TestPricingEngineQuoteChargesDeliveryFee(t *testing.T) {
	engine := newTestPricingEngine(t)

	breakdown, err := engine.Quote(context.Background(), []domain.OrderItem{
		{MenuItemID: "item-1", Quantity: 1, UnitPrice: 1000},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	if breakdown.Tax != 80 {
		t.Fatalf("expected tax 80, got %d", breakdown.Tax)
	}
	if breakdown.DeliveryFee != 500 {
		t.Fatalf("expected delivery fee 500, got %d", breakdown.DeliveryFee)
	}
	if breakdown.Total != 1580 {
		t.Fatalf("expected total 1580, got %d", breakdown.Total)
	}
}

func TestPricingEngineQuoteChargesFeeAtExactThreshold(t *testing.T) {
	engine := newTestPricingEngine(t)

	// Subtotal equal to the threshold still pays for delivery; the waiver
	// applies only above it.
	breakdown, err := engine.Quote(context.Background(), []domain.OrderItem{
		{MenuItemID: "item-1", Quantity: 1, UnitPrice: 3000},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	if breakdown.DeliveryFee != 500 {
		t.Fatalf("expected delivery fee 500 at subtotal 3000, got %d", breakdown.DeliveryFee)
	}
	if breakdown.Total != 3740 {
		t.Fatalf("expected total 3740, got %d", breakdown.Total)
	}

	breakdown, err = engine.Quote(context.Background(), []domain.OrderItem{
		{MenuItemID: "item-1", Quantity: 1, UnitPrice: 3001},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if breakdown.DeliveryFee != 0 {
		t.Fatalf("expected waived delivery fee at subtotal 3001, got %d", breakdown.DeliveryFee)
	}
}

func TestPricingEngineQuoteRoundsHalfUp(t *testing.T) {
	engine := newTestPricingEngine(t)

	// 131 * 800 / 10000 = 10.48 rounds down; 144 * 800 / 10000 = 11.52 rounds up.
	cases := []struct {
		unitPrice int64
		wantTax   int64
	}{
		{131, 10},
		{144, 12},
		{625, 50},
	}
	for _, tc := range cases {
		breakdown, err := engine.Quote(context.Background(), []domain.OrderItem{
			{MenuItemID: "item", Quantity: 1, UnitPrice: tc.unitPrice},
		})
		if err != nil {
			t.Fatalf("quote %d: %v", tc.unitPrice, err)
		}
		if breakdown.Tax != tc.wantTax {
			t.Fatalf("unit price %d: expected tax %d, got %d", tc.unitPrice, tc.wantTax, breakdown.Tax)
		}
	}
}

func TestPricingEngineQuoteRejectsInvalidItems(t *testing.T) {
	engine := newTestPricingEngine(t)

	if _, err := engine.Quote(context.Background(), nil); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input for empty items, got %v", err)
	}

	_, err := engine.Quote(context.Background(), []domain.OrderItem{
		{MenuItemID: "item", Quantity: 0, UnitPrice: 100},
	})
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}

	_, err = engine.Quote(context.Background(), []domain.OrderItem{
		{MenuItemID: "item", Quantity: 1, UnitPrice: 0},
	})
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input for zero unit price, got %v", err)
	}
}

func TestNewPricingEngineValidatesPolicy(t *testing.T) {
	if _, err := NewPricingEngine(PricingEngineDeps{Policy: PricingPolicy{TaxRateBps: -1, Currency: "usd"}}); err == nil {
		t.Fatalf("expected error for negative tax rate")
	}
	if _, err := NewPricingEngine(PricingEngineDeps{Policy: PricingPolicy{TaxRateBps: 800}}); err == nil {
		t.Fatalf("expected error for missing currency")
	}
}
