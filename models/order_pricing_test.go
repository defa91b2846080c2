package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/needibay/ordersync_backend/models"
	"github.com/needibay/ordersync_backend/utils"
	"github.com/shopspring/decimal"
)

func intPtr(v int) *int { return &v }

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestResolveLinePriceVariantTakesPrecedence(t *testing.T) {
	productPrices := map[int]decimal.Decimal{10: decimal.NewFromInt(100)}
	variantPrices := map[int]decimal.Decimal{7: decimal.NewFromInt(120)}

	price, err := models.ResolveLinePrice(productPrices, variantPrices, 10, intPtr(7), false)
	if err != nil {
		t.Fatalf("ResolveLinePrice: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected variant price 120, got %s", price)
	}
}

func TestResolveLinePriceMissingVariantFallsBackToProduct(t *testing.T) {
	productPrices := map[int]decimal.Decimal{10: decimal.NewFromInt(100)}
	variantPrices := map[int]decimal.Decimal{}

	price, err := models.ResolveLinePrice(productPrices, variantPrices, 10, intPtr(99), false)
	if err != nil {
		t.Fatalf("ResolveLinePrice: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected fallback to product price 100, got %s", price)
	}
}

func TestResolveLinePriceMissingProductDefaultsToZero(t *testing.T) {
	price, err := models.ResolveLinePrice(map[int]decimal.Decimal{}, map[int]decimal.Decimal{}, 42, nil, false)
	if err != nil {
		t.Fatalf("ResolveLinePrice: %v", err)
	}
	if !price.IsZero() {
		t.Fatalf("expected zero for missing product, got %s", price)
	}
}

func TestResolveLinePriceStrictModeRejectsMissingPrices(t *testing.T) {
	_, err := models.ResolveLinePrice(map[int]decimal.Decimal{}, map[int]decimal.Decimal{}, 42, nil, true)
	if !errors.Is(err, utils.ErrPriceNotResolvable) {
		t.Fatalf("expected ErrPriceNotResolvable for product, got %v", err)
	}

	// Strict mode only fires when both lookups miss; a missing variant with a
	// priced base product resolves through the fallback.
	price, err := models.ResolveLinePrice(map[int]decimal.Decimal{42: decimal.NewFromInt(10)}, map[int]decimal.Decimal{}, 42, intPtr(5), true)
	if err != nil {
		t.Fatalf("expected fallback to satisfy strict mode, got %v", err)
	}
	if !price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected product price 10, got %s", price)
	}

	_, err = models.ResolveLinePrice(map[int]decimal.Decimal{}, map[int]decimal.Decimal{}, 42, intPtr(5), true)
	if !errors.Is(err, utils.ErrPriceNotResolvable) {
		t.Fatalf("expected ErrPriceNotResolvable when both lookups miss, got %v", err)
	}
}

func TestPriceOrderItemsTotalsLines(t *testing.T) {
	productPrices := map[int]decimal.Decimal{1: decimal.NewFromInt(100)}
	items := []models.NewOrderItem{{ProductId: 1, Quantity: 2}}

	priced, total, err := models.PriceOrderItems(items, productPrices, nil, false)
	if err != nil {
		t.Fatalf("PriceOrderItems: %v", err)
	}
	if len(priced) != 1 {
		t.Fatalf("expected 1 priced line, got %d", len(priced))
	}
	if !priced[0].LineTotal.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected line total 200, got %s", priced[0].LineTotal)
	}
	if !total.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected order total 200, got %s", total)
	}
}

func TestPriceOrderItemsMixedLines(t *testing.T) {
	productPrices := map[int]decimal.Decimal{
		1: decimal.NewFromFloat(49.50),
		2: decimal.NewFromInt(10),
	}
	variantPrices := map[int]decimal.Decimal{7: decimal.NewFromInt(55)}
	items := []models.NewOrderItem{
		{ProductId: 1, Quantity: 2},                    // 99.00
		{ProductId: 1, VariantId: intPtr(7), Quantity: 1}, // 55.00, variant wins
		{ProductId: 3, Quantity: 4},                    // unpriced, 0
	}

	_, total, err := models.PriceOrderItems(items, productPrices, variantPrices, false)
	if err != nil {
		t.Fatalf("PriceOrderItems: %v", err)
	}
	if !total.Equal(decimal.NewFromFloat(154.00)) {
		t.Fatalf("expected total 154.00, got %s", total)
	}
}

func TestBuildPartialPaymentComputesRemaining(t *testing.T) {
	payment, err := models.BuildPartialPayment(decimal.NewFromInt(200), &models.NewPartialPayment{
		InitialAmount: decimal.NewFromInt(50),
		DueDate:       "2026-09-15",
	})
	if err != nil {
		t.Fatalf("BuildPartialPayment: %v", err)
	}
	if !payment.InitialAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected initial 50, got %s", payment.InitialAmount)
	}
	if !payment.RemainingAmount.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected remaining 150, got %s", payment.RemainingAmount)
	}
	if payment.PaymentStatus != models.PartialPaymentPending {
		t.Fatalf("expected PENDING status, got %s", payment.PaymentStatus)
	}
	if !payment.DueDate.Equal(mustDate(t, "2026-09-15")) {
		t.Fatalf("expected due date 2026-09-15, got %s", payment.DueDate)
	}
}

func TestBuildPartialPaymentRejectsBadDueDate(t *testing.T) {
	_, err := models.BuildPartialPayment(decimal.NewFromInt(200), &models.NewPartialPayment{
		InitialAmount: decimal.NewFromInt(50),
		DueDate:       "next tuesday",
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error for unparseable due date, got %v", err)
	}
}

func TestQuantityDispatchedInRangeRejectsInvertedRange(t *testing.T) {
	start := mustDate(t, "2024-03-10")
	end := mustDate(t, "2024-03-01")

	ctx := context.Background()
	_, err := models.QuantityDispatchedInRange(ctx, 1, 1, start, end)
	if !errors.Is(err, utils.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}

	_, err = models.TotalValueForDistributor(ctx, 1, start, end)
	if !errors.Is(err, utils.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
}
