package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/needibay/ordersync_backend/models"
	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func sampleMailView() *models.OrderMailView {
	deliveryDate := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	return &models.OrderMailView{
		Order: models.Order{
			ID:           42,
			DeliveryDate: &deliveryDate,
			DeliverySlot: "11AM - 2PM",
			PaymentTerm:  models.PaymentTermFull,
			TotalAmount:  decimal.NewFromInt(200),
		},
		ShopkeeperName:  "Gupta General Store",
		ShopkeeperEmail: strPtr("shop@example.com"),
		SalesName:       "Ravi",
		SalesEmail:      "ravi@example.com",
		DistName:        "Metro Distribution",
		DistEmail:       "dist@example.com",
		Lines: []models.OrderMailLine{
			{
				ProductId:   1,
				ProductName: "Sunrise Tea 250g",
				SkuId:       "SKU-abc12345",
				Quantity:    2,
				UnitPrice:   decimal.NewFromInt(100),
				LineTotal:   decimal.NewFromInt(200),
			},
		},
	}
}

func TestRenderOrderMailConfirmation(t *testing.T) {
	content, err := RenderOrderMail(sampleMailView(), false, nil)
	if err != nil {
		t.Fatalf("RenderOrderMail: %v", err)
	}
	if content.Subject != "Order Confirmation" {
		t.Fatalf("expected subject %q, got %q", "Order Confirmation", content.Subject)
	}
	for _, want := range []string{
		"Order Confirmation",
		"#42",
		"Gupta General Store",
		"Sunrise Tea 250g",
		"SKU-abc12345",
		"₹100.00",
		"₹200.00",
		"Expected Delivery Date:",
		"Tue Sep 1 2026",
		"11AM - 2PM",
		"Needibay&#39;s Team",
	} {
		if !strings.Contains(content.HTML, want) {
			t.Fatalf("mail body missing %q:\n%s", want, content.HTML)
		}
	}
	if strings.Contains(content.HTML, "Previous Qty") {
		t.Fatalf("confirmation mail must not carry the previous-quantity column")
	}
}

func TestRenderOrderMailUpdateHighlightsChangedQuantity(t *testing.T) {
	prev := []models.PrevOrderItem{
		{ProductId: 1, Quantity: 5, UnitPrice: decimal.NewFromInt(100)},
	}
	content, err := RenderOrderMail(sampleMailView(), true, prev)
	if err != nil {
		t.Fatalf("RenderOrderMail: %v", err)
	}
	if content.Subject != "Order Updated" {
		t.Fatalf("expected subject %q, got %q", "Order Updated", content.Subject)
	}
	if !strings.Contains(content.HTML, "Previous Qty") {
		t.Fatalf("update mail must carry the previous-quantity column")
	}
	// Quantity went 5 -> 2, so the row is highlighted.
	if !strings.Contains(content.HTML, "#fff3cd") {
		t.Fatalf("changed row not highlighted:\n%s", content.HTML)
	}
	if !strings.Contains(content.HTML, ">5<") {
		t.Fatalf("previous quantity 5 not rendered:\n%s", content.HTML)
	}
}

func TestRenderOrderMailUpdateShowsRemovedLines(t *testing.T) {
	prev := []models.PrevOrderItem{
		{ProductId: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
		{ProductId: 9, Quantity: 3, UnitPrice: decimal.NewFromInt(20)},
	}
	content, err := RenderOrderMail(sampleMailView(), true, prev)
	if err != nil {
		t.Fatalf("RenderOrderMail: %v", err)
	}
	if !strings.Contains(content.HTML, "Product #9 (removed)") {
		t.Fatalf("removed line not rendered:\n%s", content.HTML)
	}
}

func TestRecipientsForOrderSkipsEmptyEmails(t *testing.T) {
	view := sampleMailView()
	view.DistEmail = ""
	view.ShopkeeperEmail = nil

	got := RecipientsForOrder(view)
	if len(got) != 1 || got[0] != "ravi@example.com" {
		t.Fatalf("expected only the salesperson email, got %v", got)
	}

	view.SalesEmail = ""
	if got := RecipientsForOrder(view); len(got) != 0 {
		t.Fatalf("expected no recipients, got %v", got)
	}
}
