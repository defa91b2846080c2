package workflow

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/needibay/ordersync_backend/models"
	"github.com/shopspring/decimal"
)

const (
	subjectOrderConfirmation = "Order Confirmation"
	subjectOrderUpdate       = "Order Updated"
)

var orderMailTemplate = template.Must(template.New("orderMail").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 640px;">
  <h2>{{.Heading}}</h2>
  <p>Hello,</p>
  <p>{{.Intro}}</p>
  <p>
    <strong>Order ID:</strong> #{{.OrderId}}<br/>
    <strong>Shop:</strong> {{.ShopName}}<br/>
    <strong>Salesperson:</strong> {{.SalesName}}<br/>
    <strong>Distributor:</strong> {{.DistName}}<br/>
    {{if .DeliveryDate}}<strong>Expected Delivery Date:</strong> {{.DeliveryDate}}<br/>{{end}}
    {{if .DeliverySlot}}<strong>Delivery Slot:</strong> {{.DeliverySlot}}<br/>{{end}}
    <strong>Payment Term:</strong> {{.PaymentTerm}}
  </p>
  <table border="1" cellpadding="6" cellspacing="0" style="border-collapse: collapse; width: 100%;">
    <tr style="background-color: #f2f2f2;">
      <th>Product</th>
      <th>SKU</th>
      <th>Variant</th>
      {{if .IsUpdate}}<th>Previous Qty</th>{{end}}
      <th>Qty</th>
      <th>Unit Price</th>
      <th>Amount</th>
    </tr>
    {{range .Lines}}
    <tr{{if .Changed}} style="background-color: #fff3cd;"{{end}}>
      <td>{{.ProductName}}</td>
      <td>{{.SkuId}}</td>
      <td>{{.VariantName}}</td>
      {{if $.IsUpdate}}<td>{{.PrevQuantity}}</td>{{end}}
      <td>{{.Quantity}}</td>
      <td>{{.UnitPrice}}</td>
      <td>{{.LineTotal}}</td>
    </tr>
    {{end}}
  </table>
  <p><strong>Total: {{.Total}}</strong></p>
  <p>Thank you,<br/>Needibay's Team</p>
</div>
`))

type mailLine struct {
	ProductName  string
	SkuId        string
	VariantName  string
	PrevQuantity string
	Quantity     int
	UnitPrice    string
	LineTotal    string
	Changed      bool
}

type mailData struct {
	Heading      string
	Intro        string
	OrderId      int
	ShopName     string
	SalesName    string
	DistName     string
	DeliveryDate string
	DeliverySlot string
	PaymentTerm  models.PaymentTerm
	IsUpdate     bool
	Lines        []mailLine
	Total        string
}

// MailContent is a rendered, addressable order mail.
type MailContent struct {
	Subject string
	HTML    string
}

func formatAmount(amount decimal.Decimal) string {
	return "₹" + amount.StringFixed(2)
}

// prevQuantityKey matches previous lines to current ones on product + variant.
func prevQuantityKey(productId int, variantId *int) string {
	if variantId == nil {
		return fmt.Sprintf("p:%d", productId)
	}
	return fmt.Sprintf("p:%d:v:%d", productId, *variantId)
}

// RenderOrderMail builds the mail body for an order. For update mails the
// previous-lines snapshot drives a "Previous Qty" column, with changed rows
// highlighted.
func RenderOrderMail(view *models.OrderMailView, isUpdate bool, prevItems []models.PrevOrderItem) (*MailContent, error) {
	prevByKey := make(map[string]int, len(prevItems))
	for _, prev := range prevItems {
		prevByKey[prevQuantityKey(prev.ProductId, prev.VariantId)] = prev.Quantity
	}

	data := mailData{
		OrderId:      view.Order.ID,
		ShopName:     view.ShopkeeperName,
		SalesName:    view.SalesName,
		DistName:     view.DistName,
		DeliverySlot: view.Order.DeliverySlot,
		PaymentTerm:  view.Order.PaymentTerm,
		IsUpdate:     isUpdate,
		Total:        formatAmount(view.Order.TotalAmount),
	}
	if view.Order.DeliveryDate != nil {
		data.DeliveryDate = view.Order.DeliveryDate.Format("Mon Jan 2 2006")
	}
	if isUpdate {
		data.Heading = "Order Updated"
		data.Intro = "The following order has been updated. Changed quantities are highlighted."
	} else {
		data.Heading = "Order Confirmation"
		data.Intro = "A new order has been placed with the following details."
	}

	currentKeys := make(map[string]bool, len(view.Lines))
	for _, line := range view.Lines {
		key := prevQuantityKey(line.ProductId, line.VariantId)
		currentKeys[key] = true

		rendered := mailLine{
			ProductName: line.ProductName,
			SkuId:       line.SkuId,
			VariantName: line.VariantName,
			Quantity:    line.Quantity,
			UnitPrice:   formatAmount(line.UnitPrice),
			LineTotal:   formatAmount(line.LineTotal),
		}
		if isUpdate {
			if prevQty, ok := prevByKey[key]; ok {
				rendered.PrevQuantity = fmt.Sprint(prevQty)
				rendered.Changed = prevQty != line.Quantity
			} else {
				rendered.PrevQuantity = "-"
				rendered.Changed = true
			}
		}
		data.Lines = append(data.Lines, rendered)
	}

	// Lines dropped by the update still show up, struck out at quantity zero.
	if isUpdate {
		for _, prev := range prevItems {
			key := prevQuantityKey(prev.ProductId, prev.VariantId)
			if currentKeys[key] {
				continue
			}
			data.Lines = append(data.Lines, mailLine{
				ProductName:  fmt.Sprintf("Product #%d (removed)", prev.ProductId),
				PrevQuantity: fmt.Sprint(prev.Quantity),
				Quantity:     0,
				UnitPrice:    formatAmount(prev.UnitPrice),
				LineTotal:    formatAmount(decimal.Zero),
				Changed:      true,
			})
		}
	}

	var buf bytes.Buffer
	if err := orderMailTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}

	subject := subjectOrderConfirmation
	if isUpdate {
		subject = subjectOrderUpdate
	}
	return &MailContent{Subject: subject, HTML: buf.String()}, nil
}

// RecipientsForOrder collects the non-empty party emails, salesperson first.
func RecipientsForOrder(view *models.OrderMailView) []string {
	recipients := make([]string, 0, 3)
	if view.SalesEmail != "" {
		recipients = append(recipients, view.SalesEmail)
	}
	if view.DistEmail != "" {
		recipients = append(recipients, view.DistEmail)
	}
	if view.ShopkeeperEmail != nil && *view.ShopkeeperEmail != "" {
		recipients = append(recipients, *view.ShopkeeperEmail)
	}
	return recipients
}
