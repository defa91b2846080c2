package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentTerm string

const (
	PaymentTermFull    PaymentTerm = "FULL"
	PaymentTermPartial PaymentTerm = "PARTIAL"
	PaymentTermCredit  PaymentTerm = "CREDIT"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

type Order struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;not null" json:"business_id"`
	ShopkeeperId  int             `gorm:"index;not null" json:"shopkeeperId"`
	Shopkeeper    *Shopkeeper     `gorm:"foreignKey:ShopkeeperId" json:"shopkeeper,omitempty"`
	SalespersonId int             `gorm:"index;not null" json:"salespersonId"`
	Salesperson   *Salesperson    `gorm:"foreignKey:SalespersonId" json:"salesperson,omitempty"`
	DistributorId int             `gorm:"index;not null" json:"distributorId"`
	Distributor   *Distributor    `gorm:"foreignKey:DistributorId" json:"distributor,omitempty"`
	OrderDate     time.Time       `gorm:"autoCreateTime" json:"orderDate"`
	DeliveryDate  *time.Time      `json:"deliveryDate"`
	DeliverySlot  string          `gorm:"size:50" json:"deliverySlot"`
	PaymentTerm   PaymentTerm     `gorm:"size:20;not null" json:"paymentTerm"`
	OrderNote     string          `gorm:"size:500" json:"orderNote"`
	OrderStatus   OrderStatus     `gorm:"size:20;not null;default:PENDING" json:"orderStatus"`
	PaymentStatus PaymentStatus   `gorm:"size:20;not null;default:UNPAID" json:"paymentStatus"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"totalAmount"`
	Items         []OrderItem     `gorm:"foreignKey:OrderId" json:"items,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

type OrderItem struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	OrderId    int             `gorm:"index;not null" json:"orderId"`
	ProductId  int             `gorm:"index;not null" json:"productId"`
	Product    *Product        `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	VariantId  *int            `gorm:"index" json:"variantId"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unitPrice"`
	LineTotal  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"lineTotal"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"createdAt"`
}

type PartialPaymentStatus string

const (
	PartialPaymentPending PartialPaymentStatus = "PENDING"
	PartialPaymentPaid    PartialPaymentStatus = "PAID"
)

// PartialPayment tracks the deposit agreement for PARTIAL-term orders. The
// remaining amount is derived from the order total at creation time.
type PartialPayment struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	BusinessId      string               `gorm:"index;not null" json:"business_id"`
	OrderId         int                  `gorm:"uniqueIndex;not null" json:"orderId"`
	InitialAmount   decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"initialAmount"`
	RemainingAmount decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"remainingAmount"`
	DueDate         time.Time            `gorm:"not null" json:"dueDate"`
	PaymentStatus   PartialPaymentStatus `gorm:"size:20;not null;default:PENDING" json:"paymentStatus"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"createdAt"`
}

type NewOrderItem struct {
	ProductId int  `json:"productId" binding:"required"`
	VariantId *int `json:"variantId"`
	Quantity  int  `json:"quantity" binding:"required,gt=0"`
}

type NewPartialPayment struct {
	InitialAmount decimal.Decimal `json:"initialAmount" binding:"required"`
	DueDate       string          `json:"dueDate" binding:"required"`
}

type NewOrder struct {
	ShopkeeperId   int                `json:"shopkeeperId" binding:"required"`
	DistributorId  int                `json:"distributorId" binding:"required"`
	DeliveryDate   string             `json:"deliveryDate" binding:"required"`
	DeliverySlot   string             `json:"deliverySlot" binding:"required"`
	PaymentTerm    PaymentTerm        `json:"paymentTerm" binding:"required,oneof=FULL PARTIAL CREDIT"`
	OrderNote      string             `json:"orderNote"`
	PartialPayment *NewPartialPayment `json:"partialPayment"`
	Items          []NewOrderItem     `json:"items" binding:"required,min=1,dive"`
}

type UpdateOrderItemsInput struct {
	Items []NewOrderItem `json:"items" binding:"required,min=1,dive"`
}

// ResolveLinePrice picks the unit price for one order line. The variant price
// wins when the line names a variant that is in the map; otherwise the line
// falls back to the base product price. A line neither map can resolve
// defaults to zero unless strict mode is on.
func ResolveLinePrice(productPrices map[int]decimal.Decimal, variantPrices map[int]decimal.Decimal, productId int, variantId *int, strict bool) (decimal.Decimal, error) {
	if variantId != nil {
		if price, ok := variantPrices[*variantId]; ok {
			return price, nil
		}
	}
	if price, ok := productPrices[productId]; ok {
		return price, nil
	}
	if strict {
		return decimal.Zero, fmt.Errorf("%w: product %d", utils.ErrPriceNotResolvable, productId)
	}
	return decimal.Zero, nil
}

// PriceOrderItems resolves every line and returns the priced rows plus the
// order total (sum of quantity * unit price per line).
func PriceOrderItems(items []NewOrderItem, productPrices map[int]decimal.Decimal, variantPrices map[int]decimal.Decimal, strict bool) ([]OrderItem, decimal.Decimal, error) {
	priced := make([]OrderItem, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		unitPrice, err := ResolveLinePrice(productPrices, variantPrices, item.ProductId, item.VariantId, strict)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		priced = append(priced, OrderItem{
			ProductId: item.ProductId,
			VariantId: item.VariantId,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return priced, total, nil
}

// buildPriceMaps batch-fetches the referenced products and variants and keys
// their prices by id. Products price at retailer price; variants at their own
// price.
func buildPriceMaps(ctx context.Context, db *gorm.DB, items []NewOrderItem) (map[int]decimal.Decimal, map[int]decimal.Decimal, error) {
	productIds := make([]int, 0, len(items))
	variantIds := make([]int, 0)
	for _, item := range items {
		productIds = append(productIds, item.ProductId)
		if item.VariantId != nil {
			variantIds = append(variantIds, *item.VariantId)
		}
	}

	var products []Product
	err := db.WithContext(ctx).
		Select("id", "retailer_price").
		Where("id IN ?", utils.UniqueSlice(productIds)).
		Find(&products).Error
	if err != nil {
		return nil, nil, err
	}
	productPrices := make(map[int]decimal.Decimal, len(products))
	for _, p := range products {
		productPrices[p.ID] = p.RetailerPrice
	}

	variantPrices := make(map[int]decimal.Decimal)
	if len(variantIds) > 0 {
		var variants []ProductVariant
		err := db.WithContext(ctx).
			Select("id", "price").
			Where("id IN ?", utils.UniqueSlice(variantIds)).
			Find(&variants).Error
		if err != nil {
			return nil, nil, err
		}
		for _, v := range variants {
			variantPrices[v.ID] = v.Price
		}
	}
	return productPrices, variantPrices, nil
}

// parseDateField accepts RFC3339 or a bare calendar date.
func parseDateField(field, value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, utils.NewValidationError(field, "must be an RFC3339 timestamp or YYYY-MM-DD")
}

// BuildPartialPayment turns the optional deposit block into the row persisted
// alongside a PARTIAL-term order. The remaining amount is the order total
// minus the deposit, fixed at creation time.
func BuildPartialPayment(total decimal.Decimal, input *NewPartialPayment) (*PartialPayment, error) {
	dueDate, err := parseDateField("partialPayment.dueDate", input.DueDate)
	if err != nil {
		return nil, err
	}
	return &PartialPayment{
		InitialAmount:   input.InitialAmount,
		RemainingAmount: total.Sub(input.InitialAmount),
		DueDate:         dueDate,
		PaymentStatus:   PartialPaymentPending,
	}, nil
}

// CreateOrder prices the lines server-side, persists the order with its items
// (and the partial payment row for PARTIAL terms) in one transaction, then
// enqueues the confirmation mail. The enqueue happens after commit so a
// rolled-back order never produces mail.
func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	salespersonId, err := salespersonIdFromContext(ctx)
	if err != nil {
		return nil, err
	}

	deliveryDate, err := parseDateField("deliveryDate", input.DeliveryDate)
	if err != nil {
		return nil, err
	}

	rules := []utils.ValidationRule[int]{
		{Model: &Shopkeeper{}, Ids: []int{input.ShopkeeperId}, Message: "shopkeeper does not exist"},
		{Model: &Distributor{}, Ids: []int{input.DistributorId}, Message: "distributor does not exist"},
	}
	if err := utils.MassValidateResourceIds(ctx, rules); err != nil {
		return nil, err
	}

	productPrices, variantPrices, err := buildPriceMaps(ctx, db, input.Items)
	if err != nil {
		return nil, err
	}
	items, total, err := PriceOrderItems(input.Items, productPrices, variantPrices, config.StrictOrderPricing())
	if err != nil {
		return nil, err
	}

	var payment *PartialPayment
	if input.PaymentTerm == PaymentTermPartial && input.PartialPayment != nil {
		payment, err = BuildPartialPayment(total, input.PartialPayment)
		if err != nil {
			return nil, err
		}
	}

	order := Order{
		BusinessId:    businessId,
		ShopkeeperId:  input.ShopkeeperId,
		SalespersonId: salespersonId,
		DistributorId: input.DistributorId,
		DeliveryDate:  &deliveryDate,
		DeliverySlot:  input.DeliverySlot,
		PaymentTerm:   input.PaymentTerm,
		OrderNote:     input.OrderNote,
		OrderStatus:   OrderStatusPending,
		PaymentStatus: paymentStatusForTerm(input.PaymentTerm, input.PartialPayment),
		TotalAmount:   total,
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].BusinessId = businessId
			items[i].OrderId = order.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		if payment != nil {
			payment.BusinessId = businessId
			payment.OrderId = order.ID
			if err := tx.Create(payment).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Items = items

	// Enqueue failures must not fail the already-committed order.
	if _, err := EnqueueOrderNotification(ctx, order.ID, false, nil); err != nil {
		config.LogError(config.GetLogger(), "order.go", "CreateOrder", "enqueue confirmation mail", order.ID, err)
	}
	return &order, nil
}

func paymentStatusForTerm(term PaymentTerm, partial *NewPartialPayment) PaymentStatus {
	if term == PaymentTermPartial && partial != nil && partial.InitialAmount.IsPositive() {
		return PaymentStatusPartial
	}
	return PaymentStatusUnpaid
}

func salespersonIdFromContext(ctx context.Context) (int, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return 0, errors.New("salesperson id is required")
	}
	return userId, nil
}

// UpdateOrderItems replaces an order's lines, reprices the order at current
// catalog prices, and enqueues the update mail carrying a snapshot of the
// previous lines so the mail can show what changed.
func UpdateOrderItems(ctx context.Context, orderId int, input *UpdateOrderItemsInput) (*Order, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var order Order
	err := db.WithContext(ctx).Preload("Items").First(&order, orderId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if order.OrderStatus == OrderStatusDelivered || order.OrderStatus == OrderStatusCancelled {
		return nil, utils.NewValidationError("orderStatus", "order can no longer be modified")
	}

	prevItems := make([]PrevOrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		prevItems = append(prevItems, PrevOrderItem{
			ProductId: item.ProductId,
			VariantId: item.VariantId,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	productPrices, variantPrices, err := buildPriceMaps(ctx, db, input.Items)
	if err != nil {
		return nil, err
	}
	items, total, err := PriceOrderItems(input.Items, productPrices, variantPrices, config.StrictOrderPricing())
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderId).Delete(&OrderItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].BusinessId = businessId
			items[i].OrderId = orderId
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		return tx.Model(&Order{}).Where("id = ?", orderId).Update("total_amount", total).Error
	})
	if err != nil {
		return nil, err
	}
	order.Items = items
	order.TotalAmount = total

	if _, err := EnqueueOrderNotification(ctx, order.ID, true, prevItems); err != nil {
		config.LogError(config.GetLogger(), "order.go", "UpdateOrderItems", "enqueue update mail", order.ID, err)
	}
	return &order, nil
}

func GetSalespersonOrders(ctx context.Context) ([]Order, error) {
	db := config.GetDB()

	salespersonId, err := salespersonIdFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var orders []Order
	err = db.WithContext(ctx).
		Preload("Items").
		Preload("Shopkeeper").
		Where("salesperson_id = ?", salespersonId).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func GetAllOrders(ctx context.Context) ([]Order, error) {
	db := config.GetDB()

	var orders []Order
	err := db.WithContext(ctx).
		Preload("Items").
		Preload("Shopkeeper").
		Preload("Salesperson").
		Preload("Distributor").
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// OrderMailView is everything the notification worker needs to render and
// address an order mail, fetched fresh at send time.
type OrderMailView struct {
	Order           Order
	ShopkeeperName  string
	ShopkeeperEmail *string
	SalesName       string
	SalesEmail      string
	DistName        string
	DistEmail       string
	Lines           []OrderMailLine
}

type OrderMailLine struct {
	ProductId   int
	VariantId   *int
	ProductName string
	SkuId       string
	VariantName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

func GetOrderMailView(ctx context.Context, orderId int) (*OrderMailView, error) {
	db := config.GetDB()

	var order Order
	err := db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Product").
		Preload("Shopkeeper").
		Preload("Salesperson").
		Preload("Distributor").
		First(&order, orderId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	view := &OrderMailView{Order: order}
	if order.Shopkeeper != nil {
		view.ShopkeeperName = order.Shopkeeper.Name
		view.ShopkeeperEmail = order.Shopkeeper.Email
	}
	if order.Salesperson != nil {
		view.SalesName = order.Salesperson.Name
		view.SalesEmail = order.Salesperson.Email
	}
	if order.Distributor != nil {
		view.DistName = order.Distributor.Name
		view.DistEmail = order.Distributor.Email
	}

	variantNames, err := variantNamesForItems(ctx, db, order.Items)
	if err != nil {
		return nil, err
	}
	for _, item := range order.Items {
		line := OrderMailLine{
			ProductId: item.ProductId,
			VariantId: item.VariantId,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		}
		if item.Product != nil {
			line.ProductName = item.Product.Name
			line.SkuId = item.Product.SkuId
		}
		if item.VariantId != nil {
			line.VariantName = variantNames[*item.VariantId]
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

func variantNamesForItems(ctx context.Context, db *gorm.DB, items []OrderItem) (map[int]string, error) {
	variantIds := make([]int, 0)
	for _, item := range items {
		if item.VariantId != nil {
			variantIds = append(variantIds, *item.VariantId)
		}
	}
	names := make(map[int]string)
	if len(variantIds) == 0 {
		return names, nil
	}

	var variants []ProductVariant
	err := db.WithContext(ctx).
		Select("id", "variant_name", "variant_value").
		Where("id IN ?", utils.UniqueSlice(variantIds)).
		Find(&variants).Error
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		names[v.ID] = fmt.Sprintf("%s: %s", v.VariantName, v.VariantValue)
	}
	return names, nil
}
