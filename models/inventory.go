package models

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryRecord is one incoming stock batch. Rows are append-only: they are
// never updated or deleted, and on-hand stock is always derived by aggregation.
type InventoryRecord struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index:idx_inventory_biz_product,priority:1;not null" json:"business_id"`
	ProductId   int             `gorm:"index:idx_inventory_biz_product,priority:2;not null" json:"productId"`
	ProductName string          `gorm:"size:100;not null" json:"productName"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unitPrice"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"createdAt"`
}

// DistributorOrderRecord is one outgoing stock allocation. Append-only, like
// InventoryRecord.
type DistributorOrderRecord struct {
	ID              int       `gorm:"primary_key" json:"id"`
	BusinessId      string    `gorm:"index:idx_dist_order_biz_product,priority:1;not null" json:"business_id"`
	DistributorId   int       `gorm:"index;not null" json:"distributorId"`
	DistributorName string    `gorm:"size:100;not null" json:"distributorName"`
	ProductId       int       `gorm:"index:idx_dist_order_biz_product,priority:2;not null" json:"productId"`
	ProductName     string    `gorm:"size:100;not null" json:"productName"`
	Quantity        int       `gorm:"not null" json:"quantity"`
	DispatchDate    time.Time `gorm:"autoCreateTime;index" json:"dispatchDate"`
}

type NewInventoryRecord struct {
	ProductId   int             `json:"productId" binding:"required"`
	ProductName string          `json:"productName" binding:"required"`
	Quantity    int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type NewDistributorOrder struct {
	DistributorId   int    `json:"distributorId" binding:"required"`
	DistributorName string `json:"distributorName" binding:"required"`
	ProductId       int    `json:"productId" binding:"required"`
	ProductName     string `json:"productName" binding:"required"`
	Quantity        int    `json:"quantity" binding:"required,gt=0"`
}

// DispatchValuation is the value of a distributor's dispatch window. Amount is
// nil when no unit price is known for the product.
type DispatchValuation struct {
	FinalQuantity int              `json:"finalQuantity"`
	FinalAmount   *decimal.Decimal `json:"finalAmount"`
}

// DistributorValuation totals a distributor's dispatches across all products.
type DistributorValuation struct {
	DistributorId int             `json:"distributorId"`
	FinalQuantity int             `json:"finalQuantity"`
	FinalAmount   decimal.Decimal `json:"finalAmount"`
}

func CreateInventoryRecord(ctx context.Context, input *NewInventoryRecord) (*InventoryRecord, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.UnitPrice.IsNegative() {
		return nil, utils.NewValidationError("unitPrice", "unit price cannot be negative")
	}

	record := InventoryRecord{
		BusinessId:  businessId,
		ProductId:   input.ProductId,
		ProductName: input.ProductName,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// AvailableQuantity derives on-hand stock as total incoming minus total
// outgoing. A product with no incoming batches at all is NotFound, which is
// distinct from a product whose batches have been fully dispatched (zero).
// The difference is reported as-is, even when negative: outgoing rows written
// without an availability gate must stay visible, not be clamped away.
func AvailableQuantity(ctx context.Context, productId int) (int, error) {
	db := config.GetDB()
	return availableQuantityTx(db.WithContext(ctx), productId)
}

// availableQuantityTx runs the aggregation on the given handle so callers can
// evaluate it inside the same transaction (and advisory lock) that appends.
func availableQuantityTx(tx *gorm.DB, productId int) (int, error) {
	var incoming sql.NullInt64
	err := tx.Model(&InventoryRecord{}).
		Where("product_id = ?", productId).
		Select("SUM(quantity)").
		Scan(&incoming).Error
	if err != nil {
		return 0, err
	}
	if !incoming.Valid {
		return 0, utils.ErrorRecordNotFound
	}

	var outgoing sql.NullInt64
	err = tx.Model(&DistributorOrderRecord{}).
		Where("product_id = ?", productId).
		Select("SUM(quantity)").
		Scan(&outgoing).Error
	if err != nil {
		return 0, err
	}

	return int(incoming.Int64 - outgoing.Int64), nil
}

// CurrentUnitPrice returns the unit cost of the most recently created
// inventory batch for the product. It is a point-in-time cost snapshot, not a
// weighted average.
func CurrentUnitPrice(ctx context.Context, productId int) (decimal.Decimal, error) {
	db := config.GetDB()

	var record InventoryRecord
	err := db.WithContext(ctx).
		Where("product_id = ?", productId).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, utils.ErrorRecordNotFound
		}
		return decimal.Zero, err
	}
	return record.UnitPrice, nil
}

// QuantityDispatchedInRange sums a distributor's dispatches of one product
// with dispatch_date inside [startOfDay(start), endOfDay(end)], UTC days.
func QuantityDispatchedInRange(ctx context.Context, distributorId int, productId int, start time.Time, end time.Time) (int, error) {
	db := config.GetDB()

	from := utils.StartOfDayUTC(start)
	to := utils.EndOfDayUTC(end)
	if from.After(to) {
		return 0, utils.ErrInvalidDateRange
	}

	var total sql.NullInt64
	err := db.WithContext(ctx).Model(&DistributorOrderRecord{}).
		Where("distributor_id = ? AND product_id = ?", distributorId, productId).
		Where("dispatch_date BETWEEN ? AND ?", from, to).
		Select("SUM(quantity)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

// DispatchedValuation values a dispatch window at the product's CURRENT unit
// price. Historical shipments are priced at today's cost, not the cost in
// effect when they shipped; consumers depend on this, so it is intentional.
func DispatchedValuation(ctx context.Context, distributorId int, productId int, start time.Time, end time.Time) (*DispatchValuation, error) {
	quantity, err := QuantityDispatchedInRange(ctx, distributorId, productId, start, end)
	if err != nil {
		return nil, err
	}

	result := &DispatchValuation{FinalQuantity: quantity}

	unitPrice, err := CurrentUnitPrice(ctx, productId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return result, nil
		}
		return nil, err
	}

	amount := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	result.FinalAmount = &amount
	return result, nil
}

// TotalValueForDistributor values every dispatch row for the distributor in
// the window, any product, pricing each line independently at that product's
// current unit price. Lines whose product has no inventory batch contribute
// quantity but no amount.
func TotalValueForDistributor(ctx context.Context, distributorId int, start time.Time, end time.Time) (*DistributorValuation, error) {
	db := config.GetDB()

	from := utils.StartOfDayUTC(start)
	to := utils.EndOfDayUTC(end)
	if from.After(to) {
		return nil, utils.ErrInvalidDateRange
	}

	var lines []DistributorOrderRecord
	err := db.WithContext(ctx).Model(&DistributorOrderRecord{}).
		Select("product_id", "quantity").
		Where("distributor_id = ?", distributorId).
		Where("dispatch_date BETWEEN ? AND ?", from, to).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, utils.ErrNoOrdersFound
	}

	result := &DistributorValuation{DistributorId: distributorId}
	for _, line := range lines {
		result.FinalQuantity += line.Quantity

		unitPrice, err := CurrentUnitPrice(ctx, line.ProductId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				continue
			}
			return nil, err
		}
		result.FinalAmount = result.FinalAmount.Add(unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return result, nil
}

// PlaceDistributorOrder gates an outgoing allocation on derived availability
// and appends the ledger row. The availability check and the append run under
// the per-product lock pair (Redis best-effort + MySQL advisory on the
// transaction's connection), so two concurrent requests against the same
// product cannot both observe sufficient stock and oversubscribe it.
func PlaceDistributorOrder(ctx context.Context, input *NewDistributorOrder) (*DistributorOrderRecord, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	release, err := utils.StockLock(ctx, businessId, input.ProductId, "inventory.go", "PlaceDistributorOrder")
	if err != nil {
		return nil, err
	}
	defer release()

	var record *DistributorOrderRecord
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireStockPostingLock(tx, businessId, input.ProductId); err != nil {
			return err
		}
		defer ReleaseStockPostingLock(tx, businessId, input.ProductId)

		available, err := availableQuantityTx(tx, input.ProductId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return utils.ErrProductNotInStock
			}
			return err
		}
		if available < input.Quantity {
			return utils.ErrInsufficientStock
		}

		record = &DistributorOrderRecord{
			BusinessId:      businessId,
			DistributorId:   input.DistributorId,
			DistributorName: input.DistributorName,
			ProductId:       input.ProductId,
			ProductName:     input.ProductName,
			Quantity:        input.Quantity,
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// LedgerExport is the full dump of both ledgers for a tenant.
type LedgerExport struct {
	ProductInventory  []InventoryRecord        `json:"productInventory"`
	DistributorOrders []DistributorOrderRecord `json:"distributorOrders"`
}

func GetLedgerExport(ctx context.Context) (*LedgerExport, error) {
	db := config.GetDB()

	var export LedgerExport
	if err := db.WithContext(ctx).Find(&export.ProductInventory).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Find(&export.DistributorOrders).Error; err != nil {
		return nil, err
	}
	return &export, nil
}
