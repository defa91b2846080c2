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

type Product struct {
	ID               int              `gorm:"primary_key" json:"id"`
	BusinessId       string           `gorm:"index;not null" json:"business_id"`
	Name             string           `gorm:"size:100;not null" json:"name"`
	SkuId            string           `gorm:"index;size:100;not null" json:"skuId"`
	CategoryId       int              `gorm:"index;not null" json:"categoryId"`
	DistributorPrice decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"distributorPrice"`
	RetailerPrice    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"retailerPrice"`
	Mrp              decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"mrp"`
	InventoryCount   int              `gorm:"default:0" json:"inventoryCount"`
	ImageUrl         string           `gorm:"size:500" json:"imageUrl"`
	Variants         []ProductVariant `gorm:"foreignKey:ProductId" json:"variants"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type ProductVariant struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;not null" json:"business_id"`
	ProductId     int             `gorm:"index;not null" json:"productId"`
	VariantName   string          `gorm:"size:100;not null" json:"variantName"`
	VariantValue  string          `gorm:"size:100;not null" json:"variantValue"`
	Price         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	StockQuantity int             `gorm:"default:0" json:"stockQuantity"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name             string              `json:"name" binding:"required"`
	CategoryId       int                 `json:"categoryId" binding:"required"`
	DistributorPrice decimal.Decimal     `json:"distributorPrice"`
	RetailerPrice    decimal.Decimal     `json:"retailerPrice"`
	Mrp              decimal.Decimal     `json:"mrp"`
	InventoryCount   int                 `json:"inventoryCount"`
	ImageUrl         string              `json:"imageUrl"`
	Variants         []NewProductVariant `json:"variants"`
}

type NewProductVariant struct {
	VariantName   string          `json:"variantName" binding:"required"`
	VariantValue  string          `json:"variantValue" binding:"required"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
}

// UpdateProduct allows partial edits; nil fields are left untouched.
type UpdateProduct struct {
	Name             *string          `json:"name"`
	CategoryId       *int             `json:"categoryId"`
	DistributorPrice *decimal.Decimal `json:"distributorPrice"`
	RetailerPrice    *decimal.Decimal `json:"retailerPrice"`
	Mrp              *decimal.Decimal `json:"mrp"`
	InventoryCount   *int             `json:"inventoryCount"`
	ImageUrl         *string          `json:"imageUrl"`
}

func productListCacheKey(businessId string) string {
	return fmt.Sprintf("products:%s", businessId)
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateResourceId[Category](ctx, input.CategoryId); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewValidationError("categoryId", "category does not exist")
		}
		return nil, err
	}

	variants := make([]ProductVariant, 0, len(input.Variants))
	for _, v := range input.Variants {
		variants = append(variants, ProductVariant{
			BusinessId:    businessId,
			VariantName:   v.VariantName,
			VariantValue:  v.VariantValue,
			Price:         v.Price,
			StockQuantity: v.StockQuantity,
		})
	}

	product := Product{
		BusinessId:       businessId,
		Name:             input.Name,
		SkuId:            utils.GenerateSkuId(),
		CategoryId:       input.CategoryId,
		DistributorPrice: input.DistributorPrice,
		RetailerPrice:    input.RetailerPrice,
		Mrp:              input.Mrp,
		InventoryCount:   input.InventoryCount,
		ImageUrl:         input.ImageUrl,
		Variants:         variants,
	}
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}

	_ = config.RemoveRedisKey(productListCacheKey(businessId))
	return &product, nil
}

func AddVariantsToProduct(ctx context.Context, productId int, inputs []NewProductVariant) (*Product, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var product Product
	if err := db.WithContext(ctx).First(&product, productId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	variants := make([]ProductVariant, 0, len(inputs))
	for _, v := range inputs {
		variants = append(variants, ProductVariant{
			BusinessId:    businessId,
			ProductId:     product.ID,
			VariantName:   v.VariantName,
			VariantValue:  v.VariantValue,
			Price:         v.Price,
			StockQuantity: v.StockQuantity,
		})
	}
	if err := db.WithContext(ctx).Create(&variants).Error; err != nil {
		return nil, err
	}

	_ = config.RemoveRedisKey(productListCacheKey(businessId))
	return GetProduct(ctx, product.ID)
}

func GetProduct(ctx context.Context, productId int) (*Product, error) {
	db := config.GetDB()

	var product Product
	err := db.WithContext(ctx).Preload("Variants").First(&product, productId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &product, nil
}

func GetAllProducts(ctx context.Context) ([]*Product, error) {
	db := config.GetDB()

	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	var cached []*Product
	if found, err := config.GetRedisObject(productListCacheKey(businessId), &cached); err == nil && found {
		return cached, nil
	}

	var products []*Product
	if err := db.WithContext(ctx).Preload("Variants").Find(&products).Error; err != nil {
		return nil, err
	}

	_ = config.SetRedisObject(productListCacheKey(businessId), products, 5*time.Minute)
	return products, nil
}

func EditProduct(ctx context.Context, productId int, input *UpdateProduct) (*Product, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var product Product
	if err := db.WithContext(ctx).First(&product, productId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.CategoryId != nil {
		updates["category_id"] = *input.CategoryId
	}
	if input.DistributorPrice != nil {
		updates["distributor_price"] = *input.DistributorPrice
	}
	if input.RetailerPrice != nil {
		updates["retailer_price"] = *input.RetailerPrice
	}
	if input.Mrp != nil {
		updates["mrp"] = *input.Mrp
	}
	if input.InventoryCount != nil {
		updates["inventory_count"] = *input.InventoryCount
	}
	if input.ImageUrl != nil {
		updates["image_url"] = *input.ImageUrl
	}
	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(&product).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	_ = config.RemoveRedisKey(productListCacheKey(businessId))
	return GetProduct(ctx, productId)
}

func DeleteProduct(ctx context.Context, productId int) error {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}

	// Products referenced by order lines must stay for order history.
	var itemCount int64
	if err := db.WithContext(ctx).Model(&OrderItem{}).Where("product_id = ?", productId).Count(&itemCount).Error; err != nil {
		return err
	}
	if itemCount > 0 {
		return utils.NewValidationError("productId", "cannot delete product with associated order items")
	}

	res := db.WithContext(ctx).Delete(&Product{}, productId)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}

	_ = config.RemoveRedisKey(productListCacheKey(businessId))
	return nil
}
