package models

import (
	"context"
	"errors"
	"time"

	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/utils"
)

type Category struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	Products   []Product `gorm:"foreignKey:CategoryId" json:"products,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCategory struct {
	Name string `json:"name" binding:"required"`
}

func CreateCategory(ctx context.Context, input *NewCategory) (*Category, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	category := Category{
		BusinessId: businessId,
		Name:       input.Name,
	}
	if err := db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func GetAllCategories(ctx context.Context, withProducts bool) ([]*Category, error) {
	db := config.GetDB()

	var categories []*Category
	q := db.WithContext(ctx).Model(&Category{})
	if withProducts {
		q = q.Preload("Products")
	}
	if err := q.Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}
