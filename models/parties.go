package models

import (
	"context"
	"errors"
	"time"

	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/utils"
	"gorm.io/gorm"
)

type Salesperson struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Email       string    `gorm:"size:255;not null" json:"email"`
	PhoneNumber string    `gorm:"size:20" json:"phoneNumber"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Distributor struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Email       string    `gorm:"size:255;not null" json:"email"`
	PhoneNumber string    `gorm:"size:20" json:"phoneNumber"`
	GstNumber   string    `gorm:"size:50" json:"gstNumber"`
	Pan         string    `gorm:"size:20" json:"pan"`
	Address     string    `gorm:"size:500" json:"address"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Shopkeeper struct {
	ID                    int          `gorm:"primary_key" json:"id"`
	BusinessId            string       `gorm:"index;not null" json:"business_id"`
	Name                  string       `gorm:"size:100;not null" json:"name"`
	OwnerName             string       `gorm:"size:100;not null" json:"ownerName"`
	ContactNumber         string       `gorm:"size:20;not null" json:"contactNumber"`
	Email                 *string      `gorm:"size:255" json:"email"`
	GpsLocation           string       `gorm:"size:100" json:"gpsLocation"`
	ImageUrl              string       `gorm:"size:500" json:"imageUrl"`
	PreferredDeliverySlot string       `gorm:"size:50" json:"preferredDeliverySlot"`
	SalespersonId         int          `gorm:"index;not null" json:"salespersonId"`
	Salesperson           *Salesperson `gorm:"foreignKey:SalespersonId" json:"salesperson,omitempty"`
	CreatedAt             time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewShopkeeper struct {
	Name                  string  `json:"name" binding:"required"`
	OwnerName             string  `json:"ownerName" binding:"required"`
	ContactNumber         string  `json:"contactNumber" binding:"required"`
	Email                 *string `json:"email"`
	GpsLocation           string  `json:"gpsLocation" binding:"required"`
	ImageUrl              string  `json:"imageUrl"`
	PreferredDeliverySlot string  `json:"preferredDeliverySlot"`
	SalespersonId         int     `json:"salespersonId" binding:"required"`
}

const defaultDeliverySlot = "11AM - 2PM"

func CreateShopkeeper(ctx context.Context, input *NewShopkeeper) (*Shopkeeper, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidatePhoneNumber(input.ContactNumber, utils.CountryCode); err != nil {
		return nil, utils.NewValidationError("contactNumber", "invalid contact number")
	}
	if input.Email != nil && *input.Email != "" && !utils.IsValidEmail(*input.Email) {
		return nil, utils.NewValidationError("email", "invalid email address")
	}
	if err := utils.ValidateResourceId[Salesperson](ctx, input.SalespersonId); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewValidationError("salespersonId", "salesperson does not exist")
		}
		return nil, err
	}

	slot := input.PreferredDeliverySlot
	if slot == "" {
		slot = defaultDeliverySlot
	}

	shopkeeper := Shopkeeper{
		BusinessId:            businessId,
		Name:                  input.Name,
		OwnerName:             input.OwnerName,
		ContactNumber:         input.ContactNumber,
		Email:                 input.Email,
		GpsLocation:           input.GpsLocation,
		ImageUrl:              input.ImageUrl,
		PreferredDeliverySlot: slot,
		SalespersonId:         input.SalespersonId,
	}
	if err := db.WithContext(ctx).Create(&shopkeeper).Error; err != nil {
		return nil, err
	}
	return &shopkeeper, nil
}

// GetShops lists every shopkeeper with the owning salesperson preloaded.
func GetShops(ctx context.Context) ([]*Shopkeeper, error) {
	db := config.GetDB()

	var shopkeepers []*Shopkeeper
	if err := db.WithContext(ctx).Preload("Salesperson").Find(&shopkeepers).Error; err != nil {
		return nil, err
	}
	return shopkeepers, nil
}

func GetShopkeepersBySalesperson(ctx context.Context, salespersonId int) ([]*Shopkeeper, error) {
	db := config.GetDB()

	var shopkeepers []*Shopkeeper
	if err := db.WithContext(ctx).Where("salesperson_id = ?", salespersonId).Find(&shopkeepers).Error; err != nil {
		return nil, err
	}
	return shopkeepers, nil
}

func GetAllDistributors(ctx context.Context) ([]*Distributor, error) {
	db := config.GetDB()

	var distributors []*Distributor
	if err := db.WithContext(ctx).Find(&distributors).Error; err != nil {
		return nil, err
	}
	return distributors, nil
}

func GetAllSalespersons(ctx context.Context) ([]*Salesperson, error) {
	db := config.GetDB()

	var salespersons []*Salesperson
	if err := db.WithContext(ctx).Find(&salespersons).Error; err != nil {
		return nil, err
	}
	return salespersons, nil
}

// UpdateDistributor allows partial edits; empty fields retain current values.
type UpdateDistributor struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	GstNumber   string `json:"gstNumber"`
	Pan         string `json:"pan"`
	Address     string `json:"address"`
}

func EditDistributor(ctx context.Context, distributorId int, input *UpdateDistributor) (*Distributor, error) {
	db := config.GetDB()

	var distributor Distributor
	if err := db.WithContext(ctx).First(&distributor, distributorId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, utils.NewValidationError("email", "invalid email address")
	}

	if input.Name != "" {
		distributor.Name = input.Name
	}
	if input.Email != "" {
		distributor.Email = input.Email
	}
	if input.PhoneNumber != "" {
		distributor.PhoneNumber = input.PhoneNumber
	}
	if input.GstNumber != "" {
		distributor.GstNumber = input.GstNumber
	}
	if input.Pan != "" {
		distributor.Pan = input.Pan
	}
	if input.Address != "" {
		distributor.Address = input.Address
	}

	if err := db.WithContext(ctx).Save(&distributor).Error; err != nil {
		return nil, err
	}
	return &distributor, nil
}

func DeleteDistributor(ctx context.Context, distributorId int) error {
	db := config.GetDB()

	res := db.WithContext(ctx).Delete(&Distributor{}, distributorId)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
