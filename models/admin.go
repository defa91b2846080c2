package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/utils"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

type Admin struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Email      string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password   string    `gorm:"size:255;not null" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAdmin struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

func CreateAdmin(ctx context.Context, input *NewAdmin) (*Admin, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	admin := Admin{
		BusinessId: businessId,
		Email:      input.Email,
		Password:   string(hashed),
	}
	// The unique index is the source of truth; a pre-check would race.
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, utils.NewValidationError("email", "email is already registered")
		}
		return nil, err
	}
	return &admin, nil
}

func GetAdminByEmail(ctx context.Context, email string) (*Admin, error) {
	db := config.GetDB()

	var admin Admin
	err := db.WithContext(ctx).Where("email = ?", email).First(&admin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &admin, nil
}
