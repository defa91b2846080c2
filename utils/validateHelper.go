package utils

import (
	"context"
	"errors"

	"github.com/needibay/ordersync_backend/config"
)

// ValidateResourceId checks that a row with the given id exists. Tenant
// scoping is applied by the gorm plugin from the context's business_id.
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	db := config.GetDB()

	var model T
	var count int64
	err := db.WithContext(ctx).Model(&model).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

type ValidationRule[ID comparable] struct {
	Model   interface{}
	Ids     []ID
	Message string
}

// MassValidateResourceIds verifies that every referenced id exists, one COUNT
// query per rule.
func MassValidateResourceIds[ID comparable](ctx context.Context, rules []ValidationRule[ID]) error {
	db := config.GetDB()
	var count int64
	for _, rule := range rules {
		if len(rule.Ids) <= 0 {
			continue
		}

		unqIds := UniqueSlice(rule.Ids)

		err := db.WithContext(ctx).Model(rule.Model).
			Where("id IN ?", unqIds).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count != int64(len(unqIds)) {
			return errors.New(rule.Message)
		}
	}

	return nil
}
