package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireStockPostingLock serializes stock appends per product across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB that will do the append transaction.
func AcquireStockPostingLock(tx *gorm.DB, businessId string, productId int) error {
	lockName := fmt.Sprintf("stock:%s:%d", businessId, productId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire stock lock for business_id=%s product_id=%d", businessId, productId)
	}
	return nil
}

func ReleaseStockPostingLock(tx *gorm.DB, businessId string, productId int) {
	lockName := fmt.Sprintf("stock:%s:%d", businessId, productId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
