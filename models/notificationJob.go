package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	NotificationStatusPending    = "PENDING"
	NotificationStatusProcessing = "PROCESSING"
	NotificationStatusSent       = "SENT"
	NotificationStatusFailed     = "FAILED"
	NotificationStatusDead       = "DEAD"
)

// NotificationJob is one queued order mail. Rows are claimed by the
// dispatcher with SKIP LOCKED, so multiple instances can drain the queue
// without double-sending.
type NotificationJob struct {
	ID                int        `gorm:"primary_key;index:idx_notification_dispatch,priority:3" json:"id"`
	BusinessId        string     `gorm:"size:64;not null;index" json:"business_id"`
	OrderId           int        `gorm:"index;not null" json:"order_id"`
	IsOrderUpdateMail bool       `gorm:"not null;default:false" json:"is_order_update_mail"`
	PrevItems         []byte     `gorm:"type:blob" json:"prev_items"`
	Status            string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_notification_dispatch,priority:1" json:"status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	Attempts          int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt     *time.Time `gorm:"index;index:idx_notification_dispatch,priority:2" json:"next_attempt_at"`
	SentAt            *time.Time `gorm:"index" json:"sent_at"`
	LockedAt          *time.Time `gorm:"index" json:"locked_at"`
	LockedBy          *string    `gorm:"size:100" json:"locked_by"`
	LastError         *string    `gorm:"type:text" json:"last_error"`
	CorrelationId     string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PrevOrderItem is a snapshot of one order line before an update, carried in
// the job payload so the update mail can show what changed.
type PrevOrderItem struct {
	ProductId int             `json:"productId"`
	VariantId *int            `json:"variantId,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// EnqueueOrderNotification inserts a PENDING job for the order. prevItems is
// only meaningful for update mails and is stored as JSON.
func EnqueueOrderNotification(ctx context.Context, orderId int, isUpdateMail bool, prevItems []PrevOrderItem) (*NotificationJob, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	job := NotificationJob{
		BusinessId:        businessId,
		OrderId:           orderId,
		IsOrderUpdateMail: isUpdateMail,
		Status:            NotificationStatusPending,
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		job.CorrelationId = correlationId
	}
	if len(prevItems) > 0 {
		payload, err := json.Marshal(prevItems)
		if err != nil {
			return nil, err
		}
		job.PrevItems = payload
	}

	if err := db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// DecodePrevItems unpacks the previous-lines snapshot. Empty payload yields
// nil without error.
func (j *NotificationJob) DecodePrevItems() ([]PrevOrderItem, error) {
	if len(j.PrevItems) == 0 {
		return nil, nil
	}
	var items []PrevOrderItem
	if err := json.Unmarshal(j.PrevItems, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// RequeueNotificationJob resets a DEAD job so the dispatcher picks it up
// again. Only terminal jobs are eligible.
func RequeueNotificationJob(ctx context.Context, jobId int) (*NotificationJob, error) {
	db := config.GetDB()
	now := time.Now().UTC()

	res := db.WithContext(ctx).
		Model(&NotificationJob{}).
		Where("id = ? AND status = ?", jobId, NotificationStatusDead).
		Updates(map[string]interface{}{
			"status":          NotificationStatusPending,
			"attempts":        0,
			"next_attempt_at": &now,
			"locked_at":       nil,
			"locked_by":       nil,
			"last_error":      nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.ErrorRecordNotFound
	}

	var job NotificationJob
	if err := db.WithContext(ctx).First(&job, jobId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetDeadNotificationJobs lists terminal jobs for the tenant, newest first.
func GetDeadNotificationJobs(ctx context.Context) ([]NotificationJob, error) {
	db := config.GetDB()

	var jobs []NotificationJob
	err := db.WithContext(ctx).
		Where("status = ?", NotificationStatusDead).
		Order("updated_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
