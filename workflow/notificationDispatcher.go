package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/models"
	"github.com/needibay/ordersync_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mailer sends one rendered mail to a recipient list.
type Mailer interface {
	Send(ctx context.Context, to []string, subject string, html string) error
}

type NotificationDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Mailer       Mailer
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewNotificationDispatcher(db *gorm.DB, logger *logrus.Logger, mailer Mailer) *NotificationDispatcher {
	return &NotificationDispatcher{
		DB:             db,
		Logger:         logger,
		Mailer:         mailer,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    2,
		InitialBackoff: 3 * time.Second,
	}
}

func (d *NotificationDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *NotificationDispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil {
		return
	}

	// The dispatcher serves every tenant, so its queries bypass the tenant
	// guard; per-job work re-enters the tenant's scope below.
	claimCtx := utils.SetSkipTenantScopeInContext(ctx, true)

	var claimed []models.NotificationJob
	err := db.WithContext(claimCtx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but lock is stale (dispatcher crashed mid-batch), reclaim after LockTimeout
		q := tx.
			Where(`
				(
					status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.NotificationStatusPending, models.NotificationStatusFailed}, now, models.NotificationStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Enforce max attempts: poison jobs go terminal.
			if d.MaxAttempts > 0 && claimed[i].Attempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max send attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].Status = models.NotificationStatusDead
				if err := tx.Model(&models.NotificationJob{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"status":          models.NotificationStatusDead,
					"last_error":      &msg,
					"next_attempt_at": nil,
					"locked_at":       nil,
					"locked_by":       nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			// Claim for sending.
			claimed[i].Status = models.NotificationStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].Attempts = claimed[i].Attempts + 1
			claimed[i].LastError = nil
			if err := tx.Model(&models.NotificationJob{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":          claimed[i].Status,
				"locked_at":       claimed[i].LockedAt,
				"locked_by":       claimed[i].LockedBy,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_error":      nil,
				"next_attempt_at": nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, job := range claimed {
		// Skip terminal rows that were marked DEAD in the claim transaction.
		if job.Status == models.NotificationStatusDead {
			continue
		}
		d.processJob(ctx, job, now)
	}
}

func (d *NotificationDispatcher) processJob(ctx context.Context, job models.NotificationJob, now time.Time) {
	jobCtx := utils.SetBusinessIdInContext(ctx, job.BusinessId)
	if job.CorrelationId != "" {
		jobCtx = utils.SetCorrelationIdInContext(jobCtx, job.CorrelationId)
	}

	// Always refetch: the mail must reflect the order as it is now, not as it
	// was when the job was enqueued.
	view, err := models.GetOrderMailView(jobCtx, job.OrderId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			// No order means nothing will ever be sendable. Terminal, no retry.
			d.markDead(ctx, job, "order not found")
			return
		}
		d.markFailed(ctx, job, err)
		return
	}

	prevItems, err := job.DecodePrevItems()
	if err != nil {
		d.markDead(ctx, job, "prev items payload undecodable: "+err.Error())
		return
	}

	content, err := RenderOrderMail(view, job.IsOrderUpdateMail, prevItems)
	if err != nil {
		d.markFailed(ctx, job, err)
		return
	}

	recipients := RecipientsForOrder(view)
	if len(recipients) == 0 {
		// Nobody to mail is a quiet success, not an error.
		d.markSent(ctx, job, now)
		return
	}

	if !config.MailDisabled() {
		if err := d.Mailer.Send(jobCtx, recipients, content.Subject, content.HTML); err != nil {
			d.markFailed(ctx, job, err)
			return
		}
	}
	d.markSent(ctx, job, now)
}

func (d *NotificationDispatcher) markSent(ctx context.Context, job models.NotificationJob, now time.Time) {
	db := d.DB.WithContext(utils.SetSkipTenantScopeInContext(ctx, true))
	_ = db.Model(&models.NotificationJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          models.NotificationStatusSent,
			"sent_at":         &now,
			"locked_at":       nil,
			"locked_by":       nil,
			"next_attempt_at": nil,
		}).Error
	d.publishOrderEvent(ctx, job, config.OrderEventMailSent)
}

func (d *NotificationDispatcher) markFailed(ctx context.Context, job models.NotificationJob, sendErr error) {
	db := d.DB.WithContext(utils.SetSkipTenantScopeInContext(ctx, true))
	now := time.Now().UTC()
	msg := sendErr.Error()

	// Terminal after MaxAttempts.
	if d.MaxAttempts > 0 && job.Attempts >= d.MaxAttempts {
		_ = db.Model(&models.NotificationJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":          models.NotificationStatusDead,
				"last_error":      &msg,
				"next_attempt_at": nil,
				"locked_at":       nil,
				"locked_by":       nil,
			}).Error

		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":       "NotificationDispatcher",
				"business_id": job.BusinessId,
				"job_id":      job.ID,
				"order_id":    job.OrderId,
				"attempt":     job.Attempts,
			}).Error("order mail moved to DEAD after max attempts: " + fmt.Sprintf("%v", sendErr))
		}
		d.publishOrderEvent(ctx, job, config.OrderEventMailDead)
		return
	}

	next := now.Add(nextBackoff(d.InitialBackoff, job.Attempts))
	_ = db.Model(&models.NotificationJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          models.NotificationStatusFailed,
			"last_error":      &msg,
			"next_attempt_at": &next,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "NotificationDispatcher",
			"business_id":     job.BusinessId,
			"job_id":          job.ID,
			"order_id":        job.OrderId,
			"attempt":         job.Attempts,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("order mail send failed: " + fmt.Sprintf("%v", sendErr))
	}
}

// nextBackoff doubles the initial delay per prior attempt, capped at 10m.
func nextBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			backoff = time.Minute * 10
			break
		}
	}
	return backoff
}

func (d *NotificationDispatcher) markDead(ctx context.Context, job models.NotificationJob, reason string) {
	db := d.DB.WithContext(utils.SetSkipTenantScopeInContext(ctx, true))
	_ = db.Model(&models.NotificationJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          models.NotificationStatusDead,
			"last_error":      &reason,
			"next_attempt_at": nil,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":       "NotificationDispatcher",
			"business_id": job.BusinessId,
			"job_id":      job.ID,
			"order_id":    job.OrderId,
		}).Error("order mail moved to DEAD: " + reason)
	}
	d.publishOrderEvent(ctx, job, config.OrderEventMailDead)
}

func (d *NotificationDispatcher) publishOrderEvent(ctx context.Context, job models.NotificationJob, eventType string) {
	if !config.OrderEventsEnabled() {
		return
	}
	event := config.OrderEvent{
		BusinessId:    job.BusinessId,
		OrderId:       job.OrderId,
		EventType:     eventType,
		IsUpdateMail:  job.IsOrderUpdateMail,
		OccurredAt:    time.Now().UTC(),
		CorrelationId: job.CorrelationId,
	}
	if _, err := config.PublishOrderEvent(ctx, event); err != nil && d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":       "NotificationDispatcher",
			"business_id": job.BusinessId,
			"order_id":    job.OrderId,
		}).Error("order event publish failed: " + fmt.Sprintf("%v", err))
	}
}
