// Package payments owns the durable Payment record: creation of the pending
// row, correlation with the provider, and the guarded status transitions.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"learnpay/errs"
	"learnpay/events"
	"learnpay/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Manager reads and writes payment rows. Status only leaves PENDING through
// the conditional updates below.
type Manager struct {
	db  *gorm.DB
	Now func() time.Time
}

func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db, Now: time.Now}
}

// Correlation holds the provider identifiers returned by intent creation.
type Correlation struct {
	IntentID   string
	SessionID  string
	Reference  string
	AccessCode string
	Raw        []byte
}

// CreatePending inserts p as PENDING.
func (m *Manager) CreatePending(ctx context.Context, p *models.Payment) error {
	p.Status = models.PaymentStatusPending
	if err := m.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// AttachCorrelation stores the provider identifiers on a pending payment.
func (m *Manager) AttachCorrelation(ctx context.Context, id uint, c Correlation) error {
	updates := map[string]interface{}{}
	if c.IntentID != "" {
		updates["provider_intent_id"] = c.IntentID
	}
	if c.SessionID != "" {
		updates["provider_session_id"] = c.SessionID
	}
	if c.Reference != "" {
		updates["provider_reference"] = c.Reference
	}
	if c.AccessCode != "" {
		updates["provider_access_code"] = c.AccessCode
	}
	if len(c.Raw) > 0 {
		updates["provider_response"] = datatypes.JSON(c.Raw)
	}
	if len(updates) == 0 {
		return nil
	}

	if err := m.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("store payment correlation: %w", err)
	}
	return nil
}

// Get loads a payment by id.
func (m *Manager) Get(ctx context.Context, id uint) (*models.Payment, error) {
	return m.get(m.db.WithContext(ctx), id)
}

func (m *Manager) get(tx *gorm.DB, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := tx.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("load payment %d: %w", id, err)
	}
	return &p, nil
}

// FindByCorrelation finds the payment a provider identifier belongs to.
func (m *Manager) FindByCorrelation(ctx context.Context, method models.PaymentMethod, correlationID string) (*models.Payment, error) {
	if correlationID == "" {
		return nil, errs.ErrPaymentNotFound
	}

	var p models.Payment
	err := m.db.WithContext(ctx).
		Where("payment_method = ?", method).
		Where("provider_intent_id = ? OR provider_session_id = ? OR provider_reference = ?", correlationID, correlationID, correlationID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find payment by correlation: %w", err)
	}
	return &p, nil
}

// ListForUser returns the user's payments, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID uint) ([]models.Payment, error) {
	var list []models.Payment
	if err := m.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return list, nil
}

// MaxReconcileAttempts is how many times the background sweep asks the
// provider about one payment before leaving it to webhooks and the student.
const MaxReconcileAttempts = 72

// ListStalePending returns pending payments created before cutoff that have a
// provider correlation id to look up. Payments never swept come first, then
// the ones swept longest ago, so a backlog of abandoned payments cannot
// starve newer ones.
func (m *Manager) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var list []models.Payment
	err := m.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, cutoff).
		Where("provider_intent_id IS NOT NULL OR provider_session_id IS NOT NULL OR provider_reference IS NOT NULL").
		Where("reconcile_attempts < ?", MaxReconcileAttempts).
		Order("CASE WHEN last_reconciled_at IS NULL THEN 0 ELSE 1 END, last_reconciled_at asc, created_at asc, id asc").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	return list, nil
}

// MarkSwept records one background sweep of the payment.
func (m *Manager) MarkSwept(ctx context.Context, id uint) error {
	err := m.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"reconcile_attempts": gorm.Expr("reconcile_attempts + 1"),
			"last_reconciled_at": m.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("mark payment %d swept: %w", id, err)
	}
	return nil
}

// ListSince returns payments created at or after since.
func (m *Manager) ListSince(ctx context.Context, since time.Time) ([]models.Payment, error) {
	var list []models.Payment
	if err := m.db.WithContext(ctx).Where("created_at >= ?", since).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list payments since %s: %w", since.Format(time.RFC3339), err)
	}
	return list, nil
}

// RecordLookup keeps the last raw provider response for audit.
func (m *Manager) RecordLookup(ctx context.Context, id uint, raw []byte) {
	if len(raw) == 0 {
		return
	}
	if err := m.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).
		Update("provider_response", datatypes.JSON(raw)).Error; err != nil {
		log.Printf("[PAYMENT] Failed to store provider response for payment %d: %v", id, err)
	}
}

// MarkCompleted moves a PENDING payment to COMPLETED inside tx. It reports
// false when another caller already moved it.
func (m *Manager) MarkCompleted(tx *gorm.DB, id uint) (bool, error) {
	now := m.Now()
	res := tx.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":       models.PaymentStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("complete payment %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// LinkEnrollment points the payment at its enrollment.
func (m *Manager) LinkEnrollment(tx *gorm.DB, id, enrollmentID uint) error {
	if err := tx.Model(&models.Payment{}).Where("id = ?", id).Update("enrollment_id", enrollmentID).Error; err != nil {
		return fmt.Errorf("link payment %d to enrollment %d: %w", id, enrollmentID, err)
	}
	return nil
}

// MarkFailed moves a PENDING payment to FAILED and publishes payment.failed.
// It reports false when the payment was no longer pending.
func (m *Manager) MarkFailed(ctx context.Context, id uint, reason string) (bool, error) {
	moved := false
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", id, models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":         models.PaymentStatusFailed,
				"failure_reason": reason,
				"failed_at":      m.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		moved = true

		p, err := m.get(tx, id)
		if err != nil {
			return err
		}
		return events.Publish(tx, events.TopicPaymentFailed, events.AggregatePayment, p.ID, PaymentEvent(p, reason))
	})
	if err != nil {
		return false, fmt.Errorf("fail payment %d: %w", id, err)
	}
	return moved, nil
}

// PaymentEvent builds the payload of payment.* events.
func PaymentEvent(p *models.Payment, reason string) events.PaymentPayload {
	return events.PaymentPayload{
		PaymentID:    p.ID,
		UserID:       p.UserID,
		CourseID:     p.CourseID,
		EnrollmentID: p.EnrollmentID,
		Method:       string(p.PaymentMethod),
		Amount:       p.SettlementAmount.StringFixed(2),
		Currency:     p.SettlementCurrency,
		Reason:       reason,
	}
}
