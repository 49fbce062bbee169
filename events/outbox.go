// Package events carries domain events from the transactional writes of the
// payment and enrollment services to their subscribers. Events are written to
// the outbox_events table inside the caller's transaction and delivered by the
// Dispatcher afterwards, so a rolled back state change never notifies anyone.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"learnpay/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TopicPaymentCompleted     = "payment.completed"
	TopicPaymentFailed        = "payment.failed"
	TopicEnrollmentActivated  = "enrollment.activated"
	TopicEnrollmentPending    = "enrollment.pending"
	TopicEnrollmentDropped    = "enrollment.dropped"
	TopicCertificateRequested = "certificate.requested"
	TopicCertificateApproved  = "certificate.approved"
)

const (
	AggregatePayment     = "payment"
	AggregateEnrollment  = "enrollment"
	AggregateCertificate = "certificate"
)

// Publish writes an event in tx. It must be called with the same transaction
// that performs the state change.
func Publish(tx *gorm.DB, topic, aggregateType string, aggregateID uint, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	event := models.OutboxEvent{
		ID:            uuid.NewString(),
		Topic:         topic,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       datatypes.JSON(body),
		CreatedAt:     time.Now(),
	}

	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("insert %s event: %w", topic, err)
	}
	return nil
}

// EnrollmentPayload is the body of enrollment.* events.
type EnrollmentPayload struct {
	EnrollmentID uint   `json:"enrollmentId"`
	UserID       uint   `json:"userId"`
	CourseID     uint   `json:"courseId"`
	Status       string `json:"status"`
	PaymentID    *uint  `json:"paymentId,omitempty"`
}

// PaymentPayload is the body of payment.* events.
type PaymentPayload struct {
	PaymentID    uint   `json:"paymentId"`
	UserID       uint   `json:"userId"`
	CourseID     uint   `json:"courseId"`
	EnrollmentID *uint  `json:"enrollmentId,omitempty"`
	Method       string `json:"method"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Reason       string `json:"reason,omitempty"`
}

// CertificatePayload is the body of certificate.* events.
type CertificatePayload struct {
	RequestID         uint   `json:"requestId"`
	EnrollmentID      uint   `json:"enrollmentId"`
	UserID            uint   `json:"userId"`
	CourseID          uint   `json:"courseId"`
	CertificateNumber string `json:"certificateNumber,omitempty"`
}
