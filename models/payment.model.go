package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus defines the status of a course payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// PaymentMethod identifies the provider a payment was routed through
type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodRegional PaymentMethod = "regional"
)

// Payment is one attempted charge through one provider for one course.
// Status only moves PENDING -> COMPLETED | FAILED.
type Payment struct {
	gorm.Model
	UserID       uint  `gorm:"not null;index" json:"userId"`
	CourseID     uint  `gorm:"not null;index" json:"courseId"`
	EnrollmentID *uint `gorm:"index" json:"enrollmentId"`

	Amount             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency           string          `gorm:"type:varchar(3);not null" json:"currency"`
	SettlementAmount   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"settlementAmount"`
	SettlementCurrency string          `gorm:"type:varchar(3);not null" json:"settlementCurrency"`
	ExchangeRate       decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"exchangeRate"`

	PaymentMethod PaymentMethod `gorm:"type:varchar(20);not null" json:"paymentMethod"`

	// Provider correlation fields
	ProviderIntentID   *string `gorm:"type:varchar(255);uniqueIndex" json:"providerIntentId,omitempty"`   // card payment intent
	ProviderSessionID  *string `gorm:"type:varchar(255);uniqueIndex" json:"providerSessionId,omitempty"`  // card checkout session
	ProviderReference  *string `gorm:"type:varchar(255);uniqueIndex" json:"providerReference,omitempty"`  // regional reference
	ProviderAccessCode string  `gorm:"type:varchar(255)" json:"providerAccessCode,omitempty"`              // regional access code

	Status           PaymentStatus  `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	FailureReason    string         `gorm:"type:text" json:"failureReason,omitempty"`
	ProviderResponse datatypes.JSON `json:"-"`
	CompletedAt      *time.Time     `json:"completedAt"`
	FailedAt         *time.Time     `json:"failedAt"`

	// Background sweep bookkeeping
	ReconcileAttempts int        `gorm:"not null;default:0" json:"-"`
	LastReconciledAt  *time.Time `gorm:"index" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// CorrelationID returns the identifier the provider knows this payment by.
func (p *Payment) CorrelationID() string {
	switch p.PaymentMethod {
	case PaymentMethodCard:
		if p.ProviderIntentID != nil && *p.ProviderIntentID != "" {
			return *p.ProviderIntentID
		}
		if p.ProviderSessionID != nil {
			return *p.ProviderSessionID
		}
	case PaymentMethodRegional:
		if p.ProviderReference != nil {
			return *p.ProviderReference
		}
	}
	return ""
}

// OwnsCorrelation reports whether id is one of the stored provider identifiers.
func (p *Payment) OwnsCorrelation(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, stored := range []*string{p.ProviderIntentID, p.ProviderSessionID, p.ProviderReference} {
		if stored != nil && *stored == id {
			return true
		}
	}
	return false
}

// WasConverted reports whether the settlement currency differs from the base.
func (p *Payment) WasConverted() bool {
	return !strings.EqualFold(p.Currency, p.SettlementCurrency)
}
