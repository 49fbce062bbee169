// Package providers adapts the card-network and regional payment processors
// behind one interface. Adapters only talk to the provider; the payment
// records are owned by the payments and verification services.
package providers

import (
	"context"
	"strconv"

	"learnpay/models"

	"github.com/shopspring/decimal"
)

// SettlementState is what the provider reports about a charge.
type SettlementState string

const (
	StateSettled    SettlementState = "SETTLED"
	StateFailed     SettlementState = "FAILED"
	StateProcessing SettlementState = "PROCESSING"
)

// Payer is who the provider should attribute the charge to.
type Payer struct {
	UserID uint
	Email  string
	Name   string
}

// Quote is the amount the provider will actually charge.
type Quote struct {
	Amount   decimal.Decimal
	Currency string
	Rate     decimal.Decimal
}

// IntentRequest describes a charge for a pending payment row.
type IntentRequest struct {
	PaymentID   uint
	CourseID    uint
	CourseTitle string
	Amount      decimal.Decimal // settlement amount
	Currency    string          // settlement currency
	Reference   string          // caller-chosen reference, regional only
	Payer       Payer
}

// Intent is the provider-specific descriptor handed to the client.
type Intent struct {
	IntentID         string
	ClientSecret     string
	Reference        string
	AccessCode       string
	AuthorizationURL string
	Raw              []byte
}

// Lookup is the provider's authoritative view of a charge.
type Lookup struct {
	State      SettlementState
	Amount     decimal.Decimal // zero when the provider did not report it
	Currency   string
	PaymentRef string // our payment id echoed back through metadata
	Reason     string
	Raw        []byte
}

// WebhookEvent is the part of a provider callback we act on. The callback's
// own claim of success is never used; it only triggers a lookup.
type WebhookEvent struct {
	Type          string
	CorrelationID string
	PaymentRef    string
}

// Provider is the capability shared by both processors.
type Provider interface {
	Method() models.PaymentMethod
	PublicKey() string
	Quote(ctx context.Context, amount decimal.Decimal, currency string) (Quote, error)
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	LookupPayment(ctx context.Context, correlationID string) (*Lookup, error)
	ParseWebhook(body []byte, signature string) (*WebhookEvent, error)
}

// ToMinorUnits converts an amount to the integer minor units providers expect.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func paymentRef(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
