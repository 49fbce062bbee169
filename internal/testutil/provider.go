package testutil

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"learnpay/errs"
	"learnpay/models"
	"learnpay/services/providers"

	"github.com/shopspring/decimal"
)

// FakeProvider is a scriptable providers.Provider. Lookups answer from the
// Lookups map keyed by correlation id; unknown ids report PROCESSING.
type FakeProvider struct {
	PaymentMethod models.PaymentMethod
	Rate          decimal.Decimal // applied by Quote; zero means identity
	Settlement    string          // settlement currency when Rate is set

	QuoteErr  error
	IntentErr error
	LookupErr error

	mu          sync.Mutex
	Lookups     map[string]*providers.Lookup
	Created     []providers.IntentRequest
	LookupCalls int
	next        int
}

// NewFakeCard returns a fake card-style provider.
func NewFakeCard() *FakeProvider {
	return &FakeProvider{PaymentMethod: models.PaymentMethodCard, Lookups: map[string]*providers.Lookup{}}
}

// NewFakeRegional returns a fake regional provider converting at rate into settlement.
func NewFakeRegional(rate decimal.Decimal, settlement string) *FakeProvider {
	return &FakeProvider{
		PaymentMethod: models.PaymentMethodRegional,
		Rate:          rate,
		Settlement:    settlement,
		Lookups:       map[string]*providers.Lookup{},
	}
}

func (f *FakeProvider) Method() models.PaymentMethod { return f.PaymentMethod }

func (f *FakeProvider) PublicKey() string { return "pk_" + string(f.PaymentMethod) }

func (f *FakeProvider) Quote(_ context.Context, amount decimal.Decimal, currency string) (providers.Quote, error) {
	if f.QuoteErr != nil {
		return providers.Quote{}, f.QuoteErr
	}
	if f.Rate.IsZero() || strings.EqualFold(currency, f.Settlement) {
		return providers.Quote{Amount: amount, Currency: strings.ToUpper(currency), Rate: decimal.NewFromInt(1)}, nil
	}
	return providers.Quote{Amount: amount.Mul(f.Rate).Round(2), Currency: f.Settlement, Rate: f.Rate}, nil
}

func (f *FakeProvider) CreateIntent(_ context.Context, req providers.IntentRequest) (*providers.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IntentErr != nil {
		return nil, f.IntentErr
	}
	f.Created = append(f.Created, req)
	f.next++

	if f.PaymentMethod == models.PaymentMethodRegional {
		return &providers.Intent{
			Reference:        req.Reference,
			AccessCode:       fmt.Sprintf("ac_%d", f.next),
			AuthorizationURL: "https://checkout.test/" + req.Reference,
		}, nil
	}
	id := fmt.Sprintf("pi_fake_%d", req.PaymentID)
	return &providers.Intent{IntentID: id, ClientSecret: id + "_secret"}, nil
}

func (f *FakeProvider) LookupPayment(_ context.Context, correlationID string) (*providers.Lookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LookupCalls++
	if f.LookupErr != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrProviderUnavailable, f.LookupErr)
	}
	if l, ok := f.Lookups[correlationID]; ok {
		copied := *l
		return &copied, nil
	}
	return &providers.Lookup{State: providers.StateProcessing}, nil
}

func (f *FakeProvider) ParseWebhook(body []byte, signature string) (*providers.WebhookEvent, error) {
	if signature != "valid" {
		return nil, errs.ErrInvalidSignature
	}
	// Body is "<provider id>" or "<provider id>|<payment id>".
	id, ref, _ := strings.Cut(string(body), "|")
	return &providers.WebhookEvent{Type: "test", CorrelationID: id, PaymentRef: ref}, nil
}

// Settle scripts a successful lookup for payment.
func (f *FakeProvider) Settle(payment *models.Payment) {
	f.SetLookup(payment.CorrelationID(), &providers.Lookup{
		State:      providers.StateSettled,
		Amount:     payment.SettlementAmount,
		Currency:   payment.SettlementCurrency,
		PaymentRef: strconv.FormatUint(uint64(payment.ID), 10),
	})
}

// Decline scripts a failed lookup for payment.
func (f *FakeProvider) Decline(payment *models.Payment, reason string) {
	f.SetLookup(payment.CorrelationID(), &providers.Lookup{
		State:      providers.StateFailed,
		PaymentRef: strconv.FormatUint(uint64(payment.ID), 10),
		Reason:     reason,
	})
}

// SetLookup scripts the lookup result for correlationID.
func (f *FakeProvider) SetLookup(correlationID string, l *providers.Lookup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lookups[correlationID] = l
}

// Calls returns how many lookups were made.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LookupCalls
}
