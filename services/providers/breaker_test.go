package providers

import (
	"context"
	"errors"
	"testing"

	"learnpay/errs"
	"learnpay/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downProvider struct {
	lookups int
}

func (d *downProvider) Method() models.PaymentMethod { return models.PaymentMethodCard }
func (d *downProvider) PublicKey() string            { return "pk" }
func (d *downProvider) Quote(_ context.Context, a decimal.Decimal, c string) (Quote, error) {
	return Quote{Amount: a, Currency: c, Rate: decimal.NewFromInt(1)}, nil
}
func (d *downProvider) CreateIntent(context.Context, IntentRequest) (*Intent, error) {
	return nil, errors.New("connection refused")
}
func (d *downProvider) LookupPayment(context.Context, string) (*Lookup, error) {
	d.lookups++
	return nil, errors.New("connection refused")
}
func (d *downProvider) ParseWebhook([]byte, string) (*WebhookEvent, error) {
	return nil, errs.ErrInvalidSignature
}

func TestBreakerClassifiesTransportErrors(t *testing.T) {
	reg := NewRegistry(&downProvider{})
	p, err := reg.Get(models.PaymentMethodCard)
	require.NoError(t, err)

	_, err = p.CreateIntent(context.Background(), IntentRequest{PaymentID: 1})
	assert.True(t, errors.Is(err, errs.ErrProviderUnavailable))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	inner := &downProvider{}
	p := withBreaker(inner)

	for i := 0; i < 10; i++ {
		_, err := p.LookupPayment(context.Background(), "pi_1")
		assert.True(t, errors.Is(err, errs.ErrProviderUnavailable))
	}
	// Once open, the inner provider is no longer called.
	assert.Equal(t, 5, inner.lookups)
}

func TestBreakerKeepsAppErrors(t *testing.T) {
	p := withBreaker(&downProvider{})
	_, err := p.ParseWebhook(nil, "")
	assert.True(t, errors.Is(err, errs.ErrInvalidSignature))
}

func TestRegistryUnknownMethod(t *testing.T) {
	reg := NewRegistry(&downProvider{})
	_, err := reg.Get(models.PaymentMethodRegional)
	assert.True(t, errors.Is(err, errs.ErrUnsupportedMethod))
	assert.Equal(t, map[models.PaymentMethod]string{models.PaymentMethodCard: "pk"}, reg.PublicKeys())
}
