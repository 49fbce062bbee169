package providers

import (
	"fmt"

	"learnpay/config"
	"learnpay/errs"
	"learnpay/models"
	"learnpay/services/currency"
)

// Registry holds one client per payment method. It is built once at startup
// and passed by reference to every service that needs a provider.
type Registry struct {
	providers map[models.PaymentMethod]Provider
}

// NewRegistry wraps each provider in a circuit breaker and indexes it by method.
func NewRegistry(list ...Provider) *Registry {
	r := &Registry{providers: make(map[models.PaymentMethod]Provider, len(list))}
	for _, p := range list {
		r.providers[p.Method()] = withBreaker(p)
	}
	return r
}

// NewRegistryFromConfig builds the card and regional clients from cfg.
func NewRegistryFromConfig(cfg *config.Config, converter *currency.Converter) *Registry {
	card := NewCardProvider(CardConfig{
		BaseURL:       cfg.CardAPIURL,
		PublicKey:     cfg.CardPublicKey,
		SecretKey:     cfg.CardSecretKey,
		WebhookSecret: cfg.CardWebhookSecret,
		Timeout:       cfg.ProviderTimeout,
	})
	regional := NewRegionalProvider(RegionalConfig{
		BaseURL:            cfg.RegionalAPIURL,
		PublicKey:          cfg.RegionalPublicKey,
		SecretKey:          cfg.RegionalSecretKey,
		SettlementCurrency: cfg.RegionalSettlementCurrency,
		Timeout:            cfg.ProviderTimeout,
	}, converter)

	return NewRegistry(card, regional)
}

// Get returns the provider for method.
func (r *Registry) Get(method models.PaymentMethod) (Provider, error) {
	p, ok := r.providers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedMethod, method)
	}
	return p, nil
}

// PublicKeys returns the non-secret key of every configured provider.
func (r *Registry) PublicKeys() map[models.PaymentMethod]string {
	keys := make(map[models.PaymentMethod]string, len(r.providers))
	for method, p := range r.providers {
		keys[method] = p.PublicKey()
	}
	return keys
}
