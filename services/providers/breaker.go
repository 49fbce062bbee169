package providers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"learnpay/errs"
	"learnpay/models"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// guarded wraps a Provider's network calls in a circuit breaker. Once the
// provider keeps failing, calls fail fast with ErrProviderUnavailable
// instead of tying up request handlers until their timeouts.
type guarded struct {
	inner   Provider
	intents *gobreaker.CircuitBreaker[*Intent]
	lookups *gobreaker.CircuitBreaker[*Lookup]
}

func withBreaker(p Provider) Provider {
	name := string(p.Method())
	return &guarded{
		inner:   p,
		intents: gobreaker.NewCircuitBreaker[*Intent](breakerSettings(name + "-intents")),
		lookups: gobreaker.NewCircuitBreaker[*Lookup](breakerSettings(name + "-lookups")),
	}
}

func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[CIRCUIT BREAKER] %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

func (g *guarded) Method() models.PaymentMethod { return g.inner.Method() }

func (g *guarded) PublicKey() string { return g.inner.PublicKey() }

func (g *guarded) Quote(ctx context.Context, amount decimal.Decimal, currency string) (Quote, error) {
	return g.inner.Quote(ctx, amount, currency)
}

func (g *guarded) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	intent, err := g.intents.Execute(func() (*Intent, error) {
		return g.inner.CreateIntent(ctx, req)
	})
	return intent, unavailable(err)
}

func (g *guarded) LookupPayment(ctx context.Context, correlationID string) (*Lookup, error) {
	lookup, err := g.lookups.Execute(func() (*Lookup, error) {
		return g.inner.LookupPayment(ctx, correlationID)
	})
	return lookup, unavailable(err)
}

func (g *guarded) ParseWebhook(body []byte, signature string) (*WebhookEvent, error) {
	return g.inner.ParseWebhook(body, signature)
}

// unavailable classifies transport and breaker errors as ErrProviderUnavailable.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	var appErr *errs.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%w: %v", errs.ErrProviderUnavailable, err)
}
