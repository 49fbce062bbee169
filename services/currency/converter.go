// Package currency converts course prices into a provider's settlement currency.
package currency

import (
	"context"
	"fmt"
	"strings"

	"learnpay/errs"

	"github.com/shopspring/decimal"
)

// RateSource returns how many units of `to` one unit of `from` buys.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Conversion is the result of converting a base amount.
type Conversion struct {
	Amount decimal.Decimal
	Rate   decimal.Decimal
	From   string
	To     string
}

// Converted reports whether a rate other than identity was applied.
func (c Conversion) Converted() bool {
	return c.From != c.To
}

// Converter applies a fetched exchange rate. It never falls back to a rate
// of 1 for differing currencies.
type Converter struct {
	source RateSource
}

func NewConverter(source RateSource) *Converter {
	return &Converter{source: source}
}

// Convert converts amount from one currency to another, rounded to 2 decimals.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (Conversion, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	if !amount.IsPositive() {
		return Conversion{}, errs.ErrInvalidAmount
	}

	if from == to {
		return Conversion{Amount: amount.Round(2), Rate: decimal.NewFromInt(1), From: from, To: to}, nil
	}

	if c.source == nil {
		return Conversion{}, errs.ErrRateUnavailable
	}

	rate, err := c.source.Rate(ctx, from, to)
	if err != nil {
		return Conversion{}, fmt.Errorf("%w: %s->%s: %v", errs.ErrRateUnavailable, from, to, err)
	}
	if !rate.IsPositive() {
		return Conversion{}, fmt.Errorf("%w: %s->%s: non-positive rate %s", errs.ErrRateUnavailable, from, to, rate)
	}

	return Conversion{
		Amount: amount.Mul(rate).Round(2),
		Rate:   rate,
		From:   from,
		To:     to,
	}, nil
}
