package currency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learnpay/errs"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRates struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (s *staticRates) Rate(_ context.Context, _, _ string) (decimal.Decimal, error) {
	s.calls++
	return s.rate, s.err
}

func TestConvertUSDToNGN(t *testing.T) {
	src := &staticRates{rate: decimal.NewFromInt(1600)}
	conv, err := NewConverter(src).Convert(context.Background(), decimal.NewFromInt(100), "USD", "NGN")
	require.NoError(t, err)

	assert.True(t, conv.Amount.Equal(decimal.NewFromInt(160000)), "got %s", conv.Amount)
	assert.True(t, conv.Rate.Equal(decimal.NewFromInt(1600)))
	assert.True(t, conv.Converted())
	assert.Equal(t, 1, src.calls)
}

func TestConvertSameCurrencySkipsFetch(t *testing.T) {
	src := &staticRates{err: errors.New("should not be called")}
	conv, err := NewConverter(src).Convert(context.Background(), decimal.RequireFromString("49.99"), "usd", "USD")
	require.NoError(t, err)

	assert.True(t, conv.Amount.Equal(decimal.RequireFromString("49.99")))
	assert.True(t, conv.Rate.Equal(decimal.NewFromInt(1)))
	assert.False(t, conv.Converted())
	assert.Equal(t, 0, src.calls)
}

func TestConvertRoundsToTwoDecimals(t *testing.T) {
	src := &staticRates{rate: decimal.RequireFromString("1583.456")}
	conv, err := NewConverter(src).Convert(context.Background(), decimal.RequireFromString("19.99"), "USD", "NGN")
	require.NoError(t, err)

	assert.Equal(t, "31653.29", conv.Amount.StringFixed(2))
}

func TestConvertNeverDefaultsToIdentity(t *testing.T) {
	tests := []struct {
		name string
		src  RateSource
	}{
		{name: "fetch error", src: &staticRates{err: errors.New("timeout")}},
		{name: "zero rate", src: &staticRates{rate: decimal.Zero}},
		{name: "negative rate", src: &staticRates{rate: decimal.NewFromInt(-3)}},
		{name: "no source", src: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConverter(tt.src).Convert(context.Background(), decimal.NewFromInt(100), "USD", "NGN")
			assert.ErrorIs(t, err, errs.ErrRateUnavailable)
		})
	}
}

func TestConvertRejectsNonPositiveAmount(t *testing.T) {
	c := NewConverter(&staticRates{rate: decimal.NewFromInt(1600)})

	_, err := c.Convert(context.Background(), decimal.Zero, "USD", "NGN")
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)

	_, err = c.Convert(context.Background(), decimal.NewFromInt(-5), "USD", "USD")
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
}

func TestHTTPRateSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/test-key/pair/USD/NGN":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","target_code":"NGN","conversion_rate":1600}`))
		case "/test-key/pair/USD/XXX":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result":"error","error-type":"unsupported-code"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	src := NewHTTPRateSource(srv.URL, "test-key", 2*time.Second)

	rate, err := src.Rate(context.Background(), "USD", "NGN")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1600)))

	_, err = src.Rate(context.Background(), "USD", "XXX")
	assert.Error(t, err)

	conv, err := NewConverter(src).Convert(context.Background(), decimal.NewFromInt(100), "USD", "NGN")
	require.NoError(t, err)
	assert.True(t, conv.Amount.Equal(decimal.NewFromInt(160000)))
}
