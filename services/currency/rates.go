package currency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

type pairResponse struct {
	Result         string          `json:"result"`
	ErrorType      string          `json:"error-type"`
	BaseCode       string          `json:"base_code"`
	TargetCode     string          `json:"target_code"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}

// HTTPRateSource fetches live pair rates from an exchange-rate API
// (GET {baseURL}/{apiKey}/pair/{FROM}/{TO}).
type HTTPRateSource struct {
	client *resty.Client
	apiKey string
}

// NewHTTPRateSource returns a rate source with its own timeout and retry policy.
func NewHTTPRateSource(baseURL, apiKey string, timeout time.Duration) *HTTPRateSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Accept", "application/json")

	return &HTTPRateSource{client: client, apiKey: apiKey}
}

// Rate implements RateSource.
func (s *HTTPRateSource) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if s.apiKey == "" {
		return decimal.Zero, fmt.Errorf("rate api key not configured")
	}

	var out pairResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"key": s.apiKey, "from": from, "to": to}).
		SetResult(&out).
		Get("/{key}/pair/{from}/{to}")
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("fetch rate: status %d", resp.StatusCode())
	}
	if out.Result != "success" {
		return decimal.Zero, fmt.Errorf("fetch rate: %s", out.ErrorType)
	}

	return out.ConversionRate, nil
}
