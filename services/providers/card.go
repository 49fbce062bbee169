package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"learnpay/errs"
	"learnpay/models"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const webhookTolerance = 5 * time.Minute

// CardConfig configures the card-network processor client.
type CardConfig struct {
	BaseURL       string
	PublicKey     string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// CardProvider talks to a Stripe-compatible payment-intents API. Settlement
// happens in the course currency, so Quote never converts.
type CardProvider struct {
	client        *resty.Client
	publicKey     string
	webhookSecret string
	now           func() time.Time
}

type cardAPIError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type cardMetadata struct {
	PaymentID string `json:"payment_id"`
	CourseID  string `json:"course_id"`
	UserID    string `json:"user_id"`
}

type cardIntent struct {
	ID                 string       `json:"id"`
	Object             string       `json:"object"`
	Amount             int64        `json:"amount"`
	Currency           string       `json:"currency"`
	Status             string       `json:"status"`
	ClientSecret       string       `json:"client_secret"`
	CancellationReason string       `json:"cancellation_reason"`
	Metadata           cardMetadata `json:"metadata"`
}

type cardSession struct {
	ID            string       `json:"id"`
	Object        string       `json:"object"`
	Status        string       `json:"status"`
	PaymentStatus string       `json:"payment_status"`
	AmountTotal   int64        `json:"amount_total"`
	Currency      string       `json:"currency"`
	PaymentIntent string       `json:"payment_intent"`
	Metadata      cardMetadata `json:"metadata"`
}

type cardEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string       `json:"id"`
			Object   string       `json:"object"`
			Metadata cardMetadata `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// NewCardProvider builds the card adapter.
func NewCardProvider(cfg CardConfig) *CardProvider {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Accept", "application/json")

	return &CardProvider{
		client:        client,
		publicKey:     cfg.PublicKey,
		webhookSecret: cfg.WebhookSecret,
		now:           time.Now,
	}
}

func (p *CardProvider) Method() models.PaymentMethod { return models.PaymentMethodCard }

func (p *CardProvider) PublicKey() string { return p.publicKey }

// Quote returns the input unchanged.
func (p *CardProvider) Quote(_ context.Context, amount decimal.Decimal, currency string) (Quote, error) {
	return Quote{Amount: amount, Currency: strings.ToUpper(currency), Rate: decimal.NewFromInt(1)}, nil
}

// CreateIntent creates a payment intent and returns its client secret.
func (p *CardProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	form := map[string]string{
		"amount":                             strconv.FormatInt(ToMinorUnits(req.Amount), 10),
		"currency":                           strings.ToLower(req.Currency),
		"description":                        req.CourseTitle,
		"metadata[payment_id]":               paymentRef(req.PaymentID),
		"metadata[course_id]":                strconv.FormatUint(uint64(req.CourseID), 10),
		"metadata[user_id]":                  strconv.FormatUint(uint64(req.Payer.UserID), 10),
		"automatic_payment_methods[enabled]": "true",
	}
	if req.Payer.Email != "" {
		form["receipt_email"] = req.Payer.Email
	}

	var out cardIntent
	var apiErr cardAPIError
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", "payment-"+paymentRef(req.PaymentID)).
		SetFormData(form).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/payment_intents")
	if err != nil {
		return nil, fmt.Errorf("create card intent: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create card intent: status %d: %s", resp.StatusCode(), apiErr.Error.Message)
	}
	if out.ID == "" || out.ClientSecret == "" {
		return nil, fmt.Errorf("create card intent: incomplete response")
	}

	return &Intent{
		IntentID:     out.ID,
		ClientSecret: out.ClientSecret,
		Raw:          resp.Body(),
	}, nil
}

// LookupPayment reads the intent, or the checkout session for "cs_" ids.
func (p *CardProvider) LookupPayment(ctx context.Context, correlationID string) (*Lookup, error) {
	if strings.HasPrefix(correlationID, "cs_") {
		return p.lookupSession(ctx, correlationID)
	}

	var out cardIntent
	var apiErr cardAPIError
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("id", correlationID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/payment_intents/{id}")
	if err != nil {
		return nil, fmt.Errorf("lookup card intent: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("lookup card intent: status %d: %s", resp.StatusCode(), apiErr.Error.Message)
	}

	lookup := &Lookup{
		Amount:     FromMinorUnits(out.Amount),
		Currency:   strings.ToUpper(out.Currency),
		PaymentRef: out.Metadata.PaymentID,
		Raw:        resp.Body(),
	}
	switch out.Status {
	case "succeeded":
		lookup.State = StateSettled
	case "canceled":
		lookup.State = StateFailed
		lookup.Reason = "canceled: " + out.CancellationReason
	default:
		// requires_payment_method, requires_action, processing, ...
		lookup.State = StateProcessing
	}
	return lookup, nil
}

func (p *CardProvider) lookupSession(ctx context.Context, sessionID string) (*Lookup, error) {
	var out cardSession
	var apiErr cardAPIError
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/checkout/sessions/{id}")
	if err != nil {
		return nil, fmt.Errorf("lookup checkout session: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("lookup checkout session: status %d: %s", resp.StatusCode(), apiErr.Error.Message)
	}

	lookup := &Lookup{
		Amount:     FromMinorUnits(out.AmountTotal),
		Currency:   strings.ToUpper(out.Currency),
		PaymentRef: out.Metadata.PaymentID,
		Raw:        resp.Body(),
	}
	switch {
	case out.PaymentStatus == "paid":
		lookup.State = StateSettled
	case out.Status == "expired":
		lookup.State = StateFailed
		lookup.Reason = "checkout session expired"
	default:
		lookup.State = StateProcessing
	}
	return lookup, nil
}

// ParseWebhook checks the "t=...,v1=..." signature header and extracts the
// object the event is about.
func (p *CardProvider) ParseWebhook(body []byte, signature string) (*WebhookEvent, error) {
	if p.webhookSecret == "" || !p.validSignature(body, signature) {
		return nil, errs.ErrInvalidSignature
	}

	var event cardEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode card webhook: %w", err)
	}

	return &WebhookEvent{
		Type:          event.Type,
		CorrelationID: event.Data.Object.ID,
		PaymentRef:    event.Data.Object.Metadata.PaymentID,
	}, nil
}

func (p *CardProvider) validSignature(body []byte, header string) bool {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := p.now().Sub(time.Unix(ts, 0))
	if age > webhookTolerance || age < -webhookTolerance {
		return false
	}

	expected := SignCardPayload(p.webhookSecret, timestamp, body)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

// SignCardPayload computes the v1 signature for a card webhook body.
func SignCardPayload(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
