package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"learnpay/errs"
	"learnpay/models"
	"learnpay/services/currency"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// RegionalConfig configures the regional processor client.
type RegionalConfig struct {
	BaseURL            string
	PublicKey          string
	SecretKey          string
	SettlementCurrency string
	Timeout            time.Duration
}

// RegionalProvider talks to a Paystack-compatible transactions API. It only
// settles in one currency, so prices are converted first.
type RegionalProvider struct {
	client             *resty.Client
	converter          *currency.Converter
	publicKey          string
	secretKey          string
	settlementCurrency string
}

type regionalMetadata struct {
	PaymentID string `json:"payment_id"`
	CourseID  uint   `json:"course_id"`
	UserID    uint   `json:"user_id"`
}

type regionalInitRequest struct {
	Email     string           `json:"email"`
	Amount    int64            `json:"amount"`
	Currency  string           `json:"currency"`
	Reference string           `json:"reference"`
	Metadata  regionalMetadata `json:"metadata"`
}

type regionalInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type regionalVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status          string           `json:"status"`
		Reference       string           `json:"reference"`
		Amount          int64            `json:"amount"`
		Currency        string           `json:"currency"`
		GatewayResponse string           `json:"gateway_response"`
		Metadata        regionalMetadata `json:"metadata"`
	} `json:"data"`
}

type regionalEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string           `json:"reference"`
		Metadata  regionalMetadata `json:"metadata"`
	} `json:"data"`
}

// NewRegionalProvider builds the regional adapter around converter.
func NewRegionalProvider(cfg RegionalConfig, converter *currency.Converter) *RegionalProvider {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &RegionalProvider{
		client:             client,
		converter:          converter,
		publicKey:          cfg.PublicKey,
		secretKey:          cfg.SecretKey,
		settlementCurrency: strings.ToUpper(cfg.SettlementCurrency),
	}
}

func (p *RegionalProvider) Method() models.PaymentMethod { return models.PaymentMethodRegional }

func (p *RegionalProvider) PublicKey() string { return p.publicKey }

// Quote converts the base amount into the settlement currency when they differ.
func (p *RegionalProvider) Quote(ctx context.Context, amount decimal.Decimal, baseCurrency string) (Quote, error) {
	conv, err := p.converter.Convert(ctx, amount, baseCurrency, p.settlementCurrency)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Amount: conv.Amount, Currency: conv.To, Rate: conv.Rate}, nil
}

// CreateIntent initializes a transaction under req.Reference.
func (p *RegionalProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body := regionalInitRequest{
		Email:     req.Payer.Email,
		Amount:    ToMinorUnits(req.Amount),
		Currency:  strings.ToUpper(req.Currency),
		Reference: req.Reference,
		Metadata: regionalMetadata{
			PaymentID: paymentRef(req.PaymentID),
			CourseID:  req.CourseID,
			UserID:    req.Payer.UserID,
		},
	}

	var out regionalInitResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/transaction/initialize")
	if err != nil {
		return nil, fmt.Errorf("initialize regional transaction: %w", err)
	}
	if resp.IsError() || !out.Status {
		return nil, fmt.Errorf("initialize regional transaction: status %d: %s", resp.StatusCode(), out.Message)
	}

	reference := out.Data.Reference
	if reference == "" {
		reference = req.Reference
	}

	return &Intent{
		Reference:        reference,
		AccessCode:       out.Data.AccessCode,
		AuthorizationURL: out.Data.AuthorizationURL,
		Raw:              resp.Body(),
	}, nil
}

// LookupPayment verifies the transaction by reference.
func (p *RegionalProvider) LookupPayment(ctx context.Context, reference string) (*Lookup, error) {
	var out regionalVerifyResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("reference", reference).
		SetResult(&out).
		SetError(&out).
		Get("/transaction/verify/{reference}")
	if err != nil {
		return nil, fmt.Errorf("verify regional transaction: %w", err)
	}
	if resp.IsError() || !out.Status {
		return nil, fmt.Errorf("verify regional transaction: status %d: %s", resp.StatusCode(), out.Message)
	}

	lookup := &Lookup{
		Amount:     FromMinorUnits(out.Data.Amount),
		Currency:   strings.ToUpper(out.Data.Currency),
		PaymentRef: out.Data.Metadata.PaymentID,
		Reason:     out.Data.GatewayResponse,
		Raw:        resp.Body(),
	}
	switch out.Data.Status {
	case "success":
		lookup.State = StateSettled
	case "failed", "reversed":
		lookup.State = StateFailed
	default:
		// abandoned, ongoing, pending, processing, queued: the payer may still complete it
		lookup.State = StateProcessing
	}
	return lookup, nil
}

// ParseWebhook checks the HMAC-SHA512 body signature.
func (p *RegionalProvider) ParseWebhook(body []byte, signature string) (*WebhookEvent, error) {
	if p.secretKey == "" {
		return nil, errs.ErrInvalidSignature
	}
	expected := SignRegionalPayload(p.secretKey, body)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return nil, errs.ErrInvalidSignature
	}

	var event regionalEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode regional webhook: %w", err)
	}

	return &WebhookEvent{
		Type:          event.Event,
		CorrelationID: event.Data.Reference,
		PaymentRef:    event.Data.Metadata.PaymentID,
	}, nil
}

// SignRegionalPayload computes the signature header value for a regional webhook body.
func SignRegionalPayload(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
