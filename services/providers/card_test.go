package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"learnpay/errs"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCard(t *testing.T, handler http.HandlerFunc) *CardProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCardProvider(CardConfig{
		BaseURL:       srv.URL,
		PublicKey:     "pk_test_1",
		SecretKey:     "sk_test_1",
		WebhookSecret: "whsec_1",
		Timeout:       2 * time.Second,
	})
}

func TestCardCreateIntent(t *testing.T) {
	p := newTestCard(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Bearer sk_test_1", r.Header.Get("Authorization"))
		assert.Equal(t, "payment-42", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "4999", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[payment_id]"))
		assert.Equal(t, "7", r.PostForm.Get("metadata[course_id]"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc","status":"requires_payment_method"}`))
	})

	intent, err := p.CreateIntent(context.Background(), IntentRequest{
		PaymentID: 42,
		CourseID:  7,
		Amount:    decimal.RequireFromString("49.99"),
		Currency:  "USD",
		Payer:     Payer{UserID: 3, Email: "student@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.IntentID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
}

func TestCardCreateIntentProviderError(t *testing.T) {
	p := newTestCard(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`))
	})

	_, err := p.CreateIntent(context.Background(), IntentRequest{PaymentID: 1, Amount: decimal.NewFromInt(10), Currency: "XXX"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid currency")
}

func TestCardLookupPayment(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   SettlementState
	}{
		{"succeeded", "succeeded", StateSettled},
		{"canceled", "canceled", StateFailed},
		{"processing", "processing", StateProcessing},
		{"requires action", "requires_action", StateProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestCard(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/payment_intents/pi_9", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"id":"pi_9","amount":4999,"currency":"usd","status":"` + tt.status + `","metadata":{"payment_id":"9"}}`))
			})

			lookup, err := p.LookupPayment(context.Background(), "pi_9")
			require.NoError(t, err)
			assert.Equal(t, tt.want, lookup.State)
			assert.True(t, decimal.RequireFromString("49.99").Equal(lookup.Amount))
			assert.Equal(t, "USD", lookup.Currency)
			assert.Equal(t, "9", lookup.PaymentRef)
		})
	}
}

func TestCardLookupCheckoutSession(t *testing.T) {
	p := newTestCard(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions/cs_test_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cs_test_1","status":"complete","payment_status":"paid","amount_total":2000,"currency":"usd","metadata":{"payment_id":"5"}}`))
	})

	lookup, err := p.LookupPayment(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, StateSettled, lookup.State)
	assert.Equal(t, "5", lookup.PaymentRef)
}

func TestCardParseWebhook(t *testing.T) {
	p := newTestCard(t, func(w http.ResponseWriter, r *http.Request) {})
	fixed := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return fixed }

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_77","object":"payment_intent","metadata":{"payment_id":"77"}}}}`)
	ts := strconv.FormatInt(fixed.Unix(), 10)
	header := "t=" + ts + ",v1=" + SignCardPayload("whsec_1", ts, body)

	event, err := p.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", event.Type)
	assert.Equal(t, "pi_77", event.CorrelationID)
	assert.Equal(t, "77", event.PaymentRef)

	t.Run("tampered body", func(t *testing.T) {
		_, err := p.ParseWebhook(append(body, ' '), header)
		assert.True(t, errors.Is(err, errs.ErrInvalidSignature))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := strconv.FormatInt(fixed.Add(-10*time.Minute).Unix(), 10)
		_, err := p.ParseWebhook(body, "t="+old+",v1="+SignCardPayload("whsec_1", old, body))
		assert.True(t, errors.Is(err, errs.ErrInvalidSignature))
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := p.ParseWebhook(body, "")
		assert.True(t, errors.Is(err, errs.ErrInvalidSignature))
	})
}

func TestCardQuoteIsIdentity(t *testing.T) {
	p := newTestCard(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("quote must not call the provider")
	})

	q, err := p.Quote(context.Background(), decimal.RequireFromString("19.99"), "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", q.Currency)
	assert.True(t, q.Amount.Equal(decimal.RequireFromString("19.99")))
	assert.True(t, q.Rate.Equal(decimal.NewFromInt(1)))
}
