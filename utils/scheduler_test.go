package utils

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"learnpay/events"
	"learnpay/internal/testutil"
	"learnpay/models"
	courseModels "learnpay/models/course"
	"learnpay/services/enrollment"
	"learnpay/services/payments"
	"learnpay/services/providers"
	"learnpay/services/verification"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) Send(_ context.Context, toEmail, _, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, toEmail+": "+subject)
	return nil
}

func TestSchedulerReconcilesAndNotifies(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	card := testutil.NewFakeCard()
	registry := providers.NewRegistry(card)
	pm := payments.NewManager(db)
	em := enrollment.NewManager(db, time.Hour)
	verifier := verification.NewVerifier(db, pm, em, registry)
	intents := payments.NewIntentService(db, pm, registry)
	dispatcher := events.NewDispatcher(db)
	mailer := &recordingMailer{}
	NewEmailNotifier(db, mailer).Register(dispatcher)

	// Negative age: every pending payment counts as stale.
	s := NewScheduler(dispatcher, verifier, pm, em, -time.Minute)

	user := testutil.CreateUser(t, db, "sweep@example.com")
	settled := testutil.CreateCourse(t, db, "25", "USD")
	waiting := testutil.CreateCourse(t, db, "35", "USD")

	d1, err := intents.Create(ctx, payments.IntentInput{UserID: user.ID, CourseID: settled.ID, Amount: decimal.NewFromInt(25), Currency: "USD", Method: models.PaymentMethodCard})
	require.NoError(t, err)
	d2, err := intents.Create(ctx, payments.IntentInput{UserID: user.ID, CourseID: waiting.ID, Amount: decimal.NewFromInt(35), Currency: "USD", Method: models.PaymentMethodCard})
	require.NoError(t, err)

	p1, err := pm.Get(ctx, d1.PaymentID)
	require.NoError(t, err)
	card.Settle(p1)

	s.ReconcileStalePayments(ctx)

	p1, err = pm.Get(ctx, d1.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, p1.Status)
	p2, err := pm.Get(ctx, d2.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p2.Status, "no provider answer, no change")

	s.DispatchOutbox(ctx)
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0], "sweep@example.com")
	assert.Zero(t, testutil.CountRows(t, db, &models.OutboxEvent{}, "processed_at IS NULL"))

	summary, err := s.Summarize(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Pending)
	assert.True(t, summary.Collected["USD"].Equal(decimal.NewFromInt(25)))
}

func TestSchedulerPurgesIntents(t *testing.T) {
	db := testutil.NewDB(t)
	em := enrollment.NewManager(db, time.Hour)
	course := testutil.CreateCourse(t, db, "10", "USD")
	_, err := em.SavePhysicalIntent(context.Background(), 1, course.ID, nil)
	require.NoError(t, err)

	em.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	s := NewScheduler(events.NewDispatcher(db), nil, payments.NewManager(db), em, time.Minute)
	s.PurgeIntents(context.Background())

	assert.Zero(t, testutil.CountRows(t, db, &courseModels.EnrollmentIntent{}))
}

func TestStaleSweepRotatesPastBacklog(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	card := testutil.NewFakeCard()
	registry := providers.NewRegistry(card)
	pm := payments.NewManager(db)
	em := enrollment.NewManager(db, time.Hour)
	s := NewScheduler(events.NewDispatcher(db), verification.NewVerifier(db, pm, em, registry), pm, em, -time.Minute)

	user := testutil.CreateUser(t, db, "backlog@example.com")
	course := testutil.CreateCourse(t, db, "30", "USD")

	var newest *models.Payment
	for i := 0; i <= stalePaymentBatch; i++ {
		p := &models.Payment{
			UserID:             user.ID,
			CourseID:           course.ID,
			Amount:             decimal.NewFromInt(30),
			Currency:           "USD",
			SettlementAmount:   decimal.NewFromInt(30),
			SettlementCurrency: "USD",
			ExchangeRate:       decimal.NewFromInt(1),
			PaymentMethod:      models.PaymentMethodCard,
		}
		require.NoError(t, pm.CreatePending(ctx, p))
		require.NoError(t, pm.AttachCorrelation(ctx, p.ID, payments.Correlation{IntentID: fmt.Sprintf("pi_backlog_%d", i)}))
		newest = p
	}
	newest, err := pm.Get(ctx, newest.ID)
	require.NoError(t, err)
	card.Settle(newest)

	// The first sweep takes the oldest batch; the abandoned ones stay pending.
	s.ReconcileStalePayments(ctx)
	p, err := pm.Get(ctx, newest.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p.Status)

	s.ReconcileStalePayments(ctx)
	p, err = pm.Get(ctx, newest.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.Equal(t, 1, p.ReconcileAttempts)
	assert.NotNil(t, p.LastReconciledAt)
	assert.Equal(t, 2*stalePaymentBatch, card.Calls())
}

func TestStaleSweepStopsAfterMaxAttempts(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	pm := payments.NewManager(db)

	user := testutil.CreateUser(t, db, "given-up@example.com")
	course := testutil.CreateCourse(t, db, "30", "USD")
	for i := 0; i < 2; i++ {
		p := &models.Payment{
			UserID: user.ID, CourseID: course.ID,
			Amount: decimal.NewFromInt(30), Currency: "USD",
			SettlementAmount: decimal.NewFromInt(30), SettlementCurrency: "USD",
			ExchangeRate: decimal.NewFromInt(1), PaymentMethod: models.PaymentMethodCard,
		}
		require.NoError(t, pm.CreatePending(ctx, p))
		require.NoError(t, pm.AttachCorrelation(ctx, p.ID, payments.Correlation{IntentID: fmt.Sprintf("pi_cap_%d", i)}))
		if i == 0 {
			require.NoError(t, db.Model(p).Update("reconcile_attempts", payments.MaxReconcileAttempts).Error)
		}
	}

	list, err := pm.ListStalePending(ctx, time.Now().Add(time.Minute), stalePaymentBatch)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pi_cap_1", list[0].CorrelationID())
}
