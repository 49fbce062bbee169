package events_test

import (
	"context"
	"errors"
	"testing"

	"learnpay/events"
	"learnpay/internal/testutil"
	"learnpay/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPublishIsTransactional(t *testing.T) {
	db := testutil.NewDB(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := events.Publish(tx, events.TopicPaymentCompleted, events.AggregatePayment, 1, events.PaymentPayload{PaymentID: 1}); err != nil {
			return err
		}
		return errors.New("rollback")
	})
	require.Error(t, err)
	assert.Zero(t, testutil.CountRows(t, db, &models.OutboxEvent{}))

	require.NoError(t, events.Publish(db, events.TopicPaymentCompleted, events.AggregatePayment, 2, events.PaymentPayload{PaymentID: 2}))
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &models.OutboxEvent{}))
}

func TestDispatchPending(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	d := events.NewDispatcher(db)

	var received []events.EnrollmentPayload
	d.Subscribe(events.TopicEnrollmentActivated, func(_ context.Context, event models.OutboxEvent) error {
		var p events.EnrollmentPayload
		if err := events.Decode(event, &p); err != nil {
			return err
		}
		received = append(received, p)
		return nil
	})

	require.NoError(t, events.Publish(db, events.TopicEnrollmentActivated, events.AggregateEnrollment, 7,
		events.EnrollmentPayload{EnrollmentID: 7, UserID: 1, CourseID: 2, Status: "ACTIVE"}))
	// Topics without subscribers are still marked processed.
	require.NoError(t, events.Publish(db, events.TopicPaymentFailed, events.AggregatePayment, 3, events.PaymentPayload{PaymentID: 3}))

	n, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, received, 1)
	assert.EqualValues(t, 7, received[0].EnrollmentID)

	n, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, received, 1)
}

func TestDispatchRetriesFailedHandlers(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	d := events.NewDispatcher(db)

	fail := true
	calls := 0
	d.Subscribe(events.TopicCertificateApproved, func(context.Context, models.OutboxEvent) error {
		calls++
		if fail {
			return errors.New("smtp down")
		}
		return nil
	})
	require.NoError(t, events.Publish(db, events.TopicCertificateApproved, events.AggregateCertificate, 1, events.CertificatePayload{RequestID: 1}))

	n, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var event models.OutboxEvent
	require.NoError(t, db.First(&event).Error)
	assert.Equal(t, 1, event.Attempts)
	assert.Equal(t, "smtp down", event.LastError)
	assert.Nil(t, event.ProcessedAt)

	fail = false
	n, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, calls)

	require.NoError(t, db.First(&event).Error)
	assert.NotNil(t, event.ProcessedAt)
	assert.Empty(t, event.LastError)
}
