package certificate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"learnpay/errs"
	"learnpay/events"
	"learnpay/internal/testutil"
	"learnpay/models"
	courseModels "learnpay/models/course"
	"learnpay/services/enrollment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newAwarder(t *testing.T) (*Awarder, *gorm.DB) {
	db := testutil.NewDB(t)
	return NewAwarder(db, enrollment.NewManager(db, time.Hour)), db
}

func finished(t *testing.T, db *gorm.DB, userID, courseID uint) courseModels.Enrollment {
	e := testutil.CreateEnrollment(t, db, userID, courseID, courseModels.EnrollmentActive)
	require.NoError(t, db.Model(&e).Update("progress", 100).Error)
	e.Progress = 100
	return e
}

func TestAwardCompletesEnrollmentOnce(t *testing.T) {
	a, db := newAwarder(t)
	ctx := context.Background()
	e := finished(t, db, 1, 1)

	req, created, err := a.Award(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, courseModels.CertificatePending, req.Status)

	var stored courseModels.Enrollment
	require.NoError(t, db.First(&stored, e.ID).Error)
	assert.Equal(t, courseModels.EnrollmentCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	again, created, err := a.Award(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, req.ID, again.ID)

	assert.EqualValues(t, 1, testutil.CountRows(t, db, &courseModels.CertificateRequest{}, "enrollment_id = ?", e.ID))
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &models.OutboxEvent{}, "topic = ?", events.TopicCertificateRequested))
}

func TestAwardConcurrentTriggers(t *testing.T) {
	a, db := newAwarder(t)
	e := finished(t, db, 2, 2)

	var wg sync.WaitGroup
	ids := make([]uint, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _, err := a.Award(context.Background(), e.ID)
			if assert.NoError(t, err) {
				ids[i] = req.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &courseModels.CertificateRequest{}))
}

func TestAwardPreconditions(t *testing.T) {
	a, db := newAwarder(t)
	ctx := context.Background()

	halfway := testutil.CreateEnrollment(t, db, 3, 3, courseModels.EnrollmentActive)
	require.NoError(t, db.Model(&halfway).Update("progress", 60).Error)
	_, _, err := a.Award(ctx, halfway.ID)
	assert.True(t, errors.Is(err, errs.ErrProgressIncomplete))

	dropped := testutil.CreateEnrollment(t, db, 4, 4, courseModels.EnrollmentDropped)
	require.NoError(t, db.Model(&dropped).Update("progress", 100).Error)
	_, _, err = a.Award(ctx, dropped.ID)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	_, _, err = a.Award(ctx, 9999)
	assert.True(t, errors.Is(err, errs.ErrEnrollmentNotFound))

	assert.Zero(t, testutil.CountRows(t, db, &courseModels.CertificateRequest{}))
}

func TestApproveIssuesCertificate(t *testing.T) {
	a, db := newAwarder(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, db, "admin@example.com")
	e := finished(t, db, 5, 5)
	req, _, err := a.Award(ctx, e.ID)
	require.NoError(t, err)

	cert, err := a.Approve(ctx, admin.ID, req.ID)
	require.NoError(t, err)
	assert.Contains(t, cert.CertificateNumber, "CERT-5-5-")
	assert.Equal(t, req.ID, cert.RequestID)

	_, err = a.Approve(ctx, admin.ID, req.ID)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &courseModels.Certificate{}))

	list, err := a.ListForUser(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRejectRequest(t *testing.T) {
	a, db := newAwarder(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, db, "admin@example.com")
	e := finished(t, db, 6, 6)
	req, _, err := a.Award(ctx, e.ID)
	require.NoError(t, err)

	rejected, err := a.Reject(ctx, admin.ID, req.ID, "identity not verified")
	require.NoError(t, err)
	assert.Equal(t, courseModels.CertificateRejected, rejected.Status)
	assert.Equal(t, "identity not verified", rejected.RejectionReason)

	_, err = a.Approve(ctx, admin.ID, req.ID)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	_, err = a.Reject(ctx, admin.ID, 9999, "x")
	assert.True(t, errors.Is(err, errs.ErrCertificateNotFound))
}
