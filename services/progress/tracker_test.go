package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnpay/errs"
	"learnpay/internal/testutil"
	courseModels "learnpay/models/course"
	"learnpay/services/certificate"
	"learnpay/services/enrollment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCompletionReachesCertificate(t *testing.T) {
	db := testutil.NewDB(t)
	em := enrollment.NewManager(db, time.Hour)
	tracker := NewTracker(db, em, certificate.NewAwarder(db, em))
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "learner@example.com")
	course := testutil.CreateCourse(t, db, "", "USD")
	lessons := testutil.CreateContent(t, db, course.ID, 3)
	_, err := em.EnrollFree(ctx, user.ID, course.ID)
	require.NoError(t, err)

	u, err := tracker.RecordCompletion(ctx, user.ID, course.ID, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 33, u.Progress)
	assert.Nil(t, u.CertificateRequest)

	// Completing the same lesson again does not move progress.
	u, err = tracker.RecordCompletion(ctx, user.ID, course.ID, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 33, u.Progress)

	_, err = tracker.RecordCompletion(ctx, user.ID, course.ID, lessons[1].ID)
	require.NoError(t, err)
	u, err = tracker.RecordCompletion(ctx, user.ID, course.ID, lessons[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 100, u.Progress)
	require.NotNil(t, u.CertificateRequest)

	e, err := em.Get(ctx, u.EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentCompleted, e.Status)
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &courseModels.CertificateRequest{}))
}

func TestRecordCompletionRequiresEnrollment(t *testing.T) {
	db := testutil.NewDB(t)
	em := enrollment.NewManager(db, time.Hour)
	tracker := NewTracker(db, em, certificate.NewAwarder(db, em))
	ctx := context.Background()

	course := testutil.CreateCourse(t, db, "", "USD")
	lessons := testutil.CreateContent(t, db, course.ID, 1)

	_, err := tracker.RecordCompletion(ctx, 42, course.ID, lessons[0].ID)
	assert.True(t, errors.Is(err, errs.ErrEnrollmentNotFound))

	testutil.CreateEnrollment(t, db, 43, course.ID, courseModels.EnrollmentPending)
	_, err = tracker.RecordCompletion(ctx, 43, course.ID, lessons[0].ID)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	testutil.CreateEnrollment(t, db, 44, course.ID, courseModels.EnrollmentActive)
	_, err = tracker.RecordCompletion(ctx, 44, course.ID, 9999)
	assert.True(t, errors.Is(err, errs.ErrContentNotFound))
}
