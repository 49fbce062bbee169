package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"learnpay/errs"
	"learnpay/events"
	"learnpay/internal/testutil"
	"learnpay/models"
	courseModels "learnpay/models/course"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newManager(t *testing.T) (*Manager, *gorm.DB) {
	db := testutil.NewDB(t)
	return NewManager(db, time.Hour), db
}

// Free course enrollment needs no payment.
func TestEnrollFree(t *testing.T) {
	m, db := newManager(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "free@example.com")
	course := testutil.CreateCourse(t, db, "", "USD")

	e, err := m.EnrollFree(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentActive, e.Status)
	assert.Equal(t, courseModels.SourceFree, e.Source)
	assert.False(t, e.PaymentVerified)
	assert.Zero(t, testutil.CountRows(t, db, &models.Payment{}))
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &models.OutboxEvent{}, "topic = ?", events.TopicEnrollmentActivated))

	_, err = m.EnrollFree(ctx, user.ID, course.ID)
	assert.True(t, errors.Is(err, errs.ErrAlreadyEnrolled))
}

func TestEnrollFreeRejectsPricedCourse(t *testing.T) {
	m, db := newManager(t)
	user := testutil.CreateUser(t, db, "x@example.com")
	course := testutil.CreateCourse(t, db, "10", "USD")

	_, err := m.EnrollFree(context.Background(), user.ID, course.ID)
	assert.True(t, errors.Is(err, errs.ErrCoursePriced))

	_, err = m.EnrollFree(context.Background(), user.ID, 9999)
	assert.True(t, errors.Is(err, errs.ErrCourseNotFound))
}

func TestActiveEnrollmentIndex(t *testing.T) {
	_, db := newManager(t)
	first := testutil.CreateEnrollment(t, db, 1, 1, courseModels.EnrollmentPending)

	dup := courseModels.Enrollment{UserID: 1, CourseID: 1, Status: courseModels.EnrollmentActive, EnrolledAt: time.Now()}
	err := db.Create(&dup).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)

	require.NoError(t, db.Model(&first).Update("status", courseModels.EnrollmentDropped).Error)
	again := courseModels.Enrollment{UserID: 1, CourseID: 1, Status: courseModels.EnrollmentActive, EnrolledAt: time.Now()}
	assert.NoError(t, db.Create(&again).Error, "a dropped enrollment does not block a new one")
}

func TestPhysicalEnrollmentFlow(t *testing.T) {
	m, db := newManager(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "bank@example.com")
	course := testutil.CreateCourse(t, db, "100", "USD")

	_, err := m.SavePhysicalIntent(ctx, user.ID, course.ID, map[string]string{"transferReference": "OLD"})
	require.NoError(t, err)
	intent, err := m.SavePhysicalIntent(ctx, user.ID, course.ID, map[string]string{"transferReference": "TRX-77"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &courseModels.EnrollmentIntent{}))

	var details map[string]string
	require.NoError(t, json.Unmarshal(intent.Details, &details))
	assert.Equal(t, "TRX-77", details["transferReference"])

	e, err := m.ConfirmPhysical(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentPending, e.Status)
	assert.Equal(t, courseModels.SourcePhysical, e.Source)
	assert.False(t, e.PaymentVerified)
	assert.Zero(t, testutil.CountRows(t, db, &courseModels.EnrollmentIntent{}))

	_, err = m.ConfirmPhysical(ctx, user.ID, course.ID)
	assert.True(t, errors.Is(err, errs.ErrIntentNotFound), "an intent is consumed once")

	_, err = m.SavePhysicalIntent(ctx, user.ID, course.ID, map[string]string{"transferReference": "AGAIN"})
	assert.True(t, errors.Is(err, errs.ErrAlreadyEnrolled))
}

func TestConfirmExpiredIntent(t *testing.T) {
	m, db := newManager(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "late@example.com")
	course := testutil.CreateCourse(t, db, "100", "USD")

	_, err := m.SavePhysicalIntent(ctx, user.ID, course.ID, nil)
	require.NoError(t, err)

	m.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.ConfirmPhysical(ctx, user.ID, course.ID)
	assert.True(t, errors.Is(err, errs.ErrIntentExpired))
	assert.Zero(t, testutil.CountRows(t, db, &courseModels.EnrollmentIntent{}))
	assert.Zero(t, testutil.CountRows(t, db, &courseModels.Enrollment{}))
}

func TestApproveAndDrop(t *testing.T) {
	m, db := newManager(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, db, "admin@example.com")
	pending := testutil.CreateEnrollment(t, db, 5, 6, courseModels.EnrollmentPending)

	e, err := m.Approve(ctx, admin.ID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentActive, e.Status)
	assert.True(t, e.PaymentVerified)
	require.NotNil(t, e.ApprovedBy)
	assert.Equal(t, admin.ID, *e.ApprovedBy)

	_, err = m.Approve(ctx, admin.ID, pending.ID)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	e, err = m.Drop(ctx, admin.ID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentDropped, e.Status)
	assert.NotNil(t, e.DroppedAt)

	_, err = m.Drop(ctx, admin.ID, pending.ID)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	_, err = m.Approve(ctx, admin.ID, 9999)
	assert.True(t, errors.Is(err, errs.ErrEnrollmentNotFound))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to courseModels.EnrollmentStatus
		want     bool
	}{
		{courseModels.EnrollmentPending, courseModels.EnrollmentActive, true},
		{courseModels.EnrollmentPending, courseModels.EnrollmentDropped, true},
		{courseModels.EnrollmentActive, courseModels.EnrollmentCompleted, true},
		{courseModels.EnrollmentActive, courseModels.EnrollmentDropped, true},
		{courseModels.EnrollmentPending, courseModels.EnrollmentCompleted, false},
		{courseModels.EnrollmentCompleted, courseModels.EnrollmentActive, false},
		{courseModels.EnrollmentCompleted, courseModels.EnrollmentDropped, false},
		{courseModels.EnrollmentDropped, courseModels.EnrollmentActive, false},
		{courseModels.EnrollmentActive, courseModels.EnrollmentPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestActivateForPayment(t *testing.T) {
	m, db := newManager(t)

	t.Run("creates", func(t *testing.T) {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			e, act, err := m.ActivateForPayment(tx, 1, 1, 10)
			require.NoError(t, err)
			assert.True(t, act.Created)
			assert.Equal(t, courseModels.EnrollmentActive, e.Status)
			assert.True(t, e.PaymentVerified)
			return nil
		}))
	})

	t.Run("keeps existing active", func(t *testing.T) {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			_, act, err := m.ActivateForPayment(tx, 1, 1, 11)
			require.NoError(t, err)
			assert.True(t, act.DuplicatePrevented)
			return nil
		}))
		assert.EqualValues(t, 1, testutil.CountRows(t, db, &courseModels.Enrollment{}, "user_id = ? AND course_id = ?", 1, 1))
	})

	t.Run("promotes pending", func(t *testing.T) {
		pending := testutil.CreateEnrollment(t, db, 2, 1, courseModels.EnrollmentPending)
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			e, act, err := m.ActivateForPayment(tx, 2, 1, 12)
			require.NoError(t, err)
			assert.True(t, act.Promoted)
			assert.Equal(t, pending.ID, e.ID)
			return nil
		}))
	})
}

func TestActivateForPaymentLosesInsertRace(t *testing.T) {
	m, db := newManager(t)
	user := testutil.CreateUser(t, db, "race@example.com")
	course := testutil.CreateCourse(t, db, "40", "USD")

	// A concurrent physical submission lands between the lookup and the insert.
	var fired atomic.Bool
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:rival_enrollment", func(tx *gorm.DB) {
		if tx.Statement.Table != "enrollments" || !fired.CompareAndSwap(false, true) {
			return
		}
		rival := tx.Session(&gorm.Session{NewDB: true})
		rival.Error = nil
		err := rival.Create(&courseModels.Enrollment{
			UserID:     user.ID,
			CourseID:   course.ID,
			Status:     courseModels.EnrollmentPending,
			Source:     courseModels.SourcePhysical,
			EnrolledAt: time.Now(),
		}).Error
		require.NoError(t, err)
	}))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		e, act, err := m.ActivateForPayment(tx, user.ID, course.ID, 77)
		require.NoError(t, err)
		assert.False(t, act.Created)
		assert.True(t, act.Promoted)
		assert.Equal(t, courseModels.EnrollmentActive, e.Status)
		assert.Equal(t, courseModels.SourcePhysical, e.Source)
		return nil
	}))

	assert.True(t, fired.Load())
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &courseModels.Enrollment{}, "user_id = ? AND course_id = ?", user.ID, course.ID))
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &models.OutboxEvent{}, "topic = ?", events.TopicEnrollmentActivated))
}

func TestSetProgress(t *testing.T) {
	m, db := newManager(t)
	ctx := context.Background()
	active := testutil.CreateEnrollment(t, db, 1, 1, courseModels.EnrollmentActive)
	pending := testutil.CreateEnrollment(t, db, 2, 1, courseModels.EnrollmentPending)

	e, err := m.SetProgress(ctx, active.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, e.Progress)

	_, err = m.SetProgress(ctx, active.ID, 101)
	assert.True(t, errors.Is(err, errs.ErrInvalidProgress))

	_, err = m.SetProgress(ctx, pending.ID, 10)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))
}

func TestPurgeExpiredIntents(t *testing.T) {
	m, db := newManager(t)
	ctx := context.Background()
	course := testutil.CreateCourse(t, db, "100", "USD")
	_, err := m.SavePhysicalIntent(ctx, 1, course.ID, nil)
	require.NoError(t, err)
	_, err = m.SavePhysicalIntent(ctx, 2, course.ID, nil)
	require.NoError(t, err)

	n, err := m.PurgeExpiredIntents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	m.Now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	n, err = m.PurgeExpiredIntents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
