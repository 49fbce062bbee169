// Package enrollment owns the Enrollment lifecycle. At most one non-dropped
// enrollment exists per (user, course); the partial unique index created by
// database.Migrate is what enforces it, and every insert here is written to
// survive losing that race.
package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"learnpay/errs"
	"learnpay/events"
	courseModels "learnpay/models/course"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var transitions = map[courseModels.EnrollmentStatus][]courseModels.EnrollmentStatus{
	courseModels.EnrollmentPending: {courseModels.EnrollmentActive, courseModels.EnrollmentDropped},
	courseModels.EnrollmentActive:  {courseModels.EnrollmentCompleted, courseModels.EnrollmentDropped},
}

// CanTransition reports whether an enrollment may move from one status to another.
func CanTransition(from, to courseModels.EnrollmentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Activation describes what ActivateForPayment did.
type Activation struct {
	Created            bool
	Promoted           bool
	DuplicatePrevented bool
}

// Manager performs every enrollment state change.
type Manager struct {
	db        *gorm.DB
	intentTTL time.Duration
	Now       func() time.Time
}

func NewManager(db *gorm.DB, intentTTL time.Duration) *Manager {
	if intentTTL <= 0 {
		intentTTL = time.Hour
	}
	return &Manager{db: db, intentTTL: intentTTL, Now: time.Now}
}

// EnrollFree creates an ACTIVE, unverified enrollment in a free course.
func (m *Manager) EnrollFree(ctx context.Context, userID, courseID uint) (*courseModels.Enrollment, error) {
	course, err := m.loadCourse(m.db.WithContext(ctx), courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsFree() {
		return nil, errs.ErrCoursePriced
	}

	var created *courseModels.Enrollment
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e := &courseModels.Enrollment{
			UserID:     userID,
			CourseID:   courseID,
			Status:     courseModels.EnrollmentActive,
			Source:     courseModels.SourceFree,
			EnrolledAt: m.Now(),
		}
		if err := m.insert(tx, e); err != nil {
			return err
		}
		created = e
		return events.Publish(tx, events.TopicEnrollmentActivated, events.AggregateEnrollment, e.ID, payload(e, nil))
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ENROLLMENT] User %d enrolled in free course %d (enrollment %d)", userID, courseID, created.ID)
	return created, nil
}

// SavePhysicalIntent remembers an offline enrollment the student is about to
// confirm. Saving again replaces the details and extends the expiry.
func (m *Manager) SavePhysicalIntent(ctx context.Context, userID, courseID uint, details map[string]string) (*courseModels.EnrollmentIntent, error) {
	db := m.db.WithContext(ctx)
	course, err := m.loadCourse(db, courseID)
	if err != nil {
		return nil, err
	}
	if course.IsFree() {
		return nil, errs.ErrCourseNotPriced
	}
	if _, err := m.findOpen(db, userID, courseID); err == nil {
		return nil, errs.ErrAlreadyEnrolled
	} else if !errors.Is(err, errs.ErrEnrollmentNotFound) {
		return nil, err
	}

	body, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode intent details: %w", err)
	}

	now := m.Now()
	intent := courseModels.EnrollmentIntent{
		UserID:    userID,
		CourseID:  courseID,
		Kind:      courseModels.IntentKindPhysical,
		Details:   datatypes.JSON(body),
		ExpiresAt: now.Add(m.intentTTL),
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"details": intent.Details, "expires_at": intent.ExpiresAt, "kind": intent.Kind, "updated_at": now}),
	}).Create(&intent).Error
	if err != nil {
		return nil, fmt.Errorf("save enrollment intent: %w", err)
	}

	var saved courseModels.EnrollmentIntent
	if err := db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&saved).Error; err != nil {
		return nil, fmt.Errorf("reload enrollment intent: %w", err)
	}
	return &saved, nil
}

// ConfirmPhysical consumes the student's intent and creates a PENDING
// enrollment awaiting admin approval. Each intent can be consumed once.
func (m *Manager) ConfirmPhysical(ctx context.Context, userID, courseID uint) (*courseModels.Enrollment, error) {
	var created *courseModels.Enrollment
	expired := false

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var intent courseModels.EnrollmentIntent
		if err := forUpdate(tx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&intent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrIntentNotFound
			}
			return fmt.Errorf("load enrollment intent: %w", err)
		}

		res := tx.Unscoped().Where("id = ?", intent.ID).Delete(&courseModels.EnrollmentIntent{})
		if res.Error != nil {
			return fmt.Errorf("consume enrollment intent: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.ErrIntentNotFound
		}

		if m.Now().After(intent.ExpiresAt) {
			expired = true
			return nil
		}

		e := &courseModels.Enrollment{
			UserID:          userID,
			CourseID:        courseID,
			Status:          courseModels.EnrollmentPending,
			Source:          courseModels.SourcePhysical,
			EnrolledAt:      m.Now(),
			PhysicalDetails: intent.Details,
		}
		if err := m.insert(tx, e); err != nil {
			return err
		}
		created = e
		return events.Publish(tx, events.TopicEnrollmentPending, events.AggregateEnrollment, e.ID, payload(e, nil))
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, errs.ErrIntentExpired
	}

	log.Printf("[ENROLLMENT] User %d submitted physical enrollment %d for course %d", userID, created.ID, courseID)
	return created, nil
}

// ActivateForPayment makes sure (user, course) has a live enrollment after a
// verified payment. It must run inside the transaction that completes the
// payment. An existing ACTIVE or COMPLETED enrollment is returned unchanged.
func (m *Manager) ActivateForPayment(tx *gorm.DB, userID, courseID, paymentID uint) (*courseModels.Enrollment, Activation, error) {
	var act Activation

	e, err := m.findOpen(forUpdate(tx), userID, courseID)
	if errors.Is(err, errs.ErrEnrollmentNotFound) {
		e = &courseModels.Enrollment{
			UserID:          userID,
			CourseID:        courseID,
			Status:          courseModels.EnrollmentActive,
			Source:          courseModels.SourceOnline,
			PaymentVerified: true,
			EnrolledAt:      m.Now(),
		}
		err = m.insert(tx, e)
		if err == nil {
			act.Created = true
			return e, act, events.Publish(tx, events.TopicEnrollmentActivated, events.AggregateEnrollment, e.ID, payload(e, &paymentID))
		}
		if !errors.Is(err, errs.ErrAlreadyEnrolled) {
			return nil, act, err
		}
		// Lost the insert race; continue with the winner's row.
		e, err = m.findOpen(tx, userID, courseID)
	}
	if err != nil {
		return nil, act, err
	}

	if e.Status == courseModels.EnrollmentPending {
		res := tx.Model(&courseModels.Enrollment{}).
			Where("id = ? AND status = ?", e.ID, courseModels.EnrollmentPending).
			Updates(map[string]interface{}{
				"status":           courseModels.EnrollmentActive,
				"payment_verified": true,
			})
		if res.Error != nil {
			return nil, act, fmt.Errorf("activate enrollment %d: %w", e.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			e.Status = courseModels.EnrollmentActive
			e.PaymentVerified = true
			act.Promoted = true
			return e, act, events.Publish(tx, events.TopicEnrollmentActivated, events.AggregateEnrollment, e.ID, payload(e, &paymentID))
		}
		if e, err = m.get(tx, e.ID); err != nil {
			return nil, act, err
		}
	}

	if !e.IsLive() {
		return nil, act, fmt.Errorf("%w: enrollment %d is %s", errs.ErrInvalidTransition, e.ID, e.Status)
	}
	act.DuplicatePrevented = true
	return e, act, nil
}

// Approve moves a PENDING enrollment to ACTIVE on behalf of adminID.
func (m *Manager) Approve(ctx context.Context, adminID, enrollmentID uint) (*courseModels.Enrollment, error) {
	var out *courseModels.Enrollment
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := m.transition(tx, enrollmentID, courseModels.EnrollmentActive, map[string]interface{}{
			"payment_verified": true,
			"approved_by":      adminID,
		})
		if err != nil {
			return err
		}
		out = e
		return events.Publish(tx, events.TopicEnrollmentActivated, events.AggregateEnrollment, e.ID, payload(e, nil))
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ENROLLMENT] Admin %d approved enrollment %d", adminID, enrollmentID)
	return out, nil
}

// Drop moves a PENDING or ACTIVE enrollment to DROPPED.
func (m *Manager) Drop(ctx context.Context, adminID, enrollmentID uint) (*courseModels.Enrollment, error) {
	var out *courseModels.Enrollment
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := m.transition(tx, enrollmentID, courseModels.EnrollmentDropped, map[string]interface{}{
			"dropped_at": m.Now(),
		})
		if err != nil {
			return err
		}
		out = e
		return events.Publish(tx, events.TopicEnrollmentDropped, events.AggregateEnrollment, e.ID, payload(e, nil))
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ENROLLMENT] Admin %d dropped enrollment %d", adminID, enrollmentID)
	return out, nil
}

// Complete moves an ACTIVE enrollment to COMPLETED inside tx. Completed
// enrollments are left as they are.
func (m *Manager) Complete(tx *gorm.DB, e *courseModels.Enrollment) error {
	if e.Status == courseModels.EnrollmentCompleted && e.CompletedAt != nil {
		return nil
	}
	if e.Status != courseModels.EnrollmentCompleted && !CanTransition(e.Status, courseModels.EnrollmentCompleted) {
		return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, e.Status, courseModels.EnrollmentCompleted)
	}

	now := m.Now()
	res := tx.Model(&courseModels.Enrollment{}).
		Where("id = ? AND status IN ?", e.ID, []courseModels.EnrollmentStatus{courseModels.EnrollmentActive, courseModels.EnrollmentCompleted}).
		Updates(map[string]interface{}{
			"status":       courseModels.EnrollmentCompleted,
			"completed_at": gorm.Expr("COALESCE(completed_at, ?)", now),
		})
	if res.Error != nil {
		return fmt.Errorf("complete enrollment %d: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: enrollment %d changed concurrently", errs.ErrInvalidTransition, e.ID)
	}

	e.Status = courseModels.EnrollmentCompleted
	if e.CompletedAt == nil {
		e.CompletedAt = &now
	}
	return nil
}

// SetProgress stores the completion percentage of a live enrollment.
func (m *Manager) SetProgress(ctx context.Context, enrollmentID uint, progress int) (*courseModels.Enrollment, error) {
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("%w: progress %d out of range", errs.ErrInvalidProgress, progress)
	}

	db := m.db.WithContext(ctx)
	e, err := m.get(db, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !e.IsLive() {
		return nil, fmt.Errorf("%w: enrollment %d is %s", errs.ErrInvalidTransition, e.ID, e.Status)
	}

	if err := db.Model(&courseModels.Enrollment{}).Where("id = ?", e.ID).Update("progress", progress).Error; err != nil {
		return nil, fmt.Errorf("update progress of enrollment %d: %w", e.ID, err)
	}
	e.Progress = progress
	return e, nil
}

// Get loads an enrollment by id.
func (m *Manager) Get(ctx context.Context, id uint) (*courseModels.Enrollment, error) {
	return m.get(m.db.WithContext(ctx), id)
}

// GetOpen returns the non-dropped enrollment for (user, course).
func (m *Manager) GetOpen(ctx context.Context, userID, courseID uint) (*courseModels.Enrollment, error) {
	return m.findOpen(m.db.WithContext(ctx), userID, courseID)
}

// ListForUser returns every enrollment of userID, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID uint) ([]courseModels.Enrollment, error) {
	var list []courseModels.Enrollment
	if err := m.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return list, nil
}

// PurgeExpiredIntents deletes intents past their expiry.
func (m *Manager) PurgeExpiredIntents(ctx context.Context) (int64, error) {
	res := m.db.WithContext(ctx).Unscoped().Where("expires_at < ?", m.Now()).Delete(&courseModels.EnrollmentIntent{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge enrollment intents: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (m *Manager) transition(tx *gorm.DB, id uint, to courseModels.EnrollmentStatus, extra map[string]interface{}) (*courseModels.Enrollment, error) {
	e, err := m.get(forUpdate(tx), id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(e.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, e.Status, to)
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&courseModels.Enrollment{}).Where("id = ? AND status = ?", e.ID, e.Status).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update enrollment %d: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: enrollment %d changed concurrently", errs.ErrInvalidTransition, e.ID)
	}
	return m.get(tx, e.ID)
}

// insert creates e in a savepoint so a duplicate does not abort tx.
func (m *Manager) insert(tx *gorm.DB, e *courseModels.Enrollment) error {
	err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(e).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.ErrAlreadyEnrolled
	}
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (m *Manager) get(tx *gorm.DB, id uint) (*courseModels.Enrollment, error) {
	var e courseModels.Enrollment
	if err := tx.First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("load enrollment %d: %w", id, err)
	}
	return &e, nil
}

func (m *Manager) findOpen(tx *gorm.DB, userID, courseID uint) (*courseModels.Enrollment, error) {
	var e courseModels.Enrollment
	err := tx.Where("user_id = ? AND course_id = ? AND status <> ?", userID, courseID, courseModels.EnrollmentDropped).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &e, nil
}

func (m *Manager) loadCourse(db *gorm.DB, id uint) (*courseModels.Course, error) {
	var course courseModels.Course
	if err := db.Where("id = ? AND is_deleted = ?", id, false).First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCourseNotFound
		}
		return nil, fmt.Errorf("load course %d: %w", id, err)
	}
	return &course, nil
}

// forUpdate adds a row lock where the dialect supports one.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func payload(e *courseModels.Enrollment, paymentID *uint) events.EnrollmentPayload {
	return events.EnrollmentPayload{
		EnrollmentID: e.ID,
		UserID:       e.UserID,
		CourseID:     e.CourseID,
		Status:       string(e.Status),
		PaymentID:    paymentID,
	}
}
