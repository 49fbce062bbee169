// Package progress turns content completions into an enrollment's progress
// percentage and triggers the certificate award at 100.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log"

	"learnpay/errs"
	courseModels "learnpay/models/course"
	"learnpay/services/certificate"
	"learnpay/services/enrollment"

	"gorm.io/gorm"
)

// Update is the state after recording a completion.
type Update struct {
	EnrollmentID       uint                             `json:"enrollmentId"`
	Progress           int                              `json:"progress"`
	CertificateRequest *courseModels.CertificateRequest `json:"certificateRequest,omitempty"`
}

// Tracker records content completions.
type Tracker struct {
	db          *gorm.DB
	enrollments *enrollment.Manager
	awarder     *certificate.Awarder
}

func NewTracker(db *gorm.DB, enrollments *enrollment.Manager, awarder *certificate.Awarder) *Tracker {
	return &Tracker{db: db, enrollments: enrollments, awarder: awarder}
}

// RecordCompletion marks contentID done for the student and recomputes the
// enrollment's progress. Completing the same content twice changes nothing.
func (t *Tracker) RecordCompletion(ctx context.Context, userID, courseID, contentID uint) (*Update, error) {
	e, err := t.enrollments.GetOpen(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !e.IsLive() {
		return nil, fmt.Errorf("%w: enrollment %d is %s", errs.ErrInvalidTransition, e.ID, e.Status)
	}

	db := t.db.WithContext(ctx)
	var content courseModels.CourseContent
	err = db.Where("id = ? AND course_id = ? AND is_published = ? AND is_deleted = ?", contentID, courseID, true, false).
		First(&content).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrContentNotFound
		}
		return nil, fmt.Errorf("load content %d: %w", contentID, err)
	}

	completion := courseModels.ContentCompletion{
		UserID:          userID,
		CourseID:        courseID,
		CourseContentID: content.ID,
		Status:          "COMPLETED",
	}
	if err := db.Create(&completion).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("record completion: %w", err)
	}

	percent, err := t.percent(db, userID, courseID)
	if err != nil {
		return nil, err
	}

	if percent != e.Progress {
		if e, err = t.enrollments.SetProgress(ctx, e.ID, percent); err != nil {
			return nil, err
		}
	}

	update := &Update{EnrollmentID: e.ID, Progress: percent}
	if percent == 100 {
		req, created, err := t.awarder.Award(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		if created {
			log.Printf("[PROGRESS] User %d finished course %d", userID, courseID)
		}
		update.CertificateRequest = req
	}
	return update, nil
}

func (t *Tracker) percent(db *gorm.DB, userID, courseID uint) (int, error) {
	var total, done int64
	if err := db.Model(&courseModels.CourseContent{}).
		Where("course_id = ? AND is_published = ? AND is_deleted = ?", courseID, true, false).
		Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	if err := db.Model(&courseModels.ContentCompletion{}).
		Joins("JOIN course_contents ON course_contents.id = content_completions.course_content_id").
		Where("content_completions.user_id = ? AND content_completions.course_id = ?", userID, courseID).
		Where("course_contents.is_published = ? AND course_contents.is_deleted = ? AND course_contents.deleted_at IS NULL", true, false).
		Count(&done).Error; err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}

	percent := int(done * 100 / total)
	if percent > 100 {
		percent = 100
	}
	return percent, nil
}
