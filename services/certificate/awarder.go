// Package certificate issues completion certificates. A request is created
// at most once per enrollment, when progress reaches 100, and an admin turns
// it into a Certificate.
package certificate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"learnpay/errs"
	"learnpay/events"
	courseModels "learnpay/models/course"
	"learnpay/services/enrollment"

	"gorm.io/gorm"
)

// Awarder creates and decides certificate requests.
type Awarder struct {
	db          *gorm.DB
	enrollments *enrollment.Manager
	Now         func() time.Time
}

func NewAwarder(db *gorm.DB, enrollments *enrollment.Manager) *Awarder {
	return &Awarder{db: db, enrollments: enrollments, Now: time.Now}
}

// Award completes the enrollment and files its certificate request. The
// second return value is false when the request already existed.
func (a *Awarder) Award(ctx context.Context, enrollmentID uint) (*courseModels.CertificateRequest, bool, error) {
	var req *courseModels.CertificateRequest
	created := false

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e courseModels.Enrollment
		if err := tx.First(&e, enrollmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrEnrollmentNotFound
			}
			return fmt.Errorf("load enrollment %d: %w", enrollmentID, err)
		}

		existing, err := findRequest(tx, e.ID)
		if err == nil {
			req = existing
			return nil
		}
		if !errors.Is(err, errs.ErrCertificateNotFound) {
			return err
		}

		if e.Status == courseModels.EnrollmentDropped || e.Status == courseModels.EnrollmentPending {
			return fmt.Errorf("%w: enrollment %d is %s", errs.ErrInvalidTransition, e.ID, e.Status)
		}
		if e.Progress < 100 {
			return errs.ErrProgressIncomplete
		}

		if err := a.enrollments.Complete(tx, &e); err != nil {
			return err
		}

		candidate := &courseModels.CertificateRequest{
			UserID:       e.UserID,
			CourseID:     e.CourseID,
			EnrollmentID: e.ID,
			Status:       courseModels.CertificatePending,
			RequestedAt:  a.Now(),
		}
		err = tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(candidate).Error
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent award won; keep its request.
			req, err = findRequest(tx, e.ID)
			return err
		}
		if err != nil {
			return fmt.Errorf("create certificate request: %w", err)
		}

		req = candidate
		created = true
		return events.Publish(tx, events.TopicCertificateRequested, events.AggregateCertificate, req.ID, events.CertificatePayload{
			RequestID:    req.ID,
			EnrollmentID: e.ID,
			UserID:       e.UserID,
			CourseID:     e.CourseID,
		})
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		log.Printf("[CERTIFICATE] Request %d filed for enrollment %d", req.ID, enrollmentID)
	}
	return req, created, nil
}

// AwardFor is Award keyed by the student's open enrollment in a course.
func (a *Awarder) AwardFor(ctx context.Context, userID, courseID uint) (*courseModels.CertificateRequest, bool, error) {
	e, err := a.enrollments.GetOpen(ctx, userID, courseID)
	if err != nil {
		return nil, false, err
	}
	return a.Award(ctx, e.ID)
}

// Approve issues the certificate for a pending request.
func (a *Awarder) Approve(ctx context.Context, adminID, requestID uint) (*courseModels.Certificate, error) {
	var cert *courseModels.Certificate

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := a.decide(tx, requestID, courseModels.CertificateApproved, adminID, "")
		if err != nil {
			return err
		}

		now := a.Now()
		cert = &courseModels.Certificate{
			UserID:            req.UserID,
			CourseID:          req.CourseID,
			RequestID:         req.ID,
			CertificateNumber: fmt.Sprintf("CERT-%d-%d-%d", req.CourseID, req.UserID, now.Unix()),
			IssuedAt:          now,
		}
		if err := tx.Create(cert).Error; err != nil {
			return fmt.Errorf("issue certificate: %w", err)
		}

		return events.Publish(tx, events.TopicCertificateApproved, events.AggregateCertificate, req.ID, events.CertificatePayload{
			RequestID:         req.ID,
			EnrollmentID:      req.EnrollmentID,
			UserID:            req.UserID,
			CourseID:          req.CourseID,
			CertificateNumber: cert.CertificateNumber,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CERTIFICATE] Admin %d issued %s for request %d", adminID, cert.CertificateNumber, requestID)
	return cert, nil
}

// Reject closes a pending request with a reason.
func (a *Awarder) Reject(ctx context.Context, adminID, requestID uint, reason string) (*courseModels.CertificateRequest, error) {
	var req *courseModels.CertificateRequest
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := a.decide(tx, requestID, courseModels.CertificateRejected, adminID, reason)
		req = r
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CERTIFICATE] Admin %d rejected request %d: %s", adminID, requestID, reason)
	return req, nil
}

// ListForUser returns the certificates issued to userID.
func (a *Awarder) ListForUser(ctx context.Context, userID uint) ([]courseModels.Certificate, error) {
	var list []courseModels.Certificate
	if err := a.db.WithContext(ctx).Where("user_id = ?", userID).Order("issued_at desc").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return list, nil
}

func (a *Awarder) decide(tx *gorm.DB, requestID uint, status string, adminID uint, reason string) (*courseModels.CertificateRequest, error) {
	now := a.Now()
	updates := map[string]interface{}{
		"status":      status,
		"approved_by": adminID,
		"approved_at": now,
	}
	if reason != "" {
		updates["rejection_reason"] = reason
	}

	res := tx.Model(&courseModels.CertificateRequest{}).
		Where("id = ? AND status = ?", requestID, courseModels.CertificatePending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update certificate request %d: %w", requestID, res.Error)
	}

	var req courseModels.CertificateRequest
	if err := tx.First(&req, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCertificateNotFound
		}
		return nil, fmt.Errorf("load certificate request %d: %w", requestID, err)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: certificate request %d is %s", errs.ErrInvalidTransition, req.ID, req.Status)
	}
	return &req, nil
}

func findRequest(tx *gorm.DB, enrollmentID uint) (*courseModels.CertificateRequest, error) {
	var req courseModels.CertificateRequest
	if err := tx.Where("enrollment_id = ?", enrollmentID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCertificateNotFound
		}
		return nil, fmt.Errorf("load certificate request: %w", err)
	}
	return &req, nil
}
