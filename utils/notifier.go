package utils

import (
	"context"
	"fmt"

	"learnpay/events"
	"learnpay/models"
	courseModels "learnpay/models/course"

	"gorm.io/gorm"
)

// EmailNotifier turns enrollment and certificate events into emails.
type EmailNotifier struct {
	db     *gorm.DB
	mailer Mailer
}

// NewEmailNotifier returns a notifier that looks recipients up in db.
func NewEmailNotifier(db *gorm.DB, mailer Mailer) *EmailNotifier {
	return &EmailNotifier{db: db, mailer: mailer}
}

// Register subscribes the notifier to the topics it handles.
func (n *EmailNotifier) Register(d *events.Dispatcher) {
	d.Subscribe(events.TopicEnrollmentActivated, n.onEnrollment(EnrollmentEmail))
	d.Subscribe(events.TopicEnrollmentPending, n.onEnrollment(PendingEnrollmentEmail))
	d.Subscribe(events.TopicCertificateRequested, n.onCertificateRequested)
	d.Subscribe(events.TopicCertificateApproved, n.onCertificateApproved)
}

func (n *EmailNotifier) onEnrollment(build func(userName, courseName string) (string, string)) events.Handler {
	return func(ctx context.Context, event models.OutboxEvent) error {
		var payload events.EnrollmentPayload
		if err := events.Decode(event, &payload); err != nil {
			return err
		}

		user, course, err := n.lookup(ctx, payload.UserID, payload.CourseID)
		if err != nil {
			return err
		}

		subject, body := build(user.Name, course.Title)
		return n.mailer.Send(ctx, user.Email, user.Name, subject, body)
	}
}

func (n *EmailNotifier) onCertificateRequested(ctx context.Context, event models.OutboxEvent) error {
	var payload events.CertificatePayload
	if err := events.Decode(event, &payload); err != nil {
		return err
	}

	user, course, err := n.lookup(ctx, payload.UserID, payload.CourseID)
	if err != nil {
		return err
	}

	subject, body := CertificateRequestedEmail(user.Name, course.Title)
	return n.mailer.Send(ctx, user.Email, user.Name, subject, body)
}

func (n *EmailNotifier) onCertificateApproved(ctx context.Context, event models.OutboxEvent) error {
	var payload events.CertificatePayload
	if err := events.Decode(event, &payload); err != nil {
		return err
	}

	user, course, err := n.lookup(ctx, payload.UserID, payload.CourseID)
	if err != nil {
		return err
	}

	subject, body := CertificateEmail(user.Name, course.Title, payload.CertificateNumber)
	return n.mailer.Send(ctx, user.Email, user.Name, subject, body)
}

func (n *EmailNotifier) lookup(ctx context.Context, userID, courseID uint) (*models.User, *courseModels.Course, error) {
	var user models.User
	if err := n.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	var course courseModels.Course
	if err := n.db.WithContext(ctx).Where("id = ?", courseID).First(&course).Error; err != nil {
		return nil, nil, fmt.Errorf("load course %d: %w", courseID, err)
	}
	return &user, &course, nil
}
