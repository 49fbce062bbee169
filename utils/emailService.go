package utils

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer sends one HTML email.
type Mailer interface {
	Send(ctx context.Context, toEmail, toName, subject, htmlBody string) error
}

// SendgridMailer delivers email through the SendGrid v3 API.
type SendgridMailer struct {
	client     *sendgrid.Client
	senderName string
	sender     string
}

// NewSendgridMailer returns a mailer using apiKey and the given sender address.
func NewSendgridMailer(apiKey, sender string) *SendgridMailer {
	return &SendgridMailer{
		client:     sendgrid.NewSendClient(apiKey),
		senderName: "LearnPay",
		sender:     sender,
	}
}

// Send sends htmlBody to toEmail.
func (m *SendgridMailer) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) error {
	from := mail.NewEmail(m.senderName, m.sender)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, "", htmlBody)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}

	log.Printf("[EMAIL] Sent %q to %s", subject, toEmail)
	return nil
}

// LogMailer only logs; used when no SendGrid key is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, toEmail, _, subject, _ string) error {
	log.Printf("[EMAIL] (log only) %q to %s", subject, toEmail)
	return nil
}

// getEmailTemplate wraps bodyContent in the common layout
func getEmailTemplate(title string, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; }
			.header { background-color: #1E3A8A; padding: 30px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; letter-spacing: 1px; }
			.content { padding: 40px 30px; color: #1F2937; line-height: 1.6; }
			.footer { background-color: #F6F6F6; padding: 20px; text-align: center; font-size: 12px; color: #666666; }
			.info-box { background: #E8F0FE; padding: 15px; border-radius: 4px; border-left: 4px solid #1E3A8A; margin: 20px 0; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header">
				<h1>LEARNPAY</h1>
			</div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
			<div class="footer">
				&copy; %d LearnPay. All rights reserved.
			</div>
		</div>
	</body>
	</html>
	`, title, bodyContent, time.Now().Year())
}

// EnrollmentEmail builds the confirmation sent when an enrollment becomes active.
func EnrollmentEmail(userName, courseName string) (string, string) {
	subject := "Course Enrollment Confirmation"
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Congratulations! You have successfully enrolled in <strong>%s</strong>.</p>
		<p>You can now access all the course content. Complete all modules to earn your certificate.</p>
	`, userName, courseName)
	return subject, getEmailTemplate("Enrollment Successful!", body)
}

// PendingEnrollmentEmail builds the notice sent for an offline enrollment awaiting approval.
func PendingEnrollmentEmail(userName, courseName string) (string, string) {
	subject := "Enrollment Received: " + courseName
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>We received your enrollment request for <strong>%s</strong>.</p>
		<div class="info-box">
			Your bank transfer will be checked by our team. Access is granted as soon as it is approved.
		</div>
	`, userName, courseName)
	return subject, getEmailTemplate("Enrollment Pending Approval", body)
}

// CertificateRequestedEmail builds the notice sent when a course is completed.
func CertificateRequestedEmail(userName, courseName string) (string, string) {
	subject := "Course Completed: " + courseName
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Congratulations on completing <strong>%s</strong>!</p>
		<p>Your certificate request has been submitted and will be reviewed shortly.</p>
	`, userName, courseName)
	return subject, getEmailTemplate("Course Completed", body)
}

// CertificateEmail builds the notice sent when a certificate is issued.
func CertificateEmail(userName, courseName, certificateNumber string) (string, string) {
	subject := "Course Completion Certificate"
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Your certificate for <strong>%s</strong> has been approved.</p>
		<div class="info-box">
			<strong>Certificate Number:</strong> %s
		</div>
	`, userName, courseName, certificateNumber)
	return subject, getEmailTemplate("Certificate of Completion", body)
}
