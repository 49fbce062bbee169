// Package errs holds the error values shared by the payment, enrollment and
// certificate services. Callers compare with errors.Is and extract the HTTP
// status with errors.As.
package errs

import (
	"errors"
	"net/http"
)

// AppError is a classified error with a stable code and the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrUnauthenticated = &AppError{Code: "UNAUTHENTICATED", Status: http.StatusUnauthorized, Message: "Unauthorized!"}
	ErrForbidden       = &AppError{Code: "FORBIDDEN", Status: http.StatusForbidden, Message: "Access denied!"}

	ErrCourseNotFound  = &AppError{Code: "COURSE_NOT_FOUND", Status: http.StatusNotFound, Message: "Course not found or not active!"}
	ErrCourseNotPriced = &AppError{Code: "COURSE_NOT_PRICED", Status: http.StatusBadRequest, Message: "Course is free, use the free enrollment instead!"}
	ErrCoursePriced    = &AppError{Code: "COURSE_PRICED", Status: http.StatusBadRequest, Message: "Course is not free, payment is required!"}
	ErrPriceMismatch   = &AppError{Code: "PRICE_MISMATCH", Status: http.StatusBadRequest, Message: "Amount does not match the course price!"}
	ErrInvalidAmount   = &AppError{Code: "INVALID_AMOUNT", Status: http.StatusBadRequest, Message: "Amount must be greater than 0!"}

	ErrPaymentNotFound     = &AppError{Code: "PAYMENT_NOT_FOUND", Status: http.StatusNotFound, Message: "Payment not found!"}
	ErrProviderUnavailable = &AppError{Code: "PROVIDER_UNAVAILABLE", Status: http.StatusBadGateway, Message: "Payment provider is unavailable, please retry!"}
	ErrRateUnavailable     = &AppError{Code: "RATE_UNAVAILABLE", Status: http.StatusServiceUnavailable, Message: "Exchange rate is unavailable, please retry!"}
	ErrCorrelationMismatch = &AppError{Code: "CORRELATION_MISMATCH", Status: http.StatusBadRequest, Message: "Provider reference does not belong to this payment!"}
	ErrInvalidSignature    = &AppError{Code: "INVALID_SIGNATURE", Status: http.StatusUnauthorized, Message: "Invalid webhook signature!"}
	ErrUnsupportedMethod   = &AppError{Code: "UNSUPPORTED_METHOD", Status: http.StatusBadRequest, Message: "Unsupported payment method!"}

	ErrAlreadyEnrolled     = &AppError{Code: "ALREADY_ENROLLED", Status: http.StatusConflict, Message: "User already enrolled in this course!"}
	ErrEnrollmentNotFound  = &AppError{Code: "ENROLLMENT_NOT_FOUND", Status: http.StatusNotFound, Message: "Enrollment not found!"}
	ErrInvalidTransition   = &AppError{Code: "INVALID_TRANSITION", Status: http.StatusConflict, Message: "Enrollment cannot move to the requested status!"}
	ErrIntentNotFound      = &AppError{Code: "INTENT_NOT_FOUND", Status: http.StatusNotFound, Message: "No pending enrollment request found!"}
	ErrIntentExpired       = &AppError{Code: "INTENT_EXPIRED", Status: http.StatusGone, Message: "Enrollment request has expired, please start again!"}
	ErrContentNotFound     = &AppError{Code: "CONTENT_NOT_FOUND", Status: http.StatusNotFound, Message: "Course content not found!"}
	ErrInvalidProgress     = &AppError{Code: "INVALID_PROGRESS", Status: http.StatusBadRequest, Message: "Progress must be between 0 and 100!"}
	ErrProgressIncomplete  = &AppError{Code: "PROGRESS_INCOMPLETE", Status: http.StatusBadRequest, Message: "Please complete the course before requesting a certificate!"}
	ErrCertificateNotFound = &AppError{Code: "CERTIFICATE_REQUEST_NOT_FOUND", Status: http.StatusNotFound, Message: "Certificate request not found!"}
)

// Status returns the HTTP status for err, 500 for unclassified errors.
func Status(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Something went wrong, please try again!"
}
