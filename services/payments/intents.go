package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"learnpay/errs"
	"learnpay/models"
	courseModels "learnpay/models/course"
	"learnpay/services/providers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// IntentInput is a student's request to pay for a course. Amount and
// Currency are what the client displayed and are only compared against the
// server-side price.
type IntentInput struct {
	UserID   uint
	CourseID uint
	Amount   decimal.Decimal
	Currency string
	Method   models.PaymentMethod
	Payer    providers.Payer
}

// Descriptor is what the client needs to open the provider's payment UI.
type Descriptor struct {
	PaymentID         uint             `json:"paymentId"`
	ClientSecret      string           `json:"clientSecret,omitempty"`
	Reference         string           `json:"reference,omitempty"`
	AccessCode        string           `json:"accessCode,omitempty"`
	AuthorizationURL  string           `json:"authorizationUrl,omitempty"`
	ConvertedAmount   *decimal.Decimal `json:"convertedAmount,omitempty"`
	ExchangeRate      *decimal.Decimal `json:"exchangeRate,omitempty"`
	ConvertedCurrency string           `json:"convertedCurrency,omitempty"`
}

// IntentService creates the pending payment row and the provider-side charge.
type IntentService struct {
	db        *gorm.DB
	payments  *Manager
	providers *providers.Registry
}

func NewIntentService(db *gorm.DB, payments *Manager, registry *providers.Registry) *IntentService {
	return &IntentService{db: db, payments: payments, providers: registry}
}

// Create validates the request against the stored price, writes one PENDING
// payment and asks the provider for a charge descriptor.
func (s *IntentService) Create(ctx context.Context, in IntentInput) (*Descriptor, error) {
	provider, err := s.providers.Get(in.Method)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	course, err := s.loadCourse(ctx, in.CourseID)
	if err != nil {
		return nil, err
	}
	if course.IsFree() {
		return nil, errs.ErrCourseNotPriced
	}
	if !in.Amount.Equal(*course.Price) || !strings.EqualFold(in.Currency, course.BaseCurrency()) {
		log.Printf("[PAYMENT] Price mismatch for course %d: client %s %s, server %s %s",
			course.ID, in.Amount, in.Currency, course.Price, course.BaseCurrency())
		return nil, errs.ErrPriceMismatch
	}

	if err := s.ensureNotEnrolled(ctx, user.ID, course.ID); err != nil {
		return nil, err
	}

	quote, err := provider.Quote(ctx, *course.Price, course.BaseCurrency())
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		UserID:             user.ID,
		CourseID:           course.ID,
		Amount:             *course.Price,
		Currency:           strings.ToUpper(course.BaseCurrency()),
		SettlementAmount:   quote.Amount,
		SettlementCurrency: quote.Currency,
		ExchangeRate:       quote.Rate,
		PaymentMethod:      provider.Method(),
	}
	if provider.Method() == models.PaymentMethodRegional {
		// The regional reference is ours, so it is stored before the provider
		// hears about it and the row can always be reconciled.
		reference := "RGN-" + uuid.NewString()
		payment.ProviderReference = &reference
	}
	if err := s.payments.CreatePending(ctx, payment); err != nil {
		return nil, err
	}

	req := providers.IntentRequest{
		PaymentID:   payment.ID,
		CourseID:    course.ID,
		CourseTitle: course.Title,
		Amount:      quote.Amount,
		Currency:    quote.Currency,
		Payer:       in.Payer,
	}
	req.Payer.UserID = user.ID
	if req.Payer.Email == "" {
		req.Payer.Email = user.Email
	}
	if req.Payer.Name == "" {
		req.Payer.Name = user.Name
	}
	if payment.ProviderReference != nil {
		req.Reference = *payment.ProviderReference
	}

	intent, err := provider.CreateIntent(ctx, req)
	if err != nil {
		log.Printf("[PAYMENT] Provider %s rejected intent for payment %d: %v", provider.Method(), payment.ID, err)
		if _, ferr := s.payments.MarkFailed(ctx, payment.ID, "intent creation failed: "+err.Error()); ferr != nil {
			log.Printf("[PAYMENT] Failed to mark payment %d failed: %v", payment.ID, ferr)
		}
		if errors.Is(err, errs.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrProviderUnavailable, err)
	}

	if err := s.payments.AttachCorrelation(ctx, payment.ID, Correlation{
		IntentID:   intent.IntentID,
		Reference:  intent.Reference,
		AccessCode: intent.AccessCode,
		Raw:        intent.Raw,
	}); err != nil {
		return nil, err
	}

	desc := &Descriptor{
		PaymentID:        payment.ID,
		ClientSecret:     intent.ClientSecret,
		Reference:        intent.Reference,
		AccessCode:       intent.AccessCode,
		AuthorizationURL: intent.AuthorizationURL,
	}
	if payment.WasConverted() {
		amount, rate := quote.Amount, quote.Rate
		desc.ConvertedAmount = &amount
		desc.ExchangeRate = &rate
		desc.ConvertedCurrency = quote.Currency
	}

	log.Printf("[PAYMENT] Created %s payment %d for user %d course %d (%s %s)",
		provider.Method(), payment.ID, user.ID, course.ID, quote.Amount.StringFixed(2), quote.Currency)
	return desc, nil
}

// ensureNotEnrolled rejects a new charge when the student already has access.
// A PENDING (physical) enrollment may still be paid for online.
func (s *IntentService) ensureNotEnrolled(ctx context.Context, userID, courseID uint) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&courseModels.Enrollment{}).
		Where("user_id = ? AND course_id = ? AND status IN ?", userID, courseID,
			[]courseModels.EnrollmentStatus{courseModels.EnrollmentActive, courseModels.EnrollmentCompleted}).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if count > 0 {
		return errs.ErrAlreadyEnrolled
	}
	return nil
}

func (s *IntentService) loadUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ? AND is_deleted = ? AND is_blocked = ?", id, false, false).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUnauthenticated
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

func (s *IntentService) loadCourse(ctx context.Context, id uint) (*courseModels.Course, error) {
	var course courseModels.Course
	err := s.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&course).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCourseNotFound
		}
		return nil, fmt.Errorf("load course %d: %w", id, err)
	}
	return &course, nil
}
