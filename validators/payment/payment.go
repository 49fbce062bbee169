package paymentValidator

import (
	"strings"

	"learnpay/middleware"
	"learnpay/validators"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type PayerRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
	Name  string `json:"name" validate:"omitempty,max=120"`
}

// IntentRequest is the body of both intent endpoints. Amount and currency are
// only compared against the stored course price.
type IntentRequest struct {
	CourseID uint            `json:"courseId" validate:"required,gt=0"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3,alpha"`
	Payer    PayerRequest    `json:"payer"`
}

type VerifyRequest struct {
	PaymentID         uint   `json:"paymentId" validate:"required,gt=0"`
	ProviderSessionID string `json:"providerSessionId" validate:"omitempty,max=255"`
	ProviderReference string `json:"providerReference" validate:"omitempty,max=255"`
}

// CorrelationID is whichever provider id the client brought back.
func (r *VerifyRequest) CorrelationID() string {
	if r.ProviderSessionID != "" {
		return r.ProviderSessionID
	}
	return r.ProviderReference
}

func CreateIntent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(IntentRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Currency = strings.ToUpper(strings.TrimSpace(reqData.Currency))
		reqData.Payer.Email = strings.TrimSpace(reqData.Payer.Email)
		reqData.Payer.Name = strings.TrimSpace(reqData.Payer.Name)

		errors := validators.Struct(reqData)
		if !reqData.Amount.IsPositive() {
			if errors == nil {
				errors = make(map[string]string)
			}
			errors["amount"] = "Amount must be greater than 0!"
		}
		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedIntent", reqData)
		return c.Next()
	}
}

func VerifyPayment() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(VerifyRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.ProviderSessionID = strings.TrimSpace(reqData.ProviderSessionID)
		reqData.ProviderReference = strings.TrimSpace(reqData.ProviderReference)

		if errors := validators.Struct(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedVerify", reqData)
		return c.Next()
	}
}
