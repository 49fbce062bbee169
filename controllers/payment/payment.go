package controllers

import (
	"errors"
	"log"

	"learnpay/errs"
	"learnpay/middleware"
	"learnpay/models"
	"learnpay/services/payments"
	"learnpay/services/providers"
	"learnpay/services/verification"
	paymentValidator "learnpay/validators/payment"

	"github.com/gofiber/fiber/v2"
)

// PaymentController serves the payment endpoints.
type PaymentController struct {
	intents  *payments.IntentService
	payments *payments.Manager
	verifier *verification.Verifier
	registry *providers.Registry
}

func NewPaymentController(intents *payments.IntentService, manager *payments.Manager, verifier *verification.Verifier, registry *providers.Registry) *PaymentController {
	return &PaymentController{intents: intents, payments: manager, verifier: verifier, registry: registry}
}

// GetConfig returns the publishable provider keys. Secrets never leave the server.
func (pc *PaymentController) GetConfig(c *fiber.Ctx) error {
	keys := pc.registry.PublicKeys()
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Payment config fetched successfully!", fiber.Map{
		"cardProviderPublicKey":     keys[models.PaymentMethodCard],
		"regionalProviderPublicKey": keys[models.PaymentMethodRegional],
	})
}

func (pc *PaymentController) CreateCardPaymentIntent(c *fiber.Ctx) error {
	return pc.createIntent(c, models.PaymentMethodCard)
}

func (pc *PaymentController) CreateRegionalPayment(c *fiber.Ctx) error {
	return pc.createIntent(c, models.PaymentMethodRegional)
}

func (pc *PaymentController) createIntent(c *fiber.Ctx, method models.PaymentMethod) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	reqData := c.Locals("validatedIntent").(*paymentValidator.IntentRequest)

	descriptor, err := pc.intents.Create(c.UserContext(), payments.IntentInput{
		UserID:   userID,
		CourseID: reqData.CourseID,
		Amount:   reqData.Amount,
		Currency: reqData.Currency,
		Method:   method,
		Payer: providers.Payer{
			UserID: userID,
			Email:  reqData.Payer.Email,
			Name:   reqData.Payer.Name,
		},
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Payment initiated successfully!", descriptor)
}

func (pc *PaymentController) VerifyPayment(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	reqData := c.Locals("validatedVerify").(*paymentValidator.VerifyRequest)

	result, err := pc.verifier.Verify(c.UserContext(), verification.Request{
		PaymentID:     reqData.PaymentID,
		CallerID:      userID,
		CorrelationID: reqData.CorrelationID(),
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	message := "Payment verified successfully!"
	switch {
	case result.Pending:
		message = "Payment is still processing, please check again shortly!"
	case !result.Verified:
		message = "Payment was not successful!"
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, message, result)
}

func (pc *PaymentController) CardWebhook(c *fiber.Ctx) error {
	return pc.webhook(c, models.PaymentMethodCard, c.Get("Stripe-Signature"))
}

func (pc *PaymentController) RegionalWebhook(c *fiber.Ctx) error {
	return pc.webhook(c, models.PaymentMethodRegional, c.Get("X-Paystack-Signature"))
}

// webhook acknowledges callbacks for unknown payments so the provider stops
// retrying, and answers 502 while the provider itself is unreachable so it
// tries again later.
func (pc *PaymentController) webhook(c *fiber.Ctx, method models.PaymentMethod, signature string) error {
	result, err := pc.verifier.HandleWebhook(c.UserContext(), method, c.Body(), signature)
	switch {
	case err == nil:
		return middleware.JsonResponse(c, fiber.StatusOK, true, "Webhook processed!", result)
	case errors.Is(err, errs.ErrInvalidSignature):
		log.Printf("[WEBHOOK] Rejected %s webhook with invalid signature from %s", method, c.IP())
		return middleware.ErrorResponse(c, err)
	case errors.Is(err, errs.ErrPaymentNotFound), errors.Is(err, errs.ErrCorrelationMismatch):
		log.Printf("[WEBHOOK] Ignoring %s webhook: %v", method, err)
		return middleware.JsonResponse(c, fiber.StatusOK, true, "Webhook ignored!", nil)
	default:
		return middleware.ErrorResponse(c, err)
	}
}

func (pc *PaymentController) History(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	list, err := pc.payments.ListForUser(c.UserContext(), userID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Payments fetched successfully!", list)
}
