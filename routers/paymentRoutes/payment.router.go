package paymentRoutes

import (
	controllers "learnpay/controllers/payment"
	"learnpay/middleware"
	validators "learnpay/validators/payment"

	"github.com/gofiber/fiber/v2"
)

// SetupPaymentRoutes sets up intent, verification and webhook routes
func SetupPaymentRoutes(app *fiber.App, pc *controllers.PaymentController) {
	paymentGroup := app.Group("/payment")

	// Public
	paymentGroup.Get("/config", pc.GetConfig)

	// Provider callbacks, authenticated by signature
	paymentGroup.Post("/webhook/card", pc.CardWebhook)
	paymentGroup.Post("/webhook/regional", pc.RegionalWebhook)

	// Student
	paymentGroup.Post("/card/intent", middleware.JWTMiddleware, validators.CreateIntent(), pc.CreateCardPaymentIntent)
	paymentGroup.Post("/regional/intent", middleware.JWTMiddleware, validators.CreateIntent(), pc.CreateRegionalPayment)
	paymentGroup.Post("/verify", middleware.JWTMiddleware, validators.VerifyPayment(), pc.VerifyPayment)
	paymentGroup.Get("/history", middleware.JWTMiddleware, pc.History)
}
