package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"learnpay/config"
	courseControllers "learnpay/controllers/course"
	paymentControllers "learnpay/controllers/payment"
	"learnpay/database"
	"learnpay/events"
	"learnpay/routers/courseRoutes"
	"learnpay/routers/paymentRoutes"
	"learnpay/services/certificate"
	"learnpay/services/currency"
	"learnpay/services/enrollment"
	"learnpay/services/payments"
	"learnpay/services/progress"
	"learnpay/services/providers"
	"learnpay/services/verification"
	"learnpay/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	cfg := config.LoadConfig()
	db := database.ConnectDb(cfg)

	converter := currency.NewConverter(currency.NewHTTPRateSource(cfg.RateAPIURL, cfg.RateAPIKey, cfg.ProviderTimeout))
	registry := providers.NewRegistryFromConfig(cfg, converter)

	paymentManager := payments.NewManager(db)
	enrollments := enrollment.NewManager(db, cfg.EnrollmentIntentTTL)
	intents := payments.NewIntentService(db, paymentManager, registry)
	verifier := verification.NewVerifier(db, paymentManager, enrollments, registry)
	awarder := certificate.NewAwarder(db, enrollments)
	tracker := progress.NewTracker(db, enrollments, awarder)

	var mailer utils.Mailer = utils.LogMailer{}
	if cfg.SendgridAPIKey != "" {
		mailer = utils.NewSendgridMailer(cfg.SendgridAPIKey, cfg.EmailSender)
	} else {
		log.Println("Warning: SENDGRID_API_KEY is empty. Emails will only be logged.")
	}
	dispatcher := events.NewDispatcher(db)
	utils.NewEmailNotifier(db, mailer).Register(dispatcher)

	scheduler := utils.NewScheduler(dispatcher, verifier, paymentManager, enrollments, cfg.StalePaymentAge)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",
		AllowHeaders: "Content-Type,Authorization",
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	courseController := courseControllers.NewCourseController(enrollments, tracker, awarder)
	paymentRoutes.SetupPaymentRoutes(app, paymentControllers.NewPaymentController(intents, paymentManager, verifier, registry))
	courseRoutes.SetupCourseRoutes(app, courseController)
	courseRoutes.SetupAdminCourseRoutes(app, db, courseController)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Server is running on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
	scheduler.Stop()
}
