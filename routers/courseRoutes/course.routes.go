package courseRoutes

import (
	controllers "learnpay/controllers/course"
	"learnpay/middleware"
	validators "learnpay/validators/course"

	"github.com/gofiber/fiber/v2"
)

// SetupCourseRoutes sets up the student-facing enrollment routes
func SetupCourseRoutes(app *fiber.App, cc *controllers.CourseController) {
	userGroup := app.Group("/course")

	// Enrollment
	userGroup.Post("/:id/enroll", middleware.JWTMiddleware, validators.EnrollCourse(), cc.EnrollInCourse)
	userGroup.Post("/:id/enroll/physical/intent", middleware.JWTMiddleware, validators.PhysicalIntent(), cc.SavePhysicalIntent)
	userGroup.Post("/:id/enroll/physical/confirm", middleware.JWTMiddleware, validators.EnrollCourse(), cc.ConfirmPhysicalEnrollment)

	// Content completion
	userGroup.Post("/:course_id/content/:content_id/complete", middleware.JWTMiddleware, validators.MarkContentComplete(), cc.MarkContentComplete)

	// Certificate request
	userGroup.Post("/:course_id/certificate/request", middleware.JWTMiddleware, validators.RequestCertificate(), cc.RequestCertificate)

	// User enrollments and certificates
	userEnrollGroup := app.Group("/user")
	userEnrollGroup.Get("/enrollments", middleware.JWTMiddleware, cc.GetUserEnrollmentsList)
	userEnrollGroup.Get("/certificates", middleware.JWTMiddleware, cc.GetUserCertificates)
}
