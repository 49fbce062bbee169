package courseRoutes

import (
	controllers "learnpay/controllers/course"
	"learnpay/middleware"
	validators "learnpay/validators/course"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupAdminCourseRoutes sets up enrollment approval and certificate review routes
func SetupAdminCourseRoutes(app *fiber.App, db *gorm.DB, cc *controllers.CourseController) {
	adminGroup := app.Group("/admin", middleware.JWTMiddleware, middleware.AdminOnly(db))

	// Offline enrollments
	adminGroup.Post("/enrollment/:id/approve", validators.EnrollmentAction(), cc.ApproveEnrollment)
	adminGroup.Post("/enrollment/:id/drop", validators.EnrollmentAction(), cc.DropEnrollment)

	// Certificates
	adminGroup.Post("/certificate/:request_id/approve", validators.ApproveCertificate(), cc.ApproveCertificate)
	adminGroup.Post("/certificate/:request_id/reject", validators.RejectCertificate(), cc.RejectCertificate)
}
