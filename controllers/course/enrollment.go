package controllers

import (
	"learnpay/middleware"
	"learnpay/services/certificate"
	"learnpay/services/enrollment"
	"learnpay/services/progress"
	courseValidator "learnpay/validators/course"

	"github.com/gofiber/fiber/v2"
)

// CourseController serves enrollment, progress and certificate endpoints.
type CourseController struct {
	enrollments *enrollment.Manager
	tracker     *progress.Tracker
	awarder     *certificate.Awarder
}

func NewCourseController(enrollments *enrollment.Manager, tracker *progress.Tracker, awarder *certificate.Awarder) *CourseController {
	return &CourseController{enrollments: enrollments, tracker: tracker, awarder: awarder}
}

// EnrollInCourse enrolls the caller in a free course.
func (cc *CourseController) EnrollInCourse(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	courseID := c.Locals("courseID").(uint)

	e, err := cc.enrollments.EnrollFree(c.UserContext(), userID, courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrolled in course successfully!", e)
}

// SavePhysicalIntent records the bank-transfer details the student will
// confirm in the next step.
func (cc *CourseController) SavePhysicalIntent(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	courseID := c.Locals("courseID").(uint)
	reqData := c.Locals("validatedPhysicalIntent").(*courseValidator.PhysicalIntentRequest)

	intent, err := cc.enrollments.SavePhysicalIntent(c.UserContext(), userID, courseID, reqData.Details())
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollment request saved, please confirm to submit it!", fiber.Map{
		"courseId":  intent.CourseID,
		"expiresAt": intent.ExpiresAt,
	})
}

func (cc *CourseController) ConfirmPhysicalEnrollment(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	courseID := c.Locals("courseID").(uint)

	e, err := cc.enrollments.ConfirmPhysical(c.UserContext(), userID, courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollment submitted, awaiting admin approval!", e)
}

func (cc *CourseController) GetUserEnrollmentsList(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	list, err := cc.enrollments.ListForUser(c.UserContext(), userID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollments fetched successfully!", list)
}
