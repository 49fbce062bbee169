package controllers

import (
	"learnpay/middleware"

	"github.com/gofiber/fiber/v2"
)

func (cc *CourseController) MarkContentComplete(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	courseID := c.Locals("courseID").(uint)
	contentID := c.Locals("contentID").(uint)

	update, err := cc.tracker.RecordCompletion(c.UserContext(), userID, courseID, contentID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	message := "Content marked as complete!"
	if update.CertificateRequest != nil {
		message = "Course completed, certificate requested!"
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, message, update)
}
