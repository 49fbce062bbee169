package controllers

import (
	"learnpay/middleware"

	"github.com/gofiber/fiber/v2"
)

// RequestCertificate is the manual award trigger. Repeating it returns the
// existing request.
func (cc *CourseController) RequestCertificate(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	courseID := c.Locals("courseID").(uint)

	req, created, err := cc.awarder.AwardFor(c.UserContext(), userID, courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	message := "Certificate request already exists!"
	if created {
		message = "Certificate requested successfully!"
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, message, req)
}

func (cc *CourseController) GetUserCertificates(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	list, err := cc.awarder.ListForUser(c.UserContext(), userID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificates fetched successfully!", list)
}
