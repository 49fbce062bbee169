package controllers

import (
	"learnpay/middleware"

	"github.com/gofiber/fiber/v2"
)

// ApproveEnrollment activates a pending offline enrollment.
func (cc *CourseController) ApproveEnrollment(c *fiber.Ctx) error {
	adminID := c.Locals("adminId").(uint)
	enrollmentID := c.Locals("enrollmentID").(uint)

	e, err := cc.enrollments.Approve(c.UserContext(), adminID, enrollmentID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollment approved successfully!", e)
}

func (cc *CourseController) DropEnrollment(c *fiber.Ctx) error {
	adminID := c.Locals("adminId").(uint)
	enrollmentID := c.Locals("enrollmentID").(uint)

	e, err := cc.enrollments.Drop(c.UserContext(), adminID, enrollmentID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollment dropped successfully!", e)
}

func (cc *CourseController) ApproveCertificate(c *fiber.Ctx) error {
	adminID := c.Locals("adminId").(uint)
	requestID := c.Locals("requestID").(uint)

	cert, err := cc.awarder.Approve(c.UserContext(), adminID, requestID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate issued successfully!", cert)
}

func (cc *CourseController) RejectCertificate(c *fiber.Ctx) error {
	adminID := c.Locals("adminId").(uint)
	requestID := c.Locals("requestID").(uint)
	reason := c.Locals("rejectionReason").(string)

	req, err := cc.awarder.Reject(c.UserContext(), adminID, requestID, reason)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate request rejected!", req)
}
