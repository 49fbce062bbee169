package courseValidator

import (
	"strings"

	"learnpay/middleware"
	"learnpay/validators"

	"github.com/gofiber/fiber/v2"
)

type RejectCertificateRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

func EnrollmentAction() fiber.Handler {
	return func(c *fiber.Ctx) error {
		enrollmentID, ok, err := idParam(c, "id", "Enrollment ID")
		if !ok {
			return err
		}

		c.Locals("enrollmentID", enrollmentID)
		return c.Next()
	}
}

func ApproveCertificate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID, ok, err := idParam(c, "request_id", "Request ID")
		if !ok {
			return err
		}

		c.Locals("requestID", requestID)
		return c.Next()
	}
}

func RejectCertificate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID, ok, err := idParam(c, "request_id", "Request ID")
		if !ok {
			return err
		}

		reqData := new(RejectCertificateRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Reason = strings.TrimSpace(reqData.Reason)

		if errors := validators.Struct(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("requestID", requestID)
		c.Locals("rejectionReason", reqData.Reason)
		return c.Next()
	}
}
