package courseValidator

import (
	"strings"

	"learnpay/middleware"
	"learnpay/validators"

	"github.com/gofiber/fiber/v2"
)

// PhysicalIntentRequest carries the bank-transfer details an admin checks
// before approving an offline enrollment.
type PhysicalIntentRequest struct {
	AccountName     string `json:"accountName" validate:"required,max=120"`
	BankName        string `json:"bankName" validate:"required,max=120"`
	TransferRef     string `json:"transferReference" validate:"required,max=64"`
	Phone           string `json:"phone" validate:"omitempty,max=20"`
	PreferredCenter string `json:"preferredCenter" validate:"omitempty,max=120"`
	Notes           string `json:"notes" validate:"omitempty,max=500"`
}

// Details flattens the request for storage on the intent.
func (r *PhysicalIntentRequest) Details() map[string]string {
	details := map[string]string{
		"accountName":       r.AccountName,
		"bankName":          r.BankName,
		"transferReference": r.TransferRef,
	}
	for k, v := range map[string]string{"phone": r.Phone, "preferredCenter": r.PreferredCenter, "notes": r.Notes} {
		if v != "" {
			details[k] = v
		}
	}
	return details
}

func EnrollCourse() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok, err := idParam(c, "id", "Course ID")
		if !ok {
			return err
		}

		c.Locals("courseID", courseID)
		return c.Next()
	}
}

func PhysicalIntent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok, err := idParam(c, "id", "Course ID")
		if !ok {
			return err
		}

		reqData := new(PhysicalIntentRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.AccountName = strings.TrimSpace(reqData.AccountName)
		reqData.BankName = strings.TrimSpace(reqData.BankName)
		reqData.TransferRef = strings.TrimSpace(reqData.TransferRef)
		reqData.Phone = strings.TrimSpace(reqData.Phone)
		reqData.PreferredCenter = strings.TrimSpace(reqData.PreferredCenter)
		reqData.Notes = strings.TrimSpace(reqData.Notes)

		if errors := validators.Struct(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("courseID", courseID)
		c.Locals("validatedPhysicalIntent", reqData)
		return c.Next()
	}
}

func MarkContentComplete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok, err := idParam(c, "course_id", "Course ID")
		if !ok {
			return err
		}
		contentID, ok, err := idParam(c, "content_id", "Content ID")
		if !ok {
			return err
		}

		c.Locals("courseID", courseID)
		c.Locals("contentID", contentID)
		return c.Next()
	}
}

func RequestCertificate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok, err := idParam(c, "course_id", "Course ID")
		if !ok {
			return err
		}

		c.Locals("courseID", courseID)
		return c.Next()
	}
}
