package courseValidator

import (
	"strconv"
	"strings"

	"learnpay/middleware"

	"github.com/gofiber/fiber/v2"
)

// idParam parses a positive integer route parameter. On failure the error
// response has already been written and ok is false.
func idParam(c *fiber.Ctx, name, label string) (id uint, ok bool, err error) {
	raw := strings.TrimSpace(c.Params(name))
	if raw == "" {
		return 0, false, middleware.JsonResponse(c, fiber.StatusBadRequest, false, label+" is required!", nil)
	}
	n, perr := strconv.ParseUint(raw, 10, 64)
	if perr != nil || n == 0 {
		return 0, false, middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid "+label+"!", nil)
	}
	return uint(n), true, nil
}
